// Package stage executes one plan stage at a time: bounded fan-out across
// the stage's agents, per-agent timeouts, skip propagation from failed
// required dependencies, and the partial-failure verdict that decides
// whether the run may continue.
package stage
