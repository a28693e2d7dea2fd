// Package registry holds the process-wide set of agent descriptors. The
// registry is populated once at startup, either programmatically or from a
// YAML file, and read-only afterwards; the plan resolver consumes it through
// the plan.Directory interface.
package registry
