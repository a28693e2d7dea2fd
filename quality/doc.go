// Package quality implements the bounded validate-revise loop that gates a
// run's aggregated output before it is released.
//
// Each iteration runs every validator against the current aggregate,
// combines their scores (mean confidence, worst-case bias), and either
// accepts the aggregate or hands the validators' instructions to the Reviser
// for another pass. The loop is strictly bounded by iteration count and wall
// clock; a loop that never converges releases the last aggregate flagged as
// not quality-passed rather than blocking the run.
package quality
