// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug in
// any structured logger. It also offers a richer ArbiterLogger with
// contextual helpers (run, component) and domain specific logging helpers
// for agent invocations, stages, circuit breakers and quality iterations.
package logging
