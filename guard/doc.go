// Package guard protects external calls (tool and model invocations) with a
// circuit breaker and an exponential-backoff retry policy.
//
// One Breaker exists per external-call category (e.g. "llm-call",
// "tool-call") and is shared by all concurrent callers of that category. The
// Retrier composes with the breaker: the breaker is consulted before every
// attempt, and a breaker that opens mid-retry abandons the remaining
// attempts with core.ErrCircuitOpen. Only transient-classified failures
// (core.IsTransient) are retried or counted by the breaker; programmer and
// validation errors propagate immediately.
package guard
