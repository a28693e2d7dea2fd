package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors of the run-level taxonomy. Agent-level errors are captured
// into AgentResult values and never escape the stage executor; these
// sentinels cover everything that does escalate, plus the classification
// markers consulted by the retry policy and circuit breaker.
var (
	// ErrConfiguration marks errors detected while validating the registry
	// or the requested agent set. Configuration errors are fatal before any
	// stage executes. Match with errors.Is.
	ErrConfiguration = errors.New("configuration error")

	// ErrCircuitOpen is returned without attempting the underlying call
	// while a circuit breaker is open. Fail-fast: there is deliberately no
	// fallback to degraded output.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrTimeout marks a per-agent or per-run deadline being exceeded.
	// Timeouts classify as transient for retry/breaker purposes.
	ErrTimeout = errors.New("timed out")

	// ErrCancelled marks a run-level cancellation, either explicit or via
	// the global run timeout ceiling.
	ErrCancelled = errors.New("run cancelled")
)

// CyclicDependencyError reports a dependency cycle among the requested (or
// implied) agents. It matches ErrConfiguration via errors.Is.
type CyclicDependencyError struct {
	// Cycle lists the agent names forming the cycle, in edge order.
	Cycle []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Cycle, " -> "))
}

// Is reports configuration-error kinship for errors.Is.
func (e *CyclicDependencyError) Is(target error) bool { return target == ErrConfiguration }

// UnknownAgentError reports a requested or dependency name absent from the
// registry. It matches ErrConfiguration via errors.Is.
type UnknownAgentError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q", e.Name)
}

// Is reports configuration-error kinship for errors.Is.
func (e *UnknownAgentError) Is(target error) bool { return target == ErrConfiguration }

// TransientError wraps an external failure from a designated transient
// category (timeout, rate limit, 5xx-equivalent). Only transient failures
// are retried and counted by circuit breakers; everything else propagates
// immediately as a permanent agent failure.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }

// Unwrap exposes the wrapped cause.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable. It returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err belongs to a transient category: an
// explicit TransientError wrapper, a per-call timeout, or a network error
// reporting Timeout(). Programmer and validation errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
