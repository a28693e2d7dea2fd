package core

import "context"

// Invoker executes the analysis work of a single agent. Implementations are
// supplied by out-of-scope specialized-agent code; the engine only assumes
// the contract below.
//
// Implementations must:
//   - Be safe for concurrent calls (one stage invokes many agents at once)
//   - Honor ctx cancellation and deadlines
//   - Classify retryable failures with Transient (see errors.go); anything
//     unclassified propagates immediately as a permanent agent failure
type Invoker interface {
	// Invoke runs one agent against the payload. prior carries the terminal
	// AgentResults of every dependency (and of earlier stages); it must be
	// treated as read-only.
	Invoke(ctx context.Context, agent AgentDescriptor, payload Payload, prior map[string]AgentResult) (AgentResult, error)
}

// Validator scores the aggregated output during quality control. Validators
// run in declared order, once per iteration.
type Validator interface {
	// Name identifies the validator in reports and logs.
	Name() string
	// Validate grades the aggregate, optionally returning improvement
	// instructions for the reviser. A returned error aborts the run; a low
	// score does not.
	Validate(ctx context.Context, agg Aggregate) (Score, error)
}

// Reviser applies improvement instructions to the aggregated output between
// quality-control iterations (the re-synthesis step). It must not modify
// agg.Results.
type Reviser interface {
	Revise(ctx context.Context, agg Aggregate, instructions []string) (Aggregate, error)
}

// LearningStore is the write-only persistence sink of the LEARNING phase.
// Persist failures are logged and never fail the overall run.
type LearningStore interface {
	Persist(ctx context.Context, runID string, results map[string]AgentResult, patterns []Pattern) error
}

// Pattern is a reusable observation distilled from a completed run, persisted
// for future runs by the LearningStore.
type Pattern struct {
	Agent       string  `json:"agent"`
	Domain      string  `json:"domain,omitempty"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}
