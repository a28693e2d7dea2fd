package core

import "time"

// Status is the terminal state of one agent invocation within a run.
type Status int

const (
	// StatusSuccess indicates the agent produced a usable result.
	StatusSuccess Status = iota
	// StatusFailed indicates the invocation errored (after retries).
	StatusFailed
	// StatusSkipped indicates the agent was never invoked because a
	// required dependency did not succeed.
	StatusSkipped
	// StatusTimedOut indicates the invocation exceeded its timeout and was
	// abandoned. Timed-out counts as failed for threshold purposes.
	StatusTimedOut
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Severity grades a finding.
type Severity int

const (
	// SeverityInfo is informational.
	SeverityInfo Severity = iota
	// SeverityWarning flags a potential problem.
	SeverityWarning
	// SeverityCritical flags a serious problem.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Finding is a single observation an agent reports about the input.
type Finding struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	// Evidence cites where in the input the finding is grounded. Findings
	// without evidence lower the evidence-coverage score during quality
	// control.
	Evidence string `json:"evidence,omitempty"`
}

// AgentResult is the outcome of exactly one agent invocation in a run. It is
// produced once per agent, owned by the stage executor until handed to the
// session coordinator, and immutable afterwards. All cross-agent data flow
// happens via these values passed downstream explicitly.
type AgentResult struct {
	Agent      string    `json:"agent"`
	Status     Status    `json:"status"`
	Payload    string    `json:"payload,omitempty"`
	Confidence float64   `json:"confidence"`
	Findings   []Finding `json:"findings,omitempty"`
	// Err carries the failure detail when Status is failed or timed-out,
	// or the skip reason when Status is skipped.
	Err       string    `json:"error,omitempty"`
	Started   time.Time `json:"started"`
	Completed time.Time `json:"completed"`
}

// Succeeded reports whether the invocation produced a usable result.
func (r AgentResult) Succeeded() bool { return r.Status == StatusSuccess }

// FailedForThreshold reports whether the result counts as a failure when
// computing the stage partial-failure policy. Timed-out and skipped agents
// count alongside plain failures; only successes do not.
func (r AgentResult) FailedForThreshold() bool { return r.Status != StatusSuccess }
