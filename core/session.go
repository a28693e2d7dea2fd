package core

import "time"

// Phase is a RunSession lifecycle state. Phases only move forward; FAILED is
// an absorbing state reachable from any non-terminal phase. The bounded
// quality-control retry loop advances sub-iterations within VALIDATING, it
// never regresses the phase.
type Phase int

const (
	// PhaseInitializing is the phase before registry and request validation.
	PhaseInitializing Phase = iota
	// PhasePlanning covers dependency resolution into a stage plan.
	PhasePlanning
	// PhaseExecuting covers stage-by-stage agent execution.
	PhaseExecuting
	// PhaseValidating covers the quality-control loop.
	PhaseValidating
	// PhaseLearning is the optional pattern-persistence side effect. It
	// never blocks the caller's visible completion.
	PhaseLearning
	// PhaseCompleted is the successful terminal phase. A completed run may
	// still be degraded; see RunSession.QualityPassed.
	PhaseCompleted
	// PhaseFailed is the absorbing failure phase.
	PhaseFailed
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "INITIALIZING"
	case PhasePlanning:
		return "PLANNING"
	case PhaseExecuting:
		return "EXECUTING"
	case PhaseValidating:
		return "VALIDATING"
	case PhaseLearning:
		return "LEARNING"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the phase is final.
func (p Phase) Terminal() bool { return p == PhaseCompleted || p == PhaseFailed }

// CanAdvanceTo reports whether a transition from p to next respects the
// forward-only state machine. FAILED is reachable from any non-terminal
// phase; all other transitions must strictly increase the ordinal.
func (p Phase) CanAdvanceTo(next Phase) bool {
	if p.Terminal() {
		return false
	}
	if next == PhaseFailed {
		return true
	}
	return next > p && next != PhaseFailed
}

// RunSession is the mutable record of one orchestration run. It is created
// at run start, mutated only by the session coordinator under its lock, and
// archived when the caller retrieves final results or a retention timeout
// elapses. Callers always observe clones.
type RunSession struct {
	ID    string `json:"id"`
	Phase Phase  `json:"phase"`
	// Results maps agent name to its single AgentResult. Insertion order is
	// irrelevant; keys are unique.
	Results map[string]AgentResult `json:"results"`
	// QCIterations counts completed quality-control iterations.
	QCIterations int `json:"qc_iterations"`
	// Reports holds one QualityReport per quality-control iteration.
	Reports []QualityReport `json:"reports,omitempty"`
	// Aggregated is the final synthesized output (best effort when the
	// quality loop did not converge).
	Aggregated string `json:"aggregated,omitempty"`
	// QualityPassed distinguishes converged from degraded COMPLETED runs.
	QualityPassed bool `json:"quality_passed"`
	// FailureReason explains a FAILED terminal phase (e.g. "Cancelled").
	FailureReason string    `json:"failure_reason,omitempty"`
	Created       time.Time `json:"created"`
	Completed     time.Time `json:"completed,omitzero"`
}

// NewRunSession creates a session in the INITIALIZING phase.
func NewRunSession(id string) *RunSession {
	return &RunSession{
		ID:      id,
		Phase:   PhaseInitializing,
		Results: make(map[string]AgentResult),
		Created: time.Now().UTC(),
	}
}

// Clone returns a deep copy safe for independent use.
func (s *RunSession) Clone() *RunSession {
	c := *s
	c.Results = make(map[string]AgentResult, len(s.Results))
	for k, v := range s.Results {
		fs := make([]Finding, len(v.Findings))
		copy(fs, v.Findings)
		v.Findings = fs
		c.Results[k] = v
	}
	c.Reports = make([]QualityReport, len(s.Reports))
	copy(c.Reports, s.Reports)
	return &c
}

// SessionStore persists RunSessions. Implementations must return clones from
// Get so callers cannot mutate coordinator-owned state.
type SessionStore interface {
	Create(id string) (*RunSession, error)
	Get(id string) (*RunSession, error)
	Save(s *RunSession) error
	// Archive marks a session eligible for retention cleanup. Archived
	// sessions remain readable until swept.
	Archive(id string) error
}
