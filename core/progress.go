package core

import "time"

// EventKind categorizes progress events.
type EventKind int

const (
	// EventPhase reports a RunSession phase transition.
	EventPhase EventKind = iota
	// EventAgent reports one agent reaching a terminal result.
	EventAgent
	// EventQuality reports a completed quality-control iteration.
	EventQuality
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventPhase:
		return "phase"
	case EventAgent:
		return "agent"
	case EventQuality:
		return "quality"
	default:
		return "unknown"
	}
}

// ProgressEvent is pushed by the session coordinator on phase transitions,
// per-agent completions and quality iterations. Events are immutable after
// emission.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Kind      EventKind `json:"kind"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`

	// Agent and Result are set for EventAgent.
	Agent  string       `json:"agent,omitempty"`
	Result *AgentResult `json:"result,omitempty"`

	// Report is set for EventQuality.
	Report *QualityReport `json:"report,omitempty"`

	// Reason carries the failure reason on FAILED phase events.
	Reason string `json:"reason,omitempty"`
}

// ProgressSink receives progress events. Notify must not block; the engine
// adapts sinks onto buffered channels and drops on overflow rather than
// stalling the run. A nil sink is valid and discards everything.
type ProgressSink interface {
	Notify(ev ProgressEvent)
}

// SinkFunc adapts a function to the ProgressSink interface.
type SinkFunc func(ev ProgressEvent)

// Notify implements ProgressSink.
func (f SinkFunc) Notify(ev ProgressEvent) { f(ev) }
