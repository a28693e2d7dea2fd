package core

// ExecutionMode hints how stages should be scheduled.
type ExecutionMode int

const (
	// ModeParallel runs all agents of a stage concurrently (default).
	ModeParallel ExecutionMode = iota
	// ModeSequential flattens the plan so agents run strictly one at a
	// time, preserving dependency order.
	ModeSequential
)

// String returns the string representation of the execution mode.
func (m ExecutionMode) String() string {
	switch m {
	case ModeParallel:
		return "parallel"
	case ModeSequential:
		return "sequential"
	default:
		return "unknown"
	}
}

// Payload references the input a run analyzes. The engine treats it as
// opaque; it is handed unchanged to every agent invocation.
type Payload struct {
	// Ref points at the input (a path, URL or external identifier).
	Ref string `json:"ref"`
	// Content optionally carries the input inline.
	Content string `json:"content,omitempty"`
	// Metadata carries arbitrary caller annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RunRequest describes one orchestration run. It is created per incoming
// analysis request and immutable thereafter.
type RunRequest struct {
	// Agents is the requested subset. Empty means "all enabled" agents in
	// the registry. Transitive dependencies of requested agents are added
	// automatically by the resolver and marked implicitly included.
	Agents []string

	// Payload is the input under analysis.
	Payload Payload

	// Quality overrides the engine's quality-control thresholds. Zero
	// fields fall back to defaults.
	Quality QualityThresholds

	// Mode hints parallel-preferred vs strict-sequential execution.
	Mode ExecutionMode
}
