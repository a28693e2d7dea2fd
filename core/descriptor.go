package core

import "time"

// Call categories used to select a circuit breaker for an agent's external
// calls. Agents backed by a language model should use CategoryLLM so that
// model outages open a single shared breaker instead of one per agent.
const (
	CategoryTool = "tool-call"
	CategoryLLM  = "llm-call"
)

// AgentDescriptor declares a named unit of analysis work and its execution
// constraints. Descriptors are immutable once loaded into a registry; the
// process-wide registry is populated at startup (from code or a YAML file)
// and never mutated during a run.
//
// DependsOn names must form a DAG across the registry. A cycle is a
// configuration error surfaced by the dependency resolver before any stage
// executes, never a runtime fallback.
type AgentDescriptor struct {
	// Name uniquely identifies the agent within a registry.
	Name string

	// DependsOn lists agents whose results must be terminal before this
	// agent is invoked.
	DependsOn []string

	// Required marks the agent as load-bearing: its failure combined with a
	// stage success ratio below the partial-failure threshold fails the run.
	Required bool

	// Timeout bounds a single invocation of this agent. Zero means the
	// executor's default agent timeout applies.
	Timeout time.Duration

	// Priority orders agents within a topological level; higher runs (and
	// is listed) first. Ties fall back to name order for determinism.
	Priority int

	// Domain is a free-form tag (e.g. "security", "complexity") carried
	// through to results and learning patterns.
	Domain string

	// CallCategory selects the circuit breaker guarding this agent's
	// external calls. Empty defaults to CategoryTool.
	CallCategory string

	// Disabled excludes the agent from "all enabled" run requests. Disabled
	// agents can still be requested explicitly.
	Disabled bool
}

// Category returns the effective circuit-breaker category.
func (d AgentDescriptor) Category() string {
	if d.CallCategory == "" {
		return CategoryTool
	}
	return d.CallCategory
}

// EffectiveTimeout returns the agent timeout, falling back to def when the
// descriptor does not set one.
func (d AgentDescriptor) EffectiveTimeout(def time.Duration) time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return def
}
