package engine

import (
	"time"

	"github.com/arbiterlabs/arbiter/stage"
)

// Config holds engine-wide tuning. Zero fields fall back to the defaults of
// DefaultConfig.
type Config struct {
	// MaxConcurrentRuns bounds runs in flight; further Run calls fail fast.
	MaxConcurrentRuns int
	// MaxConcurrentAgents bounds concurrent invocations within one stage.
	MaxConcurrentAgents int
	// EventBufferSize sets the progress channel buffering per run. Events
	// beyond a full buffer are dropped, never block the run.
	EventBufferSize int
	// RunTimeout caps one whole run end to end.
	RunTimeout time.Duration
	// DefaultAgentTimeout applies to agents without a descriptor timeout.
	DefaultAgentTimeout time.Duration
	// PartialFailureThreshold is the minimum per-stage success ratio.
	PartialFailureThreshold float64
}

// DefaultConfig returns the baseline engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRuns:       4,
		MaxConcurrentAgents:     stage.DefaultMaxConcurrent,
		EventBufferSize:         100,
		RunTimeout:              30 * time.Minute,
		DefaultAgentTimeout:     stage.DefaultAgentTimeout,
		PartialFailureThreshold: stage.DefaultPartialFailureThreshold,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = def.MaxConcurrentRuns
	}
	if c.MaxConcurrentAgents <= 0 {
		c.MaxConcurrentAgents = def.MaxConcurrentAgents
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = def.EventBufferSize
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = def.RunTimeout
	}
	if c.DefaultAgentTimeout <= 0 {
		c.DefaultAgentTimeout = def.DefaultAgentTimeout
	}
	if c.PartialFailureThreshold <= 0 {
		c.PartialFailureThreshold = def.PartialFailureThreshold
	}
	return c
}
