package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/logging"
)

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	// Sink receives progress events. Nil discards them.
	Sink core.ProgressSink
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Coordinator serializes all mutations of one RunSession. Concurrent agent
// completions, quality iterations and phase transitions funnel through its
// mutex, so the session record never sees a torn update. The coordinator is
// the only writer of its session; everyone else reads clones via the store.
type Coordinator struct {
	store core.SessionStore
	opts  CoordinatorOptions

	mu      sync.Mutex
	session *core.RunSession
}

// NewCoordinator creates the session record for runID in the store and
// returns its coordinator.
func NewCoordinator(runID string, store core.SessionStore, optFns ...func(o *CoordinatorOptions)) (*Coordinator, error) {
	opts := CoordinatorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	s, err := store.Create(runID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Coordinator{store: store, opts: opts, session: s}, nil
}

// RunID returns the coordinated run's identifier.
func (c *Coordinator) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID
}

// Phase returns the current phase.
func (c *Coordinator) Phase() core.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Phase
}

// Advance moves the session to next. Transitions that would move backwards
// or leave a terminal phase fail with core.ErrConfiguration wrapped context.
func (c *Coordinator) Advance(next core.Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.session.Phase
	if !cur.CanAdvanceTo(next) {
		return fmt.Errorf("%w: phase %s cannot advance to %s", core.ErrConfiguration, cur, next)
	}
	c.session.Phase = next
	if err := c.persist(); err != nil {
		return err
	}
	c.opts.Logger.Info("phase transition", "run_id", c.session.ID, "from", cur.String(), "to", next.String())
	c.notify(core.ProgressEvent{
		RunID:     c.session.ID,
		Kind:      core.EventPhase,
		Phase:     next,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// Fail moves the session to the absorbing FAILED phase with the given
// reason. Failing an already-terminal session is a no-op so late goroutines
// cannot clobber a completed run.
func (c *Coordinator) Fail(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Phase.Terminal() {
		return nil
	}
	c.session.Phase = core.PhaseFailed
	c.session.FailureReason = reason
	c.session.Completed = time.Now().UTC()
	if err := c.persist(); err != nil {
		return err
	}
	c.opts.Logger.Error("run failed", "run_id", c.session.ID, "reason", reason)
	c.notify(core.ProgressEvent{
		RunID:     c.session.ID,
		Kind:      core.EventPhase,
		Phase:     core.PhaseFailed,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
	return nil
}

// RecordResult stores one agent's terminal result. Each agent may be
// recorded once; a second write for the same agent is a programming error.
func (c *Coordinator) RecordResult(r core.AgentResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.session.Results[r.Agent]; dup {
		return fmt.Errorf("%w: duplicate result for agent %q", core.ErrConfiguration, r.Agent)
	}
	c.session.Results[r.Agent] = r
	if err := c.persist(); err != nil {
		return err
	}
	res := r
	c.notify(core.ProgressEvent{
		RunID:     c.session.ID,
		Kind:      core.EventAgent,
		Phase:     c.session.Phase,
		Timestamp: time.Now().UTC(),
		Agent:     r.Agent,
		Result:    &res,
	})
	return nil
}

// RecordQualityIteration appends one quality-control report.
func (c *Coordinator) RecordQualityIteration(report core.QualityReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.QCIterations++
	c.session.Reports = append(c.session.Reports, report)
	if err := c.persist(); err != nil {
		return err
	}
	rep := report
	c.notify(core.ProgressEvent{
		RunID:     c.session.ID,
		Kind:      core.EventQuality,
		Phase:     c.session.Phase,
		Timestamp: time.Now().UTC(),
		Report:    &rep,
	})
	return nil
}

// Complete finishes the run with the aggregated output. qualityPassed
// distinguishes converged output from best-effort degraded output; both are
// COMPLETED. Valid from VALIDATING or LEARNING.
func (c *Coordinator) Complete(qualityPassed bool, aggregated string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.session.Phase
	if cur != core.PhaseValidating && cur != core.PhaseLearning {
		return fmt.Errorf("%w: cannot complete from phase %s", core.ErrConfiguration, cur)
	}
	c.session.Phase = core.PhaseCompleted
	c.session.QualityPassed = qualityPassed
	c.session.Aggregated = aggregated
	c.session.Completed = time.Now().UTC()
	if err := c.persist(); err != nil {
		return err
	}
	c.opts.Logger.Info("run completed", "run_id", c.session.ID, "quality_passed", qualityPassed)
	c.notify(core.ProgressEvent{
		RunID:     c.session.ID,
		Kind:      core.EventPhase,
		Phase:     core.PhaseCompleted,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// Snapshot returns a clone of the current session state.
func (c *Coordinator) Snapshot() *core.RunSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// persist saves a clone to the store. Caller holds the lock.
func (c *Coordinator) persist() error {
	if err := c.store.Save(c.session.Clone()); err != nil {
		return fmt.Errorf("save session %s: %w", c.session.ID, err)
	}
	return nil
}

// notify forwards an event to the sink. Caller holds the lock; sinks must
// not block per the ProgressSink contract.
func (c *Coordinator) notify(ev core.ProgressEvent) {
	if c.opts.Sink != nil {
		c.opts.Sink.Notify(ev)
	}
}
