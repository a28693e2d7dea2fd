package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/guard"
	"github.com/arbiterlabs/arbiter/logging"
	"github.com/arbiterlabs/arbiter/plan"
	"github.com/arbiterlabs/arbiter/quality"
	"github.com/arbiterlabs/arbiter/registry"
	"github.com/arbiterlabs/arbiter/session"
	"github.com/arbiterlabs/arbiter/stage"
)

// ErrTooManyRuns reports that MaxConcurrentRuns runs are already in flight.
var ErrTooManyRuns = errors.New("maximum concurrent runs reached")

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// Config tunes concurrency, buffering and timeouts.
	Config Config
	// Validators run during quality control, in order.
	Validators []core.Validator
	// Reviser re-synthesizes between quality iterations. Nil keeps the
	// aggregate unchanged across iterations.
	Reviser core.Reviser
	// SessionStore persists run sessions. Defaults to the in-memory store.
	SessionStore core.SessionStore
	// LearningStore receives the LEARNING phase write. Nil skips learning.
	LearningStore core.LearningStore
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
	// RetryOptions tune the per-invocation retry policy.
	RetryOptions []func(o *guard.RetryOptions)
	// BreakerOptions tune the per-category circuit breakers.
	BreakerOptions []func(o *guard.BreakerOptions)
}

// Engine orchestrates multi-agent analysis runs: it resolves the stage plan,
// executes stages under the failure policies, gates output through quality
// control and persists learning patterns. Public methods are safe for
// concurrent use.
type Engine struct {
	registry *registry.Registry
	invoker  core.Invoker
	cfg      Config

	validators    []core.Validator
	reviser       core.Reviser
	sessionStore  core.SessionStore
	learningStore core.LearningStore
	logger        logging.Logger

	breakers *guard.BreakerSet
	retrier  *guard.Retrier
	executor *stage.Executor

	runSlots   chan struct{}
	mu         sync.RWMutex
	activeRuns map[string]context.CancelFunc
}

// New constructs an Engine over the registry and invoker with optional
// overrides.
func New(reg *registry.Registry, invoker core.Invoker, optFns ...func(o *Options)) (*Engine, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, fmt.Errorf("%w: registry must hold at least one agent", core.ErrConfiguration)
	}
	if invoker == nil {
		return nil, fmt.Errorf("%w: invoker must not be nil", core.ErrConfiguration)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	cfg := opts.Config.withDefaults()

	breakerOpts := append([]func(o *guard.BreakerOptions){func(o *guard.BreakerOptions) {
		o.Logger = opts.Logger
	}}, opts.BreakerOptions...)
	retryOpts := append([]func(o *guard.RetryOptions){func(o *guard.RetryOptions) {
		o.Logger = opts.Logger
	}}, opts.RetryOptions...)

	e := &Engine{
		registry:      reg,
		invoker:       invoker,
		cfg:           cfg,
		validators:    opts.Validators,
		reviser:       opts.Reviser,
		sessionStore:  opts.SessionStore,
		learningStore: opts.LearningStore,
		logger:        opts.Logger,
		breakers:      guard.NewBreakerSet(breakerOpts...),
		retrier:       guard.NewRetrier(retryOpts...),
		runSlots:      make(chan struct{}, cfg.MaxConcurrentRuns),
		activeRuns:    make(map[string]context.CancelFunc),
	}
	e.executor = stage.NewExecutor(invoker, func(o *stage.Options) {
		o.MaxConcurrent = cfg.MaxConcurrentAgents
		o.PartialFailureThreshold = cfg.PartialFailureThreshold
		o.DefaultAgentTimeout = cfg.DefaultAgentTimeout
		o.Retry = e.retrier
		o.Breakers = e.breakers
		o.Directory = reg
		o.Logger = opts.Logger
	})
	return e, nil
}

// Run starts an asynchronous orchestration run. It returns the run ID, a
// progress event channel and an error channel; both channels close when the
// run ends. The error channel delivers at most one terminal error. Events
// are dropped rather than blocking the run when the caller falls behind.
func (e *Engine) Run(ctx context.Context, req core.RunRequest) (string, <-chan core.ProgressEvent, <-chan error, error) {
	select {
	case e.runSlots <- struct{}{}:
	default:
		return "", nil, nil, ErrTooManyRuns
	}

	runID := core.NewID()
	events := make(chan core.ProgressEvent, e.cfg.EventBufferSize)
	errCh := make(chan error, 1)
	sink := newChannelSink(events)

	coord, err := session.NewCoordinator(runID, e.sessionStore, func(o *session.CoordinatorOptions) {
		o.Sink = sink
		o.Logger = e.logger
	})
	if err != nil {
		<-e.runSlots
		return "", nil, nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	e.mu.Lock()
	e.activeRuns[runID] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.activeRuns, runID)
			e.mu.Unlock()
			<-e.runSlots
			if dropped := sink.Dropped(); dropped > 0 {
				e.logger.Warn("progress events dropped", "run_id", runID, "dropped", dropped)
			}
			close(events)
			close(errCh)
		}()

		if err := e.execute(runCtx, coord, req); err != nil {
			errCh <- err
		}
	}()

	return runID, events, errCh, nil
}

// RunSync runs synchronously: it drains events internally and returns the
// final session snapshot.
func (e *Engine) RunSync(ctx context.Context, req core.RunRequest) (*core.RunSession, error) {
	runID, events, errCh, err := e.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	for range events {
	}
	runErr := <-errCh
	sess, getErr := e.GetSession(runID)
	if getErr != nil {
		return nil, getErr
	}
	return sess, runErr
}

// CancelRun cancels an in-flight run. The run transitions to FAILED with
// reason "Cancelled"; unknown or already finished run IDs report an error.
func (e *Engine) CancelRun(runID string) error {
	e.mu.RLock()
	cancel, ok := e.activeRuns[runID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run %q is not active", runID)
	}
	cancel()
	return nil
}

// GetSession returns a clone of the run's session record.
func (e *Engine) GetSession(runID string) (*core.RunSession, error) {
	return e.sessionStore.Get(runID)
}

// execute drives one run through the phase machine. The returned error (if
// any) is the terminal run error already recorded on the session.
func (e *Engine) execute(ctx context.Context, coord *session.Coordinator, req core.RunRequest) error {
	runID := coord.RunID()
	logger := e.logger
	started := time.Now()

	fail := func(err error) error {
		if ferr := coord.Fail(failureReason(ctx, err)); ferr != nil {
			logger.Error("recording failure state failed", "run_id", runID, "error", ferr.Error())
		}
		return err
	}

	// PLANNING: resolve the requested set into a stage plan.
	if err := coord.Advance(core.PhasePlanning); err != nil {
		return fail(err)
	}
	requested := req.Agents
	if len(requested) == 0 {
		requested = e.registry.Enabled()
	}
	p, err := plan.Resolve(e.registry, requested)
	if err != nil {
		return fail(err)
	}
	if req.Mode == core.ModeSequential {
		p = p.Sequential()
	}
	logger.Info("plan resolved", "run_id", runID, "stages", len(p.Stages), "agents", p.Size(), "implicit", len(p.Implicit), "mode", req.Mode.String())

	// EXECUTING: stages in order, results flowing forward.
	if err := coord.Advance(core.PhaseExecuting); err != nil {
		return fail(err)
	}
	prior := make(map[string]core.AgentResult)
	for i, st := range p.Stages {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("%w: %w", core.ErrCancelled, err))
		}
		results, stageErr := e.executor.ExecuteStage(ctx, i, st, req.Payload, prior)
		if err := recordResults(coord, results); err != nil {
			return fail(err)
		}
		for name, r := range results {
			prior[name] = r
		}
		if stageErr != nil {
			return fail(stageErr)
		}
	}

	// VALIDATING: synthesize and gate through the quality loop.
	if err := coord.Advance(core.PhaseValidating); err != nil {
		return fail(err)
	}
	agg := core.Aggregate{Summary: synthesize(prior), Results: prior}
	loop := quality.NewLoop(e.validators, func(o *quality.Options) {
		o.Reviser = e.reviser
		o.Logger = logger
	})
	agg, reports, err := loop.Run(ctx, agg, req.Quality)
	for _, report := range reports {
		if rerr := coord.RecordQualityIteration(report); rerr != nil {
			return fail(rerr)
		}
	}
	if err != nil {
		return fail(err)
	}
	passed := quality.Passed(reports)

	// LEARNING: fire-and-forget persistence, never blocks completion.
	if e.learningStore != nil {
		if err := coord.Advance(core.PhaseLearning); err != nil {
			return fail(err)
		}
		resultsCopy := make(map[string]core.AgentResult, len(prior))
		for k, v := range prior {
			resultsCopy[k] = v
		}
		go func() {
			learnCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := e.learningStore.Persist(learnCtx, runID, resultsCopy, e.extractPatterns(resultsCopy)); err != nil {
				logger.Warn("learning persistence failed", "run_id", runID, "error", err.Error())
			}
		}()
	}

	if err := coord.Complete(passed, agg.Summary); err != nil {
		return fail(err)
	}
	if err := e.sessionStore.Archive(runID); err != nil {
		logger.Warn("archiving session failed", "run_id", runID, "error", err.Error())
	}
	logger.Info("run finished", "run_id", runID, "quality_passed", passed, "duration", time.Since(started).String())
	return nil
}

// recordResults stores stage results in deterministic name order.
func recordResults(coord *session.Coordinator, results map[string]core.AgentResult) error {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := coord.RecordResult(results[name]); err != nil {
			return err
		}
	}
	return nil
}

// failureReason folds an error into the session failure reason, naming
// cancellation and timeout explicitly.
func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return "Cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "Run timeout exceeded"
	default:
		return err.Error()
	}
}

// synthesize builds the baseline summary the quality loop then validates and
// revises. Payloads of successful agents are joined in name order so the
// summary is deterministic.
func synthesize(results map[string]core.AgentResult) string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	succeeded := 0
	for _, name := range names {
		if results[name].Succeeded() {
			succeeded++
		}
	}
	fmt.Fprintf(&b, "Analysis across %d agents (%d succeeded).\n", len(names), succeeded)
	for _, name := range names {
		r := results[name]
		if !r.Succeeded() {
			fmt.Fprintf(&b, "\n[%s] %s: %s\n", name, r.Status, r.Err)
			continue
		}
		fmt.Fprintf(&b, "\n[%s]\n%s\n", name, strings.TrimSpace(r.Payload))
		for _, f := range r.Findings {
			fmt.Fprintf(&b, "- (%s) %s\n", f.Severity, f.Message)
		}
	}
	return strings.TrimSpace(b.String())
}

// extractPatterns distills high-confidence observations worth keeping for
// future runs.
func (e *Engine) extractPatterns(results map[string]core.AgentResult) []core.Pattern {
	var patterns []core.Pattern
	for _, r := range results {
		if !r.Succeeded() || r.Confidence < 0.8 {
			continue
		}
		domain := ""
		if d, ok := e.registry.Lookup(r.Agent); ok {
			domain = d.Domain
		}
		for _, f := range r.Findings {
			if f.Severity == core.SeverityInfo {
				continue
			}
			patterns = append(patterns, core.Pattern{
				Agent:       r.Agent,
				Domain:      domain,
				Description: f.Message,
				Confidence:  r.Confidence,
			})
		}
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Agent != patterns[j].Agent {
			return patterns[i].Agent < patterns[j].Agent
		}
		return patterns[i].Description < patterns[j].Description
	})
	return patterns
}
