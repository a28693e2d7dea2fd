package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/guard"
	"github.com/arbiterlabs/arbiter/logging"
	"github.com/arbiterlabs/arbiter/plan"
)

// Default executor tuning.
const (
	DefaultMaxConcurrent           = 5
	DefaultPartialFailureThreshold = 0.6
	DefaultAgentTimeout            = 60 * time.Second

	// stageDeadlineSlack pads the derived stage deadline past the longest
	// member timeout so per-agent timeouts fire first.
	stageDeadlineSlack = 2 * time.Second
)

// ErrThresholdBreached reports that a stage's success ratio fell below the
// partial-failure threshold while a required agent failed. The run must not
// proceed to later stages.
var ErrThresholdBreached = errors.New("stage success ratio below partial-failure threshold")

// Options configures an Executor.
type Options struct {
	// MaxConcurrent bounds in-flight agent invocations within one stage.
	MaxConcurrent int
	// PartialFailureThreshold is the minimum success ratio; a stage below
	// it fails the run only when a required agent is among the failures.
	PartialFailureThreshold float64
	// DefaultAgentTimeout applies to agents without a descriptor timeout.
	DefaultAgentTimeout time.Duration
	// StageDeadline caps the whole stage. Zero derives it from the longest
	// member timeout plus slack.
	StageDeadline time.Duration
	// Retry wraps each invocation. Nil means a single attempt.
	Retry *guard.Retrier
	// Breakers supplies per-category circuit breakers. Nil disables
	// breaker gating.
	Breakers *guard.BreakerSet
	// Directory resolves dependency descriptors when deciding skip
	// propagation. Nil treats every failed dependency as blocking.
	Directory plan.Directory
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Executor runs stages against an Invoker. It is stateless across stages
// apart from the shared breakers, so one Executor serves concurrent runs.
type Executor struct {
	invoker core.Invoker
	opts    Options
}

// NewExecutor creates an Executor with defaults overridden by optFns.
func NewExecutor(invoker core.Invoker, optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxConcurrent:           DefaultMaxConcurrent,
		PartialFailureThreshold: DefaultPartialFailureThreshold,
		DefaultAgentTimeout:     DefaultAgentTimeout,
		Logger:                  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Executor{invoker: invoker, opts: opts}
}

// agentOutcome pairs one agent's result with its stage slot.
type agentOutcome struct {
	result core.AgentResult
}

// ExecuteStage runs every agent of st and returns their results keyed by
// agent name. prior holds results from earlier stages and is read-only here.
//
// Agents whose required dependencies did not succeed are marked
// StatusSkipped without invocation. The rest run concurrently under the
// semaphore; an agent that outlives its timeout is abandoned and recorded
// StatusTimedOut.
//
// The returned error is non-nil only when the stage verdict fails the run:
// success ratio strictly below the threshold AND at least one required agent
// among the failures. Results are returned either way.
func (e *Executor) ExecuteStage(ctx context.Context, index int, st plan.Stage, payload core.Payload, prior map[string]core.AgentResult) (map[string]core.AgentResult, error) {
	started := time.Now()
	results := make(map[string]core.AgentResult, len(st.Agents))

	runnable := make([]core.AgentDescriptor, 0, len(st.Agents))
	for _, d := range st.Agents {
		if reason, skip := e.skipReason(d, prior); skip {
			now := time.Now()
			results[d.Name] = core.AgentResult{
				Agent:     d.Name,
				Status:    core.StatusSkipped,
				Err:       reason,
				Started:   now,
				Completed: now,
			}
			e.opts.Logger.Info("agent skipped", "agent", d.Name, "reason", reason)
			continue
		}
		runnable = append(runnable, d)
	}

	if len(runnable) > 0 {
		stageCtx, cancel := context.WithTimeout(ctx, e.stageDeadline(runnable))
		defer cancel()

		sem := make(chan struct{}, e.opts.MaxConcurrent)
		outcomes := make(chan agentOutcome, len(runnable))
		for _, d := range runnable {
			sem <- struct{}{}
			go func(d core.AgentDescriptor) {
				defer func() { <-sem }()
				outcomes <- agentOutcome{result: e.invokeOne(stageCtx, d, payload, prior)}
			}(d)
		}
		for range runnable {
			o := <-outcomes
			results[o.result.Agent] = o.result
		}
	}

	successes := 0
	requiredFailed := false
	for _, d := range st.Agents {
		r := results[d.Name]
		if r.Succeeded() {
			successes++
		} else if d.Required {
			requiredFailed = true
		}
	}
	e.opts.Logger.Info("stage completed", "stage", index, "size", len(st.Agents), "successes", successes, "duration", time.Since(started).String())

	if len(st.Agents) > 0 {
		ratio := float64(successes) / float64(len(st.Agents))
		if ratio < e.opts.PartialFailureThreshold && requiredFailed {
			return results, fmt.Errorf("stage %d: ratio %.2f < %.2f with required failure: %w",
				index, ratio, e.opts.PartialFailureThreshold, ErrThresholdBreached)
		}
	}
	return results, nil
}

// skipReason reports whether d must be skipped because a required dependency
// did not succeed. Failed optional dependencies do not block: the dependent
// still runs and sees the degraded result in prior.
func (e *Executor) skipReason(d core.AgentDescriptor, prior map[string]core.AgentResult) (string, bool) {
	for _, dep := range d.DependsOn {
		r, ok := prior[dep]
		if !ok {
			// Same-stage dependencies cannot happen by construction; a
			// missing entry means the dependency never ran.
			return fmt.Sprintf("dependency %q produced no result", dep), true
		}
		if r.Succeeded() {
			continue
		}
		if e.depRequired(dep) {
			return fmt.Sprintf("required dependency %q ended %s", dep, r.Status), true
		}
	}
	return "", false
}

// depRequired resolves whether the named dependency is load-bearing.
func (e *Executor) depRequired(name string) bool {
	if e.opts.Directory == nil {
		return true
	}
	d, ok := e.opts.Directory.Lookup(name)
	if !ok {
		return true
	}
	return d.Required
}

// invokeOne runs a single agent with retry, breaker gating and a hard
// timeout. It never returns an error; failures are encoded in the result.
func (e *Executor) invokeOne(ctx context.Context, d core.AgentDescriptor, payload core.Payload, prior map[string]core.AgentResult) core.AgentResult {
	timeout := d.EffectiveTimeout(e.opts.DefaultAgentTimeout)
	agentCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()

	var breaker *guard.Breaker
	if e.opts.Breakers != nil {
		breaker = e.opts.Breakers.Get(d.Category())
	}

	type invokeOut struct {
		result core.AgentResult
		err    error
	}
	done := make(chan invokeOut, 1)
	go func() {
		var res core.AgentResult
		call := func(ctx context.Context) error {
			var err error
			res, err = e.invoker.Invoke(ctx, d, payload, prior)
			return err
		}
		var err error
		if e.opts.Retry != nil {
			err = e.opts.Retry.Do(agentCtx, breaker, call)
		} else {
			if breaker != nil {
				if err = breaker.Allow(); err == nil {
					err = call(agentCtx)
					breaker.Record(err)
				}
			} else {
				err = call(agentCtx)
			}
		}
		done <- invokeOut{result: res, err: err}
	}()

	select {
	case <-agentCtx.Done():
		// Abandon the invocation; the goroutine drains into the buffered
		// channel when it eventually returns.
		r := core.AgentResult{
			Agent:     d.Name,
			Status:    core.StatusTimedOut,
			Err:       fmt.Sprintf("timed out after %s", timeout),
			Started:   started,
			Completed: time.Now(),
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			r.Err = "run cancelled"
		}
		e.opts.Logger.Warn("agent abandoned", "agent", d.Name, "timeout", timeout.String())
		return r
	case out := <-done:
		return e.classify(d, out.result, out.err, started)
	}
}

// classify folds an invocation error into the result record.
func (e *Executor) classify(d core.AgentDescriptor, res core.AgentResult, err error, started time.Time) core.AgentResult {
	res.Agent = d.Name
	if res.Started.IsZero() {
		res.Started = started
	}
	if res.Completed.IsZero() {
		res.Completed = time.Now()
	}
	switch {
	case err == nil:
		// The invoker owns the payload; the Status zero value is success.
	case errors.Is(err, core.ErrCircuitOpen):
		res.Status = core.StatusFailed
		res.Err = err.Error()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, core.ErrTimeout):
		res.Status = core.StatusTimedOut
		res.Err = err.Error()
	default:
		res.Status = core.StatusFailed
		res.Err = err.Error()
	}
	dur := res.Completed.Sub(res.Started)
	e.opts.Logger.Info("agent completed", "agent", d.Name, "status", res.Status.String(), "duration", dur.String())
	return res
}

// stageDeadline derives the stage cap from the longest member timeout.
func (e *Executor) stageDeadline(agents []core.AgentDescriptor) time.Duration {
	if e.opts.StageDeadline > 0 {
		return e.opts.StageDeadline
	}
	max := e.opts.DefaultAgentTimeout
	for _, d := range agents {
		if t := d.EffectiveTimeout(e.opts.DefaultAgentTimeout); t > max {
			max = t
		}
	}
	return max + stageDeadlineSlack
}
