// Package arbiter provides a high-level façade over the orchestration engine
// and its services (agent registry, sessions, quality control, learning &
// logging) enabling rapid construction of quality-gated multi-agent analysis
// pipelines. Most applications interact with this package by:
//  1. Creating an Arbiter via New() (optionally overriding default in-memory services)
//  2. Registering agent descriptors and their invocation functions
//  3. Starting runs asynchronously (Run) or synchronously (RunSync)
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable learning store,
// model-backed validators and a structured logger.
package arbiter

import (
	"context"
	"sync"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/engine"
	"github.com/arbiterlabs/arbiter/guard"
	"github.com/arbiterlabs/arbiter/invoke"
	"github.com/arbiterlabs/arbiter/logging"
	"github.com/arbiterlabs/arbiter/registry"
	"github.com/arbiterlabs/arbiter/session"
)

// Options configures the Arbiter instance.
type Options struct {
	// EngineConfig tunes concurrency, buffering and timeouts.
	EngineConfig engine.Config

	// Invoker executes agent work. Defaults to a fresh FuncInvoker; use
	// RegisterAgentFunc to populate it, or supply a custom implementation
	// (e.g. invoke.NewModelInvoker).
	Invoker core.Invoker

	// Validators gate the aggregated output during quality control.
	Validators []core.Validator

	// Reviser re-synthesizes between quality iterations.
	Reviser core.Reviser

	// SessionStore persists run sessions (defaults to in-memory).
	SessionStore core.SessionStore

	// LearningStore receives patterns from completed runs. Nil disables the
	// LEARNING phase.
	LearningStore core.LearningStore

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger

	// RetryOptions and BreakerOptions tune the external-call guards.
	RetryOptions   []func(o *guard.RetryOptions)
	BreakerOptions []func(o *guard.BreakerOptions)
}

// Arbiter is the high-level façade aggregating the registry, the invoker and
// the underlying engine. The engine is built lazily on the first run so
// agents can be registered in any order after New().
type Arbiter struct {
	opts     Options
	registry *registry.Registry
	funcs    *invoke.FuncInvoker

	mu     sync.Mutex
	engine *engine.Engine
}

// New creates a new Arbiter instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Arbiter {
	opts := Options{
		EngineConfig: engine.DefaultConfig(),
		SessionStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Arbiter{opts: opts, registry: registry.New()}
	if opts.Invoker == nil {
		a.funcs = invoke.NewFuncInvoker()
		a.opts.Invoker = a.funcs
	}
	return a
}

// Registry exposes the underlying agent registry, e.g. to load descriptors
// from YAML via registry.LoadYAML and re-register them here.
func (a *Arbiter) Registry() *registry.Registry { return a.registry }

// RegisterAgent adds an agent descriptor.
func (a *Arbiter) RegisterAgent(d core.AgentDescriptor) error {
	return a.registry.Register(d)
}

// RegisterAgentFunc adds a descriptor together with its work function. It
// requires the default FuncInvoker (no custom Invoker override).
func (a *Arbiter) RegisterAgentFunc(d core.AgentDescriptor, fn invoke.Func) error {
	if a.funcs == nil {
		return core.ErrConfiguration
	}
	if err := a.registry.Register(d); err != nil {
		return err
	}
	a.funcs.Register(d.Name, fn)
	return nil
}

// Run starts an asynchronous orchestration run returning run ID plus event
// and error channels.
func (a *Arbiter) Run(ctx context.Context, req core.RunRequest) (string, <-chan core.ProgressEvent, <-chan error, error) {
	eng, err := a.ensureEngine()
	if err != nil {
		return "", nil, nil, err
	}
	return eng.Run(ctx, req)
}

// RunSync is a synchronous helper returning the final session snapshot.
func (a *Arbiter) RunSync(ctx context.Context, req core.RunRequest) (*core.RunSession, error) {
	eng, err := a.ensureEngine()
	if err != nil {
		return nil, err
	}
	return eng.RunSync(ctx, req)
}

// CancelRun cancels an in-flight run.
func (a *Arbiter) CancelRun(runID string) error {
	a.mu.Lock()
	eng := a.engine
	a.mu.Unlock()
	if eng == nil {
		return core.ErrConfiguration
	}
	return eng.CancelRun(runID)
}

// GetSession returns a clone of a run's session record.
func (a *Arbiter) GetSession(runID string) (*core.RunSession, error) {
	a.mu.Lock()
	eng := a.engine
	a.mu.Unlock()
	if eng == nil {
		return nil, core.ErrConfiguration
	}
	return eng.GetSession(runID)
}

func (a *Arbiter) ensureEngine() (*engine.Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine != nil {
		return a.engine, nil
	}
	eng, err := engine.New(a.registry, a.opts.Invoker, func(o *engine.Options) {
		o.Config = a.opts.EngineConfig
		o.Validators = a.opts.Validators
		o.Reviser = a.opts.Reviser
		o.SessionStore = a.opts.SessionStore
		o.LearningStore = a.opts.LearningStore
		o.Logger = a.opts.Logger
		o.RetryOptions = a.opts.RetryOptions
		o.BreakerOptions = a.opts.BreakerOptions
	})
	if err != nil {
		return nil, err
	}
	a.engine = eng
	return eng, nil
}
