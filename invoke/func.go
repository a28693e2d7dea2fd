package invoke

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arbiterlabs/arbiter/core"
)

// Func is the work function of one code-backed agent. Implementations must
// honor ctx and classify retryable failures with core.Transient.
type Func func(ctx context.Context, payload core.Payload, prior map[string]core.AgentResult) (core.AgentResult, error)

// FuncInvoker dispatches invocations to registered Go functions by agent
// name. Registration happens at startup; Invoke is read-locked only.
type FuncInvoker struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewFuncInvoker creates an empty FuncInvoker.
func NewFuncInvoker() *FuncInvoker {
	return &FuncInvoker{funcs: make(map[string]Func)}
}

// Register binds fn to the named agent, replacing any previous binding.
func (i *FuncInvoker) Register(name string, fn Func) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.funcs[name] = fn
}

// Invoke implements core.Invoker. An agent without a registered function is
// a permanent configuration failure, never retried.
func (i *FuncInvoker) Invoke(ctx context.Context, agent core.AgentDescriptor, payload core.Payload, prior map[string]core.AgentResult) (core.AgentResult, error) {
	i.mu.RLock()
	fn, ok := i.funcs[agent.Name]
	i.mu.RUnlock()
	if !ok {
		return core.AgentResult{}, fmt.Errorf("%w: no function registered for agent %q", core.ErrConfiguration, agent.Name)
	}

	started := time.Now()
	res, err := fn(ctx, payload, prior)
	if err != nil {
		return core.AgentResult{}, err
	}
	res.Agent = agent.Name
	if res.Started.IsZero() {
		res.Started = started
	}
	if res.Completed.IsZero() {
		res.Completed = time.Now()
	}
	return res, nil
}
