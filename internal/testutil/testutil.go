// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing core model objects (descriptors,
// results, invokers) and asserting behaviors. These helpers are intentionally
// minimal and not intended for production usage.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/arbiterlabs/arbiter/core"
)

// DescriptorBuilder provides a fluent helper for constructing agent
// descriptors in tests. Example:
//
//	d := NewDescriptorBuilder("security").Required().DependsOn("parse").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type DescriptorBuilder struct {
	d core.AgentDescriptor
}

// NewDescriptorBuilder creates a builder for the named agent.
func NewDescriptorBuilder(name string) *DescriptorBuilder {
	return &DescriptorBuilder{d: core.AgentDescriptor{Name: name}}
}

// DependsOn appends dependency names (chainable).
func (b *DescriptorBuilder) DependsOn(deps ...string) *DescriptorBuilder {
	b.d.DependsOn = append(b.d.DependsOn, deps...)
	return b
}

// Required marks the agent load-bearing (chainable).
func (b *DescriptorBuilder) Required() *DescriptorBuilder { b.d.Required = true; return b }

// Timeout sets the per-invocation timeout (chainable).
func (b *DescriptorBuilder) Timeout(t time.Duration) *DescriptorBuilder { b.d.Timeout = t; return b }

// Priority sets the intra-stage priority (chainable).
func (b *DescriptorBuilder) Priority(p int) *DescriptorBuilder { b.d.Priority = p; return b }

// Domain sets the domain tag (chainable).
func (b *DescriptorBuilder) Domain(d string) *DescriptorBuilder { b.d.Domain = d; return b }

// Category sets the circuit-breaker call category (chainable).
func (b *DescriptorBuilder) Category(c string) *DescriptorBuilder { b.d.CallCategory = c; return b }

// Disabled excludes the agent from all-enabled requests (chainable).
func (b *DescriptorBuilder) Disabled() *DescriptorBuilder { b.d.Disabled = true; return b }

// Build returns the descriptor.
func (b *DescriptorBuilder) Build() core.AgentDescriptor { return b.d }

// ResultBuilder provides a fluent helper for constructing agent results.
type ResultBuilder struct {
	r core.AgentResult
}

// NewResultBuilder creates a successful result for the named agent.
func NewResultBuilder(agent string) *ResultBuilder {
	now := time.Now()
	return &ResultBuilder{r: core.AgentResult{
		Agent:      agent,
		Status:     core.StatusSuccess,
		Confidence: 1.0,
		Started:    now,
		Completed:  now,
	}}
}

// Status overrides the status (chainable).
func (b *ResultBuilder) Status(s core.Status) *ResultBuilder { b.r.Status = s; return b }

// Payload sets the result payload (chainable).
func (b *ResultBuilder) Payload(p string) *ResultBuilder { b.r.Payload = p; return b }

// Confidence sets the confidence (chainable).
func (b *ResultBuilder) Confidence(c float64) *ResultBuilder { b.r.Confidence = c; return b }

// Err sets the failure detail (chainable).
func (b *ResultBuilder) Err(e string) *ResultBuilder { b.r.Err = e; return b }

// Finding appends a finding (chainable).
func (b *ResultBuilder) Finding(sev core.Severity, msg, evidence string) *ResultBuilder {
	b.r.Findings = append(b.r.Findings, core.Finding{Severity: sev, Message: msg, Evidence: evidence})
	return b
}

// Build returns the result.
func (b *ResultBuilder) Build() core.AgentResult { return b.r }

// ScriptedInvoker is a core.Invoker test double dispatching per-agent
// functions, recording invocation order.
type ScriptedInvoker struct {
	mu    sync.Mutex
	funcs map[string]func(ctx context.Context) (core.AgentResult, error)
	order []string
}

// NewScriptedInvoker creates an empty ScriptedInvoker. Agents without a
// script succeed with an empty payload.
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{funcs: make(map[string]func(ctx context.Context) (core.AgentResult, error))}
}

// Script binds fn to the named agent.
func (i *ScriptedInvoker) Script(agent string, fn func(ctx context.Context) (core.AgentResult, error)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.funcs[agent] = fn
}

// Succeed scripts a plain success with the given payload.
func (i *ScriptedInvoker) Succeed(agent, payload string) {
	i.Script(agent, func(context.Context) (core.AgentResult, error) {
		return core.AgentResult{Agent: agent, Status: core.StatusSuccess, Payload: payload, Confidence: 1.0}, nil
	})
}

// FailWith scripts a permanent failure.
func (i *ScriptedInvoker) FailWith(agent string, err error) {
	i.Script(agent, func(context.Context) (core.AgentResult, error) {
		return core.AgentResult{}, err
	})
}

// Invoke implements core.Invoker.
func (i *ScriptedInvoker) Invoke(ctx context.Context, agent core.AgentDescriptor, _ core.Payload, _ map[string]core.AgentResult) (core.AgentResult, error) {
	i.mu.Lock()
	i.order = append(i.order, agent.Name)
	fn := i.funcs[agent.Name]
	i.mu.Unlock()

	if fn == nil {
		return core.AgentResult{Agent: agent.Name, Status: core.StatusSuccess, Confidence: 1.0}, nil
	}
	return fn(ctx)
}

// Order returns a copy of the invocation order seen so far.
func (i *ScriptedInvoker) Order() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string{}, i.order...)
}
