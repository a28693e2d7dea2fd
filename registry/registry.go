package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arbiterlabs/arbiter/core"
)

// Registry is a named collection of agent descriptors. Registration happens
// at startup; lookups during runs are read-locked only. It implements
// plan.Directory.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]core.AgentDescriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]core.AgentDescriptor)}
}

// Register adds a descriptor. Empty names, duplicate names and self-edges
// are configuration errors. Dependency references are validated lazily by
// the resolver (or eagerly by Validate), so registration order is free.
func (r *Registry) Register(d core.AgentDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("%w: agent name must not be empty", core.ErrConfiguration)
	}
	for _, dep := range d.DependsOn {
		if dep == d.Name {
			return fmt.Errorf("%w: agent %q depends on itself", core.ErrConfiguration, d.Name)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[d.Name]; exists {
		return fmt.Errorf("%w: agent %q already registered", core.ErrConfiguration, d.Name)
	}
	r.agents[d.Name] = d
	return nil
}

// MustRegister registers d and panics on error. Startup convenience.
func (r *Registry) MustRegister(d core.AgentDescriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup implements plan.Directory.
func (r *Registry) Lookup(name string) (core.AgentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.agents[name]
	return d, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled returns the names of all non-disabled agents, sorted. This is the
// agent set of a RunRequest that names no agents.
func (r *Registry) Enabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name, d := range r.agents {
		if !d.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Validate checks that every dependency reference names a registered agent.
// The resolver repeats this check per run; Validate lets startup fail fast.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, d := range r.agents {
		for _, dep := range d.DependsOn {
			if _, ok := r.agents[dep]; !ok {
				return fmt.Errorf("agent %q: %w", name, &core.UnknownAgentError{Name: dep})
			}
		}
	}
	return nil
}
