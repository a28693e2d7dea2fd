package plan

import (
	"sort"

	"github.com/arbiterlabs/arbiter/core"
)

// Directory looks descriptors up by name. *registry.Registry implements it.
type Directory interface {
	Lookup(name string) (core.AgentDescriptor, bool)
}

// Stage is one topological level of the plan: agents with no dependencies
// among each other, ordered by descending priority then by name.
type Stage struct {
	Agents []core.AgentDescriptor
}

// Names returns the agent names of the stage in execution order.
func (s Stage) Names() []string {
	names := make([]string, len(s.Agents))
	for i, a := range s.Agents {
		names[i] = a.Name
	}
	return names
}

// Plan is the resolved execution order for one run request.
type Plan struct {
	Stages []Stage
	// Implicit names the agents that were not requested but pulled in as
	// transitive dependencies.
	Implicit []string
}

// Size returns the total number of agents across all stages.
func (p *Plan) Size() int {
	n := 0
	for _, s := range p.Stages {
		n += len(s.Agents)
	}
	return n
}

// ImplicitlyIncluded reports whether the named agent was added by the
// resolver rather than requested.
func (p *Plan) ImplicitlyIncluded(name string) bool {
	for _, n := range p.Implicit {
		if n == name {
			return true
		}
	}
	return false
}

// Sequential flattens the plan into single-agent stages for the
// strict-sequential execution mode. Stage order and intra-stage order are
// preserved, so dependency ordering still holds.
func (p *Plan) Sequential() *Plan {
	flat := &Plan{Implicit: p.Implicit}
	for _, s := range p.Stages {
		for _, a := range s.Agents {
			flat.Stages = append(flat.Stages, Stage{Agents: []core.AgentDescriptor{a}})
		}
	}
	return flat
}

// Resolve turns the requested agent names into an ordered stage plan using
// Kahn's topological sort restricted to the induced subgraph of
// requested-plus-dependencies.
//
// Requested or dependency names absent from the directory fail with
// *core.UnknownAgentError; a cycle in the induced subgraph fails with
// *core.CyclicDependencyError. Both match core.ErrConfiguration and surface
// before any stage executes.
//
// Resolution is deterministic: equal-priority ties within a level order by
// name, so the same registry and request always yield the same plan.
func Resolve(dir Directory, requested []string) (*Plan, error) {
	included := make(map[string]core.AgentDescriptor)
	explicit := make(map[string]bool, len(requested))

	// Close over transitive dependencies breadth-first.
	queue := make([]string, 0, len(requested))
	for _, name := range requested {
		explicit[name] = true
		queue = append(queue, name)
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, seen := included[name]; seen {
			continue
		}
		d, ok := dir.Lookup(name)
		if !ok {
			return nil, &core.UnknownAgentError{Name: name}
		}
		included[name] = d
		queue = append(queue, d.DependsOn...)
	}

	// Kahn's algorithm over the induced subgraph: peel zero-indegree levels.
	indegree := make(map[string]int, len(included))
	dependents := make(map[string][]string, len(included))
	for name, d := range included {
		indegree[name] += 0
		for _, dep := range d.DependsOn {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	p := &Plan{}
	remaining := len(included)
	for remaining > 0 {
		var level []core.AgentDescriptor
		for name, deg := range indegree {
			if deg == 0 {
				level = append(level, included[name])
			}
		}
		if len(level) == 0 {
			return nil, &core.CyclicDependencyError{Cycle: extractCycle(included, indegree)}
		}
		sort.Slice(level, func(i, j int) bool {
			if level[i].Priority != level[j].Priority {
				return level[i].Priority > level[j].Priority
			}
			return level[i].Name < level[j].Name
		})
		for _, d := range level {
			delete(indegree, d.Name)
			for _, dep := range dependents[d.Name] {
				if _, ok := indegree[dep]; ok {
					indegree[dep]--
				}
			}
		}
		p.Stages = append(p.Stages, Stage{Agents: level})
		remaining -= len(level)
	}

	for name := range included {
		if !explicit[name] {
			p.Implicit = append(p.Implicit, name)
		}
	}
	sort.Strings(p.Implicit)

	return p, nil
}

// extractCycle walks the still-unresolved subgraph to produce one concrete
// cycle for the error message. Every remaining node has indegree > 0, so a
// walk along dependency edges must revisit a node.
func extractCycle(included map[string]core.AgentDescriptor, indegree map[string]int) []string {
	// Deterministic starting point.
	var start string
	for name := range indegree {
		if start == "" || name < start {
			start = name
		}
	}

	seen := make(map[string]int)
	var path []string
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			cycle := append([]string{}, path[at:]...)
			return append(cycle, cur)
		}
		seen[cur] = len(path)
		path = append(path, cur)

		// Follow the first unresolved dependency, name order for determinism.
		deps := append([]string{}, included[cur].DependsOn...)
		sort.Strings(deps)
		next := ""
		for _, dep := range deps {
			if _, unresolved := indegree[dep]; unresolved {
				next = dep
				break
			}
		}
		if next == "" {
			// Should be unreachable: an unresolved node keeps an
			// unresolved dependency by construction.
			return path
		}
		cur = next
	}
}
