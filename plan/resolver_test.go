package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/internal/testutil"
)

// mapDirectory is a Directory test double.
type mapDirectory map[string]core.AgentDescriptor

func (m mapDirectory) Lookup(name string) (core.AgentDescriptor, bool) {
	d, ok := m[name]
	return d, ok
}

func dir(descs ...core.AgentDescriptor) mapDirectory {
	m := make(mapDirectory, len(descs))
	for _, d := range descs {
		m[d.Name] = d
	}
	return m
}

func TestResolve_DiamondIntoStages(t *testing.T) {
	d := dir(
		testutil.NewDescriptorBuilder("a").Build(),
		testutil.NewDescriptorBuilder("b").Build(),
		testutil.NewDescriptorBuilder("c").DependsOn("a", "b").Build(),
	)

	p, err := Resolve(d, []string{"c"})
	assert.NoError(t, err)
	assert.Len(t, p.Stages, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, p.Stages[0].Names())
	assert.Equal(t, []string{"c"}, p.Stages[1].Names())
}

func TestResolve_ImplicitDependencies(t *testing.T) {
	d := dir(
		testutil.NewDescriptorBuilder("parse").Build(),
		testutil.NewDescriptorBuilder("security").DependsOn("parse").Build(),
	)

	p, err := Resolve(d, []string{"security"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"parse"}, p.Implicit)
	assert.True(t, p.ImplicitlyIncluded("parse"))
	assert.False(t, p.ImplicitlyIncluded("security"))
}

func TestResolve_DependencyOrderingHolds(t *testing.T) {
	d := dir(
		testutil.NewDescriptorBuilder("a").Build(),
		testutil.NewDescriptorBuilder("b").DependsOn("a").Build(),
		testutil.NewDescriptorBuilder("c").DependsOn("b").Build(),
		testutil.NewDescriptorBuilder("d").DependsOn("a", "c").Build(),
	)

	p, err := Resolve(d, []string{"d"})
	assert.NoError(t, err)

	position := map[string]int{}
	for i, st := range p.Stages {
		for _, name := range st.Names() {
			position[name] = i
		}
	}
	for name, desc := range d {
		for _, dep := range desc.DependsOn {
			assert.Lessf(t, position[dep], position[name], "%s must run before %s", dep, name)
		}
	}
}

func TestResolve_PriorityThenNameWithinStage(t *testing.T) {
	d := dir(
		testutil.NewDescriptorBuilder("zeta").Priority(10).Build(),
		testutil.NewDescriptorBuilder("alpha").Build(),
		testutil.NewDescriptorBuilder("beta").Build(),
	)

	p, err := Resolve(d, []string{"zeta", "alpha", "beta"})
	assert.NoError(t, err)
	assert.Len(t, p.Stages, 1)
	assert.Equal(t, []string{"zeta", "alpha", "beta"}, p.Stages[0].Names())
}

func TestResolve_Deterministic(t *testing.T) {
	d := dir(
		testutil.NewDescriptorBuilder("a").Build(),
		testutil.NewDescriptorBuilder("b").Build(),
		testutil.NewDescriptorBuilder("c").Build(),
		testutil.NewDescriptorBuilder("d").DependsOn("a", "b", "c").Build(),
	)

	first, err := Resolve(d, []string{"d"})
	assert.NoError(t, err)
	for i := 0; i < 20; i++ {
		p, err := Resolve(d, []string{"d"})
		assert.NoError(t, err)
		assert.Equal(t, first, p)
	}
}

func TestResolve_UnknownAgent(t *testing.T) {
	d := dir(testutil.NewDescriptorBuilder("a").DependsOn("ghost").Build())

	_, err := Resolve(d, []string{"a"})
	var unknown *core.UnknownAgentError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Name)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = Resolve(d, []string{"missing"})
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Name)
}

func TestResolve_CycleDetected(t *testing.T) {
	d := dir(
		testutil.NewDescriptorBuilder("a").DependsOn("b").Build(),
		testutil.NewDescriptorBuilder("b").DependsOn("c").Build(),
		testutil.NewDescriptorBuilder("c").DependsOn("a").Build(),
	)

	_, err := Resolve(d, []string{"a"})
	var cyclic *core.CyclicDependencyError
	assert.ErrorAs(t, err, &cyclic)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	// The reported cycle closes on itself.
	assert.GreaterOrEqual(t, len(cyclic.Cycle), 2)
	assert.Equal(t, cyclic.Cycle[0], cyclic.Cycle[len(cyclic.Cycle)-1])
}

func TestResolve_CycleBeatsUnknownOnlyWhenReached(t *testing.T) {
	// A two-node cycle not involving unknown names still fails as a cycle.
	d := dir(
		testutil.NewDescriptorBuilder("x").DependsOn("y").Build(),
		testutil.NewDescriptorBuilder("y").DependsOn("x").Build(),
	)
	_, err := Resolve(d, []string{"x", "y"})
	assert.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestPlan_Sequential(t *testing.T) {
	d := dir(
		testutil.NewDescriptorBuilder("a").Build(),
		testutil.NewDescriptorBuilder("b").Build(),
		testutil.NewDescriptorBuilder("c").DependsOn("a", "b").Build(),
	)

	p, err := Resolve(d, []string{"c"})
	assert.NoError(t, err)

	flat := p.Sequential()
	assert.Equal(t, 3, len(flat.Stages))
	for _, st := range flat.Stages {
		assert.Len(t, st.Agents, 1)
	}
	// Dependency order survives flattening.
	assert.Equal(t, "c", flat.Stages[2].Names()[0])
	assert.Equal(t, p.Size(), flat.Size())
}
