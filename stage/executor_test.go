package stage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/internal/testutil"
	"github.com/arbiterlabs/arbiter/plan"
)

// mapDirectory is a plan.Directory test double.
type mapDirectory map[string]core.AgentDescriptor

func (m mapDirectory) Lookup(name string) (core.AgentDescriptor, bool) {
	d, ok := m[name]
	return d, ok
}

func stageOf(descs ...core.AgentDescriptor) plan.Stage {
	return plan.Stage{Agents: descs}
}

func directoryOf(descs ...core.AgentDescriptor) mapDirectory {
	m := make(mapDirectory, len(descs))
	for _, d := range descs {
		m[d.Name] = d
	}
	return m
}

func TestExecuteStage_AllSucceed(t *testing.T) {
	inv := testutil.NewScriptedInvoker()
	inv.Succeed("a", "out-a")
	inv.Succeed("b", "out-b")

	e := NewExecutor(inv)
	st := stageOf(
		testutil.NewDescriptorBuilder("a").Build(),
		testutil.NewDescriptorBuilder("b").Build(),
	)

	results, err := e.ExecuteStage(context.Background(), 0, st, core.Payload{}, nil)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "out-a", results["a"].Payload)
	assert.True(t, results["a"].Succeeded())
	assert.True(t, results["b"].Succeeded())
}

func TestExecuteStage_ThresholdBoundary(t *testing.T) {
	// 5 agents, 2 required failures: ratio 0.6 is exactly the default
	// threshold and the run continues.
	mk := func(threshold float64) (map[string]core.AgentResult, error) {
		inv := testutil.NewScriptedInvoker()
		inv.Succeed("a", "")
		inv.Succeed("b", "")
		inv.Succeed("c", "")
		inv.FailWith("d", errors.New("boom"))
		inv.FailWith("e", errors.New("boom"))

		e := NewExecutor(inv, func(o *Options) {
			o.PartialFailureThreshold = threshold
		})
		st := stageOf(
			testutil.NewDescriptorBuilder("a").Build(),
			testutil.NewDescriptorBuilder("b").Build(),
			testutil.NewDescriptorBuilder("c").Build(),
			testutil.NewDescriptorBuilder("d").Required().Build(),
			testutil.NewDescriptorBuilder("e").Required().Build(),
		)
		return e.ExecuteStage(context.Background(), 0, st, core.Payload{}, nil)
	}

	results, err := mk(DefaultPartialFailureThreshold)
	assert.NoError(t, err)
	assert.Len(t, results, 5)

	results, err = mk(0.61)
	assert.ErrorIs(t, err, ErrThresholdBreached)
	assert.Len(t, results, 5)
}

func TestExecuteStage_OptionalFailuresNeverFailStage(t *testing.T) {
	// Everything fails but nothing is required: the stage verdict passes.
	inv := testutil.NewScriptedInvoker()
	inv.FailWith("a", errors.New("boom"))
	inv.FailWith("b", errors.New("boom"))

	e := NewExecutor(inv)
	st := stageOf(
		testutil.NewDescriptorBuilder("a").Build(),
		testutil.NewDescriptorBuilder("b").Build(),
	)

	results, err := e.ExecuteStage(context.Background(), 0, st, core.Payload{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, core.StatusFailed, results["a"].Status)
	assert.Equal(t, core.StatusFailed, results["b"].Status)
}

func TestExecuteStage_SkipOnRequiredDependencyFailure(t *testing.T) {
	dep := testutil.NewDescriptorBuilder("dep").Required().Build()
	child := testutil.NewDescriptorBuilder("child").DependsOn("dep").Build()

	inv := testutil.NewScriptedInvoker()
	e := NewExecutor(inv, func(o *Options) {
		o.Directory = directoryOf(dep, child)
	})

	prior := map[string]core.AgentResult{
		"dep": testutil.NewResultBuilder("dep").Status(core.StatusFailed).Err("boom").Build(),
	}
	results, err := e.ExecuteStage(context.Background(), 1, stageOf(child), core.Payload{}, prior)
	assert.NoError(t, err)
	assert.Equal(t, core.StatusSkipped, results["child"].Status)
	assert.Contains(t, results["child"].Err, "dep")
	// The child was never invoked.
	assert.Empty(t, inv.Order())
}

func TestExecuteStage_OptionalDependencyFailureDoesNotBlock(t *testing.T) {
	dep := testutil.NewDescriptorBuilder("dep").Build() // optional
	child := testutil.NewDescriptorBuilder("child").DependsOn("dep").Build()

	inv := testutil.NewScriptedInvoker()
	inv.Succeed("child", "ran anyway")
	e := NewExecutor(inv, func(o *Options) {
		o.Directory = directoryOf(dep, child)
	})

	prior := map[string]core.AgentResult{
		"dep": testutil.NewResultBuilder("dep").Status(core.StatusFailed).Err("boom").Build(),
	}
	results, err := e.ExecuteStage(context.Background(), 1, stageOf(child), core.Payload{}, prior)
	assert.NoError(t, err)
	assert.True(t, results["child"].Succeeded())
	assert.Equal(t, []string{"child"}, inv.Order())
}

func TestExecuteStage_TimeoutMarksTimedOut(t *testing.T) {
	inv := testutil.NewScriptedInvoker()
	inv.Script("slow", func(ctx context.Context) (core.AgentResult, error) {
		select {
		case <-ctx.Done():
			return core.AgentResult{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return core.AgentResult{Status: core.StatusSuccess}, nil
		}
	})

	e := NewExecutor(inv)
	st := stageOf(testutil.NewDescriptorBuilder("slow").Timeout(30 * time.Millisecond).Build())

	results, err := e.ExecuteStage(context.Background(), 0, st, core.Payload{}, nil)
	assert.NoError(t, err) // slow is optional, the stage verdict passes
	assert.Equal(t, core.StatusTimedOut, results["slow"].Status)
}

func TestExecuteStage_ConcurrencyBounded(t *testing.T) {
	var mu sync.Mutex
	inflight, peak := 0, 0

	inv := testutil.NewScriptedInvoker()
	st := plan.Stage{}
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, name := range names {
		st.Agents = append(st.Agents, testutil.NewDescriptorBuilder(name).Build())
		inv.Script(name, func(context.Context) (core.AgentResult, error) {
			mu.Lock()
			inflight++
			if inflight > peak {
				peak = inflight
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inflight--
			mu.Unlock()
			return core.AgentResult{Status: core.StatusSuccess}, nil
		})
	}

	e := NewExecutor(inv, func(o *Options) {
		o.MaxConcurrent = 2
	})
	results, err := e.ExecuteStage(context.Background(), 0, st, core.Payload{}, nil)
	assert.NoError(t, err)
	assert.Len(t, results, len(names))
	assert.LessOrEqual(t, peak, 2)
}

func TestExecuteStage_EmptyStage(t *testing.T) {
	e := NewExecutor(testutil.NewScriptedInvoker())
	results, err := e.ExecuteStage(context.Background(), 0, plan.Stage{}, core.Payload{}, nil)
	assert.NoError(t, err)
	assert.Empty(t, results)
}
