package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/internal/testutil"
)

// scriptedValidator returns one scripted score per iteration; the last
// repeats once exhausted.
type scriptedValidator struct {
	name   string
	scores []core.Score
	err    error
	calls  int
}

func (v *scriptedValidator) Name() string { return v.name }

func (v *scriptedValidator) Validate(context.Context, core.Aggregate) (core.Score, error) {
	v.calls++
	if v.err != nil {
		return core.Score{}, v.err
	}
	idx := v.calls - 1
	if idx >= len(v.scores) {
		idx = len(v.scores) - 1
	}
	return v.scores[idx], nil
}

// appendingReviser tags the summary so revision is observable.
type appendingReviser struct{ calls int }

func (r *appendingReviser) Revise(_ context.Context, agg core.Aggregate, _ []string) (core.Aggregate, error) {
	r.calls++
	agg.Summary += " (revised)"
	return agg, nil
}

func sampleAggregate() core.Aggregate {
	return core.Aggregate{
		Summary: "initial summary",
		Results: map[string]core.AgentResult{
			"a": testutil.NewResultBuilder("a").Confidence(0.9).Build(),
		},
	}
}

func TestLoop_ConvergesFirstIteration(t *testing.T) {
	v := &scriptedValidator{name: "v", scores: []core.Score{{Confidence: 0.95, Bias: 0.05}}}
	loop := NewLoop([]core.Validator{v})

	agg, reports, err := loop.Run(context.Background(), sampleAggregate(), core.QualityThresholds{})
	assert.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.True(t, reports[0].Converged)
	assert.True(t, Passed(reports))
	assert.Equal(t, "initial summary", agg.Summary)
}

func TestLoop_ConvergesAfterRevision(t *testing.T) {
	v := &scriptedValidator{name: "v", scores: []core.Score{
		{Confidence: 0.5, Bias: 0.0, Instructions: "tighten the summary"},
		{Confidence: 0.95, Bias: 0.0},
	}}
	rev := &appendingReviser{}
	loop := NewLoop([]core.Validator{v}, func(o *Options) {
		o.Reviser = rev
	})

	agg, reports, err := loop.Run(context.Background(), sampleAggregate(), core.QualityThresholds{})
	assert.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.False(t, reports[0].Converged)
	assert.Equal(t, []string{"tighten the summary"}, reports[0].Instructions)
	assert.True(t, reports[1].Converged)
	assert.Equal(t, 1, rev.calls)
	assert.Equal(t, "initial summary (revised)", agg.Summary)
}

func TestLoop_NeverConvergesRunsExactlyMaxIterations(t *testing.T) {
	v := &scriptedValidator{name: "v", scores: []core.Score{{Confidence: 0.3, Bias: 0.5}}}
	loop := NewLoop([]core.Validator{v})

	_, reports, err := loop.Run(context.Background(), sampleAggregate(), core.QualityThresholds{})
	assert.NoError(t, err)
	assert.Len(t, reports, core.DefaultMaxIterations)
	assert.False(t, Passed(reports))
	assert.Equal(t, core.DefaultMaxIterations, v.calls)
}

func TestLoop_BiasBlocksConvergence(t *testing.T) {
	// High confidence alone is not enough; bias must stay under threshold.
	v := &scriptedValidator{name: "v", scores: []core.Score{{Confidence: 0.99, Bias: 0.2}}}
	loop := NewLoop([]core.Validator{v})

	_, reports, err := loop.Run(context.Background(), sampleAggregate(), core.QualityThresholds{})
	assert.NoError(t, err)
	assert.False(t, Passed(reports))
}

func TestLoop_MeanConfidenceWorstBias(t *testing.T) {
	v1 := &scriptedValidator{name: "v1", scores: []core.Score{{Confidence: 1.0, Bias: 0.02}}}
	v2 := &scriptedValidator{name: "v2", scores: []core.Score{{Confidence: 0.8, Bias: 0.08}}}
	loop := NewLoop([]core.Validator{v1, v2})

	_, reports, err := loop.Run(context.Background(), sampleAggregate(), core.QualityThresholds{})
	assert.NoError(t, err)
	assert.InDelta(t, 0.9, reports[0].Confidence, 1e-9)
	assert.InDelta(t, 0.08, reports[0].Bias, 1e-9)
	assert.True(t, reports[0].Converged)
}

func TestLoop_ValidatorErrorAborts(t *testing.T) {
	boom := errors.New("validator crashed")
	v := &scriptedValidator{name: "v", err: boom}
	loop := NewLoop([]core.Validator{v})

	_, reports, err := loop.Run(context.Background(), sampleAggregate(), core.QualityThresholds{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, reports)
}

func TestLoop_ReviserErrorAborts(t *testing.T) {
	v := &scriptedValidator{name: "v", scores: []core.Score{{Confidence: 0.1}}}
	boom := errors.New("reviser crashed")
	loop := NewLoop([]core.Validator{v}, func(o *Options) {
		o.Reviser = failingReviser{err: boom}
	})

	_, reports, err := loop.Run(context.Background(), sampleAggregate(), core.QualityThresholds{})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, reports, 1)
}

type failingReviser struct{ err error }

func (r failingReviser) Revise(context.Context, core.Aggregate, []string) (core.Aggregate, error) {
	return core.Aggregate{}, r.err
}

func TestLoop_NoValidatorsConvergesTrivially(t *testing.T) {
	loop := NewLoop(nil)
	_, reports, err := loop.Run(context.Background(), sampleAggregate(), core.QualityThresholds{})
	assert.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.True(t, Passed(reports))
	assert.Equal(t, 1.0, reports[0].Confidence)
}

func TestLoop_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := &scriptedValidator{name: "v", scores: []core.Score{{Confidence: 1.0}}}
	loop := NewLoop([]core.Validator{v})
	_, _, err := loop.Run(ctx, sampleAggregate(), core.QualityThresholds{})
	assert.ErrorIs(t, err, core.ErrCancelled)
	assert.Zero(t, v.calls)
}
