package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/logging"
)

// Options configures a Loop.
type Options struct {
	// Reviser re-synthesizes the aggregate between iterations. Defaults to
	// NoopReviser, which keeps the loop bounded even when the aggregate
	// never improves.
	Reviser core.Reviser
	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Loop runs the bounded validate-revise cycle over an aggregate.
type Loop struct {
	validators []core.Validator
	opts       Options
}

// NewLoop creates a Loop over the given validators, which run in the given
// order once per iteration.
func NewLoop(validators []core.Validator, optFns ...func(o *Options)) *Loop {
	opts := Options{
		Reviser: NoopReviser{},
		Clock:   time.Now,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Reviser == nil {
		opts.Reviser = NoopReviser{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Loop{validators: validators, opts: opts}
}

// Run validates agg for up to th.MaxIterations iterations within
// th.TimeBudget. It returns the final aggregate (possibly revised), one
// report per completed iteration, and an error only when a validator or the
// reviser itself errored or the context ended. A loop that simply never
// converges is not an error: the last report carries Converged=false and the
// caller releases the output flagged accordingly.
//
// With no validators configured the aggregate converges trivially on
// iteration 1 with full confidence.
func (l *Loop) Run(ctx context.Context, agg core.Aggregate, th core.QualityThresholds) (core.Aggregate, []core.QualityReport, error) {
	th = th.WithDefaults()
	deadline := l.opts.Clock().Add(th.TimeBudget)
	var reports []core.QualityReport

	for iter := 1; iter <= th.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return agg, reports, fmt.Errorf("%w: %w", core.ErrCancelled, err)
		}
		if !l.opts.Clock().Before(deadline) {
			l.opts.Logger.Warn("quality time budget exhausted", "iteration", iter, "budget", th.TimeBudget.String())
			return agg, reports, nil
		}

		report := core.QualityReport{Iteration: iter}
		for _, v := range l.validators {
			score, err := v.Validate(ctx, agg)
			if err != nil {
				return agg, reports, fmt.Errorf("validator %s: %w", v.Name(), err)
			}
			score.Validator = v.Name()
			report.Scores = append(report.Scores, score)
			if score.Instructions != "" {
				report.Instructions = append(report.Instructions, score.Instructions)
			}
		}
		report.Confidence, report.Bias = combine(report.Scores)
		report.Converged = report.Confidence >= th.QualityThreshold && report.Bias < th.BiasThreshold
		reports = append(reports, report)
		l.opts.Logger.Info("quality iteration completed",
			"iteration", iter, "confidence", report.Confidence, "bias", report.Bias, "converged", report.Converged)

		if report.Converged || iter == th.MaxIterations {
			return agg, reports, nil
		}

		revised, err := l.opts.Reviser.Revise(ctx, agg, report.Instructions)
		if err != nil {
			return agg, reports, fmt.Errorf("reviser: %w", err)
		}
		// The reviser rewrites the summary only; per-agent results are
		// immutable once recorded.
		revised.Results = agg.Results
		agg = revised
	}
	return agg, reports, nil
}

// combine folds validator scores into the iteration verdict: mean confidence
// and worst-case bias. No validators means nothing to object.
func combine(scores []core.Score) (confidence, bias float64) {
	if len(scores) == 0 {
		return 1.0, 0.0
	}
	for _, s := range scores {
		confidence += s.Confidence
		if s.Bias > bias {
			bias = s.Bias
		}
	}
	return confidence / float64(len(scores)), bias
}

// Passed reports whether the final iteration converged.
func Passed(reports []core.QualityReport) bool {
	if len(reports) == 0 {
		return false
	}
	return reports[len(reports)-1].Converged
}
