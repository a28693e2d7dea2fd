package core

import "time"

// Default quality-control thresholds applied when a RunRequest leaves the
// corresponding field zero.
const (
	DefaultMaxIterations    = 3
	DefaultQualityThreshold = 0.9
	DefaultBiasThreshold    = 0.1
	DefaultTimeBudget       = 600 * time.Second
)

// QualityThresholds bounds the quality-control loop. The loop converges when
// the aggregate confidence reaches QualityThreshold while the bias score
// stays below BiasThreshold; otherwise it re-synthesizes and retries until
// MaxIterations or TimeBudget is exhausted.
type QualityThresholds struct {
	MaxIterations    int
	QualityThreshold float64
	BiasThreshold    float64
	TimeBudget       time.Duration
}

// WithDefaults returns a copy with zero fields replaced by the defaults.
func (q QualityThresholds) WithDefaults() QualityThresholds {
	if q.MaxIterations <= 0 {
		q.MaxIterations = DefaultMaxIterations
	}
	if q.QualityThreshold <= 0 {
		q.QualityThreshold = DefaultQualityThreshold
	}
	if q.BiasThreshold <= 0 {
		q.BiasThreshold = DefaultBiasThreshold
	}
	if q.TimeBudget <= 0 {
		q.TimeBudget = DefaultTimeBudget
	}
	return q
}

// Score is one validator's verdict on the aggregated output.
type Score struct {
	// Validator names the validator that produced the score.
	Validator string `json:"validator"`
	// Confidence grades the output in [0, 1].
	Confidence float64 `json:"confidence"`
	// Bias grades detected bias in [0, 1]; lower is better.
	Bias float64 `json:"bias"`
	// Instructions optionally tells the reviser how to improve the output
	// before the next iteration.
	Instructions string `json:"instructions,omitempty"`
}

// QualityReport records one quality-control iteration: every validator's
// score, the aggregate verdict, and the improvement instructions consumed by
// the next iteration if the verdict failed.
type QualityReport struct {
	Iteration int     `json:"iteration"`
	Scores    []Score `json:"scores"`
	// Confidence is the aggregate (mean) validator confidence.
	Confidence float64 `json:"confidence"`
	// Bias is the worst (highest) validator bias score.
	Bias      float64 `json:"bias"`
	Converged bool    `json:"converged"`
	// Instructions collects the non-empty improvement instructions of this
	// iteration, in validator order.
	Instructions []string `json:"instructions,omitempty"`
}

// Aggregate is the combined output of a run: the synthesized summary the
// quality loop validates and revises, plus the per-agent results it was
// derived from. Results are never mutated by the loop.
type Aggregate struct {
	Summary string                 `json:"summary"`
	Results map[string]AgentResult `json:"results"`
}
