package quality

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/model"
)

// NoopReviser returns the aggregate unchanged. It is the default reviser and
// keeps a non-converging loop bounded: the loop still runs its iterations
// and releases the output flagged as not quality-passed.
type NoopReviser struct{}

// Revise returns agg unchanged.
func (NoopReviser) Revise(_ context.Context, agg core.Aggregate, _ []string) (core.Aggregate, error) {
	return agg, nil
}

// ConfidenceValidator grades the aggregate from the per-agent confidences:
// the mean confidence of successful agents, penalized by critical findings.
type ConfidenceValidator struct {
	// CriticalPenalty is subtracted per critical finding. Defaults to 0.1.
	CriticalPenalty float64
}

// Name implements core.Validator.
func (v ConfidenceValidator) Name() string { return "confidence" }

// Validate computes the confidence score.
func (v ConfidenceValidator) Validate(_ context.Context, agg core.Aggregate) (core.Score, error) {
	penalty := v.CriticalPenalty
	if penalty <= 0 {
		penalty = 0.1
	}
	var sum float64
	var criticals int
	n := 0
	for _, r := range agg.Results {
		if !r.Succeeded() {
			continue
		}
		sum += r.Confidence
		n++
		for _, f := range r.Findings {
			if f.Severity == core.SeverityCritical {
				criticals++
			}
		}
	}
	score := core.Score{Validator: "confidence"}
	if n == 0 {
		score.Instructions = "no successful agent results to ground the summary"
		return score, nil
	}
	score.Confidence = clamp01(sum/float64(n) - float64(criticals)*penalty)
	if criticals > 0 {
		score.Instructions = fmt.Sprintf("address %d critical finding(s) in the summary", criticals)
	}
	return score, nil
}

// EvidenceValidator checks that findings cite evidence. Findings without
// evidence read as assertion rather than analysis, which both lowers
// confidence and raises the bias score.
type EvidenceValidator struct{}

// Name implements core.Validator.
func (EvidenceValidator) Name() string { return "evidence" }

// Validate computes evidence coverage across all findings.
func (EvidenceValidator) Validate(_ context.Context, agg core.Aggregate) (core.Score, error) {
	total, cited := 0, 0
	for _, r := range agg.Results {
		for _, f := range r.Findings {
			total++
			if strings.TrimSpace(f.Evidence) != "" {
				cited++
			}
		}
	}
	score := core.Score{Validator: "evidence"}
	if total == 0 {
		// Nothing claimed, nothing to cite.
		score.Confidence = 1.0
		return score, nil
	}
	coverage := float64(cited) / float64(total)
	score.Confidence = coverage
	score.Bias = clamp01((1 - coverage) * 0.5)
	if cited < total {
		score.Instructions = fmt.Sprintf("cite evidence for %d uncited finding(s)", total-cited)
	}
	return score, nil
}

// ModelValidator asks a language model to grade the aggregate. The model is
// prompted to answer with CONFIDENCE, BIAS and INSTRUCTIONS lines, which are
// parsed into the score; a malformed reply yields a conservative low score
// rather than an error.
type ModelValidator struct {
	// Model performs the grading call.
	Model model.Model
	// ValidatorName overrides the default name "model-review".
	ValidatorName string
	// System overrides the default grading system prompt.
	System string
}

// Name implements core.Validator.
func (v ModelValidator) Name() string {
	if v.ValidatorName != "" {
		return v.ValidatorName
	}
	return "model-review"
}

const validatorSystem = `You are a strict reviewer of multi-agent analysis summaries.
Grade the summary against the per-agent findings it claims to synthesize.
Reply with exactly three lines:
CONFIDENCE: <0.0-1.0>
BIAS: <0.0-1.0>
INSTRUCTIONS: <one line of concrete improvements, or "none">`

// Validate grades the aggregate via the model.
func (v ModelValidator) Validate(ctx context.Context, agg core.Aggregate) (core.Score, error) {
	system := v.System
	if system == "" {
		system = validatorSystem
	}
	resp, err := v.Model.Complete(ctx, model.Request{
		System:      system,
		Prompt:      renderAggregate(agg),
		Temperature: -1,
	})
	if err != nil {
		return core.Score{}, fmt.Errorf("model validation: %w", err)
	}
	score := parseScore(resp.Text)
	score.Validator = v.Name()
	return score, nil
}

// ModelReviser re-synthesizes the summary via a language model, feeding it
// the validators' improvement instructions.
type ModelReviser struct {
	Model model.Model
}

const reviserSystem = `You revise a multi-agent analysis summary.
Rewrite the summary so it addresses every instruction while staying grounded
in the per-agent findings. Reply with the revised summary only.`

// Revise rewrites the summary. Results pass through untouched.
func (r ModelReviser) Revise(ctx context.Context, agg core.Aggregate, instructions []string) (core.Aggregate, error) {
	var b strings.Builder
	b.WriteString(renderAggregate(agg))
	b.WriteString("\nInstructions:\n")
	for _, ins := range instructions {
		fmt.Fprintf(&b, "- %s\n", ins)
	}
	resp, err := r.Model.Complete(ctx, model.Request{System: reviserSystem, Prompt: b.String(), Temperature: -1})
	if err != nil {
		return agg, fmt.Errorf("model revision: %w", err)
	}
	if text := strings.TrimSpace(resp.Text); text != "" {
		agg.Summary = text
	}
	return agg, nil
}

// renderAggregate flattens the aggregate into a prompt section.
func renderAggregate(agg core.Aggregate) string {
	var b strings.Builder
	b.WriteString("Summary:\n")
	b.WriteString(agg.Summary)
	b.WriteString("\n\nAgent findings:\n")
	for name, r := range agg.Results {
		fmt.Fprintf(&b, "[%s] status=%s confidence=%.2f\n", name, r.Status, r.Confidence)
		for _, f := range r.Findings {
			fmt.Fprintf(&b, "  - (%s) %s", f.Severity, f.Message)
			if f.Evidence != "" {
				fmt.Fprintf(&b, " [evidence: %s]", f.Evidence)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// parseScore extracts CONFIDENCE/BIAS/INSTRUCTIONS lines. Missing or
// unparsable lines leave the conservative zero confidence in place.
func parseScore(text string) core.Score {
	score := core.Score{}
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "CONFIDENCE:"):
			if f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:")), 64); err == nil {
				score.Confidence = clamp01(f)
			}
		case strings.HasPrefix(line, "BIAS:"):
			if f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "BIAS:")), 64); err == nil {
				score.Bias = clamp01(f)
			}
		case strings.HasPrefix(line, "INSTRUCTIONS:"):
			ins := strings.TrimSpace(strings.TrimPrefix(line, "INSTRUCTIONS:"))
			if !strings.EqualFold(ins, "none") {
				score.Instructions = ins
			}
		}
	}
	return score
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
