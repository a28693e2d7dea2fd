package invoke

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/model"
)

// DefaultConfidence applies when a model reply carries no CONFIDENCE line.
const DefaultConfidence = 0.75

// ModelInvokerOptions configures a ModelInvoker.
type ModelInvokerOptions struct {
	// System overrides the default analysis system prompt.
	System string
	// MaxPriorChars caps how much dependency output is spliced into the
	// prompt. Zero means 4000.
	MaxPriorChars int
}

// ModelInvoker backs every agent with a language model: the agent's domain
// tag, the payload and the dependency results are rendered into a prompt and
// the reply becomes the agent's result payload.
type ModelInvoker struct {
	model model.Model
	opts  ModelInvokerOptions
}

const analysisSystem = `You are one specialist in a team of analysis agents.
Analyze the input strictly within your assigned domain. End your reply with a
line "CONFIDENCE: <0.0-1.0>" grading how confident you are in the analysis.`

// NewModelInvoker creates a ModelInvoker over m.
func NewModelInvoker(m model.Model, optFns ...func(o *ModelInvokerOptions)) *ModelInvoker {
	opts := ModelInvokerOptions{MaxPriorChars: 4000}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxPriorChars <= 0 {
		opts.MaxPriorChars = 4000
	}
	return &ModelInvoker{model: m, opts: opts}
}

// Invoke implements core.Invoker. Transport failures propagate as-is (the
// provider adapters already classify transience); the reply text minus the
// trailing CONFIDENCE line becomes the result payload.
func (i *ModelInvoker) Invoke(ctx context.Context, agent core.AgentDescriptor, payload core.Payload, prior map[string]core.AgentResult) (core.AgentResult, error) {
	started := time.Now()
	resp, err := i.model.Complete(ctx, model.Request{
		System:      i.systemPrompt(),
		Prompt:      i.renderPrompt(agent, payload, prior),
		Temperature: -1,
	})
	if err != nil {
		return core.AgentResult{}, fmt.Errorf("agent %s: %w", agent.Name, err)
	}

	text, confidence := splitConfidence(resp.Text)
	return core.AgentResult{
		Agent:      agent.Name,
		Status:     core.StatusSuccess,
		Payload:    text,
		Confidence: confidence,
		Started:    started,
		Completed:  time.Now(),
	}, nil
}

func (i *ModelInvoker) systemPrompt() string {
	if i.opts.System != "" {
		return i.opts.System
	}
	return analysisSystem
}

func (i *ModelInvoker) renderPrompt(agent core.AgentDescriptor, payload core.Payload, prior map[string]core.AgentResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent: %s\n", agent.Name)
	if agent.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", agent.Domain)
	}
	if payload.Ref != "" {
		fmt.Fprintf(&b, "Input ref: %s\n", payload.Ref)
	}
	if payload.Content != "" {
		fmt.Fprintf(&b, "\nInput:\n%s\n", payload.Content)
	}

	// Only direct dependencies go into the prompt; the rest of prior is
	// context the model does not need.
	budget := i.opts.MaxPriorChars
	for _, dep := range agent.DependsOn {
		r, ok := prior[dep]
		if !ok || budget <= 0 {
			continue
		}
		out := r.Payload
		if !r.Succeeded() {
			out = fmt.Sprintf("(%s) %s", r.Status, r.Err)
		}
		if len(out) > budget {
			out = out[:budget]
		}
		budget -= len(out)
		fmt.Fprintf(&b, "\nResult of %s:\n%s\n", dep, out)
	}
	return b.String()
}

// splitConfidence strips a trailing CONFIDENCE line from the reply,
// returning the remaining text and the parsed value (DefaultConfidence when
// absent or malformed).
func splitConfidence(text string) (string, float64) {
	confidence := DefaultConfidence
	var kept []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "CONFIDENCE:") {
			if f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(trimmed, "CONFIDENCE:")), 64); err == nil && f >= 0 && f <= 1 {
				confidence = f
			}
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), confidence
}
