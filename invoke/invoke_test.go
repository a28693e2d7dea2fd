package invoke

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/internal/testutil"
	"github.com/arbiterlabs/arbiter/model"
)

// Interface compliance (compile-time assertions)
var (
	_ core.Invoker = (*FuncInvoker)(nil)
	_ core.Invoker = (*ModelInvoker)(nil)
)

func TestFuncInvoker_Dispatch(t *testing.T) {
	inv := NewFuncInvoker()
	inv.Register("echo", func(_ context.Context, payload core.Payload, _ map[string]core.AgentResult) (core.AgentResult, error) {
		return core.AgentResult{Status: core.StatusSuccess, Payload: payload.Content, Confidence: 1.0}, nil
	})

	d := testutil.NewDescriptorBuilder("echo").Build()
	res, err := inv.Invoke(context.Background(), d, core.Payload{Content: "hello"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "echo", res.Agent)
	assert.Equal(t, "hello", res.Payload)
	assert.False(t, res.Started.IsZero())
	assert.False(t, res.Completed.IsZero())
}

func TestFuncInvoker_UnregisteredAgentPermanent(t *testing.T) {
	inv := NewFuncInvoker()
	d := testutil.NewDescriptorBuilder("ghost").Build()

	_, err := inv.Invoke(context.Background(), d, core.Payload{}, nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.False(t, core.IsTransient(err))
}

func TestFuncInvoker_ErrorPassthrough(t *testing.T) {
	inv := NewFuncInvoker()
	boom := core.Transient(errors.New("flaky backend"))
	inv.Register("flaky", func(context.Context, core.Payload, map[string]core.AgentResult) (core.AgentResult, error) {
		return core.AgentResult{}, boom
	})

	_, err := inv.Invoke(context.Background(), testutil.NewDescriptorBuilder("flaky").Build(), core.Payload{}, nil)
	assert.ErrorIs(t, err, boom)
	assert.True(t, core.IsTransient(err))
}

func TestModelInvoker_ParsesConfidence(t *testing.T) {
	m := model.NewMockModel("the input looks well-formed\nCONFIDENCE: 0.85")
	inv := NewModelInvoker(m)

	d := testutil.NewDescriptorBuilder("review").Domain("structure").Build()
	res, err := inv.Invoke(context.Background(), d, core.Payload{Content: "body"}, nil)
	assert.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "the input looks well-formed", res.Payload)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
}

func TestModelInvoker_DefaultConfidenceWhenAbsent(t *testing.T) {
	m := model.NewMockModel("plain analysis, no trailer")
	inv := NewModelInvoker(m)

	res, err := inv.Invoke(context.Background(), testutil.NewDescriptorBuilder("a").Build(), core.Payload{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfidence, res.Confidence)
	assert.Equal(t, "plain analysis, no trailer", res.Payload)
}

func TestModelInvoker_PromptCarriesDependencies(t *testing.T) {
	m := model.NewMockModel("ok\nCONFIDENCE: 0.9")
	inv := NewModelInvoker(m)

	d := testutil.NewDescriptorBuilder("synthesis").DependsOn("security").Domain("synthesis").Build()
	prior := map[string]core.AgentResult{
		"security": testutil.NewResultBuilder("security").Payload("two findings").Build(),
		"noise":    testutil.NewResultBuilder("noise").Payload("unrelated").Build(),
	}
	_, err := inv.Invoke(context.Background(), d, core.Payload{Ref: "input.go"}, prior)
	assert.NoError(t, err)

	calls := m.Calls()
	assert.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "two findings")
	// Non-dependency results stay out of the prompt.
	assert.NotContains(t, calls[0].Prompt, "unrelated")
	assert.Contains(t, calls[0].Prompt, "input.go")
}

func TestModelInvoker_ErrorPropagates(t *testing.T) {
	m := model.NewMockModel()
	m.FailWith(core.Transient(errors.New("rate limited")))
	inv := NewModelInvoker(m)

	_, err := inv.Invoke(context.Background(), testutil.NewDescriptorBuilder("a").Build(), core.Payload{}, nil)
	assert.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestSplitConfidence(t *testing.T) {
	text, c := splitConfidence("body line\nCONFIDENCE: 0.5\n")
	assert.Equal(t, "body line", text)
	assert.Equal(t, 0.5, c)

	// Out-of-range values fall back to the default.
	_, c = splitConfidence("x\nCONFIDENCE: 7")
	assert.Equal(t, DefaultConfidence, c)

	text, c = splitConfidence("no trailer at all")
	assert.Equal(t, "no trailer at all", text)
	assert.Equal(t, DefaultConfidence, c)
}
