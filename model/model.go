// Package model defines the minimal language-model abstraction used by
// model-backed invokers, validators and revisers, plus a mock for tests.
// Provider adapters live in the subpackages anthropic and openai.
package model

import (
	"context"
	"fmt"
	"sync"
)

// Request is a single completion request.
type Request struct {
	// System is the system prompt. Optional.
	System string
	// Prompt is the user content.
	Prompt string
	// MaxTokens caps the response length. Zero uses the adapter default.
	MaxTokens int
	// Temperature controls sampling. Negative uses the adapter default.
	Temperature float64
}

// Usage reports token accounting when the provider supplies it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a completion response.
type Response struct {
	Text  string
	Usage Usage
}

// Info describes a model for logs and reports.
type Info struct {
	Name     string
	Provider string
}

// Model is a provider-agnostic completion interface. Implementations must be
// safe for concurrent use and classify retryable provider failures as
// transient (see core.Transient).
type Model interface {
	// Complete generates a completion for the request.
	Complete(ctx context.Context, req Request) (Response, error)
	// Info returns model metadata.
	Info() Info
}

// MockModel is a scripted Model for tests. Responses are returned in order;
// once exhausted, the last one repeats. A nil response list yields empty
// completions.
type MockModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     []Request
}

// NewMockModel creates a MockModel replaying the given responses.
func NewMockModel(responses ...string) *MockModel {
	return &MockModel{responses: responses}
}

// FailWith makes every Complete call return err until cleared with nil.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Complete replays the next scripted response.
func (m *MockModel) Complete(_ context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return Response{}, fmt.Errorf("mock model: %w", m.err)
	}
	if len(m.responses) == 0 {
		return Response{}, nil
	}
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return Response{Text: m.responses[idx]}, nil
}

// Info returns mock metadata.
func (m *MockModel) Info() Info { return Info{Name: "mock", Provider: "mock"} }

// Calls returns a copy of the requests seen so far.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request{}, m.calls...)
}
