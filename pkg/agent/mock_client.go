package agent

import (
	"context"
	"sync"

	"draftflow/pkg/agent/llm"
)

// MockClient is a scripted llm.Client for tests. Responses are returned in
// the order they were queued; when the script runs out, the last entry
// repeats.
type MockClient struct {
	mu       sync.Mutex
	model    string
	script   []MockResult
	next     int
	requests []llm.CompletionRequest
}

// MockResult is one scripted outcome.
type MockResult struct {
	Response llm.CompletionResponse
	Err      error
}

// NewMockClient creates a mock client with the given script.
func NewMockClient(model string, script ...MockResult) *MockClient {
	return &MockClient{model: model, script: script}
}

// NewMockClientWithContent creates a mock client that always returns the
// given content.
func NewMockClientWithContent(model, content string) *MockClient {
	return NewMockClient(model, MockResult{
		Response: llm.CompletionResponse{
			Content:    content,
			StopReason: "end_turn",
			Usage:      llm.Usage{PromptTokens: 10, CompletionTokens: 20},
		},
	})
}

// Complete implements llm.Client.
func (m *MockClient) Complete(_ context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, in)
	if len(m.script) == 0 {
		return llm.CompletionResponse{Content: "mock response", StopReason: "end_turn"}, nil
	}

	result := m.script[m.next]
	if m.next < len(m.script)-1 {
		m.next++
	}
	return result.Response, result.Err
}

// ModelName implements llm.Client.
func (m *MockClient) ModelName() string {
	return m.model
}

// Requests returns a copy of every request the client received.
func (m *MockClient) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]llm.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of Complete calls received.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
