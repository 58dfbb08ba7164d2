package llm

import (
	"context"
	"sync"
)

// MockClient is a deterministic scripted client used in tests and in mock
// mode when no backend is configured.
type MockClient struct {
	mu sync.Mutex

	// Responses are returned in order; the last one repeats once the
	// script is exhausted.
	Responses []string

	// Err, when non-nil, is returned for every call instead of a response.
	Err error

	// Calls records every prompt received.
	Calls []string

	model string
}

// NewMockClient creates a mock client returning the given responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{Responses: responses, model: "mock"}
}

// Model implements the LLMClient interface.
func (m *MockClient) Model() string {
	return m.model
}

// Generate implements the LLMClient interface.
func (m *MockClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", Classify(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, prompt)
	if m.Err != nil {
		return "", Classify(m.Err)
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	idx := len(m.Calls) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of prompts received.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
