package llm

import "context"

// MockClient is a configurable mock for testing completion-driven code.
// Set the function field to control behavior in tests.
type MockClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns an empty result and nil error.
	CompleteFunc func(ctx context.Context, req Request) (*Result, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// CompleteCalls counts invocations of Complete.
	CompleteCalls int
	// Requests records every request, in order, for verification.
	Requests []Request
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{ModelName: "mock-model"}
}

// Complete implements CompletionClient.
func (m *MockClient) Complete(ctx context.Context, req Request) (*Result, error) {
	m.CompleteCalls++
	m.Requests = append(m.Requests, req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &Result{}, nil
}

// Model implements CompletionClient.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Reset clears call tracking.
func (m *MockClient) Reset() {
	m.CompleteCalls = 0
	m.Requests = nil
}

// ScriptedClient returns a mock that replays the given responses in order,
// then repeats the last one. Useful for multi-attempt pipeline tests.
func ScriptedClient(responses ...string) *MockClient {
	m := NewMockClient()
	m.CompleteFunc = func(ctx context.Context, req Request) (*Result, error) {
		i := m.CompleteCalls - 1
		if i >= len(responses) {
			i = len(responses) - 1
		}
		if i < 0 {
			return &Result{}, nil
		}
		return &Result{Content: responses[i]}, nil
	}
	return m
}

// Ensure MockClient implements CompletionClient at compile time.
var _ CompletionClient = (*MockClient)(nil)
