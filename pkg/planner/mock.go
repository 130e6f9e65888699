package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockClient replays scripted responses in order, then keeps returning
// a STOP plan. Used by tests and by offline runs (vendor "mock") where
// the deterministic pipeline should run without a model.
type MockClient struct {
	mu        sync.Mutex
	responses []json.RawMessage
	calls     int
}

// NewMockClient creates a mock with an optional response script.
func NewMockClient(responses ...json.RawMessage) *MockClient {
	return &MockClient{responses: responses}
}

// Calls returns how many times GenerateJSON was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// GenerateJSON returns the next scripted response. When the script runs
// out it returns a STOP plan, which also satisfies the report schema's
// caller because the report builder scripts its own response.
func (m *MockClient) GenerateJSON(ctx context.Context, prompt string, temperature float64) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= len(m.responses) {
		return m.responses[m.calls-1], nil
	}
	return json.RawMessage(`{"decision":"STOP","stop_reason":"mock script exhausted"}`), nil
}
