package analyzer

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a canned-response Client for tests and the mock provider.
// Responses are matched by substring against the system prompt, in
// registration order; unmatched calls return DefaultResponse.
type MockClient struct {
	mu              sync.Mutex
	rules           []mockRule
	DefaultResponse string
	Err             error
	Calls           []MockCall
}

type mockRule struct {
	match    string
	response string
}

// MockCall records one Complete invocation.
type MockCall struct {
	System string
	Prompt string
}

// NewMockClient creates a mock client with an empty JSON object default.
func NewMockClient() *MockClient {
	return &MockClient{DefaultResponse: "{}"}
}

// Respond registers a canned response for system prompts containing match.
func (m *MockClient) Respond(match, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{match: match, response: response})
}

// Complete returns the first matching canned response.
func (m *MockClient) Complete(_ context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{System: system, Prompt: prompt})
	if m.Err != nil {
		return "", m.Err
	}
	for _, r := range m.rules {
		if strings.Contains(system, r.match) || strings.Contains(prompt, r.match) {
			return r.response, nil
		}
	}
	return m.DefaultResponse, nil
}

// CallCount returns the number of Complete invocations so far.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
