package testutil

import (
	"context"
	"sync"

	"github.com/bloxmod/modbridge/internal/profile"
)

// MockProfileClient implements profile.Client with scripted responses.
type MockProfileClient struct {
	mu       sync.Mutex
	profiles map[string]profile.Profile
	err      error
	lookups  int
}

// NewMockProfileClient returns a client that resolves nothing until primed.
func NewMockProfileClient() *MockProfileClient {
	return &MockProfileClient{profiles: make(map[string]profile.Profile)}
}

// Set primes the response for userID.
func (m *MockProfileClient) Set(userID string, p profile.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[userID] = p
}

// Fail makes every Fetch return err.
func (m *MockProfileClient) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Lookups returns how many Fetch calls were made.
func (m *MockProfileClient) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

func (m *MockProfileClient) Fetch(ctx context.Context, userID string) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return profile.Unknown, m.err
	}
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return profile.Unknown, nil
}
