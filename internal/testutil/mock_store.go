package testutil

import (
	"sync"
	"time"

	"github.com/bloxmod/modbridge/internal/storage"
)

// MockStore implements storage.Store with in-memory maps for testing.
// All methods are safe for concurrent use.
type MockStore struct {
	mu      sync.Mutex
	bans    map[string]storage.BanRecord
	tracked map[string]storage.TrackedUser
	admins  map[string]struct{}
	rate    map[string][]int64 // endpoint -> Unix-nano timestamps

	// Error injection: method -> next error (consumed on first call)
	errors map[string]error

	// Call counts per method
	calls map[string]int

	// SizeBytes value returned by SizeBytes()
	Size int64
}

// NewMockStore returns a zero-state MockStore ready for use.
func NewMockStore() *MockStore {
	return &MockStore{
		bans:    make(map[string]storage.BanRecord),
		tracked: make(map[string]storage.TrackedUser),
		admins:  make(map[string]struct{}),
		rate:    make(map[string][]int64),
		errors:  make(map[string]error),
		calls:   make(map[string]int),
		Size:    1024,
	}
}

// SetError injects an error to be returned on the next call to the named method.
func (m *MockStore) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

// Calls returns how many times the named method has been invoked.
func (m *MockStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockStore) enter(method string) error {
	m.calls[method]++
	err := m.errors[method]
	delete(m.errors, method)
	return err
}

// --- Ban registry -----------------------------------------------------------

func (m *MockStore) BanPut(userID string, rec storage.BanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BanPut"); err != nil {
		return err
	}
	m.bans[userID] = rec
	return nil
}

func (m *MockStore) BanDelete(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BanDelete"); err != nil {
		return err
	}
	delete(m.bans, userID)
	return nil
}

func (m *MockStore) BanDeleteBatch(userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BanDeleteBatch"); err != nil {
		return err
	}
	for _, id := range userIDs {
		delete(m.bans, id)
	}
	return nil
}

func (m *MockStore) BanClear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BanClear"); err != nil {
		return err
	}
	m.bans = make(map[string]storage.BanRecord)
	return nil
}

func (m *MockStore) BanList() (map[string]storage.BanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BanList"); err != nil {
		return nil, err
	}
	result := make(map[string]storage.BanRecord, len(m.bans))
	for k, v := range m.bans {
		result[k] = v
	}
	return result, nil
}

// --- Tracked-user directory -------------------------------------------------

func (m *MockStore) TrackedPut(userID string, rec storage.TrackedUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("TrackedPut"); err != nil {
		return err
	}
	m.tracked[userID] = rec
	return nil
}

func (m *MockStore) TrackedList() (map[string]storage.TrackedUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("TrackedList"); err != nil {
		return nil, err
	}
	result := make(map[string]storage.TrackedUser, len(m.tracked))
	for k, v := range m.tracked {
		result[k] = v
	}
	return result, nil
}

// --- Admin id set -----------------------------------------------------------

func (m *MockStore) AdminPut(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AdminPut"); err != nil {
		return err
	}
	m.admins[id] = struct{}{}
	return nil
}

func (m *MockStore) AdminList() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AdminList"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.admins))
	for id := range m.admins {
		ids = append(ids, id)
	}
	return ids, nil
}

// --- APIRateGate ------------------------------------------------------------

func (m *MockStore) APIRateGate(endpoint string, window time.Duration, max int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("APIRateGate"); err != nil {
		return false, err
	}
	if max <= 0 {
		return true, nil
	}
	cutoff := time.Now().Add(-window).UnixNano()
	now := time.Now().UnixNano()
	ts := m.rate[endpoint]

	// Prune old
	pruned := ts[:0]
	for _, t := range ts {
		if t >= cutoff {
			pruned = append(pruned, t)
		}
	}
	if len(pruned) >= max {
		m.rate[endpoint] = pruned
		return false, nil
	}
	m.rate[endpoint] = append(pruned, now)
	return true, nil
}

func (m *MockStore) PruneExpiredRateEntries(window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PruneExpiredRateEntries"); err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-window).UnixNano()
	var pruned int
	for ep, ts := range m.rate {
		filtered := ts[:0]
		for _, t := range ts {
			if t >= cutoff {
				filtered = append(filtered, t)
			}
		}
		pruned += len(ts) - len(filtered)
		if len(filtered) == 0 {
			delete(m.rate, ep)
			continue
		}
		m.rate[ep] = filtered
	}
	return pruned, nil
}

// --- Utility ----------------------------------------------------------------

func (m *MockStore) SizeBytes() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SizeBytes"); err != nil {
		return 0, err
	}
	return m.Size, nil
}

func (m *MockStore) Close() error {
	return nil
}
