package storage

import (
	"time"
)

// BanRecord holds everything known about a single banned user id.
// ExpiresAt is the zero time when Permanent is true.
type BanRecord struct {
	Permanent   bool
	Reason      string
	ExpiresAt   time.Time
	Username    string // cached at ban time, "" = unknown
	DisplayName string // cached at ban time, "" = unknown
	RecordedAt  time.Time
}

// TrackedUser records the last observation of a user id from the game side.
type TrackedUser struct {
	Username    string
	DisplayName string
	SeenAt      time.Time
}

// Store is the persistence interface for the moderation state.
type Store interface {
	// Ban registry
	BanPut(userID string, rec BanRecord) error
	BanDelete(userID string) error
	// BanDeleteBatch removes all given ids in a single transaction.
	BanDeleteBatch(userIDs []string) error
	BanClear() error
	BanList() (map[string]BanRecord, error)

	// Tracked-user directory
	TrackedPut(userID string, rec TrackedUser) error
	TrackedList() (map[string]TrackedUser, error)

	// Admin id set
	AdminPut(id string) error
	AdminList() ([]string, error)

	// APIRateGate: rolling-window budget for outbound API calls.
	// Returns allowed=true if within budget; atomically appends timestamp on allowed.
	APIRateGate(endpoint string, window time.Duration, max int) (bool, error)

	// Janitor helper
	PruneExpiredRateEntries(window time.Duration) (int, error)

	// Utility
	SizeBytes() (int64, error)
	Close() error
}
