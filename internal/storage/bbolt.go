package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketBans   = "bans"
	bucketUsers  = "users"
	bucketAdmins = "admins"
	bucketRate   = "rate"
)

type bboltStore struct {
	db *bolt.DB
	mu sync.Mutex // guards rate bucket sliding-window writes
}

// NewBboltStore opens (or creates) a bbolt database at dataDir/modbridge.db.
func NewBboltStore(dataDir string) (Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "modbridge.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt at %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketBans, bucketUsers, bucketAdmins, bucketRate} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &bboltStore{db: db}, nil
}

// ---- Ban registry ----------------------------------------------------------

func (s *bboltStore) BanPut(userID string, rec BanRecord) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal BanRecord: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketBans)).Put([]byte(userID), data)
	})
}

func (s *bboltStore) BanDelete(userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketBans)).Delete([]byte(userID))
	})
}

func (s *bboltStore) BanDeleteBatch(userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketBans))
		for _, id := range userIDs {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *bboltStore) BanClear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketBans)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketBans))
		return err
	})
}

func (s *bboltStore) BanList() (map[string]BanRecord, error) {
	result := make(map[string]BanRecord)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketBans)).ForEach(func(k, v []byte) error {
			var rec BanRecord
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal BanRecord for %s: %w", k, err)
			}
			result[string(k)] = rec
			return nil
		})
	})
	return result, err
}

// ---- Tracked-user directory ------------------------------------------------

func (s *bboltStore) TrackedPut(userID string, rec TrackedUser) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal TrackedUser: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketUsers)).Put([]byte(userID), data)
	})
}

func (s *bboltStore) TrackedList() (map[string]TrackedUser, error) {
	result := make(map[string]TrackedUser)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketUsers)).ForEach(func(k, v []byte) error {
			var rec TrackedUser
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal TrackedUser for %s: %w", k, err)
			}
			result[string(k)] = rec
			return nil
		})
	})
	return result, err
}

// ---- Admin id set ----------------------------------------------------------

func (s *bboltStore) AdminPut(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAdmins)).Put([]byte(id), []byte{1})
	})
}

func (s *bboltStore) AdminList() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAdmins)).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// ---- APIRateGate -----------------------------------------------------------

// APIRateGate implements a sliding-window rate limit backed by bbolt.
// The rate bucket stores a []int64 of Unix nanosecond timestamps per endpoint.
// Returns allowed=true and appends the current timestamp if within budget.
func (s *bboltStore) APIRateGate(endpoint string, window time.Duration, max int) (bool, error) {
	if max <= 0 {
		return true, nil // unlimited
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var allowed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRate))
		key := []byte(endpoint)
		cutoff := time.Now().Add(-window).UnixNano()
		now := time.Now().UnixNano()

		var timestamps []int64
		if raw := b.Get(key); raw != nil {
			if err := msgpack.Unmarshal(raw, &timestamps); err != nil {
				return fmt.Errorf("unmarshal rate timestamps: %w", err)
			}
		}

		// Prune entries outside window
		pruned := timestamps[:0]
		for _, ts := range timestamps {
			if ts >= cutoff {
				pruned = append(pruned, ts)
			}
		}

		if len(pruned) >= max {
			allowed = false
			// Still save pruned slice to keep bucket tidy
			data, err := msgpack.Marshal(pruned)
			if err != nil {
				return err
			}
			return b.Put(key, data)
		}

		allowed = true
		pruned = append(pruned, now)
		data, err := msgpack.Marshal(pruned)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	return allowed, err
}

func (s *bboltStore) PruneExpiredRateEntries(window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).UnixNano()
	var pruned int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRate))
		return b.ForEach(func(k, v []byte) error {
			var timestamps []int64
			if err := msgpack.Unmarshal(v, &timestamps); err != nil {
				return nil
			}
			before := len(timestamps)
			filtered := timestamps[:0]
			for _, ts := range timestamps {
				if ts >= cutoff {
					filtered = append(filtered, ts)
				}
			}
			pruned += before - len(filtered)
			if len(filtered) == 0 {
				return b.Delete(k)
			}
			data, err := msgpack.Marshal(filtered)
			if err != nil {
				return err
			}
			return b.Put(k, data)
		})
	})
	return pruned, err
}

// ---- Utility ---------------------------------------------------------------

func (s *bboltStore) SizeBytes() (int64, error) {
	info, err := os.Stat(s.db.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *bboltStore) Close() error {
	return s.db.Close()
}
