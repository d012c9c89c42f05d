// Package registry maintains the ban registry: the in-memory source of truth
// for banned user ids, written through to the store on every mutation.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bloxmod/modbridge/internal/metrics"
	"github.com/bloxmod/modbridge/internal/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrEmptyUserID is returned when a mutation names no user id.
	ErrEmptyUserID = errors.New("empty user id")
	// ErrInvalidDuration is returned for temporary bans with duration <= 0.
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Expiry selects a ban lifetime. Construct via Permanent or TemporaryFor so
// a temporary ban without a duration cannot be represented.
type Expiry struct {
	permanent bool
	duration  time.Duration
}

// Permanent returns an Expiry for a ban that never expires.
func Permanent() Expiry {
	return Expiry{permanent: true}
}

// TemporaryFor returns an Expiry for a ban lasting d from commit time.
func TemporaryFor(d time.Duration) Expiry {
	return Expiry{duration: d}
}

// IsPermanent reports whether the expiry describes a permanent ban.
func (e Expiry) IsPermanent() bool { return e.permanent }

// Duration returns the temporary ban length; zero for permanent bans.
func (e Expiry) Duration() time.Duration { return e.duration }

// Registry is the mutex-guarded ban table shared by the command and query
// surfaces. Mutations persist to the store before they commit in memory, so
// an acknowledged mutation is always durable.
type Registry struct {
	mu      sync.Mutex
	store   storage.Store
	entries map[string]storage.BanRecord
	order   []string // insertion order of entries keys
	now     func() time.Time
	log     zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New builds a Registry, loading all persisted entries. Insertion order is
// recovered by sorting on RecordedAt.
func New(store storage.Store, log zerolog.Logger, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:   store,
		entries: make(map[string]storage.BanRecord),
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}

	persisted, err := store.BanList()
	if err != nil {
		return nil, fmt.Errorf("load ban registry: %w", err)
	}
	for id, rec := range persisted {
		r.entries[id] = rec
		r.order = append(r.order, id)
	}
	sort.Slice(r.order, func(i, j int) bool {
		return r.entries[r.order[i]].RecordedAt.Before(r.entries[r.order[j]].RecordedAt)
	})

	r.updateGauges()
	log.Info().Int("entries", len(r.entries)).Msg("ban registry loaded")
	return r, nil
}

// Ban inserts or replaces the entry for userID unconditionally. For temporary
// bans ExpiresAt is anchored to the moment of this call. The entry is
// persisted before it becomes visible; a persistence error leaves the
// registry unchanged.
func (r *Registry) Ban(userID, reason string, exp Expiry, username, displayName string) (storage.BanRecord, error) {
	if userID == "" {
		return storage.BanRecord{}, ErrEmptyUserID
	}
	if !exp.IsPermanent() && exp.Duration() <= 0 {
		return storage.BanRecord{}, ErrInvalidDuration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec := storage.BanRecord{
		Permanent:   exp.IsPermanent(),
		Reason:      reason,
		Username:    username,
		DisplayName: displayName,
		RecordedAt:  now.UTC(),
	}
	if !exp.IsPermanent() {
		rec.ExpiresAt = now.Add(exp.Duration()).UTC()
	}

	if err := r.store.BanPut(userID, rec); err != nil {
		return storage.BanRecord{}, fmt.Errorf("persist ban for %s: %w", userID, err)
	}

	if _, exists := r.entries[userID]; !exists {
		r.order = append(r.order, userID)
	}
	r.entries[userID] = rec
	r.updateGauges()
	return rec, nil
}

// Unban removes the entry if present and reports whether anything was removed.
// Idempotent: unbanning an absent id is a no-op, not an error.
func (r *Registry) Unban(userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; !ok {
		return false, nil
	}
	if err := r.store.BanDelete(userID); err != nil {
		return false, fmt.Errorf("persist unban for %s: %w", userID, err)
	}
	r.remove(userID)
	r.updateGauges()
	return true, nil
}

// IsActive reports whether userID has an active ban. The timestamp is
// re-checked on every call, so an expired temporary ban is never reported
// active even if no sweep has run.
func (r *Registry) IsActive(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entries[userID]
	return ok && active(rec, r.now())
}

// Reason returns the active ban's reason. ok is false when the id is not
// banned or the ban has expired.
func (r *Registry) Reason(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entries[userID]
	if !ok || !active(rec, r.now()) {
		return "", false
	}
	return rec.Reason, true
}

// ListEntry is a registry entry paired with its user id for rendering.
type ListEntry struct {
	UserID string
	storage.BanRecord
}

// List sweeps expired entries, then returns the remaining entries in
// insertion order.
func (r *Registry) List() ([]ListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.sweepLocked(); err != nil {
		return nil, err
	}

	out := make([]ListEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, ListEntry{UserID: id, BanRecord: r.entries[id]})
	}
	return out, nil
}

// ClearAll removes every entry unconditionally.
func (r *Registry) ClearAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.BanClear(); err != nil {
		return fmt.Errorf("persist clear: %w", err)
	}
	r.entries = make(map[string]storage.BanRecord)
	r.order = r.order[:0]
	r.updateGauges()
	return nil
}

// Sweep removes every temporary entry whose ExpiresAt has passed. The batch
// of removals is persisted in a single store write. Returns the number of
// removed entries.
func (r *Registry) Sweep() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked()
}

// Len returns the number of entries, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sweepLocked() (int, error) {
	now := r.now()
	var expired []string
	for id, rec := range r.entries {
		if !rec.Permanent && !rec.ExpiresAt.After(now) {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if err := r.store.BanDeleteBatch(expired); err != nil {
		return 0, fmt.Errorf("persist sweep: %w", err)
	}
	for _, id := range expired {
		r.remove(id)
	}
	metrics.SweepRemoved.Add(float64(len(expired)))
	r.updateGauges()
	r.log.Debug().Int("count", len(expired)).Msg("swept expired bans")
	return len(expired), nil
}

// remove deletes id from the entry map and the order slice. Caller holds mu.
func (r *Registry) remove(userID string) {
	delete(r.entries, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) updateGauges() {
	var perm, temp int
	for _, rec := range r.entries {
		if rec.Permanent {
			perm++
		} else {
			temp++
		}
	}
	metrics.ActiveBans.WithLabelValues("permanent").Set(float64(perm))
	metrics.ActiveBans.WithLabelValues("temporary").Set(float64(temp))
}

func active(rec storage.BanRecord, now time.Time) bool {
	return rec.Permanent || rec.ExpiresAt.After(now)
}

// MinutesLeft returns the whole minutes remaining on a temporary ban,
// clamped to >= 0 for display. Zero for permanent entries.
func MinutesLeft(rec storage.BanRecord, now time.Time) int {
	if rec.Permanent {
		return 0
	}
	mins := int(rec.ExpiresAt.Sub(now).Minutes())
	if mins < 0 {
		return 0
	}
	return mins
}
