// Package auth implements the owner/admin authorization policy.
package auth

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bloxmod/modbridge/internal/storage"
	"github.com/rs/zerolog"
)

// Policy answers role checks against the configured owner id and the
// persisted admin set. The owner is always an admin and can never be removed.
type Policy struct {
	mu      sync.Mutex
	ownerID string
	store   storage.Store
	admins  map[string]struct{}
	log     zerolog.Logger
}

// New builds a Policy, loading the persisted admin set.
func New(ownerID string, store storage.Store, log zerolog.Logger) (*Policy, error) {
	ids, err := store.AdminList()
	if err != nil {
		return nil, fmt.Errorf("load admin set: %w", err)
	}
	admins := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		admins[id] = struct{}{}
	}
	log.Info().Int("admins", len(admins)).Msg("admin set loaded")
	return &Policy{ownerID: ownerID, store: store, admins: admins, log: log}, nil
}

// IsOwner reports whether id is the configured owner.
func (p *Policy) IsOwner(id string) bool {
	return id == p.ownerID
}

// IsAdmin reports whether id is the owner or in the admin set.
func (p *Policy) IsAdmin(id string) bool {
	if p.IsOwner(id) {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.admins[id]
	return ok
}

// AddAdmin grants admin rights to id, persisting the set. Returns false
// when id already had them. Caller enforces that only the owner may call.
func (p *Policy) AddAdmin(id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.admins[id]; ok {
		return false, nil
	}
	if err := p.store.AdminPut(id); err != nil {
		return false, fmt.Errorf("persist admin %s: %w", id, err)
	}
	p.admins[id] = struct{}{}
	p.log.Info().Str("id", id).Msg("admin added")
	return true, nil
}

// Admins returns the admin set in sorted order, for rendering.
func (p *Policy) Admins() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.admins))
	for id := range p.admins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
