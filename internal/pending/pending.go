// Package pending correlates a moderator's ban-without-reason command with
// that moderator's next chat message.
package pending

import (
	"sync"
)

// Kind identifies the deferred ban variant.
type Kind int

const (
	// PermanentBan is a deferred permanent ban.
	PermanentBan Kind = iota
	// TemporaryBan is a deferred temporary ban.
	TemporaryBan
)

// Action is a ban awaiting its reason. Minutes is meaningful only for
// TemporaryBan.
type Action struct {
	Kind     Kind
	TargetID string
	Minutes  int
}

// Tracker holds at most one outstanding Action per moderator id.
type Tracker struct {
	mu      sync.Mutex
	actions map[string]Action
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{actions: make(map[string]Action)}
}

// Begin records a pending action for the moderator, silently discarding any
// prior one. No queueing: the latest deferred ban wins.
func (t *Tracker) Begin(moderatorID string, action Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions[moderatorID] = action
}

// Consume atomically reads and clears the moderator's pending action.
// ok is false when the moderator has nothing pending.
func (t *Tracker) Consume(moderatorID string) (Action, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	action, ok := t.actions[moderatorID]
	if ok {
		delete(t.actions, moderatorID)
	}
	return action, ok
}
