package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bloxmod/modbridge/internal/testutil"
	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *testutil.MockStore, *fakeClock) {
	t.Helper()
	store := testutil.NewMockStore()
	clk := newFakeClock()
	r, err := New(store, zerolog.Nop(), WithClock(clk.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, store, clk
}

func TestPermanentBanStaysActive(t *testing.T) {
	r, _, clk := newTestRegistry(t)

	if _, err := r.Ban("42", "spam", Permanent(), "bob", "Bob"); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if !r.IsActive("42") {
		t.Error("permanent ban should be active immediately")
	}

	clk.Advance(1000 * time.Hour)
	if !r.IsActive("42") {
		t.Error("permanent ban should stay active regardless of elapsed time")
	}
}

func TestTemporaryBanExpires(t *testing.T) {
	r, _, clk := newTestRegistry(t)

	if _, err := r.Ban("42", "spam", TemporaryFor(5*time.Minute), "", ""); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if !r.IsActive("42") {
		t.Error("temporary ban should be active immediately")
	}

	clk.Advance(4 * time.Minute)
	if !r.IsActive("42") {
		t.Error("temporary ban should still be active before expiry")
	}

	clk.Advance(2 * time.Minute)
	if r.IsActive("42") {
		t.Error("temporary ban should be inactive past its duration, even without a sweep")
	}
}

func TestBanRejectsInvalidInput(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if _, err := r.Ban("", "x", Permanent(), "", ""); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("empty id: got %v, want ErrEmptyUserID", err)
	}
	if _, err := r.Ban("42", "x", TemporaryFor(0), "", ""); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("zero duration: got %v, want ErrInvalidDuration", err)
	}
	if _, err := r.Ban("42", "x", TemporaryFor(-time.Minute), "", ""); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("negative duration: got %v, want ErrInvalidDuration", err)
	}
	if r.Len() != 0 {
		t.Errorf("rejected bans must not create entries, have %d", r.Len())
	}
}

func TestRepeatedBanReplacesEntry(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if _, err := r.Ban("42", "first", TemporaryFor(time.Minute), "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Ban("42", "second", Permanent(), "", ""); err != nil {
		t.Fatal(err)
	}

	reason, ok := r.Reason("42")
	if !ok || reason != "second" {
		t.Errorf("Reason: got (%q, %v), want (\"second\", true)", reason, ok)
	}
	if r.Len() != 1 {
		t.Errorf("replacement must not duplicate entries, have %d", r.Len())
	}
}

func TestUnban(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if _, err := r.Ban("42", "spam", Permanent(), "", ""); err != nil {
		t.Fatal(err)
	}

	removed, err := r.Unban("42")
	if err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if !removed {
		t.Error("Unban should report an entry was removed")
	}
	if r.IsActive("42") {
		t.Error("unbanned id should not be active")
	}

	removed, err = r.Unban("42")
	if err != nil {
		t.Fatalf("second Unban: %v", err)
	}
	if removed {
		t.Error("Unban on absent id should report nothing removed")
	}
}

func TestReasonInactiveAfterExpiry(t *testing.T) {
	r, _, clk := newTestRegistry(t)

	if _, err := r.Ban("42", "griefing", TemporaryFor(time.Minute), "", ""); err != nil {
		t.Fatal(err)
	}
	if reason, ok := r.Reason("42"); !ok || reason != "griefing" {
		t.Errorf("Reason while active: got (%q, %v)", reason, ok)
	}

	clk.Advance(2 * time.Minute)
	if _, ok := r.Reason("42"); ok {
		t.Error("Reason should report not banned once expired")
	}
	if _, ok := r.Reason("never"); ok {
		t.Error("Reason on never-banned id should report not banned")
	}
}

func TestSweep(t *testing.T) {
	r, store, clk := newTestRegistry(t)

	if _, err := r.Ban("perm", "x", Permanent(), "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Ban("short", "x", TemporaryFor(time.Minute), "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Ban("long", "x", TemporaryFor(time.Hour), "", ""); err != nil {
		t.Fatal(err)
	}

	clk.Advance(5 * time.Minute)

	removed, err := r.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep removed %d entries, want 1", removed)
	}
	if !r.IsActive("perm") || !r.IsActive("long") {
		t.Error("sweep must not remove permanent or unexpired entries")
	}
	if r.IsActive("short") {
		t.Error("expired entry survived sweep")
	}
	if got := store.Calls("BanDeleteBatch"); got != 1 {
		t.Errorf("sweep should persist removals in one batch write, got %d", got)
	}

	// No time advance: repeat is a no-op and writes nothing.
	removed, err = r.Sweep()
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if removed != 0 {
		t.Errorf("repeated Sweep removed %d entries, want 0", removed)
	}
	if got := store.Calls("BanDeleteBatch"); got != 1 {
		t.Errorf("no-op sweep must not write, batch writes = %d", got)
	}
}

func TestListOrderAndStatus(t *testing.T) {
	r, _, clk := newTestRegistry(t)

	if _, err := r.Ban("a", "1", Permanent(), "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Ban("b", "2", TemporaryFor(10*time.Minute), "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Ban("c", "3", TemporaryFor(time.Minute), "", ""); err != nil {
		t.Fatal(err)
	}

	clk.Advance(150 * time.Second) // expires "c"

	entries, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}
	if entries[0].UserID != "a" || entries[1].UserID != "b" {
		t.Errorf("List order: got %q,%q, want a,b", entries[0].UserID, entries[1].UserID)
	}
	if mins := MinutesLeft(entries[1].BanRecord, clk.Now()); mins != 7 {
		t.Errorf("MinutesLeft: got %d, want 7", mins)
	}
}

func TestMinutesLeftClampsToZero(t *testing.T) {
	r, _, clk := newTestRegistry(t)
	rec, err := r.Ban("42", "x", TemporaryFor(time.Minute), "", "")
	if err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Hour)
	if mins := MinutesLeft(rec, clk.Now()); mins != 0 {
		t.Errorf("MinutesLeft past expiry: got %d, want 0", mins)
	}
}

func TestClearAll(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	for _, id := range []string{"a", "b", "c"} {
		if _, err := r.Ban(id, "x", Permanent(), "", ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("registry not empty after ClearAll: %d entries", r.Len())
	}
	entries, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("List after ClearAll returned %d entries", len(entries))
	}
}

func TestPersistenceFailureLeavesMemoryUnchanged(t *testing.T) {
	r, store, _ := newTestRegistry(t)

	store.SetError("BanPut", errors.New("disk full"))
	if _, err := r.Ban("42", "spam", Permanent(), "", ""); err == nil {
		t.Fatal("Ban should surface a persistence failure")
	}
	if r.IsActive("42") {
		t.Error("failed ban must not be visible in memory")
	}

	if _, err := r.Ban("42", "spam", Permanent(), "", ""); err != nil {
		t.Fatal(err)
	}
	store.SetError("BanDelete", errors.New("disk full"))
	if _, err := r.Unban("42"); err == nil {
		t.Fatal("Unban should surface a persistence failure")
	}
	if !r.IsActive("42") {
		t.Error("failed unban must leave the entry in place")
	}
}

func TestLoadRestoresInsertionOrder(t *testing.T) {
	store := testutil.NewMockStore()
	clk := newFakeClock()

	r1, err := New(store, zerolog.Nop(), WithClock(clk.Now))
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"first", "second", "third"} {
		if _, err := r1.Ban(id, "x", Permanent(), "", ""); err != nil {
			t.Fatal(err)
		}
		clk.Advance(time.Second) // distinct RecordedAt per entry
	}

	r2, err := New(store, zerolog.Nop(), WithClock(clk.Now))
	if err != nil {
		t.Fatal(err)
	}
	entries, err := r2.List()
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.UserID)
	}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("restored order %v, want %v", got, want)
		}
	}
}
