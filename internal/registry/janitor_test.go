package registry

import (
	"context"
	"testing"
	"time"

	"github.com/bloxmod/modbridge/internal/testutil"
	"github.com/rs/zerolog"
)

func TestJanitorSweepsExpiredBans(t *testing.T) {
	r, store, clk := newTestRegistry(t)

	if _, err := r.Ban("stale", "x", TemporaryFor(time.Minute), "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Ban("fresh", "x", TemporaryFor(time.Hour), "", ""); err != nil {
		t.Fatal(err)
	}
	clk.Advance(5 * time.Minute)

	j := NewJanitor(r, store, nil, 100*time.Millisecond, time.Minute, zerolog.Nop())
	j.tick()

	if r.IsActive("stale") {
		t.Error("expired ban should have been swept")
	}
	if !r.IsActive("fresh") {
		t.Error("fresh ban should not be swept")
	}
}

func TestJanitorKeepsPermanentBans(t *testing.T) {
	r, store, clk := newTestRegistry(t)

	if _, err := r.Ban("forever", "x", Permanent(), "", ""); err != nil {
		t.Fatal(err)
	}
	clk.Advance(24 * time.Hour)

	j := NewJanitor(r, store, nil, 100*time.Millisecond, time.Minute, zerolog.Nop())
	j.tick()

	if !r.IsActive("forever") {
		t.Error("permanent ban must survive the janitor")
	}
}

func TestJanitorPrunesRateEntries(t *testing.T) {
	r, store, _ := newTestRegistry(t)

	_, _ = store.APIRateGate("test-ep", 50*time.Millisecond, 5)
	_, _ = store.APIRateGate("test-ep", 50*time.Millisecond, 5)

	time.Sleep(100 * time.Millisecond)

	j := NewJanitor(r, store, nil, 100*time.Millisecond, 50*time.Millisecond, zerolog.Nop())
	j.tick()

	allowed, err := store.APIRateGate("test-ep", 50*time.Millisecond, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Error("after prune, rate gate should allow requests again")
	}
}

func TestJanitorTickImmediatelyOnStart(t *testing.T) {
	r, store, clk := newTestRegistry(t)

	if _, err := r.Ban("stale", "x", TemporaryFor(time.Minute), "", ""); err != nil {
		t.Fatal(err)
	}
	clk.Advance(5 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	j := NewJanitor(r, store, nil, time.Hour, time.Minute, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		_ = j.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for r.IsActive("stale") {
		select {
		case <-deadline:
			cancel()
			t.Fatal("janitor did not sweep on start")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestJanitorSurvivesStoreErrors(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	store := testutil.NewMockStore()
	store.SetError("PruneExpiredRateEntries", context.DeadlineExceeded)
	store.SetError("SizeBytes", context.DeadlineExceeded)

	j := NewJanitor(r, store, nil, 100*time.Millisecond, time.Minute, zerolog.Nop())
	j.tick() // must not panic
}
