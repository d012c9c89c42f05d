package testutil

import (
	"errors"
	"testing"

	"github.com/bloxmod/modbridge/internal/storage"
)

func TestSetErrorIsOneShot(t *testing.T) {
	m := NewMockStore()
	injected := errors.New("boom")

	m.SetError("BanPut", injected)
	if err := m.BanPut("42", storage.BanRecord{}); !errors.Is(err, injected) {
		t.Fatalf("first call: got %v, want injected error", err)
	}
	if err := m.BanPut("42", storage.BanRecord{}); err != nil {
		t.Fatalf("second call: got %v, want nil", err)
	}
}

func TestFailedCallDoesNotMutate(t *testing.T) {
	m := NewMockStore()

	m.SetError("BanPut", errors.New("boom"))
	_ = m.BanPut("42", storage.BanRecord{Reason: "spam"})

	bans, err := m.BanList()
	if err != nil {
		t.Fatal(err)
	}
	if len(bans) != 0 {
		t.Errorf("failed put must not store: %v", bans)
	}
}

func TestCallsCounts(t *testing.T) {
	m := NewMockStore()

	_ = m.BanPut("a", storage.BanRecord{})
	_ = m.BanPut("b", storage.BanRecord{})
	_ = m.BanDelete("a")

	if got := m.Calls("BanPut"); got != 2 {
		t.Errorf("BanPut calls = %d, want 2", got)
	}
	if got := m.Calls("BanDelete"); got != 1 {
		t.Errorf("BanDelete calls = %d, want 1", got)
	}
	if got := m.Calls("BanClear"); got != 0 {
		t.Errorf("BanClear calls = %d, want 0", got)
	}
}
