package opstate_test

import (
	"errors"
	"path/filepath"
	"testing"

	"go.stacker.dev/stk/internal/opstate"
)

func TestLock_AcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stk.lock")
	lock := opstate.NewLock(path)

	guard, err := lock.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Released locks can be re-acquired.
	guard, err = lock.Acquire()
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestLock_SecondAcquireFailsWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stk.lock")
	lock := opstate.NewLock(path)

	guard, err := lock.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer guard.Release()

	if _, err := lock.Acquire(); !errors.Is(err, opstate.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}

func TestLock_ReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stk.lock")
	lock := opstate.NewLock(path)

	guard, err := lock.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}
}
