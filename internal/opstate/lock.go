package opstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrLockHeld means another process already holds the operation lock.
var ErrLockHeld = errors.New("another stacker command is already running")

// Lock is a process-wide advisory lock, held for the entire duration of
// any mutating high-level command, so two commands can never interleave
// rebases or ref-store writes against the same working copy.
type Lock struct {
	path string
}

// NewLock returns a Lock backed by a file at path (typically inside the
// repository's git directory, e.g. ".git/stk.lock").
func NewLock(path string) *Lock {
	return &Lock{path: path}
}

// Guard releases the lock when the mutating command finishes.
type Guard struct {
	path string
}

// Acquire takes the lock, failing fast with ErrLockHeld if another
// process already holds it. The caller must call Release (typically via
// defer) when the command completes or aborts.
func (l *Lock) Acquire() (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			if pid, ok := pidOf(l.path); ok {
				return nil, fmt.Errorf("%w (pid %d)", ErrLockHeld, pid)
			}
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Guard{path: l.path}, nil
}

// Release drops the lock.
func (g *Guard) Release() error {
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// pidOf reads the pid recorded in a stale lock file, for diagnostics.
func pidOf(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(trimNewline(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
