// Package opstate persists the single in-progress, resumable operation
// record (Sync, Restack, Move, Reorder, or Insert) that lets a command paused by
// a rebase conflict be resumed with "continue" or cancelled with
// "abort", and the process-wide lock that serializes mutating commands.
package opstate

import (
	"context"
	"errors"
	"fmt"

	"go.stacker.dev/stk/internal/store/storage"
)

// Kind identifies which resumable command an Operation State record
// belongs to.
type Kind string

// The resumable command kinds.
const (
	KindSync    Kind = "sync"
	KindRestack Kind = "restack"
	KindMove    Kind = "move"
	KindReorder Kind = "reorder"
	KindInsert  Kind = "insert"
)

// InsertFields carries the extra bookkeeping an Insert operation needs
// to finish: the branch it inserted, and the child it displaced along
// with that child's prior parent.
type InsertFields struct {
	NewBranch      string `json:"new_branch,omitempty"`
	DisplacedChild string `json:"displaced_child,omitempty"`
	PriorParent    string `json:"prior_parent,omitempty"`
}

// State is the persisted record of an in-progress or paused operation.
type State struct {
	Kind              Kind         `json:"kind"`
	OriginalBranch    string       `json:"original_branch"`
	CurrentBranch     string       `json:"current_branch"`
	RemainingBranches []string     `json:"remaining_branches,omitempty"`
	Insert            InsertFields `json:"insert,omitempty"`
}

const stateKey = "opstate/current.json"

// ErrNoOperation means no operation is in progress.
var ErrNoOperation = errors.New("no operation in progress")

// ErrOperationInProgress means a new operation cannot start because one
// is already running or paused.
var ErrOperationInProgress = errors.New("an operation is already in progress, run continue or abort")

// Store persists at most one Operation State record at a time.
type Store struct {
	db *storage.DB
}

// New wraps a storage backend as an Operation State store.
func New(backend storage.Backend) *Store {
	return &Store{db: storage.NewDB(backend)}
}

// Start creates a new record, failing if one already exists.
func (s *Store) Start(ctx context.Context, st State) error {
	if _, err := s.Get(ctx); err == nil {
		return ErrOperationInProgress
	} else if !errors.Is(err, ErrNoOperation) {
		return err
	}
	return s.save(ctx, st, fmt.Sprintf("opstate: start %s", st.Kind))
}

// Get returns the current record, or ErrNoOperation if none exists.
func (s *Store) Get(ctx context.Context) (State, error) {
	var st State
	if err := s.db.Get(ctx, stateKey, &st); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return State{}, ErrNoOperation
		}
		return State{}, fmt.Errorf("read operation state: %w", err)
	}
	return st, nil
}

// Advance rewrites the record after successfully processing one branch,
// so a crash mid-operation resumes at the next branch rather than
// retrying the one that already completed.
func (s *Store) Advance(ctx context.Context, st State) error {
	return s.save(ctx, st, fmt.Sprintf("opstate: advance %s", st.Kind))
}

// Finish deletes the record on successful completion.
func (s *Store) Finish(ctx context.Context) error {
	err := s.db.Delete(ctx, stateKey, "opstate: finish")
	if errors.Is(err, storage.ErrNotExist) {
		return nil
	}
	return err
}

// Abort deletes the record when the user cancels a paused operation.
// The caller is responsible for restoring VCS state (rebase --abort,
// refs restored from backup) before calling this.
func (s *Store) Abort(ctx context.Context) error {
	return s.Finish(ctx)
}

func (s *Store) save(ctx context.Context, st State, msg string) error {
	return s.db.Set(ctx, stateKey, st, msg)
}
