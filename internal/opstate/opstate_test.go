package opstate_test

import (
	"errors"
	"reflect"
	"testing"

	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/store/storage"
)

func TestStore_GetWithNoOperation(t *testing.T) {
	ctx := t.Context()
	s := opstate.New(storage.NewMemBackend())

	if _, err := s.Get(ctx); !errors.Is(err, opstate.ErrNoOperation) {
		t.Fatalf("expected ErrNoOperation, got %v", err)
	}
}

func TestStore_StartThenGet(t *testing.T) {
	ctx := t.Context()
	s := opstate.New(storage.NewMemBackend())

	want := opstate.State{
		Kind:           opstate.KindRestack,
		OriginalBranch: "feature",
		CurrentBranch:  "feature",
	}
	if err := s.Start(ctx, want); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestStore_StartTwiceFails(t *testing.T) {
	ctx := t.Context()
	s := opstate.New(storage.NewMemBackend())

	st := opstate.State{Kind: opstate.KindSync, OriginalBranch: "a", CurrentBranch: "a"}
	if err := s.Start(ctx, st); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := s.Start(ctx, st); !errors.Is(err, opstate.ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}
}

func TestStore_AdvanceUpdatesRecord(t *testing.T) {
	ctx := t.Context()
	s := opstate.New(storage.NewMemBackend())

	st := opstate.State{
		Kind:              opstate.KindSync,
		OriginalBranch:    "a",
		CurrentBranch:     "a",
		RemainingBranches: []string{"b", "c"},
	}
	if err := s.Start(ctx, st); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st.CurrentBranch = "b"
	st.RemainingBranches = []string{"c"}
	if err := s.Advance(ctx, st); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CurrentBranch != "b" || len(got.RemainingBranches) != 1 || got.RemainingBranches[0] != "c" {
		t.Fatalf("unexpected state after Advance: %+v", got)
	}
}

func TestStore_FinishClearsRecord(t *testing.T) {
	ctx := t.Context()
	s := opstate.New(storage.NewMemBackend())

	if err := s.Start(ctx, opstate.State{Kind: opstate.KindMove, OriginalBranch: "a", CurrentBranch: "a"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := s.Get(ctx); !errors.Is(err, opstate.ErrNoOperation) {
		t.Fatalf("expected ErrNoOperation after Finish, got %v", err)
	}

	// Finish is idempotent: finishing with nothing in progress is fine.
	if err := s.Finish(ctx); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
}

func TestStore_AbortClearsRecord(t *testing.T) {
	ctx := t.Context()
	s := opstate.New(storage.NewMemBackend())

	st := opstate.State{
		Kind:           opstate.KindInsert,
		OriginalBranch: "a",
		CurrentBranch:  "a",
		Insert: opstate.InsertFields{
			NewBranch:      "a-mid",
			DisplacedChild: "b",
			PriorParent:    "a",
		},
	}
	if err := s.Start(ctx, st); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := s.Get(ctx); !errors.Is(err, opstate.ErrNoOperation) {
		t.Fatalf("expected ErrNoOperation after Abort, got %v", err)
	}
}
