package engine

import (
	"errors"
	"testing"

	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/vcs/vcstest"
)

func TestRestack_AlreadyUpToDate(t *testing.T) {
	h := newHarness(t, nil)
	h.addBranch(t, "a", "main")

	_, err := h.svc.Restack(t.Context(), "a")
	if !errors.Is(err, ErrAlreadyRestacked) {
		t.Fatalf("expected ErrAlreadyRestacked, got %v", err)
	}
}

func TestRestack_NeedsRestack(t *testing.T) {
	h := newHarness(t, nil)
	h.addBranch(t, "a", "main")

	// Advance trunk past the commit a was based on.
	h.repo.AddCommit(t.Context(), "main", "trunk moved on")

	res, err := h.svc.Restack(t.Context(), "a")
	if err != nil {
		t.Fatalf("Restack: %v", err)
	}
	if res.Branch != "a" || res.Parent != "main" {
		t.Fatalf("unexpected result: %+v", res)
	}

	mainHash, _ := h.repo.PeelToCommit(t.Context(), "main")
	aHash, _ := h.repo.PeelToCommit(t.Context(), "a")
	ok, _ := h.repo.IsAncestor(t.Context(), mainHash, aHash)
	if !ok {
		t.Fatal("expected trunk to be an ancestor of a after restack")
	}
}

func TestRestack_UntrackedBranch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	if err := h.repo.CreateBranch(ctx, "stray", "main"); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	_, err := h.svc.Restack(ctx, "stray")
	var notTracked *NotTrackedError
	if !errors.As(err, &notTracked) {
		t.Fatalf("expected NotTrackedError, got %v", err)
	}
}

func TestRestack_FrozenBranch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	if err := h.refs.SetFrozen(ctx, "a", true); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	h.repo.AddCommit(ctx, "main", "trunk moved on")

	_, err := h.svc.Restack(ctx, "a")
	var frozen *FrozenError
	if !errors.As(err, &frozen) {
		t.Fatalf("expected FrozenError, got %v", err)
	}
}

func TestRestack_Conflict(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	// Add a commit to a that will conflict on replay.
	h.repo.AddCommit(ctx, "a", "feature work"+vcstest.ConflictMarker)
	h.repo.AddCommit(ctx, "main", "trunk moved on")

	_, err := h.svc.Restack(ctx, "a")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestRestackTree_IncludesSelfAndDescendants(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "a")
	h.repo.AddCommit(ctx, "main", "trunk moved on")

	results, err := h.svc.RestackTree(ctx, "a")
	if err != nil {
		t.Fatalf("RestackTree: %v", err)
	}
	if len(results) != 2 || results[0].Branch != "a" || results[1].Branch != "b" {
		t.Fatalf("expected a then b restacked, got %+v", results)
	}
}

func TestRestackTree_ConflictPersistsOperationState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "a")
	// b will conflict when replayed after a is restacked onto the new trunk tip.
	h.repo.AddCommit(ctx, "b", "feature work"+vcstest.ConflictMarker)
	h.repo.AddCommit(ctx, "main", "trunk moved on")

	_, err := h.svc.RestackTree(ctx, "a")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	st, err := h.ops.Get(ctx)
	if err != nil {
		t.Fatalf("expected Operation State to be persisted, got %v", err)
	}
	if st.Kind != opstate.KindRestack || st.OriginalBranch != "a" || st.CurrentBranch != "b" {
		t.Fatalf("unexpected state record: %+v", st)
	}
	if len(st.RemainingBranches) != 0 {
		t.Fatalf("expected no remaining branches after b, got %+v", st.RemainingBranches)
	}
}

func TestRestackDescendants_ParentBeforeChild(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "a")
	h.repo.AddCommit(ctx, "main", "trunk moved on")

	results, err := h.svc.RestackDescendants(ctx, "main")
	if err != nil {
		t.Fatalf("RestackDescendants: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 restacks, got %d: %+v", len(results), results)
	}
	if results[0].Branch != "a" || results[1].Branch != "b" {
		t.Fatalf("expected parent-before-child order, got %+v", results)
	}
}
