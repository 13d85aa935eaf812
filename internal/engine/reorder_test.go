package engine

import (
	"errors"
	"testing"

	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/vcs/vcstest"
)

func TestValidateReorder_Duplicates(t *testing.T) {
	err := ValidateReorder(ReorderRequest{
		Original: []string{"f1", "f2"},
		NewOrder: []string{"f1", "f1"},
	})
	if err == nil {
		t.Fatal("expected an error for duplicate branch names")
	}
}

func TestValidateReorder_UnknownBranch(t *testing.T) {
	err := ValidateReorder(ReorderRequest{
		Original: []string{"f1", "f2"},
		NewOrder: []string{"f1", "unknown"},
	})
	if err == nil {
		t.Fatal("expected an error for an unknown branch")
	}
}

func TestValidateReorder_SubsetAllowed(t *testing.T) {
	err := ValidateReorder(ReorderRequest{
		Original: []string{"f1", "f2", "f3"},
		NewOrder: []string{"f1", "f3"},
	})
	if err != nil {
		t.Fatalf("expected subset removal to be allowed, got %v", err)
	}
}

func TestReorder_SwapOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "f1", "main")
	h.addBranch(t, "f2", "f1")

	result, err := h.svc.Reorder(ctx, "main", ReorderRequest{
		Original: []string{"f1", "f2"},
		NewOrder: []string{"f2", "f1"},
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if result.Paused {
		t.Fatal("did not expect a conflict pause")
	}

	f1Parent, _, _ := h.refs.GetParent(ctx, "f1")
	f2Parent, _, _ := h.refs.GetParent(ctx, "f2")
	if f2Parent != "main" {
		t.Fatalf("expected f2 reparented to main, got %s", f2Parent)
	}
	if f1Parent != "f2" {
		t.Fatalf("expected f1 reparented to f2, got %s", f1Parent)
	}
}

func TestReorder_RemovalReparentsChildrenToRemovedParent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "f1", "main")
	h.addBranch(t, "f2", "f1")
	h.addBranch(t, "f3", "f2")

	result, err := h.svc.Reorder(ctx, "main", ReorderRequest{
		Original: []string{"f1", "f2", "f3"},
		NewOrder: []string{"f1", "f3"},
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != "f2" {
		t.Fatalf("expected f2 to be removed, got %+v", result.Removed)
	}

	tracked, err := h.refs.IsTracked(ctx, "f2")
	if err != nil {
		t.Fatalf("IsTracked: %v", err)
	}
	if tracked {
		t.Fatal("expected f2 to be untracked")
	}

	f3Parent, ok, err := h.refs.GetParent(ctx, "f3")
	if err != nil || !ok {
		t.Fatalf("GetParent(f3): %v ok=%v", err, ok)
	}
	if f3Parent != "f1" {
		t.Fatalf("expected f3 reparented to f1 (f2's old parent), got %s", f3Parent)
	}
}

func TestMove_RejectsCycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "a")

	_, err := h.svc.Move(ctx, "a", "b")
	if err == nil {
		t.Fatal("expected an error moving a onto its own descendant")
	}
	var cycleErr *CycleError
	if _, ok := err.(*CycleError); !ok {
		t.Fatalf("expected *CycleError, got %T: %v (cycleErr=%v)", err, err, cycleErr)
	}
}

func TestMove_ReparentsAndRestacks(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "main")

	_, err := h.svc.Move(ctx, "b", "a")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}

	bParent, ok, err := h.refs.GetParent(ctx, "b")
	if err != nil || !ok || bParent != "a" {
		t.Fatalf("expected b reparented to a, got %s ok=%v err=%v", bParent, ok, err)
	}

	aHash, _ := h.repo.PeelToCommit(ctx, "a")
	bHash, _ := h.repo.PeelToCommit(ctx, "b")
	isAncestor, _ := h.repo.IsAncestor(ctx, aHash, bHash)
	if !isAncestor {
		t.Fatal("expected a to be an ancestor of b after the move's restack")
	}
}

func TestMove_ConflictPersistsOperationState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "main")
	h.repo.AddCommit(ctx, "b", "feature work"+vcstest.ConflictMarker)

	_, err := h.svc.Move(ctx, "b", "a")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	st, err := h.ops.Get(ctx)
	if err != nil {
		t.Fatalf("expected Operation State to be persisted, got %v", err)
	}
	if st.Kind != opstate.KindMove || st.OriginalBranch != "b" || st.CurrentBranch != "b" {
		t.Fatalf("unexpected state record: %+v", st)
	}
}

func TestReorder_ConflictPersistsOperationState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "f1", "main")
	h.addBranch(t, "f2", "f1")
	h.repo.AddCommit(ctx, "f2", "more work"+vcstest.ConflictMarker)

	result, err := h.svc.Reorder(ctx, "main", ReorderRequest{
		Original: []string{"f1", "f2"},
		NewOrder: []string{"f2", "f1"},
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if !result.Paused {
		t.Fatal("expected the reorder to pause on conflict")
	}

	st, err := h.ops.Get(ctx)
	if err != nil {
		t.Fatalf("expected Operation State to be persisted, got %v", err)
	}
	if st.Kind != opstate.KindReorder || st.OriginalBranch != "f2" || st.CurrentBranch != "f2" {
		t.Fatalf("unexpected state record: %+v", st)
	}
	if len(st.RemainingBranches) != 1 || st.RemainingBranches[0] != "f1" {
		t.Fatalf("expected f1 to remain, got %+v", st.RemainingBranches)
	}
}
