package engine

import (
	"errors"
	"testing"

	"go.stacker.dev/stk/internal/forge"
	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/vcs/vcstest"
)

func TestSync_DetectsMergedByAncestry(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.repo.AddRemote("origin")

	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "a")

	// Simulate a's commits having landed on trunk already (e.g. merged
	// by fast-forward outside the tool), so remote trunk now points at a.
	aHash, _ := h.repo.PeelToCommit(ctx, "a")
	h.repo.SeedRemoteBranch("origin", "main", aHash)

	result, err := h.svc.Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(result.Merged) != 1 || result.Merged[0] != "a" {
		t.Fatalf("expected a to be detected as merged, got %+v", result.Merged)
	}

	tracked, err := h.refs.IsTracked(ctx, "a")
	if err != nil {
		t.Fatalf("IsTracked: %v", err)
	}
	if tracked {
		t.Fatal("expected a to be untracked after cleanup")
	}

	bParent, ok, err := h.refs.GetParent(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("GetParent(b): %v, ok=%v", err, ok)
	}
	if bParent != "main" {
		t.Fatalf("expected b reparented to main, got %s", bParent)
	}
}

func TestSync_DetectsMergedByForge(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.repo.AddRemote("origin")
	h.addBranch(t, "a", "main")

	mainHash, _ := h.repo.PeelToCommit(ctx, "main")
	h.repo.SeedRemoteBranch("origin", "main", mainHash)

	h.forge.SeedPR("a", forge.PRInfo{Base: "main", Head: "a", State: forge.ChangeMerged})

	result, err := h.svc.Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(result.Merged) != 1 || result.Merged[0] != "a" {
		t.Fatalf("expected a to be detected as merged via forge, got %+v", result.Merged)
	}
}

func TestSync_KeepPreservesMergedBranches(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.repo.AddRemote("origin")
	h.addBranch(t, "a", "main")

	aHash, _ := h.repo.PeelToCommit(ctx, "a")
	h.repo.SeedRemoteBranch("origin", "main", aHash)

	_, err := h.svc.Sync(ctx, SyncOptions{Keep: true})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	tracked, err := h.refs.IsTracked(ctx, "a")
	if err != nil {
		t.Fatalf("IsTracked: %v", err)
	}
	if !tracked {
		t.Fatal("expected a to remain tracked when Keep is set")
	}
}

func TestSync_RestacksSurvivingChildren(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.repo.AddRemote("origin")
	h.addBranch(t, "a", "main")

	mainHash, _ := h.repo.PeelToCommit(ctx, "main")
	h.repo.SeedRemoteBranch("origin", "main", mainHash)
	// Advance remote trunk beyond local, so a needs a restack.
	h.repo.AddCommit(ctx, "main", "more trunk work")
	newMainHash, _ := h.repo.PeelToCommit(ctx, "main")
	h.repo.SeedRemoteBranch("origin", "main", newMainHash)
	// Revert local trunk so Sync's hard reset is meaningful.
	if err := h.repo.HardResetTo(ctx, string(mainHash)); err != nil {
		t.Fatalf("reset: %v", err)
	}

	result, err := h.svc.Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(result.Restacks) != 1 || result.Restacks[0].Branch != "a" {
		t.Fatalf("expected a to be restacked, got %+v", result.Restacks)
	}
}

func TestSync_ConflictPersistsOperationState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.repo.AddRemote("origin")
	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "a")
	h.repo.AddCommit(ctx, "b", "feature work"+vcstest.ConflictMarker)

	h.repo.AddCommit(ctx, "main", "more trunk work")
	mainHash, _ := h.repo.PeelToCommit(ctx, "main")
	h.repo.SeedRemoteBranch("origin", "main", mainHash)

	result, err := h.svc.Sync(ctx, SyncOptions{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(result.Restacks) != 1 || result.Restacks[0].Branch != "a" {
		t.Fatalf("expected a to restack before the conflict, got %+v", result.Restacks)
	}

	st, err := h.ops.Get(ctx)
	if err != nil {
		t.Fatalf("expected Operation State to be persisted, got %v", err)
	}
	if st.Kind != opstate.KindSync || st.OriginalBranch != "main" || st.CurrentBranch != "b" {
		t.Fatalf("unexpected state record: %+v", st)
	}
}
