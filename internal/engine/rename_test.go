package engine

import (
	"testing"

	"go.stacker.dev/stk/internal/vcs"
)

func TestRename_MigratesParentChildrenAndCache(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "a")
	if err := h.cache.SetPRURL(ctx, "a", ""); err != nil {
		t.Fatalf("SetPRURL: %v", err)
	}
	if err := h.cache.SetBaseSHA(ctx, "a", "deadbeef"); err != nil {
		t.Fatalf("SetBaseSHA: %v", err)
	}

	result, err := h.svc.Rename(ctx, "a", "a-renamed", RenameOptions{Local: true})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if result.OldName != "a" || result.NewName != "a-renamed" {
		t.Fatalf("unexpected result: %+v", result)
	}

	parent, ok, err := h.refs.GetParent(ctx, "a-renamed")
	if err != nil || !ok || parent != "main" {
		t.Fatalf("expected a-renamed parented to main, got %s ok=%v err=%v", parent, ok, err)
	}

	bParent, ok, err := h.refs.GetParent(ctx, "b")
	if err != nil || !ok || bParent != "a-renamed" {
		t.Fatalf("expected b reparented to a-renamed, got %s ok=%v err=%v", bParent, ok, err)
	}

	sha, ok := h.cache.GetBaseSHA(ctx, "a-renamed")
	if !ok || sha != "deadbeef" {
		t.Fatalf("expected cache migrated to a-renamed, got %s ok=%v", sha, ok)
	}
}

func TestRename_RejectsUntrackedBranch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	if err := h.repo.CreateBranch(ctx, "stray", "main"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	_, err := h.svc.Rename(ctx, "stray", "stray-renamed", RenameOptions{})
	if err == nil {
		t.Fatal("expected an error renaming an untracked branch")
	}
	if _, ok := err.(*NotTrackedError); !ok {
		t.Fatalf("expected *NotTrackedError, got %T: %v", err, err)
	}
}

func TestRename_RejectsExistingName(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	h.addBranch(t, "b", "main")

	_, err := h.svc.Rename(ctx, "a", "b", RenameOptions{Local: true})
	if err == nil {
		t.Fatal("expected an error renaming onto an existing branch name")
	}
}

func TestRename_RejectsOpenPRWithoutForceOrLocal(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	if err := h.cache.SetPRURL(ctx, "a", "https://fake.example/pr/a"); err != nil {
		t.Fatalf("SetPRURL: %v", err)
	}

	_, err := h.svc.Rename(ctx, "a", "a-renamed", RenameOptions{})
	if err == nil {
		t.Fatal("expected an error renaming a branch with an open change-request")
	}
}

func TestRename_ForceBypassesOpenPRCheck(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.addBranch(t, "a", "main")
	if err := h.cache.SetPRURL(ctx, "a", "https://fake.example/pr/a"); err != nil {
		t.Fatalf("SetPRURL: %v", err)
	}

	_, err := h.svc.Rename(ctx, "a", "a-renamed", RenameOptions{Force: true, Local: true})
	if err != nil {
		t.Fatalf("expected Force to bypass the open-PR check, got %v", err)
	}
}

func TestRename_LocalSkipsRemoteOperations(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.repo.AddRemote("origin")
	h.addBranch(t, "a", "main")
	aHash, _ := h.repo.PeelToCommit(ctx, "a")
	h.repo.SeedRemoteBranch("origin", "a", aHash)

	result, err := h.svc.Rename(ctx, "a", "a-renamed", RenameOptions{Local: true})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if result.RemotePushed || result.RemoteDeleted {
		t.Fatalf("expected no remote operations with Local, got %+v", result)
	}
}

func TestRename_PushesAndDeletesRemoteWhenPresent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()
	h.repo.AddRemote("origin")
	h.addBranch(t, "a", "main")
	aHash, _ := h.repo.PeelToCommit(ctx, "a")
	h.repo.SeedRemoteBranch("origin", "a", aHash)

	result, err := h.svc.Rename(ctx, "a", "a-renamed", RenameOptions{})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if !result.RemotePushed {
		t.Fatal("expected the renamed branch to be pushed to the remote")
	}
	if !result.RemoteDeleted {
		t.Fatal("expected the old remote branch to be deleted")
	}

	state, err := h.repo.RemoteBranchState(ctx, "origin", "a")
	if err != nil {
		t.Fatalf("RemoteBranchState: %v", err)
	}
	if state != vcs.RemoteNotPresent {
		t.Fatalf("expected old remote branch gone, got state %v", state)
	}
}

func TestRename_TrunkUpdatesTrunkDesignation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := t.Context()

	_, err := h.svc.Rename(ctx, "main", "trunk", RenameOptions{Local: true})
	if err != nil {
		t.Fatalf("Rename trunk: %v", err)
	}

	trunk, err := h.refs.GetTrunk(ctx)
	if err != nil {
		t.Fatalf("GetTrunk: %v", err)
	}
	if trunk != "trunk" {
		t.Fatalf("expected trunk designation to follow the rename, got %s", trunk)
	}
}
