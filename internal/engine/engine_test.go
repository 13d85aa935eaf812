package engine

import (
	"testing"

	"go.stacker.dev/stk/internal/config"
	"go.stacker.dev/stk/internal/forge/faketest"
	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/store"
	"go.stacker.dev/stk/internal/store/storage"
	"go.stacker.dev/stk/internal/vcs"
	"go.stacker.dev/stk/internal/vcs/vcstest"
)

// testHarness bundles an in-memory Service and its fakes for assertions.
type testHarness struct {
	repo  *vcstest.Repository
	refs  *store.RefStore
	cache *store.Cache
	ops   *opstate.Store
	forge *faketest.Repository
	svc   *Service
}

func newHarness(t *testing.T, cfgValues map[string]string) *testHarness {
	t.Helper()

	repo := vcstest.New("main")
	sig := vcs.Signature{Name: "Test", Email: "test@example.com"}
	refs := store.New(repo, sig)
	cache := store.NewCache(storage.NewMemBackend())
	ops := opstate.New(storage.NewMemBackend())
	fake := faketest.New()

	if cfgValues == nil {
		cfgValues = map[string]string{}
	}
	cfg := config.New(cfgValues)

	svc := New(Options{
		Repo:   repo,
		Refs:   refs,
		Cache:  cache,
		Ops:    ops,
		Forge:  fake,
		Config: cfg,
	})

	ctx := t.Context()
	if err := refs.SetTrunk(ctx, "main"); err != nil {
		t.Fatalf("set trunk: %v", err)
	}

	return &testHarness{repo: repo, refs: refs, cache: cache, ops: ops, forge: fake, svc: svc}
}

// addBranch creates a tracked branch on top of parent with one commit.
func (h *testHarness) addBranch(t *testing.T, branch, parent string) {
	t.Helper()
	ctx := t.Context()
	parentHash, err := h.repo.PeelToCommit(ctx, parent)
	if err != nil {
		t.Fatalf("peel parent %s: %v", parent, err)
	}
	if err := h.repo.CreateBranch(ctx, branch, string(parentHash)); err != nil {
		t.Fatalf("create branch %s: %v", branch, err)
	}
	h.repo.AddCommit(ctx, branch, "work on "+branch)
	if err := h.refs.SetParent(ctx, branch, parent); err != nil {
		t.Fatalf("set parent: %v", err)
	}
}
