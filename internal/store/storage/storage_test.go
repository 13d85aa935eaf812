package storage_test

import (
	"testing"

	"go.stacker.dev/stk/internal/store/storage"
	"go.stacker.dev/stk/internal/vcs/vcstest"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func backends(t *testing.T) map[string]storage.Backend {
	t.Helper()
	repo := vcstest.New("main")
	return map[string]storage.Backend{
		"mem": storage.NewMemBackend(),
		"git": storage.NewGitBackend(storage.GitConfig{
			Repo:        repo,
			Ref:         "refs/stk/test-store",
			AuthorName:  "Test",
			AuthorEmail: "test@example.com",
		}),
	}
}

func TestBackend_GetMissingKey(t *testing.T) {
	ctx := t.Context()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var dst widget
			err := b.Get(ctx, "does/not/exist.json", &dst)
			if err != storage.ErrNotExist {
				t.Fatalf("expected ErrNotExist, got %v", err)
			}
		})
	}
}

func TestBackend_SetThenGet(t *testing.T) {
	ctx := t.Context()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			db := storage.NewDB(b)
			want := widget{Name: "gizmo", Count: 3}
			if err := db.Set(ctx, "widgets/gizmo.json", want, "add gizmo"); err != nil {
				t.Fatalf("Set: %v", err)
			}

			var got widget
			if err := db.Get(ctx, "widgets/gizmo.json", &got); err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != want {
				t.Fatalf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestBackend_DeleteRemovesKey(t *testing.T) {
	ctx := t.Context()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			db := storage.NewDB(b)
			if err := db.Set(ctx, "widgets/gizmo.json", widget{Name: "gizmo"}, "add"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := db.Delete(ctx, "widgets/gizmo.json", "remove"); err != nil {
				t.Fatalf("Delete: %v", err)
			}

			var got widget
			if err := db.Get(ctx, "widgets/gizmo.json", &got); err != storage.ErrNotExist {
				t.Fatalf("expected ErrNotExist after delete, got %v", err)
			}
		})
	}
}

func TestBackend_KeysListsUnderDirectory(t *testing.T) {
	ctx := t.Context()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			db := storage.NewDB(b)
			if err := db.Set(ctx, "widgets/a.json", widget{Name: "a"}, "add a"); err != nil {
				t.Fatalf("Set(a): %v", err)
			}
			if err := db.Set(ctx, "widgets/b.json", widget{Name: "b"}, "add b"); err != nil {
				t.Fatalf("Set(b): %v", err)
			}
			if err := db.Set(ctx, "gadgets/c.json", widget{Name: "c"}, "add c"); err != nil {
				t.Fatalf("Set(c): %v", err)
			}

			keys, err := b.Keys(ctx, "widgets")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 2 || keys[0] != "a.json" || keys[1] != "b.json" {
				t.Fatalf("unexpected keys: %v", keys)
			}
		})
	}
}

func TestBackend_ClearRemovesEverything(t *testing.T) {
	ctx := t.Context()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			db := storage.NewDB(b)
			if err := db.Set(ctx, "a.json", widget{Name: "a"}, "add"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := b.Clear(ctx, "clear"); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			keys, err := b.Keys(ctx, "")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 0 {
				t.Fatalf("expected no keys after Clear, got %v", keys)
			}
		})
	}
}

// TestGitBackend_CommitsEachUpdate checks that the git-backed store
// actually advances its ref on every Update, leaving a history a
// GitBackend can replay.
func TestGitBackend_CommitsEachUpdate(t *testing.T) {
	ctx := t.Context()
	repo := vcstest.New("main")
	backend := storage.NewGitBackend(storage.GitConfig{
		Repo:        repo,
		Ref:         "refs/stk/test-store",
		AuthorName:  "Test",
		AuthorEmail: "test@example.com",
	})
	db := storage.NewDB(backend)

	if _, err := repo.ReadRef(ctx, "refs/stk/test-store"); err == nil {
		t.Fatal("expected the store ref to not exist before any write")
	}

	if err := db.Set(ctx, "a.json", widget{Name: "a"}, "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	firstHash, err := repo.ReadRef(ctx, "refs/stk/test-store")
	if err != nil {
		t.Fatalf("ReadRef after first write: %v", err)
	}

	if err := db.Set(ctx, "b.json", widget{Name: "b"}, "second"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	secondHash, err := repo.ReadRef(ctx, "refs/stk/test-store")
	if err != nil {
		t.Fatalf("ReadRef after second write: %v", err)
	}

	if firstHash == secondHash {
		t.Fatal("expected the store ref to advance on the second write")
	}

	isAncestor, err := repo.IsAncestor(ctx, firstHash, secondHash)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if !isAncestor {
		t.Fatal("expected the first commit to be an ancestor of the second")
	}
}
