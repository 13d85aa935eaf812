// Package store implements the stack graph's persistent state: the Ref
// Store (parent/child/trunk/frozen structure, kept as individual refs)
// and the Cache (soft per-branch change-request metadata), both living
// in a private ref namespace inside the repository rather than in any
// file a user edits.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.stacker.dev/stk/internal/must"
	"go.stacker.dev/stk/internal/vcs"
)

// RefNamespace is the private ref prefix under which all stacker state
// lives, e.g. "refs/stk".
const RefNamespace = "refs/stk"

var (
	// ErrNotInitialized means no trunk has been configured yet.
	ErrNotInitialized = errors.New("not initialized: no trunk is set")

	// ErrNotTracked means a branch has no parent record and isn't trunk.
	ErrNotTracked = errors.New("branch is not tracked")

	// ErrCycle means following parent links would loop without reaching trunk.
	ErrCycle = errors.New("cycle detected in stack graph")
)

func parentRef(branch string) string { return RefNamespace + "/parent/" + branch }
func frozenRef(branch string) string { return RefNamespace + "/frozen/" + branch }

const trunkRef = RefNamespace + "/config/trunk"

// RefStore persists the stack graph as a family of per-branch refs: a
// blob containing the parent's name at refs/stk/parent/<B>, a presence
// marker at refs/stk/frozen/<B>, and the trunk name at
// refs/stk/config/trunk.
type RefStore struct {
	repo vcs.Gateway
	sig  vcs.Signature
}

// New creates a RefStore backed by repo. sig is kept on the RefStore;
// the store writes only blobs and refs, which carry no author, so no
// write uses it.
func New(repo vcs.Gateway, sig vcs.Signature) *RefStore {
	return &RefStore{repo: repo, sig: sig}
}

func (s *RefStore) readBlobString(ctx context.Context, ref string) (string, bool, error) {
	hash, err := s.repo.ReadRef(ctx, ref)
	if err != nil {
		if errors.Is(err, vcs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}

	var buf strings.Builder
	if err := s.repo.ReadObject(ctx, vcs.BlobType, hash, &buf); err != nil {
		return "", false, fmt.Errorf("read blob at %s: %w", ref, err)
	}
	return buf.String(), true, nil
}

func (s *RefStore) writeBlobRef(ctx context.Context, ref, content, reason string) error {
	blob, err := s.repo.CreateBlob(ctx, []byte(content))
	if err != nil {
		return fmt.Errorf("create blob for %s: %w", ref, err)
	}

	old, err := s.repo.ReadRef(ctx, ref)
	if err != nil {
		if !errors.Is(err, vcs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", ref, err)
		}
		old = vcs.ZeroHash
	}

	if err := s.repo.SetRef(ctx, vcs.SetRefRequest{Ref: ref, Hash: blob, OldHash: old}); err != nil {
		return fmt.Errorf("%s: %w", reason, err)
	}
	return nil
}

// SetTrunk designates branch as the stack root. It fails if branch does
// not exist in the VCS.
func (s *RefStore) SetTrunk(ctx context.Context, branch string) error {
	must.NotBeBlankf(branch, "trunk branch name must not be blank")

	exists, err := s.repo.BranchExists(ctx, branch)
	if err != nil {
		return fmt.Errorf("check branch exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("branch %q does not exist, cannot set as trunk", branch)
	}

	return s.writeBlobRef(ctx, trunkRef, branch, "set trunk")
}

// GetTrunk returns the configured trunk branch name, or "" if none is set.
func (s *RefStore) GetTrunk(ctx context.Context) (string, error) {
	name, ok, err := s.readBlobString(ctx, trunkRef)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return name, nil
}

// RequireTrunk returns the trunk branch, or ErrNotInitialized if unset.
func (s *RefStore) RequireTrunk(ctx context.Context) (string, error) {
	trunk, err := s.GetTrunk(ctx)
	if err != nil {
		return "", err
	}
	if trunk == "" {
		return "", ErrNotInitialized
	}
	return trunk, nil
}

// SetParent records branch's parent as parent.
func (s *RefStore) SetParent(ctx context.Context, branch, parent string) error {
	return s.writeBlobRef(ctx, parentRef(branch), parent, fmt.Sprintf("set parent of %s", branch))
}

// RemoveParent deletes branch's parent record, untracking it.
func (s *RefStore) RemoveParent(ctx context.Context, branch string) error {
	if err := s.repo.DeleteRef(ctx, parentRef(branch)); err != nil {
		return fmt.Errorf("remove parent of %s: %w", branch, err)
	}
	return nil
}

// GetParent returns branch's parent and true, or "" and false if branch
// is untracked.
func (s *RefStore) GetParent(ctx context.Context, branch string) (string, bool, error) {
	return s.readBlobString(ctx, parentRef(branch))
}

// IsTracked reports whether branch has a parent record.
func (s *RefStore) IsTracked(ctx context.Context, branch string) (bool, error) {
	_, ok, err := s.GetParent(ctx, branch)
	return ok, err
}

// GetChildren returns the set of branches whose parent is branch,
// derived by enumerating all parent refs.
func (s *RefStore) GetChildren(ctx context.Context, branch string) ([]string, error) {
	names, err := s.repo.ListRefs(ctx, RefNamespace+"/parent/")
	if err != nil {
		return nil, fmt.Errorf("list parent refs: %w", err)
	}

	var children []string
	for _, ref := range names {
		name := strings.TrimPrefix(ref, RefNamespace+"/parent/")
		if name == branch {
			continue
		}
		parent, ok, err := s.GetParent(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok && parent == branch {
			children = append(children, name)
		}
	}
	return children, nil
}

// Reparent moves branch to a new parent by overwriting its single
// parent ref, so the old parent edge is replaced in the same update
// that adds the new one and a branch never has two parents.
func (s *RefStore) Reparent(ctx context.Context, branch, newParent string) error {
	return s.SetParent(ctx, branch, newParent)
}

// SetFrozen marks branch as frozen (or not). Restack and Move refuse a
// frozen branch with FrozenError; Reorder, Rename, and Create's insert
// do not check the flag.
func (s *RefStore) SetFrozen(ctx context.Context, branch string, frozen bool) error {
	if !frozen {
		if err := s.repo.DeleteRef(ctx, frozenRef(branch)); err != nil {
			if errors.Is(err, vcs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("unfreeze %s: %w", branch, err)
		}
		return nil
	}
	return s.writeBlobRef(ctx, frozenRef(branch), branch, fmt.Sprintf("freeze %s", branch))
}

// IsFrozen reports whether branch has been frozen by the user.
func (s *RefStore) IsFrozen(ctx context.Context, branch string) (bool, error) {
	_, ok, err := s.readBlobString(ctx, frozenRef(branch))
	return ok, err
}

// Ancestors returns branch's parent chain, trunk-exclusive, ordered
// parent-before-child (the root-most tracked ancestor first). It fails
// with ErrCycle if a branch reappears before reaching trunk.
func (s *RefStore) Ancestors(ctx context.Context, branch string) ([]string, error) {
	trunk, err := s.RequireTrunk(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{branch: true}
	var chain []string
	cur := branch
	for {
		parent, ok, err := s.GetParent(ctx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotTracked, cur)
		}
		if parent == trunk {
			break
		}
		if seen[parent] {
			return nil, fmt.Errorf("%w: at %s", ErrCycle, parent)
		}
		seen[parent] = true
		chain = append(chain, parent)
		cur = parent
	}

	// chain currently holds ancestors nearest-to-branch first; reverse
	// to get parent-before-child (root-most first).
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// RemoveBranch deletes branch's parent and frozen records entirely. It
// does not touch its children; callers reparent them first.
func (s *RefStore) RemoveBranch(ctx context.Context, branch string) error {
	if err := s.repo.DeleteRef(ctx, parentRef(branch)); err != nil && !errors.Is(err, vcs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", branch, err)
	}
	if err := s.repo.DeleteRef(ctx, frozenRef(branch)); err != nil && !errors.Is(err, vcs.ErrNotExist) {
		return fmt.Errorf("remove frozen marker for %s: %w", branch, err)
	}
	return nil
}

// ListTracked returns every branch with a parent record.
func (s *RefStore) ListTracked(ctx context.Context) ([]string, error) {
	names, err := s.repo.ListRefs(ctx, RefNamespace+"/parent/")
	if err != nil {
		return nil, fmt.Errorf("list tracked branches: %w", err)
	}

	tracked := make([]string, 0, len(names))
	for _, ref := range names {
		tracked = append(tracked, strings.TrimPrefix(ref, RefNamespace+"/parent/"))
	}
	return tracked, nil
}
