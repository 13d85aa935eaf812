package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/store"
	"go.stacker.dev/stk/internal/vcs"
)

// ErrAlreadyRestacked means the branch is already on top of its
// parent's current tip; Restack is a no-op.
var ErrAlreadyRestacked = errors.New("branch is already restacked")

// RestackResult reports the outcome of restacking a single branch.
type RestackResult struct {
	Branch string
	Parent string
}

// Restack rebases branch onto its parent's current tip if it has
// drifted, recording a backup ref first so abort/recovery can restore
// the pre-rebase tip. Returns ErrAlreadyRestacked if nothing to do.
func (s *Service) Restack(ctx context.Context, branch string) (*RestackResult, error) {
	parent, ok, err := s.refs.GetParent(ctx, branch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotTrackedError{Branch: branch}
	}
	if frozen, err := s.refs.IsFrozen(ctx, branch); err != nil {
		return nil, err
	} else if frozen {
		return nil, &FrozenError{Branch: branch}
	}

	needsRestack, parentHash, upstream, err := s.needsRestack(ctx, branch, parent)
	if err != nil {
		return nil, err
	}
	if !needsRestack {
		return nil, ErrAlreadyRestacked
	}

	if err := s.backupBranch(ctx, branch); err != nil {
		s.log.Warn("could not write backup ref", "branch", branch, "error", err)
	}

	if err := s.repo.Rebase(ctx, vcs.RebaseRequest{
		Branch:    branch,
		Upstream:  upstream.String(),
		Onto:      parentHash.String(),
		Autostash: true,
		Quiet:     true,
	}); err != nil {
		var interrupt *vcs.RebaseInterruptError
		if errors.As(err, &interrupt) {
			return nil, &ConflictError{Branch: branch, Err: err}
		}
		return nil, fmt.Errorf("rebase %s onto %s: %w", branch, parent, err)
	}

	return &RestackResult{Branch: branch, Parent: parent}, nil
}

// needsRestack reports whether branch's parent has moved out from under
// it, and computes the upstream commit to rebase from: the parent's
// recorded tip normally, or the fork point between parent and branch if
// the parent moved so far that its old tip is unreachable (e.g. it was
// amended or squash-merged externally).
func (s *Service) needsRestack(ctx context.Context, branch, parent string) (needs bool, parentHash, upstream vcs.Hash, err error) {
	parentHash, err = s.repo.PeelToCommit(ctx, parent)
	if err != nil {
		return false, "", "", fmt.Errorf("parent %s does not exist: %w", parent, err)
	}

	branchHash, err := s.repo.PeelToCommit(ctx, branch)
	if err != nil {
		return false, "", "", fmt.Errorf("branch %s does not exist: %w", branch, err)
	}

	isAncestor, err := s.repo.IsAncestor(ctx, parentHash, branchHash)
	if err != nil {
		return false, "", "", fmt.Errorf("check ancestry: %w", err)
	}
	if isAncestor {
		return false, parentHash, parentHash, nil
	}

	upstream = parentHash
	if forkPoint, err := s.repo.ForkPoint(ctx, parent, branch); err == nil {
		upstream = forkPoint
	}
	return true, parentHash, upstream, nil
}

// VerifyRestacked reports ErrAlreadyRestacked or the detail that would
// be rebased, without performing the rebase.
func (s *Service) VerifyRestacked(ctx context.Context, branch string) error {
	parent, ok, err := s.refs.GetParent(ctx, branch)
	if err != nil {
		return err
	}
	if !ok {
		return &NotTrackedError{Branch: branch}
	}

	needs, _, _, err := s.needsRestack(ctx, branch, parent)
	if err != nil {
		return err
	}
	if !needs {
		return ErrAlreadyRestacked
	}
	return nil
}

func (s *Service) backupBranch(ctx context.Context, branch string) error {
	hash, err := s.repo.PeelToCommit(ctx, branch)
	if err != nil {
		return err
	}
	ref := fmt.Sprintf("%s/backup/%s/%d", store.RefNamespace, branch, backupTimestamp())
	return s.repo.SetRef(ctx, vcs.SetRefRequest{Ref: ref, Hash: hash})
}

// RestackTree restacks branch itself and then every tracked descendant,
// trunk-ward before tip-ward, as the public restack(B) operation: the
// topological order is computed bottom-up from B, restricted to B's own
// subtree including B. A rebase conflict anywhere in the walk pauses the
// whole operation, persists Operation State naming the branch it paused
// on and the branches still to come, and returns early.
func (s *Service) RestackTree(ctx context.Context, branch string) ([]RestackResult, error) {
	descendants, err := s.descendantOrder(ctx, branch)
	if err != nil {
		return nil, err
	}
	order := append([]string{branch}, descendants...)
	return s.restackOrdered(ctx, opstate.KindRestack, branch, order)
}

// RestackDescendants restacks branch's tracked descendants only,
// trunk-ward before tip-ward, without restacking branch itself.
func (s *Service) RestackDescendants(ctx context.Context, branch string) ([]RestackResult, error) {
	order, err := s.descendantOrder(ctx, branch)
	if err != nil {
		return nil, err
	}
	return s.restackOrdered(ctx, opstate.KindRestack, branch, order)
}

// descendantOrder lists branch's tracked descendants, trunk-ward before
// tip-ward, siblings in the order GetChildren returns them. branch
// itself is not included.
func (s *Service) descendantOrder(ctx context.Context, branch string) ([]string, error) {
	var order []string
	children, err := s.refs.GetChildren(ctx, branch)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		order = append(order, child)
		rest, err := s.descendantOrder(ctx, child)
		if err != nil {
			return order, err
		}
		order = append(order, rest...)
	}
	return order, nil
}

// restackOrdered restacks each branch in order in turn. If a rebase
// pauses on conflict, it persists an Operation State record under kind
// before returning, so "stk rebase continue" or "stk rebase abort" can
// finish or cancel the git rebase and clear the record instead of
// finding nothing to act on.
func (s *Service) restackOrdered(ctx context.Context, kind opstate.Kind, original string, order []string) ([]RestackResult, error) {
	var results []RestackResult
	for i, branch := range order {
		res, err := s.Restack(ctx, branch)
		switch {
		case err == nil:
			results = append(results, *res)
			continue
		case errors.Is(err, ErrAlreadyRestacked):
			continue
		}

		var conflict *ConflictError
		if errors.As(err, &conflict) {
			st := opstate.State{
				Kind:              kind,
				OriginalBranch:    original,
				CurrentBranch:     branch,
				RemainingBranches: append([]string(nil), order[i+1:]...),
			}
			if startErr := s.ops.Start(ctx, st); startErr != nil {
				s.log.Warn("could not persist operation state", "branch", branch, "error", startErr)
			}
		}
		return results, err
	}
	return results, nil
}

// backupTimestamp is a seam so tests can pin the backup ref's timestamp
// component; production wiring leaves it as time.Now().Unix.
var backupTimestamp = func() int64 { return time.Now().Unix() }
