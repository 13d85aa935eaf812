package engine

import (
	"context"
	"errors"
	"fmt"

	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/vcs"
)

// Move reparents branch onto newParent and restacks branch's own
// subtree. It rejects moves that would introduce a cycle, i.e. where
// newParent is branch itself or one of branch's own descendants.
func (s *Service) Move(ctx context.Context, branch, newParent string) ([]RestackResult, error) {
	if frozen, err := s.refs.IsFrozen(ctx, branch); err != nil {
		return nil, err
	} else if frozen {
		return nil, &FrozenError{Branch: branch}
	}

	if err := s.checkNotDescendant(ctx, branch, newParent); err != nil {
		return nil, err
	}

	if err := s.refs.Reparent(ctx, branch, newParent); err != nil {
		return nil, err
	}

	descendants, err := s.descendantOrder(ctx, branch)
	if err != nil {
		return nil, err
	}
	order := append([]string{branch}, descendants...)
	return s.restackOrdered(ctx, opstate.KindMove, branch, order)
}

// checkNotDescendant walks candidate's ancestor chain and fails if
// branch appears in it, which would make branch its own descendant's
// descendant once reparented.
func (s *Service) checkNotDescendant(ctx context.Context, branch, candidate string) error {
	if branch == candidate {
		return &CycleError{Branch: branch}
	}
	trunk, err := s.refs.RequireTrunk(ctx)
	if err != nil {
		return err
	}
	if candidate == trunk {
		return nil
	}

	cur := candidate
	for {
		parent, ok, err := s.refs.GetParent(ctx, cur)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if parent == branch {
			return &CycleError{Branch: branch}
		}
		if parent == trunk {
			return nil
		}
		cur = parent
	}
}

// ReorderRequest is a user-supplied linear ordering for the downstack of
// some branch: the branches from trunk's first child down to the
// branch the reorder was invoked from.
type ReorderRequest struct {
	// Original is the current downstack, trunk-exclusive, parent before
	// child, as returned by RefStore.Ancestors plus the branch itself.
	Original []string
	// NewOrder is the user's requested ordering. It may be a strict
	// subset of Original (missing names are removed from the stack);
	// it may not contain names absent from Original, and may not
	// contain duplicates.
	NewOrder []string
}

// ReparentPair records a single branch's reparenting during a reorder,
// carrying both the new and old parent so the rebase can replay exactly
// the commits unique to the branch.
type ReparentPair struct {
	Branch    string
	NewParent string
	OldParent string
}

// ReorderResult reports what a Reorder did.
type ReorderResult struct {
	Removed []string
	Applied []RestackResult
	Paused  bool
}

// ValidateReorder checks req.NewOrder against req.Original: no
// duplicates, no names absent from the original set. Removing branches
// (a subset) is allowed.
func ValidateReorder(req ReorderRequest) error {
	seen := make(map[string]bool, len(req.NewOrder))
	originalSet := make(map[string]bool, len(req.Original))
	for _, b := range req.Original {
		originalSet[b] = true
	}

	for _, b := range req.NewOrder {
		if seen[b] {
			return fmt.Errorf("duplicate branch name in reorder list: %s", b)
		}
		seen[b] = true
		if !originalSet[b] {
			return fmt.Errorf("unknown branch %q: can only reorder existing stack branches", b)
		}
	}
	return nil
}

// Reorder applies a new linear order to a trunk-rooted downstack.
// Branches dropped from NewOrder are removed from the stack first
// (their children reparented to the removed branch's parent, then
// untracked); surviving branches are then reparented to match the new
// order and rebased, trunk-ward first, each via a replay of exactly the
// commits between its old parent and its own tip onto its new parent.
// A rebase conflict persists an Operation State record and returns
// early with Paused set.
func (s *Service) Reorder(ctx context.Context, trunk string, req ReorderRequest) (*ReorderResult, error) {
	if err := ValidateReorder(req); err != nil {
		return nil, err
	}

	result := &ReorderResult{}
	newOrderSet := make(map[string]bool, len(req.NewOrder))
	for _, b := range req.NewOrder {
		newOrderSet[b] = true
	}

	// Removals happen first: the pre-removal parent/child edges are
	// what "reparent children to the removed branch's parent" needs.
	for _, branch := range req.Original {
		if newOrderSet[branch] {
			continue
		}
		parent, ok, err := s.refs.GetParent(ctx, branch)
		if err != nil {
			return result, err
		}
		if ok {
			children, err := s.refs.GetChildren(ctx, branch)
			if err != nil {
				return result, err
			}
			for _, child := range children {
				if err := s.refs.Reparent(ctx, child, parent); err != nil {
					return result, err
				}
			}
		}
		if err := s.refs.RemoveBranch(ctx, branch); err != nil {
			return result, err
		}
		result.Removed = append(result.Removed, branch)
	}

	pairs, err := s.computeReparentPairs(ctx, trunk, req.NewOrder)
	if err != nil {
		return result, err
	}
	if len(pairs) == 0 {
		return result, nil
	}

	for _, pair := range pairs {
		if err := s.backupBranch(ctx, pair.Branch); err != nil {
			s.log.Warn("could not write backup ref", "branch", pair.Branch, "error", err)
		}
	}

	original := req.Original[len(req.Original)-1]

	for i, pair := range pairs {
		if err := s.refs.Reparent(ctx, pair.Branch, pair.NewParent); err != nil {
			return result, err
		}

		if err := s.repo.Rebase(ctx, vcs.RebaseRequest{
			Branch:    pair.Branch,
			Upstream:  pair.OldParent,
			Onto:      pair.NewParent,
			Autostash: true,
			Quiet:     true,
		}); err != nil {
			var interrupt *vcs.RebaseInterruptError
			if errors.As(err, &interrupt) {
				result.Paused = true

				remaining := make([]string, len(pairs)-i-1)
				for j, p := range pairs[i+1:] {
					remaining[j] = p.Branch
				}
				st := opstate.State{
					Kind:              opstate.KindReorder,
					OriginalBranch:    original,
					CurrentBranch:     pair.Branch,
					RemainingBranches: remaining,
				}
				if startErr := s.ops.Start(ctx, st); startErr != nil {
					s.log.Warn("could not persist operation state", "branch", pair.Branch, "error", startErr)
				}
				return result, nil
			}
			return result, fmt.Errorf("rebase %s onto %s: %w", pair.Branch, pair.NewParent, err)
		}

		result.Applied = append(result.Applied, RestackResult{Branch: pair.Branch, Parent: pair.NewParent})
	}

	return result, nil
}

// computeReparentPairs determines each surviving branch's new parent
// from its position in newOrder (trunk for index 0, the previous
// branch otherwise) and pairs it with its current, pre-reorder parent.
// Only branches whose parent is actually changing are returned.
func (s *Service) computeReparentPairs(ctx context.Context, trunk string, newOrder []string) ([]ReparentPair, error) {
	var pairs []ReparentPair
	for i, branch := range newOrder {
		newParent := trunk
		if i > 0 {
			newParent = newOrder[i-1]
		}

		oldParent, _, err := s.refs.GetParent(ctx, branch)
		if err != nil {
			return nil, err
		}

		if oldParent != newParent {
			pairs = append(pairs, ReparentPair{Branch: branch, NewParent: newParent, OldParent: oldParent})
		}
	}
	return pairs, nil
}
