package engine

import (
	"context"
	"fmt"

	"go.stacker.dev/stk/internal/forge"
	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/vcs"
)

// SyncOptions configures Sync.
type SyncOptions struct {
	// Keep disables cleanup of merged branches; they're left tracked
	// and untouched locally.
	Keep bool
}

// SyncResult reports what Sync did.
type SyncResult struct {
	Trunk    string
	Merged   []string
	Restacks []RestackResult
}

// Sync fetches trunk, hard-resets the local trunk branch to the fetched
// remote tip (local-only trunk commits are not kept), detects
// branches whose change-request has merged (by forge report or by being
// an ancestor of remote trunk), cleans those up unless opts.Keep is set,
// and restacks every surviving branch, trunk-ward before tip-ward.
func (s *Service) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	trunk, err := s.refs.RequireTrunk(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Fetch(ctx, s.remote); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.remote, err)
	}

	remoteTrunkHash, err := s.repo.RemoteBranchHash(ctx, s.remote, trunk)
	if err != nil {
		return nil, fmt.Errorf("resolve remote trunk: %w", err)
	}
	current, err := s.repo.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("determine current branch: %w", err)
	}
	if current != trunk {
		if err := s.repo.Checkout(ctx, trunk); err != nil {
			return nil, fmt.Errorf("checkout %s: %w", trunk, err)
		}
	}
	if err := s.repo.HardResetTo(ctx, remoteTrunkHash.String()); err != nil {
		return nil, fmt.Errorf("update local trunk: %w", err)
	}
	if current != trunk {
		if err := s.repo.Checkout(ctx, current); err != nil {
			return nil, fmt.Errorf("checkout %s: %w", current, err)
		}
	}

	tracked, err := s.refs.ListTracked(ctx)
	if err != nil {
		return nil, err
	}

	merged, err := s.detectMerged(ctx, tracked, remoteTrunkHash)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Trunk: trunk, Merged: merged}

	if !opts.Keep {
		if err := s.cleanupMerged(ctx, merged); err != nil {
			return result, err
		}
	} else {
		result.Merged = merged
	}

	order, err := s.descendantOrder(ctx, trunk)
	if err != nil {
		return result, err
	}

	restacks, err := s.restackOrdered(ctx, opstate.KindSync, trunk, order)
	result.Restacks = restacks
	return result, err
}

// detectMerged reports which tracked branches have merged, either
// because the forge says so or because the branch's tip is now
// reachable from remote trunk (e.g. it was merged outside the tool's
// awareness).
func (s *Service) detectMerged(ctx context.Context, tracked []string, remoteTrunk vcs.Hash) ([]string, error) {
	var merged []string
	for _, branch := range tracked {
		isMerged, err := s.branchMerged(ctx, branch, remoteTrunk)
		if err != nil {
			return nil, err
		}
		if isMerged {
			merged = append(merged, branch)
		}
	}
	return merged, nil
}

func (s *Service) branchMerged(ctx context.Context, branch string, remoteTrunk vcs.Hash) (bool, error) {
	branchHash, err := s.repo.PeelToCommit(ctx, branch)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", branch, err)
	}

	if ok, err := s.repo.IsAncestor(ctx, branchHash, remoteTrunk); err == nil && ok {
		return true, nil
	}

	if s.forge == nil {
		return false, nil
	}
	pr, exists, err := s.forge.PRExists(ctx, branch)
	if err != nil {
		return false, nil // forge lookups are best-effort for this check
	}
	return exists && pr.State == forge.ChangeMerged, nil
}

// cleanupMerged detaches each merged branch's children by reparenting
// them to the merged branch's parent, deletes the merged branch and its
// ref-store entry, opportunistically deletes the remote branch, and
// forgets its cache record.
func (s *Service) cleanupMerged(ctx context.Context, merged []string) error {
	for _, branch := range merged {
		parent, ok, err := s.refs.GetParent(ctx, branch)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		children, err := s.refs.GetChildren(ctx, branch)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := s.refs.Reparent(ctx, child, parent); err != nil {
				return fmt.Errorf("reparent %s onto %s: %w", child, parent, err)
			}
		}

		if err := s.refs.RemoveBranch(ctx, branch); err != nil {
			return fmt.Errorf("untrack %s: %w", branch, err)
		}

		if err := s.repo.DeleteBranch(ctx, branch, vcs.BranchDeleteOptions{Force: true}); err != nil {
			s.log.Warn("could not delete local branch", "branch", branch, "error", err)
		}
		if err := s.repo.DeleteRemoteBranch(ctx, s.remote, branch); err != nil {
			s.log.Debug("could not delete remote branch", "branch", branch, "error", err)
		}
		if err := s.cache.Remove(ctx, branch); err != nil {
			s.log.Debug("could not clear cache", "branch", branch, "error", err)
		}
	}
	return nil
}
