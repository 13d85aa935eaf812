package engine

import (
	"context"
	"fmt"

	"go.stacker.dev/stk/internal/vcs"
)

// RenameOptions configures Rename.
type RenameOptions struct {
	// Force allows renaming a branch with an open change-request,
	// accepting that the change-request's head will no longer match
	// any local branch until the caller pushes the new name.
	Force bool
	// Local skips pushing the new name and deleting the old remote
	// branch; only local state (VCS branch, ref store, cache) changes.
	Local bool
}

// RenameResult reports what Rename did.
type RenameResult struct {
	OldName, NewName string
	RemotePushed     bool
	RemoteDeleted    bool
}

// Rename renames branch to newName: validates it, performs the VCS
// rename, migrates its parent edge, its children's parent edges, its
// trunk designation if it was trunk, and its Cache entries, then
// optionally pushes the new name and deletes the old one from the
// remote.
func (s *Service) Rename(ctx context.Context, branch, newName string, opts RenameOptions) (*RenameResult, error) {
	trunk, err := s.refs.GetTrunk(ctx)
	if err != nil {
		return nil, err
	}

	parent, tracked, err := s.refs.GetParent(ctx, branch)
	if err != nil {
		return nil, err
	}
	if !tracked && branch != trunk {
		return nil, &NotTrackedError{Branch: branch}
	}

	if exists, err := s.repo.BranchExists(ctx, newName); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("branch %q already exists", newName)
	}

	if _, hasPR := s.cache.GetPRURL(ctx, branch); hasPR && !opts.Force && !opts.Local {
		return nil, fmt.Errorf("%s has an open change-request; renaming would break the link. Use --force to rename anyway, or --local to only rename locally", branch)
	}

	hadRemote := false
	if state, err := s.repo.RemoteBranchState(ctx, s.remote, branch); err == nil && state != vcs.RemoteNotPresent {
		hadRemote = true
	}

	if err := s.repo.RenameBranch(ctx, branch, newName); err != nil {
		return nil, fmt.Errorf("rename %s to %s: %w", branch, newName, err)
	}

	if err := s.migrateRenameMetadata(ctx, branch, newName, parent, tracked, trunk); err != nil {
		return nil, err
	}

	result := &RenameResult{OldName: branch, NewName: newName}
	if opts.Local || !hadRemote {
		return result, nil
	}

	if s.forge != nil {
		if err := s.forge.PushBranch(ctx, newName, true); err != nil {
			s.log.Warn("could not push renamed branch; push it manually", "branch", newName, "error", err)
			return result, nil
		}
		result.RemotePushed = true

		if err := s.repo.DeleteRemoteBranch(ctx, s.remote, branch); err != nil {
			s.log.Warn("could not delete old remote branch; delete it manually", "branch", branch, "error", err)
			return result, nil
		}
		result.RemoteDeleted = true
	}

	return result, nil
}

func (s *Service) migrateRenameMetadata(ctx context.Context, oldName, newName, parent string, tracked bool, trunk string) error {
	children, err := s.refs.GetChildren(ctx, oldName)
	if err != nil {
		return err
	}

	if tracked {
		if err := s.refs.RemoveParent(ctx, oldName); err != nil {
			return err
		}
		if err := s.refs.SetParent(ctx, newName, parent); err != nil {
			return err
		}
	}

	for _, child := range children {
		if err := s.refs.Reparent(ctx, child, newName); err != nil {
			return fmt.Errorf("reparent %s onto %s: %w", child, newName, err)
		}
	}

	if trunk == oldName {
		if err := s.refs.SetTrunk(ctx, newName); err != nil {
			return err
		}
	}

	if err := s.cache.Rename(ctx, oldName, newName); err != nil {
		return err
	}

	return nil
}
