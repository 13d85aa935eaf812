package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.stacker.dev/stk/internal/forge"
	"go.stacker.dev/stk/internal/vcs"
)

// MergeOptions configures Merge.
type MergeOptions struct {
	Method      forge.MergeMethod
	AutoConfirm bool
	Fast        bool // skip proactive rebase, use reactive auto-recovery instead
	NoWaitForCI bool
	Keep        bool // passed through to the post-merge sync
}

// MergeOutcome is the disposition of a single branch's change-request
// after a Merge pass.
type MergeOutcome struct {
	Branch        string
	PRNumber      int
	Merged        bool
	Skipped       bool // already merged or closed
	AutoRecovered bool
}

// MergeResult reports the full downstack merge.
type MergeResult struct {
	Outcomes []MergeOutcome
	Sync     *SyncResult
}

// Merge walks the downstack from trunk to branch (exclusive of trunk,
// inclusive of branch), merging each tracked branch's change-request in
// order, trunk-ward first. A failure on any branch stops the walk:
// the returned result holds outcomes up to and including the failed
// branch, and branches after it are left unmerged with no outcome entry.
func (s *Service) Merge(ctx context.Context, branch string, opts MergeOptions) (*MergeResult, error) {
	trunk, err := s.refs.RequireTrunk(ctx)
	if err != nil {
		return nil, err
	}
	if branch == trunk {
		return nil, &ProtectedError{Branch: branch, Reason: "cannot merge trunk; checkout a feature branch first"}
	}
	if s.forge == nil {
		return nil, errors.New("merge requires a configured forge")
	}

	downstack, err := s.refs.Ancestors(ctx, branch)
	if err != nil {
		return nil, err
	}
	downstack = append(downstack, branch)

	proactiveRebase := !opts.Fast && s.cfg.MergeProactiveRebase()
	waitForCI := !opts.Fast && !opts.NoWaitForCI && s.cfg.MergeWaitForCI()

	result := &MergeResult{}
	for i, b := range downstack {
		outcome, err := s.mergeOne(ctx, b, trunk, i, opts, proactiveRebase, waitForCI)
		result.Outcomes = append(result.Outcomes, outcome)
		if err != nil {
			return result, err
		}

		if outcome.Merged && i+1 < len(downstack) {
			s.retargetNextIfOpen(ctx, downstack[i+1], trunk)
		}
	}

	syncResult, syncErr := s.Sync(ctx, SyncOptions{Keep: opts.Keep})
	result.Sync = syncResult
	if syncErr != nil {
		s.log.Warn("post-merge sync encountered an issue", "error", syncErr)
	}

	return result, nil
}

func (s *Service) mergeOne(ctx context.Context, branch, trunk string, index int, opts MergeOptions, proactiveRebase, waitForCI bool) (MergeOutcome, error) {
	outcome := MergeOutcome{Branch: branch}

	if _, ok := s.cache.GetPRURL(ctx, branch); !ok {
		outcome.Skipped = true
		return outcome, nil
	}

	pr, found, err := s.forge.PRExists(ctx, branch)
	if err != nil {
		s.log.Warn("could not check pr state", "branch", branch, "error", err)
	} else if found {
		switch pr.State {
		case forge.ChangeMerged, forge.ChangeClosed:
			outcome.Skipped = true
			return outcome, nil
		}
	}
	outcome.PRNumber = pr.Number

	if proactiveRebase && index > 0 {
		if _, err := s.proactiveRebaseForMerge(ctx, branch, trunk); err != nil {
			return outcome, fmt.Errorf("could not rebase %s onto %s: resolve manually with sync: %w", branch, trunk, err)
		}
	}
	if waitForCI {
		if err := s.waitForCI(ctx, pr.Number, branch); err != nil {
			return outcome, err
		}
	}

	mergeErr := s.forge.MergePR(ctx, pr.Number, opts.Method, opts.AutoConfirm)
	if mergeErr != nil {
		var notMergeable *forge.NotMergeableError
		if errors.As(mergeErr, &notMergeable) && index > 0 && opts.Fast && isMergeConflictClass(notMergeable.Message) {
			if recoverErr := s.autoRecoverAndRetryMerge(ctx, branch, trunk, pr.Number, opts); recoverErr == nil {
				outcome.Merged = true
				outcome.AutoRecovered = true
				return outcome, nil
			}
		}
		if index == 0 && errors.As(mergeErr, &notMergeable) && isMergeConflictClass(notMergeable.Message) {
			return outcome, fmt.Errorf("%s has conflicts with %s; run sync to update your branch: %w", branch, trunk, mergeErr)
		}
		return outcome, mergeErr
	}

	outcome.Merged = true
	return outcome, nil
}

// proactiveRebaseForMerge rebases branch onto remote trunk before the
// merge attempt, so CI runs on the final commit and the merge lands
// cleanly. Returns false if the branch was already up to date.
func (s *Service) proactiveRebaseForMerge(ctx context.Context, branch, trunk string) (bool, error) {
	if err := s.repo.Fetch(ctx, s.remote); err != nil {
		return false, fmt.Errorf("fetch: %w", err)
	}

	remoteTrunkHash, err := s.repo.RemoteBranchHash(ctx, s.remote, trunk)
	if err != nil {
		return false, fmt.Errorf("resolve remote trunk: %w", err)
	}
	mergeBase, err := s.repo.MergeBase(ctx, branch, remoteTrunkHash.String())
	if err != nil {
		return false, fmt.Errorf("merge-base: %w", err)
	}
	if mergeBase == remoteTrunkHash {
		return false, nil
	}

	if err := s.rebaseFromForkPoint(ctx, branch, s.remote+"/"+trunk); err != nil {
		return false, err
	}

	if err := s.forge.PushBranch(ctx, branch, true); err != nil {
		return false, fmt.Errorf("force push %s: %w", branch, err)
	}

	if pr, found, err := s.forge.PRExists(ctx, branch); err == nil && found {
		_ = s.forge.UpdatePRBase(ctx, pr.Number, trunk)
	}

	return true, nil
}

// autoRecoverAndRetryMerge rebases branch onto remote trunk using its
// fork point (dropping commits already squash-merged into the parent),
// force-pushes, retargets the PR, and retries the merge once.
func (s *Service) autoRecoverAndRetryMerge(ctx context.Context, branch, trunk string, prNumber int, opts MergeOptions) error {
	if err := s.repo.Fetch(ctx, s.remote); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	if err := s.rebaseFromForkPoint(ctx, branch, s.remote+"/"+trunk); err != nil {
		return fmt.Errorf("rebase: resolve manually with sync then submit: %w", err)
	}

	if err := s.forge.PushBranch(ctx, branch, true); err != nil {
		return fmt.Errorf("force push %s: %w", branch, err)
	}

	_ = s.forge.UpdatePRBase(ctx, prNumber, trunk)

	return s.forge.MergePR(ctx, prNumber, opts.Method, opts.AutoConfirm)
}

func (s *Service) rebaseFromForkPoint(ctx context.Context, branch, upstream string) error {
	forkPoint, err := s.repo.ForkPoint(ctx, upstream, branch)
	if err != nil {
		return fmt.Errorf("find fork point: %w", err)
	}
	return s.repo.Rebase(ctx, vcs.RebaseRequest{
		Branch:    branch,
		Upstream:  forkPoint.String(),
		Onto:      upstream,
		Autostash: true,
		Quiet:     true,
	})
}

func (s *Service) waitForCI(ctx context.Context, prNumber int, branch string) error {
	timeout := s.cfg.MergeCITimeout()
	deadline := time.Now().Add(timeout)
	for {
		status, err := s.forge.CIStatus(ctx, prNumber)
		if err != nil {
			return fmt.Errorf("check ci status: %w", err)
		}
		switch status {
		case forge.CISuccess, forge.CINone:
			return nil
		case forge.CIFailure:
			return &CIFailureError{Branch: branch, Status: "failure"}
		}
		if time.Now().After(deadline) {
			return &CITimeoutError{Branch: branch}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// retargetNextIfOpen points next's change-request at trunk after its
// former parent merges, best-effort: a failure here is logged, not
// fatal, since the merge attempt itself will surface a clearer error if
// the stale base actually matters.
func (s *Service) retargetNextIfOpen(ctx context.Context, next, trunk string) {
	pr, found, err := s.forge.PRExists(ctx, next)
	if err != nil || !found {
		return
	}
	if pr.State != forge.ChangeOpen {
		return
	}
	if err := s.forge.UpdatePRBase(ctx, pr.Number, trunk); err != nil {
		s.log.Warn("could not retarget pr", "branch", next, "trunk", trunk, "error", err)
	}
}
