package gitexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.stacker.dev/stk/internal/vcs"
)

// Rebase runs "git rebase", replaying (Upstream, Branch] onto Onto.
// If the rebase pauses because of a conflict, it returns a
// *vcs.RebaseInterruptError instead of a bare error.
func (r *Repository) Rebase(ctx context.Context, req vcs.RebaseRequest) error {
	args := []string{"rebase"}
	onto := req.Onto
	if onto == "" {
		onto = req.Upstream
	}
	if onto != "" {
		args = append(args, "--onto", onto)
	}
	if req.Autostash {
		args = append(args, "--autostash")
	}
	if req.Quiet {
		args = append(args, "--quiet")
	}
	if req.Upstream != "" {
		args = append(args, req.Upstream)
	}
	if req.Branch != "" {
		args = append(args, req.Branch)
	}

	err := r.run(ctx, args...)
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("rebase: %w", err)
	}

	state, stateErr := r.rebaseState()
	if stateErr != nil {
		// The rebase failed for a reason unrelated to a paused state
		// (bad revision, missing branch, etc).
		return fmt.Errorf("rebase: %w", err)
	}

	return &vcs.RebaseInterruptError{
		Kind:  vcs.RebaseInterruptConflict,
		State: *state,
		Err:   err,
	}
}

// RebaseContinue resumes a paused rebase after conflicts are resolved.
func (r *Repository) RebaseContinue(ctx context.Context) error {
	err := r.run(ctx, "rebase", "--continue")
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("rebase --continue: %w", err)
	}

	state, stateErr := r.rebaseState()
	if stateErr != nil {
		return fmt.Errorf("rebase --continue: %w", err)
	}

	return &vcs.RebaseInterruptError{
		Kind:  vcs.RebaseInterruptConflict,
		State: *state,
		Err:   err,
	}
}

// RebaseAbort cancels an in-progress rebase and restores the branch to
// its pre-rebase tip.
func (r *Repository) RebaseAbort(ctx context.Context) error {
	return r.run(ctx, "rebase", "--abort")
}

// RebaseInProgress reports whether the working copy currently has a
// paused rebase.
func (r *Repository) RebaseInProgress(ctx context.Context) (bool, error) {
	_, err := r.rebaseState()
	return err == nil, nil
}

// rebaseState reads the paused-rebase bookkeeping git keeps under
// .git/rebase-merge (the "merge" backend) or .git/rebase-apply (the
// legacy "apply" backend).
func (r *Repository) rebaseState() (*vcs.RebaseState, error) {
	gitDir, err := r.output(context.Background(), "rev-parse", "--git-dir")
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{"rebase-merge", "rebase-apply"} {
		stateDir := filepath.Join(r.dir, gitDir, dir)
		headName, err := os.ReadFile(filepath.Join(stateDir, "head-name"))
		if err != nil {
			continue
		}

		branch := strings.TrimPrefix(strings.TrimSpace(string(headName)), "refs/heads/")
		return &vcs.RebaseState{Branch: branch}, nil
	}

	return nil, errors.New("no rebase in progress")
}
