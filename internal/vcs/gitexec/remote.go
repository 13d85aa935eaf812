package gitexec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.stacker.dev/stk/internal/vcs"
)

// Fetch updates remote-tracking refs for remote.
func (r *Repository) Fetch(ctx context.Context, remote string) error {
	return r.run(ctx, "fetch", "--quiet", remote)
}

// PushBranch pushes branch to remote, using a compare-and-swap
// force-push when force is true.
func (r *Repository) PushBranch(ctx context.Context, remote, branch string, force bool) error {
	args := []string{"push"}
	if force {
		args = append(args, "--force-with-lease")
	}
	args = append(args, remote, branch)
	return r.run(ctx, args...)
}

// DeleteRemoteBranch deletes branch on remote.
func (r *Repository) DeleteRemoteBranch(ctx context.Context, remote, branch string) error {
	return r.run(ctx, "push", remote, "--delete", branch)
}

// ListRemotes lists the names of all configured remotes.
func (r *Repository) ListRemotes(ctx context.Context) ([]string, error) {
	out, err := r.output(ctx, "remote")
	if err != nil {
		return nil, fmt.Errorf("list remotes: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// RemoteDefaultBranch reports the default branch of a remote, as
// recorded by "<remote>/HEAD".
func (r *Repository) RemoteDefaultBranch(ctx context.Context, remote string) (string, error) {
	out, err := r.output(ctx, "symbolic-ref", "--short", "refs/remotes/"+remote+"/HEAD")
	if err != nil {
		return "", fmt.Errorf("default branch of %s: %w", remote, err)
	}
	return strings.TrimPrefix(out, remote+"/"), nil
}

// RemoteBranchHash returns the hash of a remote-tracking branch.
func (r *Repository) RemoteBranchHash(ctx context.Context, remote, branch string) (vcs.Hash, error) {
	return r.PeelToCommit(ctx, "refs/remotes/"+remote+"/"+branch)
}

// RemoteBranchState classifies a local branch against its remote-tracking
// counterpart by counting commits unique to each side.
func (r *Repository) RemoteBranchState(ctx context.Context, remote, branch string) (vcs.RemoteBranchState, error) {
	remoteRef := "refs/remotes/" + remote + "/" + branch
	if _, err := r.PeelToCommit(ctx, remoteRef); err != nil {
		if errors.Is(err, vcs.ErrNotExist) {
			return vcs.RemoteNotPresent, nil
		}
		return 0, err
	}

	out, err := r.output(ctx, "rev-list", "--left-right", "--count", "refs/heads/"+branch+"..."+remoteRef)
	if err != nil {
		return 0, fmt.Errorf("compare %s with %s: %w", branch, remoteRef, err)
	}

	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, fmt.Errorf("unexpected rev-list output: %q", out)
	}

	var ahead, behind int
	if _, err := fmt.Sscanf(fields[0], "%d", &ahead); err != nil {
		return 0, fmt.Errorf("parse ahead count: %w", err)
	}
	if _, err := fmt.Sscanf(fields[1], "%d", &behind); err != nil {
		return 0, fmt.Errorf("parse behind count: %w", err)
	}

	switch {
	case ahead == 0 && behind == 0:
		return vcs.RemoteInSync, nil
	case ahead > 0 && behind == 0:
		return vcs.RemoteAhead, nil
	case ahead == 0 && behind > 0:
		return vcs.RemoteBehind, nil
	default:
		return vcs.RemoteDiverged, nil
	}
}
