package gitexec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.stacker.dev/stk/internal/vcs"
)

// BranchExists reports whether a local branch exists.
func (r *Repository) BranchExists(ctx context.Context, branch string) (bool, error) {
	err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err == nil {
		return true, nil
	}
	return false, nil
}

// CreateBranch creates branch at the given commit-ish without checking it out.
func (r *Repository) CreateBranch(ctx context.Context, branch, at string) error {
	args := []string{"branch", branch}
	if at != "" {
		args = append(args, at)
	}
	return r.run(ctx, args...)
}

// Checkout switches the working copy to branch.
func (r *Repository) Checkout(ctx context.Context, branch string) error {
	return r.run(ctx, "checkout", "--quiet", branch)
}

// RenameBranch renames a local branch.
func (r *Repository) RenameBranch(ctx context.Context, oldName, newName string) error {
	return r.run(ctx, "branch", "--move", oldName, newName)
}

// DeleteBranch deletes a local branch.
func (r *Repository) DeleteBranch(ctx context.Context, branch string, opts vcs.BranchDeleteOptions) error {
	flag := "-d"
	if opts.Force {
		flag = "-D"
	}
	return r.run(ctx, "branch", flag, branch)
}

// CurrentBranch returns the name of the checked-out branch.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.output(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return out, nil
}

// LocalBranches lists all local branch names.
func (r *Repository) LocalBranches(ctx context.Context) ([]string, error) {
	out, err := r.output(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// BranchHash returns the commit hash a branch points to.
func (r *Repository) BranchHash(ctx context.Context, branch string) (vcs.Hash, error) {
	return r.PeelToCommit(ctx, "refs/heads/"+branch)
}

// PeelToCommit resolves a commit-ish to its commit hash.
func (r *Repository) PeelToCommit(ctx context.Context, commitish string) (vcs.Hash, error) {
	out, err := r.output(ctx, "rev-parse", "--verify", "--quiet", commitish+"^{commit}")
	if err != nil {
		return "", errors.Join(vcs.ErrNotExist, err)
	}
	return vcs.Hash(out), nil
}

// MergeBase returns the best common ancestor of a and b.
func (r *Repository) MergeBase(ctx context.Context, a, b string) (vcs.Hash, error) {
	out, err := r.output(ctx, "merge-base", a, b)
	if err != nil {
		return "", fmt.Errorf("merge-base %s %s: %w", a, b, err)
	}
	return vcs.Hash(out), nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *Repository) IsAncestor(ctx context.Context, ancestor, descendant vcs.Hash) (bool, error) {
	err := r.run(ctx, "merge-base", "--is-ancestor", ancestor.String(), descendant.String())
	return err == nil, nil
}

// IsBranchBasedOn reports whether child's merge-base with parent equals
// parent's current tip, i.e. child contains all of parent's history.
func (r *Repository) IsBranchBasedOn(ctx context.Context, child, parent string) (bool, error) {
	base, err := r.MergeBase(ctx, child, parent)
	if err != nil {
		return false, err
	}
	tip, err := r.PeelToCommit(ctx, parent)
	if err != nil {
		return false, err
	}
	return base == tip, nil
}

// ForkPoint finds the commit at which branch diverged from upstream,
// using reflog-aware detection so a squash-merged upstream history
// doesn't make the fork point unreachable.
func (r *Repository) ForkPoint(ctx context.Context, upstream, branch string) (vcs.Hash, error) {
	out, err := r.output(ctx, "merge-base", "--fork-point", upstream, branch)
	if err != nil {
		return "", fmt.Errorf("fork-point %s %s: %w", upstream, branch, err)
	}
	return vcs.Hash(out), nil
}

// CommitCountSince counts commits in (base, ref].
func (r *Repository) CommitCountSince(ctx context.Context, base, ref string) (int, error) {
	msgs, err := r.CommitMessagesSince(ctx, base, ref)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// CommitMessagesSince lists the subject lines of commits in (base, ref],
// ordered oldest first.
func (r *Repository) CommitMessagesSince(ctx context.Context, base, ref string) ([]string, error) {
	out, err := r.output(ctx, "log", "--reverse", "--format=%s", base+".."+ref)
	if err != nil {
		return nil, fmt.Errorf("log %s..%s: %w", base, ref, err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
