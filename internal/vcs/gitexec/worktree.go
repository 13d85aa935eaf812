package gitexec

import (
	"context"
	"fmt"
)

// IsClean reports whether the working copy has no staged or unstaged changes.
func (r *Repository) IsClean(ctx context.Context) (bool, error) {
	out, err := r.output(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return out == "", nil
}

// StageAll stages all tracked and untracked changes.
func (r *Repository) StageAll(ctx context.Context) error {
	return r.run(ctx, "add", "-A")
}

// Commit creates a commit from the staged tree.
func (r *Repository) Commit(ctx context.Context, message string) error {
	return r.run(ctx, "commit", "--quiet", "--message", message)
}

// SoftResetTo moves HEAD to ref, keeping the working copy and index.
func (r *Repository) SoftResetTo(ctx context.Context, ref string) error {
	return r.run(ctx, "reset", "--soft", ref)
}

// HardResetTo moves HEAD, the index, and the working copy to ref.
func (r *Repository) HardResetTo(ctx context.Context, ref string) error {
	return r.run(ctx, "reset", "--hard", ref)
}
