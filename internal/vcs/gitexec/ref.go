package gitexec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.stacker.dev/stk/internal/vcs"
)

// SetRef points ref at hash, optionally requiring its prior value to be
// oldHash as a compare-and-swap guard against concurrent writers.
func (r *Repository) SetRef(ctx context.Context, req vcs.SetRefRequest) error {
	args := []string{"update-ref", req.Ref, req.Hash.String()}
	if req.OldHash != "" {
		args = append(args, req.OldHash.String())
	}
	if err := r.run(ctx, args...); err != nil {
		return fmt.Errorf("update-ref %s: %w", req.Ref, err)
	}
	return nil
}

// ReadRef returns the hash a ref currently points to.
func (r *Repository) ReadRef(ctx context.Context, ref string) (vcs.Hash, error) {
	out, err := r.output(ctx, "show-ref", "--verify", "--hash", ref)
	if err != nil {
		return "", errors.Join(vcs.ErrNotExist, fmt.Errorf("read ref %s: %w", ref, err))
	}
	return vcs.Hash(out), nil
}

// DeleteRef removes a ref.
func (r *Repository) DeleteRef(ctx context.Context, ref string) error {
	if err := r.run(ctx, "update-ref", "-d", ref); err != nil {
		return fmt.Errorf("delete ref %s: %w", ref, err)
	}
	return nil
}

// ListRefs lists ref names matching the given prefix (e.g. "refs/stk/").
func (r *Repository) ListRefs(ctx context.Context, prefix string) ([]string, error) {
	out, err := r.output(ctx, "for-each-ref", "--format=%(refname)", prefix)
	if err != nil {
		return nil, fmt.Errorf("list refs under %s: %w", prefix, err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
