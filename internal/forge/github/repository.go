package github

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/charmbracelet/log"
	"github.com/shurcooL/githubv4"

	"go.stacker.dev/stk/internal/forge"
)

// Repository is a single GitHub repository.
type Repository struct {
	owner, repo string
	host        string
	dir         string
	token       string
	repoID      githubv4.ID
	log         *log.Logger
	client      *githubv4.Client
}

var _ forge.Repository = (*Repository)(nil)

func (r *Repository) resolveID(ctx context.Context) error {
	var q struct {
		Repository struct {
			ID githubv4.ID `graphql:"id"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	if err := r.client.Query(ctx, &q, map[string]any{
		"owner": githubv4.String(r.owner),
		"repo":  githubv4.String(r.repo),
	}); err != nil {
		return err
	}
	r.repoID = q.Repository.ID
	return nil
}

// PushBranch force-or-fast-forward pushes branch to this repository over
// an HTTPS remote carrying the stored token, so the push succeeds
// regardless of the user's own git credential configuration.
func (r *Repository) PushBranch(ctx context.Context, branch string, force bool) error {
	url := fmt.Sprintf("https://x-access-token:%s@%s/%s/%s.git", r.token, r.host, r.owner, r.repo)
	refspec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)

	args := []string{"-C", r.dir, "push"}
	if force {
		args = append(args, "--force-with-lease")
	}
	args = append(args, url, refspec)

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("push %s: %w: %s", branch, err, out)
	}
	return nil
}
