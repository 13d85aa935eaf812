// Package gitexec implements vcs.Gateway by shelling out to the git
// binary, in the style of go.abhg.dev/gs's internal/git package: every
// operation is a thin wrapper around "git <subcommand>" with stderr
// captured into the returned error.
package gitexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// Repository is a vcs.Gateway backed by the git CLI.
type Repository struct {
	dir string
	log *log.Logger
}

// Open opens the repository rooted at dir for use as a vcs.Gateway.
func Open(dir string, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Repository{dir: dir, log: logger}
}

func (r *Repository) gitCmd(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	return cmd
}

func (r *Repository) run(ctx context.Context, args ...string) error {
	cmd := r.gitCmd(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return wrapErr(args, stderr.String(), err)
	}
	return nil
}

func (r *Repository) output(ctx context.Context, args ...string) (string, error) {
	cmd := r.gitCmd(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", wrapErr(args, stderr.String(), err)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

func wrapErr(args []string, stderr string, err error) error {
	name := "git"
	if len(args) > 0 {
		name += " " + args[0]
	}
	if strings.TrimSpace(stderr) != "" {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr))
	}
	return fmt.Errorf("%s: %w", name, err)
}
