package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"

	"go.stacker.dev/stk/internal/config"
	"go.stacker.dev/stk/internal/engine"
	"go.stacker.dev/stk/internal/forge"
	"go.stacker.dev/stk/internal/forge/github"
	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/store"
	"go.stacker.dev/stk/internal/store/storage"
	"go.stacker.dev/stk/internal/vcs"
	"go.stacker.dev/stk/internal/vcs/gitexec"
)

const (
	cacheRef = "refs/stk/cache"
	opsRef   = "refs/stk/operation"
)

// globalOptions carries flags every command inherits.
type globalOptions struct {
	Dir     string `name:"dir" default:"." help:"Path to the git working copy"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`
}

// app wires one repository's Gateway, metadata stores, and optional
// forge into a ready-to-use engine.Service. It is built lazily by each
// command's Run method, once flags have been parsed, the way the
// teacher's commands call ensureStore per-invocation rather than
// upfront.
type app struct {
	log  *log.Logger
	dir  string
	repo vcs.Gateway
	refs *store.RefStore
	ops  *opstate.Store
	lock *opstate.Lock
	cfg  *config.Config
}

func newApp(ctx context.Context, opts *globalOptions, logger *log.Logger) (*app, error) {
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve directory: %w", err)
	}

	repo := gitexec.Open(dir, logger)

	cfg, err := config.Load(ctx, config.NewSource(dir))
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	sig := vcs.Signature{Name: "stk", Email: "stk@localhost"}
	refs := store.New(repo, sig)

	opsBackend := storage.NewGitBackend(storage.GitConfig{
		Repo:        repo,
		Ref:         opsRef,
		AuthorName:  sig.Name,
		AuthorEmail: sig.Email,
		Log:         logger,
	})
	ops := opstate.New(opsBackend)

	lock := opstate.NewLock(filepath.Join(dir, ".git", "stk.lock"))

	return &app{log: logger, dir: dir, repo: repo, refs: refs, ops: ops, lock: lock, cfg: cfg}, nil
}

// service builds an engine.Service against a.repo, opening the forge
// for the configured remote when one is reachable. Forge errors are
// swallowed into a nil forge.Repository: local operations (restack,
// reorder, rename --local) don't require one, and the operations that
// do will surface their own "not logged in" or "no remote" error.
func (a *app) service(ctx context.Context) (*engine.Service, error) {
	var repoForge forge.Repository
	if remoteURL, err := a.remoteURL(ctx); err == nil {
		gh := github.New(github.DefaultHost, a.log)
		if gh.MatchURL(remoteURL) {
			if r, err := gh.Open(ctx, remoteURL, a.dir); err == nil {
				repoForge = r
			}
		}
	}

	cacheBackend := storage.NewGitBackend(storage.GitConfig{
		Repo:        a.repo,
		Ref:         cacheRef,
		AuthorName:  "stk",
		AuthorEmail: "stk@localhost",
		Log:         a.log,
	})
	cache := store.NewCache(cacheBackend)

	return engine.New(engine.Options{
		Repo:   a.repo,
		Refs:   a.refs,
		Cache:  cache,
		Ops:    a.ops,
		Lock:   a.lock,
		Forge:  repoForge,
		Config: a.cfg,
		Log:    a.log,
	}), nil
}

// withLock runs fn while holding the process-wide mutating-command lock,
// releasing it on the way out.
func (a *app) withLock(fn func() error) error {
	guard, err := a.lock.Acquire()
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn()
}

// remoteURL shells out to "git remote get-url" for the configured
// remote. The Gateway interface intentionally stops at remote names and
// refs; resolving a remote to its push URL is a concern of wiring the
// forge, not of the core's VCS operations, so it lives here instead of
// growing vcs.Gateway another method only one caller needs.
func (a *app) remoteURL(ctx context.Context) (string, error) {
	remote := a.cfg.RepoRemote()

	cmd := exec.CommandContext(ctx, "git", "-C", a.dir, "remote", "get-url", remote)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("get URL of remote %s: %w: %s", remote, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// requireTracked returns an error if branch isn't tracked, naming the
// closest tracked branch name (by the same fuzzy ranking the teacher's
// interactive branch picker uses) when one scores well enough to be
// worth suggesting. Trunk itself is always accepted here; commands that
// can't operate on trunk reject it with their own, more specific error.
func (a *app) requireTracked(ctx context.Context, branch string) error {
	if trunk, err := a.refs.GetTrunk(ctx); err == nil && branch == trunk {
		return nil
	}

	tracked, err := a.refs.IsTracked(ctx, branch)
	if err != nil {
		return err
	}
	if tracked {
		return nil
	}

	all, err := a.refs.ListTracked(ctx)
	if err != nil {
		return err
	}
	if matches := fuzzy.Find(branch, all); len(matches) > 0 {
		return fmt.Errorf("%q is not tracked; did you mean %q?", branch, all[matches[0].Index])
	}
	return fmt.Errorf("%q is not tracked", branch)
}

// exitCode maps the engine's error taxonomy to a process exit code.
// *engine.ConflictError is handled separately by main, which exits 0
// with instructions rather than treating a paused rebase as a failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var drift *engine.StateDriftError
	if errors.As(err, &drift) {
		return 3
	}
	return 1
}
