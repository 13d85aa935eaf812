package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/engine"
)

type branchRestackCmd struct {
	Branch string `arg:"" optional:"" help:"Branch to restack; defaults to the current branch"`
}

func (cmd *branchRestackCmd) Run(ctx context.Context, logger *log.Logger, opts *globalOptions) error {
	a, err := newApp(ctx, opts, logger)
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}

	branch := cmd.Branch
	if branch == "" {
		branch, err = a.repo.CurrentBranch(ctx)
		if err != nil {
			return fmt.Errorf("determine current branch: %w", err)
		}
	} else if err := a.requireTracked(ctx, branch); err != nil {
		return err
	}

	var results []engine.RestackResult
	err = a.withLock(func() error {
		results, err = svc.RestackTree(ctx, branch)
		return err
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		logger.Info("already restacked", "branch", branch)
		return nil
	}
	for _, r := range results {
		logger.Info("restacked", "branch", r.Branch, "onto", r.Parent)
	}
	return nil
}
