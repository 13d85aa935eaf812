package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

type initCmd struct {
	Trunk string `arg:"" optional:"" help:"Branch to treat as trunk; defaults to the current branch"`
}

func (cmd *initCmd) Run(ctx context.Context, logger *log.Logger, opts *globalOptions) error {
	a, err := newApp(ctx, opts, logger)
	if err != nil {
		return err
	}

	trunk := cmd.Trunk
	if trunk == "" {
		trunk, err = a.repo.CurrentBranch(ctx)
		if err != nil {
			return fmt.Errorf("determine current branch: %w", err)
		}
	}

	if exists, err := a.repo.BranchExists(ctx, trunk); err != nil {
		return fmt.Errorf("check trunk branch: %w", err)
	} else if !exists {
		return fmt.Errorf("branch %q does not exist", trunk)
	}

	err = a.withLock(func() error {
		return a.refs.SetTrunk(ctx, trunk)
	})
	if err != nil {
		return fmt.Errorf("set trunk: %w", err)
	}

	logger.Info("initialized", "trunk", trunk)
	return nil
}
