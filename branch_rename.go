package main

import (
	"context"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/engine"
)

type branchRenameCmd struct {
	Old string `arg:"" help:"Branch to rename"`
	New string `arg:"" help:"New name"`

	Force bool `help:"Rename even if the branch has an open change-request"`
	Local bool `help:"Skip pushing the rename and deleting the old remote branch"`
}

func (cmd *branchRenameCmd) Run(ctx context.Context, logger *log.Logger, opts *globalOptions) error {
	a, err := newApp(ctx, opts, logger)
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	if err := a.requireTracked(ctx, cmd.Old); err != nil {
		return err
	}

	var result *engine.RenameResult
	err = a.withLock(func() error {
		result, err = svc.Rename(ctx, cmd.Old, cmd.New, engine.RenameOptions{
			Force: cmd.Force,
			Local: cmd.Local,
		})
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("renamed branch", "from", result.OldName, "to", result.NewName)
	return nil
}
