package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/engine"
)

type branchCreateCmd struct {
	Name    string `arg:"" optional:"" help:"Name of the new branch; derived from the commit message if omitted"`
	Message string `short:"m" optional:"" help:"Commit message for staged changes"`

	All    bool   `help:"Stage all changes, tracked and untracked, before committing"`
	Update bool   `help:"Stage tracked file updates before committing"`
	Insert string `help:"Name of a child branch to reparent onto the new branch, or \"auto\" to pick the current branch's only child"`
}

func (cmd *branchCreateCmd) Run(ctx context.Context, logger *log.Logger, opts *globalOptions) error {
	a, err := newApp(ctx, opts, logger)
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}

	var result *engine.CreateResult
	err = a.withLock(func() error {
		result, err = svc.Create(ctx, engine.CreateRequest{
			Name:         cmd.Name,
			Message:      cmd.Message,
			StageAll:     cmd.All,
			StageUpdates: cmd.Update,
			Insert:       cmd.Insert,
		})
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("created branch", "branch", result.Branch, "parent", result.Parent)
	if result.Inserted != "" {
		if result.Paused {
			logger.Warn("insert paused on conflict", "displaced", result.Inserted)
			fmt.Println("resolve the conflict, then run: stk rebase continue")
		} else {
			logger.Info("restacked displaced child", "branch", result.Inserted)
		}
	}
	return nil
}
