package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/engine"
	"go.stacker.dev/stk/internal/forge"
)

type mergeCmd struct {
	Branch string `arg:"" optional:"" help:"Branch to merge down to; defaults to the current branch"`

	Method      string `enum:"merge,squash,rebase" default:"merge" help:"Merge method"`
	Fast        bool   `help:"Skip proactive rebase before merging; rely on reactive auto-recovery instead"`
	NoWaitForCI bool   `help:"Don't wait for CI to finish before merging"`
	AutoConfirm bool   `help:"Skip the forge's interactive merge confirmation"`
	Keep        bool   `help:"Don't delete merged branches during the post-merge sync"`
}

func (cmd *mergeCmd) Run(ctx context.Context, logger *log.Logger, opts *globalOptions) error {
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

	var method forge.MergeMethod
	switch cmd.Method {
	case "squash":
		method = forge.MergeMethodSquash
	case "rebase":
		method = forge.MergeMethodRebase
	default:
		method = forge.MergeMethodMerge
	}

	var result *engine.MergeResult
	err = a.withLock(func() error {
		result, err = svc.Merge(ctx, branch, engine.MergeOptions{
			Method:      method,
			AutoConfirm: cmd.AutoConfirm,
			Fast:        cmd.Fast,
			NoWaitForCI: cmd.NoWaitForCI,
			Keep:        cmd.Keep,
		})
		return err
	})
	if err != nil {
		return err
	}

	for _, o := range result.Outcomes {
		switch {
		case o.Skipped:
			logger.Info("already merged or closed", "branch", o.Branch)
		case o.AutoRecovered:
			logger.Info("merged after auto-recovery", "branch", o.Branch, "pr", o.PRNumber)
		case o.Merged:
			logger.Info("merged", "branch", o.Branch, "pr", o.PRNumber)
		}
	}
	return nil
}
