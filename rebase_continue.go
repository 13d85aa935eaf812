package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/opstate"
)

type rebaseContinueCmd struct{}

// Run continues a rebase paused by a conflict and clears the paused
// Operation State record. It does not resume the rest of a
// multi-branch operation (e.g. the remaining branches of a sync or
// reorder): run the original command again afterward to pick up where
// the conflict left off.
func (cmd *rebaseContinueCmd) Run(ctx context.Context, logger *log.Logger, opts *globalOptions) error {
	a, err := newApp(ctx, opts, logger)
	if err != nil {
		return err
	}

	st, err := a.ops.Get(ctx)
	if errors.Is(err, opstate.ErrNoOperation) {
		return errors.New("no operation is in progress")
	}
	if err != nil {
		return err
	}

	if inProgress, err := a.repo.RebaseInProgress(ctx); err != nil {
		return err
	} else if inProgress {
		if err := a.repo.RebaseContinue(ctx); err != nil {
			return fmt.Errorf("continue rebase: %w", err)
		}
	}

	if err := a.ops.Finish(ctx); err != nil {
		return err
	}

	logger.Info("continued", "operation", st.Kind, "branch", st.CurrentBranch)
	if len(st.RemainingBranches) > 0 {
		fmt.Println("run the original command again to continue with the rest of the stack")
	}
	return nil
}
