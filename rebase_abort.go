package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/opstate"
)

type rebaseAbortCmd struct{}

func (cmd *rebaseAbortCmd) Run(ctx context.Context, logger *log.Logger, opts *globalOptions) error {
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
		if err := a.repo.RebaseAbort(ctx); err != nil {
			return fmt.Errorf("abort rebase: %w", err)
		}
	}

	if err := a.ops.Abort(ctx); err != nil {
		return err
	}

	logger.Info("aborted", "operation", st.Kind, "branch", st.CurrentBranch)
	return nil
}
