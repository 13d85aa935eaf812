package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"go.stacker.dev/stk/internal/engine"
)

type syncCmd struct {
	Keep bool `help:"Don't delete branches whose change-request has merged"`
}

func (cmd *syncCmd) Run(ctx context.Context, logger *log.Logger, opts *globalOptions) error {
	a, err := newApp(ctx, opts, logger)
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}

	var result *engine.SyncResult
	err = a.withLock(func() error {
		result, err = svc.Sync(ctx, engine.SyncOptions{Keep: cmd.Keep})
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("synced", "trunk", result.Trunk)
	for _, b := range result.Merged {
		logger.Info("merged and cleaned up", "branch", b)
	}
	for _, r := range result.Restacks {
		logger.Info("restacked", "branch", r.Branch, "onto", r.Parent)
	}
	if len(result.Merged) > 0 || len(result.Restacks) > 0 {
		logger.Info("sync complete",
			"merged", humanize.Comma(int64(len(result.Merged))),
			"restacked", humanize.Comma(int64(len(result.Restacks))),
		)
	}
	return nil
}
