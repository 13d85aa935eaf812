package main

import (
	"context"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/forge/github"
)

type authStatusCmd struct {
	Host string `default:"" help:"Forge host to check; defaults to github.com"`
}

func (cmd *authStatusCmd) Run(ctx context.Context, logger *log.Logger) error {
	host := cmd.Host
	if host == "" {
		host = github.DefaultHost
	}

	if err := github.CheckLogin(ctx, host); err != nil {
		logger.Warn("not logged in", "host", host, "error", err)
		return nil
	}
	logger.Info("logged in", "host", host)
	return nil
}
