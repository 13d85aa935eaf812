package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/forge/github"
)

type authLoginCmd struct {
	Host string `default:"" help:"Forge host to authenticate with; defaults to github.com"`
}

func (cmd *authLoginCmd) Run(ctx context.Context, logger *log.Logger) error {
	host := cmd.Host
	if host == "" {
		host = github.DefaultHost
	}
	if err := github.Login(ctx, host, os.Stdout); err != nil {
		return err
	}
	logger.Info("logged in", "host", host)
	return nil
}
