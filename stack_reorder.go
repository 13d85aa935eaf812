package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/shlex"

	"go.stacker.dev/stk/internal/engine"
)

type stackReorderCmd struct {
	Branch string `arg:"" optional:"" help:"Branch naming the downstack to reorder; defaults to the current branch"`
	Order  string `optional:"" help:"Comma-separated new branch order, trunk-ward first; omit a branch to remove it from the stack"`
	File   string `optional:"" help:"Read the new order from a reorder script (one \"pick <branch>\" or \"drop <branch>\" line per branch) instead of --order"`
}

// parseReorderScript reads a rebase-todo-style reorder script: one "pick
// <branch>" or "drop <branch>" per line, blank lines and "#" comments
// ignored. Each line is tokenized with shlex so a branch name can be
// quoted if it ever needs to contain whitespace.
func parseReorderScript(data []byte) ([]string, error) {
	var order []string
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		args, err := shlex.Split(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: expected \"pick <branch>\" or \"drop <branch>\", got %q", i+1, line)
		}

		switch args[0] {
		case "pick", "p":
			order = append(order, args[1])
		case "drop", "d":
			// Omitted from the new order entirely.
		default:
			return nil, fmt.Errorf("line %d: unknown reorder command %q", i+1, args[0])
		}
	}
	return order, nil
}

func (cmd *stackReorderCmd) Run(ctx context.Context, logger *log.Logger, opts *globalOptions) error {
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

	trunk, err := a.refs.RequireTrunk(ctx)
	if err != nil {
		return err
	}

	ancestors, err := a.refs.Ancestors(ctx, branch)
	if err != nil {
		return err
	}
	original := append(ancestors, branch)

	var newOrder []string
	switch {
	case cmd.File != "":
		data, err := os.ReadFile(cmd.File)
		if err != nil {
			return fmt.Errorf("read reorder script: %w", err)
		}
		newOrder, err = parseReorderScript(data)
		if err != nil {
			return fmt.Errorf("parse reorder script: %w", err)
		}
	case cmd.Order != "":
		newOrder = strings.Split(cmd.Order, ",")
		for i := range newOrder {
			newOrder[i] = strings.TrimSpace(newOrder[i])
		}
	default:
		return fmt.Errorf("specify either --order or --file")
	}

	req := engine.ReorderRequest{Original: original, NewOrder: newOrder}
	if err := engine.ValidateReorder(req); err != nil {
		return err
	}

	var result *engine.ReorderResult
	err = a.withLock(func() error {
		result, err = svc.Reorder(ctx, trunk, req)
		return err
	})
	if err != nil {
		return err
	}

	if len(result.Removed) > 0 {
		logger.Info("removed from stack", "branches", strings.Join(result.Removed, ", "))
	}
	for _, r := range result.Applied {
		logger.Info("restacked", "branch", r.Branch, "onto", r.Parent)
	}
	if result.Paused {
		logger.Warn("reorder paused on conflict")
		fmt.Println("resolve the conflict, then run: stk rebase continue")
	}
	return nil
}
