// Command stk manages a stack of local branches and their change-requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/config"
	"go.stacker.dev/stk/internal/engine"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		logger.Warn("interrupted, cleaning up; press Ctrl-C again to exit immediately")
		cancel()
	}()

	// Expand any user-defined "stk.shorthand.<name>" alias in argv[0]
	// before kong ever sees it, the way a shell alias would. Read from
	// the current directory regardless of --dir: shorthands are almost
	// always defined at the user or system config level.
	if cfg, err := config.Load(ctx, config.NewSource(".")); err == nil {
		os.Args = append(os.Args[:1], config.ExpandArgs(cfg, os.Args[1:])...)
	}

	var cli rootCmd
	kctx := kong.Parse(&cli,
		kong.Name("stk"),
		kong.Description("stk manages a stack of local branches and their pull requests."),
		kong.Bind(logger, &cli.globalOptions),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.UsageOnError(),
	)

	err := kctx.Run()
	if err != nil {
		var conflict *engine.ConflictError
		if errors.As(err, &conflict) {
			// A paused rebase is a normal stopping point, not a
			// failure: the working copy is left mid-rebase and the
			// user resolves it with "stk rebase continue" or
			// "stk rebase abort".
			fmt.Println(err.Error())
			return
		}
		fmt.Fprintln(os.Stderr, "stk:", err)
		os.Exit(exitCode(err))
	}
}

type rootCmd struct {
	globalOptions

	Init  initCmd  `cmd:"" help:"Initialize stk in the current repository"`
	Auth  authCmd  `cmd:"" help:"Manage forge authentication"`
	Sync  syncCmd  `cmd:"" help:"Fetch trunk and restack every tracked branch onto it"`
	Merge mergeCmd `cmd:"" help:"Merge a branch's change-request and everything below it"`

	Branch  branchCmd  `cmd:"" aliases:"b" help:"Branch-level operations"`
	Stack   stackCmd   `cmd:"" aliases:"s" help:"Stack-level operations"`
	Rebase  rebaseCmd  `cmd:"" help:"Resume or cancel a paused operation"`
	Version versionCmd `cmd:"" help:"Print version information"`
}

func (cmd *rootCmd) AfterApply(kctx *kong.Context, logger *log.Logger) error {
	if cmd.Verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	return nil
}

type branchCmd struct {
	Create  branchCreateCmd  `cmd:"" help:"Create a new branch on top of the current one"`
	Restack branchRestackCmd `cmd:"" help:"Rebase a branch onto its parent's current tip"`
	Rename  branchRenameCmd  `cmd:"" help:"Rename a tracked branch"`
	Move    branchMoveCmd    `cmd:"" help:"Reparent a branch onto a new parent"`
}

type stackCmd struct {
	Reorder stackReorderCmd `cmd:"" help:"Reorder the current stack"`
}

type rebaseCmd struct {
	Continue rebaseContinueCmd `cmd:"" help:"Continue a paused operation after resolving conflicts"`
	Abort    rebaseAbortCmd    `cmd:"" help:"Cancel a paused operation"`
}

type authCmd struct {
	Login  authLoginCmd  `cmd:"" help:"Log in to a forge"`
	Status authStatusCmd `cmd:"" help:"Show forge authentication status"`
}
