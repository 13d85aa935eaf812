// Package engine implements the core stack operations: restack, sync,
// merge, create/insert, reorder/move, and rename. It depends only on the
// vcs.Gateway and forge.Forge interfaces, plus the store and opstate
// packages, so it can be exercised against fakes in tests without
// touching a real repository or forge.
package engine

import (
	"io"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/config"
	"go.stacker.dev/stk/internal/forge"
	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/store"
	"go.stacker.dev/stk/internal/vcs"
)

// Service bundles the dependencies every core operation needs.
type Service struct {
	repo   vcs.Gateway
	refs   *store.RefStore
	cache  *store.Cache
	ops    *opstate.Store
	lock   *opstate.Lock
	forge  forge.Repository
	cfg    *config.Config
	log    *log.Logger
	remote string
}

// Options configures a new Service.
type Options struct {
	Repo   vcs.Gateway
	Refs   *store.RefStore
	Cache  *store.Cache
	Ops    *opstate.Store
	Lock   *opstate.Lock
	Forge  forge.Repository // may be nil for local-only operations
	Config *config.Config
	Log    *log.Logger
}

// New builds a Service from its dependencies.
func New(opts Options) *Service {
	if opts.Log == nil {
		opts.Log = log.New(io.Discard)
	}
	return &Service{
		repo:   opts.Repo,
		refs:   opts.Refs,
		cache:  opts.Cache,
		ops:    opts.Ops,
		lock:   opts.Lock,
		forge:  opts.Forge,
		cfg:    opts.Config,
		log:    opts.Log,
		remote: opts.Config.RepoRemote(),
	}
}
