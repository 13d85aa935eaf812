// Package github implements the forge.Forge and forge.Repository
// interfaces against GitHub: change-requests are managed over GitHub's
// GraphQL v4 API, authentication uses an OAuth device flow backed by the
// OS secret store, and pushes go out over an HTTPS remote carrying the
// stored token so a push succeeds even without the user's own git
// credentials configured.
package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"go.stacker.dev/stk/internal/forge"
)

// DefaultHost is the hostname this forge matches by default.
const DefaultHost = "github.com"

// Forge talks to GitHub.
type Forge struct {
	host string
	log  *log.Logger
}

var _ forge.Forge = (*Forge)(nil)

// New builds a GitHub Forge. host defaults to DefaultHost (github.com);
// set it to a GitHub Enterprise hostname to target one.
func New(host string, logger *log.Logger) *Forge {
	if host == "" {
		host = DefaultHost
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Forge{host: host, log: logger}
}

// ID identifies this forge to the rest of the tool.
func (f *Forge) ID() string { return "github" }

// MatchURL reports whether remoteURL points at this forge's host.
func (f *Forge) MatchURL(remoteURL string) bool {
	owner, repo, err := f.parseRemote(remoteURL)
	return err == nil && owner != "" && repo != ""
}

// Open connects to the repository identified by remoteURL, using dir as
// the local working copy for token-authenticated pushes.
func (f *Forge) Open(ctx context.Context, remoteURL, dir string) (forge.Repository, error) {
	owner, repo, err := f.parseRemote(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", forge.ErrUnsupportedURL, err)
	}

	token, err := loadToken(f.host)
	if err != nil {
		return nil, fmt.Errorf("load GitHub token: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	var client *githubv4.Client
	if f.host == DefaultHost {
		client = githubv4.NewClient(httpClient)
	} else {
		client = githubv4.NewEnterpriseClient("https://"+f.host+"/api/graphql", httpClient)
	}

	repository := &Repository{
		owner:  owner,
		repo:   repo,
		host:   f.host,
		dir:    dir,
		token:  token,
		log:    f.log,
		client: client,
	}
	if err := repository.resolveID(ctx); err != nil {
		return nil, fmt.Errorf("resolve repository ID: %w", err)
	}
	return repository, nil
}

// parseRemote extracts the owner and repo name from a GitHub remote URL,
// accepting both "git@host:owner/repo.git" and "https://host/owner/repo"
// forms.
func (f *Forge) parseRemote(remoteURL string) (owner, repo string, err error) {
	normalized := remoteURL
	if !strings.Contains(remoteURL, "://") && strings.Contains(remoteURL, ":") {
		normalized = "ssh://" + strings.Replace(remoteURL, ":", "/", 1)
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return "", "", fmt.Errorf("parse remote URL: %w", err)
	}
	if u.Hostname() != f.host {
		return "", "", fmt.Errorf("%q is not a %s URL", remoteURL, f.host)
	}

	path := strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), ".git")
	owner, repo, ok := strings.Cut(path, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("path %q does not name an owner and repository", path)
	}
	return owner, repo, nil
}
