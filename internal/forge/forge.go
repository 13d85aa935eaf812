// Package forge abstracts the hosted code-review server (the "forge")
// that a stack of branches is submitted to: change-request CRUD,
// retargeting, CI status, merging, and authentication. The core only
// ever talks to this interface; github implements it for real use and
// faketest provides an in-memory double for engine tests.
package forge

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedURL means the given remote URL does not match any
// registered forge.
var ErrUnsupportedURL = errors.New("unsupported remote URL")

// MergeMethod is how a change-request's commits are applied to its base.
type MergeMethod string

// The merge methods a forge may support.
const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// ChangeState is the lifecycle state of a change-request.
type ChangeState int

// The states a change-request passes through.
const (
	ChangeOpen ChangeState = iota + 1
	ChangeMerged
	ChangeClosed
)

func (s ChangeState) String() string {
	switch s {
	case ChangeOpen:
		return "open"
	case ChangeMerged:
		return "merged"
	case ChangeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CIStatus is the aggregate result of a change-request's status checks.
type CIStatus int

// The CI outcomes a change-request may report.
const (
	CIPending CIStatus = iota
	CISuccess
	CIFailure
	CINone
)

// PRInfo describes a change-request as reported by the forge.
type PRInfo struct {
	Number int
	URL    string
	Head   string
	Base   string
	State  ChangeState
	Title  string
}

// SubmitRequest creates a new change-request. Head must already be
// pushed to the remote.
type SubmitRequest struct {
	Head, Base  string
	Title, Body string
	Draft       bool
}

// Forge is a hosted code-review server.
type Forge interface {
	// ID is a unique identifier, e.g. "github".
	ID() string

	// MatchURL reports whether remoteURL is hosted on this forge.
	MatchURL(remoteURL string) bool

	// Open connects to the repository at remoteURL. dir is the local
	// working copy's path, used by implementations that push over an
	// authenticated HTTPS remote rather than the user's own git
	// credentials.
	Open(ctx context.Context, remoteURL, dir string) (Repository, error)
}

// Repository is a single repository hosted on a Forge.
type Repository interface {
	// CheckAuth verifies the forge credentials are valid and usable.
	CheckAuth(ctx context.Context) error

	// PRExists looks up the open-or-most-recent change-request for
	// branch, or returns false if none exists.
	PRExists(ctx context.Context, branch string) (PRInfo, bool, error)

	// CheckPRsExist batch-resolves PRExists for many branches at once.
	CheckPRsExist(ctx context.Context, branches []string) (map[string]PRInfo, error)

	// GetPRInfo fetches the current state of a change-request by number.
	GetPRInfo(ctx context.Context, number int) (PRInfo, error)

	// CreatePR opens a new change-request.
	CreatePR(ctx context.Context, req SubmitRequest) (PRInfo, error)

	// UpdatePRBase retargets a change-request to a new base branch.
	UpdatePRBase(ctx context.Context, number int, newBase string) error

	// UpdatePRBody replaces a change-request's description.
	UpdatePRBody(ctx context.Context, number int, body string) error

	// MarkPRReady takes a change-request out of draft state.
	MarkPRReady(ctx context.Context, number int) error

	// EnableAutoMerge configures the change-request to merge
	// automatically once its requirements are satisfied.
	EnableAutoMerge(ctx context.Context, number int, method MergeMethod) error

	// MergePR merges a change-request. autoConfirm skips an
	// interactive confirmation prompt some forges require.
	MergePR(ctx context.Context, number int, method MergeMethod, autoConfirm bool) error

	// PushBranch pushes branch to the remote, force-pushing with a
	// compare-and-swap guard when force is true.
	PushBranch(ctx context.Context, branch string, force bool) error

	// GetPRChain returns the change-requests reachable by following
	// base branches from number back to trunk, trunk-ward first, for
	// importing an existing stack.
	GetPRChain(ctx context.Context, number int) ([]PRInfo, error)

	// CIStatus reports the aggregate CI state of a change-request.
	CIStatus(ctx context.Context, number int) (CIStatus, error)
}

// NotMergeableError is returned by MergePR when the forge refuses the
// merge. Message is the forge's message as reported, which the merge
// orchestrator lowercases and classifies into the merge-conflict class
// or the branch-protection exemption class.
type NotMergeableError struct {
	Number  int
	Message string
}

func (e *NotMergeableError) Error() string {
	return fmt.Sprintf("pr #%d is not mergeable: %s", e.Number, e.Message)
}
