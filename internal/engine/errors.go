package engine

import (
	"errors"
	"fmt"
)

// The error taxonomy the core surfaces to command implementations. Each
// kind maps to a distinct user-facing recovery instruction; callers
// dispatch on these with errors.As/errors.Is rather than string
// matching.

// ErrNotInitialized means no trunk has been configured.
var ErrNotInitialized = errors.New("not initialized: run init first")

// NotTrackedError means a branch has no parent record and is not trunk.
type NotTrackedError struct{ Branch string }

func (e *NotTrackedError) Error() string {
	return fmt.Sprintf("%s is not tracked; run track to start tracking it", e.Branch)
}

// CycleError means following parent links loops without reaching trunk.
type CycleError struct{ Branch string }

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected at %s; run cleanup to repair the stack", e.Branch)
}

// DangerousNameError means a branch name fails the safety check, e.g.
// it contains markup such as a link target or an HTML comment marker.
type DangerousNameError struct{ Name, Reason string }

func (e *DangerousNameError) Error() string {
	return fmt.Sprintf("%q is not a usable branch name: %s", e.Name, e.Reason)
}

// ProtectedError means the requested operation targets trunk or a
// branch that cannot be the target of that command.
type ProtectedError struct{ Branch, Reason string }

func (e *ProtectedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Branch, e.Reason)
}

// FrozenError means the target branch has been frozen by the user.
type FrozenError struct{ Branch string }

func (e *FrozenError) Error() string {
	return fmt.Sprintf("%s is frozen; unfreeze it first", e.Branch)
}

// StateDriftError means VCS reality no longer matches the persisted
// Operation State record.
type StateDriftError struct{ Detail string }

func (e *StateDriftError) Error() string {
	return fmt.Sprintf("state drift detected: %s; run abort and retry", e.Detail)
}

// ConflictError means a rebase paused on a merge conflict mid-operation.
type ConflictError struct {
	Branch string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("rebase of %s paused on conflict; resolve and run continue, or run abort: %v", e.Branch, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// RemoteBehindError means the local branch trails its remote-tracking
// counterpart.
type RemoteBehindError struct{ Branch string }

func (e *RemoteBehindError) Error() string {
	return fmt.Sprintf("%s is behind its remote counterpart; sync first, or pass --force", e.Branch)
}

// RemoteDivergedError means the local and remote branch have each
// gained commits the other lacks.
type RemoteDivergedError struct{ Branch string }

func (e *RemoteDivergedError) Error() string {
	return fmt.Sprintf("%s has diverged from its remote counterpart; sync first, or pass --force", e.Branch)
}

// MergeConflictClassError means the forge reported the change-request
// as not mergeable for a reason distinct from branch protection.
type MergeConflictClassError struct {
	Branch  string
	Message string
}

func (e *MergeConflictClassError) Error() string {
	return fmt.Sprintf("%s is not mergeable: %s", e.Branch, e.Message)
}

// BranchProtectionError means the forge refused the merge for a
// branch-protection reason; this is never auto-retried.
type BranchProtectionError struct {
	Branch  string
	Message string
}

func (e *BranchProtectionError) Error() string {
	return fmt.Sprintf("%s is blocked by branch protection: %s", e.Branch, e.Message)
}

// CITimeoutError means CI did not finish within the configured timeout.
type CITimeoutError struct{ Branch string }

func (e *CITimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for CI on %s; increase merge.ci_timeout_secs or pass --no-wait-for-ci", e.Branch)
}

// CIFailureError means CI finished in a failing state.
type CIFailureError struct{ Branch, Status string }

func (e *CIFailureError) Error() string {
	return fmt.Sprintf("CI for %s finished as %s", e.Branch, e.Status)
}
