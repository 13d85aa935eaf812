package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.stacker.dev/stk/internal/opstate"
	"go.stacker.dev/stk/internal/vcs"
)

// dangerousNamePatterns are substrings that could let a branch name,
// once embedded verbatim into a change-request description, break out
// of its markdown context (a disguised link, a fenced code block, an
// HTML comment). Rejected at input rather than escaped, since a branch
// name containing them is never something a user intended.
var dangerousNamePatterns = []string{
	"](http",
	"](javascript",
	"```",
	"<!--",
	"-->",
}

func dangerousNameReason(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, pattern := range dangerousNamePatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Sprintf("contains disallowed pattern %q", pattern), true
		}
	}
	return "", false
}

var slugNonWord = regexp.MustCompile(`[^a-z0-9_ ]+`)

// SlugifyName turns a commit message into a branch-name-safe component.
// Date and prefix formatting is applied separately by Config.
func SlugifyName(message string) string {
	lower := strings.ToLower(message)
	cleaned := slugNonWord.ReplaceAllString(lower, " ")
	return strings.Join(strings.Fields(cleaned), "_")
}

// CreateRequest describes a new branch to create on top of the current
// branch.
type CreateRequest struct {
	// Name is the explicit branch name. If empty, Message is slugified
	// and run through the configured branch.format template instead.
	Name    string
	Message string

	// StageAll stages all changes (tracked and untracked) before
	// committing Message. Mutually exclusive with StageUpdates.
	StageAll bool
	// StageUpdates stages changes before committing Message, through the
	// same StageAll call as StageAll: untracked files are staged too.
	StageUpdates bool

	// Insert, if non-empty, names the child of the current branch to
	// reparent onto the new branch. The special value "auto" asks the
	// engine to find that child itself, requiring the current branch
	// to have exactly one.
	Insert string
}

// CreateResult reports the outcome of Create.
type CreateResult struct {
	Branch   string
	Parent   string
	Inserted string // the displaced child, if Insert was used
	Paused   bool   // true if the insert rebase paused on conflict
}

const insertAuto = "auto"

// Create creates a new branch on top of the current branch, optionally
// committing staged changes, and optionally inserting it between the
// current branch and one of its children.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.StageAll && req.StageUpdates {
		return nil, fmt.Errorf("cannot stage all changes and only tracked updates at once")
	}

	name := req.Name
	if name == "" {
		if req.Message == "" {
			return nil, fmt.Errorf("must provide either a branch name or a commit message to generate one")
		}
		name = s.cfg.FormatBranchName(SlugifyName(req.Message), time.Now())
	}

	if reason, dangerous := dangerousNameReason(name); dangerous {
		return nil, &DangerousNameError{Name: name, Reason: reason}
	}

	if exists, err := s.repo.BranchExists(ctx, name); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("branch %q already exists", name)
	}

	parent, err := s.repo.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("determine current branch: %w", err)
	}
	if _, err := s.repo.PeelToCommit(ctx, parent); err != nil {
		return nil, fmt.Errorf("cannot create branch with deleted parent: %w", err)
	}

	trunk, err := s.refs.GetTrunk(ctx)
	if err != nil {
		return nil, err
	}
	if parent != trunk {
		if grandparent, ok, err := s.refs.GetParent(ctx, parent); err != nil {
			return nil, err
		} else if ok {
			if _, err := s.repo.PeelToCommit(ctx, grandparent); err != nil {
				return nil, fmt.Errorf("cannot create branch: current branch's parent has been deleted: %w", err)
			}
		}
	}

	insertChild, err := s.resolveInsertTarget(ctx, req.Insert, parent, trunk)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateBranch(ctx, name, parent); err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}
	if err := s.repo.Checkout(ctx, name); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", name, err)
	}
	if err := s.refs.SetParent(ctx, name, parent); err != nil {
		return nil, err
	}

	if req.StageAll {
		if err := s.repo.StageAll(ctx); err != nil {
			return nil, err
		}
	} else if req.StageUpdates {
		if err := s.repo.StageAll(ctx); err != nil {
			return nil, err
		}
	}
	if req.Message != "" {
		if err := s.repo.Commit(ctx, req.Message); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
	}

	if hash, err := s.repo.PeelToCommit(ctx, name); err == nil {
		_ = s.cache.SetBaseSHA(ctx, name, hash.String())
	}

	result := &CreateResult{Branch: name, Parent: parent}
	if insertChild == "" {
		return result, nil
	}

	opState := opstate.State{
		Kind:           opstate.KindInsert,
		OriginalBranch: parent,
		CurrentBranch:  insertChild,
		Insert: opstate.InsertFields{
			NewBranch:      name,
			DisplacedChild: insertChild,
			PriorParent:    parent,
		},
	}
	if err := s.ops.Start(ctx, opState); err != nil {
		return result, err
	}

	if err := s.refs.Reparent(ctx, insertChild, name); err != nil {
		return result, err
	}

	if err := s.repo.Rebase(ctx, vcs.RebaseRequest{
		Branch:    insertChild,
		Upstream:  parent,
		Onto:      name,
		Autostash: true,
		Quiet:     true,
	}); err != nil {
		var interrupt *vcs.RebaseInterruptError
		if errors.As(err, &interrupt) {
			result.Inserted = insertChild
			result.Paused = true
			return result, nil
		}
		return result, fmt.Errorf("rebase %s onto %s: %w", insertChild, name, err)
	}

	if err := s.repo.Checkout(ctx, name); err != nil {
		return result, fmt.Errorf("checkout %s: %w", name, err)
	}
	if err := s.ops.Finish(ctx); err != nil {
		return result, err
	}

	result.Inserted = insertChild
	return result, nil
}

func (s *Service) resolveInsertTarget(ctx context.Context, insert, parent, trunk string) (string, error) {
	if insert == "" {
		return "", nil
	}
	if parent == trunk {
		return "", &ProtectedError{Branch: parent, Reason: "cannot insert from trunk"}
	}

	if insert != insertAuto {
		if exists, err := s.repo.BranchExists(ctx, insert); err != nil {
			return "", err
		} else if !exists {
			return "", fmt.Errorf("child branch %q does not exist", insert)
		}
		childParent, ok, err := s.refs.GetParent(ctx, insert)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", &NotTrackedError{Branch: insert}
		}
		if childParent != parent {
			return "", fmt.Errorf("%q is not a child of %q (it's a child of %s)", insert, parent, childParent)
		}
		return insert, nil
	}

	children, err := s.refs.GetChildren(ctx, parent)
	if err != nil {
		return "", err
	}
	switch len(children) {
	case 0:
		return "", fmt.Errorf("cannot use --insert: %q has no children; pass --insert <child> explicitly", parent)
	case 1:
		return children[0], nil
	default:
		return "", fmt.Errorf("cannot use --insert: %q has multiple children (%s); pass --insert <child> to pick one", parent, strings.Join(children, ", "))
	}
}
