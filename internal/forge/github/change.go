package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"

	"go.stacker.dev/stk/internal/forge"
)

type pullRequestFragment struct {
	Number      githubv4.Int
	URL         githubv4.URI
	Title       githubv4.String
	State       githubv4.PullRequestState
	BaseRefName githubv4.String
	HeadRefName githubv4.String
}

func (p pullRequestFragment) toPRInfo() forge.PRInfo {
	return forge.PRInfo{
		Number: int(p.Number),
		URL:    p.URL.String(),
		Head:   string(p.HeadRefName),
		Base:   string(p.BaseRefName),
		State:  forgeChangeState(p.State),
		Title:  string(p.Title),
	}
}

func forgeChangeState(s githubv4.PullRequestState) forge.ChangeState {
	switch s {
	case githubv4.PullRequestStateOpen:
		return forge.ChangeOpen
	case githubv4.PullRequestStateMerged:
		return forge.ChangeMerged
	case githubv4.PullRequestStateClosed:
		return forge.ChangeClosed
	default:
		return forge.ChangeOpen
	}
}

// PRExists looks up the open-or-most-recent change-request for branch.
func (r *Repository) PRExists(ctx context.Context, branch string) (forge.PRInfo, bool, error) {
	var q struct {
		Repository struct {
			PullRequests struct {
				Nodes []pullRequestFragment
			} `graphql:"pullRequests(headRefName: $branch, first: 1, orderBy: {field: CREATED_AT, direction: DESC})"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	if err := r.client.Query(ctx, &q, map[string]any{
		"owner":  githubv4.String(r.owner),
		"repo":   githubv4.String(r.repo),
		"branch": githubv4.String(branch),
	}); err != nil {
		return forge.PRInfo{}, false, fmt.Errorf("query pull requests for %s: %w", branch, err)
	}

	if len(q.Repository.PullRequests.Nodes) == 0 {
		return forge.PRInfo{}, false, nil
	}
	return q.Repository.PullRequests.Nodes[0].toPRInfo(), true, nil
}

// CheckPRsExist batch-resolves PRExists for many branches.
func (r *Repository) CheckPRsExist(ctx context.Context, branches []string) (map[string]forge.PRInfo, error) {
	found := make(map[string]forge.PRInfo, len(branches))
	for _, branch := range branches {
		info, ok, err := r.PRExists(ctx, branch)
		if err != nil {
			return nil, err
		}
		if ok {
			found[branch] = info
		}
	}
	return found, nil
}

// GetPRInfo fetches the current state of change-request number.
func (r *Repository) GetPRInfo(ctx context.Context, number int) (forge.PRInfo, error) {
	var q struct {
		Repository struct {
			PullRequest pullRequestFragment `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	if err := r.client.Query(ctx, &q, map[string]any{
		"owner":  githubv4.String(r.owner),
		"repo":   githubv4.String(r.repo),
		"number": githubv4.Int(number),
	}); err != nil {
		return forge.PRInfo{}, fmt.Errorf("get pull request #%d: %w", number, err)
	}
	return q.Repository.PullRequest.toPRInfo(), nil
}

// CreatePR opens a new change-request.
func (r *Repository) CreatePR(ctx context.Context, req forge.SubmitRequest) (forge.PRInfo, error) {
	var m struct {
		CreatePullRequest struct {
			PullRequest pullRequestFragment
		} `graphql:"createPullRequest(input: $input)"`
	}

	input := githubv4.CreatePullRequestInput{
		RepositoryID: r.repoID,
		Title:        githubv4.String(req.Title),
		BaseRefName:  githubv4.String(req.Base),
		HeadRefName:  githubv4.String(req.Head),
	}
	if req.Body != "" {
		body := githubv4.String(req.Body)
		input.Body = &body
	}
	if req.Draft {
		input.Draft = githubv4.NewBoolean(true)
	}

	if err := r.client.Mutate(ctx, &m, input, nil); err != nil {
		return forge.PRInfo{}, fmt.Errorf("create pull request: %w", err)
	}
	return m.CreatePullRequest.PullRequest.toPRInfo(), nil
}

// UpdatePRBase retargets change-request number to newBase.
func (r *Repository) UpdatePRBase(ctx context.Context, number int, newBase string) error {
	id, err := r.nodeIDForPR(ctx, number)
	if err != nil {
		return err
	}

	var m struct {
		UpdatePullRequest struct {
			PullRequest pullRequestFragment
		} `graphql:"updatePullRequest(input: $input)"`
	}
	input := githubv4.UpdatePullRequestInput{
		PullRequestID: id,
		BaseRefName:   githubv4.NewString(githubv4.String(newBase)),
	}
	if err := r.client.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("retarget pull request #%d to %s: %w", number, newBase, err)
	}
	return nil
}

// UpdatePRBody replaces change-request number's description.
func (r *Repository) UpdatePRBody(ctx context.Context, number int, body string) error {
	id, err := r.nodeIDForPR(ctx, number)
	if err != nil {
		return err
	}

	var m struct {
		UpdatePullRequest struct {
			PullRequest pullRequestFragment
		} `graphql:"updatePullRequest(input: $input)"`
	}
	input := githubv4.UpdatePullRequestInput{
		PullRequestID: id,
		Body:          githubv4.NewString(githubv4.String(body)),
	}
	if err := r.client.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("update body of pull request #%d: %w", number, err)
	}
	return nil
}

// MarkPRReady takes change-request number out of draft state.
func (r *Repository) MarkPRReady(ctx context.Context, number int) error {
	id, err := r.nodeIDForPR(ctx, number)
	if err != nil {
		return err
	}

	var m struct {
		MarkPullRequestReadyForReview struct {
			PullRequest pullRequestFragment
		} `graphql:"markPullRequestReadyForReview(input: $input)"`
	}
	input := githubv4.MarkPullRequestReadyForReviewInput{PullRequestID: id}
	if err := r.client.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("mark pull request #%d ready: %w", number, err)
	}
	return nil
}

// EnableAutoMerge configures change-request number to merge automatically
// once its requirements are satisfied.
func (r *Repository) EnableAutoMerge(ctx context.Context, number int, method forge.MergeMethod) error {
	id, err := r.nodeIDForPR(ctx, number)
	if err != nil {
		return err
	}

	var m struct {
		EnablePullRequestAutoMerge struct {
			PullRequest pullRequestFragment
		} `graphql:"enablePullRequestAutoMerge(input: $input)"`
	}
	input := githubv4.EnablePullRequestAutoMergeInput{
		PullRequestID: id,
		MergeMethod:   mergeMethodInput(method),
	}
	if err := r.client.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("enable auto-merge for pull request #%d: %w", number, err)
	}
	return nil
}

// MergePR merges change-request number.
func (r *Repository) MergePR(ctx context.Context, number int, method forge.MergeMethod, autoConfirm bool) error {
	id, err := r.nodeIDForPR(ctx, number)
	if err != nil {
		return err
	}

	var m struct {
		MergePullRequest struct {
			PullRequest pullRequestFragment
		} `graphql:"mergePullRequest(input: $input)"`
	}
	input := githubv4.MergePullRequestInput{
		PullRequestID: id,
		MergeMethod:   mergeMethodInput(method),
	}
	if err := r.client.Mutate(ctx, &m, input, nil); err != nil {
		if isNotMergeableError(err) {
			return &forge.NotMergeableError{Number: number, Message: err.Error()}
		}
		return fmt.Errorf("merge pull request #%d: %w", number, err)
	}
	return nil
}

// isNotMergeableError reports whether a GitHub GraphQL mutation error
// looks like the kind that comes from an unmergeable pull request, as
// opposed to a transport or auth failure.
func isNotMergeableError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not mergeable") ||
		strings.Contains(msg, "merge conflict") ||
		strings.Contains(msg, "review") ||
		strings.Contains(msg, "status check") ||
		strings.Contains(msg, "branch protection") ||
		strings.Contains(msg, "required")
}

// GetPRChain returns the change-requests reachable by following base
// branches from number back to trunk, trunk-ward first.
func (r *Repository) GetPRChain(ctx context.Context, number int) ([]forge.PRInfo, error) {
	var chain []forge.PRInfo
	seen := map[int]bool{}
	cur := number
	for {
		if seen[cur] {
			return nil, fmt.Errorf("cycle detected following pull request chain at #%d", cur)
		}
		seen[cur] = true

		info, err := r.GetPRInfo(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, info)

		base, ok, err := r.PRExists(ctx, info.Base)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		cur = base.Number
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// CIStatus reports the aggregate CI state of change-request number.
func (r *Repository) CIStatus(ctx context.Context, number int) (forge.CIStatus, error) {
	var q struct {
		Repository struct {
			PullRequest struct {
				Commits struct {
					Nodes []struct {
						Commit struct {
							StatusCheckRollup struct {
								State githubv4.StatusState
							}
						}
					}
				} `graphql:"commits(last: 1)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	if err := r.client.Query(ctx, &q, map[string]any{
		"owner":  githubv4.String(r.owner),
		"repo":   githubv4.String(r.repo),
		"number": githubv4.Int(number),
	}); err != nil {
		return forge.CINone, fmt.Errorf("query CI status for pull request #%d: %w", number, err)
	}

	nodes := q.Repository.PullRequest.Commits.Nodes
	if len(nodes) == 0 {
		return forge.CINone, nil
	}

	switch nodes[0].Commit.StatusCheckRollup.State {
	case githubv4.StatusStateSuccess:
		return forge.CISuccess, nil
	case githubv4.StatusStateFailure, githubv4.StatusStateError:
		return forge.CIFailure, nil
	case githubv4.StatusStatePending, githubv4.StatusStateExpected:
		return forge.CIPending, nil
	default:
		return forge.CINone, nil
	}
}

func (r *Repository) nodeIDForPR(ctx context.Context, number int) (githubv4.ID, error) {
	var q struct {
		Repository struct {
			PullRequest struct {
				ID githubv4.ID
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	if err := r.client.Query(ctx, &q, map[string]any{
		"owner":  githubv4.String(r.owner),
		"repo":   githubv4.String(r.repo),
		"number": githubv4.Int(number),
	}); err != nil {
		return nil, fmt.Errorf("resolve node ID for pull request #%d: %w", number, err)
	}
	return q.Repository.PullRequest.ID, nil
}

func mergeMethodInput(m forge.MergeMethod) *githubv4.PullRequestMergeMethod {
	var v githubv4.PullRequestMergeMethod
	switch m {
	case forge.MergeMethodSquash:
		v = githubv4.PullRequestMergeMethodSquash
	case forge.MergeMethodRebase:
		v = githubv4.PullRequestMergeMethodRebase
	default:
		v = githubv4.PullRequestMergeMethodMerge
	}
	return &v
}
