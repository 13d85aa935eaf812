package github

import (
	"errors"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/shurcooL/githubv4"

	"go.stacker.dev/stk/internal/forge"
)

func TestForge_MatchURL(t *testing.T) {
	f := New(DefaultHost, log.Default())

	tests := []struct {
		url  string
		want bool
	}{
		{"https://github.com/example/repo", true},
		{"https://github.com/example/repo.git", true},
		{"git@github.com:example/repo.git", true},
		{"https://gitlab.com/example/repo", false},
		{"not a url at all", false},
	}
	for _, tt := range tests {
		if got := f.MatchURL(tt.url); got != tt.want {
			t.Errorf("MatchURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestForge_ParseRemote(t *testing.T) {
	f := New(DefaultHost, log.Default())

	tests := []struct {
		url       string
		wantOwner string
		wantRepo  string
	}{
		{"https://github.com/example/repo", "example", "repo"},
		{"https://github.com/example/repo.git", "example", "repo"},
		{"git@github.com:example/repo.git", "example", "repo"},
	}
	for _, tt := range tests {
		owner, repo, err := f.parseRemote(tt.url)
		if err != nil {
			t.Fatalf("parseRemote(%q): %v", tt.url, err)
		}
		if owner != tt.wantOwner || repo != tt.wantRepo {
			t.Errorf("parseRemote(%q) = (%q, %q), want (%q, %q)", tt.url, owner, repo, tt.wantOwner, tt.wantRepo)
		}
	}
}

func TestForge_ParseRemoteRejectsOtherHosts(t *testing.T) {
	f := New(DefaultHost, log.Default())
	if _, _, err := f.parseRemote("https://gitlab.com/example/repo"); err == nil {
		t.Fatal("expected an error for a non-GitHub URL")
	}
}

func TestForgeChangeState(t *testing.T) {
	tests := []struct {
		state githubv4.PullRequestState
		want  forge.ChangeState
	}{
		{githubv4.PullRequestStateOpen, forge.ChangeOpen},
		{githubv4.PullRequestStateMerged, forge.ChangeMerged},
		{githubv4.PullRequestStateClosed, forge.ChangeClosed},
	}
	for _, tt := range tests {
		if got := forgeChangeState(tt.state); got != tt.want {
			t.Errorf("forgeChangeState(%v) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestMergeMethodInput(t *testing.T) {
	tests := []struct {
		method forge.MergeMethod
		want   githubv4.PullRequestMergeMethod
	}{
		{forge.MergeMethodMerge, githubv4.PullRequestMergeMethodMerge},
		{forge.MergeMethodSquash, githubv4.PullRequestMergeMethodSquash},
		{forge.MergeMethodRebase, githubv4.PullRequestMergeMethodRebase},
	}
	for _, tt := range tests {
		got := mergeMethodInput(tt.method)
		if got == nil || *got != tt.want {
			t.Errorf("mergeMethodInput(%v) = %v, want %v", tt.method, got, tt.want)
		}
	}
}

func TestIsNotMergeableError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Pull Request is not mergeable", true},
		{"merge conflict between branches", true},
		{"at least 1 approving review is required", true},
		{"connection reset by peer", false},
	}
	for _, tt := range tests {
		err := errors.New(tt.msg)
		if got := isNotMergeableError(err); got != tt.want {
			t.Errorf("isNotMergeableError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
