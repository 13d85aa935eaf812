package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Defaults(t *testing.T) {
	c := New(nil)
	if got := c.BranchFormat(); got != "{date}-{name}" {
		t.Errorf("BranchFormat() = %q", got)
	}
	if got := c.BranchPrefix(); got != "" {
		t.Errorf("BranchPrefix() = %q", got)
	}
	if got := c.MergeCITimeout(); got != 600*time.Second {
		t.Errorf("MergeCITimeout() = %v", got)
	}
	if !c.MergeProactiveRebase() {
		t.Error("MergeProactiveRebase() default should be true")
	}
	if !c.MergeWaitForCI() {
		t.Error("MergeWaitForCI() default should be true")
	}
	if got := c.RepoRemote(); got != "origin" {
		t.Errorf("RepoRemote() = %q", got)
	}
}

func TestConfig_OverridesFromValues(t *testing.T) {
	c := New(map[string]string{
		"branch.format":          "{prefix}/{name}",
		"branch.prefix":          "alice",
		"merge.ci_timeout_secs":  "120",
		"merge.proactive_rebase": "false",
		"merge.wait_for_ci":      "false",
		"repo.remote":            "upstream",
	})

	if got := c.BranchFormat(); got != "{prefix}/{name}" {
		t.Errorf("BranchFormat() = %q", got)
	}
	if got := c.BranchPrefix(); got != "alice" {
		t.Errorf("BranchPrefix() = %q", got)
	}
	if got := c.MergeCITimeout(); got != 120*time.Second {
		t.Errorf("MergeCITimeout() = %v", got)
	}
	if c.MergeProactiveRebase() {
		t.Error("MergeProactiveRebase() should be false")
	}
	if c.MergeWaitForCI() {
		t.Error("MergeWaitForCI() should be false")
	}
	if got := c.RepoRemote(); got != "upstream" {
		t.Errorf("RepoRemote() = %q", got)
	}
}

func TestConfig_InvalidBooleanFallsBackToDefault(t *testing.T) {
	c := New(map[string]string{"merge.wait_for_ci": "not-a-bool"})
	if !c.MergeWaitForCI() {
		t.Error("expected an unparseable bool to fall back to the default")
	}
}

func TestConfig_InvalidDurationFallsBackToDefault(t *testing.T) {
	c := New(map[string]string{"merge.ci_timeout_secs": "not-a-number"})
	if got := c.MergeCITimeout(); got != 600*time.Second {
		t.Errorf("expected an unparseable duration to fall back to the default, got %v", got)
	}
}

func TestExpandArgs(t *testing.T) {
	tests := []struct {
		name       string
		shorthands map[string][]string
		args       []string
		want       []string
	}{
		{
			name: "NoArgs",
			args: []string{},
			want: []string{},
		},
		{
			name:       "NoShorthand",
			shorthands: map[string][]string{},
			args:       []string{"branch", "create"},
			want:       []string{"branch", "create"},
		},
		{
			name:       "SingleMatch",
			shorthands: map[string][]string{"bc": {"branch", "create"}},
			args:       []string{"bc", "feature"},
			want:       []string{"branch", "create", "feature"},
		},
		{
			name: "Chained",
			shorthands: map[string][]string{
				"bc": {"b", "create"},
				"b":  {"branch"},
			},
			args: []string{"bc", "feature"},
			want: []string{"branch", "create", "feature"},
		},
		{
			name: "NoInfiniteLoop",
			shorthands: map[string][]string{
				"foo": {"bar", "baz"},
				"bar": {"foo", "qux"},
			},
			args: []string{"foo"},
			want: []string{"foo", "qux", "baz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{shorthands: tt.shorthands}
			got := ExpandArgs(c, tt.args)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_FormatBranchName(t *testing.T) {
	c := New(map[string]string{
		"branch.format": "{prefix}{date}-{name}",
		"branch.prefix": "alice/",
	})
	now := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	got := c.FormatBranchName("fix-login", now)
	want := "alice/03-05-fix-login"
	if got != want {
		t.Errorf("FormatBranchName() = %q, want %q", got, want)
	}
}
