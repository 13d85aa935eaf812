// Package config resolves the tool's git-config driven settings:
// branch naming, merge behavior, and the remote to treat as upstream.
// Settings are read from git-config the way the teacher's configuration
// layer does, under a single root section.
package config

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/buildkite/shellwords"
)

const (
	section             = "stk"
	shorthandSubsection = "shorthand"
)

// Config is the resolved configuration for one repository, combining
// system, global, local, and worktree git-config layers.
type Config struct {
	values     map[string]string
	shorthands map[string][]string
}

// Load reads every "stk.*" key from src. Keys under "stk.shorthand.*"
// are special-cased into shorthand command aliases instead of being
// stored as plain settings.
func Load(ctx context.Context, src *Source) (*Config, error) {
	entries, err := src.ListRegexp(ctx, `^`+section+`\.`)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	values := make(map[string]string, len(entries))
	shorthands := make(map[string][]string)
	for _, e := range entries {
		key := e.Key.Canonical()
		_, sub, name := key.Split()

		if sub == shorthandSubsection {
			args, err := shellwords.SplitPosix(e.Value)
			if err != nil {
				continue
			}
			shorthands[name] = args
			continue
		}

		if sub != "" {
			name = sub + "." + name
		}
		values[name] = e.Value
	}

	return &Config{values: values, shorthands: shorthands}, nil
}

// New builds a Config directly from a set of already-canonicalized
// "name" or "subsection.name" keys, bypassing git-config entirely. Used
// by tests and by callers constructing defaults in memory.
func New(values map[string]string) *Config {
	return &Config{values: values}
}

// ExpandShorthand returns the argument list a shorthand command name
// expands to, and whether name is defined as a shorthand at all.
func (c *Config) ExpandShorthand(name string) ([]string, bool) {
	args, ok := c.shorthands[name]
	return args, ok
}

// Shorthands returns the names of all defined shorthand commands, sorted.
func (c *Config) Shorthands() []string {
	names := make([]string, 0, len(c.shorthands))
	for name := range c.shorthands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExpandArgs expands args[0] against c's shorthands repeatedly until
// nothing further expands, so a shorthand may itself expand to another
// shorthand. A single name is only ever expanded once, guarding against
// "foo" defined as shorthand for "foo --flag".
func ExpandArgs(c *Config, args []string) []string {
	if len(args) == 0 {
		return args
	}

	seen := make(map[string]struct{})
	expanded, ok := c.ExpandShorthand(args[0])
	for ok {
		seen[args[0]] = struct{}{}
		args = append(append([]string{}, expanded...), args[1:]...)

		if len(args) == 0 {
			break
		}
		if _, done := seen[args[0]]; done {
			break
		}
		expanded, ok = c.ExpandShorthand(args[0])
	}
	return args
}

// Canonical lowercases a key's section and name, leaving the subsection
// (if any) case-sensitive.
func (k Key) Canonical() Key {
	section, subsection, name := k.Split()
	var buf strings.Builder
	if section != "" {
		buf.WriteString(strings.ToLower(section))
		buf.WriteByte('.')
	}
	if subsection != "" {
		buf.WriteString(subsection)
		buf.WriteByte('.')
	}
	buf.WriteString(strings.ToLower(name))
	return Key(buf.String())
}

func (c *Config) str(key, def string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

func (c *Config) boolean(key string, def bool) bool {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (c *Config) duration(key string, def time.Duration) time.Duration {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}

// BranchFormat is the template used to derive a new branch name,
// default "{date}-{name}". Placeholders: {prefix}, {date} (MM-DD in
// local time), {name}.
func (c *Config) BranchFormat() string { return c.str("branch.format", "{date}-{name}") }

// BranchPrefix is prepended to generated branch names, empty by default.
func (c *Config) BranchPrefix() string { return c.str("branch.prefix", "") }

// MergeCITimeout bounds how long Merge waits for CI before giving up,
// default 600 seconds.
func (c *Config) MergeCITimeout() time.Duration {
	return c.duration("merge.ci_timeout_secs", 600*time.Second)
}

// MergeProactiveRebase reports whether Merge rebases each branch onto
// remote trunk before merging it, default true (disabled by --fast).
func (c *Config) MergeProactiveRebase() bool { return c.boolean("merge.proactive_rebase", true) }

// MergeWaitForCI reports whether Merge blocks on CI completion before
// merging, default true.
func (c *Config) MergeWaitForCI() bool { return c.boolean("merge.wait_for_ci", true) }

// RepoRemote is the name of the remote treated as upstream, default "origin".
func (c *Config) RepoRemote() string { return c.str("repo.remote", "origin") }

// FormatBranchName expands BranchFormat's placeholders for name, using
// now to compute {date}.
func (c *Config) FormatBranchName(name string, now time.Time) string {
	r := strings.NewReplacer(
		"{prefix}", c.BranchPrefix(),
		"{date}", now.Format("01-02"),
		"{name}", name,
	)
	return r.Replace(c.BranchFormat())
}
