package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"go.stacker.dev/stk/internal/must"
	"go.stacker.dev/stk/internal/vcs"
)

// GitBackend implements Backend by storing JSON blobs in a tree
// committed to a single ref inside the repository. Every write is a new
// commit on that ref, guarded by a compare-and-swap ref update so
// concurrent writers retry instead of clobbering each other.
type GitBackend struct {
	repo vcs.Gateway
	ref  string
	sig  vcs.Signature
	log  *log.Logger
	mu   sync.RWMutex
}

var _ Backend = (*GitBackend)(nil)

// GitConfig configures a GitBackend.
type GitConfig struct {
	Repo                    vcs.Gateway // required
	Ref                     string      // required
	AuthorName, AuthorEmail string      // required

	Log *log.Logger
}

// NewGitBackend creates a backend that stores data on the given ref.
func NewGitBackend(cfg GitConfig) *GitBackend {
	if cfg.Log == nil {
		cfg.Log = log.New(io.Discard)
	}

	return &GitBackend{
		repo: cfg.Repo,
		ref:  cfg.Ref,
		sig:  vcs.Signature{Name: cfg.AuthorName, Email: cfg.AuthorEmail},
		log:  cfg.Log,
	}
}

// Keys lists the keys under dir.
func (g *GitBackend) Keys(ctx context.Context, dir string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tree, err := g.repo.PeelToTree(ctx, g.ref)
	if err != nil {
		if errors.Is(err, vcs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tree: %w", err)
	}

	entries, err := g.repo.ListTree(ctx, tree, true)
	if err != nil {
		return nil, fmt.Errorf("list tree: %w", err)
	}

	prefix := dir
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var keys []string
	for _, ent := range entries {
		if ent.Type != vcs.BlobType {
			continue
		}
		if rest, ok := strings.CutPrefix(ent.Name, prefix); ok {
			keys = append(keys, rest)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get retrieves a value and decodes it into v.
func (g *GitBackend) Get(ctx context.Context, key string, v any) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	blobHash, err := g.repo.ReadTreeEntry(ctx, g.ref, key)
	if err != nil {
		return ErrNotExist
	}

	var buf bytes.Buffer
	if err := g.repo.ReadObject(ctx, vcs.BlobType, blobHash, &buf); err != nil {
		return fmt.Errorf("read object: %w", err)
	}

	if err := json.NewDecoder(&buf).Decode(v); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	return nil
}

// Clear removes every key from the store.
func (g *GitBackend) Clear(ctx context.Context, msg string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	prevCommit, err := g.repo.PeelToCommit(ctx, g.ref)
	if err != nil {
		prevCommit = ""
	}

	tree, err := g.repo.MakeTree(ctx, nil)
	if err != nil {
		return fmt.Errorf("make empty tree: %w", err)
	}

	return g.commitTree(ctx, prevCommit, tree, msg)
}

// Update applies a batch of sets and deletes in one commit, retrying the
// compare-and-swap ref update if a concurrent writer races it.
func (g *GitBackend) Update(ctx context.Context, req UpdateRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	setBlobs := make([]vcs.Hash, len(req.Sets))
	for i, set := range req.Sets {
		must.NotBeBlankf(set.Key, "key must not be blank")

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(set.Value); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}

		blobHash, err := g.repo.WriteObject(ctx, vcs.BlobType, &buf)
		if err != nil {
			return fmt.Errorf("write object: %w", err)
		}
		setBlobs[i] = blobHash
	}

	var updateErr error
	for range 5 {
		prevCommit, err := g.repo.PeelToCommit(ctx, g.ref)
		if err != nil {
			prevCommit = ""
		}

		paths, err := g.flatPaths(ctx, prevCommit)
		if err != nil {
			return fmt.Errorf("read tree: %w", err)
		}

		for i, set := range req.Sets {
			paths[set.Key] = setBlobs[i]
		}
		for _, key := range req.Deletes {
			delete(paths, key)
		}

		newTree, err := g.buildTree(ctx, paths)
		if err != nil {
			return fmt.Errorf("build tree: %w", err)
		}

		if err := g.commitTree(ctx, prevCommit, newTree, req.Message); err != nil {
			updateErr = err
			g.log.Warn("could not update ref, retrying", "error", err)
			continue
		}
		return nil
	}

	return fmt.Errorf("set ref: %w", updateErr)
}

// flatPaths reads every blob in the store's tree into a flat path -> hash
// map, so Update can overlay sets and deletes before rebuilding the tree.
func (g *GitBackend) flatPaths(ctx context.Context, commit vcs.Hash) (map[string]vcs.Hash, error) {
	paths := make(map[string]vcs.Hash)
	if commit == "" {
		return paths, nil
	}

	tree, err := g.repo.PeelToTree(ctx, commit.String())
	if err != nil {
		if errors.Is(err, vcs.ErrNotExist) {
			return paths, nil
		}
		return nil, err
	}

	entries, err := g.repo.ListTree(ctx, tree, true)
	if err != nil {
		return nil, err
	}
	for _, ent := range entries {
		if ent.Type == vcs.BlobType {
			paths[ent.Name] = ent.Hash
		}
	}
	return paths, nil
}

// buildTree turns a flat path -> blob hash map back into a nested tree,
// creating one tree object per directory level.
func (g *GitBackend) buildTree(ctx context.Context, paths map[string]vcs.Hash) (vcs.Hash, error) {
	type node struct {
		blob     vcs.Hash
		isBlob   bool
		children map[string]*node
	}
	root := &node{children: make(map[string]*node)}

	for path, hash := range paths {
		parts := strings.Split(path, "/")
		cur := root
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur.children[part]
			if !ok {
				next = &node{children: make(map[string]*node)}
				cur.children[part] = next
			}
			cur = next
		}
		leaf := parts[len(parts)-1]
		cur.children[leaf] = &node{blob: hash, isBlob: true}
	}

	var build func(*node) (vcs.Hash, error)
	build = func(n *node) (vcs.Hash, error) {
		if n.isBlob {
			return n.blob, nil
		}

		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Strings(names)

		entries := make([]vcs.TreeEntry, 0, len(names))
		for _, name := range names {
			child := n.children[name]
			hash, err := build(child)
			if err != nil {
				return "", err
			}
			typ := vcs.TreeType
			if child.isBlob {
				typ = vcs.BlobType
			}
			entries = append(entries, vcs.TreeEntry{Name: name, Type: typ, Hash: hash})
		}
		return g.repo.MakeTree(ctx, entries)
	}

	return build(root)
}

func (g *GitBackend) commitTree(ctx context.Context, prevCommit, tree vcs.Hash, msg string) error {
	var parents []vcs.Hash
	if prevCommit != "" {
		parents = []vcs.Hash{prevCommit}
	}

	newCommit, err := g.repo.CommitTree(ctx, tree, parents, msg, g.sig)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return g.repo.SetRef(ctx, vcs.SetRefRequest{
		Ref:     g.ref,
		Hash:    newCommit,
		OldHash: prevCommit,
	})
}
