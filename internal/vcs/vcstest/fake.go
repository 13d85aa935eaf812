// Package vcstest implements an in-memory vcs.Gateway, so the engine and
// store packages can be exercised in tests without shelling out to a
// real git binary. Commits carry no real file content: "conflicts" are
// simulated by tagging a commit's message with the sentinel
// ConflictMarker, which Rebase treats as an unresolvable interruption.
package vcstest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.stacker.dev/stk/internal/vcs"
)

// ConflictMarker, present in a commit's message, makes any rebase that
// would replay that commit pause as a conflict instead of succeeding.
const ConflictMarker = "[CONFLICT]"

type commitNode struct {
	parents []vcs.Hash
	tree    vcs.Hash
	message string
}

// Repository is an in-memory vcs.Gateway.
type Repository struct {
	mu sync.Mutex

	seq int

	branches map[string]vcs.Hash
	current  string

	commits map[vcs.Hash]commitNode
	blobs   map[vcs.Hash][]byte
	trees   map[vcs.Hash][]vcs.TreeEntry

	refs map[string]vcs.Hash

	remotes        map[string]bool
	remoteBranches map[string]map[string]vcs.Hash

	rebaseState *vcs.RebaseState
	clean       bool
}

// New creates an empty repository with a single root commit on branch.
func New(initialBranch string) *Repository {
	r := &Repository{
		branches:       make(map[string]vcs.Hash),
		commits:        make(map[vcs.Hash]commitNode),
		blobs:          make(map[vcs.Hash][]byte),
		trees:          make(map[vcs.Hash][]vcs.TreeEntry),
		refs:           make(map[string]vcs.Hash),
		remotes:        make(map[string]bool),
		remoteBranches: make(map[string]map[string]vcs.Hash),
		current:        initialBranch,
		clean:          true,
	}
	root := r.newCommit(nil, "root", "")
	r.branches[initialBranch] = root
	return r
}

func (r *Repository) nextHash(kind string) vcs.Hash {
	r.seq++
	return vcs.Hash(fmt.Sprintf("%s-%d", kind, r.seq))
}

func (r *Repository) newCommit(parents []vcs.Hash, message, tree string) vcs.Hash {
	h := r.nextHash("commit")
	r.commits[h] = commitNode{parents: parents, tree: vcs.Hash(tree), message: message}
	return h
}

// AddCommit adds a synthetic commit on top of branch. Exposed for
// tests to build up branch history; message containing ConflictMarker
// later makes a rebase that would replay it pause instead of succeed.
func (r *Repository) AddCommit(ctx context.Context, branch, message string) vcs.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	parent := r.branches[branch]
	var parents []vcs.Hash
	if parent != "" {
		parents = []vcs.Hash{parent}
	}
	h := r.newCommit(parents, message, "")
	r.branches[branch] = h
	return h
}

// AddRemote registers name as a known remote with no branches yet.
func (r *Repository) AddRemote(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remotes[name] = true
	if r.remoteBranches[name] == nil {
		r.remoteBranches[name] = make(map[string]vcs.Hash)
	}
}

// SeedRemoteBranch sets remote's view of branch directly, without a push.
func (r *Repository) SeedRemoteBranch(remote, branch string, hash vcs.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.AddRemote(remote)
	r.remoteBranches[remote][branch] = hash
}

// --- Branches ---

func (r *Repository) BranchExists(ctx context.Context, branch string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.branches[branch]
	return ok, nil
}

func (r *Repository) CreateBranch(ctx context.Context, branch, at string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, err := r.resolve(at)
	if err != nil {
		return err
	}
	if _, exists := r.branches[branch]; exists {
		return fmt.Errorf("branch %s already exists", branch)
	}
	r.branches[branch] = hash
	return nil
}

func (r *Repository) Checkout(ctx context.Context, branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.branches[branch]; !ok {
		return fmt.Errorf("%w: branch %s", vcs.ErrNotExist, branch)
	}
	r.current = branch
	return nil
}

func (r *Repository) RenameBranch(ctx context.Context, oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.branches[oldName]
	if !ok {
		return fmt.Errorf("%w: branch %s", vcs.ErrNotExist, oldName)
	}
	if _, exists := r.branches[newName]; exists {
		return fmt.Errorf("branch %s already exists", newName)
	}
	delete(r.branches, oldName)
	r.branches[newName] = hash
	if r.current == oldName {
		r.current = newName
	}
	return nil
}

func (r *Repository) DeleteBranch(ctx context.Context, branch string, opts vcs.BranchDeleteOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.branches[branch]; !ok {
		return fmt.Errorf("%w: branch %s", vcs.ErrNotExist, branch)
	}
	delete(r.branches, branch)
	return nil
}

func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, nil
}

func (r *Repository) LocalBranches(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.branches))
	for name := range r.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// --- Commits and history ---

func (r *Repository) resolve(commitish string) (vcs.Hash, error) {
	if hash, ok := r.branches[commitish]; ok {
		return hash, nil
	}
	if _, ok := r.commits[vcs.Hash(commitish)]; ok {
		return vcs.Hash(commitish), nil
	}
	// "<remote>/<branch>" resolves against that remote's last-known tip,
	// mirroring git's remote-tracking ref syntax.
	if remote, branch, ok := strings.Cut(commitish, "/"); ok {
		if hash, ok := r.remoteBranches[remote][branch]; ok {
			return hash, nil
		}
	}
	return "", fmt.Errorf("%w: %s", vcs.ErrNotExist, commitish)
}

func (r *Repository) BranchHash(ctx context.Context, branch string) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.branches[branch]
	if !ok {
		return "", fmt.Errorf("%w: branch %s", vcs.ErrNotExist, branch)
	}
	return hash, nil
}

func (r *Repository) PeelToCommit(ctx context.Context, commitish string) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolve(commitish)
}

func (r *Repository) ancestorsOf(h vcs.Hash) map[vcs.Hash]bool {
	seen := map[vcs.Hash]bool{}
	var walk func(vcs.Hash)
	walk = func(h vcs.Hash) {
		if h == "" || seen[h] {
			return
		}
		seen[h] = true
		c, ok := r.commits[h]
		if !ok {
			return
		}
		for _, p := range c.parents {
			walk(p)
		}
	}
	walk(h)
	return seen
}

func (r *Repository) MergeBase(ctx context.Context, a, b string) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ah, err := r.resolve(a)
	if err != nil {
		return "", err
	}
	bh, err := r.resolve(b)
	if err != nil {
		return "", err
	}
	aAnc := r.ancestorsOf(ah)

	// Walk b's history breadth/depth order, the first hash also in
	// a's ancestor set is the (a, deterministic) merge base.
	var best vcs.Hash
	bestDepth := -1
	var walk func(h vcs.Hash, depth int)
	visited := map[vcs.Hash]bool{}
	walk = func(h vcs.Hash, depth int) {
		if h == "" || visited[h] {
			return
		}
		visited[h] = true
		if aAnc[h] && (bestDepth == -1 || depth < bestDepth) {
			best, bestDepth = h, depth
		}
		c, ok := r.commits[h]
		if !ok {
			return
		}
		for _, p := range c.parents {
			walk(p, depth+1)
		}
	}
	walk(bh, 0)
	if best == "" {
		return "", fmt.Errorf("no common ancestor between %s and %s", a, b)
	}
	return best, nil
}

func (r *Repository) IsAncestor(ctx context.Context, ancestor, descendant vcs.Hash) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ancestorsOf(descendant)[ancestor], nil
}

func (r *Repository) IsBranchBasedOn(ctx context.Context, child, parent string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, err := r.resolve(child)
	if err != nil {
		return false, err
	}
	ph, err := r.resolve(parent)
	if err != nil {
		return false, err
	}
	return r.ancestorsOf(ch)[ph], nil
}

func (r *Repository) ForkPoint(ctx context.Context, upstream, branch string) (vcs.Hash, error) {
	return r.MergeBase(ctx, upstream, branch)
}

func (r *Repository) commitsSince(ctx context.Context, base, ref string) ([]vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	baseHash, err := r.resolve(base)
	if err != nil {
		return nil, err
	}
	refHash, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	baseAnc := r.ancestorsOf(baseHash)

	var chain []vcs.Hash
	cur := refHash
	for cur != "" && !baseAnc[cur] {
		chain = append([]vcs.Hash{cur}, chain...)
		c, ok := r.commits[cur]
		if !ok || len(c.parents) == 0 {
			break
		}
		cur = c.parents[0]
	}
	return chain, nil
}

func (r *Repository) CommitCountSince(ctx context.Context, base, ref string) (int, error) {
	chain, err := r.commitsSince(ctx, base, ref)
	return len(chain), err
}

func (r *Repository) CommitMessagesSince(ctx context.Context, base, ref string) ([]string, error) {
	chain, err := r.commitsSince(ctx, base, ref)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]string, len(chain))
	for i, h := range chain {
		msgs[i] = r.commits[h].message
	}
	return msgs, nil
}

// --- Working copy ---

func (r *Repository) IsClean(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clean, nil
}

// SetClean lets tests simulate a dirty working copy.
func (r *Repository) SetClean(clean bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clean = clean
}

func (r *Repository) StageAll(ctx context.Context) error { return nil }

func (r *Repository) Commit(ctx context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	parent := r.branches[r.current]
	var parents []vcs.Hash
	if parent != "" {
		parents = []vcs.Hash{parent}
	}
	h := r.newCommit(parents, message, "")
	r.branches[r.current] = h
	return nil
}

func (r *Repository) SoftResetTo(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, err := r.resolve(ref)
	if err != nil {
		return err
	}
	r.branches[r.current] = hash
	return nil
}

func (r *Repository) HardResetTo(ctx context.Context, ref string) error {
	return r.SoftResetTo(ctx, ref)
}

// --- Rebase ---

func (r *Repository) Rebase(ctx context.Context, req vcs.RebaseRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	onto := req.Onto
	if onto == "" {
		onto = req.Upstream
	}
	ontoHash, err := r.resolve(onto)
	if err != nil {
		return err
	}
	upstreamHash, err := r.resolve(req.Upstream)
	if err != nil {
		return err
	}
	branchHash, err := r.resolve(req.Branch)
	if err != nil {
		return err
	}

	upstreamAnc := r.ancestorsOf(upstreamHash)
	var chain []vcs.Hash
	cur := branchHash
	for cur != "" && !upstreamAnc[cur] {
		chain = append([]vcs.Hash{cur}, chain...)
		c, ok := r.commits[cur]
		if !ok || len(c.parents) == 0 {
			break
		}
		cur = c.parents[0]
	}

	tip := ontoHash
	for _, h := range chain {
		c := r.commits[h]
		if strings.Contains(c.message, ConflictMarker) {
			r.rebaseState = &vcs.RebaseState{Branch: req.Branch}
			return &vcs.RebaseInterruptError{
				Kind:  vcs.RebaseInterruptConflict,
				State: *r.rebaseState,
				Err:   fmt.Errorf("conflict replaying %q", c.message),
			}
		}
		tip = r.newCommit([]vcs.Hash{tip}, c.message, string(c.tree))
	}

	r.branches[req.Branch] = tip
	return nil
}

func (r *Repository) RebaseContinue(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rebaseState == nil {
		return fmt.Errorf("no rebase in progress")
	}
	r.rebaseState = nil
	return nil
}

func (r *Repository) RebaseAbort(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebaseState = nil
	return nil
}

func (r *Repository) RebaseInProgress(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebaseState != nil, nil
}

// --- Remote ---

func (r *Repository) Fetch(ctx context.Context, remote string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.remoteBranches[remote]; !ok {
		return fmt.Errorf("%w: remote %s", vcs.ErrNotExist, remote)
	}
	return nil
}

func (r *Repository) PushBranch(ctx context.Context, remote, branch string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.branches[branch]
	if !ok {
		return fmt.Errorf("%w: branch %s", vcs.ErrNotExist, branch)
	}
	if r.remoteBranches[remote] == nil {
		r.remoteBranches[remote] = make(map[string]vcs.Hash)
	}
	r.remoteBranches[remote][branch] = hash
	return nil
}

func (r *Repository) DeleteRemoteBranch(ctx context.Context, remote, branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remoteBranches[remote], branch)
	return nil
}

func (r *Repository) ListRemotes(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.remotes))
	for name := range r.remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Repository) RemoteDefaultBranch(ctx context.Context, remote string) (string, error) {
	return "main", nil
}

func (r *Repository) RemoteBranchHash(ctx context.Context, remote, branch string) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.remoteBranches[remote][branch]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", vcs.ErrNotExist, remote, branch)
	}
	return hash, nil
}

func (r *Repository) RemoteBranchState(ctx context.Context, remote, branch string) (vcs.RemoteBranchState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remoteHash, ok := r.remoteBranches[remote][branch]
	if !ok {
		return vcs.RemoteNotPresent, nil
	}
	localHash, ok := r.branches[branch]
	if !ok {
		return vcs.RemoteNotPresent, nil
	}
	if localHash == remoteHash {
		return vcs.RemoteInSync, nil
	}
	localAnc := r.ancestorsOf(localHash)
	remoteAnc := r.ancestorsOf(remoteHash)
	if localAnc[remoteHash] {
		return vcs.RemoteAhead, nil
	}
	if remoteAnc[localHash] {
		return vcs.RemoteBehind, nil
	}
	return vcs.RemoteDiverged, nil
}

// --- Low-level object and ref access ---

func (r *Repository) CreateBlob(ctx context.Context, data []byte) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.nextHash("blob")
	r.blobs[h] = append([]byte(nil), data...)
	return h, nil
}

func (r *Repository) ReadObject(ctx context.Context, typ vcs.ObjectType, hash vcs.Hash, dst io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch typ {
	case vcs.BlobType:
		data, ok := r.blobs[hash]
		if !ok {
			return fmt.Errorf("%w: blob %s", vcs.ErrNotExist, hash)
		}
		_, err := dst.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported object type for ReadObject in fake")
	}
}

func (r *Repository) WriteObject(ctx context.Context, typ vcs.ObjectType, src io.Reader) (vcs.Hash, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.nextHash("blob")
	r.blobs[h] = data
	return h, nil
}

func (r *Repository) ReadTreeEntry(ctx context.Context, commitish, path string) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, err := r.resolve(commitish)
	if err != nil {
		return "", err
	}
	tree := r.commits[hash].tree
	return r.lookupPath(tree, path)
}

func (r *Repository) lookupPath(tree vcs.Hash, path string) (vcs.Hash, error) {
	parts := strings.Split(path, "/")
	cur := tree
	for i, part := range parts {
		entries := r.trees[cur]
		var next *vcs.TreeEntry
		for idx := range entries {
			if entries[idx].Name == part {
				next = &entries[idx]
				break
			}
		}
		if next == nil {
			return "", fmt.Errorf("%w: path %s", vcs.ErrNotExist, path)
		}
		if i == len(parts)-1 {
			return next.Hash, nil
		}
		cur = next.Hash
	}
	return "", fmt.Errorf("%w: path %s", vcs.ErrNotExist, path)
}

func (r *Repository) ListTree(ctx context.Context, tree vcs.Hash, recurse bool) ([]vcs.TreeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !recurse {
		return append([]vcs.TreeEntry(nil), r.trees[tree]...), nil
	}

	var out []vcs.TreeEntry
	var walk func(vcs.Hash, string)
	walk = func(t vcs.Hash, prefix string) {
		for _, e := range r.trees[t] {
			name := e.Name
			if prefix != "" {
				name = prefix + "/" + name
			}
			if e.Type == vcs.TreeType {
				walk(e.Hash, name)
			} else {
				out = append(out, vcs.TreeEntry{Name: name, Type: e.Type, Hash: e.Hash})
			}
		}
	}
	walk(tree, "")
	return out, nil
}

func (r *Repository) MakeTree(ctx context.Context, entries []vcs.TreeEntry) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.nextHash("tree")
	r.trees[h] = append([]vcs.TreeEntry(nil), entries...)
	return h, nil
}

func (r *Repository) CommitTree(ctx context.Context, tree vcs.Hash, parents []vcs.Hash, message string, sig vcs.Signature) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.nextHash("commit")
	r.commits[h] = commitNode{parents: parents, tree: tree, message: message}
	return h, nil
}

func (r *Repository) PeelToTree(ctx context.Context, commitish string) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, err := r.resolve(commitish)
	if err != nil {
		return "", err
	}
	return r.commits[hash].tree, nil
}

func (r *Repository) SetRef(ctx context.Context, req vcs.SetRefRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.refs[req.Ref]
	if req.OldHash == vcs.ZeroHash {
		if exists {
			return fmt.Errorf("ref %s already exists", req.Ref)
		}
	} else if current != req.OldHash {
		return fmt.Errorf("compare-and-swap failed for %s: expected %s, got %s", req.Ref, req.OldHash, current)
	}
	r.refs[req.Ref] = req.Hash
	return nil
}

func (r *Repository) ReadRef(ctx context.Context, ref string) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.refs[ref]
	if !ok {
		return "", fmt.Errorf("%w: ref %s", vcs.ErrNotExist, ref)
	}
	return hash, nil
}

func (r *Repository) DeleteRef(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.refs[ref]; !ok {
		return fmt.Errorf("%w: ref %s", vcs.ErrNotExist, ref)
	}
	delete(r.refs, ref)
	return nil
}

func (r *Repository) ListRefs(ctx context.Context, prefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for ref := range r.refs {
		if strings.HasPrefix(ref, prefix) {
			out = append(out, ref)
		}
	}
	sort.Strings(out)
	return out, nil
}

var _ vcs.Gateway = (*Repository)(nil)

// DumpRefs is a debugging helper for test failures.
func (r *Repository) DumpRefs() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b bytes.Buffer
	names := make([]string, 0, len(r.refs))
	for name := range r.refs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(" = ")
		b.WriteString(string(r.refs[name]))
		b.WriteString("\n")
	}
	return b.String()
}
