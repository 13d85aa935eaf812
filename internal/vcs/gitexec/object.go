package gitexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"go.stacker.dev/stk/internal/vcs"
)

func typeName(t vcs.ObjectType) string {
	switch t {
	case vcs.BlobType:
		return "blob"
	case vcs.TreeType:
		return "tree"
	case vcs.CommitType:
		return "commit"
	default:
		return "blob"
	}
}

// CreateBlob writes data as a blob object and returns its hash.
func (r *Repository) CreateBlob(ctx context.Context, data []byte) (vcs.Hash, error) {
	return r.WriteObject(ctx, vcs.BlobType, bytes.NewReader(data))
}

// WriteObject hashes and stores src as a loose object of the given type.
func (r *Repository) WriteObject(ctx context.Context, typ vcs.ObjectType, src io.Reader) (vcs.Hash, error) {
	cmd := r.gitCmd(ctx, "hash-object", "-w", "--stdin", "-t", typeName(typ))
	cmd.Stdin = src

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", wrapErr([]string{"hash-object"}, stderr.String(), err)
	}
	return vcs.Hash(strings.TrimSpace(stdout.String())), nil
}

// ReadObject writes the contents of the object at hash to dst.
func (r *Repository) ReadObject(ctx context.Context, typ vcs.ObjectType, hash vcs.Hash, dst io.Writer) error {
	cmd := r.gitCmd(ctx, "cat-file", typeName(typ), hash.String())

	var stderr bytes.Buffer
	cmd.Stdout = dst
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return wrapErr([]string{"cat-file"}, stderr.String(), err)
	}
	return nil
}

// ReadTreeEntry resolves a path inside a commit-ish to the hash of the
// blob or tree at that path.
func (r *Repository) ReadTreeEntry(ctx context.Context, commitish, path string) (vcs.Hash, error) {
	out, err := r.output(ctx, "rev-parse", "--verify", "--quiet", commitish+":"+path)
	if err != nil {
		return "", vcs.ErrNotExist
	}
	return vcs.Hash(out), nil
}

// PeelToTree resolves a commit-ish to the hash of its root tree.
func (r *Repository) PeelToTree(ctx context.Context, commitish string) (vcs.Hash, error) {
	out, err := r.output(ctx, "rev-parse", "--verify", "--quiet", commitish+"^{tree}")
	if err != nil {
		return "", vcs.ErrNotExist
	}
	return vcs.Hash(out), nil
}

// ListTree lists the entries of a tree object.
func (r *Repository) ListTree(ctx context.Context, tree vcs.Hash, recurse bool) ([]vcs.TreeEntry, error) {
	args := []string{"ls-tree"}
	if recurse {
		args = append(args, "-r")
	}
	args = append(args, tree.String())

	out, err := r.output(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("ls-tree %s: %w", tree, err)
	}
	if out == "" {
		return nil, nil
	}

	var entries []vcs.TreeEntry
	for _, line := range strings.Split(out, "\n") {
		// <mode> SP <type> SP <hash> TAB <path>
		meta, name, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 {
			continue
		}
		var typ vcs.ObjectType
		switch fields[1] {
		case "blob":
			typ = vcs.BlobType
		case "tree":
			typ = vcs.TreeType
		case "commit":
			typ = vcs.CommitType
		}
		entries = append(entries, vcs.TreeEntry{Name: name, Type: typ, Hash: vcs.Hash(fields[2])})
	}
	return entries, nil
}

// MakeTree builds a new tree object from the given entries.
func (r *Repository) MakeTree(ctx context.Context, entries []vcs.TreeEntry) (vcs.Hash, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		mode := "100644"
		if e.Type == vcs.TreeType {
			mode = "040000"
		}
		fmt.Fprintf(&buf, "%s %s %s\t%s\n", mode, typeName(e.Type), e.Hash, e.Name)
	}

	cmd := r.gitCmd(ctx, "mktree")
	cmd.Stdin = &buf

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", wrapErr([]string{"mktree"}, stderr.String(), err)
	}
	return vcs.Hash(strings.TrimSpace(stdout.String())), nil
}

// CommitTree creates a commit object pointing at tree.
func (r *Repository) CommitTree(ctx context.Context, tree vcs.Hash, parents []vcs.Hash, message string, sig vcs.Signature) (vcs.Hash, error) {
	args := []string{"commit-tree", tree.String(), "-m", message}
	for _, p := range parents {
		args = append(args, "-p", p.String())
	}

	cmd := r.gitCmd(ctx, args...)
	cmd.Env = append(cmd.Environ(),
		"GIT_AUTHOR_NAME="+sig.Name, "GIT_AUTHOR_EMAIL="+sig.Email,
		"GIT_COMMITTER_NAME="+sig.Name, "GIT_COMMITTER_EMAIL="+sig.Email,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", wrapErr([]string{"commit-tree"}, stderr.String(), err)
	}
	return vcs.Hash(strings.TrimSpace(stdout.String())), nil
}
