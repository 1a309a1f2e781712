// Package layerstore reads and writes layer trees. Each layer is a commit in
// a bare git repository, referenced by refs/jin/layers/<layer path>; the
// commit's tree is the layer's file tree.
package layerstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/arthur-debert/jin/pkg/logging"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	lru "github.com/hashicorp/golang-lru/v2"
)

// File is one file of a layer tree
type File struct {
	Content []byte
	Mode    os.FileMode
}

// Tree maps slash separated relative paths to files
type Tree map[string]File

// Paths returns the tree's paths in sorted order
func (t Tree) Paths() []string {
	out := make([]string, 0, len(t))
	for p := range t {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reader is the read side the merge engine depends on
type Reader interface {
	// ReadTree returns the layer's files. A layer that was never committed
	// reads as an empty tree.
	ReadTree(ctx context.Context, ref layers.Ref) (Tree, error)
	// Exists reports whether the layer has been committed
	Exists(ctx context.Context, ref layers.Ref) (bool, error)
}

// DefaultCacheSize is the number of decoded commit trees GitStore keeps
const DefaultCacheSize = 128

// GitStore is a Reader backed by a go-git repository
type GitStore struct {
	repo  *git.Repository
	cache *lru.Cache[plumbing.Hash, Tree]
	now   func() time.Time
}

var _ Reader = (*GitStore)(nil)

// Open opens the bare layer repository at dir, initializing it when absent
func Open(dir string) (*GitStore, error) {
	logger := logging.GetLogger("layerstore")

	repo, err := git.PlainOpen(dir)
	if err == git.ErrRepositoryNotExists {
		logger.Debug().Str("path", dir).Msg("Initializing layer repository")
		repo, err = git.PlainInit(dir, true)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrLayerRead, "failed to open layer repository at %s", dir).
			WithDetail("path", dir)
	}
	return newStore(repo)
}

// NewInMemory returns a store backed by an in-memory repository
func NewInMemory() (*GitStore, error) {
	repo, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to initialize in-memory layer repository")
	}
	return newStore(repo)
}

func newStore(repo *git.Repository) (*GitStore, error) {
	cache, err := lru.New[plumbing.Hash, Tree](DefaultCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to create tree cache")
	}
	return &GitStore{repo: repo, cache: cache, now: time.Now}, nil
}

func (s *GitStore) head(ref layers.Ref) (plumbing.Hash, bool, error) {
	r, err := s.repo.Reference(plumbing.ReferenceName(ref.RefName()), true)
	if err == plumbing.ErrReferenceNotFound {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, errors.Wrapf(err, errors.ErrLayerRead, "failed to resolve layer %s", ref.Path()).
			WithDetail("layer", ref.Path())
	}
	return r.Hash(), true, nil
}

// Exists implements Reader
func (s *GitStore) Exists(ctx context.Context, ref layers.Ref) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok, err := s.head(ref)
	return ok, err
}

// ReadTree implements Reader
func (s *GitStore) ReadTree(ctx context.Context, ref layers.Ref) (Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := logging.GetLogger("layerstore")

	hash, ok, err := s.head(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Trace().Str("layer", ref.Path()).Msg("Layer not committed, reading as empty")
		return Tree{}, nil
	}

	if cached, hit := s.cache.Get(hash); hit {
		return cached.clone(), nil
	}

	tree, err := s.decodeCommit(hash)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrLayerRead, "failed to read layer %s", ref.Path()).
			WithDetail("layer", ref.Path()).
			WithDetail("commit", hash.String())
	}
	s.cache.Add(hash, tree)
	logger.Debug().
		Str("layer", ref.Path()).
		Str("commit", hash.String()).
		Int("files", len(tree)).
		Msg("Read layer tree")
	return tree.clone(), nil
}

func (s *GitStore) decodeCommit(hash plumbing.Hash) (Tree, error) {
	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, err
	}
	gitTree, err := commit.Tree()
	if err != nil {
		return nil, err
	}

	tree := Tree{}
	err = gitTree.Files().ForEach(func(f *object.File) error {
		mode, err := f.Mode.ToOSFileMode()
		if err != nil {
			return err
		}
		r, err := f.Reader()
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()
		content, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		tree[f.Name] = File{Content: content, Mode: mode.Perm()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

func (t Tree) clone() Tree {
	out := make(Tree, len(t))
	for p, f := range t {
		out[p] = f
	}
	return out
}

// StoredLayers returns the paths of every committed layer, sorted
func (s *GitStore) StoredLayers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter, err := s.repo.References()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrLayerRead, "failed to list layer references")
	}
	var out []string
	_ = iter.ForEach(func(r *plumbing.Reference) error {
		name := r.Name().String()
		if strings.HasPrefix(name, layers.RefPrefix) {
			out = append(out, strings.ReplaceAll(strings.TrimPrefix(name, layers.RefPrefix), "%3A", ":"))
		}
		return nil
	})
	sort.Strings(out)
	return out, nil
}

// CommitLayer records files as the new content of the layer and moves the
// layer's reference to the resulting commit. The previous commit, if any,
// becomes the parent.
func (s *GitStore) CommitLayer(ctx context.Context, ref layers.Ref, files Tree, message string) (plumbing.Hash, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	if !ref.Layer.Versioned() {
		return plumbing.ZeroHash, errors.Newf(errors.ErrLayerInvalid, "layer %s cannot be committed", ref.Path()).
			WithDetail("layer", ref.Path())
	}

	root := newDirNode()
	for name, f := range files {
		clean := path.Clean(name)
		if !isLocalPath(clean) {
			return plumbing.ZeroHash, errors.Newf(errors.ErrInvalidInput, "path %q escapes the layer root", name).
				WithDetail("path", name)
		}
		root.insert(strings.Split(clean, "/"), f)
	}

	treeHash, err := s.writeTree(root)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, errors.ErrLayerWrite, "failed to write tree for layer %s", ref.Path())
	}

	parent, hasParent, err := s.head(ref)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	sig := object.Signature{Name: "jin", Email: "jin@localhost", When: s.now()}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   message,
		TreeHash:  treeHash,
	}
	if hasParent {
		commit.ParentHashes = []plumbing.Hash{parent}
	}

	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, errors.ErrLayerWrite, "failed to encode commit")
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, errors.ErrLayerWrite, "failed to store commit")
	}

	newRef := plumbing.NewHashReference(plumbing.ReferenceName(ref.RefName()), hash)
	if err := s.repo.Storer.SetReference(newRef); err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, errors.ErrLayerWrite, "failed to update reference for layer %s", ref.Path())
	}

	logger := logging.GetLogger("layerstore")
	logger.Info().
		Str("layer", ref.Path()).
		Str("commit", hash.String()).
		Int("files", len(files)).
		Msg("Committed layer")
	return hash, nil
}

func isLocalPath(p string) bool {
	return p != "." && p != "" && !path.IsAbs(p) && p != ".." && !strings.HasPrefix(p, "../")
}

type dirNode struct {
	files map[string]File
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: map[string]File{}, dirs: map[string]*dirNode{}}
}

func (d *dirNode) insert(parts []string, f File) {
	if len(parts) == 1 {
		d.files[parts[0]] = f
		return
	}
	sub, ok := d.dirs[parts[0]]
	if !ok {
		sub = newDirNode()
		d.dirs[parts[0]] = sub
	}
	sub.insert(parts[1:], f)
}

func (s *GitStore) writeTree(d *dirNode) (plumbing.Hash, error) {
	var entries []object.TreeEntry

	for name, f := range d.files {
		blobHash, err := s.writeBlob(f.Content)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		mode := filemode.Regular
		if f.Mode&0o111 != 0 {
			mode = filemode.Executable
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: mode, Hash: blobHash})
	}
	for name, sub := range d.dirs {
		subHash, err := s.writeTree(sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: subHash})
	}

	// git orders entries as if directory names had a trailing slash
	sort.Slice(entries, func(i, j int) bool {
		return entrySortKey(entries[i]) < entrySortKey(entries[j])
	})

	tree := &object.Tree{Entries: entries}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

func entrySortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

func (s *GitStore) writeBlob(content []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}
