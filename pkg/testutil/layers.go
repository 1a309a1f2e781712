package testutil

import (
	"context"
	"testing"

	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/arthur-debert/jin/pkg/layerstore"
	"github.com/stretchr/testify/require"
)

// Tree builds a layer tree of 0644 files from path to content pairs
func Tree(files map[string]string) layerstore.Tree {
	tree := layerstore.Tree{}
	for p, c := range files {
		tree[p] = layerstore.File{Content: []byte(c), Mode: 0o644}
	}
	return tree
}

// CommitLayer replaces the content of ref in store with files
func CommitLayer(t *testing.T, store *layerstore.GitStore, ref layers.Ref, files map[string]string) {
	t.Helper()
	_, err := store.CommitLayer(context.Background(), ref, Tree(files), "test: "+ref.Path())
	require.NoError(t, err)
}

// MemoryStore returns an empty in-memory layer store
func MemoryStore(t *testing.T) *layerstore.GitStore {
	t.Helper()
	store, err := layerstore.NewInMemory()
	require.NoError(t, err)
	return store
}
