package merger_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/arthur-debert/jin/pkg/conflict"
	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/formats"
	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/arthur-debert/jin/pkg/layerstore"
	"github.com/arthur-debert/jin/pkg/merger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves layer trees keyed by layer path
type fakeReader struct {
	trees map[string]layerstore.Tree
	fail  string
}

func (f *fakeReader) ReadTree(_ context.Context, ref layers.Ref) (layerstore.Tree, error) {
	if ref.Path() == f.fail {
		return nil, fmt.Errorf("disk on fire")
	}
	return f.trees[ref.Path()], nil
}

func (f *fakeReader) Exists(_ context.Context, ref layers.Ref) (bool, error) {
	_, ok := f.trees[ref.Path()]
	return ok, nil
}

func file(content string) layerstore.File {
	return layerstore.File{Content: []byte(content), Mode: 0o644}
}

var fullSet = layers.Set{
	{Layer: layers.GlobalBase},
	{Layer: layers.ModeBase, Mode: "m"},
	{Layer: layers.ProjectBase, Project: "p"},
	{Layer: layers.UserLocal},
}

func run(t *testing.T, trees map[string]layerstore.Tree) *merger.Result {
	t.Helper()
	res, err := merger.New(&fakeReader{trees: trees}).Merge(context.Background(), fullSet)
	require.NoError(t, err)
	return res
}

func TestStructuredMergeAcrossLayers(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"mode/m":    {"settings.json": file(`{"common":{"a":1},"mode":true}`)},
		"project/p": {"settings.json": file(`{"common":{"a":1,"b":2},"project":false}`)},
	})

	require.False(t, res.HasConflicts())
	require.Contains(t, res.Tree, "settings.json")

	got, err := formats.ParseJSON(res.Tree["settings.json"].Content)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"common":  map[string]interface{}{"a": int64(1), "b": int64(2)},
		"mode":    true,
		"project": false,
	}, got.Interface())

	obj, _ := got.AsObject()
	assert.Equal(t, []string{"common", "mode", "project"}, obj.Keys())
}

func TestStructuredMergeEachFormat(t *testing.T) {
	tests := []struct {
		path  string
		lower string
		upper string
		want  map[string]interface{}
	}{
		{
			path:  "config.yaml",
			lower: "a: 1\nlist: [1, 2]\n",
			upper: "b: 2\nlist: [3]\n",
			want:  map[string]interface{}{"a": int64(1), "list": []interface{}{int64(3)}, "b": int64(2)},
		},
		{
			path:  "pyproject.toml",
			lower: "[tool]\nx = 1\n",
			upper: "[tool]\ny = \"z\"\n",
			want:  map[string]interface{}{"tool": map[string]interface{}{"x": int64(1), "y": "z"}},
		},
		{
			path:  "setup.ini",
			lower: "[core]\na = 1\n",
			upper: "[core]\nb = 2\n",
			want:  map[string]interface{}{"core": map[string]interface{}{"a": "1", "b": "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := run(t, map[string]layerstore.Tree{
				"global": {tt.path: file(tt.lower)},
				"local":  {tt.path: file(tt.upper)},
			})
			require.Empty(t, res.Conflicts)

			format := formats.Detect(tt.path, nil)
			got, err := formats.Parse(format, res.Tree[tt.path].Content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Interface())
		})
	}
}

func TestStructuredNullDropsFile(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"global":    {"a.json": file(`{"x": 1}`), "keep.json": file(`{"y": 2}`)},
		"project/p": {"a.json": file(`null`)},
	})

	assert.NotContains(t, res.Tree, "a.json")
	assert.Contains(t, res.Tree, "keep.json")
	assert.Equal(t, []string{"a.json"}, res.Dropped)
}

func TestUnparseableStructuredFileIsDowngraded(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"global": {"broken.json": file("{\n")},
		"mode/m": {"broken.json": file("{\n")},
	})

	require.Len(t, res.Downgraded, 1)
	assert.Equal(t, "broken.json", res.Downgraded[0].Path)
	assert.Equal(t, "global", res.Downgraded[0].Layer)
	assert.True(t, errors.IsErrorCode(res.Downgraded[0].Err, errors.ErrParse))
	assert.Equal(t, "{\n", string(res.Tree["broken.json"].Content))
}

func TestTextSingleLayerIsVerbatim(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"mode/m": {"CLAUDE.md": file("# Notes\n\nno trailing newline")},
	})
	assert.Equal(t, "# Notes\n\nno trailing newline", string(res.Tree["CLAUDE.md"].Content))
}

func TestTextAdditiveMerge(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"global":    {".gitignore": file("node_modules\n")},
		"project/p": {".gitignore": file("node_modules\ndist\n")},
	})
	require.Empty(t, res.Conflicts)
	assert.Equal(t, "node_modules\ndist\n", string(res.Tree[".gitignore"].Content))
}

func TestTextConflict(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"mode/m":    {"notes.txt": file("A")},
		"project/p": {"notes.txt": file("B")},
	})

	require.True(t, res.HasConflicts())
	assert.NotContains(t, res.Tree, "notes.txt")
	assert.Equal(t, []string{"notes.txt"}, res.ConflictPaths())

	rec := res.Conflicts[0]
	require.Len(t, rec.Pairs, 1)
	assert.Equal(t, conflict.Side{Label: "mode/m", Content: []byte("A")}, rec.Pairs[0].Lower)
	assert.Equal(t, conflict.Side{Label: "project/p", Content: []byte("B")}, rec.Pairs[0].Higher)
}

func TestTextConflictAccumulatesRegions(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"global":    {"notes.txt": file("A")},
		"mode/m":    {"notes.txt": file("B")},
		"project/p": {"notes.txt": file("B")},
		"local":     {"notes.txt": file("C")},
	})

	require.Len(t, res.Conflicts, 1)
	rec := res.Conflicts[0]
	require.Len(t, rec.Pairs, 2)
	assert.Equal(t, "global", rec.Pairs[0].Lower.Label)
	assert.Equal(t, "mode/m", rec.Pairs[0].Higher.Label)
	assert.Equal(t, "project/p", rec.Pairs[1].Lower.Label)
	assert.Equal(t, "local", rec.Pairs[1].Higher.Label)
	assert.Equal(t, []string{"global", "mode/m", "project/p", "local"}, rec.Labels())
}

func TestModeComesFromHighestLayer(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"global": {"run.sh": {Content: []byte("echo\n"), Mode: 0o644}},
		"mode/m": {"run.sh": {Content: []byte("echo\n"), Mode: 0o755}},
	})
	assert.Equal(t, 0o755, int(res.Tree["run.sh"].Mode))
}

func TestNonLocalPathsAreRejected(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"global": {"../outside": file("x"), "/etc/passwd": file("x"), "ok.txt": file("x")},
	})

	assert.Equal(t, []string{"ok.txt"}, res.Tree.Paths())
	require.Len(t, res.Errors, 2)
	for _, fe := range res.Errors {
		assert.True(t, errors.IsErrorCode(fe, errors.ErrInvalidInput), fe.Path)
	}
}

func TestReservedPathsAreRejected(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"global": {
			".jin/paused-apply.yaml": file("id: x\n"),
			"app.txt.jinmerge":       file("x"),
			".jinrc":                 file("x"),
			"docs/.jin/notes.txt":    file("x"),
		},
	})

	assert.Equal(t, []string{".jinrc", "docs/.jin/notes.txt"}, res.Tree.Paths())
	require.Len(t, res.Errors, 2)
	assert.Equal(t, ".jin/paused-apply.yaml", res.Errors[0].Path)
	assert.Equal(t, "app.txt.jinmerge", res.Errors[1].Path)
	for _, fe := range res.Errors {
		assert.True(t, errors.IsErrorCode(fe, errors.ErrInvalidInput), fe.Path)
	}
}

func TestDotfileJSONMergesWithoutConflict(t *testing.T) {
	res := run(t, map[string]layerstore.Tree{
		"mode/m":    {".mcprc": file(`{"common":{"a":1},"mode":true}`)},
		"project/p": {".mcprc": file(`{"common":{"a":1,"b":2},"project":false}`)},
	})

	require.False(t, res.HasConflicts())
	require.Contains(t, res.Tree, ".mcprc")

	got, err := formats.ParseJSON(res.Tree[".mcprc"].Content)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"common":  map[string]interface{}{"a": int64(1), "b": int64(2)},
		"mode":    true,
		"project": false,
	}, got.Interface())
}

func TestLayerReadFailureAborts(t *testing.T) {
	reader := &fakeReader{trees: map[string]layerstore.Tree{}, fail: "mode/m"}
	_, err := merger.New(reader).Merge(context.Background(), fullSet)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrLayerRead))
}

func TestMergeWithGitStore(t *testing.T) {
	ctx := context.Background()
	store, err := layerstore.NewInMemory()
	require.NoError(t, err)

	_, err = store.CommitLayer(ctx, layers.Ref{Layer: layers.GlobalBase},
		layerstore.Tree{"cfg.json": file(`{"a": 1}`)}, "global")
	require.NoError(t, err)
	_, err = store.CommitLayer(ctx, layers.Ref{Layer: layers.ModeBase, Mode: "m"},
		layerstore.Tree{"cfg.json": file(`{"b": 2}`)}, "mode")
	require.NoError(t, err)

	set, err := layers.Resolve(layers.Request{Mode: "m", Project: "p"})
	require.NoError(t, err)

	res, err := merger.New(store).Merge(ctx, set)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": 2\n}\n", string(res.Tree["cfg.json"].Content))
}
