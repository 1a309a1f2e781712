package apply

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	stderrors "errors"

	"github.com/arthur-debert/jin/pkg/conflict"
	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/arthur-debert/jin/pkg/layerstore"
	"github.com/arthur-debert/jin/pkg/paths"
	"github.com/arthur-debert/jin/pkg/state"
	"github.com/arthur-debert/jin/pkg/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t     *testing.T
	root  string
	fs    afero.Fs
	paths paths.Paths
	store *layerstore.GitStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	p, err := paths.New(root)
	require.NoError(t, err)
	return &fixture{
		t:     t,
		root:  root,
		fs:    afero.NewOsFs(),
		paths: p,
		store: testutil.MemoryStore(t),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) commit(ref layers.Ref, files map[string]string) {
	f.t.Helper()
	testutil.CommitLayer(f.t, f.store, ref, files)
}

func (f *fixture) controller() *Controller {
	return New(Options{
		Fs:     f.fs,
		Paths:  f.paths,
		Reader: f.store,
		Now:    func() time.Time { return f.now },
	})
}

func (f *fixture) read(rel string) string {
	f.t.Helper()
	return testutil.ReadFile(f.t, f.root, rel)
}

func (f *fixture) exists(rel string) bool {
	return testutil.FileExists(f.t, f.root, rel)
}

func (f *fixture) write(rel, content string) {
	f.t.Helper()
	testutil.CreateFile(f.t, f.root, rel, content)
}

var modeRequest = layers.Request{Mode: "m", Project: "p"}

// conflictedFixture commits a text file the global and mode layers disagree
// on, next to a structured file that merges cleanly
func conflictedFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.commit(layers.Ref{Layer: layers.GlobalBase}, map[string]string{
		"f.txt":    "A\n",
		"cfg.json": `{"a": 1}`,
	})
	f.commit(layers.Ref{Layer: layers.ModeBase, Mode: "m"}, map[string]string{
		"f.txt":    "B\n",
		"cfg.json": `{"b": 2}`,
	})
	return f
}

func TestApplyClean(t *testing.T) {
	f := newFixture(t)
	f.commit(layers.Ref{Layer: layers.GlobalBase}, map[string]string{"cfg.json": `{"a": 1, "b": {"c": 2}}`})
	f.commit(layers.Ref{Layer: layers.ModeBase, Mode: "m"}, map[string]string{"cfg.json": `{"b": {"d": 3}}`})
	f.commit(layers.Ref{Layer: layers.ProjectBase, Project: "p"}, map[string]string{"nested/readme.md": "hello\n"})

	c := f.controller()
	res, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.False(t, res.Paused)
	assert.Equal(t, []string{"global", "mode/m", "mode/m/project/p", "project/p"}, res.Layers)
	assert.Equal(t, []string{"cfg.json", "nested/readme.md"}, res.Written)
	assert.JSONEq(t, `{"a": 1, "b": {"c": 2, "d": 3}}`, f.read("cfg.json"))
	assert.Equal(t, "hello\n", f.read("nested/readme.md"))

	rec, ok, err := c.LastApply()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"cfg.json", "nested/readme.md"}, rec.Files)
	assert.Equal(t, "m", rec.Layers.Mode)
	assert.True(t, rec.AppliedAt.Equal(f.now))

	paused, err := c.Paused()
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestApplyPausesOnConflict(t *testing.T) {
	f := conflictedFixture(t)
	c := f.controller()

	res, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)

	assert.True(t, res.Paused)
	assert.False(t, res.Completed)
	assert.Equal(t, []string{"f.txt"}, res.Conflicts)
	assert.Equal(t, []string{"f.txt.jinmerge"}, res.Sidecars)
	assert.Equal(t, []string{"cfg.json"}, res.Written)
	assert.JSONEq(t, `{"a": 1, "b": 2}`, f.read("cfg.json"))
	assert.False(t, f.exists("f.txt"))

	sidecar := f.read("f.txt.jinmerge")
	assert.True(t, strings.HasPrefix(sidecar, conflict.Header+"\n"))
	assert.Contains(t, sidecar, "<<<<<<< global\nA\n=======\nB\n>>>>>>> mode/m\n")

	st, err := c.PausedState()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Version)
	assert.Equal(t, []string{"f.txt"}, st.ConflictPaths())
	assert.Equal(t, []string{"cfg.json"}, st.Applied)
	assert.Equal(t, []string{"global", "mode/m", "mode/m/project/p", "project/p"}, st.Layers.Layers)

	_, ok, err := c.LastApply()
	require.NoError(t, err)
	assert.False(t, ok, "a paused apply is not recorded as completed")
}

func TestApplyRefusedWhilePaused(t *testing.T) {
	f := conflictedFixture(t)
	c := f.controller()

	_, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)

	_, err = c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrApplyPaused))
}

func TestApplyDryRun(t *testing.T) {
	f := conflictedFixture(t)
	c := f.controller()

	res, err := c.Apply(context.Background(), modeRequest, ApplyOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.False(t, res.Paused)
	assert.Equal(t, []string{"cfg.json"}, res.Written)
	assert.Equal(t, []string{"f.txt.jinmerge"}, res.Sidecars)
	assert.False(t, f.exists("cfg.json"))
	assert.False(t, f.exists("f.txt.jinmerge"))

	paused, err := c.Paused()
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestApplyInvalidRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.controller().Apply(context.Background(), layers.Request{Mode: "../x"}, ApplyOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestApplyLocked(t *testing.T) {
	f := newFixture(t)
	unlock, err := state.FileLocker{Path: f.paths.LockPath()}.TryLock()
	require.NoError(t, err)
	defer func() { _ = unlock() }()

	_, err = f.controller().Apply(context.Background(), modeRequest, ApplyOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrLocked))
}

func TestResolveRejectsUneditedSidecar(t *testing.T) {
	f := conflictedFixture(t)
	c := f.controller()
	_, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)

	res, err := c.Resolve(context.Background(), []string{"f.txt"}, ResolveOptions{})
	require.Error(t, err)

	var batch *errors.BatchError
	require.True(t, stderrors.As(err, &batch))
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, "f.txt", batch.Errors[0].Path)
	assert.True(t, errors.IsErrorCode(batch.Errors[0].Err, errors.ErrValidation))
	assert.Equal(t, "marker", errors.GetErrorDetails(batch.Errors[0].Err)["rule"])

	assert.Empty(t, res.Resolved)
	assert.Equal(t, []string{"f.txt"}, res.Remaining)
	assert.False(t, f.exists("f.txt"))
	assert.True(t, f.exists("f.txt.jinmerge"))

	st, err := c.PausedState()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Version, "a failed batch leaves the record untouched")
}

func TestResolveCompletesApply(t *testing.T) {
	f := conflictedFixture(t)
	c := f.controller()
	_, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)

	f.write("f.txt.jinmerge", conflict.Header+"\nB\n")

	res, err := c.Resolve(context.Background(), []string{"f.txt"}, ResolveOptions{})
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, []string{"f.txt"}, res.Resolved)
	assert.Empty(t, res.Remaining)
	assert.Equal(t, "B\n", f.read("f.txt"))
	assert.False(t, f.exists("f.txt.jinmerge"))

	paused, err := c.Paused()
	require.NoError(t, err)
	assert.False(t, paused)

	rec, ok, err := c.LastApply()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"cfg.json", "f.txt"}, rec.Files)

	// A new apply is accepted again
	_, err = c.Apply(context.Background(), modeRequest, ApplyOptions{DryRun: true})
	assert.NoError(t, err)
}

func TestResolveAcceptsSidecarPath(t *testing.T) {
	f := conflictedFixture(t)
	c := f.controller()
	_, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)

	f.write("f.txt.jinmerge", conflict.Header+"\nA\nB\n")

	res, err := c.Resolve(context.Background(),
		[]string{filepath.Join(f.root, "f.txt.jinmerge"), "./f.txt"}, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"f.txt"}, res.Resolved)
	assert.Equal(t, "A\nB\n", f.read("f.txt"))
}

func multiConflictFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.commit(layers.Ref{Layer: layers.GlobalBase}, map[string]string{
		"a.txt": "a1\n",
		"b.txt": "b1\n",
		"c.txt": "c1\n",
	})
	f.commit(layers.Ref{Layer: layers.ModeBase, Mode: "m"}, map[string]string{
		"a.txt": "a2\n",
		"b.txt": "b2\n",
		"c.txt": "c2\n",
	})
	return f
}

func TestResolveBatchIsolation(t *testing.T) {
	f := multiConflictFixture(t)
	c := f.controller()
	res, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, res.Conflicts)

	f.write("a.txt.jinmerge", conflict.Header+"\na\n")
	require.NoError(t, os.Remove(filepath.Join(f.root, "b.txt.jinmerge")))

	rres, err := c.Resolve(context.Background(), []string{"a.txt", "b.txt", "nope.txt"}, ResolveOptions{})
	require.Error(t, err)

	var batch *errors.BatchError
	require.True(t, stderrors.As(err, &batch))
	require.Len(t, batch.Errors, 2)
	assert.Equal(t, "b.txt", batch.Errors[0].Path)
	assert.True(t, errors.IsErrorCode(batch.Errors[0].Err, errors.ErrFileNotFound))
	assert.Equal(t, "nope.txt", batch.Errors[1].Path)
	assert.True(t, errors.IsErrorCode(batch.Errors[1].Err, errors.ErrNotConflicted))

	assert.Equal(t, []string{"a.txt"}, rres.Resolved)
	assert.Equal(t, []string{"b.txt", "c.txt"}, rres.Remaining)
	assert.False(t, rres.Completed)
	assert.Equal(t, "a\n", f.read("a.txt"))

	st, err := c.PausedState()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Version)
	assert.Equal(t, []string{"b.txt", "c.txt"}, st.ConflictPaths())
	assert.Contains(t, st.Applied, "a.txt")
}

func TestResolveAll(t *testing.T) {
	f := multiConflictFixture(t)
	c := f.controller()
	_, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		f.write(name+".txt.jinmerge", conflict.Header+"\n"+name+"\n")
	}

	res, err := c.Resolve(context.Background(), nil, ResolveOptions{All: true})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, res.Resolved)
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name+"\n", f.read(name+".txt"))
		assert.False(t, f.exists(name+".txt.jinmerge"))
	}
}

func TestResolveDryRun(t *testing.T) {
	f := conflictedFixture(t)
	c := f.controller()
	_, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)

	f.write("f.txt.jinmerge", conflict.Header+"\nB\n")

	res, err := c.Resolve(context.Background(), []string{"f.txt"}, ResolveOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, []string{"f.txt"}, res.Resolved)
	assert.Equal(t, []string{"f.txt"}, res.Remaining)
	assert.False(t, res.Completed)
	assert.False(t, f.exists("f.txt"))
	assert.True(t, f.exists("f.txt.jinmerge"))

	st, err := c.PausedState()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Version)
}

func TestResolveWithoutPausedApply(t *testing.T) {
	f := newFixture(t)
	_, err := f.controller().Resolve(context.Background(), []string{"f.txt"}, ResolveOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrStateNotFound))
}

func TestResolveCorruptState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.paths.ControlDir(), 0o755))
	require.NoError(t, os.WriteFile(f.paths.StatePath(), []byte("id: [unclosed"), 0o644))

	_, err := f.controller().Resolve(context.Background(), []string{"f.txt"}, ResolveOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrStateCorrupt))
}

func TestResolveNeedsTargets(t *testing.T) {
	f := conflictedFixture(t)
	c := f.controller()
	_, err := c.Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), nil, ResolveOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))

	_, err = c.Resolve(context.Background(), []string{"../outside.txt"}, ResolveOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestResolveStaleWarning(t *testing.T) {
	f := conflictedFixture(t)
	_, err := f.controller().Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)
	f.write("f.txt.jinmerge", conflict.Header+"\nB\n")

	f.now = f.now.Add(48 * time.Hour)

	res, err := f.controller().Resolve(context.Background(), []string{"f.txt"}, ResolveOptions{DryRun: true})
	require.NoError(t, err)
	require.NotNil(t, res.Stale)
	assert.Equal(t, errors.ErrStateStale, res.Stale.Code)
	assert.Equal(t, "48h0m0s", res.Stale.Details["age"])

	res, err = f.controller().Resolve(context.Background(), []string{"f.txt"}, ResolveOptions{Force: true})
	require.NoError(t, err)
	assert.Nil(t, res.Stale)
	assert.True(t, res.Completed)
}

func TestRelativeTarget(t *testing.T) {
	f := newFixture(t)
	c := f.controller()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"a.txt", "a.txt", false},
		{"./dir/../a.txt", "a.txt", false},
		{"dir/b.json.jinmerge", "dir/b.json", false},
		{filepath.Join(f.root, "dir", "c.yaml"), "dir/c.yaml", false},
		{"..", "", true},
		{"../x", "", true},
		{".", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := c.relativeTarget(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelativeTargetFromSubdirectory(t *testing.T) {
	f := newFixture(t)
	sub := filepath.Join(f.root, "dir")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	c := New(Options{Fs: f.fs, Paths: f.paths, Reader: f.store, WorkDir: sub})

	got, err := c.relativeTarget("c.yaml")
	require.NoError(t, err)
	assert.Equal(t, "dir/c.yaml", got)

	got, err = c.relativeTarget("../a.txt.jinmerge")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got)

	_, err = c.relativeTarget("../..")
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))

	// A working directory outside the workspace falls back to its root
	outside := New(Options{Fs: f.fs, Paths: f.paths, Reader: f.store, WorkDir: t.TempDir()})
	got, err = outside.relativeTarget("c.yaml")
	require.NoError(t, err)
	assert.Equal(t, "c.yaml", got)
}

func TestResolveFromSubdirectory(t *testing.T) {
	f := newFixture(t)
	f.commit(layers.Ref{Layer: layers.GlobalBase}, map[string]string{"dir/f.txt": "A\n"})
	f.commit(layers.Ref{Layer: layers.ModeBase, Mode: "m"}, map[string]string{"dir/f.txt": "B\n"})

	res, err := f.controller().Apply(context.Background(), modeRequest, ApplyOptions{})
	require.NoError(t, err)
	require.True(t, res.Paused)

	f.write("dir/f.txt.jinmerge", conflict.Header+"\nmerged\n")

	c := New(Options{
		Fs:      f.fs,
		Paths:   f.paths,
		Reader:  f.store,
		Now:     func() time.Time { return f.now },
		WorkDir: filepath.Join(f.root, "dir"),
	})
	rres, err := c.Resolve(context.Background(), []string{"f.txt"}, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/f.txt"}, rres.Resolved)
	assert.True(t, rres.Completed)
	assert.Equal(t, "merged\n", f.read("dir/f.txt"))
}
