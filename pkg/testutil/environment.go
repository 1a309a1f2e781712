package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/jin/pkg/layerstore"
	"github.com/arthur-debert/jin/pkg/paths"
	"github.com/stretchr/testify/require"
)

// TestEnvironment is an isolated jin installation on the real filesystem
type TestEnvironment struct {
	Workspace string
	DataDir   string
	ConfigDir string

	Paths paths.Paths
	Store *layerstore.GitStore
}

// NewTestEnvironment creates the workspace (with its .jin directory), the
// data and config directories and the layer repository in a temp dir, and
// points JIN_WORKSPACE, JIN_DATA_DIR and JIN_CONFIG_DIR at them for the
// duration of the test.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	tmp := t.TempDir()
	env := &TestEnvironment{
		Workspace: filepath.Join(tmp, "workspace"),
		DataDir:   filepath.Join(tmp, "data"),
		ConfigDir: filepath.Join(tmp, "config"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(env.Workspace, paths.ControlDirName), 0o755))

	t.Setenv(paths.EnvWorkspace, env.Workspace)
	t.Setenv(paths.EnvJinDataDir, env.DataDir)
	t.Setenv(paths.EnvJinConfigDir, env.ConfigDir)

	p, err := paths.New(env.Workspace)
	require.NoError(t, err)
	env.Paths = p

	store, err := layerstore.Open(p.RepositoryPath())
	require.NoError(t, err)
	env.Store = store
	return env
}

// WriteConfig writes the workspace's .jin/config.toml
func (e *TestEnvironment) WriteConfig(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(e.Paths.WorkspaceConfigPath(), []byte(content), 0o644))
}
