package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/jin/pkg/errors"
)

// Environment variable names
const (
	// EnvWorkspace pins the workspace root
	EnvWorkspace = "JIN_WORKSPACE"

	// EnvJinDataDir overrides the XDG data directory for jin
	EnvJinDataDir = "JIN_DATA_DIR"

	// EnvJinConfigDir overrides the XDG config directory for jin
	EnvJinConfigDir = "JIN_CONFIG_DIR"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Fixed names inside the XDG and workspace directories. These are part of
// jin's on-disk contract and are not configurable.
const (
	// DirName is the directory name used under the XDG roots
	DirName = "jin"

	// ControlDirName is the workspace's control directory
	ControlDirName = ".jin"

	// ConfigFileName is used both for the user and the workspace config
	ConfigFileName = "config.toml"

	// StateFileName holds the paused apply record
	StateFileName = "paused-apply.yaml"

	// LockFileName serializes apply and resolve invocations
	LockFileName = "apply.lock"

	// WorkspaceRecordFileName describes the last completed apply
	WorkspaceRecordFileName = "workspace.yaml"

	// RepositoryDirName is the bare layer repository under the data dir
	RepositoryDirName = "layers.git"
)

// Paths provides centralized path management for jin
type Paths interface {
	WorkspaceRoot() string
	UsedFallback() bool
	ControlDir() string
	StatePath() string
	LockPath() string
	WorkspaceRecordPath() string
	WorkspaceConfigPath() string
	WorkspaceFile(rel string) string
	DataDir() string
	ConfigDir() string
	UserConfigPath() string
	RepositoryPath() string
}

type paths struct {
	workspaceRoot string
	xdgData       string
	xdgConfig     string
	// usedFallback indicates no .jin directory was found and cwd was used
	usedFallback bool
}

// New creates a Paths instance rooted at workspaceRoot. When workspaceRoot
// is empty the root is taken from JIN_WORKSPACE, then from the nearest
// ancestor of the working directory that holds a .jin directory, and
// finally from the working directory itself.
func New(workspaceRoot string) (Paths, error) {
	p := &paths{}

	if workspaceRoot == "" {
		root, usedFallback, err := findWorkspaceRoot()
		if err != nil {
			return nil, err
		}
		p.workspaceRoot = root
		p.usedFallback = usedFallback
	} else {
		p.workspaceRoot = expandHome(workspaceRoot)
	}

	absRoot, err := filepath.Abs(p.workspaceRoot)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to get absolute path for workspace root")
	}
	p.workspaceRoot = absRoot

	p.setupXDGDirs()
	return p, nil
}

func (p *paths) setupXDGDirs() {
	if dataDir := os.Getenv(EnvJinDataDir); dataDir != "" {
		p.xdgData = expandHome(dataDir)
	} else {
		p.xdgData = filepath.Join(xdg.DataHome, DirName)
	}

	if configDir := os.Getenv(EnvJinConfigDir); configDir != "" {
		p.xdgConfig = expandHome(configDir)
	} else {
		p.xdgConfig = filepath.Join(xdg.ConfigHome, DirName)
	}
}

// findWorkspaceRoot returns the workspace root and whether the working
// directory was used as a fallback.
func findWorkspaceRoot() (string, bool, error) {
	if root := os.Getenv(EnvWorkspace); root != "" {
		return expandHome(root), false, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", false, errors.Wrapf(err, errors.ErrFileAccess, "failed to get current directory")
	}

	if root, ok := FindControlDir(cwd); ok {
		return root, false, nil
	}
	return cwd, true, nil
}

// FindControlDir walks up from start looking for a directory that contains
// a .jin control directory.
func FindControlDir(start string) (string, bool) {
	current := start
	for {
		info, err := os.Stat(filepath.Join(current, ControlDirName))
		if err == nil && info.IsDir() {
			return current, true
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// expandHome expands a leading ~ to the home directory
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv(EnvHome)
		if homeDir == "" {
			return path
		}
	}

	if len(path) == 1 {
		return homeDir
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:])
	}
	// ~user is left alone
	return path
}

func (p *paths) WorkspaceRoot() string { return p.workspaceRoot }

func (p *paths) UsedFallback() bool { return p.usedFallback }

func (p *paths) ControlDir() string {
	return filepath.Join(p.workspaceRoot, ControlDirName)
}

func (p *paths) StatePath() string {
	return filepath.Join(p.ControlDir(), StateFileName)
}

func (p *paths) LockPath() string {
	return filepath.Join(p.ControlDir(), LockFileName)
}

func (p *paths) WorkspaceRecordPath() string {
	return filepath.Join(p.ControlDir(), WorkspaceRecordFileName)
}

func (p *paths) WorkspaceConfigPath() string {
	return filepath.Join(p.ControlDir(), ConfigFileName)
}

// WorkspaceFile maps a slash separated layer path to its workspace location
func (p *paths) WorkspaceFile(rel string) string {
	return filepath.Join(p.workspaceRoot, filepath.FromSlash(rel))
}

func (p *paths) DataDir() string { return p.xdgData }

func (p *paths) ConfigDir() string { return p.xdgConfig }

func (p *paths) UserConfigPath() string {
	return filepath.Join(p.xdgConfig, ConfigFileName)
}

func (p *paths) RepositoryPath() string {
	return filepath.Join(p.xdgData, RepositoryDirName)
}
