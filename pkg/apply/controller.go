// Package apply drives the two phase workflow that materializes merged
// layers into a workspace.
//
// Apply merges the layer set once and writes every clean file. When some
// files conflict it writes a .jinmerge sidecar for each of them, records a
// paused apply and stops. Resolve then consumes the edited sidecars one
// batch at a time; when the last conflict is resolved the apply completes
// and the paused record is removed.
//
//	Idle -> Applying -> Completed
//	                 -> Paused -> Resolving -> Paused
//	                                        -> Completed
package apply

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/jin/pkg/conflict"
	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/layerstore"
	"github.com/arthur-debert/jin/pkg/logging"
	"github.com/arthur-debert/jin/pkg/paths"
	"github.com/arthur-debert/jin/pkg/state"
	"github.com/spf13/afero"
)

// DefaultStaleAfter is used when Options.StaleAfter is zero
const DefaultStaleAfter = 24 * time.Hour

// Options configures a Controller
type Options struct {
	Fs     afero.Fs
	Paths  paths.Paths
	Reader layerstore.Reader
	// Locker defaults to a lock file at Paths.LockPath()
	Locker state.Locker
	// StaleAfter is the age past which a paused apply triggers a warning
	StaleAfter time.Duration
	// Now defaults to time.Now
	Now func() time.Time
	// WorkDir anchors relative resolve targets. It defaults to the workspace
	// root and is ignored when it lies outside the workspace.
	WorkDir string
}

// Controller runs apply and resolve against one workspace
type Controller struct {
	fs         afero.Fs
	paths      paths.Paths
	reader     layerstore.Reader
	locker     state.Locker
	store      *state.Store
	staleAfter time.Duration
	now        func() time.Time
	workDir    string
}

// New creates a Controller
func New(opts Options) *Controller {
	c := &Controller{
		fs:         opts.Fs,
		paths:      opts.Paths,
		reader:     opts.Reader,
		locker:     opts.Locker,
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.locker == nil {
		c.locker = state.FileLocker{Path: opts.Paths.LockPath()}
	}
	if c.staleAfter == 0 {
		c.staleAfter = DefaultStaleAfter
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.workDir = opts.Paths.WorkspaceRoot()
	if opts.WorkDir != "" && within(c.workDir, opts.WorkDir) {
		c.workDir = opts.WorkDir
	}
	c.store = state.NewStore(c.fs, opts.Paths.StatePath())
	return c
}

// Paused reports whether an apply is waiting for conflicts to be resolved
func (c *Controller) Paused() (bool, error) {
	return c.store.Exists()
}

// PausedState returns the paused apply record
func (c *Controller) PausedState() (*state.PausedApply, error) {
	return c.store.Load()
}

// LastApply returns the record of the last completed apply, if any
func (c *Controller) LastApply() (state.WorkspaceRecord, bool, error) {
	return state.ReadWorkspaceRecord(c.fs, c.paths.WorkspaceRecordPath())
}

func (c *Controller) lock() (func(), error) {
	unlock, err := c.locker.TryLock()
	if err != nil {
		return nil, err
	}
	return func() {
		if err := unlock(); err != nil {
			logger := logging.GetLogger("apply")
			logger.Warn().Err(err).Msg("Failed to release workspace lock")
		}
	}, nil
}

func (c *Controller) workspacePath(rel string) string {
	return c.paths.WorkspaceFile(rel)
}

// complete runs the completion tail shared by apply and resolve: it records
// the workspace layer.
func (c *Controller) complete(cfg state.LayerConfig, files []string) error {
	rec := state.WorkspaceRecord{
		Layers:    cfg,
		Files:     files,
		AppliedAt: c.now(),
	}
	if err := state.WriteWorkspaceRecord(c.fs, c.paths.WorkspaceRecordPath(), rec); err != nil {
		return err
	}
	logger := logging.GetLogger("apply")
	logger.Info().
		Int("files", len(files)).
		Str("record", c.paths.WorkspaceRecordPath()).
		Msg("Apply completed")
	return nil
}

func fileError(path string, err error) *errors.FileError {
	return &errors.FileError{Path: path, Err: err}
}

// batchError returns nil for an empty batch so callers can return it as is
func batchError(op string, errs []*errors.FileError) error {
	if len(errs) == 0 {
		return nil
	}
	return &errors.BatchError{Op: op, Errors: errs}
}

// relativeTarget maps a user supplied path to a workspace relative slash
// path. Relative paths are taken from the working directory. Sidecar paths
// are accepted for their workspace file.
func (c *Controller) relativeTarget(target string) (string, error) {
	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(c.workDir, abs)
	}
	rel, err := filepath.Rel(c.paths.WorkspaceRoot(), abs)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrInvalidInput, "path %s is outside the workspace", target)
	}
	p := filepath.ToSlash(rel)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", errors.Newf(errors.ErrInvalidInput, "path %s is outside the workspace", target)
	}
	return strings.TrimSuffix(p, conflict.Extension), nil
}

// within reports whether dir is root or below it
func within(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
