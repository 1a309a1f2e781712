package apply

import (
	"context"

	"github.com/arthur-debert/jin/pkg/conflict"
	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/filesystem"
	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/arthur-debert/jin/pkg/logging"
	"github.com/arthur-debert/jin/pkg/merger"
	"github.com/arthur-debert/jin/pkg/state"
)

// ApplyOptions controls Apply
type ApplyOptions struct {
	// DryRun merges and reports without touching the workspace
	DryRun bool
}

// ApplyResult reports what an apply did, or would do for a dry run
type ApplyResult struct {
	Layers     []string
	Written    []string
	Conflicts  []string
	Sidecars   []string
	Downgraded []merger.Downgrade
	Dropped    []string
	Errors     []*errors.FileError
	Paused     bool
	Completed  bool
	DryRun     bool
}

// Apply merges the layers selected by req into the workspace. It refuses to
// run while a previous apply is paused. File level failures are collected
// in the result and also returned as a *errors.BatchError; the result is
// valid whenever it is non-nil.
func (c *Controller) Apply(ctx context.Context, req layers.Request, opts ApplyOptions) (*ApplyResult, error) {
	logger := logging.GetLogger("apply")
	defer logging.LogOperationStart(logger, "apply")()

	unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	paused, err := c.store.Exists()
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, errors.New(errors.ErrApplyPaused,
			"a previous apply is paused on conflicts; run 'jin resolve' first").
			WithDetail("state", c.store.Path())
	}

	set, err := layers.Resolve(req)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("layers", set.Paths()).Bool("dryRun", opts.DryRun).Msg("Applying layers")

	merged, err := merger.New(c.reader).Merge(ctx, set)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{
		Layers:     set.Paths(),
		Conflicts:  merged.ConflictPaths(),
		Downgraded: merged.Downgraded,
		Dropped:    merged.Dropped,
		Errors:     append([]*errors.FileError(nil), merged.Errors...),
		DryRun:     opts.DryRun,
	}

	if opts.DryRun {
		result.Written = merged.Tree.Paths()
		for _, rec := range merged.Conflicts {
			result.Sidecars = append(result.Sidecars, conflict.SidecarPath(rec.Path))
		}
		return result, batchError("apply", result.Errors)
	}

	for _, p := range merged.Tree.Paths() {
		f := merged.Tree[p]
		if err := filesystem.AtomicWriteFile(c.fs, c.workspacePath(p), f.Content, f.Mode); err != nil {
			result.Errors = append(result.Errors, fileError(p,
				errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", p)))
			continue
		}
		logger.Debug().Str("path", p).Msg("Wrote file")
		result.Written = append(result.Written, p)
	}

	cfg := state.NewLayerConfig(req, set)

	if !merged.HasConflicts() {
		if err := c.complete(cfg, result.Written); err != nil {
			return result, err
		}
		result.Completed = true
		return result, batchError("apply", result.Errors)
	}

	var entries []state.ConflictEntry
	for _, rec := range merged.Conflicts {
		if _, err := conflict.Write(c.fs, c.paths.WorkspaceRoot(), rec); err != nil {
			result.Errors = append(result.Errors, fileError(rec.Path, err))
			continue
		}
		result.Sidecars = append(result.Sidecars, conflict.SidecarPath(rec.Path))
		entries = append(entries, state.ConflictEntry{Path: rec.Path, Mode: merger.FileMode(rec.Mode)})
	}

	if len(entries) == 0 {
		// Every sidecar failed; there is nothing a resolve could consume
		return result, batchError("apply", result.Errors)
	}

	st := state.NewPausedApply(cfg, result.Written, entries, c.now())
	if err := c.store.Save(st); err != nil {
		return result, err
	}
	result.Paused = true
	logger.Info().
		Str("id", st.ID).
		Int("conflicts", st.ConflictCount).
		Msg("Apply paused on conflicts")
	return result, batchError("apply", result.Errors)
}
