package apply

import (
	"context"
	"io/fs"
	"sort"
	"time"

	stderrors "errors"

	"github.com/arthur-debert/jin/pkg/conflict"
	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/filesystem"
	"github.com/arthur-debert/jin/pkg/logging"
	"github.com/arthur-debert/jin/pkg/state"
	"github.com/spf13/afero"
)

// ResolveOptions controls Resolve
type ResolveOptions struct {
	// All targets every conflicted path
	All bool
	// Force silences the staleness warning. Sidecars are validated regardless.
	Force bool
	// DryRun validates sidecars without writing anything
	DryRun bool
}

// ResolveResult reports the outcome of a resolve batch
type ResolveResult struct {
	Resolved  []string
	Remaining []string
	Errors    []*errors.FileError
	Completed bool
	DryRun    bool
	// PausedAt is when the apply being resolved paused
	PausedAt time.Time
	// Stale is set when the paused apply is older than the configured
	// threshold and Force was not given
	Stale *errors.JinError
}

// Resolve consumes the edited sidecars of targets. A missing or corrupt
// paused record aborts the batch; every per file problem is collected and
// the remaining targets are still processed. When the last conflict is
// resolved the apply completes and the paused record is deleted.
func (c *Controller) Resolve(ctx context.Context, targets []string, opts ResolveOptions) (*ResolveResult, error) {
	logger := logging.GetLogger("resolve")
	defer logging.LogOperationStart(logger, "resolve")()

	unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := c.store.Load()
	if err != nil {
		return nil, err
	}

	result := &ResolveResult{DryRun: opts.DryRun, PausedAt: st.CreatedAt}
	now := c.now()
	if !opts.Force && st.Stale(now, c.staleAfter) {
		result.Stale = errors.Newf(errors.ErrStateStale,
			"the paused apply is older than %s; layers may have changed since", c.staleAfter).
			WithDetail("age", st.Age(now).String()).
			WithDetail("id", st.ID)
		logger.Warn().Dur("age", st.Age(now)).Str("id", st.ID).Msg("Resolving a stale paused apply")
	}

	paths, err := c.resolveTargets(targets, opts.All, st.ConflictPaths())
	if err != nil {
		return nil, err
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.resolveOne(p, st.Conflict, opts.DryRun); err != nil {
			logger.Debug().Str("path", p).Err(err).Msg("Resolve failed")
			result.Errors = append(result.Errors, fileError(p, err))
			continue
		}
		if !opts.DryRun {
			st.MarkResolved(p)
		}
		result.Resolved = append(result.Resolved, p)
	}

	result.Remaining = st.ConflictPaths()
	if opts.DryRun || len(result.Resolved) == 0 {
		return result, batchError("resolve", result.Errors)
	}

	if st.Done() {
		if err := c.complete(st.Layers, st.Applied); err != nil {
			return result, err
		}
		if err := c.store.Delete(); err != nil {
			return result, err
		}
		result.Completed = true
		return result, batchError("resolve", result.Errors)
	}

	if err := c.store.Save(st); err != nil {
		return result, err
	}
	logger.Info().
		Int("resolved", len(result.Resolved)).
		Int("remaining", len(result.Remaining)).
		Msg("Paused apply updated")
	return result, batchError("resolve", result.Errors)
}

func (c *Controller) resolveTargets(targets []string, all bool, conflicted []string) ([]string, error) {
	if all {
		return conflicted, nil
	}
	if len(targets) == 0 {
		return nil, errors.New(errors.ErrInvalidInput, "no paths given; pass the conflicted paths or --all")
	}

	seen := map[string]bool{}
	var out []string
	for _, t := range targets {
		rel, err := c.relativeTarget(t)
		if err != nil {
			return nil, err
		}
		if !seen[rel] {
			seen[rel] = true
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out, nil
}

// resolveOne validates the sidecar of p and, unless dryRun, writes the
// resolved content and removes the sidecar
func (c *Controller) resolveOne(p string, lookup func(string) (state.ConflictEntry, bool), dryRun bool) error {
	entry, ok := lookup(p)
	if !ok {
		return errors.Newf(errors.ErrNotConflicted, "%s is not a conflicted path of the paused apply", p).
			WithDetail("path", p)
	}

	sidecar := c.workspacePath(conflict.SidecarPath(p))
	content, err := afero.ReadFile(c.fs, sidecar)
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.Newf(errors.ErrFileNotFound, "sidecar %s is missing; was it already resolved?", conflict.SidecarPath(p)).
			WithDetail("path", p)
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", conflict.SidecarPath(p)).
			WithDetail("path", p)
	}

	body, err := conflict.Validate(content)
	if err != nil {
		return err
	}
	if dryRun {
		return nil
	}

	if err := filesystem.AtomicWriteFile(c.fs, c.workspacePath(p), body, entry.Mode); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", p).
			WithDetail("path", p)
	}
	if err := filesystem.RemoveIfExists(c.fs, sidecar); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "wrote %s but failed to remove its sidecar", p).
			WithDetail("path", p)
	}
	logger := logging.GetLogger("resolve")
	logger.Debug().Str("path", p).Msg("Resolved")
	return nil
}
