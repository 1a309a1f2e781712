// Package merger composes the trees of a layer set into one workspace tree.
//
// Structured files (JSON, YAML, TOML, INI) are parsed and deep merged in
// precedence order and never conflict. Everything else, including structured
// files that fail to parse in any layer, goes through the line based text
// merge, which reports a conflict when a higher layer replaces lines of the
// running result.
package merger

import (
	"context"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/arthur-debert/jin/pkg/conflict"
	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/formats"
	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/arthur-debert/jin/pkg/layerstore"
	"github.com/arthur-debert/jin/pkg/logging"
	"github.com/arthur-debert/jin/pkg/merge"
	"github.com/arthur-debert/jin/pkg/paths"
	"github.com/arthur-debert/jin/pkg/textmerge"
)

// Tree is the merged output: clean files keyed by workspace path
type Tree = layerstore.Tree

// Downgrade records a structured file that was merged as text because at
// least one layer's copy failed to parse.
type Downgrade struct {
	Path  string
	Layer string
	Err   error
}

// Result is the outcome of merging a layer set
type Result struct {
	Tree       Tree
	Conflicts  []conflict.Record
	Downgraded []Downgrade
	// Dropped lists structured files whose merged value was null
	Dropped []string
	// Errors holds files that could not be merged at all
	Errors []*errors.FileError
}

// HasConflicts reports whether any path needs manual resolution
func (r *Result) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// ConflictPaths returns the conflicted paths in sorted order
func (r *Result) ConflictPaths() []string {
	out := make([]string, len(r.Conflicts))
	for i, c := range r.Conflicts {
		out[i] = c.Path
	}
	sort.Strings(out)
	return out
}

// Merger merges layer trees read through a layerstore.Reader
type Merger struct {
	reader layerstore.Reader
}

// New creates a Merger reading layers from reader
func New(reader layerstore.Reader) *Merger {
	return &Merger{reader: reader}
}

type layerTree struct {
	ref  layers.Ref
	tree layerstore.Tree
}

// contribution is one layer's copy of a path
type contribution struct {
	label string
	file  layerstore.File
}

// Merge reads every layer of set and merges them path by path. Layer read
// failures abort the merge; per file problems are reported in the result.
func (m *Merger) Merge(ctx context.Context, set layers.Set) (*Result, error) {
	logger := logging.GetLogger("merger")
	defer logging.LogOperationStart(logger, "merge")()

	var trees []layerTree
	paths := map[string]bool{}
	for _, ref := range set {
		if !ref.Layer.Versioned() {
			continue
		}
		tree, err := m.reader.ReadTree(ctx, ref)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrLayerRead, "failed to read layer %s", ref.Path()).
				WithDetail("layer", ref.Path())
		}
		logger.Debug().Str("layer", ref.Path()).Int("files", len(tree)).Msg("Loaded layer")
		trees = append(trees, layerTree{ref: ref, tree: tree})
		for p := range tree {
			paths[p] = true
		}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	result := &Result{Tree: Tree{}}
	for _, p := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isLocalPath(p) {
			result.Errors = append(result.Errors, &errors.FileError{
				Path: p,
				Err:  errors.Newf(errors.ErrInvalidInput, "path %q is not relative to the workspace root", p),
			})
			continue
		}
		if isReservedPath(p) {
			result.Errors = append(result.Errors, &errors.FileError{
				Path: p,
				Err:  errors.Newf(errors.ErrInvalidInput, "path %q is reserved for jin's own files", p),
			})
			continue
		}

		var contribs []contribution
		for _, lt := range trees {
			if f, ok := lt.tree[p]; ok {
				contribs = append(contribs, contribution{label: lt.ref.Path(), file: f})
			}
		}
		m.mergePath(p, contribs, result)
	}

	logger.Info().
		Int("files", len(result.Tree)).
		Int("conflicts", len(result.Conflicts)).
		Int("downgraded", len(result.Downgraded)).
		Int("errors", len(result.Errors)).
		Msg("Merged layer set")
	return result, nil
}

func (m *Merger) mergePath(p string, contribs []contribution, result *Result) {
	logger := logging.GetLogger("merger")
	top := contribs[len(contribs)-1]
	mode := FileMode(top.file.Mode)

	format := formats.Detect(p, top.file.Content)
	if format.Structured() {
		content, drop, downgrade, err := mergeStructured(format, contribs)
		switch {
		case downgrade != nil:
			downgrade.Path = p
			logger.Warn().
				Str("path", p).
				Str("layer", downgrade.Layer).
				Err(downgrade.Err).
				Msg("Structured file failed to parse, merging as text")
			result.Downgraded = append(result.Downgraded, *downgrade)
		case err != nil:
			result.Errors = append(result.Errors, &errors.FileError{Path: p, Err: err})
			return
		case drop:
			logger.Debug().Str("path", p).Msg("Merged value is null, dropping file")
			result.Dropped = append(result.Dropped, p)
			return
		default:
			logger.Trace().Str("path", p).Str("format", format.String()).Msg("Merged structured file")
			result.Tree[p] = layerstore.File{Content: content, Mode: mode}
			return
		}
	}

	content, pairs := mergeText(contribs)
	if len(pairs) > 0 {
		logger.Debug().Str("path", p).Int("regions", len(pairs)).Msg("Text conflict")
		result.Conflicts = append(result.Conflicts, conflict.Record{Path: p, Mode: mode, Pairs: pairs})
		return
	}
	result.Tree[p] = layerstore.File{Content: content, Mode: mode}
}

// mergeStructured folds the parsed copies of a file. A non-nil Downgrade
// means the text path must be used instead.
func mergeStructured(format formats.Format, contribs []contribution) ([]byte, bool, *Downgrade, error) {
	values := make([]merge.Value, 0, len(contribs))
	for _, c := range contribs {
		v, err := formats.Parse(format, c.file.Content)
		if err != nil {
			return nil, false, &Downgrade{
				Layer: c.label,
				Err:   errors.Wrapf(err, errors.ErrParse, "%s copy in layer %s is not valid %s", format, c.label, format),
			}, nil
		}
		values = append(values, v)
	}

	merged := merge.Fold(values...)
	if merged.IsNull() {
		return nil, true, nil, nil
	}
	out, err := formats.Serialize(format, merged)
	if err != nil {
		return nil, false, nil, errors.Wrapf(err, errors.ErrSerialize, "failed to write merged %s", format)
	}
	return out, false, nil, nil
}

// mergeText merges copies pairwise against the running result. When a pair
// conflicts it is recorded and the higher copy becomes the running result,
// so every conflicting boundary ends up in the sidecar.
func mergeText(contribs []contribution) ([]byte, []conflict.Pair) {
	running := contribs[0]
	var pairs []conflict.Pair

	for _, next := range contribs[1:] {
		r := textmerge.Merge(running.file.Content, next.file.Content)
		if r.Clean() {
			running = contribution{label: next.label, file: layerstore.File{Content: r.Content, Mode: next.file.Mode}}
			continue
		}
		pairs = append(pairs, conflict.Pair{
			Lower:  conflict.Side{Label: running.label, Content: running.file.Content},
			Higher: conflict.Side{Label: next.label, Content: next.file.Content},
		})
		running = next
	}
	return running.file.Content, pairs
}

func isLocalPath(p string) bool {
	if p == "" || path.IsAbs(p) || strings.Contains(p, "\\") {
		return false
	}
	clean := path.Clean(p)
	return clean == p && clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}

// FileMode returns mode, defaulting to 0644 for entries stored without one
func FileMode(mode os.FileMode) os.FileMode {
	if mode == 0 {
		return 0o644
	}
	return mode
}

// isReservedPath reports paths a layer must not write: the control directory
// and conflict sidecars.
func isReservedPath(p string) bool {
	first, _, _ := strings.Cut(p, "/")
	return first == paths.ControlDirName || strings.HasSuffix(p, conflict.Extension)
}
