// Package textmerge combines two versions of an unstructured text file
// line by line. Layers are additive: lines a higher layer adds are taken,
// lines it lacks are kept, and a region where it replaces lines cannot be
// decided automatically.
package textmerge

import (
	"bytes"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Result is the outcome of a two-way text merge
type Result struct {
	// Content is the merged text. It is only meaningful when Conflicts is 0.
	Content []byte
	// Conflicts counts regions where overlay replaced base lines
	Conflicts int
}

// Clean reports whether the merge needed no decisions
func (r Result) Clean() bool {
	return r.Conflicts == 0
}

// Merge merges overlay onto base. Identical inputs, or inputs differing only
// by a trailing newline, merge cleanly to overlay.
func Merge(base, overlay []byte) Result {
	if bytes.Equal(base, overlay) {
		return Result{Content: clone(overlay)}
	}

	b, o := withNewline(string(base)), withNewline(string(overlay))
	if b == o {
		return Result{Content: clone(overlay)}
	}

	dmp := diffmatchpatch.New()
	bc, oc, lines := dmp.DiffLinesToChars(b, o)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(bc, oc, false), lines)

	var out strings.Builder
	var deleted, inserted strings.Builder
	conflicts := 0

	flush := func() {
		switch {
		case deleted.Len() > 0 && inserted.Len() > 0:
			conflicts++
		case inserted.Len() > 0:
			out.WriteString(inserted.String())
		case deleted.Len() > 0:
			out.WriteString(deleted.String())
		}
		deleted.Reset()
		inserted.Reset()
	}

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			out.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			deleted.WriteString(d.Text)
		case diffmatchpatch.DiffInsert:
			inserted.WriteString(d.Text)
		}
	}
	flush()

	if conflicts > 0 {
		return Result{Conflicts: conflicts}
	}

	merged := out.String()
	if !hasNewline(base) && !hasNewline(overlay) {
		merged = strings.TrimSuffix(merged, "\n")
	}
	return Result{Content: []byte(merged)}
}

func withNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func hasNewline(b []byte) bool {
	return len(b) > 0 && b[len(b)-1] == '\n'
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
