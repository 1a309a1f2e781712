// Package conflict renders and validates .jinmerge sidecar files. A sidecar
// sits next to a workspace file that could not be merged automatically and
// holds every conflicting pair of layer versions for the user to edit.
package conflict

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/filesystem"
	"github.com/spf13/afero"
)

const (
	// Header is the first line of every sidecar
	Header = "# jin merge conflict: edit this file to the desired content, then run 'jin resolve'"

	// Extension is appended to the workspace path to name the sidecar
	Extension = ".jinmerge"

	MarkerOpen      = "<<<<<<<"
	MarkerSeparator = "======="
	MarkerClose     = ">>>>>>>"

	sidecarPerm = 0o644
)

var markers = []string{MarkerOpen, MarkerSeparator, MarkerClose}

// Side is one layer's version of the file
type Side struct {
	Label   string
	Content []byte
}

// Pair is two versions that could not be merged. Lower has the lower
// precedence.
type Pair struct {
	Lower  Side
	Higher Side
}

// Record describes one conflicted workspace path
type Record struct {
	Path  string
	Mode  os.FileMode
	Pairs []Pair
}

// Labels returns the distinct layer labels involved, in order of appearance
func (r Record) Labels() []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range r.Pairs {
		for _, l := range []string{p.Lower.Label, p.Higher.Label} {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out
}

// SidecarPath returns the sidecar location for a workspace path
func SidecarPath(path string) string {
	return path + Extension
}

// Render produces the sidecar document for rec
func Render(rec Record) []byte {
	var buf bytes.Buffer
	buf.WriteString(Header)
	buf.WriteByte('\n')
	for i, p := range rec.Pairs {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "%s %s\n", MarkerOpen, p.Lower.Label)
		writeBlock(&buf, p.Lower.Content)
		buf.WriteString(MarkerSeparator)
		buf.WriteByte('\n')
		writeBlock(&buf, p.Higher.Content)
		fmt.Fprintf(&buf, "%s %s\n", MarkerClose, p.Higher.Label)
	}
	return buf.Bytes()
}

func writeBlock(buf *bytes.Buffer, content []byte) {
	buf.Write(content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		buf.WriteByte('\n')
	}
}

// Write renders rec into its sidecar under root and returns the sidecar's
// path. The workspace file itself is not touched.
func Write(fsys afero.Fs, root string, rec Record) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(SidecarPath(rec.Path)))
	if err := filesystem.AtomicWriteFile(fsys, target, Render(rec), sidecarPerm); err != nil {
		return "", errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", SidecarPath(rec.Path)).
			WithDetail("path", rec.Path)
	}
	return target, nil
}

// Validate checks an edited sidecar and returns the resolved content: every
// byte after the header line. The header must be intact and no conflict
// marker may remain anywhere in the body.
func Validate(content []byte) ([]byte, error) {
	first, body, _ := bytes.Cut(content, []byte("\n"))
	if strings.TrimSuffix(string(first), "\r") != Header {
		return nil, errors.New(errors.ErrValidation, "sidecar header is missing or was modified").
			WithDetail("rule", "header")
	}
	for _, m := range markers {
		if idx := bytes.Index(body, []byte(m)); idx >= 0 {
			line := bytes.Count(body[:idx], []byte("\n")) + 2
			return nil, errors.Newf(errors.ErrValidation, "conflict marker %q still present at line %d", m, line).
				WithDetail("rule", "marker").
				WithDetail("marker", m).
				WithDetail("line", line)
		}
	}
	return body, nil
}
