// Package formats converts configuration files between their on-disk
// representation and merge.Value.
//
// Each supported format has a Parse/Serialize pair. Output is canonical
// rather than byte-preserving: comments and formatting are not kept, but
// key order is.
package formats

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/jin/pkg/merge"
)

// Format identifies how a file's content is merged
type Format int

const (
	Text Format = iota
	JSON
	YAML
	TOML
	INI
)

func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case JSON:
		return "json"
	case YAML:
		return "yaml"
	case TOML:
		return "toml"
	case INI:
		return "ini"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Structured reports whether files of this format are deep merged
func (f Format) Structured() bool {
	return f != Text
}

// Detect picks the format for a file by extension. Files without an
// extension, dotfiles included, are sniffed: content opening with '{' is
// treated as JSON.
func Detect(path string, content []byte) Format {
	ext := filepath.Ext(path)
	if ext == filepath.Base(path) {
		// ".mcprc" is a dotfile, not an extension
		ext = ""
	}
	switch strings.ToLower(ext) {
	case ".json":
		return JSON
	case ".yaml", ".yml":
		return YAML
	case ".toml":
		return TOML
	case ".ini":
		return INI
	case "":
		if bytes.HasPrefix(bytes.TrimSpace(content), []byte("{")) {
			return JSON
		}
	}
	return Text
}

// ParseError reports malformed structured input. Line and Column are 1-based
// and zero when the parser could not tell.
type ParseError struct {
	Format  Format
	Message string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s parse error at line %d, column %d: %s", e.Format, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%s parse error at line %d: %s", e.Format, e.Line, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Parse decodes content of the given structured format
func Parse(format Format, content []byte) (merge.Value, error) {
	switch format {
	case JSON:
		return ParseJSON(content)
	case YAML:
		return ParseYAML(content)
	case TOML:
		return ParseTOML(content)
	case INI:
		return ParseINI(content)
	case Text:
		return merge.Null(), fmt.Errorf("text files have no structured representation")
	}
	return merge.Null(), fmt.Errorf("unknown format %v", format)
}

// Serialize encodes v in the given structured format
func Serialize(format Format, v merge.Value) ([]byte, error) {
	switch format {
	case JSON:
		return SerializeJSON(v)
	case YAML:
		return SerializeYAML(v)
	case TOML:
		return SerializeTOML(v)
	case INI:
		return SerializeINI(v)
	case Text:
		return nil, fmt.Errorf("text files have no structured representation")
	}
	return nil, fmt.Errorf("unknown format %v", format)
}

// lineCol converts a byte offset into a 1-based line and column
func lineCol(content []byte, offset int64) (int, int) {
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	line, col := 1, 1
	for _, b := range content[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
