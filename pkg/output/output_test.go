package output

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatAuto, false},
		{"auto", FormatAuto, false},
		{"TERM", FormatTerminal, false},
		{"plain", FormatText, false},
		{"xml", FormatAuto, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "text", FormatText.String())
}

func TestPlainPrinterHasNoEscapeCodes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatAuto)

	p.Title("Applied %d files", 3)
	p.Success("wrote %s", "a.json")
	p.Warn("stale")
	p.Info("note")
	p.Muted("quiet")
	require.NoError(t, p.Table([]string{"Path", "Status"}, [][]string{{"a.json", "written"}}))

	out := buf.String()
	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "Applied 3 files")
	assert.Contains(t, out, "✓ wrote a.json")
	assert.Contains(t, out, "! stale")
	assert.Contains(t, out, "a.json")
	assert.Contains(t, out, "written")
}

func TestPrinterError(t *testing.T) {
	t.Run("coded", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, FormatText)
		p.Error(errors.New(errors.ErrStateNotFound, "no paused apply to resolve"))
		assert.Equal(t, "error [STATE_NOT_FOUND]: no paused apply to resolve\n", buf.String())
	})

	t.Run("validation rule", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, FormatText)
		p.Error(errors.New(errors.ErrValidation, "conflict markers remain").
			WithDetail("rule", "marker").
			WithDetail("line", 3))
		assert.Equal(t, "error [VALIDATION]: conflict markers remain (rule marker, line 3)\n", buf.String())
	})

	t.Run("plain", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, FormatText)
		p.Error(fmt.Errorf("boom"))
		assert.Equal(t, "error: boom\n", buf.String())
	})

	t.Run("batch", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, FormatText)
		p.Error(&errors.BatchError{Op: "resolve", Errors: []*errors.FileError{
			{Path: "a.txt", Err: errors.New(errors.ErrValidation, "bad")},
		}})
		assert.True(t, strings.HasPrefix(buf.String(), "error: resolve failed for 1 file(s)"))
	})
}

func TestHumanize(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "3 days ago", RelTime(now.Add(-72*time.Hour), now))
	assert.Equal(t, "1,234", Count(1234))
}
