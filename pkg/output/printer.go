package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	jinerrors "github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/pterm/pterm"
)

// Printer writes styled lines and tables to one writer
type Printer struct {
	w      io.Writer
	color  bool
	styles Styles
}

// NewPrinter creates a printer for w. FormatAuto inspects w when it is a
// file and falls back to plain text otherwise.
func NewPrinter(w io.Writer, format Format) *Printer {
	if format == FormatAuto {
		format = FormatText
		if f, ok := w.(*os.File); ok {
			format = DetectFormat(f)
		}
	}

	renderer := lipgloss.NewRenderer(w)
	color := format == FormatTerminal
	if !color {
		renderer.SetColorProfile(termenv.Ascii)
	}

	logger := logging.GetLogger("output")
	logger.Trace().
		Str("format", format.String()).
		Msg("Printer created")
	return &Printer{w: w, color: color, styles: newStyles(renderer)}
}

// Styles exposes the printer's styles for composing lines
func (p *Printer) Styles() Styles {
	return p.styles
}

func (p *Printer) line(style lipgloss.Style, prefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if prefix != "" {
		msg = style.Render(prefix) + " " + msg
	}
	_, _ = fmt.Fprintln(p.w, msg)
}

// Title prints a bold heading
func (p *Printer) Title(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(p.w, p.styles.Title.Render(fmt.Sprintf(format, args...)))
}

// Success prints a line prefixed with a check mark
func (p *Printer) Success(format string, args ...interface{}) {
	p.line(p.styles.Success, "✓", format, args...)
}

// Warn prints a line prefixed with a warning sign
func (p *Printer) Warn(format string, args ...interface{}) {
	p.line(p.styles.Warning, "!", format, args...)
}

// Info prints a plain informational line
func (p *Printer) Info(format string, args ...interface{}) {
	p.line(p.styles.Info, "•", format, args...)
}

// Muted prints a de-emphasized line
func (p *Printer) Muted(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(p.w, p.styles.Muted.Render(fmt.Sprintf(format, args...)))
}

// Error prints err. Coded errors show their code.
func (p *Printer) Error(err error) {
	var batch *jinerrors.BatchError
	if errors.As(err, &batch) {
		p.line(p.styles.Error, "error:", "%s", batch.Error())
		return
	}

	code := jinerrors.GetErrorCode(err)
	prefix := "error:"
	if code != jinerrors.ErrUnknown {
		prefix = fmt.Sprintf("error [%s]:", code)
	}
	msg := err.Error()
	var jinErr *jinerrors.JinError
	if errors.As(err, &jinErr) {
		msg = jinErr.Message
		if jinErr.Wrapped != nil {
			msg += ": " + jinErr.Wrapped.Error()
		}
	}
	p.line(p.styles.Error, prefix, "%s%s", msg, ruleSuffix(err))
}

// ruleSuffix names the violated rule of a validation failure, with the
// offending line when known.
func ruleSuffix(err error) string {
	details := jinerrors.GetErrorDetails(err)
	rule, ok := details["rule"]
	if !ok {
		return ""
	}
	if line, ok := details["line"]; ok {
		return fmt.Sprintf(" (rule %v, line %v)", rule, line)
	}
	return fmt.Sprintf(" (rule %v)", rule)
}

// Path renders a workspace path
func (p *Printer) Path(path string) string {
	return p.styles.Path.Render(path)
}

// Table prints rows under a header line
func (p *Printer) Table(header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	if !p.color {
		out = pterm.RemoveColorFromString(out)
	}
	_, err = fmt.Fprintln(p.w, out)
	return err
}

// Ago renders t relative to now, e.g. "3 days ago"
func Ago(t time.Time) string {
	return humanize.Time(t)
}

// RelTime renders a relative to b, e.g. "2 hours ago" when a is before b
func RelTime(a, b time.Time) string {
	return humanize.RelTime(a, b, "ago", "from now")
}

// Count renders n with thousands separators
func Count(n int) string {
	return humanize.Comma(int64(n))
}
