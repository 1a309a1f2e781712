package jin

import (
	stderrors "errors"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/arthur-debert/jin/pkg/apply"
	"github.com/arthur-debert/jin/pkg/conflict"
	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/arthur-debert/jin/pkg/output"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// formatBold returns s in bold when stdout is a color terminal
func formatBold(s string) string {
	if output.DetectFormat(os.Stdout) != output.FormatTerminal {
		return s
	}
	return pterm.Bold.Sprint(s)
}

// formatBoldUpper returns s in uppercase, bold on a color terminal
func formatBoldUpper(s string) string {
	return formatBold(strings.ToUpper(s))
}

// initTemplateFormatting adds custom formatting functions to Cobra templates
func initTemplateFormatting() {
	cobra.AddTemplateFuncs(template.FuncMap{
		"bold":      formatBold,
		"boldUpper": formatBoldUpper,
	})
}

type fileRow struct {
	path   string
	status string
	detail string
}

func printFileRows(p *output.Printer, rows []fileRow) error {
	if len(rows) == 0 {
		return nil
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].path < rows[j].path })
	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = []string{r.path, r.status, r.detail}
	}
	return p.Table([]string{MsgHeaderPath, MsgHeaderStatus, MsgHeaderDetail}, data)
}

// describe returns the part of err worth showing next to a file name
func describe(err error) string {
	var jinErr *errors.JinError
	if !stderrors.As(err, &jinErr) {
		return err.Error()
	}
	msg := jinErr.Message
	if rule, ok := errors.GetErrorDetails(err)["rule"].(string); ok {
		msg = rule + ": " + msg
	}
	return msg
}

func renderApply(p *output.Printer, res *apply.ApplyResult) error {
	if res.DryRun {
		p.Warn(MsgDryRunNotice)
	}

	var rows []fileRow
	for _, path := range res.Written {
		rows = append(rows, fileRow{path, MsgStatusWritten, ""})
	}
	for _, path := range res.Conflicts {
		rows = append(rows, fileRow{path, MsgStatusConflict, conflict.SidecarPath(path)})
	}
	for _, fe := range res.Errors {
		rows = append(rows, fileRow{fe.Path, MsgStatusFailed, describe(fe.Err)})
	}
	if len(rows) == 0 {
		p.Info(MsgApplyNothing)
		return nil
	}
	if err := printFileRows(p, rows); err != nil {
		return err
	}

	for _, d := range res.Downgraded {
		p.Warn(MsgDowngraded, p.Path(d.Path), d.Layer)
	}
	for _, path := range res.Dropped {
		p.Muted(MsgDropped, path)
	}

	switch {
	case res.Paused:
		p.Warn(MsgApplyPaused, output.Count(len(res.Conflicts)))
		p.Info(MsgApplyPausedHint)
	case res.Completed:
		p.Success(MsgApplyCompleted, output.Count(len(res.Written)), len(res.Layers))
	}
	return nil
}

func renderResolve(p *output.Printer, res *apply.ResolveResult) error {
	if res.Stale != nil {
		p.Warn(MsgStaleWarning, output.Ago(res.PausedAt))
	}
	if res.DryRun {
		p.Warn(MsgDryRunNotice)
	}

	var rows []fileRow
	for _, path := range res.Resolved {
		rows = append(rows, fileRow{path, MsgStatusResolved, ""})
	}
	for _, fe := range res.Errors {
		rows = append(rows, fileRow{fe.Path, MsgStatusFailed, describe(fe.Err)})
	}
	if err := printFileRows(p, rows); err != nil {
		return err
	}

	switch {
	case res.DryRun:
		p.Info(MsgResolveValid, output.Count(len(res.Resolved)))
	case res.Completed:
		p.Success(MsgResolveCompleted)
	case len(res.Remaining) > 0:
		p.Warn(MsgResolveRemaining, output.Count(len(res.Remaining)))
	}
	return nil
}

func renderLayers(s *session, set layers.Set, stored []bool, total int) error {
	p := s.printer
	p.Title("%s", s.config.String())

	data := make([][]string, len(set))
	for i, ref := range set {
		status := MsgStatusNotStored
		if stored[i] {
			status = MsgStatusStored
		}
		data[i] = []string{ref.Layer.String(), ref.Path(), ref.RefName(), status}
	}
	if err := p.Table([]string{MsgHeaderLayer, MsgHeaderPath, MsgHeaderRef, MsgHeaderStored}, data); err != nil {
		return err
	}
	p.Muted(MsgStoredLayers, output.Count(total), s.config.Repository.Path)

	paused, err := s.ctrl.Paused()
	if err != nil {
		return err
	}
	if paused {
		st, err := s.ctrl.PausedState()
		if err != nil {
			return err
		}
		p.Warn(MsgPausedSince, output.Ago(st.CreatedAt), output.Count(st.ConflictCount))
		return nil
	}

	rec, ok, err := s.ctrl.LastApply()
	if err != nil {
		return err
	}
	if ok {
		p.Info(MsgLastApply, output.Ago(rec.AppliedAt), output.Count(len(rec.Files)))
	} else {
		p.Muted(MsgNoLastApply)
	}
	return nil
}
