package ux

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aiunit/internal/coverage"
	"aiunit/internal/orchestrator"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Printer writes reports to a terminal or any writer.
type Printer struct {
	w    io.Writer
	s    Styles
	root string
}

// NewPrinter creates a printer. Colors are used only when w is a
// terminal. Paths under root are shown relative to it.
func NewPrinter(w io.Writer, root string) *Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = ColorEnabled(f)
	}
	return &Printer{w: w, s: NewStyles(DetectTheme(), color), root: root}
}

func (p *Printer) rel(path string) string {
	if p.root == "" || !filepath.IsAbs(path) {
		return path
	}
	if r, err := filepath.Rel(p.root, path); err == nil && !strings.HasPrefix(r, "..") {
		return r
	}
	return path
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault
	return tbl
}

// Gaps prints the gap report as a table, one row per file.
func (p *Printer) Gaps(report *coverage.GapReport) {
	if report.Empty() {
		fmt.Fprintln(p.w, p.s.Success.Render("No missing lines in "+p.rel(report.Source)))
		return
	}
	fmt.Fprintln(p.w, p.s.Title.Render(fmt.Sprintf("Coverage gaps (%s)", report.Format)))

	tbl := newTable()
	tbl.AppendHeader(table.Row{"File", "Cover", "Missing", "Lines"})
	for _, gap := range report.Entries() {
		tbl.AppendRow(table.Row{
			gap.Path,
			fmt.Sprintf("%.1f%%", gap.Percent()),
			humanize.Comma(int64(gap.Missing.Len())),
			strings.Join(gap.Missing.Compact(), ", "),
		})
	}
	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d file(s)", report.Len()), "", humanize.Comma(int64(report.TotalMissing())), "",
	})
	fmt.Fprintln(p.w, tbl.Render())
}

// Summary prints the outcome of a run. Dry runs include their diffs.
func (p *Printer) Summary(sum *orchestrator.Summary) {
	if sum.NothingToDo {
		fmt.Fprintln(p.w, p.s.Success.Render("Nothing to do: every tracked line is covered."))
		return
	}

	if len(sum.Outcomes) > 0 {
		tbl := newTable()
		tbl.AppendHeader(table.Row{"Source", "Test file", "Status", "Detail", "Time"})
		for _, o := range sum.Outcomes {
			tbl.AppendRow(table.Row{
				p.rel(o.SourcePath),
				p.rel(o.TestPath),
				p.status(o.Status),
				detail(o),
				o.Duration.Round(time.Millisecond).String(),
			})
		}
		fmt.Fprintln(p.w, tbl.Render())
	}

	if sum.DryRun {
		for _, d := range sum.Diffs {
			p.Diff(d)
		}
	}

	line := fmt.Sprintf("%d processed, %d skipped, %d failed in %s",
		sum.Processed, sum.Skipped, sum.Failed, sum.Duration.Round(time.Millisecond))
	switch {
	case sum.HasFailures():
		fmt.Fprintln(p.w, p.s.Error.Render(line))
	case sum.Skipped > 0:
		fmt.Fprintln(p.w, p.s.Warning.Render(line))
	default:
		fmt.Fprintln(p.w, p.s.Success.Render(line))
	}
	if sum.DryRun {
		fmt.Fprintln(p.w, p.s.Muted.Render("dry run: no files were written"))
	} else if len(sum.Modified) > 0 {
		fmt.Fprintln(p.w, p.s.Muted.Render(fmt.Sprintf("modified %s test file(s)", humanize.Comma(int64(len(sum.Modified))))))
	}
}

func (p *Printer) status(s orchestrator.Status) string {
	switch s {
	case orchestrator.StatusProcessed:
		return p.s.Success.Render(string(s))
	case orchestrator.StatusSkipped:
		return p.s.Warning.Render(string(s))
	case orchestrator.StatusFailed:
		return p.s.Error.Render(string(s))
	}
	return string(s)
}

func detail(o orchestrator.Outcome) string {
	switch {
	case o.Err != nil:
		return o.Reason + ": " + o.Err.Error()
	case o.Reason != "":
		return o.Reason
	case o.Missing.Len() > 0:
		return "lines " + strings.Join(o.Missing.Compact(), ", ")
	}
	return ""
}

// Diff prints one dry-run diff with added and removed lines colored.
func (p *Printer) Diff(d orchestrator.FileDiff) {
	for _, line := range strings.Split(strings.TrimSuffix(d.Diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			line = p.s.Bold.Render(line)
		case strings.HasPrefix(line, "+"):
			line = p.s.DiffAdd.Render(line)
		case strings.HasPrefix(line, "-"):
			line = p.s.DiffDel.Render(line)
		case strings.HasPrefix(line, "@@"):
			line = p.s.DiffHunk.Render(line)
		}
		fmt.Fprintln(p.w, line)
	}
}
