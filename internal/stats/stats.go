// Package stats prints the summary that closes a pack or unpack run.
package stats

import (
	"fmt"
	"io"

	"github.com/ezerfernandes/mdpack/internal/bundle"
	"github.com/fatih/color"
	"github.com/rodaine/table"
)

var (
	headerFmt = color.New(color.FgGreen, color.Underline).SprintfFunc()
	columnFmt = color.New(color.FgYellow).SprintfFunc()
	titleFmt  = color.New(color.Bold).SprintfFunc()
	okFmt     = color.New(color.FgGreen).SprintfFunc()
	warnFmt   = color.New(color.FgYellow).SprintfFunc()
	errFmt    = color.New(color.FgRed).SprintfFunc()
)

// RenderPack writes the pack summary: how many files were seen, included
// and rejected, followed by one row per rejected file in input order.
func RenderPack(w io.Writer, report bundle.PackReport) {
	tally := report.Tally()

	fmt.Fprintln(w, titleFmt("=== Processing Statistics ==="))
	count(w, "Files seen", report.FilesSeen, nil)
	count(w, "Files included", tally.Included, okFmt)
	count(w, "Files rejected", tally.Rejected, errFmt)

	rejections(w, "Rejected files", "File", report.Rejections())
}

// RenderUnpack writes the unpack summary: block and file counts, the
// overwritten files, then one row per rejection in document order.
func RenderUnpack(w io.Writer, report bundle.ExtractionReport) {
	tally := report.Tally()

	fmt.Fprintln(w, titleFmt("=== Extraction Statistics ==="))
	count(w, "Blocks found", report.BlocksFound, nil)
	count(w, "Files extracted", tally.Extracted, okFmt)
	count(w, "Files overwritten", tally.Overwritten, warnFmt)

	if tally.Skipped > 0 {
		count(w, "Blocks skipped", tally.Skipped, nil)
	}

	count(w, "Rejected", tally.Rejected, errFmt)

	if tally.Overwritten > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleFmt("Overwritten files:"))

		for _, o := range report.Outcomes {
			if ov, ok := o.(bundle.Overwritten); ok {
				fmt.Fprintf(w, "  %s (line %d)\n", ov.Path, ov.Line)
			}
		}
	}

	rejections(w, "Rejections", "Location", report.Rejections())
}

func count(w io.Writer, label string, n int, nonZero func(string, ...interface{}) string) {
	value := fmt.Sprint(n)
	if n > 0 && nonZero != nil {
		value = nonZero("%d", n)
	}

	fmt.Fprintf(w, "%-19s %s\n", label+":", value)
}

func rejections(w io.Writer, title, first string, rejected []bundle.Rejected) {
	if len(rejected) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleFmt(title+":"))

	tbl := table.New(first, "Reason", "Detail")
	tbl.WithWriter(w).WithHeaderFormatter(headerFmt).WithFirstColumnFormatter(columnFmt)

	for _, r := range rejected {
		tbl.AddRow(r.Locator, r.Reason, detail(r))
	}

	tbl.Print()
}

// detail is empty when the reason says it all.
func detail(r bundle.Rejected) string {
	if r.Err == nil {
		return ""
	}

	return r.Detail()
}
