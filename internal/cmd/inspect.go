package cmd

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ezerfernandes/mdpack/internal/bundle"
	"github.com/ezerfernandes/mdpack/internal/fence"
	"github.com/ezerfernandes/mdpack/internal/markdown"
	"github.com/ezerfernandes/mdpack/internal/marker"
	"github.com/ezerfernandes/mdpack/internal/textfile"
	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

//go:embed help/inspect.md
var inspectHelp string

func inspectCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{ //nolint:exhaustruct
		Use:     "inspect [flags] <document>",
		Aliases: []string{"i"},
		Short:   "List the blocks of a compacted document without writing anything",
		Long:    inspectHelp,
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectRun(cmd.OutOrStdout(), opts, args[0])
		},

		DisableAutoGenTag: true,
	}

	return cmd
}

type blockRow struct {
	line   int
	lang   string
	marker string
	file   string
}

func inspectRun(out io.Writer, opts *options, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", bundle.ErrDocumentUnreadable, err)
	}

	res := textfile.Classify(data, opts.encodings...)
	if !res.IsText {
		return fmt.Errorf("%w: binary content", bundle.ErrDocumentUnreadable)
	}

	text, err := res.Encoding.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %w", bundle.ErrDocumentUnreadable, err)
	}

	lines := fence.SplitLines(text)
	blocks, broken := fence.Scan(lines)

	rows := make([]blockRow, 0, len(blocks)+len(broken))

	for _, b := range blocks {
		row := blockRow{line: b.OpenLine, lang: b.Lang}

		resolved, err := marker.Resolve(lines, b)
		row.marker = resolved.Convention.String()

		if err != nil {
			row.file = err.Error()
		} else {
			row.file = resolved.Filename
		}

		rows = append(rows, row)
	}

	for _, u := range broken {
		rows = append(rows, blockRow{line: u.OpenLine, lang: u.Lang, marker: "none", file: bundle.MissingClosingFence.String()})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].line < rows[j].line })

	fmt.Fprintf(out, "%s: %d block(s), encoding %s\n", path, len(blocks), res.Encoding)

	if len(rows) != 0 {
		tbl := table.New("Line", "Lang", "Marker", "File")
		tbl.WithWriter(out).
			WithHeaderFormatter(color.New(color.FgGreen, color.Underline).SprintfFunc()).
			WithFirstColumnFormatter(color.New(color.FgYellow).SprintfFunc())

		for _, r := range rows {
			tbl.AddRow(r.line, r.lang, r.marker, r.file)
		}

		tbl.Print()
	}

	warn := color.New(color.FgYellow).SprintFunc()

	for _, f := range markdown.Compare(blocks, markdown.Fences([]byte(text))) {
		fmt.Fprintf(out, "%s %s\n", warn("warning:"), f)
	}

	return nil
}
