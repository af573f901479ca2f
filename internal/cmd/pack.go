package cmd

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ezerfernandes/mdpack/internal/bundle"
	"github.com/ezerfernandes/mdpack/internal/stats"
	"github.com/ezerfernandes/mdpack/internal/textfile"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

//go:embed help/pack.md
var packHelp string

const stdoutName = "-"

func packCmd(opts *options) *cobra.Command {
	var globs []string

	cmd := &cobra.Command{ //nolint:exhaustruct
		Use:     "pack [flags] <list-file> <output>",
		Aliases: []string{"p"},
		Short:   "Bundle the files named in a list into one compacted document",
		Long:    packHelp,
		Args: func(_ *cobra.Command, args []string) error {
			least := 2
			if len(globs) != 0 {
				least = 1
			}

			if len(args) < least || len(args) > 2 {
				return usageErrorf("pack expects a list file and an output path, got %d argument(s)", len(args))
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return packRun(cmd, opts, args, globs)
		},

		DisableAutoGenTag: true,
	}

	quietFlag(cmd, opts)

	cmd.Flags().StringArrayVarP(&globs, "glob", "g", nil, "add files matching a pattern ('**' crosses directories)")

	return cmd
}

func packRun(cmd *cobra.Command, opts *options, args []string, globs []string) error {
	output := args[len(args)-1]

	var paths []string

	if len(args) == 2 { //nolint:gomnd
		list, err := readList(args[0])
		if err != nil {
			return err
		}

		paths = list
	}

	matches, err := expandGlobs(cmd.Context(), globs)
	if err != nil {
		return err
	}

	paths = append(paths, matches...)

	fsys := bundle.OSFS{Atomic: opts.cfg.AtomicWrites()}
	packOpts := bundle.PackOptions{
		Encodings: opts.encodings,
		Observe: func(o bundle.PackOutcome) {
			switch o := o.(type) {
			case bundle.Included:
				opts.status("included %s (%s, %s)\n", o.Path, o.Lang, o.Encoding)
			case bundle.Rejected:
				opts.status("skipping %s: %s\n", o.Locator, o.Reason)
			}
		},
	}

	if output != stdoutName {
		report, err := bundle.PackFile(cmd.Context(), fsys, paths, output, packOpts)
		stats.RenderPack(cmd.OutOrStdout(), report)

		return err
	}

	report, doc := bundle.Pack(cmd.Context(), fsys, paths, packOpts)

	if report.Tally().Included != 0 {
		if _, err := cmd.OutOrStdout().Write(doc); err != nil {
			stats.RenderPack(cmd.ErrOrStderr(), report)

			return fmt.Errorf("writing document: %w", err)
		}
	}

	stats.RenderPack(cmd.ErrOrStderr(), report)

	return nil
}

var errListUnreadable = errors.New("list file unreadable")

// readList returns the paths of a list file: one per line, blank lines
// ignored, trailing carriage returns dropped. Other whitespace is part of the
// path.
func readList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errListUnreadable, err)
	}

	text, err := textfile.UTF8.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errListUnreadable, path, err)
	}

	var paths []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}

		paths = append(paths, line)
	}

	return paths, nil
}

// expandGlobs resolves patterns on the host filesystem; relative patterns
// start from the working directory and may climb out of it. Matches of each
// pattern are sorted; patterns keep their order.
func expandGlobs(ctx context.Context, patterns []string) ([]string, error) {
	var paths []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, usageErrorf("invalid --glob pattern %q: %w", pattern, err)
		}

		if len(matches) == 0 {
			zerolog.Ctx(ctx).Warn().Str("pattern", pattern).Msg("--glob pattern matched no files")

			continue
		}

		sort.Strings(matches)

		paths = append(paths, matches...)
	}

	return paths, nil
}
