package cmd

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/ezerfernandes/mdpack/internal/bundle"
	"github.com/ezerfernandes/mdpack/internal/stats"
	"github.com/spf13/cobra"
)

//go:embed help/unpack.md
var unpackHelp string

func unpackCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{ //nolint:exhaustruct
		Use:     "unpack [flags] <document>",
		Aliases: []string{"u"},
		Short:   "Recreate the files embedded in a compacted document",
		Long:    unpackHelp,
		Args:    exactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg

			if !cmd.Flag("include").Changed {
				opts.include = cfg.Include
			}

			if !cmd.Flag("exclude").Changed {
				opts.exclude = cfg.Exclude
			}

			if !cmd.Flag("confine").Changed {
				opts.confine = cfg.Confine
			}

			if !cmd.Flag("exec").Changed {
				opts.exec = cfg.Exec
			}

			if !cmd.Flag("no-atomic").Changed {
				opts.noAtomic = !cfg.AtomicWrites()
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return unpackRun(cmd, opts, args[0])
		},

		DisableAutoGenTag: true,
	}

	dirFlag(cmd, opts)
	quietFlag(cmd, opts)

	flags := cmd.Flags()

	flags.BoolVarP(&opts.dryRun, "dry-run", "n", false, "report what would be extracted without writing")
	flags.StringArrayVarP(&opts.include, "include", "i", nil, "only extract files matching a pattern")
	flags.StringArrayVarP(&opts.exclude, "exclude", "e", nil, "skip files matching a pattern")
	flags.BoolVar(&opts.confine, "confine", false, "reject absolute paths and paths leaving the target directory")
	flags.StringVarP(&opts.exec, "exec", "x", "", "shell command to run after each file is written ({} is the path, {lang} the block tag)")
	flags.BoolVar(&opts.noAtomic, "no-atomic", false, "write files in place instead of through a temporary file")

	return cmd
}

func unpackRun(cmd *cobra.Command, opts *options, path string) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", bundle.ErrDocumentUnreadable, err)
	}

	filter, err := bundle.NewFilter(opts.include, opts.exclude)
	if err != nil {
		return &usageError{err: err}
	}

	unpackOpts := bundle.UnpackOptions{
		Encodings: opts.encodings,
		Filter:    filter,
		Confine:   opts.confine,
		Observe: func(o bundle.ExtractionOutcome) {
			switch o := o.(type) {
			case bundle.Extracted:
				opts.status("extracted %s\n", o.Path)
			case bundle.Overwritten:
				opts.status("overwrote %s (line %d)\n", o.Path, o.Line)
			case bundle.Skipped:
				opts.status("skipped %s\n", o.Path)
			case bundle.Rejected:
				opts.status("rejected %s: %s\n", o.Locator, o.Reason)
			}
		},
	}

	var fsys bundle.FS

	if opts.dryRun {
		fsys = bundle.NewMemFS()

		opts.status("dry run: nothing will be written\n")
	} else {
		if len(opts.dir) != 0 {
			if err := os.MkdirAll(opts.dir, dirMode); err != nil {
				return err
			}
		}

		fsys = bundle.OSFS{Dir: opts.dir, Atomic: !opts.noAtomic}

		if len(opts.exec) != 0 {
			unpackOpts.AfterWrite = hook(opts.exec, opts.dir, cmd.OutOrStdout(), cmd.ErrOrStderr())
		}
	}

	report, err := bundle.Unpack(cmd.Context(), fsys, doc, unpackOpts)
	if err != nil {
		return err
	}

	stats.RenderUnpack(cmd.OutOrStdout(), report)

	return nil
}
