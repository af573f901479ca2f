// Package cmd implements the mdpack command line.
package cmd

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/ezerfernandes/mdpack/internal/config"
	"github.com/ezerfernandes/mdpack/internal/textfile"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

//go:embed help/root.md
var rootHelp string

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

const dirMode = 0o755

type statusFunc func(format string, args ...interface{})

type options struct {
	configPath string
	debug      bool
	quiet      bool
	noColor    bool

	dir      string
	dryRun   bool
	include  []string
	exclude  []string
	confine  bool
	exec     string
	noAtomic bool

	cfg       *config.Config
	encodings []textfile.Encoding
	status    statusFunc
}

func (opts *options) createStatus(w io.Writer) {
	if opts.quiet {
		opts.status = func(string, ...interface{}) {}

		return
	}

	opts.status = func(format string, args ...interface{}) {
		fmt.Fprintf(w, format, args...)
	}
}

// setup loads the configuration, lets it fill in flags the user did not
// set, and attaches the logger to the command context.
func (opts *options) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(opts.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flag("config").Changed {
		cfg, err = new(config.Config), nil
	}

	if err != nil {
		return err
	}

	opts.cfg = cfg

	if opts.encodings, err = cfg.EncodingList(); err != nil {
		return err
	}

	if flag := cmd.Flag("quiet"); flag != nil && !flag.Changed {
		opts.quiet = cfg.Quiet
	}

	if !cmd.Flag("no-color").Changed {
		opts.noColor = cfg.NoColor
	}

	if opts.noColor {
		color.NoColor = true
	}

	level := zerolog.WarnLevel
	if opts.debug {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(zerolog.ConsoleWriter{ //nolint:exhaustruct
		Out:          cmd.ErrOrStderr(),
		NoColor:      color.NoColor,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}).Level(level)

	cmd.SetContext(logger.WithContext(cmd.Context()))
	opts.createStatus(cmd.ErrOrStderr())

	logger.Debug().Str("config", cfg.Location()).Msg("configuration loaded")

	return nil
}

func rootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{ //nolint:exhaustruct
		Use:   "mdpack",
		Short: "Pack source files into one markdown document and unpack them back",
		Long:  rootHelp,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErrorf("a command is required")
			}

			return usageErrorf("unknown command %q", args[0])
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},

		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}

	flags := root.PersistentFlags()

	flags.StringVar(&opts.configPath, "config", config.DefaultPath, "configuration file")
	flags.BoolVar(&opts.debug, "debug", false, "log diagnostics to stderr")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.AddCommand(packCmd(opts), unpackCmd(opts), inspectCmd(opts))

	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := rootCmd(new(options))

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}

	fmt.Fprintln(stderr, "Error:", err)

	var uerr *usageError
	if errors.As(err, &uerr) {
		fmt.Fprintln(stderr, "Run 'mdpack --help' for usage.")

		return exitUsage
	}

	return exitFatal
}

func quietFlag(cmd *cobra.Command, opts *options) {
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress messages")
}

func dirFlag(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "directory to extract files into (default: working directory)")
}

// usageError marks errors caused by how the command was invoked.
type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

func usageErrorf(format string, args ...interface{}) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s expects %d argument(s), got %d", cmd.Name(), n, len(args))
		}

		return nil
	}
}
