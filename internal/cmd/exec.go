package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// hook returns the post-write callback for --exec. The script runs in dir
// through a POSIX shell interpreter, once per written file.
func hook(scr, dir string, stdout, stderr io.Writer) func(context.Context, string, string) error {
	return func(ctx context.Context, path, lang string) error {
		expanded, err := expandCommand(scr, path, lang)
		if err != nil {
			return err
		}

		exitCode, err := runCommand(ctx, expanded, dir, stdout, stderr)
		if err != nil {
			return err
		}

		if exitCode != 0 {
			return fmt.Errorf("%w: %q exited with %d", errHookFailed, expanded, exitCode)
		}

		return nil
	}
}

// expandCommand substitutes {} with the shell-quoted path and {lang} with the
// block tag.
func expandCommand(scr, path, lang string) (string, error) {
	quoted, err := syntax.Quote(path, syntax.LangBash)
	if err != nil {
		return "", err
	}

	expanded := strings.ReplaceAll(scr, "{}", quoted)
	expanded = strings.ReplaceAll(expanded, "{lang}", lang)

	return expanded, nil
}

func runCommand(ctx context.Context, command, dir string, stdout, stderr io.Writer) (int, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return -1, err
	}

	runner, err := interp.New(interp.Dir(dir), interp.StdIO(os.Stdin, stdout, stderr))
	if err != nil {
		return -1, err
	}

	err = runner.Run(ctx, file)
	if err != nil {
		if status, ok := interp.IsExitStatus(err); ok {
			return int(status), nil
		}

		return -1, err
	}

	return 0, nil
}

var errHookFailed = errors.New("post-write command failed")
