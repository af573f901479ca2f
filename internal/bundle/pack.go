// Package bundle packs source files into one compacted document of fenced,
// filename-annotated blocks, and unpacks such a document back into files.
package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/ezerfernandes/mdpack/internal/fence"
	"github.com/ezerfernandes/mdpack/internal/marker"
	"github.com/ezerfernandes/mdpack/internal/textfile"
	"github.com/rs/zerolog"
)

const defaultLang = "txt"

// PackOptions configure [Pack].
type PackOptions struct {
	// Encodings is the decoding priority list; empty means
	// textfile.DefaultEncodings.
	Encodings []textfile.Encoding
	// Observe, if set, is called with each outcome as it is recorded.
	Observe func(PackOutcome)
}

// Pack reads paths in order from fsys and returns the report together with
// the compacted document. Every included file becomes:
//
//	# <path>
//	```<lang>
//	<content>
//	```
//	<blank line>
//
// The document is built in memory; identical inputs give identical bytes.
func Pack(ctx context.Context, fsys FS, paths []string, opts PackOptions) (PackReport, []byte) {
	var (
		buf    bytes.Buffer
		report = PackReport{FilesSeen: len(paths)}
		log    = zerolog.Ctx(ctx)
	)

	record := func(o PackOutcome) {
		report.Outcomes = append(report.Outcomes, o)

		if opts.Observe != nil {
			opts.Observe(o)
		}
	}

	for _, path := range paths {
		text, enc, rej := readText(fsys, path, opts.Encodings)
		if rej != nil {
			log.Debug().Str("path", path).Str("reason", rej.Reason.String()).Msg("file rejected")
			record(*rej)

			continue
		}

		lang := Lang(path)

		if name, err := marker.Normalize(Heading(path)); err != nil || name != path {
			log.Warn().Str("path", path).Msg("path cannot be written as a heading; its block will not unpack")
		}

		if hasFenceLine(text) {
			log.Warn().Str("path", path).Msg("content contains fence lines; its block will not unpack intact")
		}

		writeBlock(&buf, path, lang, text)

		log.Debug().Str("path", path).Str("lang", lang).Str("encoding", enc.Name).Msg("file included")
		record(Included{Path: path, Lang: lang, Encoding: enc.Name})
	}

	return report, buf.Bytes()
}

// PackFile runs [Pack] and writes the document to output in a single write
// once every input has been read. No output is written when no file was
// included.
func PackFile(ctx context.Context, fsys FS, paths []string, output string, opts PackOptions) (PackReport, error) {
	report, doc := Pack(ctx, fsys, paths, opts)

	if report.Tally().Included == 0 {
		zerolog.Ctx(ctx).Warn().Str("output", output).Msg("no files included; output not written")

		return report, nil
	}

	if err := fsys.WriteFile(output, doc, fileMode); err != nil {
		return report, fmt.Errorf("writing %s: %w", output, err)
	}

	return report, nil
}

func readText(fsys FS, path string, encodings []textfile.Encoding) (string, textfile.Encoding, *Rejected) {
	reject := func(reason Reason, err error) (string, textfile.Encoding, *Rejected) {
		return "", textfile.Encoding{}, &Rejected{Locator: Locator{Path: path}, Reason: reason, Err: err}
	}

	info, err := fsys.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return reject(InputNotFound, nil)
	}

	if err != nil {
		return reject(ReadFailed, err)
	}

	if info.IsDir() {
		return reject(ReadFailed, errIsDirectory)
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return reject(ReadFailed, err)
	}

	res := textfile.Classify(data, encodings...)
	if !res.IsText {
		return reject(BinaryRejected, nil)
	}

	text, err := res.Encoding.Decode(data)
	if err != nil {
		return reject(ReadFailed, err)
	}

	return text, res.Encoding, nil
}

func writeBlock(buf *bytes.Buffer, path, lang, text string) {
	buf.WriteString("# ")
	buf.WriteString(Heading(path))
	buf.WriteString("\n```")
	buf.WriteString(lang)
	buf.WriteByte('\n')
	buf.WriteString(text)
	buf.WriteString("\n```\n\n")
}

var reLang = regexp.MustCompile(`^[A-Za-z0-9_+.-]+$`)

// Lang returns the fence tag for path: its extension without the dot, or
// "txt" when there is none or it cannot appear in a fence line. A leading dot
// in the base name does not start an extension.
func Lang(path string) string {
	base := filepath.Base(path)

	ext := filepath.Ext(strings.TrimLeft(base, "."))
	if len(ext) <= 1 || !reLang.MatchString(ext[1:]) {
		return defaultLang
	}

	return ext[1:]
}

// Heading returns path as it is written after "# ". Paths that would not
// resolve back to themselves (whitespace, or already wrapped in quotes) are
// wrapped in the first quote character they do not contain. A path holding
// all three quote characters is returned as is.
func Heading(path string) string {
	quoted := len(path) >= 2 && path[0] == path[len(path)-1] && strings.IndexByte(quotes, path[0]) >= 0
	if !quoted && strings.IndexFunc(path, unicode.IsSpace) < 0 {
		return path
	}

	for _, q := range quotes {
		if !strings.ContainsRune(path, q) {
			return string(q) + path + string(q)
		}
	}

	return path
}

const quotes = "`\"'"

func hasFenceLine(text string) bool {
	for _, line := range fence.SplitLines(text) {
		if fence.IsClose(line) {
			return true
		}

		if tag, ok := fence.IsOpen(line); ok && len(tag) != 0 {
			return true
		}
	}

	return false
}

var errIsDirectory = errors.New("is a directory")
