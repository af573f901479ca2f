package bundle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ezerfernandes/mdpack/internal/fence"
	"github.com/ezerfernandes/mdpack/internal/marker"
	"github.com/ezerfernandes/mdpack/internal/textfile"
	"github.com/rs/zerolog"
)

// UnpackOptions configure [Unpack].
type UnpackOptions struct {
	// Encodings is the decoding priority list for the document; empty means
	// textfile.DefaultEncodings.
	Encodings []textfile.Encoding
	// Filter, if set, skips blocks whose filename it does not allow.
	Filter *Filter
	// Confine rejects absolute filenames and filenames that climb out of the
	// target directory.
	Confine bool
	// AfterWrite, if set, runs after each successful write. Its error is
	// logged, not recorded.
	AfterWrite func(ctx context.Context, path, lang string) error
	// Observe, if set, is called with each outcome as it is recorded.
	Observe func(ExtractionOutcome)
}

// Unpack extracts every block of doc into fsys and reports what happened to
// each one, in document order. Per-block failures are recorded and do not
// stop the run; only a document that cannot be decoded is an error.
//
// When several blocks name the same file, each is written in turn and the
// last one wins; all but the first are reported as [Overwritten].
func Unpack(ctx context.Context, fsys FS, doc []byte, opts UnpackOptions) (ExtractionReport, error) {
	res := textfile.Classify(doc, opts.Encodings...)
	if !res.IsText {
		return ExtractionReport{}, fmt.Errorf("%w: binary content", ErrDocumentUnreadable)
	}

	text, err := res.Encoding.Decode(doc)
	if err != nil {
		return ExtractionReport{}, fmt.Errorf("%w: %w", ErrDocumentUnreadable, err)
	}

	lines := fence.SplitLines(text)
	blocks, broken := fence.Scan(lines)

	u := &unpacker{
		fsys:    fsys,
		opts:    opts,
		lines:   lines,
		written: make(map[string]bool),
		log:     zerolog.Ctx(ctx),
		report:  ExtractionReport{BlocksFound: len(blocks)},
	}

	u.log.Debug().
		Str("encoding", res.Encoding.Name).
		Int("blocks", len(blocks)).
		Int("unterminated", len(broken)).
		Msg("document scanned")

	for len(blocks) > 0 || len(broken) > 0 {
		if len(broken) > 0 && (len(blocks) == 0 || broken[0].OpenLine < blocks[0].OpenLine) {
			u.record(Rejected{
				Locator: Locator{Line: broken[0].OpenLine},
				Reason:  MissingClosingFence,
				Err:     broken[0],
			})
			broken = broken[1:]

			continue
		}

		u.record(u.extract(ctx, blocks[0]))
		blocks = blocks[1:]
	}

	return u.report, nil
}

type unpacker struct {
	fsys    FS
	opts    UnpackOptions
	lines   []string
	written map[string]bool
	log     *zerolog.Logger
	report  ExtractionReport
}

func (u *unpacker) record(o ExtractionOutcome) {
	u.report.Outcomes = append(u.report.Outcomes, o)

	if u.opts.Observe != nil {
		u.opts.Observe(o)
	}
}

func (u *unpacker) extract(ctx context.Context, block fence.Block) ExtractionOutcome {
	res, err := marker.Resolve(u.lines, block)
	if err != nil {
		reason := NoFilenameMarker
		if errors.Is(err, marker.ErrAmbiguousFilename) {
			reason = AmbiguousFilename
		}

		return Rejected{Locator: Locator{Line: block.OpenLine}, Reason: reason, Err: err}
	}

	name := res.Filename

	if ok, pattern := u.opts.Filter.Allow(name); !ok {
		return Skipped{Path: name, Line: block.OpenLine, Pattern: pattern}
	}

	if u.opts.Confine && !filepath.IsLocal(name) {
		return Rejected{
			Locator: Locator{Path: name},
			Reason:  UnsafePath,
			Err:     fmt.Errorf("%s: %w", name, errOutsideRoot),
		}
	}

	if dir := filepath.Dir(name); dir != "." {
		if err := u.fsys.MkdirAll(dir, dirMode); err != nil {
			return Rejected{Locator: Locator{Path: name}, Reason: DirectoryCreateFailed, Err: err}
		}
	}

	if err := u.fsys.WriteFile(name, []byte(strings.Join(res.Lines, "\n")), fileMode); err != nil {
		return Rejected{Locator: Locator{Path: name}, Reason: WriteFailed, Err: err}
	}

	key := filepath.Clean(name)
	seen := u.written[key]
	u.written[key] = true

	u.log.Debug().
		Str("path", name).
		Str("convention", res.Convention.String()).
		Int("line", block.OpenLine).
		Msg("block extracted")

	if u.opts.AfterWrite != nil {
		if err := u.opts.AfterWrite(ctx, name, block.Lang); err != nil {
			u.log.Warn().Err(err).Str("path", name).Msg("post-write hook failed")
		}
	}

	if seen {
		u.log.Warn().Str("path", name).Int("line", block.OpenLine).Msg("overwriting file extracted earlier in this run")

		return Overwritten{Path: name, Line: block.OpenLine}
	}

	return Extracted{Path: name, Line: block.OpenLine}
}

var errOutsideRoot = errors.New("path escapes the target directory")
