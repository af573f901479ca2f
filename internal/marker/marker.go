// Package marker resolves the target filename of a fenced block.
//
// Two conventions are recognized, tried in this order:
//
//	# path/to/file.go        <- BeforeHeading: the line right above the fence
//	```go
//	package file
//	```
//
//	```go
//	// path/to/file.go       <- AfterComment: the first line inside the fence
//	package file
//	```
//
// Under AfterComment the marker line is metadata and is dropped from the
// payload. Under BeforeHeading the block content is kept whole, even when it
// starts with a comment that looks like a marker.
package marker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ezerfernandes/mdpack/internal/fence"
)

// Convention identifies where a block's filename was declared.
type Convention int

const (
	BeforeHeading Convention = iota + 1
	AfterComment
)

func (c Convention) String() string {
	switch c {
	case BeforeHeading:
		return "heading"
	case AfterComment:
		return "comment"
	default:
		return "none"
	}
}

// Resolution is a block with its filename resolved.
type Resolution struct {
	Convention Convention
	// Raw is the captured marker text before normalization.
	Raw      string
	Filename string
	// Lines is the payload: the block content minus any marker line.
	Lines []string
}

var (
	reHeading = regexp.MustCompile(`^#\s+(.+)$`)
	reComment = regexp.MustCompile(`^//\s+(.+)$`)
)

// Resolve determines the filename of block, whose line numbers index into
// lines (the whole document). On error the returned Resolution still carries
// the convention and raw marker when one was found.
func Resolve(lines []string, block fence.Block) (Resolution, error) {
	res := Resolution{Lines: block.Lines}

	if prev := block.OpenLine - 2; prev >= 0 && prev < len(lines) {
		if raw, ok := capture(reHeading, lines[prev]); ok {
			res.Convention, res.Raw = BeforeHeading, raw
		}
	}

	if res.Convention == 0 && len(block.Lines) > 0 {
		if raw, ok := capture(reComment, block.Lines[0]); ok {
			res.Convention, res.Raw = AfterComment, raw
			res.Lines = block.Lines[1:]
		}
	}

	if res.Convention == 0 {
		return res, ErrNoFilenameMarker
	}

	filename, err := Normalize(res.Raw)
	if err != nil {
		return res, err
	}

	res.Filename = filename

	return res, nil
}

// capture returns the trimmed marker text. Whitespace-only text does not
// count as a marker.
func capture(re *regexp.Regexp, line string) (string, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}

	raw := strings.TrimSpace(m[1])

	return raw, len(raw) != 0
}

const quotes = "\"'`"

// Normalize turns raw marker text into a filename. A filename wrapped in one
// matching pair of quotes or backticks may contain whitespace; an unquoted one
// may not, since it cannot be told apart from a prose heading.
func Normalize(raw string) (string, error) {
	name := strings.TrimSpace(raw)

	if len(name) >= 2 && name[0] == name[len(name)-1] && strings.IndexByte(quotes, name[0]) >= 0 {
		name = name[1 : len(name)-1]
		if len(name) == 0 {
			return "", fmt.Errorf("%w: empty quoted name", ErrAmbiguousFilename)
		}

		return name, nil
	}

	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("%w: %q has unquoted whitespace", ErrAmbiguousFilename, name)
	}

	return name, nil
}

var (
	// ErrNoFilenameMarker is returned when neither convention applies.
	ErrNoFilenameMarker = errors.New("no filename marker")
	// ErrAmbiguousFilename is returned for marker text that cannot be read as
	// a single filename.
	ErrAmbiguousFilename = errors.New("ambiguous filename")
)
