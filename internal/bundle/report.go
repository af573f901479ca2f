package bundle

import (
	"errors"
	"fmt"
)

// Reason classifies a rejected file or block.
type Reason int

const (
	InputNotFound Reason = iota + 1
	BinaryRejected
	ReadFailed
	NoFilenameMarker
	AmbiguousFilename
	MissingClosingFence
	UnsafePath
	DirectoryCreateFailed
	WriteFailed
	FatalDocumentUnreadable
)

func (r Reason) String() string {
	switch r {
	case InputNotFound:
		return "file not found"
	case BinaryRejected:
		return "not a text file"
	case ReadFailed:
		return "read failed"
	case NoFilenameMarker:
		return "no filename marker"
	case AmbiguousFilename:
		return "ambiguous filename"
	case MissingClosingFence:
		return "missing closing fence"
	case UnsafePath:
		return "unsafe path"
	case DirectoryCreateFailed:
		return "directory create failed"
	case WriteFailed:
		return "write failed"
	case FatalDocumentUnreadable:
		return "document unreadable"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Locator points at a rejected item: a path when one is known, otherwise a
// document line.
type Locator struct {
	Path string
	Line int
}

func (l Locator) String() string {
	switch {
	case len(l.Path) != 0:
		return l.Path
	case l.Line > 0:
		return fmt.Sprintf("line %d", l.Line)
	default:
		return "N/A"
	}
}

// ExtractionOutcome is one of [Extracted], [Overwritten], [Skipped] or
// [Rejected].
type ExtractionOutcome interface {
	extractionOutcome()
}

// PackOutcome is one of [Included] or [Rejected].
type PackOutcome interface {
	packOutcome()
}

// Extracted is a block written to a path not written before in the run.
type Extracted struct {
	Path string
	Line int
}

// Overwritten is a block written to a path an earlier block already wrote.
type Overwritten struct {
	Path string
	Line int
}

// Skipped is a block left out by the include/exclude filter.
type Skipped struct {
	Path    string
	Line    int
	Pattern string
}

// Included is a file embedded in the packed document.
type Included struct {
	Path     string
	Lang     string
	Encoding string
}

// Rejected is a file or block that could not be processed. Err carries the
// underlying cause when there is one.
type Rejected struct {
	Locator Locator
	Reason  Reason
	Err     error
}

// Detail describes the rejection for humans.
func (r Rejected) Detail() string {
	if r.Err == nil {
		return r.Reason.String()
	}

	return r.Err.Error()
}

func (Extracted) extractionOutcome()   {}
func (Overwritten) extractionOutcome() {}
func (Skipped) extractionOutcome()     {}
func (Rejected) extractionOutcome()    {}
func (Included) packOutcome()          {}
func (Rejected) packOutcome()          {}

// Tally counts outcomes by kind.
type Tally struct {
	Included    int
	Extracted   int
	Overwritten int
	Skipped     int
	Rejected    int
}

// PackReport is the result of one [Pack] call.
type PackReport struct {
	FilesSeen int
	Outcomes  []PackOutcome
}

// Tally counts the report's outcomes.
func (r PackReport) Tally() Tally {
	var t Tally

	for _, o := range r.Outcomes {
		switch o.(type) {
		case Included:
			t.Included++
		case Rejected:
			t.Rejected++
		}
	}

	return t
}

// Rejections returns the rejected outcomes in order.
func (r PackReport) Rejections() []Rejected {
	var out []Rejected

	for _, o := range r.Outcomes {
		if rej, ok := o.(Rejected); ok {
			out = append(out, rej)
		}
	}

	return out
}

// ExtractionReport is the result of one [Unpack] call. BlocksFound counts
// well-formed blocks; unterminated fences appear only as rejections.
type ExtractionReport struct {
	BlocksFound int
	Outcomes    []ExtractionOutcome
}

// Tally counts the report's outcomes.
func (r ExtractionReport) Tally() Tally {
	var t Tally

	for _, o := range r.Outcomes {
		switch o.(type) {
		case Extracted:
			t.Extracted++
		case Overwritten:
			t.Overwritten++
		case Skipped:
			t.Skipped++
		case Rejected:
			t.Rejected++
		}
	}

	return t
}

// Rejections returns the rejected outcomes in order.
func (r ExtractionReport) Rejections() []Rejected {
	var out []Rejected

	for _, o := range r.Outcomes {
		if rej, ok := o.(Rejected); ok {
			out = append(out, rej)
		}
	}

	return out
}

// ErrDocumentUnreadable is returned by [Unpack] when the document itself
// cannot be read or decoded. Nothing is extracted in that case.
var ErrDocumentUnreadable = errors.New("document unreadable")
