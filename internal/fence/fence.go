// Package fence finds fenced blocks in a line-oriented document.
//
// A block opens on a line of three backticks optionally followed by a
// language tag and closes on the next bare three-backtick line. Blocks do not
// nest: a bare fence inside a block always closes it.
package fence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	reOpen  = regexp.MustCompile("^```([A-Za-z0-9_+.-]*)\\s*$")
	reClose = regexp.MustCompile("^```\\s*$")
)

// Block is one fenced region. Line numbers are 1-based and refer to the
// fence lines themselves; Lines holds everything strictly between them.
type Block struct {
	OpenLine  int
	CloseLine int
	Lang      string
	Lines     []string
}

// Unterminated records a fence-open line with no matching close.
type Unterminated struct {
	OpenLine int
	Lang     string
}

func (u Unterminated) Error() string {
	return fmt.Sprintf("line %d: %s", u.OpenLine, ErrMissingClosingFence)
}

func (u Unterminated) Unwrap() error {
	return ErrMissingClosingFence
}

// ErrMissingClosingFence is wrapped by every [Unterminated].
var ErrMissingClosingFence = errors.New("missing closing fence")

// State is a scanner state.
type State int

const (
	// Idle is outside any block.
	Idle State = iota
	// InBlock has just consumed a fence-open line and no content yet.
	InBlock
	// AwaitingClose has consumed at least one content line.
	AwaitingClose
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InBlock:
		return "in-block"
	case AwaitingClose:
		return "awaiting-close"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SplitLines splits a document on "\n". A carriage return before the newline
// stays on its line, so CRLF content survives a scan unchanged.
func SplitLines(doc string) []string {
	return strings.Split(doc, "\n")
}

// IsOpen reports whether line is a fence-open line and returns its tag.
func IsOpen(line string) (string, bool) {
	m := reOpen.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}

	return m[1], true
}

// IsClose reports whether line is a bare fence.
func IsClose(line string) bool {
	return reClose.MatchString(line)
}

// Scan walks lines and returns the well-formed blocks and the unterminated
// fences, each in document order.
//
// While looking for a close, a fence-open line carrying a tag ends the search:
// the pending fence is reported as unterminated and scanning resumes on the
// line after it. The same happens at end of input. Either way a broken fence
// never swallows a later tagged block.
func Scan(lines []string) ([]Block, []Unterminated) {
	s := &scanner{lines: lines}
	s.run()

	return s.blocks, s.unterminated
}

type scanner struct {
	lines []string
	pos   int
	state State

	open    int
	lang    string
	content []string

	blocks       []Block
	unterminated []Unterminated
}

func (s *scanner) run() {
	for {
		if s.pos >= len(s.lines) {
			if s.state == Idle {
				return
			}

			s.abandon()

			continue
		}

		s.step(s.lines[s.pos])
	}
}

func (s *scanner) step(line string) {
	if s.state == Idle {
		if tag, ok := IsOpen(line); ok {
			s.open, s.lang, s.content = s.pos, tag, nil
			s.state = InBlock
		}

		s.pos++

		return
	}

	if IsClose(line) {
		s.emit()

		return
	}

	if tag, ok := IsOpen(line); ok && len(tag) != 0 {
		s.abandon()

		return
	}

	s.content = append(s.content, line)
	s.state = AwaitingClose
	s.pos++
}

func (s *scanner) emit() {
	s.blocks = append(s.blocks, Block{
		OpenLine:  s.open + 1,
		CloseLine: s.pos + 1,
		Lang:      s.lang,
		Lines:     s.content,
	})

	s.state = Idle
	s.pos++
}

func (s *scanner) abandon() {
	s.unterminated = append(s.unterminated, Unterminated{OpenLine: s.open + 1, Lang: s.lang})

	s.state = Idle
	s.pos = s.open + 1
}
