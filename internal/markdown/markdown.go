// Package markdown reads a compacted document the way a Markdown renderer
// does, so fence lines the line scanner and a renderer disagree on can be
// pointed out before unpacking.
package markdown

import (
	"fmt"

	"github.com/ezerfernandes/mdpack/internal/fence"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Fence is a fenced code block as a CommonMark parser sees it. Lines are
// 1-based; OpenLine is 0 when the opening line cannot be located (a bare
// fence with no content).
type Fence struct {
	Lang     string
	OpenLine int
	EndLine  int
}

// Fences parses source and returns its fenced code blocks in document order.
func Fences(source []byte) []Fence {
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var fences []Fence

	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		fcb := asFencedCodeBlock(node, entering)
		if fcb == nil {
			return ast.WalkContinue, nil
		}

		f := Fence{Lang: string(fcb.Language(source))}
		f.OpenLine, f.EndLine = extractLines(fcb, source)
		fences = append(fences, f)

		return ast.WalkContinue, nil
	})

	return fences
}

func asFencedCodeBlock(node ast.Node, entering bool) *ast.FencedCodeBlock {
	if entering || node.Kind() != ast.KindFencedCodeBlock {
		return nil
	}

	if fcb, ok := node.(*ast.FencedCodeBlock); ok {
		return fcb
	}

	return nil
}

func extractLines(fcb *ast.FencedCodeBlock, source []byte) (int, int) {
	var openLine, endLine int

	lines := fcb.Lines()

	if fcb.Info != nil {
		openLine = lineAt(source, fcb.Info.Segment.Start)
	} else if lines.Len() > 0 {
		openLine = lineAt(source, lines.At(0).Start) - 1
	}

	if lines.Len() > 0 {
		endLine = lineAt(source, lines.At(lines.Len()-1).Stop-1)
	} else {
		endLine = openLine
	}

	return openLine, endLine
}

func lineAt(source []byte, offset int) int {
	line := 1

	for i := 0; i < offset && i < len(source); i++ {
		if source[i] == '\n' {
			line++
		}
	}

	return line
}

// Kind tells which reader saw a block the other did not.
type Kind int

const (
	// RendererOnly is a code block a renderer shows that unpacking ignores,
	// such as an indented or tilde fence.
	RendererOnly Kind = iota + 1
	// ScannerOnly is a block unpacking extracts that a renderer does not
	// open at the same line.
	ScannerOnly
)

func (k Kind) String() string {
	switch k {
	case RendererOnly:
		return "renderer only"
	case ScannerOnly:
		return "scanner only"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Finding is one disagreement between the line scanner and the renderer.
type Finding struct {
	Line int
	Lang string
	Kind Kind
}

func (f Finding) String() string {
	return fmt.Sprintf("line %d: %s block (%s)", f.Line, f.Kind, f.Lang)
}

// Compare matches scanned blocks against rendered fences by opening line and
// returns the blocks only one side found, ordered by line. A rendered fence
// whose opening line is unknown can only be an empty bare block, so it is
// paired with an empty bare scanned block instead.
func Compare(blocks []fence.Block, fences []Fence) []Finding {
	scanned := make(map[int]bool, len(blocks))
	for _, b := range blocks {
		scanned[b.OpenLine] = true
	}

	var unplaced int

	rendered := make(map[int]bool, len(fences))
	for _, f := range fences {
		if f.OpenLine > 0 {
			rendered[f.OpenLine] = true
		} else {
			unplaced++
		}
	}

	var findings []Finding

	bi, fi := 0, 0

	for bi < len(blocks) || fi < len(fences) {
		if fi < len(fences) && (bi >= len(blocks) || fences[fi].OpenLine < blocks[bi].OpenLine) {
			if f := fences[fi]; f.OpenLine > 0 && !scanned[f.OpenLine] {
				findings = append(findings, Finding{Line: f.OpenLine, Lang: f.Lang, Kind: RendererOnly})
			}

			fi++

			continue
		}

		b := blocks[bi]

		switch {
		case rendered[b.OpenLine]:
		case unplaced > 0 && len(b.Lang) == 0 && len(b.Lines) == 0:
			unplaced--
		default:
			findings = append(findings, Finding{Line: b.OpenLine, Lang: b.Lang, Kind: ScannerOnly})
		}

		bi++
	}

	return findings
}
