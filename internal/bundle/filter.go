package bundle

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

type pattern struct {
	text string
	glob glob.Glob
}

// Filter selects extracted files by glob. A path passes when it matches at
// least one include pattern (or there are none) and no exclude pattern.
// Patterns use '/' as the separator, so '*' stays within one directory and
// '**' crosses directories.
type Filter struct {
	include []pattern
	exclude []pattern
}

// NewFilter compiles the include and exclude patterns. It returns nil when
// both lists are empty.
func NewFilter(include, exclude []string) (*Filter, error) {
	if len(include) == 0 && len(exclude) == 0 {
		return nil, nil //nolint:nilnil
	}

	var (
		f   Filter
		err error
	)

	if f.include, err = compile(include); err != nil {
		return nil, err
	}

	if f.exclude, err = compile(exclude); err != nil {
		return nil, err
	}

	return &f, nil
}

func compile(texts []string) ([]pattern, error) {
	patterns := make([]pattern, 0, len(texts))

	for _, text := range texts {
		g, err := glob.Compile(text, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", text, err)
		}

		patterns = append(patterns, pattern{text: text, glob: g})
	}

	return patterns, nil
}

// Allow reports whether path passes the filter. When it does not, the
// returned string names the pattern responsible (empty when no include
// pattern matched).
func (f *Filter) Allow(path string) (bool, string) {
	if f == nil {
		return true, ""
	}

	path = filepath.ToSlash(path)

	for _, p := range f.exclude {
		if p.glob.Match(path) {
			return false, p.text
		}
	}

	if len(f.include) == 0 {
		return true, ""
	}

	for _, p := range f.include {
		if p.glob.Match(path) {
			return true, ""
		}
	}

	return false, ""
}
