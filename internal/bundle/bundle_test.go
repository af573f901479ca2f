package bundle

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liamg/memoryfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()

	logger := zerolog.New(zerolog.NewTestWriter(t))

	return logger.WithContext(context.Background())
}

func memFS(t *testing.T, files map[string]string) *memoryfs.FS {
	t.Helper()

	fsys := memoryfs.New()

	for name, content := range files {
		require.NoError(t, fsys.MkdirAll(filepath.Dir(name), dirMode))
		require.NoError(t, fsys.WriteFile(name, []byte(content), fileMode))
	}

	return fsys
}

func readString(t *testing.T, fsys FS, name string) string {
	t.Helper()

	data, err := fsys.ReadFile(name)
	require.NoError(t, err)

	return string(data)
}

func unpackString(t *testing.T, fsys FS, doc string, opts UnpackOptions) ExtractionReport {
	t.Helper()

	report, err := Unpack(testContext(t), fsys, []byte(doc), opts)
	require.NoError(t, err)

	return report
}

func TestPackLayout(t *testing.T) {
	fsys := memFS(t, map[string]string{"a.go": "package a\n", "notes": "n"})

	report, doc := Pack(testContext(t), fsys, []string{"a.go", "notes"}, PackOptions{})

	assert.Equal(t, "# a.go\n```go\npackage a\n\n```\n\n# notes\n```txt\nn\n```\n\n", string(doc))
	assert.Equal(t, 2, report.FilesSeen)
	assert.Equal(t, []PackOutcome{
		Included{Path: "a.go", Lang: "go", Encoding: "utf-8"},
		Included{Path: "notes", Lang: "txt", Encoding: "utf-8"},
	}, report.Outcomes)
}

func TestPackIsDeterministic(t *testing.T) {
	fsys := memFS(t, map[string]string{"x.py": "print(1)\n", "y/z.sh": "echo\n"})
	paths := []string{"y/z.sh", "x.py"}

	_, first := Pack(testContext(t), fsys, paths, PackOptions{})
	_, second := Pack(testContext(t), fsys, paths, PackOptions{})

	assert.Equal(t, first, second)
}

func TestPackRejections(t *testing.T) {
	fsys := memFS(t, map[string]string{
		"ok.txt":       "fine",
		"image.txt":    "GIF89a\x00\x01\x02",
		"dir/keep.txt": "k",
	})

	var observed []PackOutcome

	report, doc := Pack(testContext(t), fsys, []string{"missing.go", "image.txt", "dir", "ok.txt"}, PackOptions{
		Observe: func(o PackOutcome) { observed = append(observed, o) },
	})

	require.Len(t, report.Outcomes, 4)
	assert.Equal(t, Rejected{Locator: Locator{Path: "missing.go"}, Reason: InputNotFound}, report.Outcomes[0])
	assert.Equal(t, Rejected{Locator: Locator{Path: "image.txt"}, Reason: BinaryRejected}, report.Outcomes[1])

	dirRej, ok := report.Outcomes[2].(Rejected)
	require.True(t, ok)
	assert.Equal(t, ReadFailed, dirRej.Reason)
	require.ErrorIs(t, dirRej.Err, errIsDirectory)

	assert.Equal(t, Included{Path: "ok.txt", Lang: "txt", Encoding: "utf-8"}, report.Outcomes[3])
	assert.Equal(t, report.Outcomes, observed)
	assert.Equal(t, Tally{Included: 1, Rejected: 3}, report.Tally())
	assert.Len(t, report.Rejections(), 3)
	assert.Equal(t, "# ok.txt\n```txt\nfine\n```\n\n", string(doc))
}

func TestPackDecodesLatin1(t *testing.T) {
	fsys := memFS(t, map[string]string{"legacy.txt": "caf\xe9"})

	report, doc := Pack(testContext(t), fsys, []string{"legacy.txt"}, PackOptions{})

	assert.Equal(t, Included{Path: "legacy.txt", Lang: "txt", Encoding: "latin-1"}, report.Outcomes[0])
	assert.Contains(t, string(doc), "\ncafé\n")
}

func TestPackWarnsOnUnresolvableHeading(t *testing.T) {
	name := "all `three\" 'quotes.txt"
	fsys := memFS(t, map[string]string{name: "x", "fine name.txt": "y"})

	var logs bytes.Buffer

	ctx := zerolog.New(&logs).WithContext(context.Background())
	report, doc := Pack(ctx, fsys, []string{name, "fine name.txt"}, PackOptions{})

	assert.Equal(t, 2, report.Tally().Included)
	assert.Contains(t, string(doc), "# "+name+"\n")
	assert.Contains(t, logs.String(), "will not unpack")
	assert.Equal(t, 1, strings.Count(logs.String(), "will not unpack"), "quoted paths do not warn")

	unpacked := unpackString(t, memFS(t, nil), string(doc), UnpackOptions{})
	assert.Equal(t, Tally{Extracted: 1, Rejected: 1}, unpacked.Tally())
}

func TestPackFileSkipsEmptyOutput(t *testing.T) {
	fsys := memFS(t, nil)

	report, err := PackFile(testContext(t), fsys, []string{"nope.txt"}, "out.md", PackOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Tally().Rejected)

	_, err = fsys.Stat("out.md")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPackFileWritesDocument(t *testing.T) {
	fsys := memFS(t, map[string]string{"a.txt": "A"})

	_, err := PackFile(testContext(t), fsys, []string{"a.txt"}, "out.md", PackOptions{})
	require.NoError(t, err)

	assert.Equal(t, "# a.txt\n```txt\nA\n```\n\n", readString(t, fsys, "out.md"))
}

func TestRoundTrip(t *testing.T) {
	files := []struct{ name, content string }{
		{"main.go", "package main\n\nfunc main() {}\n"},
		{"web/src/app.tsx", "export const App = () => null\n"},
		{"empty.txt", ""},
		{"noeol.md", "# Title\n\nno trailing newline"},
		{"crlf.bat", "@echo off\r\necho hi\r\n"},
		{"blank-lines.txt", "\n\n\n"},
		{"my notes/todo list.txt", "- [ ] pack\n"},
		{".env", "KEY=value\n"},
	}

	source := memoryfs.New()
	paths := make([]string, 0, len(files))

	for _, f := range files {
		require.NoError(t, source.MkdirAll(filepath.Dir(f.name), dirMode))
		require.NoError(t, source.WriteFile(f.name, []byte(f.content), fileMode))

		paths = append(paths, f.name)
	}

	packReport, doc := Pack(testContext(t), source, paths, PackOptions{})
	require.Empty(t, packReport.Rejections())

	target := memoryfs.New()
	report := unpackString(t, target, string(doc), UnpackOptions{})

	require.Empty(t, report.Rejections())
	assert.Equal(t, len(files), report.BlocksFound)
	assert.Equal(t, Tally{Extracted: len(files)}, report.Tally())

	for _, f := range files {
		assert.Equal(t, f.content, readString(t, target, f.name), f.name)
	}
}

func TestUnpackFenceRobustness(t *testing.T) {
	fsys := memoryfs.New()
	doc := "# broken.py\n```python\nprint(1)\n\n# good.txt\n```txt\nhello\n```\n"

	report := unpackString(t, fsys, doc, UnpackOptions{})

	require.Len(t, report.Outcomes, 2)

	rej, ok := report.Outcomes[0].(Rejected)
	require.True(t, ok)
	assert.Equal(t, MissingClosingFence, rej.Reason)
	assert.Equal(t, Locator{Line: 2}, rej.Locator)

	assert.Equal(t, Extracted{Path: "good.txt", Line: 6}, report.Outcomes[1])
	assert.Equal(t, "hello", readString(t, fsys, "good.txt"))
	assert.Equal(t, 1, report.BlocksFound)
}

func TestUnpackMarkerPriority(t *testing.T) {
	fsys := memoryfs.New()

	report := unpackString(t, fsys, "# a.txt\n```txt\n// b.txt\nbody\n```\n", UnpackOptions{})

	assert.Equal(t, []ExtractionOutcome{Extracted{Path: "a.txt", Line: 2}}, report.Outcomes)
	assert.Equal(t, "// b.txt\nbody", readString(t, fsys, "a.txt"))

	_, err := fsys.Stat("b.txt")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestUnpackAfterComment(t *testing.T) {
	fsys := memoryfs.New()

	report := unpackString(t, fsys, "Intro text\n\n```go\n// pkg/util/util.go\npackage util\n```\n", UnpackOptions{})

	assert.Equal(t, []ExtractionOutcome{Extracted{Path: "pkg/util/util.go", Line: 3}}, report.Outcomes)
	assert.Equal(t, "package util", readString(t, fsys, "pkg/util/util.go"))
}

func TestUnpackWhitespaceFilenames(t *testing.T) {
	fsys := memoryfs.New()
	doc := "# my file.txt\n```txt\nx\n```\n\n# `my file.txt`\n```txt\ny\n```\n"

	report := unpackString(t, fsys, doc, UnpackOptions{})

	require.Len(t, report.Outcomes, 2)

	rej, ok := report.Outcomes[0].(Rejected)
	require.True(t, ok)
	assert.Equal(t, AmbiguousFilename, rej.Reason)
	assert.Equal(t, Locator{Line: 2}, rej.Locator)

	assert.Equal(t, Extracted{Path: "my file.txt", Line: 7}, report.Outcomes[1])
	assert.Equal(t, "y", readString(t, fsys, "my file.txt"))
}

func TestUnpackNoMarker(t *testing.T) {
	report := unpackString(t, memoryfs.New(), "Example:\n```sh\nls\n```\n", UnpackOptions{})

	assert.Equal(t, []ExtractionOutcome{
		Rejected{Locator: Locator{Line: 2}, Reason: NoFilenameMarker, Err: report.Rejections()[0].Err},
	}, report.Outcomes)
	assert.Equal(t, "no filename marker", report.Rejections()[0].Detail())
}

func TestUnpackOverwrite(t *testing.T) {
	fsys := memoryfs.New()
	doc := "# out.txt\n```txt\nA\n```\n\n# ./out.txt\n```txt\nB\n```\n"

	report := unpackString(t, fsys, doc, UnpackOptions{})

	assert.Equal(t, []ExtractionOutcome{
		Extracted{Path: "out.txt", Line: 2},
		Overwritten{Path: "./out.txt", Line: 7},
	}, report.Outcomes)
	assert.Equal(t, Tally{Extracted: 1, Overwritten: 1}, report.Tally())
	assert.Equal(t, "B", readString(t, fsys, "out.txt"))
}

func TestUnpackDirectoryCreateFailed(t *testing.T) {
	fsys := memFS(t, map[string]string{"blocker": "a file, not a directory"})

	report := unpackString(t, fsys, "# blocker/x.txt\n```txt\nx\n```\n", UnpackOptions{})

	rej := report.Rejections()
	require.Len(t, rej, 1)
	assert.Equal(t, DirectoryCreateFailed, rej[0].Reason)
	assert.Equal(t, Locator{Path: "blocker/x.txt"}, rej[0].Locator)
}

func TestUnpackWriteFailed(t *testing.T) {
	for _, atomic := range []bool{false, true} {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, "taken.txt"), dirMode))

		fsys := OSFS{Dir: dir, Atomic: atomic}
		doc := "# taken.txt\n```txt\nx\n```\n\n# next.txt\n```txt\nok\n```\n"

		report := unpackString(t, fsys, doc, UnpackOptions{})

		rej := report.Rejections()
		require.Len(t, rej, 1, "atomic=%v", atomic)
		assert.Equal(t, WriteFailed, rej[0].Reason)
		require.Error(t, rej[0].Err)
		assert.Equal(t, Extracted{Path: "next.txt", Line: 7}, report.Outcomes[1])
		assert.Equal(t, "ok", readString(t, fsys, "next.txt"))
	}
}

func TestUnpackConfine(t *testing.T) {
	fsys := memoryfs.New()
	doc := "# ../escape.txt\n```txt\nx\n```\n\n# /etc/abs.txt\n```txt\ny\n```\n\n# in/side.txt\n```txt\nz\n```\n"

	report := unpackString(t, fsys, doc, UnpackOptions{Confine: true})

	rej := report.Rejections()
	require.Len(t, rej, 2)
	assert.Equal(t, UnsafePath, rej[0].Reason)
	assert.Equal(t, Locator{Path: "../escape.txt"}, rej[0].Locator)
	require.ErrorIs(t, rej[0].Err, errOutsideRoot)
	assert.Equal(t, UnsafePath, rej[1].Reason)
	assert.Equal(t, "z", readString(t, fsys, "in/side.txt"))
}

func TestUnpackFilter(t *testing.T) {
	filter, err := NewFilter([]string{"src/**"}, []string{"**_test.go"})
	require.NoError(t, err)

	fsys := memoryfs.New()
	doc := "# src/a/a.go\n```go\na\n```\n\n# src/a/a_test.go\n```go\nt\n```\n\n# docs/readme.md\n```md\nr\n```\n"

	report := unpackString(t, fsys, doc, UnpackOptions{Filter: filter})

	assert.Equal(t, []ExtractionOutcome{
		Extracted{Path: "src/a/a.go", Line: 2},
		Skipped{Path: "src/a/a_test.go", Line: 7, Pattern: "**_test.go"},
		Skipped{Path: "docs/readme.md", Line: 12},
	}, report.Outcomes)

	_, err = fsys.Stat("docs/readme.md")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewFilter(t *testing.T) {
	filter, err := NewFilter(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, filter)

	ok, _ := filter.Allow("anything")
	assert.True(t, ok)

	_, err = NewFilter([]string{"[unclosed"}, nil)
	require.Error(t, err)
}

func TestUnpackDocumentUnreadable(t *testing.T) {
	_, err := Unpack(testContext(t), memoryfs.New(), []byte("# a.txt\n```txt\n\x00\n```\n"), UnpackOptions{})

	require.ErrorIs(t, err, ErrDocumentUnreadable)
}

func TestUnpackLatin1Document(t *testing.T) {
	fsys := memoryfs.New()

	unpackString(t, fsys, "# a.txt\n```txt\ncaf\xe9\n```\n", UnpackOptions{})

	assert.Equal(t, "café", readString(t, fsys, "a.txt"))
}

func TestUnpackAfterWriteAndObserve(t *testing.T) {
	type call struct{ path, lang string }

	var (
		calls    []call
		observed []ExtractionOutcome
	)

	opts := UnpackOptions{
		AfterWrite: func(_ context.Context, path, lang string) error {
			calls = append(calls, call{path, lang})

			return os.ErrPermission
		},
		Observe: func(o ExtractionOutcome) { observed = append(observed, o) },
	}

	doc := "# a.go\n```go\nx\n```\n\nno marker\n```\ny\n```\n"
	report := unpackString(t, memoryfs.New(), doc, opts)

	assert.Equal(t, []call{{"a.go", "go"}}, calls)
	assert.Equal(t, report.Outcomes, observed)
	assert.Equal(t, Tally{Extracted: 1, Rejected: 1}, report.Tally(), "hook errors are not rejections")
}

func TestOSFSAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	fsys := OSFS{Dir: dir, Atomic: true}

	require.NoError(t, fsys.MkdirAll("sub", dirMode))
	require.NoError(t, fsys.WriteFile("sub/f.txt", []byte("one"), fileMode))
	require.NoError(t, fsys.WriteFile("sub/f.txt", []byte("two"), fileMode))

	assert.Equal(t, "two", readString(t, fsys, "sub/f.txt"))

	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files left behind")

	info, err := fsys.Stat("sub/f.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(fileMode), info.Mode().Perm())
}

func TestOSFSAtomicWriteKeepsModeAndLinks(t *testing.T) {
	dir := t.TempDir()
	fsys := OSFS{Dir: dir, Atomic: true}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.sh"), []byte("old"), 0o700))
	require.NoError(t, os.Chmod(filepath.Join(dir, "script.sh"), 0o700))
	require.NoError(t, fsys.WriteFile("script.sh", []byte("new"), fileMode))

	info, err := os.Stat(filepath.Join(dir, "script.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.txt"), []byte("old"), fileMode))
	require.NoError(t, os.Symlink("real.txt", filepath.Join(dir, "link.txt")))
	require.NoError(t, fsys.WriteFile("link.txt", []byte("through"), fileMode))

	link, err := os.Lstat(filepath.Join(dir, "link.txt"))
	require.NoError(t, err)
	assert.NotZero(t, link.Mode()&os.ModeSymlink, "link is kept")
	assert.Equal(t, "through", readString(t, fsys, "real.txt"))
}

func TestOSFSAbsolutePathIgnoresDir(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(t.TempDir(), "abs.txt")

	fsys := OSFS{Dir: dir}
	require.NoError(t, fsys.WriteFile(abs, []byte("a"), fileMode))

	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestLang(t *testing.T) {
	for _, tc := range []struct{ path, want string }{
		{"main.go", "go"},
		{"dir/archive.tar.gz", "gz"},
		{"Makefile", "txt"},
		{".bashrc", "txt"},
		{"config/.env.local", "local"},
		{"x.", "txt"},
		{"weird.c#", "txt"},
		{"lib.c++", "c++"},
	} {
		assert.Equal(t, tc.want, Lang(tc.path), tc.path)
	}
}

func TestHeading(t *testing.T) {
	for _, tc := range []struct{ path, want string }{
		{"plain.txt", "plain.txt"},
		{"my file.txt", "`my file.txt`"},
		{"tick`s file", "\"tick`s file\""},
		{"'quoted'", "`'quoted'`"},
		{"a'b", "a'b"},
	} {
		assert.Equal(t, tc.want, Heading(tc.path), tc.path)
	}
}

func TestReasonAndLocatorStrings(t *testing.T) {
	assert.Equal(t, "file not found", InputNotFound.String())
	assert.Equal(t, "not a text file", BinaryRejected.String())
	assert.Equal(t, "missing closing fence", MissingClosingFence.String())
	assert.Equal(t, "Reason(99)", Reason(99).String())

	assert.Equal(t, "a.txt", Locator{Path: "a.txt", Line: 3}.String())
	assert.Equal(t, "line 3", Locator{Line: 3}.String())
	assert.Equal(t, "N/A", Locator{}.String())
}
