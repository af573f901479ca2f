package bundle

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/liamg/memoryfs"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// FS is the filesystem Pack reads from and Unpack writes to.
type FS interface {
	ReadFile(name string) ([]byte, error)
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm fs.FileMode) error
	WriteFile(name string, data []byte, perm fs.FileMode) error
}

var _ FS = (*memoryfs.FS)(nil)

// NewMemFS returns an empty in-memory filesystem. Unpacking into it computes
// the same outcomes as a real run without touching disk.
func NewMemFS() *memoryfs.FS {
	return memoryfs.New()
}

// OSFS is the host filesystem. Relative paths resolve against Dir, or the
// working directory when Dir is empty. With Atomic set, WriteFile goes
// through a sibling temporary file renamed into place, so an interrupted
// write never leaves a truncated target.
type OSFS struct {
	Dir    string
	Atomic bool
}

func (o OSFS) path(name string) string {
	if len(o.Dir) == 0 || filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(o.Dir, name)
}

func (o OSFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(o.path(name))
}

func (o OSFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(o.path(name))
}

func (o OSFS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(o.path(path), perm)
}

func (o OSFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if !o.Atomic {
		return os.WriteFile(o.path(name), data, perm)
	}

	return writeAtomic(o.path(name), data, perm)
}

// writeAtomic replaces path with data. A symlinked target is resolved first
// so the link survives, and an existing file keeps its permissions. Hard
// links to the old file are not updated.
func writeAtomic(path string, data []byte, perm fs.FileMode) error {
	if target, err := filepath.EvalSymlinks(path); err == nil {
		path = target
	}

	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}

	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(name)

		return err
	}

	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)

		return err
	}

	if err := os.Rename(name, path); err != nil {
		os.Remove(name)

		return err
	}

	return nil
}
