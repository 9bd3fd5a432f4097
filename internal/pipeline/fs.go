package pipeline

import (
	"io"
	"io/fs"
	"os"
)

// FS is the filesystem the pipeline reads logs from.
type FS interface {
	Stat(path string) (fs.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	Open(path string) (io.ReadCloser, error)
}

// OSFS reads from the local disk.
type OSFS struct{}

// Stat implements FS.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// ReadFile implements FS.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Open implements FS.
func (OSFS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
