// Package document turns caller-supplied documents into searchable tools
// that agents consult while drafting.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Handle is an opaque readable document. ID must be stable for the same
// underlying content within a run.
type Handle interface {
	ID() string
	Name() string
	Open() (io.ReadCloser, error)
}

// File is a Handle backed by a path on disk.
type File struct {
	path string
}

// FromPath validates that path is a readable regular file and returns a handle for it.
func FromPath(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return &File{path: abs}, nil
}

// FromPaths builds handles for every path, failing on the first bad one.
func FromPaths(paths []string) ([]Handle, error) {
	handles := make([]Handle, 0, len(paths))
	for _, p := range paths {
		f, err := FromPath(p)
		if err != nil {
			return nil, err
		}
		handles = append(handles, f)
	}
	return handles, nil
}

func (f *File) ID() string                   { return f.path }
func (f *File) Name() string                 { return filepath.Base(f.path) }
func (f *File) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// Memory is a Handle over an in-memory byte slice.
type Memory struct {
	id   string
	name string
	data []byte
}

// NewMemory wraps data. The ID is derived from the name and content.
func NewMemory(name string, data []byte) *Memory {
	sum := sha256.Sum256(append([]byte(name+"\x00"), data...))
	return &Memory{
		id:   "mem:" + hex.EncodeToString(sum[:8]),
		name: name,
		data: data,
	}
}

func (m *Memory) ID() string   { return m.id }
func (m *Memory) Name() string { return m.name }
func (m *Memory) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

// Names returns the display names of handles, in order.
func Names(handles []Handle) []string {
	names := make([]string, len(handles))
	for i, h := range handles {
		names[i] = h.Name()
	}
	return names
}
