// Package fileio moves containers and merge inputs between disk and memory.
//
// Files are memory-mapped read-only so that list/verify and merge operate
// on the file contents without copying them onto the heap. Containers are
// written through a temporary file in the destination directory, fsynced,
// and renamed into place so a reader never observes a partial container.
package fileio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// ErrContainerTooLarge indicates a file exceeds the caller's size ceiling.
var ErrContainerTooLarge = errors.New("fwmerge: container exceeds size limit")

// DefaultFileMode is the permission used for new containers.
const DefaultFileMode os.FileMode = 0644

// writeBufferSize is the size of the buffered writer wrapping the temp file.
const writeBufferSize = 64 * 1024 // 64KB

// MappedFile is a read-only memory-mapped view of a file.
// Empty files are represented without a mapping.
type MappedFile struct {
	path string
	data mmap.MMap
	size int64
}

// Open maps the file at path read-only. If maxSize is positive and the
// file is larger, Open fails with ErrContainerTooLarge before mapping.
func Open(path string, maxSize int64) (*MappedFile, error) {
	f, err := os.Open(path) //nolint:gosec // G304: Path is user-provided
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	size := info.Size()
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrContainerTooLarge, path, size, maxSize)
	}

	m := &MappedFile{path: path, size: size}
	if size == 0 {
		return m, nil
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	m.data = data

	return m, nil
}

// Bytes returns the mapped contents. The slice is invalid after Close.
func (m *MappedFile) Bytes() []byte {
	return m.data
}

// Size returns the file size in bytes.
func (m *MappedFile) Size() int64 {
	return m.size
}

// Path returns the path the file was opened from.
func (m *MappedFile) Path() string {
	return m.path
}

// Close unmaps the file. It is safe to call more than once.
func (m *MappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	err := m.data.Unmap()
	m.data = nil
	if err != nil {
		return fmt.Errorf("failed to unmap %s: %w", m.path, err)
	}
	return nil
}

// WriteAtomic creates path with the bytes produced by fill.
//
// fill writes into a buffered temporary file next to path. On success the
// temp file is fsynced, renamed over path and the directory is fsynced.
// On any failure the temp file is removed and path is left untouched.
func WriteAtomic(path string, mode os.FileMode, fill func(w io.Writer) error) error {
	if mode == 0 {
		mode = DefaultFileMode
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	bw := bufio.NewWriterSize(tmp, writeBufferSize)
	if err := fill(bw); err != nil {
		cleanup()
		return err
	}
	if err := bw.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// Fsync to ensure data is on disk
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("failed to set mode on temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	// Atomic rename (overwrites existing file)
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}

	// Fsync directory to ensure rename is durable
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}

	return nil
}

// syncDir fsyncs a directory to ensure metadata changes are durable.
func syncDir(path string) error {
	d, err := os.Open(path) //nolint:gosec // G304: Path is derived from user-provided output path
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}
