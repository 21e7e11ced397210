package fileio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	should := require.New(t)
	path := filepath.Join(t.TempDir(), "container.bin")
	should.NoError(os.WriteFile(path, []byte("container bytes"), 0600))

	mf, err := Open(path, 0)
	should.NoError(err)
	should.Equal([]byte("container bytes"), mf.Bytes())
	should.Equal(int64(15), mf.Size())
	should.Equal(path, mf.Path())

	should.NoError(mf.Close())
	should.Nil(mf.Bytes())
	should.NoError(mf.Close())
}

func TestOpen_Empty(t *testing.T) {
	should := require.New(t)
	path := filepath.Join(t.TempDir(), "empty.bin")
	should.NoError(os.WriteFile(path, nil, 0600))

	mf, err := Open(path, 0)
	should.NoError(err)
	should.Empty(mf.Bytes())
	should.Equal(int64(0), mf.Size())
	should.NoError(mf.Close())
}

func TestOpen_SizeLimit(t *testing.T) {
	should := require.New(t)
	path := filepath.Join(t.TempDir(), "big.bin")
	should.NoError(os.WriteFile(path, make([]byte, 100), 0600))

	_, err := Open(path, 99)
	should.ErrorIs(err, ErrContainerTooLarge)

	mf, err := Open(path, 100)
	should.NoError(err)
	should.NoError(mf.Close())
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.bin"), 0)
	require.True(t, errors.Is(err, os.ErrNotExist))

	_, err = Open(dir, 0)
	require.Error(t, err)
}

func TestWriteAtomic(t *testing.T) {
	should := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "merged.bin")

	err := WriteAtomic(path, 0, func(w io.Writer) error {
		_, err := w.Write([]byte("segment data"))
		return err
	})
	should.NoError(err)

	data, err := os.ReadFile(path)
	should.NoError(err)
	should.Equal([]byte("segment data"), data)

	info, err := os.Stat(path)
	should.NoError(err)
	should.Equal(DefaultFileMode, info.Mode().Perm())

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	should.NoError(err)
	should.Len(entries, 1)
}

func TestWriteAtomic_Overwrite(t *testing.T) {
	should := require.New(t)
	path := filepath.Join(t.TempDir(), "merged.bin")
	should.NoError(os.WriteFile(path, []byte("old contents that are longer"), 0600))

	err := WriteAtomic(path, 0600, func(w io.Writer) error {
		_, err := io.WriteString(w, "new")
		return err
	})
	should.NoError(err)

	data, err := os.ReadFile(path)
	should.NoError(err)
	should.Equal("new", string(data))
}

func TestWriteAtomic_FillErrorKeepsOriginal(t *testing.T) {
	should := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "merged.bin")
	should.NoError(os.WriteFile(path, []byte("original"), 0600))

	boom := errors.New("boom")
	err := WriteAtomic(path, 0, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	should.ErrorIs(err, boom)

	data, err := os.ReadFile(path)
	should.NoError(err)
	should.Equal("original", string(data))

	entries, err := os.ReadDir(dir)
	should.NoError(err)
	should.Len(entries, 1)
}

func TestWriteAtomic_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "out.bin")
	err := WriteAtomic(path, 0, func(io.Writer) error { return nil })
	require.Error(t, err)
}
