package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/fwmerge/internal/format"
)

func TestFormatInputSpec(t *testing.T) {
	tests := []struct {
		t    format.SegmentType
		path string
		want string
	}{
		{format.SegmentTypeSystemImage, "fw.bin", "system=fw.bin"},
		{format.SegmentTypeApplication, "/tmp/app.bin", "application=/tmp/app.bin"},
		{format.SegmentTypeNetworkInfo, "net.bin", "network=net.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			should := require.New(t)
			should.Equal(tt.want, FormatInputSpec(tt.t, tt.path))

			typ, path, err := ParseInputSpec(tt.want)
			should.NoError(err)
			should.Equal(tt.t, typ)
			should.Equal(tt.path, path)
		})
	}
}

func TestParseInputSpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"missing separator", "system"},
		{"empty path", "system="},
		{"unknown type", "bootloader=boot.bin"},
		{"empty type", "=fw.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseInputSpec(tt.spec)
			require.Error(t, err)
		})
	}
}

func TestParseInputSpec_PathWithSeparator(t *testing.T) {
	should := require.New(t)

	typ, path, err := ParseInputSpec("app=build/a=b.bin")
	should.NoError(err)
	should.Equal(format.SegmentTypeApplication, typ)
	should.Equal("build/a=b.bin", path)
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0600))
	return path
}

func TestDiscoverSources(t *testing.T) {
	should := require.New(t)
	dir := t.TempDir()

	sys := writeFile(t, dir, "system.bin", 100)
	app := writeFile(t, dir, "app.bin", 50)
	net := writeFile(t, dir, "net.bin", 0)

	// Supplied out of order
	sources, err := DiscoverSources([]string{
		"network=" + net,
		"application=" + app,
		"system=" + sys,
	})
	should.NoError(err)
	should.Len(sources, 3)

	should.Equal(format.SegmentTypeSystemImage, sources[0].Type)
	should.Equal(sys, sources[0].Path)
	should.Equal(int64(100), sources[0].Size)

	should.Equal(format.SegmentTypeApplication, sources[1].Type)
	should.Equal(int64(50), sources[1].Size)

	should.Equal(format.SegmentTypeNetworkInfo, sources[2].Type)
	should.Equal(int64(0), sources[2].Size)
}

func TestDiscoverSources_Errors(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "app.bin", 10)

	tests := []struct {
		name  string
		specs []string
	}{
		{"no inputs", nil},
		{"missing file", []string{"system=" + filepath.Join(dir, "missing.bin")}},
		{"directory", []string{"system=" + dir}},
		{"duplicate type", []string{"application=" + app, "app=" + app}},
		{"bad spec", []string{app}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DiscoverSources(tt.specs)
			require.Error(t, err)
		})
	}
}

func TestSortReferenceOrder_Stable(t *testing.T) {
	should := require.New(t)

	sources := []*SourceInfo{
		{Type: format.SegmentTypeNetworkInfo, Path: "n"},
		{Type: format.SegmentTypeApplication, Path: "a1"},
		{Type: format.SegmentTypeSystemImage, Path: "s"},
		{Type: format.SegmentTypeApplication, Path: "a2"},
	}
	SortReferenceOrder(sources)

	var paths []string
	for _, s := range sources {
		paths = append(paths, s.Path)
	}
	should.Equal([]string{"s", "a1", "a2", "n"}, paths)

	should.Error(ValidateSourceSet(sources))
	should.NoError(ValidateSourceSet(sources[:2]))
}
