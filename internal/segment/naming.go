// Package segment provides the container writer and reader for fwmerge.
//
// A container is a sequence of segments laid out back-to-back with no
// padding, trailer or global header. Each segment is:
//   - A 16-byte header (version, type, payload length, CRC-16)
//   - The payload bytes, exactly as long as the header declares
//
// The writer emits segments in the order the caller supplies. The reader
// walks any well-formed container regardless of type order or duplicates.
//
// Input naming convention for merge sources:
//   - {type}={path} (e.g., system=firmware.bin, application=app.bin)
package segment

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vnykmshr/fwmerge/internal/format"
)

// InputSpecSeparator separates the type name from the path in an input spec.
const InputSpecSeparator = "="

// FormatInputSpec creates an input spec from a segment type and path.
// Returns e.g. "system=firmware.bin".
func FormatInputSpec(t format.SegmentType, path string) string {
	return shortTypeName(t) + InputSpecSeparator + path
}

// ParseInputSpec extracts the segment type and path from an input spec.
// Returns an error if the spec doesn't match the expected format.
func ParseInputSpec(spec string) (format.SegmentType, string, error) {
	name, path, ok := strings.Cut(spec, InputSpecSeparator)
	if !ok {
		return 0, "", fmt.Errorf("invalid input spec: %s (missing %s)", spec, InputSpecSeparator)
	}
	if path == "" {
		return 0, "", fmt.Errorf("invalid input spec: %s (empty path)", spec)
	}

	t, err := format.ParseSegmentType(name)
	if err != nil {
		return 0, "", fmt.Errorf("invalid input spec: %s: %w", spec, err)
	}

	return t, path, nil
}

func shortTypeName(t format.SegmentType) string {
	switch t {
	case format.SegmentTypeSystemImage:
		return "system"
	case format.SegmentTypeApplication:
		return "application"
	case format.SegmentTypeNetworkInfo:
		return "network"
	default:
		return fmt.Sprintf("%d", uint16(t))
	}
}

// SourceInfo holds information about a merge input file.
type SourceInfo struct {
	// Type is the segment type the file is merged as
	Type format.SegmentType

	// Path is the input file path
	Path string

	// Size is the input file size in bytes
	Size int64
}

// DiscoverSources stats every input file and returns them in reference
// merge order (system image, application, network information).
// Fails if a file is missing, is a directory, or cannot fit in a segment.
func DiscoverSources(specs []string) ([]*SourceInfo, error) {
	sources := make([]*SourceInfo, 0, len(specs))

	for _, spec := range specs {
		t, path, err := ParseInputSpec(spec)
		if err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s input %s: %w", t, path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s input %s is a directory", t, path)
		}
		if uint64(info.Size()) > format.MaxPayloadSize { //nolint:gosec // G115: file sizes are non-negative
			return nil, format.PayloadTooLarge(len(sources), 0, uint64(info.Size())) //nolint:gosec // G115: file sizes are non-negative
		}

		sources = append(sources, &SourceInfo{
			Type: t,
			Path: path,
			Size: info.Size(),
		})
	}

	SortReferenceOrder(sources)

	return sources, ValidateSourceSet(sources)
}

// SortReferenceOrder orders sources by segment type, keeping the relative
// order of equal types.
func SortReferenceOrder(sources []*SourceInfo) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Type < sources[j].Type
	})
}

// ValidateSourceSet checks that a merge has at least one input and at most
// one input of each type.
func ValidateSourceSet(sources []*SourceInfo) error {
	if len(sources) == 0 {
		return fmt.Errorf("no input files to merge")
	}

	// Check for duplicates
	seen := make(map[format.SegmentType]bool)
	for _, src := range sources {
		if seen[src.Type] {
			return fmt.Errorf("duplicate %s input: %s", src.Type, src.Path)
		}
		seen[src.Type] = true
	}

	return nil
}
