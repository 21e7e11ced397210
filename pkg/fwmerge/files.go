package fwmerge

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vnykmshr/fwmerge/internal/fileio"
	"github.com/vnykmshr/fwmerge/internal/format"
	"github.com/vnykmshr/fwmerge/internal/logging"
	"github.com/vnykmshr/fwmerge/internal/segment"
)

// Files names the input files of a merge. Empty fields are skipped.
type Files struct {
	// System is the system image binary
	System string

	// Application is the user application binary
	Application string

	// Network is the network information binary
	Network string
}

// Path returns the input file for segment type t, or "" if none is set.
func (f Files) Path(t SegmentType) string {
	switch t {
	case SystemImage:
		return f.System
	case Application:
		return f.Application
	case NetworkInfo:
		return f.Network
	default:
		return ""
	}
}

// Specs returns the non-empty inputs as type=path specs in reference order.
func (f Files) Specs() []string {
	var specs []string
	for _, t := range format.SegmentTypes {
		if path := f.Path(t); path != "" {
			specs = append(specs, segment.FormatInputSpec(t, path))
		}
	}
	return specs
}

// MergeResult describes a container written by MergeFiles.
type MergeResult struct {
	// Output is the container path
	Output string

	// Size is the container size in bytes
	Size uint64

	// Segments describes each segment in the order written
	Segments []Descriptor
}

// MergeFiles merges the given files into output in reference order
// (system image, application, network information). At least one input
// is required. output is replaced atomically.
func (t *Tool) MergeFiles(output string, files Files) (*MergeResult, error) {
	return t.MergeSpecs(output, files.Specs())
}

// MergeSpecs merges inputs named as type=path specs (e.g. "system=fw.bin")
// into output. Inputs are reordered into reference order and each type may
// appear at most once.
func (t *Tool) MergeSpecs(output string, specs []string) (*MergeResult, error) {
	if output == "" {
		return nil, errors.New("output path required")
	}

	sources, err := segment.DiscoverSources(specs)
	if err != nil {
		t.fail("merge failed", err)
		return nil, err
	}

	start := time.Now()
	result := &MergeResult{Output: output}

	err = fileio.WriteAtomic(output, t.opts.FileMode, func(w io.Writer) error {
		sw := segment.NewWriter(w)
		for _, src := range sources {
			desc, err := appendSource(sw, src)
			if err != nil {
				return err
			}
			result.Segments = append(result.Segments, desc)
			t.logger.Debug("appended segment",
				logging.F("type", src.Type.String()),
				logging.F("path", src.Path),
				logging.F("bytes", desc.Length),
			)
		}
		result.Size = sw.BytesWritten()
		return nil
	})
	if err != nil {
		t.fail("merge failed", err)
		return nil, err
	}

	t.metrics.RecordMerge(len(result.Segments), int(result.Size), time.Since(start)) //nolint:gosec // G115: container sizes fit in int
	t.logger.Info("merged container",
		logging.F("output", output),
		logging.F("segments", len(result.Segments)),
		logging.F("bytes", result.Size),
	)
	return result, nil
}

func appendSource(sw *segment.Writer, src *segment.SourceInfo) (Descriptor, error) {
	mf, err := fileio.Open(src.Path, format.MaxPayloadSize)
	if err != nil {
		if errors.Is(err, fileio.ErrContainerTooLarge) {
			// The file grew past the length field after DiscoverSources checked it
			return Descriptor{}, &FormatError{
				Kind:   ErrPayloadTooLarge,
				Index:  sw.SegmentsWritten(),
				Offset: int(sw.BytesWritten()), //nolint:gosec // G115: diagnostics only
				Detail: err.Error(),
			}
		}
		return Descriptor{}, fmt.Errorf("failed to open %s input: %w", src.Type, err)
	}
	defer func() { _ = mf.Close() }()

	return sw.Append(src.Type, mf.Bytes())
}

// ListFile loads the container at path and verifies it like List.
// Files larger than Options.MaxContainerSize are rejected before loading.
func (t *Tool) ListFile(path string) ([]Descriptor, error) {
	mf, err := fileio.Open(path, t.opts.MaxContainerSize)
	if err != nil {
		t.fail("list failed", err)
		return nil, err
	}
	defer func() { _ = mf.Close() }()

	descs, err := t.List(mf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return descs, nil
}
