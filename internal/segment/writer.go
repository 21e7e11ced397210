package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vnykmshr/fwmerge/internal/format"
)

// Input is one typed payload to be merged into a container.
type Input struct {
	Type    format.SegmentType
	Payload []byte
}

// Writer appends checksummed segments to an underlying io.Writer.
//
// Each segment is assembled in memory (header followed by payload), its
// checksum is computed with the checksum field held at zero, the field is
// patched, and the bytes are written in a single call. A Writer is not
// safe for concurrent use.
type Writer struct {
	w io.Writer

	// Tracking
	bytesWritten    uint64 // Total container bytes written
	segmentsWritten int    // Segments emitted so far

	// Set after the first failed write; the output is no longer a valid container
	err error
}

// NewWriter creates a segment writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Append writes one segment and returns its descriptor.
// The type must be one of the known segment types and the payload must
// fit the 32-bit length field.
func (w *Writer) Append(t format.SegmentType, payload []byte) (Descriptor, error) {
	if w.err != nil {
		return Descriptor{}, w.err
	}

	offset := int(w.bytesWritten) //nolint:gosec // G115: container offsets fit in int
	seg, err := EncodeSegment(w.segmentsWritten, offset, t, payload)
	if err != nil {
		return Descriptor{}, err
	}

	n, err := w.w.Write(seg)
	w.bytesWritten += uint64(n) //nolint:gosec // G115: n is non-negative
	if err != nil {
		w.err = fmt.Errorf("failed to write segment %d: %w", w.segmentsWritten, err)
		return Descriptor{}, w.err
	}

	desc := Descriptor{
		Index:    w.segmentsWritten,
		Offset:   offset,
		Type:     t,
		Length:   uint32(len(payload)), //nolint:gosec // G115: bounded by EncodeSegment
		Checksum: binary.LittleEndian.Uint16(seg[format.ChecksumOffset:]),
		Valid:    true,
	}
	w.segmentsWritten++
	return desc, nil
}

// BytesWritten returns the total number of container bytes written.
func (w *Writer) BytesWritten() uint64 {
	return w.bytesWritten
}

// SegmentsWritten returns the number of complete segments written.
func (w *Writer) SegmentsWritten() int {
	return w.segmentsWritten
}

// EncodeSegment returns the wire form of a single segment: the header with
// its checksum patched in, followed by the payload. index and offset are
// used only to annotate errors.
func EncodeSegment(index, offset int, t format.SegmentType, payload []byte) ([]byte, error) {
	if err := checkInput(index, offset, t, uint64(len(payload))); err != nil {
		return nil, err
	}

	buf := make([]byte, format.SegmentHeaderSize+len(payload))
	header := format.NewSegmentHeader(t, uint32(len(payload))) //nolint:gosec // G115: bounded by MaxPayloadSize above
	header.MarshalTo(buf)
	copy(buf[format.SegmentHeaderSize:], payload)

	// Checksum field is still zero here
	header.Checksum = format.SegmentChecksum(buf[:format.SegmentHeaderSize], payload)
	header.MarshalTo(buf)

	return buf, nil
}

// Merge builds a container from inputs, emitting one segment per input in
// the order supplied. No inputs yields an empty container.
func Merge(inputs []Input) ([]byte, error) {
	size := 0
	for i, in := range inputs {
		if err := checkInput(i, size, in.Type, uint64(len(in.Payload))); err != nil {
			return nil, err
		}
		size += format.SegmentHeaderSize + len(in.Payload)
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	w := NewWriter(buf)
	for _, in := range inputs {
		if _, err := w.Append(in.Type, in.Payload); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// checkInput rejects types outside the known set and payloads whose size
// cannot be stored in the length field.
func checkInput(index, offset int, t format.SegmentType, size uint64) error {
	if !t.Valid() {
		return format.UnknownType(index, offset, t)
	}
	if size > format.MaxPayloadSize {
		return format.PayloadTooLarge(index, offset, size)
	}
	return nil
}
