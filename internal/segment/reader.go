package segment

import (
	"errors"
	"io"

	"github.com/vnykmshr/fwmerge/internal/format"
)

// Descriptor describes one segment found in a container.
type Descriptor struct {
	// Index is the zero-based position of the segment in the container
	Index int `json:"index"`

	// Offset is the byte offset of the segment header
	Offset int `json:"offset"`

	// Type is the declared payload kind
	Type format.SegmentType `json:"type"`

	// Length is the declared payload length in bytes
	Length uint32 `json:"length"`

	// Checksum is the stored CRC-16
	Checksum uint16 `json:"checksum"`

	// Valid is true once the stored checksum has been confirmed
	Valid bool `json:"valid"`
}

// Reader walks the segments of an in-memory container in order,
// verifying each one before returning it.
//
// The Reader does not enforce any ordering of segment types and accepts
// duplicates. It stops at the first invalid segment; every later call
// returns the same error.
type Reader struct {
	data   []byte
	offset int
	index  int
	err    error
}

// NewReader creates a reader over a complete container buffer.
// The buffer must not be modified while the reader is in use.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Next verifies and returns the next segment. The returned payload aliases
// the container buffer. Returns io.EOF once the segments exactly cover the
// buffer.
func (r *Reader) Next() (*format.Segment, Descriptor, error) {
	if r.err != nil {
		return nil, Descriptor{}, r.err
	}

	seg, desc, err := r.next()
	if err != nil {
		r.err = err
		return nil, Descriptor{}, err
	}

	r.offset += seg.TotalSize()
	r.index++
	return seg, desc, nil
}

func (r *Reader) next() (*format.Segment, Descriptor, error) {
	remaining := len(r.data) - r.offset
	if remaining == 0 {
		return nil, Descriptor{}, io.EOF
	}
	if remaining < format.SegmentHeaderSize {
		return nil, Descriptor{}, format.Truncated(r.index, r.offset,
			"need %d header bytes, have %d", format.SegmentHeaderSize, remaining)
	}

	headerBytes := r.data[r.offset : r.offset+format.SegmentHeaderSize]
	header, err := format.UnmarshalSegmentHeader(headerBytes)
	if err != nil {
		return nil, Descriptor{}, err
	}

	if !header.Type.Valid() {
		return nil, Descriptor{}, format.UnknownType(r.index, r.offset, header.Type)
	}

	available := uint64(remaining - format.SegmentHeaderSize) //nolint:gosec // G115: remaining >= header size
	if uint64(header.Length) > available {
		return nil, Descriptor{}, format.Truncated(r.index, r.offset,
			"payload declares %d bytes, have %d", header.Length, available)
	}

	start := r.offset + format.SegmentHeaderSize
	payload := r.data[start : start+int(header.Length)]

	computed := format.SegmentChecksum(headerBytes, payload)
	if computed != header.Checksum {
		return nil, Descriptor{}, format.ChecksumMismatch(r.index, r.offset, header.Checksum, computed)
	}

	desc := Descriptor{
		Index:    r.index,
		Offset:   r.offset,
		Type:     header.Type,
		Length:   header.Length,
		Checksum: header.Checksum,
		Valid:    true,
	}
	return &format.Segment{Header: *header, Payload: payload}, desc, nil
}

// Offset returns the byte offset of the next segment to be read.
func (r *Reader) Offset() int {
	return r.offset
}

// ScanAll verifies every segment in order, calling visitor for each one.
// Scanning stops at the first format error or visitor error.
func (r *Reader) ScanAll(visitor func(*format.Segment, Descriptor) error) error {
	for {
		seg, desc, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := visitor(seg, desc); err != nil {
			return err
		}
	}
}

// List verifies a container and returns a descriptor per segment. On the
// first invalid segment it returns that error and no descriptors.
func List(data []byte) ([]Descriptor, error) {
	var descs []Descriptor
	err := NewReader(data).ScanAll(func(_ *format.Segment, d Descriptor) error {
		descs = append(descs, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if descs == nil {
		descs = []Descriptor{}
	}
	return descs, nil
}

// Verify is like List but returns the decoded segments. Payloads alias data.
func Verify(data []byte) ([]format.Segment, error) {
	var segs []format.Segment
	err := NewReader(data).ScanAll(func(s *format.Segment, _ Descriptor) error {
		segs = append(segs, *s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return segs, nil
}
