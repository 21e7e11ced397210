package format

import (
	"errors"
	"fmt"
)

// Error kinds returned by the container codec.
var (
	// ErrTruncated indicates the buffer ends before a declared header or
	// payload, or that trailing bytes do not form a full segment.
	ErrTruncated = errors.New("fwmerge: truncated container")

	// ErrUnknownType indicates a segment type outside the known set.
	ErrUnknownType = errors.New("fwmerge: unknown segment type")

	// ErrChecksumMismatch indicates the recomputed CRC disagrees with the stored one.
	ErrChecksumMismatch = errors.New("fwmerge: checksum mismatch")

	// ErrPayloadTooLarge indicates a payload does not fit the 32-bit length field.
	ErrPayloadTooLarge = errors.New("fwmerge: payload too large")
)

// FormatError describes a codec failure at a specific segment.
//
// Kind is one of the sentinel errors above, so callers can match with
// errors.Is and recover the position with errors.As.
type FormatError struct {
	// Kind is the sentinel error identifying the failure class
	Kind error

	// Index is the zero-based segment index, -1 when not tied to a segment
	Index int

	// Offset is the byte offset of the segment header in the container
	Offset int

	// Detail is a short human-readable explanation
	Detail string
}

func (e *FormatError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%v: segment %d at offset %d: %s", e.Kind, e.Index, e.Offset, e.Detail)
}

// Unwrap returns the error kind.
func (e *FormatError) Unwrap() error {
	return e.Kind
}

func newFormatError(kind error, index, offset int, msg string, args ...interface{}) *FormatError {
	return &FormatError{
		Kind:   kind,
		Index:  index,
		Offset: offset,
		Detail: fmt.Sprintf(msg, args...),
	}
}

// Truncated builds an ErrTruncated failure for the segment at index/offset.
func Truncated(index, offset int, msg string, args ...interface{}) *FormatError {
	return newFormatError(ErrTruncated, index, offset, msg, args...)
}

// UnknownType builds an ErrUnknownType failure for the segment at index/offset.
func UnknownType(index, offset int, t SegmentType) *FormatError {
	return newFormatError(ErrUnknownType, index, offset, "type %d", uint16(t))
}

// ChecksumMismatch builds an ErrChecksumMismatch failure for the segment at index/offset.
func ChecksumMismatch(index, offset int, stored, computed uint16) *FormatError {
	return newFormatError(ErrChecksumMismatch, index, offset, "stored=%04x computed=%04x", stored, computed)
}

// PayloadTooLarge builds an ErrPayloadTooLarge failure for the input at index,
// which would have been written at offset.
func PayloadTooLarge(index, offset int, size uint64) *FormatError {
	return newFormatError(ErrPayloadTooLarge, index, offset, "payload is %d bytes (maximum %d)", size, uint64(MaxPayloadSize))
}

// IndexOf returns the segment index carried by err, or -1.
func IndexOf(err error) int {
	var fe *FormatError
	if errors.As(err, &fe) {
		return fe.Index
	}
	return -1
}
