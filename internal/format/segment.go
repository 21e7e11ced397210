package format

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// SegmentType identifies the kind of payload a segment carries.
type SegmentType uint16

// Segment types
const (
	SegmentTypeSystemImage SegmentType = 1 // System image
	SegmentTypeApplication SegmentType = 2 // User application
	SegmentTypeNetworkInfo SegmentType = 3 // Network information
)

// SegmentTypes lists the known types in reference merge order.
var SegmentTypes = []SegmentType{
	SegmentTypeSystemImage,
	SegmentTypeApplication,
	SegmentTypeNetworkInfo,
}

// Valid reports whether t is one of the known segment types.
func (t SegmentType) Valid() bool {
	for _, known := range SegmentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the display name of the segment type.
func (t SegmentType) String() string {
	switch t {
	case SegmentTypeSystemImage:
		return "system image"
	case SegmentTypeApplication:
		return "user application"
	case SegmentTypeNetworkInfo:
		return "network information"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

// ParseSegmentType parses a short type name ("system", "application",
// "network") or its numeric value.
func ParseSegmentType(s string) (SegmentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system", "sys", "1":
		return SegmentTypeSystemImage, nil
	case "application", "app", "2":
		return SegmentTypeApplication, nil
	case "network", "net", "3":
		return SegmentTypeNetworkInfo, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Format version
const (
	FormatVersion0 uint8 = 0
	CurrentVersion uint8 = FormatVersion0
)

// SegmentHeaderSize is the fixed size of a segment header in bytes.
// Layout: Version(1) + Reserved0(1) + Type(2) + Length(4) +
//
//	Reserved1(4) + Reserved2(2) + Checksum(2) = 16 bytes
const SegmentHeaderSize = 16

// ChecksumOffset is the byte offset of the checksum field within the header.
const ChecksumOffset = 14

// MaxPayloadSize is the largest payload the 32-bit length field can describe.
const MaxPayloadSize = math.MaxUint32

// SegmentHeader represents the header preceding every payload in a container.
//
// Binary format (little-endian, 16 bytes):
//
//	[Version:1][Reserved0:1][Type:2][Length:4][Reserved1:4][Reserved2:2][Checksum:2]
type SegmentHeader struct {
	// Version is the format version (always 0 on write)
	Version uint8

	// Reserved0 is copied verbatim (0 on write)
	Reserved0 uint8

	// Type is the payload kind
	Type SegmentType

	// Length is the payload length in bytes
	Length uint32

	// Reserved1 is copied verbatim (0 on write)
	Reserved1 uint32

	// Reserved2 is copied verbatim (0 on write)
	Reserved2 uint16

	// Checksum is the CRC-16 over the header (checksum zeroed) and payload
	Checksum uint16
}

// NewSegmentHeader creates a header for a payload of the given length.
// Reserved fields and the checksum are zero.
func NewSegmentHeader(t SegmentType, length uint32) *SegmentHeader {
	return &SegmentHeader{
		Version: CurrentVersion,
		Type:    t,
		Length:  length,
	}
}

// Marshal encodes the header into its 16-byte wire form.
func (h *SegmentHeader) Marshal() []byte {
	buf := make([]byte, SegmentHeaderSize)
	h.MarshalTo(buf)
	return buf
}

// MarshalTo encodes the header into buf, which must hold at least
// SegmentHeaderSize bytes.
func (h *SegmentHeader) MarshalTo(buf []byte) {
	_ = buf[SegmentHeaderSize-1]
	buf[0] = h.Version
	buf[1] = h.Reserved0
	binary.LittleEndian.PutUint16(buf[2:], uint16(h.Type))
	binary.LittleEndian.PutUint32(buf[4:], h.Length)
	binary.LittleEndian.PutUint32(buf[8:], h.Reserved1)
	binary.LittleEndian.PutUint16(buf[12:], h.Reserved2)
	binary.LittleEndian.PutUint16(buf[ChecksumOffset:], h.Checksum)
}

// UnmarshalSegmentHeader decodes a header from the first 16 bytes of data.
// Fields are copied verbatim; the type is not validated here.
func UnmarshalSegmentHeader(data []byte) (*SegmentHeader, error) {
	if len(data) < SegmentHeaderSize {
		return nil, Truncated(-1, 0, "need %d header bytes, have %d", SegmentHeaderSize, len(data))
	}

	return &SegmentHeader{
		Version:   data[0],
		Reserved0: data[1],
		Type:      SegmentType(binary.LittleEndian.Uint16(data[2:])),
		Length:    binary.LittleEndian.Uint32(data[4:]),
		Reserved1: binary.LittleEndian.Uint32(data[8:]),
		Reserved2: binary.LittleEndian.Uint16(data[12:]),
		Checksum:  binary.LittleEndian.Uint16(data[ChecksumOffset:]),
	}, nil
}

// SegmentChecksum computes the CRC over header||payload with the header's
// checksum bytes treated as zero. header must be a full 16-byte header; it
// is not modified.
func SegmentChecksum(header, payload []byte) uint16 {
	var zeroed [SegmentHeaderSize]byte
	copy(zeroed[:], header[:SegmentHeaderSize])
	zeroed[ChecksumOffset] = 0
	zeroed[ChecksumOffset+1] = 0

	crc := UpdateCRC16(0, zeroed[:])
	return UpdateCRC16(crc, payload)
}

// Segment pairs a decoded header with its payload.
type Segment struct {
	Header  SegmentHeader
	Payload []byte
}

// TotalSize returns the size of the segment in the container.
func (s *Segment) TotalSize() int {
	return SegmentHeaderSize + len(s.Payload)
}
