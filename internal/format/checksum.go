// Package format provides binary encoding/decoding for fwmerge containers.
//
// This package implements:
//   - Checksum utilities: table-driven CRC-16 (polynomial 0x1021)
//   - Segment header format: fixed 16-byte little-endian headers
//   - Segment types: the closed set of payload kinds a segment may declare
//   - Format errors: typed failures carrying the error kind and segment index
package format

// CRC16Polynomial is the generator polynomial (x^16 + x^12 + x^5 + 1).
const CRC16Polynomial uint16 = 0x1021

// crc16Table holds the CRC of every byte value shifted to the top of the
// 16-bit register. Built once at package init and never written afterwards,
// so it is safe to share between goroutines.
var crc16Table = makeCRC16Table(CRC16Polynomial)

func makeCRC16Table(poly uint16) *[256]uint16 {
	var t [256]uint16
	for i := range t {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}

// ComputeCRC16 computes the container checksum over the given data.
// The register starts at 0 with no reflection and no final XOR.
func ComputeCRC16(data []byte) uint16 {
	return UpdateCRC16(0, data)
}

// UpdateCRC16 continues a running CRC over data. It lets callers checksum
// a header and its payload without concatenating them first.
func UpdateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc16Table[byte(crc>>8)^b] ^ crc<<8
	}
	return crc
}
