package format

import (
	"bytes"
	"testing"
)

func TestComputeCRC16(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: 0x0000, // register starts at 0, no final XOR
		},
		{
			name:     "nil data",
			data:     nil,
			expected: 0x0000,
		},
		{
			name:     "check string",
			data:     []byte("123456789"),
			expected: 0x31C3, // CRC-16/XMODEM check value
		},
		{
			name:     "single byte 0x01",
			data:     []byte{0x01},
			expected: 0x1021, // table[1] is the polynomial itself
		},
		{
			name:     "single byte 0x80",
			data:     []byte{0x80},
			expected: 0x9188,
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0x0000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeCRC16(tt.data)
			if result != tt.expected {
				t.Errorf("ComputeCRC16() = 0x%04X, want 0x%04X", result, tt.expected)
			}
		})
	}
}

// bitwiseCRC16 is the unaccelerated definition the table must agree with.
func bitwiseCRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ CRC16Polynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func TestComputeCRC16_MatchesBitwise(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}

	for _, n := range []int{0, 1, 2, 15, 16, 17, 255, 256, 1000, len(data)} {
		got := ComputeCRC16(data[:n])
		want := bitwiseCRC16(data[:n])
		if got != want {
			t.Errorf("len %d: ComputeCRC16() = 0x%04X, bitwise = 0x%04X", n, got, want)
		}
	}
}

func TestCRC16Table(t *testing.T) {
	if crc16Table[0] != 0 {
		t.Errorf("table[0] = 0x%04X, want 0", crc16Table[0])
	}
	for i := 0; i < 256; i++ {
		want := bitwiseCRC16([]byte{byte(i)})
		if crc16Table[i] != want {
			t.Fatalf("table[%d] = 0x%04X, want 0x%04X", i, crc16Table[i], want)
		}
	}
}

func TestUpdateCRC16_Incremental(t *testing.T) {
	data := []byte("system image followed by application payload")

	whole := ComputeCRC16(data)
	for split := 0; split <= len(data); split++ {
		crc := UpdateCRC16(0, data[:split])
		crc = UpdateCRC16(crc, data[split:])
		if crc != whole {
			t.Fatalf("split at %d: got 0x%04X, want 0x%04X", split, crc, whole)
		}
	}
}

func TestComputeCRC16_DoesNotModifyInput(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	orig := bytes.Clone(data)

	_ = ComputeCRC16(data)

	if !bytes.Equal(data, orig) {
		t.Errorf("input modified: got %x, want %x", data, orig)
	}
}
