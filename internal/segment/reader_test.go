package segment

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/fwmerge/internal/format"
)

func threeSegmentContainer(t *testing.T) []byte {
	t.Helper()
	container, err := Merge([]Input{
		{Type: format.SegmentTypeSystemImage, Payload: []byte("system image bytes")},
		{Type: format.SegmentTypeApplication, Payload: []byte("app")},
		{Type: format.SegmentTypeNetworkInfo, Payload: []byte{0x00, 0xFF, 0x10}},
	})
	require.NoError(t, err)
	return container
}

func TestList_Empty(t *testing.T) {
	should := require.New(t)

	descs, err := List(nil)
	should.NoError(err)
	should.NotNil(descs)
	should.Empty(descs)
}

func TestList_SingleSegment(t *testing.T) {
	should := require.New(t)

	payload := []byte("firmware")
	container, err := Merge([]Input{{Type: format.SegmentTypeSystemImage, Payload: payload}})
	should.NoError(err)

	descs, err := List(container)
	should.NoError(err)
	should.Len(descs, 1)
	should.Equal(format.SegmentTypeSystemImage, descs[0].Type)
	should.Equal(uint32(len(payload)), descs[0].Length)
	should.True(descs[0].Valid)
}

func TestList_ThreeSegments(t *testing.T) {
	should := require.New(t)

	descs, err := List(threeSegmentContainer(t))
	should.NoError(err)
	should.Len(descs, 3)

	want := []struct {
		t      format.SegmentType
		length uint32
		offset int
	}{
		{format.SegmentTypeSystemImage, 18, 0},
		{format.SegmentTypeApplication, 3, 34},
		{format.SegmentTypeNetworkInfo, 3, 53},
	}
	for i, w := range want {
		should.Equal(i, descs[i].Index)
		should.Equal(w.t, descs[i].Type)
		should.Equal(w.length, descs[i].Length)
		should.Equal(w.offset, descs[i].Offset)
		should.True(descs[i].Valid)
	}
}

func TestList_ZeroLengthSegmentOnly(t *testing.T) {
	should := require.New(t)

	container, err := Merge([]Input{{Type: format.SegmentTypeNetworkInfo}})
	should.NoError(err)
	should.Len(container, format.SegmentHeaderSize)

	descs, err := List(container)
	should.NoError(err)
	should.Len(descs, 1)
	should.Equal(uint32(0), descs[0].Length)
}

func TestList_DuplicateTypesAnyOrder(t *testing.T) {
	should := require.New(t)

	container, err := Merge([]Input{
		{Type: format.SegmentTypeApplication, Payload: []byte("a1")},
		{Type: format.SegmentTypeApplication, Payload: []byte("a2")},
		{Type: format.SegmentTypeSystemImage, Payload: []byte("s")},
	})
	should.NoError(err)

	descs, err := List(container)
	should.NoError(err)
	should.Len(descs, 3)
}

func TestList_Truncated(t *testing.T) {
	container := threeSegmentContainer(t)

	tests := []struct {
		name  string
		data  []byte
		index int
	}{
		{"one byte", container[:1], 0},
		{"partial header", container[:format.SegmentHeaderSize-1], 0},
		{"header only", container[:format.SegmentHeaderSize], 0},
		{"partial payload", container[:20], 0},
		{"partial second header", container[:34+5], 1},
		{"missing last payload byte", container[:len(container)-1], 2},
		{"trailing garbage", append(append([]byte{}, container...), 0x00, 0x01), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			should := require.New(t)
			descs, err := List(tt.data)
			should.ErrorIs(err, format.ErrTruncated)
			should.Nil(descs)
			should.Equal(tt.index, format.IndexOf(err))
		})
	}
}

func TestList_LengthExceedsBuffer(t *testing.T) {
	should := require.New(t)

	container, err := Merge([]Input{{Type: format.SegmentTypeSystemImage, Payload: []byte("abcd")}})
	should.NoError(err)

	binary.LittleEndian.PutUint32(container[4:], 0xFFFFFFFF)

	_, err = List(container)
	should.ErrorIs(err, format.ErrTruncated)
}

func TestList_UnknownType(t *testing.T) {
	for _, typ := range []uint16{0, 4, 0x0100} {
		should := require.New(t)

		container, err := Merge([]Input{{Type: format.SegmentTypeSystemImage, Payload: []byte("abcd")}})
		should.NoError(err)
		binary.LittleEndian.PutUint16(container[2:], typ)

		_, err = List(container)
		should.ErrorIs(err, format.ErrUnknownType, "type %d", typ)
		should.Equal(0, format.IndexOf(err))
	}
}

func TestList_UnknownTypeCheckedBeforeLength(t *testing.T) {
	should := require.New(t)

	data := (&format.SegmentHeader{Type: 9, Length: 1000}).Marshal()

	_, err := List(data)
	should.ErrorIs(err, format.ErrUnknownType)
}

func TestList_ChecksumMismatchEveryByte(t *testing.T) {
	container := threeSegmentContainer(t)

	// Bytes 2..7 hold the type and length; changing them produces a
	// different error kind, so they are covered by the tests above.
	for i := range container {
		offsetInSegment := segmentRelativeOffset(i)
		if offsetInSegment >= 2 && offsetInSegment < 8 {
			continue
		}

		corrupted := append([]byte{}, container...)
		corrupted[i] ^= 0x5A

		_, err := List(corrupted)
		require.ErrorIsf(t, err, format.ErrChecksumMismatch, "byte %d", i)
		require.Equal(t, segmentIndexAt(i), format.IndexOf(err), "byte %d", i)
	}
}

// segment boundaries of threeSegmentContainer
var threeSegmentStarts = []int{0, 34, 53}

func segmentIndexAt(pos int) int {
	idx := 0
	for i, start := range threeSegmentStarts {
		if pos >= start {
			idx = i
		}
	}
	return idx
}

func segmentRelativeOffset(pos int) int {
	return pos - threeSegmentStarts[segmentIndexAt(pos)]
}

func TestList_FailFast(t *testing.T) {
	should := require.New(t)

	container := threeSegmentContainer(t)
	container[34+format.SegmentHeaderSize] ^= 0xFF // second payload

	descs, err := List(container)
	should.ErrorIs(err, format.ErrChecksumMismatch)
	should.Nil(descs)
	should.Equal(1, format.IndexOf(err))
}

func TestReader_Next(t *testing.T) {
	should := require.New(t)

	container := threeSegmentContainer(t)
	r := NewReader(container)

	seg, desc, err := r.Next()
	should.NoError(err)
	should.Equal([]byte("system image bytes"), seg.Payload)
	should.Equal(format.SegmentTypeSystemImage, seg.Header.Type)
	should.Equal(desc.Checksum, seg.Header.Checksum)
	should.Equal(34, r.Offset())

	_, _, err = r.Next()
	should.NoError(err)
	_, _, err = r.Next()
	should.NoError(err)

	_, _, err = r.Next()
	should.True(errors.Is(err, io.EOF))
	should.Equal(len(container), r.Offset())
}

func TestReader_StickyError(t *testing.T) {
	should := require.New(t)

	r := NewReader([]byte{1, 2, 3})
	_, _, err := r.Next()
	should.ErrorIs(err, format.ErrTruncated)

	_, _, err2 := r.Next()
	should.Equal(err, err2)
}

func TestReader_ScanAllVisitorError(t *testing.T) {
	should := require.New(t)

	stop := errors.New("stop")
	calls := 0
	err := NewReader(threeSegmentContainer(t)).ScanAll(func(*format.Segment, Descriptor) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	should.ErrorIs(err, stop)
	should.Equal(2, calls)
}

func TestVerify(t *testing.T) {
	should := require.New(t)

	container := threeSegmentContainer(t)
	segs, err := Verify(container)
	should.NoError(err)
	should.Len(segs, 3)
	should.Equal([]byte("app"), segs[1].Payload)
	should.Equal(uint32(3), segs[1].Header.Length)
	should.Equal(format.CurrentVersion, segs[2].Header.Version)

	container[len(container)-1] ^= 1
	segs, err = Verify(container)
	should.ErrorIs(err, format.ErrChecksumMismatch)
	should.Nil(segs)
}

func TestList_ReservedFieldsRoundTrip(t *testing.T) {
	should := require.New(t)

	// A producer that sets reserved fields still yields a valid container
	// as long as the checksum covers them.
	h := &format.SegmentHeader{
		Version:   0,
		Reserved0: 0x11,
		Type:      format.SegmentTypeApplication,
		Length:    2,
		Reserved1: 0x22334455,
		Reserved2: 0x6677,
	}
	payload := []byte{0xAA, 0xBB}
	header := h.Marshal()
	h.Checksum = format.SegmentChecksum(header, payload)
	data := append(h.Marshal(), payload...)

	segs, err := Verify(data)
	should.NoError(err)
	should.Len(segs, 1)
	should.Equal(*h, segs[0].Header)
}
