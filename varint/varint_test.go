package varint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 300, 16384, 1<<21 - 1, 1 << 21, 1<<32 - 1}
	for _, v := range values {
		buf := WriteVarint(nil, v)
		cur := NewCursor(buf)
		got, err := cur.ReadVarint()
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.True(t, cur.Done())
	}
}

func TestVarlongRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 1 << 40, 1<<64 - 1}
	for _, v := range values {
		buf := WriteVarlong(nil, v)
		cur := NewCursor(buf)
		got, err := cur.ReadVarlong()
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.True(t, cur.Done())
	}
}

func TestReadVarintTolerantOverlong(t *testing.T) {
	// 5-byte overlong encoding of zero: 0x80 0x80 0x80 0x80 0x00
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x00}
	cur := NewCursor(buf)
	got, err := cur.ReadVarint()
	require.NoError(t, err)
	require.Equal(t, uint32(0), got)
}

func TestReadVarintTruncated(t *testing.T) {
	buf := []byte{0x80, 0x80}
	cur := NewCursor(buf)
	_, err := cur.ReadVarint()
	require.ErrorIs(t, err, ErrMalformedID)
}

func TestReadVarintTooManyContinuationBytes(t *testing.T) {
	// varint caps at 5 bytes; supply 5 continuation bytes before the
	// terminator, so the terminator would be a 6th byte.
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}
	cur := NewCursor(buf)
	_, err := cur.ReadVarint()
	require.ErrorIs(t, err, ErrMalformedID)
}

func TestReadVarlongTooManyContinuationBytes(t *testing.T) {
	buf := make([]byte, 11)
	for i := range buf[:10] {
		buf[i] = 0x80
	}
	cur := NewCursor(buf)
	_, err := cur.ReadVarlong()
	require.ErrorIs(t, err, ErrMalformedID)
}

func TestMultipleSequentialReads(t *testing.T) {
	var buf []byte
	buf = WriteVarint(buf, 5)
	buf = WriteVarlong(buf, 1<<40)
	cur := NewCursor(buf)
	a, err := cur.ReadVarint()
	require.NoError(t, err)
	require.Equal(t, uint32(5), a)
	b, err := cur.ReadVarlong()
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40), b)
	require.True(t, cur.Done())
}
