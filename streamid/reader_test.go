package streamid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLengthUnknownTag(t *testing.T) {
	id := []byte{9, 1, 2, 3}
	_, err := Length(id)
	require.ErrorIs(t, err, ErrMalformedID)
}

func TestLengthTruncatedVarint(t *testing.T) {
	id := []byte{byte(TagInline), 0x80} // continuation bit set, nothing follows
	_, err := Length(id)
	require.ErrorIs(t, err, ErrMalformedID)
}

func TestLengthTruncatedPayload(t *testing.T) {
	id := []byte{byte(TagInline), 5, 'a', 'b'} // declares 5 bytes, only 2 present
	_, err := Length(id)
	require.ErrorIs(t, err, ErrMalformedID)
}

func TestPrettyPrintFormat(t *testing.T) {
	b := NewBuilder()
	b.AppendInline([]byte("hi"))
	b.AppendBlockRef(300, 5)
	out := PrettyPrint(b.Bytes())
	require.True(t, strings.Contains(out, "inline len=2"))
	require.True(t, strings.Contains(out, "block-ref len=300"))
	require.True(t, strings.Contains(out, "key=5"))
	require.True(t, strings.Contains(out, "length=302"))
}
