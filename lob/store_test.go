package lob

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"lob/blockmap"
	"lob/blockmap/memmap"
	"lob/streamid"
)

func readAll(t *testing.T, st *Stream) []byte {
	t.Helper()
	var buf bytes.Buffer
	tmp := make([]byte, 97) // an awkward size to force several partial reads
	for {
		n, err := st.Read(tmp)
		buf.Write(tmp[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return buf.Bytes()
}

func TestNewWithConfigZeroFieldsFallBackToDefaults(t *testing.T) {
	store := NewWithConfig(memmap.New(), Config{})
	require.Equal(t, DefaultMinBlockSize, store.GetMinBlockSize())
	require.Equal(t, DefaultMaxBlockSize, store.GetMaxBlockSize())

	store2 := NewWithConfig(memmap.New(), Config{MaxBlockSize: 1024})
	require.Equal(t, DefaultMinBlockSize, store2.GetMinBlockSize())
	require.Equal(t, 1024, store2.GetMaxBlockSize())
}

func TestPutGetRoundTrip(t *testing.T) {
	store := New(memmap.New())

	input := bytes.Repeat([]byte{0xAA}, 100)
	id, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)

	length, err := store.Length(id)
	require.NoError(t, err)
	require.Equal(t, uint64(100), length)

	stream, err := store.GetInputStream(id)
	require.NoError(t, err)
	defer stream.Close()
	require.Equal(t, input, readAll(t, stream))
}

// E1: a 100-byte payload under default thresholds stays inline.
func TestE1InlinePayload(t *testing.T) {
	store := New(memmap.New())
	bm := store.bm.(*memmap.Map)

	input := bytes.Repeat([]byte{0xAA}, 100)
	id, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)

	require.True(t, bm.IsEmpty(), "a 100-byte payload under default min=256 must not allocate any blocks")

	length, err := store.Length(id)
	require.NoError(t, err)
	require.Equal(t, uint64(100), length)

	stream, err := store.GetInputStream(id)
	require.NoError(t, err)
	require.Equal(t, input, readAll(t, stream))
}

// E2: a 300-byte payload under default thresholds becomes a single block-ref.
func TestE2SingleBlockRef(t *testing.T) {
	store := New(memmap.New())
	bm := store.bm.(*memmap.Map)

	input := bytes.Repeat([]byte{0xBB}, 300)
	id, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)

	last, ok := bm.LastKey()
	require.True(t, ok)
	require.Equal(t, uint64(0), last, "exactly one block should have been appended")

	stored, err := bm.Get(0)
	require.NoError(t, err)
	require.Equal(t, input, stored)

	length, err := store.Length(id)
	require.NoError(t, err)
	require.Equal(t, uint64(300), length)

	stream, err := store.GetInputStream(id)
	require.NoError(t, err)
	require.Equal(t, input, readAll(t, stream))
}

// E3: min=256, max=1024 over 4096 bytes produces four block-refs and
// supports mid-stream skip.
func TestE3FourBlockRefsAndSkip(t *testing.T) {
	store := New(memmap.New())
	store.SetMinBlockSize(256)
	store.SetMaxBlockSize(1024)

	input := make([]byte, 4096)
	for i := range input {
		input[i] = byte(i % 251)
	}
	id, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)

	length, err := store.Length(id)
	require.NoError(t, err)
	require.Equal(t, uint64(4096), length)

	stream, err := store.GetInputStream(id)
	require.NoError(t, err)
	require.Equal(t, input, readAll(t, stream))

	stream2, err := store.GetInputStream(id)
	require.NoError(t, err)
	defer stream2.Close()
	n, err := stream2.Skip(2050)
	require.NoError(t, err)
	require.Equal(t, int64(2050), n)
	rest := readAll(t, stream2)
	require.Equal(t, input[2050:], rest)
}

// E4: 200 KiB of pseudo-random data collapses the final id down to a small
// top-level form while still round-tripping exactly.
func TestE4LargePayloadCollapses(t *testing.T) {
	store := New(memmap.New())
	store.SetMinBlockSize(256)
	store.SetMaxBlockSize(1024)

	input := make([]byte, 200*1024)
	rnd := rand.New(rand.NewPCG(1, 1))
	for i := range input {
		input[i] = byte(rnd.Uint32())
	}
	id, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)
	require.LessOrEqual(t, len(id), 2*store.GetMinBlockSize())

	stream, err := store.GetInputStream(id)
	require.NoError(t, err)
	require.Equal(t, input, readAll(t, stream))

	maxKey, err := store.MaxBlockKey(id)
	require.NoError(t, err)
	last, ok := store.bm.LastKey()
	require.True(t, ok)
	require.Equal(t, int64(last), maxKey)
}

func TestEmptyInputYieldsEmptyID(t *testing.T) {
	store := New(memmap.New())
	id, err := store.Put(bytes.NewReader(nil))
	require.NoError(t, err)
	require.Empty(t, id)

	length, err := store.Length(id)
	require.NoError(t, err)
	require.Equal(t, uint64(0), length)

	maxKey, err := store.MaxBlockKey(id)
	require.NoError(t, err)
	require.Equal(t, int64(-1), maxKey)
}

func TestPayloadAtMinBlockSizeIsBlockRef(t *testing.T) {
	store := New(memmap.New())
	bm := store.bm.(*memmap.Map)

	input := bytes.Repeat([]byte{0x01}, store.GetMinBlockSize())
	_, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)
	require.False(t, bm.IsEmpty(), "a payload exactly at min_block_size must be stored as a block-ref")
}

// Invariant 5 / E5: removing an id reclaims every block it referenced.
func TestRemoveReclaimsBlocks(t *testing.T) {
	store := New(memmap.New())
	bm := store.bm.(*memmap.Map)
	store.SetMaxBlockSize(1024)

	input := make([]byte, 10*1024)
	for i := range input {
		input[i] = byte(i)
	}
	id, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)

	maxKey, err := store.MaxBlockKey(id)
	require.NoError(t, err)
	require.GreaterOrEqual(t, maxKey, int64(0))

	require.NoError(t, store.Remove(id))
	for k := uint64(0); k <= uint64(maxKey); k++ {
		_, err := bm.Get(k)
		require.ErrorIs(t, err, blockmap.ErrBlockNotFound)
	}
}

// E6: a failing input stream rolls back every block it appended.
type failingReader struct {
	data   []byte
	pos    int
	failAt int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.pos >= r.failAt {
		return 0, errors.New("simulated i/o failure")
	}
	n := copy(p, r.data[r.pos:])
	if r.pos+n > r.failAt {
		n = r.failAt - r.pos
	}
	r.pos += n
	if n == 0 {
		return 0, errors.New("simulated i/o failure")
	}
	return n, nil
}

func TestPutRollsBackOnFailure(t *testing.T) {
	store := New(memmap.New())
	bm := store.bm.(*memmap.Map)
	store.SetMaxBlockSize(1024)

	data := make([]byte, 500000)
	_, err := store.Put(&failingReader{data: data, failAt: 400000})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrIO)

	// Key allocation is a monotonic watermark (blockmap.Map never reuses a
	// key), so IsEmpty/LastKey still reflect that some blocks were once
	// appended; what rollback guarantees is that none of them still resolve.
	last, ok := bm.LastKey()
	require.True(t, ok, "the aborted put must have appended at least one block before failing")
	for k := uint64(0); k <= last; k++ {
		_, err := bm.Get(k)
		require.ErrorIs(t, err, blockmap.ErrBlockNotFound, "block %d must have been rolled back", k)
	}
}

func TestDegenerateMinLargerThanMaxDoesNotCrash(t *testing.T) {
	store := New(memmap.New())
	store.SetMinBlockSize(10000)
	store.SetMaxBlockSize(1024)

	input := bytes.Repeat([]byte{0x42}, 5000)
	id, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)

	stream, err := store.GetInputStream(id)
	require.NoError(t, err)
	require.Equal(t, input, readAll(t, stream))
}

func TestPartialReadChunkingMatchesFullRead(t *testing.T) {
	store := New(memmap.New())
	store.SetMaxBlockSize(512)

	input := make([]byte, 8192)
	for i := range input {
		input[i] = byte(i * 7)
	}
	id, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)

	full, err := store.GetInputStream(id)
	require.NoError(t, err)
	fullBytes := readAll(t, full)

	chunked, err := store.GetInputStream(id)
	require.NoError(t, err)
	var buf bytes.Buffer
	sizes := []int{1, 3, 17, 256, 4096}
	i := 0
	for {
		size := sizes[i%len(sizes)]
		i++
		p := make([]byte, size)
		n, err := chunked.Read(p)
		buf.Write(p[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	require.Equal(t, fullBytes, buf.Bytes())
}

func TestPrettyPrintIncludesLength(t *testing.T) {
	store := New(memmap.New())
	input := bytes.Repeat([]byte{0x9}, 10)
	id, err := store.Put(bytes.NewReader(input))
	require.NoError(t, err)
	out := store.ToString(id)
	require.Contains(t, out, "inline len=10")
	require.Contains(t, out, "length=10")
}

func TestConcatReadsBothPayloads(t *testing.T) {
	store := New(memmap.New())
	id1, err := store.Put(bytes.NewReader([]byte("hello ")))
	require.NoError(t, err)
	id2, err := store.Put(bytes.NewReader([]byte("world")))
	require.NoError(t, err)

	combined := streamid.Concat(id1, id2)
	stream, err := store.GetInputStream(combined)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), readAll(t, stream))
}
