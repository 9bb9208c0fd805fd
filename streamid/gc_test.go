package streamid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lob/blockmap"
	"lob/blockmap/memmap"
)

// buildNestedIndirectID constructs an id with the shape a real collapse
// produces: two block-refs (keys 0, 1) spliced into a nested id, that
// nested id stored under key 2 and referenced by a TagIndirect record, and
// a third top-level block-ref (key 3) alongside it.
func buildNestedIndirectID(t *testing.T, bm *memmap.Map) []byte {
	t.Helper()

	k0, err := bm.Append([]byte("block zero"))
	require.NoError(t, err)
	k1, err := bm.Append([]byte("block one"))
	require.NoError(t, err)

	nested := NewBuilder()
	nested.AppendBlockRef(10, k0)
	nested.AppendBlockRef(9, k1)
	nestedLen, err := Length(nested.Bytes())
	require.NoError(t, err)

	nestedKey, err := bm.Append(nested.Bytes())
	require.NoError(t, err)

	k3, err := bm.Append([]byte("top level"))
	require.NoError(t, err)

	top := NewBuilder()
	top.AppendIndirect(nestedLen, nestedKey)
	top.AppendBlockRef(9, k3)
	return top.Bytes()
}

func TestMaxBlockKeyRecursesIntoIndirect(t *testing.T) {
	bm := memmap.New()
	id := buildNestedIndirectID(t, bm)

	max, err := MaxBlockKey(id, bm)
	require.NoError(t, err)
	// The highest key reachable is the largest of the indirect block itself,
	// its nested block-refs and the top-level block-ref; Append hands out
	// keys 0..3 in order here, so the top-level block-ref (key 3) is the max.
	require.Equal(t, int64(3), max)
}

func TestRemoveRecursesIntoIndirectAndReclaimsEverything(t *testing.T) {
	bm := memmap.New()
	id := buildNestedIndirectID(t, bm)

	max, err := MaxBlockKey(id, bm)
	require.NoError(t, err)

	require.NoError(t, Remove(id, bm))

	for k := uint64(0); k <= uint64(max); k++ {
		_, err := bm.Get(k)
		require.ErrorIsf(t, err, blockmap.ErrBlockNotFound, "block %d must have been reclaimed", k)
	}
}
