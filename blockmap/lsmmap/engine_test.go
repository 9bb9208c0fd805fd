package lsmmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lob/blockmap"
)

func TestAppendGetRoundTrip(t *testing.T) {
	e, err := Open(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	k1, err := e.Append([]byte("first"))
	require.NoError(t, err)
	k2, err := e.Append([]byte("second"))
	require.NoError(t, err)
	require.Equal(t, k1+1, k2)

	v1, err := e.Get(k1)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), v1)

	v2, err := e.Get(k2)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), v2)
}

func TestRemoveThenGetNotFound(t *testing.T) {
	e, err := Open(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	k, err := e.Append([]byte("gone soon"))
	require.NoError(t, err)
	require.NoError(t, e.Remove(k))

	_, err = e.Get(k)
	require.ErrorIs(t, err, blockmap.ErrBlockNotFound)
}

func TestKeysNeverReusedAfterRemove(t *testing.T) {
	e, err := Open(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	k, err := e.Append([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, e.Remove(k))

	k2, err := e.Append([]byte("b"))
	require.NoError(t, err)
	require.Greater(t, k2, k)
}

func TestSurvivesFlushAndReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	require.NoError(t, err)

	var keys []uint64
	for i := 0; i < 50; i++ {
		k, err := e.Append([]byte{byte(i)})
		require.NoError(t, err)
		keys = append(keys, k)
	}
	require.NoError(t, e.Save())
	require.NoError(t, e.Close())

	e2, err := Open(dir)
	require.NoError(t, err)
	defer e2.Close()

	for i, k := range keys {
		v, err := e2.Get(k)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i)}, v)
	}

	last, ok := e2.LastKey()
	require.True(t, ok)
	require.Equal(t, keys[len(keys)-1], last)

	k, err := e2.Append([]byte{0xFF})
	require.NoError(t, err)
	require.Greater(t, k, last)
}

func TestGCDropsRemovedEntries(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	require.NoError(t, err)
	defer e.Close()

	var keys []uint64
	for i := 0; i < 20; i++ {
		k, err := e.Append([]byte{byte(i)})
		require.NoError(t, err)
		keys = append(keys, k)
	}
	require.NoError(t, e.Save())
	for _, k := range keys[:10] {
		require.NoError(t, e.Remove(k))
	}
	require.NoError(t, e.GC())

	for _, k := range keys[:10] {
		_, err := e.Get(k)
		require.ErrorIs(t, err, blockmap.ErrBlockNotFound)
	}
	for i, k := range keys[10:] {
		v, err := e.Get(k)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i + 10)}, v)
	}
}

func TestClearResetsKeyAllocation(t *testing.T) {
	e, err := Open(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Append([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, e.Clear())
	require.True(t, e.IsEmpty())

	k, err := e.Append([]byte("y"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), k)
}
