package statecache

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/require"
)

func TestPebbleDiskStoreRoundTrip(t *testing.T) {
	store, err := OpenPebbleDiskStore(filepath.Join(t.TempDir(), "statecache"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set([]byte("k"), []byte("v")))

	got, closer, err := store.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
	if closer != nil {
		require.NoError(t, closer())
	}

	require.NoError(t, store.Delete([]byte("k")))
	_, _, err = store.Get([]byte("k"))
	require.ErrorIs(t, err, pebble.ErrNotFound)
}

func TestCacheWithPebbleDiskTier(t *testing.T) {
	store, err := OpenPebbleDiskStore(filepath.Join(t.TempDir(), "statecache"))
	require.NoError(t, err)
	defer store.Close()

	c, err := New(Config{MemoryEntries: 1, Disk: store})
	require.NoError(t, err)

	require.NoError(t, c.Insert(1, [32]byte{0x01}, sampleCapture()))
	require.NoError(t, c.Insert(2, [32]byte{0x02}, sampleCapture()))

	got, ok, err := c.GetOnDiskState(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Accounts, 1)
}
