package statecache

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/zenanetwork/zenadev/state"
)

func sampleCapture() state.Capture {
	addr := common.HexToAddress("0xaaaa")
	return state.Capture{
		Accounts: map[common.Address]*state.Account{
			addr: {
				Balance:  uint256.NewInt(100),
				Nonce:    1,
				CodeHash: state.KeccakEmptyCodeHash,
				Storage:  map[common.Hash]common.Hash{},
			},
		},
		BlockHashes: map[uint64]common.Hash{1: common.HexToHash("0x01")},
	}
}

func TestInsertAndGetStateFromMemory(t *testing.T) {
	c, err := New(Config{MemoryEntries: 4})
	require.NoError(t, err)

	cap1 := sampleCapture()
	require.NoError(t, c.Insert(1, [32]byte{0x01}, cap1))

	got, ok, err := c.GetState(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Accounts, 1)
}

func TestGetStateMissWithoutDiskReturnsFalse(t *testing.T) {
	c, err := New(Config{MemoryEntries: 4})
	require.NoError(t, err)

	_, ok, err := c.GetState(999)
	require.NoError(t, err)
	require.False(t, ok)
}

type memDisk struct {
	data map[string][]byte
}

func newMemDisk() *memDisk { return &memDisk{data: make(map[string][]byte)} }

func (d *memDisk) Get(key []byte) ([]byte, func() error, error) {
	v, ok := d.data[string(key)]
	if !ok {
		return nil, nil, pebble.ErrNotFound
	}
	return v, nil, nil
}

func (d *memDisk) Set(key, value []byte) error {
	d.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (d *memDisk) Delete(key []byte) error {
	delete(d.data, string(key))
	return nil
}

func TestDiskTierSurvivesMemoryEviction(t *testing.T) {
	disk := newMemDisk()
	c, err := New(Config{MemoryEntries: 1, Disk: disk})
	require.NoError(t, err)

	require.NoError(t, c.Insert(1, [32]byte{0x01}, sampleCapture()))
	require.NoError(t, c.Insert(2, [32]byte{0x02}, sampleCapture()))

	got, ok, err := c.GetOnDiskState(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Accounts, 1)
}

func TestEvictRemovesFromBothTiers(t *testing.T) {
	disk := newMemDisk()
	c, err := New(Config{MemoryEntries: 4, Disk: disk})
	require.NoError(t, err)

	require.NoError(t, c.Insert(1, [32]byte{0x01}, sampleCapture()))
	c.Evict(1)

	_, ok, err := c.GetState(1)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.GetOnDiskState(1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSerializedStatesRoundTrip(t *testing.T) {
	c, err := New(Config{MemoryEntries: 4})
	require.NoError(t, err)
	require.NoError(t, c.Insert(1, [32]byte{0x01}, sampleCapture()))

	blobs, err := c.SerializedStates()
	require.NoError(t, err)
	require.Contains(t, blobs, uint64(1))

	c2, err := New(Config{MemoryEntries: 4})
	require.NoError(t, err)
	require.NoError(t, c2.LoadStates(blobs))

	got, ok, err := c2.GetState(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Accounts, 1)
}

func TestRetuneChangesCapacityWithoutLosingFutureInserts(t *testing.T) {
	c, err := New(Config{MemoryEntries: 1})
	require.NoError(t, err)
	require.NoError(t, c.Retune(8))

	require.NoError(t, c.Insert(1, [32]byte{0x01}, sampleCapture()))
	require.NoError(t, c.Insert(2, [32]byte{0x02}, sampleCapture()))

	_, ok, _ := c.GetState(1)
	require.True(t, ok)
	_, ok, _ = c.GetState(2)
	require.True(t, ok)
}
