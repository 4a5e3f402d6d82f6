package state

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestMemSetAndReadBack(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	addr := common.HexToAddress("0xaaaa")

	m.SetBalance(addr, uint256.NewInt(100))
	m.SetNonce(addr, 7)
	m.SetCode(addr, []byte{0x60, 0x00})

	info, ok, err := m.BasicRef(ctx, addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), info.Nonce)
	require.Equal(t, uint64(100), info.Balance.Uint64())

	code, err := m.CodeByHashRef(ctx, info.CodeHash)
	require.NoError(t, err)
	require.Equal(t, []byte{0x60, 0x00}, code)
}

func TestMemStorageZeroIsDeleted(t *testing.T) {
	m := NewMem()
	addr := common.HexToAddress("0xbbbb")
	slot := common.HexToHash("0x01")

	m.SetStorageAt(addr, slot, common.HexToHash("0x02"))
	m.SetStorageAt(addr, slot, common.Hash{})

	v, err := m.StorageRef(context.Background(), addr, slot)
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, v)
}

func TestSnapshotRevertRestoresExactState(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	addr := common.HexToAddress("0xcccc")
	m.SetBalance(addr, uint256.NewInt(10))

	snap := m.SnapshotState()

	m.SetBalance(addr, uint256.NewInt(999))
	m.SetNonce(addr, 5)

	ok := m.RevertState(snap, RevertRemove)
	require.True(t, ok)

	info, _, err := m.BasicRef(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), info.Balance.Uint64())
	require.Equal(t, uint64(0), info.Nonce)
}

func TestRevertRemoveDiscardsLaterSnapshots(t *testing.T) {
	m := NewMem()
	addr := common.HexToAddress("0xdddd")

	s1 := m.SnapshotState()
	m.SetBalance(addr, uint256.NewInt(1))
	s2 := m.SnapshotState()
	m.SetBalance(addr, uint256.NewInt(2))

	require.True(t, m.RevertState(s1, RevertRemove))
	require.False(t, m.RevertState(s2, RevertRemove))
}

func TestRevertKeepPreservesTargetSnapshot(t *testing.T) {
	m := NewMem()
	addr := common.HexToAddress("0xeeee")
	m.SetBalance(addr, uint256.NewInt(1))
	s1 := m.SnapshotState()
	m.SetBalance(addr, uint256.NewInt(2))

	require.True(t, m.RevertState(s1, RevertKeep))
	require.True(t, m.RevertState(s1, RevertRemove))
}

func TestClearReturnsGenesisEquivalentState(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	addr := common.HexToAddress("0xffff")
	m.SetBalance(addr, uint256.NewInt(42))
	m.InsertBlockHash(1, common.HexToHash("0x01"))

	m.Clear()

	_, ok, err := m.BasicRef(ctx, addr)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok = m.BlockHash(1)
	require.True(t, ok, "clearing account state retains block-hash history")
}

type fakeSource struct {
	info Info
	code []byte
}

func (f fakeSource) AccountAt(context.Context, common.Address) (Info, bool, error) {
	return f.info, true, nil
}
func (f fakeSource) CodeByHash(context.Context, common.Hash) ([]byte, error) { return f.code, nil }
func (f fakeSource) StorageAt(context.Context, common.Address, common.Hash) (common.Hash, error) {
	return common.HexToHash("0x09"), nil
}

func TestForkedFallsBackToRemoteOnMiss(t *testing.T) {
	ctx := context.Background()
	src := fakeSource{info: Info{Balance: uint256.NewInt(55), Nonce: 3, CodeHash: KeccakEmptyCodeHash}}
	f := NewForked(src)
	addr := common.HexToAddress("0x1234")

	info, ok, err := f.BasicRef(ctx, addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(55), info.Balance.Uint64())

	// Second read must be served from the overlay without re-consulting
	// the remote source (no way to observe directly here, but a local
	// override should now shadow it).
	f.SetBalance(addr, uint256.NewInt(1))
	info2, _, err := f.BasicRef(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1), info2.Balance.Uint64())
}

func TestForkedStorageFallsBackOnMiss(t *testing.T) {
	ctx := context.Background()
	f := NewForked(fakeSource{info: Info{Balance: new(uint256.Int), CodeHash: KeccakEmptyCodeHash}})
	addr := common.HexToAddress("0x5678")
	slot := common.HexToHash("0x01")

	v, err := f.StorageRef(ctx, addr, slot)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x09"), v)
}
