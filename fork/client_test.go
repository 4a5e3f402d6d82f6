package fork

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/zenanetwork/zenadev/state"
)

type fakeProvider struct {
	storageCalls int32
	codeCalls    int32
	storageValue common.Hash
	code         []byte
}

func (f *fakeProvider) BlockByHash(context.Context, common.Hash, bool) (*types.Block, error) {
	return nil, nil
}
func (f *fakeProvider) BlockByNumber(context.Context, uint64, bool) (*types.Block, error) {
	return nil, nil
}
func (f *fakeProvider) TransactionByHash(context.Context, common.Hash) (*types.Transaction, error) {
	return nil, nil
}
func (f *fakeProvider) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *fakeProvider) BlockReceipts(context.Context, uint64) (types.Receipts, error) { return nil, nil }
func (f *fakeProvider) Logs(context.Context, uint64, uint64, []common.Address, [][]common.Hash) ([]*types.Log, error) {
	return nil, nil
}
func (f *fakeProvider) AccountAt(context.Context, common.Address, uint64) (state.Info, bool, error) {
	return state.Info{Balance: uint256.NewInt(1)}, true, nil
}
func (f *fakeProvider) StorageAt(context.Context, common.Address, common.Hash, uint64) (common.Hash, error) {
	atomic.AddInt32(&f.storageCalls, 1)
	return f.storageValue, nil
}
func (f *fakeProvider) CodeByHash(context.Context, common.Hash) ([]byte, error) {
	atomic.AddInt32(&f.codeCalls, 1)
	return f.code, nil
}
func (f *fakeProvider) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }
func (f *fakeProvider) TraceTransaction(context.Context, common.Hash, string) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) TraceBlock(context.Context, uint64, string) ([]byte, error) { return nil, nil }

func TestPredatesFork(t *testing.T) {
	c := New(&fakeProvider{}, 100, common.Hash{}, big.NewInt(1))
	require.True(t, c.PredatesFork(50))
	require.False(t, c.PredatesFork(100))
	require.True(t, c.PredatesForkInclusive(100))
	require.False(t, c.PredatesForkInclusive(101))
}

func TestStorageAtMemoizesRawPayload(t *testing.T) {
	p := &fakeProvider{storageValue: common.HexToHash("0x42")}
	c := New(p, 10, common.Hash{}, big.NewInt(1))

	addr := common.HexToAddress("0xaaaa")
	slot := common.HexToHash("0x01")

	v1, err := c.StorageAt(context.Background(), addr, slot)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x42"), v1)

	v2, err := c.StorageAt(context.Background(), addr, slot)
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Equal(t, int32(1), p.storageCalls, "second read should be served from the raw cache")
}

func TestChainIDPrefersConfiguredValue(t *testing.T) {
	c := New(&fakeProvider{}, 10, common.Hash{}, big.NewInt(9999))
	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9999), id)
}

func TestResetClearsRawCache(t *testing.T) {
	p := &fakeProvider{storageValue: common.HexToHash("0x01")}
	c := New(p, 10, common.Hash{}, big.NewInt(1))
	addr := common.HexToAddress("0xbbbb")
	slot := common.HexToHash("0x02")
	_, err := c.StorageAt(context.Background(), addr, slot)
	require.NoError(t, err)

	c.Reset(p, 20, common.Hash{}, big.NewInt(2))
	_, err = c.StorageAt(context.Background(), addr, slot)
	require.NoError(t, err)
	require.Equal(t, int32(2), p.storageCalls, "reset must drop the previous raw cache")
}
