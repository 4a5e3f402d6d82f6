package backend

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func testChainConfig() *params.ChainConfig {
	return &params.ChainConfig{
		ChainID:             big.NewInt(1337),
		HomesteadBlock:      big.NewInt(0),
		EIP150Block:         big.NewInt(0),
		EIP155Block:         big.NewInt(0),
		EIP158Block:         big.NewInt(0),
		ByzantiumBlock:      big.NewInt(0),
		ConstantinopleBlock: big.NewInt(0),
		PetersburgBlock:     big.NewInt(0),
		IstanbulBlock:       big.NewInt(0),
		BerlinBlock:         big.NewInt(0),
		LondonBlock:         big.NewInt(0),
	}
}

func newTestBackend(t *testing.T, alloc map[common.Address]GenesisAccount) *Backend {
	t.Helper()
	b, err := New(Config{
		ChainConfig:    testChainConfig(),
		GenesisAlloc:   alloc,
		GenesisBaseFee: 1_000_000_000,
		PruneStateHistory: PruneStateHistory{
			MaxMemoryHistory: 64,
		},
	})
	require.NoError(t, err)
	return b
}

func TestNewSeedsGenesisAllocIntoLiveState(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	b := newTestBackend(t, map[common.Address]GenesisAccount{
		from: {Balance: uint256.NewInt(5_000_000_000_000_000_000)},
	})

	info, ok, err := b.chainDB.BasicRef(context.Background(), from)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5_000_000_000_000_000_000), info.Balance.Uint64())
}

func TestMineBlockAdvancesChainAndNotifiesSubscribers(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress("0xbeef")

	b := newTestBackend(t, map[common.Address]GenesisAccount{
		from: {Balance: uint256.NewInt(1_000_000_000_000_000_000)},
	})

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	tx := types.MustSignNewTx(key, types.NewEIP155Signer(big.NewInt(1337)), &types.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(1_000_000),
		Gas:      21_000,
		GasPrice: big.NewInt(2_000_000_000),
	})

	result, err := b.MineBlock(context.Background(), types.Transactions{tx})
	require.NoError(t, err)
	require.Len(t, result.Receipts, 1)
	require.Equal(t, uint64(1), b.store.BestNumber())

	select {
	case header := <-sub:
		require.Equal(t, uint64(1), header.Number.Uint64())
	default:
		t.Fatal("expected a block notification")
	}

	info, ok, err := b.chainDB.BasicRef(context.Background(), to)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1_000_000), info.Balance.Uint64())
}

func TestPendingBlockDoesNotCommit(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress("0xbeef")

	b := newTestBackend(t, map[common.Address]GenesisAccount{
		from: {Balance: uint256.NewInt(1_000_000_000_000_000_000)},
	})

	tx := types.MustSignNewTx(key, types.NewEIP155Signer(big.NewInt(1337)), &types.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(1_000_000),
		Gas:      21_000,
		GasPrice: big.NewInt(2_000_000_000),
	})

	result, err := b.PendingBlock(context.Background(), types.Transactions{tx})
	require.NoError(t, err)
	require.Len(t, result.Receipts, 1)

	require.Equal(t, uint64(0), b.store.BestNumber(), "pending block must not advance the chain")

	_, ok, err := b.chainDB.BasicRef(context.Background(), to)
	require.NoError(t, err)
	require.False(t, ok, "pending block must not leave committed state behind")
}

func TestSnapshotRevertRoundTripsBalance(t *testing.T) {
	addr := common.HexToAddress("0xaaaa")
	b := newTestBackend(t, map[common.Address]GenesisAccount{
		addr: {Balance: uint256.NewInt(10)},
	})

	id := b.Snapshot()
	b.chainDB.SetBalance(addr, uint256.NewInt(999))

	ok := b.Revert(id)
	require.True(t, ok)

	info, _, err := b.chainDB.BasicRef(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), info.Balance.Uint64())
}

func TestSnapshotRevertUndoesMinedBlock(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress("0xbeef")

	b := newTestBackend(t, map[common.Address]GenesisAccount{
		from: {Balance: uint256.NewInt(1_000_000_000_000_000_000)},
	})

	handle := b.Snapshot()

	tx := types.MustSignNewTx(key, types.NewEIP155Signer(big.NewInt(1337)), &types.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(1_000_000),
		Gas:      21_000,
		GasPrice: big.NewInt(2_000_000_000),
	})

	_, err = b.MineBlock(context.Background(), types.Transactions{tx})
	require.NoError(t, err)
	require.Equal(t, uint64(1), b.store.BestNumber())

	ok := b.Revert(handle)
	require.True(t, ok)

	require.Equal(t, uint64(0), b.store.BestNumber())
	_, _, err = b.store.TransactionByHash(tx.Hash())
	require.Error(t, err, "mined tx must no longer be found after revert")
}

func TestResolveBlockNumberHandlesTags(t *testing.T) {
	b := newTestBackend(t, nil)

	n, err := b.resolveBlockNumber(Latest())
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)

	n, err = b.resolveBlockNumber(Pending())
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)

	n, err = b.resolveBlockNumber(Earliest())
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)
}

func TestCheatSetBalanceOverwritesDirectly(t *testing.T) {
	addr := common.HexToAddress("0xcccc")
	b := newTestBackend(t, nil)

	b.SetBalance(addr, uint256.NewInt(42))
	info, ok, err := b.chainDB.BasicRef(context.Background(), addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), info.Balance.Uint64())
}

func TestNewOpensPebbleDiskTierWhenCachePathSet(t *testing.T) {
	addr := common.HexToAddress("0xeeee")
	b, err := New(Config{
		ChainConfig:    testChainConfig(),
		GenesisAlloc:   map[common.Address]GenesisAccount{addr: {Balance: uint256.NewInt(1)}},
		GenesisBaseFee: 1_000_000_000,
		CachePath:      t.TempDir(),
	})
	require.NoError(t, err)
	require.NotNil(t, b.diskStore)
	require.NoError(t, b.Close())
}

func TestDumpStateLoadStateRoundTrip(t *testing.T) {
	addr := common.HexToAddress("0xdddd")
	b := newTestBackend(t, map[common.Address]GenesisAccount{
		addr: {Balance: uint256.NewInt(777)},
	})

	blob, err := b.DumpState()
	require.NoError(t, err)

	b.SetBalance(addr, uint256.NewInt(1))

	require.NoError(t, b.LoadState(blob))

	info, ok, err := b.chainDB.BasicRef(context.Background(), addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(777), info.Balance.Uint64())
}
