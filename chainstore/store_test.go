package chainstore

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func block(number uint64, parent common.Hash, txs types.Transactions) *types.Block {
	h := &types.Header{
		ParentHash: parent,
		Number:     new(big.Int).SetUint64(number),
		Time:       number,
		GasLimit:   30_000_000,
	}
	return types.NewBlock(h, &types.Body{Transactions: txs}, nil, nil)
}

func legacyTx(nonce uint64) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &common.Address{},
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
}

func TestNewSeedsGenesisAsBest(t *testing.T) {
	genesis := block(0, common.Hash{}, nil)
	s := New(genesis)

	require.Equal(t, uint64(0), s.BestNumber())
	require.Equal(t, genesis.Hash(), s.BestHash())
	require.Equal(t, genesis.Hash(), s.GenesisHash())
}

func TestInsertBlockAdvancesBestAndIndexesTransactions(t *testing.T) {
	genesis := block(0, common.Hash{}, nil)
	s := New(genesis)

	tx := legacyTx(0)
	b1 := block(1, genesis.Hash(), types.Transactions{tx})
	s.InsertBlock(b1, types.Receipts{&types.Receipt{}}, big.NewInt(100))

	require.Equal(t, uint64(1), s.BestNumber())
	require.Equal(t, b1.Hash(), s.BestHash())

	got, loc, err := s.TransactionByHash(tx.Hash())
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), got.Hash())
	require.Equal(t, uint64(1), loc.BlockNumber)
	require.Equal(t, uint64(0), loc.Index)
}

func TestTransactionByHashMissingReturnsTypedError(t *testing.T) {
	s := New(block(0, common.Hash{}, nil))
	_, _, err := s.TransactionByHash(common.HexToHash("0xdead"))
	require.Error(t, err)
}

func TestUnwindToDropsLaterBlocksAndTheirTransactions(t *testing.T) {
	genesis := block(0, common.Hash{}, nil)
	s := New(genesis)
	tx := legacyTx(0)
	b1 := block(1, genesis.Hash(), types.Transactions{tx})
	s.InsertBlock(b1, types.Receipts{&types.Receipt{}}, big.NewInt(1))

	s.UnwindTo(0)

	_, ok := s.BlockByNumber(1)
	require.False(t, ok)
	_, _, err := s.TransactionByHash(tx.Hash())
	require.Error(t, err)
	require.Equal(t, uint64(0), s.BestNumber())
}

func TestLogsFiltersByAddressAndTopic(t *testing.T) {
	genesis := block(0, common.Hash{}, nil)
	s := New(genesis)

	addrA := common.HexToAddress("0xaaaa")
	addrB := common.HexToAddress("0xbbbb")
	topic := common.HexToHash("0x01")

	receipt := &types.Receipt{Logs: []*types.Log{
		{Address: addrA, Topics: []common.Hash{topic}},
		{Address: addrB, Topics: []common.Hash{common.HexToHash("0x02")}},
	}}
	b1 := block(1, genesis.Hash(), nil)
	s.InsertBlock(b1, types.Receipts{receipt}, big.NewInt(1))

	logs := s.Logs(LogFilter{
		FromBlock: 0,
		ToBlock:   1,
		Addresses: map[common.Address]struct{}{addrA: {}},
		Topics:    [][]common.Hash{{topic}},
	})
	require.Len(t, logs, 1)
	require.Equal(t, addrA, logs[0].Address)
}

func TestSerializedBlocksRoundTrip(t *testing.T) {
	genesis := block(0, common.Hash{}, nil)
	s := New(genesis)
	b1 := block(1, genesis.Hash(), nil)
	s.InsertBlock(b1, types.Receipts{}, big.NewInt(5))

	dump := s.SerializedBlocks()
	require.Len(t, dump, 2)

	restored := New(block(0, common.Hash{}, nil))
	restored.LoadBlocks(dump)
	require.Equal(t, s.BestNumber(), restored.BestNumber())
}
