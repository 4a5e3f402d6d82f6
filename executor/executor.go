// Package executor implements C9: turning a list of transactions plus a
// parent header into a mined block, running every transaction through the
// EVM boundary (package evmhost) against a state.DB and assembling the
// resulting receipts, logs, and header roots the way
// core.StateProcessor.Process does.
package executor

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/zenanetwork/zenadev/evmhost"
	"github.com/zenanetwork/zenadev/internal/apierr"
	"github.com/zenanetwork/zenadev/state"
	"github.com/zenanetwork/zenadev/txvalidator"
)

// Executor is the C9 component: one chain config, one EVM factory, one
// validator, reused across every block it mines.
type Executor struct {
	chainConfig *params.ChainConfig
	evm         *evmhost.GethEVM
	validator   *txvalidator.Validator
}

func New(chainConfig *params.ChainConfig, vmConfig evmhost.Config) *Executor {
	return &Executor{
		chainConfig: chainConfig,
		evm:         evmhost.NewGethEVM(chainConfig, vmConfig),
		validator:   txvalidator.New(chainConfig),
	}
}

// Bind exposes the executor's EVM factory directly, for callers (the
// backend's call/simulate paths) that need to apply a single message
// without going through ExecuteBlock's per-transaction bookkeeping.
func (e *Executor) Bind(db state.DB) evmhost.EVM {
	return e.evm.Bind(db)
}

// BindWithTracer is Bind with hooks attached to every call made through the
// returned EVM, for the backend's trace/debug operations.
func (e *Executor) BindWithTracer(db state.DB, hooks *tracing.Hooks) evmhost.EVM {
	return e.evm.BindWithTracer(db, hooks)
}

// BlockParams carries the facts the backend (C10) has already decided for
// the block about to be mined: everything the executor needs that isn't
// derived from the transactions or the parent header.
type BlockParams struct {
	Number        uint64
	Timestamp     uint64
	Coinbase      common.Address
	GasLimit      uint64
	BaseFee       *big.Int
	ExcessBlobGas uint64
	BlobBaseFee   *big.Int
	GetHash       func(uint64) common.Hash
}

// Result is what ExecuteBlock produces: the assembled block together with
// its receipts (the block itself only carries the receipt root, not the
// receipts, matching core.types.Block).
type Result struct {
	Block    *types.Block
	Receipts types.Receipts
	Logs     []*types.Log
}

// ExecuteBlock runs every transaction in order against db, committing each
// one's effects directly (a dev node never needs speculative execution),
// and assembles the resulting block. A transaction that fails admission
// validation is skipped rather than aborting the whole block, mirroring how
// a real miner drops an invalid transaction from the block it is building.
func (e *Executor) ExecuteBlock(ctx context.Context, db state.DB, parent *types.Header, txs types.Transactions, params_ BlockParams) (*Result, error) {
	bound := e.evm.Bind(db)

	var (
		receipts   types.Receipts
		logs       []*types.Log
		cumulative uint64
		included   types.Transactions
	)

	validatorCtx := txvalidator.Context{
		BlockNumber: params_.Number,
		BlockTime:   params_.Timestamp,
		BaseFee:     params_.BaseFee,
		BlobBaseFee: params_.BlobBaseFee,
		IsEIP155:    true,
	}

	for _, tx := range txs {
		if err := e.validator.Validate(ctx, db, tx, validatorCtx); err != nil {
			continue
		}

		msg, err := messageFromTransaction(tx, params_.BaseFee)
		if err != nil {
			continue
		}

		snap := db.SnapshotState()
		result, err := bound.ApplyMessage(ctx, evmhost.BlockContext{
			Coinbase:    params_.Coinbase,
			BlockNumber: params_.Number,
			Time:        params_.Timestamp,
			Difficulty:  new(big.Int),
			GasLimit:    params_.GasLimit,
			BaseFee:     params_.BaseFee,
			BlobBaseFee: params_.BlobBaseFee,
			Random:      randaoPtr(deriveRandao(parent.Hash(), params_.Number)),
			GetHash:     params_.GetHash,
		}, msg)
		if err != nil {
			db.RevertState(snap, state.RevertRemove)
			continue
		}

		cumulative += result.GasUsed
		receipt := buildReceipt(tx, result, cumulative)
		receipts = append(receipts, receipt)
		logs = append(logs, result.Logs...)
		included = append(included, tx)
	}

	header := &types.Header{
		ParentHash:    parent.Hash(),
		Coinbase:      params_.Coinbase,
		Number:        new(big.Int).SetUint64(params_.Number),
		GasLimit:      params_.GasLimit,
		GasUsed:       cumulative,
		Time:          params_.Timestamp,
		BaseFee:       params_.BaseFee,
		MixDigest:     deriveRandao(parent.Hash(), params_.Number),
		ExcessBlobGas: &params_.ExcessBlobGas,
		TxHash:        types.DeriveSha(included, trie.NewStackTrie(nil)),
		ReceiptHash:   types.DeriveSha(receipts, trie.NewStackTrie(nil)),
		Bloom:         types.CreateBloom(receipts),
	}

	block := types.NewBlock(header, &types.Body{Transactions: included}, receipts, trie.NewStackTrie(nil))
	return &Result{Block: block, Receipts: receipts, Logs: logs}, nil
}

// blockContextFor rebuilds the evmhost.BlockContext a block's own
// transactions were originally run against, for replay by ReplayBlock/
// ReplayTransaction. Random reuses the header's own MixDigest rather than
// recomputing deriveRandao, since the header already carries whatever value
// was derived when the block was first mined.
func blockContextFor(block *types.Block, getHash func(uint64) common.Hash) evmhost.BlockContext {
	mix := block.MixDigest()
	return evmhost.BlockContext{
		Coinbase:    block.Coinbase(),
		BlockNumber: block.NumberU64(),
		Time:        block.Time(),
		Difficulty:  new(big.Int),
		GasLimit:    block.GasLimit(),
		BaseFee:     block.BaseFee(),
		BlobBaseFee: new(big.Int),
		Random:      &mix,
		GetHash:     getHash,
	}
}

// ReplayBlock re-executes every transaction already included in block
// against db with hooks attached to every one of them, for debug_traceBlock-
// shaped operations. db is expected to already hold the state the block's
// parent left behind; ReplayBlock does not itself resolve or load parent
// state.
func (e *Executor) ReplayBlock(ctx context.Context, db state.DB, block *types.Block, getHash func(uint64) common.Hash, hooks *tracing.Hooks) error {
	bound := e.evm.BindWithTracer(db, hooks)
	bctx := blockContextFor(block, getHash)
	for _, tx := range block.Transactions() {
		msg, err := messageFromTransaction(tx, bctx.BaseFee)
		if err != nil {
			return fmt.Errorf("executor: replay block %d: %w", block.NumberU64(), err)
		}
		if _, err := bound.ApplyMessage(ctx, bctx, msg); err != nil {
			return fmt.Errorf("executor: replay tx %s: %w", tx.Hash(), err)
		}
	}
	return nil
}

// ReplayTransaction re-executes block's transactions in order against db,
// the same way ReplayBlock does, but only attaches hooks to the transaction
// at txIndex: every transaction before it is replayed silently (no tracer)
// purely to rebuild the state that transaction actually ran against.
func (e *Executor) ReplayTransaction(ctx context.Context, db state.DB, block *types.Block, txIndex int, getHash func(uint64) common.Hash, hooks *tracing.Hooks) error {
	if txIndex < 0 || txIndex >= len(block.Transactions()) {
		return fmt.Errorf("executor: replay tx: index %d out of range for block %d", txIndex, block.NumberU64())
	}

	bctx := blockContextFor(block, getHash)
	plain := e.evm.Bind(db)
	for i, tx := range block.Transactions() {
		if i == txIndex {
			break
		}
		msg, err := messageFromTransaction(tx, bctx.BaseFee)
		if err != nil {
			return fmt.Errorf("executor: replay tx %d: %w", i, err)
		}
		if _, err := plain.ApplyMessage(ctx, bctx, msg); err != nil {
			return fmt.Errorf("executor: replay tx %d: %w", i, err)
		}
	}

	traced := e.evm.BindWithTracer(db, hooks)
	msg, err := messageFromTransaction(block.Transactions()[txIndex], bctx.BaseFee)
	if err != nil {
		return fmt.Errorf("executor: replay traced tx: %w", err)
	}
	_, err = traced.ApplyMessage(ctx, bctx, msg)
	return err
}

func messageFromTransaction(tx *types.Transaction, baseFee *big.Int) (*evmhost.Message, error) {
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, apierr.NewInvalidTx(apierr.InvalidChainId, err.Error())
	}

	gasPrice := tx.GasPrice()
	if tx.Type() >= types.DynamicFeeTxType && baseFee != nil {
		gasPrice = new(big.Int).Add(tx.GasTipCap(), baseFee)
		if gasPrice.Cmp(tx.GasFeeCap()) > 0 {
			gasPrice = tx.GasFeeCap()
		}
	}

	return &evmhost.Message{
		From:          from,
		To:            tx.To(),
		Nonce:         tx.Nonce(),
		Value:         tx.Value(),
		GasLimit:      tx.Gas(),
		GasPrice:      gasPrice,
		GasFeeCap:     tx.GasFeeCap(),
		GasTipCap:     tx.GasTipCap(),
		Data:          tx.Data(),
		AccessList:    tx.AccessList(),
		BlobHashes:    tx.BlobHashes(),
		BlobGasFeeCap: tx.BlobGasFeeCap(),
	}, nil
}

func buildReceipt(tx *types.Transaction, result evmhost.CallResult, cumulativeGasUsed uint64) *types.Receipt {
	status := types.ReceiptStatusSuccessful
	if result.Reverted {
		status = types.ReceiptStatusFailed
	}
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: cumulativeGasUsed,
		TxHash:            tx.Hash(),
		GasUsed:           result.GasUsed,
		Logs:              result.Logs,
		ContractAddress:   contractAddressOrZero(result.ContractAddress),
	}
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
	return receipt
}

func contractAddressOrZero(addr *common.Address) common.Address {
	if addr == nil {
		return common.Address{}
	}
	return *addr
}

// deriveRandao stands in for beacon-chain RANDAO in a dev node that has no
// real proof-of-stake randomness: a deterministic, reproducible value that
// still varies per block so PREVRANDAO-reading contracts see a fresh value
// every block instead of a constant.
func deriveRandao(parentHash common.Hash, number uint64) common.Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], number)
	return crypto.Keccak256Hash(parentHash.Bytes(), buf[:])
}

func randaoPtr(h common.Hash) *common.Hash { return &h }
