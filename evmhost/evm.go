// Package evmhost is the seam between the backend's own state and
// transaction types and the EVM interpreter itself. The interpreter is
// treated as an external collaborator: this package defines the narrow
// interface the executor actually needs (EVM) and, in gethevm.go, the one
// file that shims state.DB into go-ethereum's core/vm.StateDB. Every
// place that would otherwise have to know go-ethereum's (version-sensitive)
// StateDB method set is confined to that single adapter.
package evmhost

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

// BlockContext carries the per-block facts the interpreter needs that are
// not part of any transaction: the pieces of vm.BlockContext the executor
// assembles fresh for every block.
type BlockContext struct {
	Coinbase    common.Address
	BlockNumber uint64
	Time        uint64
	Difficulty  *big.Int
	GasLimit    uint64
	BaseFee     *big.Int
	BlobBaseFee *big.Int
	Random      *common.Hash
	GetHash     func(uint64) common.Hash
}

// CallResult is what a single message call or contract creation produces:
// enough for the executor to build a receipt and for call/simulate RPCs to
// report a result without re-deriving anything from interpreter internals.
type CallResult struct {
	ReturnData      []byte
	GasUsed         uint64
	Reverted        bool
	ContractAddress *common.Address
	Logs            []*types.Log
}

// EVM is everything the executor (C9) needs from the interpreter: apply one
// transaction's message against a block context and state, and report what
// happened. Tracing hooks are threaded in through vm.Config on Host
// construction rather than this interface, matching how go-ethereum's own
// EVM takes a Config at construction time.
type EVM interface {
	// ApplyMessage executes msg against the given block context, returning
	// the outcome. ctx is honored for cancellation of long-running calls
	// (trace/debug operations); state execution itself is not otherwise
	// asynchronous.
	ApplyMessage(ctx context.Context, bctx BlockContext, msg *Message) (CallResult, error)
}

// Message is the executor's transaction-shaped input to the interpreter,
// deliberately not *types.Transaction: eth_call and simulate construct one
// without ever forming a signed transaction.
type Message struct {
	From       common.Address
	To         *common.Address
	Nonce      uint64
	Value      *big.Int
	GasLimit   uint64
	GasPrice   *big.Int
	GasFeeCap  *big.Int
	GasTipCap  *big.Int
	Data       []byte
	AccessList types.AccessList
	BlobHashes []common.Hash
	BlobGasFeeCap *big.Int
	// SkipNonceCheck and SkipBalanceCheck are used by eth_call and simulate
	// so a call from an account with insufficient balance or a stale nonce
	// still executes. GethEVM folds them into core.Message's single
	// SkipAccountChecks flag, so setting either one skips both checks.
	SkipNonceCheck   bool
	SkipBalanceCheck bool
}

// Config re-exports vm.Config so callers constructing a GethEVM (see
// NewGethEVM in gethevm.go) never need their own import of go-ethereum's vm
// package for this one type.
type Config = vm.Config

// ChainConfig is re-exported so callers assembling a GethEVM never need
// their own import of go-ethereum/params for this one type.
type ChainConfig = params.ChainConfig
