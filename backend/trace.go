package backend

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"

	"github.com/zenanetwork/zenadev/evmhost"
	"github.com/zenanetwork/zenadev/internal/apierr"
)

// CallWithTracing is Call with hooks attached to the single message
// executed. Per the decision to expose vm.Config.Tracer directly rather
// than normalize tracer output (see DESIGN.md's tracer-variant-subset
// decision), hooks is whatever the caller constructed — a
// logger.StructLogger, a custom tracing.Hooks value, anything shaped to
// observe execution the way it wants. CallWithTracing reports only
// whether the underlying call itself errored; everything the tracer
// captured lives in hooks' own state once this returns.
func (b *Backend) CallWithTracing(ctx context.Context, msg *evmhost.Message, tag BlockTag, hooks *tracing.Hooks) (evmhost.CallResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	number, err := b.resolveBlockNumberLocked(tag)
	if err != nil {
		return evmhost.CallResult{}, err
	}

	db, cleanup, err := b.dbAtLocked(number)
	if err != nil {
		return evmhost.CallResult{}, err
	}
	defer cleanup()

	block, err := b.blockAtLocked(number)
	if err != nil {
		return evmhost.CallResult{}, err
	}

	bound := b.exec.BindWithTracer(db, hooks)
	return bound.ApplyMessage(ctx, evmhost.BlockContext{
		Coinbase:    block.Coinbase(),
		BlockNumber: block.NumberU64(),
		Time:        block.Time(),
		Difficulty:  new(big.Int),
		GasLimit:    block.GasLimit(),
		BaseFee:     block.BaseFee(),
		BlobBaseFee: new(big.Int),
		GetHash:     b.getHashLocked,
	}, msg)
}

// TraceBlock re-executes every transaction of the block at number against
// the state its parent left behind, with hooks attached throughout: the
// local-chain counterpart to fork.Client.TraceBlock's remote-RPC path, used
// once the target block predates no fork boundary (or there is none).
func (b *Backend) TraceBlock(ctx context.Context, number uint64, hooks *tracing.Hooks) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	block, err := b.blockAtLocked(number)
	if err != nil {
		return err
	}
	if number == 0 {
		return apierr.NewDataUnavailable()
	}

	db, cleanup, err := b.dbAtLocked(number - 1)
	if err != nil {
		return err
	}
	defer cleanup()

	return b.exec.ReplayBlock(ctx, db, block, b.getHashLocked, hooks)
}

// TraceTransaction re-executes the block containing hash up through that
// transaction, with hooks attached only to it: the local-chain counterpart
// to fork.Client.TraceTransaction and the operation debug_traceTransaction
// names at the transport layer.
func (b *Backend) TraceTransaction(ctx context.Context, hash common.Hash, hooks *tracing.Hooks) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, loc, err := b.store.TransactionByHash(hash)
	if err != nil {
		return err
	}
	if loc.BlockNumber == 0 {
		return apierr.NewDataUnavailable()
	}

	block, ok := b.store.BlockByHash(loc.BlockHash)
	if !ok {
		return apierr.NewTransactionNotFound()
	}

	db, cleanup, err := b.dbAtLocked(loc.BlockNumber - 1)
	if err != nil {
		return err
	}
	defer cleanup()

	return b.exec.ReplayTransaction(ctx, db, block, int(loc.Index), b.getHashLocked, hooks)
}
