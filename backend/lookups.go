package backend

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zenanetwork/zenadev/chainstore"
	"github.com/zenanetwork/zenadev/internal/apierr"
	"github.com/zenanetwork/zenadev/state"
)

// BlockByNumber looks up a block by number, falling back to the fork
// provider for any number at or before the fork boundary that isn't
// already mirrored locally.
func (b *Backend) BlockByNumber(number uint64) (*types.Block, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.blockAtLocked(number)
}

// BlockByHash looks up a block by hash in the local store only: a fork
// provider is keyed by number for this backend's purposes, matching how
// ResetFork pins a single numbered boundary rather than an arbitrary hash.
func (b *Backend) BlockByHash(hash common.Hash) (*types.Block, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	block, ok := b.store.BlockByHash(hash)
	if !ok {
		return nil, apierr.NewBlockNotFound()
	}
	return block, nil
}

func (b *Backend) blockAtLocked(number uint64) (*types.Block, error) {
	if block, ok := b.store.BlockByNumber(number); ok {
		return block, nil
	}
	if b.forkClient != nil && b.forkClient.PredatesForkInclusive(number) {
		block, err := b.forkClient.BlockByNumber(context.Background(), number, true)
		if err != nil {
			return nil, err
		}
		return block, nil
	}
	return nil, apierr.NewBlockNotFound()
}

// TransactionByHash looks up a transaction locally, then via the fork
// provider if this is a forked backend.
func (b *Backend) TransactionByHash(hash common.Hash) (*types.Transaction, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tx, _, err := b.store.TransactionByHash(hash)
	if err == nil {
		return tx, nil
	}
	if b.forkClient != nil {
		if tx, err := b.forkClient.TransactionByHash(context.Background(), hash); err == nil {
			return tx, nil
		}
	}
	return nil, apierr.NewTransactionNotFound()
}

// TransactionReceipt mirrors TransactionByHash's local-then-fork lookup.
func (b *Backend) TransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	receipt, _, err := b.store.TransactionReceipt(hash)
	if err == nil {
		return receipt, nil
	}
	if b.forkClient != nil {
		if receipt, err := b.forkClient.TransactionReceipt(context.Background(), hash); err == nil {
			return receipt, nil
		}
	}
	return nil, apierr.NewTransactionNotFound()
}

// Logs evaluates filter against locally mined blocks, falling back to the
// fork provider for the portion of the range that predates the fork.
func (b *Backend) Logs(filter chainstore.LogFilter) ([]*types.Log, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	logs := b.store.Logs(filter)
	if b.forkClient == nil || !b.forkClient.PredatesForkInclusive(filter.FromBlock) {
		return logs, nil
	}

	to := filter.ToBlock
	if to > b.forkClient.ForkBlockNumber() {
		to = b.forkClient.ForkBlockNumber()
	}
	addrs := make([]common.Address, 0, len(filter.Addresses))
	for addr := range filter.Addresses {
		addrs = append(addrs, addr)
	}
	remote, err := b.forkClient.Logs(context.Background(), filter.FromBlock, to, addrs, filter.Topics)
	if err != nil {
		return nil, err
	}
	return append(remote, logs...), nil
}

// dbAtLocked resolves the state.DB to evaluate a call or trace against
// block number. The live tip is served directly, wrapped in a snapshot
// that the returned cleanup reverts; any earlier block is served from a
// materialized historical capture instead, which needs no cleanup since
// it's a throwaway copy.
func (b *Backend) dbAtLocked(number uint64) (state.DB, func(), error) {
	if number == b.store.BestNumber() {
		snap := b.chainDB.SnapshotState()
		return b.chainDB, func() { b.chainDB.RevertState(snap, state.RevertRemove) }, nil
	}

	if capture, ok, err := b.cache.GetState(number); err != nil {
		return nil, nil, err
	} else if ok {
		mem := state.NewMem()
		mem.LoadState(capture)
		return mem, func() {}, nil
	}

	if b.forkClient != nil && b.forkClient.PredatesForkInclusive(number) {
		return state.NewForked(b.forkClient), func() {}, nil
	}

	return nil, nil, apierr.NewDataUnavailable()
}
