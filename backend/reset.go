package backend

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/zenanetwork/zenadev/fork"
	"github.com/zenanetwork/zenadev/internal/zlog"
	"github.com/zenanetwork/zenadev/state"
)

// ResetFork rewires the backend onto a new remote provider pinned at
// forkBlockNumber/forkBlockHash, discarding every locally mined block and
// all in-memory state: the equivalent of anvil_reset with a new fork
// config.
func (b *Backend) ResetFork(ctx context.Context, provider fork.Provider, forkBlockNumber uint64, forkBlockHash common.Hash, chainID *big.Int) error {
	cfg := b.cfg
	cfg.Fork = provider
	cfg.ForkBlockNumber = forkBlockNumber
	cfg.ForkBlockHash = forkBlockHash
	if chainID != nil {
		cfg.ForkChainID = uint256.MustFromBig(chainID)
	}

	cache, disk, err := newCache(cfg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.initForked(ctx, cfg); err != nil {
		if disk != nil {
			disk.Close()
		}
		return err
	}
	if b.diskStore != nil {
		b.diskStore.Close()
	}
	b.cfg = cfg
	b.cache = cache
	b.diskStore = disk
	zlog.Info("reset to fork", "forkBlockNumber", forkBlockNumber, "forkBlockHash", forkBlockHash)
	return nil
}

// ResetToInMem tears down any fork binding and rebuilds a fresh in-memory
// genesis, per the original Config's GenesisAlloc: the equivalent of
// anvil_reset with no fork argument.
func (b *Backend) ResetToInMem() error {
	cfg := b.cfg
	cfg.Fork = nil

	cache, disk, err := newCache(cfg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.diskStore != nil {
		b.diskStore.Close()
	}
	b.cfg = cfg
	b.cache = cache
	b.diskStore = disk
	b.initInMem(cfg)
	zlog.Info("reset to in-memory genesis")
	return nil
}

// Reorg drops the most recent depth blocks and replaces them by mining
// blocks, one per entry in txBatches, from the resulting fork point. The
// historical state captured at the fork point must still be resident in
// statecache; a depth reaching further back than statecache's retention
// window fails rather than silently reconstructing incomplete state.
func (b *Backend) Reorg(ctx context.Context, depth uint64, txBatches []types.Transactions) error {
	b.mu.Lock()
	target := b.store.BestNumber()
	if depth > target {
		target = 0
	} else {
		target = target - depth
	}

	capture, ok, err := b.cache.GetState(target)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("backend: reorg target block %d has no retained state", target)
	}

	mem, isMem := b.chainDB.(*state.Mem)
	if !isMem {
		b.mu.Unlock()
		return fmt.Errorf("backend: reorg is only supported against in-memory state")
	}
	mem.LoadState(capture)
	b.store.UnwindTo(target)
	for n := target + 1; n <= target+depth; n++ {
		b.cache.Evict(n)
	}
	b.mu.Unlock()
	zlog.Info("reorg", "depth", depth, "target", target)

	for _, batch := range txBatches {
		if _, err := b.MineBlock(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
