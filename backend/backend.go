package backend

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
	"golang.org/x/sync/semaphore"

	"github.com/zenanetwork/zenadev/cheats"
	"github.com/zenanetwork/zenadev/chainstore"
	"github.com/zenanetwork/zenadev/evmhost"
	"github.com/zenanetwork/zenadev/executor"
	"github.com/zenanetwork/zenadev/feemanager"
	"github.com/zenanetwork/zenadev/fork"
	"github.com/zenanetwork/zenadev/internal/apierr"
	"github.com/zenanetwork/zenadev/internal/zlog"
	"github.com/zenanetwork/zenadev/state"
	"github.com/zenanetwork/zenadev/statecache"
	"github.com/zenanetwork/zenadev/timekeeper"
)

// Backend is C10: the single object every transport (JSON-RPC server,
// CLI) drives. It owns C1 (fees/clock live here as feemanager/timekeeper),
// C4 (state.DB), C5 (statecache.Cache), C6 (chainstore.Store), C7
// (fork.Client), C8 (txvalidator, via executor), and C9 (executor).
//
// Lock ordering, per spec §5: miningGuard, then mu (which stands in for
// "StateDB then BlockchainStorage then HistoricalCache" — those three are
// swapped as a unit on fork reset/reorg, so a single RWMutex orders
// access to the pointers without forcing every caller to reason about
// three separate locks), then the independently-locked Env/Fees/Time/
// Cheats managers, taken last and released first.
type Backend struct {
	cfg Config

	miningGuard *semaphore.Weighted

	mu         sync.RWMutex
	chainDB    state.DB
	store      *chainstore.Store
	cache      *statecache.Cache
	diskStore  io.Closer
	forkClient *fork.Client

	fees   *feemanager.Manager
	clock  *timekeeper.Manager
	cheats *cheats.Manager
	exec   *executor.Executor

	notify notifier
}

// New constructs a Backend rooted at either a fresh in-memory genesis
// (cfg.Fork == nil) or a forked chain pinned at cfg.ForkBlockNumber.
func New(cfg Config) (*Backend, error) {
	b := &Backend{
		cfg:         cfg,
		miningGuard: semaphore.NewWeighted(1),
		fees: feemanager.New(feemanager.Config{
			InitialBaseFee: cfg.GenesisBaseFee,
			EIP1559:        true,
		}),
		clock:  timekeeper.New(),
		cheats: cheats.New(),
		exec:   executor.New(cfg.ChainConfig, evmhost.Config{}),
	}

	cache, disk, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	b.cache = cache
	b.diskStore = disk

	if cfg.MiningMode == MiningInterval {
		if err := cache.Retune(retuneEntries(cfg.AutomineBlockTime)); err != nil {
			return nil, fmt.Errorf("backend: retune state cache: %w", err)
		}
	}

	if cfg.Fork != nil {
		if err := b.initForked(context.Background(), cfg); err != nil {
			return nil, err
		}
		return b, nil
	}

	b.initInMem(cfg)
	return b, nil
}

func (b *Backend) initInMem(cfg Config) {
	mem := state.NewMem()
	for addr, acc := range cfg.GenesisAlloc {
		mem.InsertAccount(addr, state.Info{Balance: acc.Balance, Nonce: acc.Nonce})
		if len(acc.Code) > 0 {
			mem.SetCode(addr, acc.Code)
		}
		for slot, value := range acc.Storage {
			mem.SetStorageAt(addr, slot, value)
		}
	}

	genesis := genesisBlock(cfg)
	b.chainDB = mem
	b.store = chainstore.New(genesis)
	b.forkClient = nil
	b.cache.Insert(genesis.NumberU64(), genesis.Hash(), mem.CurrentState())
	b.clock.Reset(cfg.GenesisTimestamp)
	b.fees.SetBaseFee(cfg.GenesisBaseFee)
}

func (b *Backend) initForked(ctx context.Context, cfg Config) error {
	chainID := big.NewInt(0)
	if cfg.ForkChainID != nil {
		chainID = cfg.ForkChainID.ToBig()
	}
	client := fork.New(cfg.Fork, cfg.ForkBlockNumber, cfg.ForkBlockHash, chainID)

	forkBlock, err := client.BlockByNumber(ctx, cfg.ForkBlockNumber, false)
	if err != nil {
		return fmt.Errorf("backend: fetch fork block: %w", err)
	}

	b.chainDB = state.NewForked(client)
	b.store = chainstore.Forked(forkBlock, new(big.Int))
	b.forkClient = client
	b.clock.Reset(forkBlock.Time())
	b.fees.SetBaseFee(forkBlock.BaseFee().Uint64())
	return nil
}

func genesisBlock(cfg Config) *types.Block {
	gasLimit := uint64(30_000_000)
	baseFee := new(big.Int).SetUint64(cfg.GenesisBaseFee)
	excess := uint64(0)
	header := &types.Header{
		Number:        new(big.Int).SetUint64(cfg.GenesisNumber),
		Time:          cfg.GenesisTimestamp,
		GasLimit:      gasLimit,
		BaseFee:       baseFee,
		ExcessBlobGas: &excess,
		TxHash:        types.DeriveSha(types.Transactions{}, trie.NewStackTrie(nil)),
		ReceiptHash:   types.DeriveSha(types.Receipts{}, trie.NewStackTrie(nil)),
	}
	return types.NewBlock(header, &types.Body{}, nil, trie.NewStackTrie(nil))
}

// Retune widens or narrows the historical state cache's in-memory window to
// match a new automine interval: a short interval mines fast enough that a
// shallow window would push most historical lookups onto the slower disk
// tier, so the window widens as the interval shrinks.
func (b *Backend) Retune(interval time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.AutomineBlockTime = interval
	return b.cache.Retune(retuneEntries(interval))
}

func retuneEntries(interval time.Duration) int {
	switch {
	case interval <= 0:
		return 256
	case interval < time.Second:
		return 4096
	case interval < 10*time.Second:
		return 1024
	default:
		return 256
	}
}

// Subscribe registers for NewBlockNotification delivery; see notify.go.
func (b *Backend) Subscribe() Subscription { return b.notify.Subscribe() }

// Unsubscribe stops delivery to a channel obtained from Subscribe.
func (b *Backend) Unsubscribe(ch Subscription) { b.notify.Unsubscribe(ch) }

// MineBlock runs txs against the live chain tip, committing the result:
// the new block is appended to chainstore, the state after its
// transactions is captured into statecache, fee/time managers advance,
// and subscribers are notified. This is the primary path spec §2's data
// flow diagram describes: C10 drives C9 on a write-locked C4, then
// updates C6 and C5.
func (b *Backend) MineBlock(ctx context.Context, txs types.Transactions) (*executor.Result, error) {
	if err := b.miningGuard.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.miningGuard.Release(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	parent, err := b.bestBlockLocked()
	if err != nil {
		return nil, err
	}

	number := parent.NumberU64() + 1
	baseFee := new(big.Int).SetUint64(b.fees.BaseFee())
	timestamp := b.clock.NextTimestamp()
	excessBlobGas := b.fees.ExcessBlobGas()

	result, err := b.exec.ExecuteBlock(ctx, b.chainDB, parent.Header(), txs, executor.BlockParams{
		Number:        number,
		Timestamp:     timestamp,
		Coinbase:      common.Address{},
		GasLimit:      parent.GasLimit(),
		BaseFee:       baseFee,
		ExcessBlobGas: excessBlobGas,
		BlobBaseFee:   new(big.Int).SetUint64(b.fees.BlobBaseFee(excessBlobGas)),
		GetHash:       b.getHashLocked,
	})
	if err != nil {
		return nil, err
	}

	parentTD, _ := b.store.TotalDifficulty(parent.Hash())
	if parentTD == nil {
		parentTD = new(big.Int)
	}
	totalDifficulty := new(big.Int).Add(parentTD, result.Block.Difficulty())

	b.store.InsertBlock(result.Block, result.Receipts, totalDifficulty)
	b.chainDB.InsertBlockHash(number, result.Block.Hash())
	if err := b.cache.Insert(number, result.Block.Hash(), b.chainDB.CurrentState()); err != nil {
		return nil, fmt.Errorf("backend: capture mined state: %w", err)
	}
	if b.cfg.TransactionBlockKeeper > 0 {
		b.store.PruneTxIndex(uint64(b.cfg.TransactionBlockKeeper))
	}
	b.fees.SetBaseFee(b.fees.NextBlockBaseFee(result.Block.GasUsed(), result.Block.GasLimit(), baseFee.Uint64()))
	b.fees.SetExcessBlobGas(b.fees.NextBlockBlobExcessGas(excessBlobGas, headerUint64(result.Block.Header().BlobGasUsed)))

	b.notify.publish(result.Block.Header())
	if b.cfg.PrintLogs {
		zlog.Info("mined block", "number", number, "hash", result.Block.Hash(), "txs", len(result.Block.Transactions()), "gasUsed", result.Block.GasUsed())
	} else {
		zlog.Debug("mined block", "number", number, "hash", result.Block.Hash(), "txs", len(result.Block.Transactions()), "gasUsed", result.Block.GasUsed())
	}
	if b.cfg.PrintTraces {
		for i, receipt := range result.Receipts {
			zlog.Debug("tx trace", "block", number, "index", i, "status", receipt.Status, "gasUsed", receipt.GasUsed, "logs", len(receipt.Logs))
		}
	}
	return result, nil
}

// PendingBlock runs txs exactly as MineBlock would, but never commits:
// the state mutation is snapshotted and reverted before returning,
// chainstore and statecache are untouched. Call does not use it: a Call
// with the Pending tag runs against the best block (see resolveBlockNumber).
func (b *Backend) PendingBlock(ctx context.Context, txs types.Transactions) (*executor.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parent, err := b.bestBlockLocked()
	if err != nil {
		return nil, err
	}

	snap := b.chainDB.SnapshotState()
	defer b.chainDB.RevertState(snap, state.RevertRemove)

	number := parent.NumberU64() + 1
	baseFee := new(big.Int).SetUint64(b.fees.BaseFee())

	return b.exec.ExecuteBlock(ctx, b.chainDB, parent.Header(), txs, executor.BlockParams{
		Number:      number,
		Timestamp:   b.clock.CurrentCallTimestamp(),
		Coinbase:    common.Address{},
		GasLimit:    parent.GasLimit(),
		BaseFee:     baseFee,
		BlobBaseFee: new(big.Int).SetUint64(b.fees.BlobBaseFee(b.fees.ExcessBlobGas())),
		GetHash:     b.getHashLocked,
	})
}

// Call executes a single message against the state resolved by tag
// without committing any effect, regardless of whether it reverts.
func (b *Backend) Call(ctx context.Context, msg *evmhost.Message, tag BlockTag) (evmhost.CallResult, error) {
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

	bound := b.exec.Bind(db)
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

// Simulate runs a batch of messages in order against a single snapshot of
// current state, as eth_call's "simulate" bundle variant does: every
// message sees the effects of the ones before it, and nothing is
// committed once the batch completes.
func (b *Backend) Simulate(ctx context.Context, msgs []*evmhost.Message) ([]evmhost.CallResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parent, err := b.bestBlockLocked()
	if err != nil {
		return nil, err
	}

	snap := b.chainDB.SnapshotState()
	defer b.chainDB.RevertState(snap, state.RevertRemove)

	bound := b.exec.Bind(b.chainDB)
	bctx := evmhost.BlockContext{
		Coinbase:    common.Address{},
		BlockNumber: parent.NumberU64() + 1,
		Time:        b.clock.CurrentCallTimestamp(),
		Difficulty:  new(big.Int),
		GasLimit:    parent.GasLimit(),
		BaseFee:     new(big.Int).SetUint64(b.fees.BaseFee()),
		BlobBaseFee: new(big.Int).SetUint64(b.fees.BlobBaseFee(b.fees.ExcessBlobGas())),
		GetHash:     b.getHashLocked,
	}

	results := make([]evmhost.CallResult, 0, len(msgs))
	for _, msg := range msgs {
		result, err := bound.ApplyMessage(ctx, bctx, msg)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// SnapshotHandle is what Snapshot hands back: per spec §3's "Snapshot
// handle", it maps to (captured state, best-number, best-hash) rather than
// the bare state-overlay id alone, so Revert can roll back
// BlockchainStorage and C1's fee/clock state along with C4's state, not
// just the state.
type SnapshotHandle struct {
	stateID       state.SnapshotID
	bestNumber    uint64
	bestHash      common.Hash
	baseFee       uint64
	excessBlobGas uint64
	clock         timekeeper.State
}

// Snapshot captures the current state for a later Revert, matching
// evm_snapshot. The returned handle is invalidated once reverted to.
func (b *Backend) Snapshot() SnapshotHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return SnapshotHandle{
		stateID:       b.chainDB.SnapshotState(),
		bestNumber:    b.store.BestNumber(),
		bestHash:      b.store.BestHash(),
		baseFee:       b.fees.BaseFee(),
		excessBlobGas: b.fees.ExcessBlobGas(),
		clock:         b.clock.Capture(),
	}
}

// Revert restores state captured by Snapshot, matching evm_revert: the
// target handle and every snapshot taken after it become invalid. Per
// spec §4.10, this is C4's state-overlay revert combined with a
// BlockchainStorage rewind — every block and transaction mined above the
// snapshot height is removed, and Env/time/base-fee are restored to what
// they were at snapshot time — the same rewind Reorg performs in
// reset.go, just anchored at a captured height instead of best-depth.
func (b *Backend) Revert(handle SnapshotHandle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.chainDB.RevertState(handle.stateID, state.RevertRemove) {
		return false
	}

	current := b.store.BestNumber()
	b.store.UnwindTo(handle.bestNumber)
	for n := handle.bestNumber + 1; n <= current; n++ {
		b.cache.Evict(n)
	}

	b.fees.SetBaseFee(handle.baseFee)
	b.fees.SetExcessBlobGas(handle.excessBlobGas)
	b.clock.Restore(handle.clock)
	return true
}

func (b *Backend) bestBlockLocked() (*types.Block, error) {
	block, ok := b.store.BlockByHash(b.store.BestHash())
	if !ok {
		return nil, apierr.NewBlockNotFound()
	}
	return block, nil
}

func (b *Backend) getHashLocked(number uint64) common.Hash {
	if block, ok := b.store.BlockByNumber(number); ok {
		return block.Hash()
	}
	return common.Hash{}
}

// newCache constructs a statecache.Cache, opening a pebble-backed disk tier
// at cfg.CachePath when one is configured. The returned io.Closer is nil
// when no disk tier was opened.
func newCache(cfg Config) (*statecache.Cache, io.Closer, error) {
	scCfg := statecache.Config{
		MemoryEntries:  effectiveMemoryEntries(cfg),
		MaxDiskEntries: cfg.MaxPersistedStates,
	}

	var disk io.Closer
	if cfg.CachePath != "" {
		store, err := statecache.OpenPebbleDiskStore(cfg.CachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("backend: open disk cache at %s: %w", cfg.CachePath, err)
		}
		scCfg.Disk = store
		disk = store
	}

	cache, err := statecache.New(scCfg)
	if err != nil {
		if disk != nil {
			disk.Close()
		}
		return nil, nil, fmt.Errorf("backend: construct state cache: %w", err)
	}
	return cache, disk, nil
}

// Close releases resources the backend opened, currently just an optional
// pebble-backed disk cache tier.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.diskStore == nil {
		return nil
	}
	return b.diskStore.Close()
}

// effectiveMemoryEntries collapses PruneStateHistory.Enabled == false to a
// single retained entry (the live tip only): history retention is an
// opt-in feature, not a default a caller gets just by setting a window
// size.
func effectiveMemoryEntries(cfg Config) int {
	if !cfg.PruneStateHistory.Enabled {
		return 1
	}
	return cfg.PruneStateHistory.MaxMemoryHistory
}

// headerUint64 reads a header's optional *uint64 field (ExcessBlobGas,
// BlobGasUsed), both nil on a pre-Cancun header.
func headerUint64(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}
