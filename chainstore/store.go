// Package chainstore implements C6: the append-only tables backing the dev
// chain's block, transaction and receipt history, plus the log index used to
// answer eth_getLogs-style filters.
package chainstore

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zenanetwork/zenadev/internal/apierr"
)

// TxLocation pinpoints a transaction inside the chain: which block it landed
// in and its index within that block's transaction list.
type TxLocation struct {
	BlockHash   common.Hash
	BlockNumber uint64
	Index       uint64
}

// Store is the blockchain storage table set. Every table is guarded by one
// RWMutex: blocks, receipts and the derived indexes are always updated
// together under InsertBlock, so there is no finer-grained locking to be
// had without risking the tables drifting out of sync with each other.
type Store struct {
	mu sync.RWMutex

	blocksByNumber map[uint64]*types.Block
	blocksByHash   map[common.Hash]*types.Block
	receipts       map[common.Hash]types.Receipts
	totalDiff      map[common.Hash]*big.Int
	txLocation     map[common.Hash]TxLocation

	genesisHash common.Hash
	bestNumber  uint64
	bestHash    common.Hash
}

// New creates an empty store rooted at genesis.
func New(genesis *types.Block) *Store {
	s := &Store{
		blocksByNumber: make(map[uint64]*types.Block),
		blocksByHash:   make(map[common.Hash]*types.Block),
		receipts:       make(map[common.Hash]types.Receipts),
		totalDiff:      make(map[common.Hash]*big.Int),
		txLocation:     make(map[common.Hash]TxLocation),
	}
	s.InsertBlock(genesis, nil, new(big.Int))
	s.genesisHash = genesis.Hash()
	return s
}

// Forked creates a store pre-seeded with a single block fetched from a fork
// source (the block the dev chain is forking from), recorded as its own
// genesis for the purposes of this store: history before it lives in the
// Fork Client, not here.
func Forked(forkBlock *types.Block, totalDifficulty *big.Int) *Store {
	s := &Store{
		blocksByNumber: make(map[uint64]*types.Block),
		blocksByHash:   make(map[common.Hash]*types.Block),
		receipts:       make(map[common.Hash]types.Receipts),
		totalDiff:      make(map[common.Hash]*big.Int),
		txLocation:     make(map[common.Hash]TxLocation),
	}
	s.InsertBlock(forkBlock, nil, totalDifficulty)
	s.genesisHash = forkBlock.Hash()
	return s
}

// InsertBlock appends a newly mined (or fetched) block, its receipts, and
// its cumulative total difficulty, and advances the best-block pointer if
// the block extends the current head.
func (s *Store) InsertBlock(block *types.Block, receipts types.Receipts, totalDifficulty *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := block.Hash()
	number := block.NumberU64()

	s.blocksByNumber[number] = block
	s.blocksByHash[hash] = block
	s.receipts[hash] = receipts
	if totalDifficulty != nil {
		s.totalDiff[hash] = new(big.Int).Set(totalDifficulty)
	}

	for i, tx := range block.Transactions() {
		s.txLocation[tx.Hash()] = TxLocation{BlockHash: hash, BlockNumber: number, Index: uint64(i)}
	}

	if number >= s.bestNumber || s.bestHash == (common.Hash{}) {
		s.bestNumber = number
		s.bestHash = hash
	}
}

func (s *Store) BlockByNumber(number uint64) (*types.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocksByNumber[number]
	return b, ok
}

func (s *Store) BlockByHash(hash common.Hash) (*types.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocksByHash[hash]
	return b, ok
}

func (s *Store) ReceiptsByBlockHash(hash common.Hash) (types.Receipts, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[hash]
	return r, ok
}

func (s *Store) TotalDifficulty(hash common.Hash) (*big.Int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	td, ok := s.totalDiff[hash]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(td), true
}

// TransactionByHash returns the transaction together with where it landed.
func (s *Store) TransactionByHash(hash common.Hash) (*types.Transaction, TxLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.txLocation[hash]
	if !ok {
		return nil, TxLocation{}, apierr.NewTransactionNotFound()
	}
	block, ok := s.blocksByHash[loc.BlockHash]
	if !ok || loc.Index >= uint64(len(block.Transactions())) {
		return nil, TxLocation{}, apierr.NewTransactionNotFound()
	}
	return block.Transactions()[loc.Index], loc, nil
}

// TransactionReceipt returns the receipt for a transaction together with
// where it landed, mirroring TransactionByHash.
func (s *Store) TransactionReceipt(hash common.Hash) (*types.Receipt, TxLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.txLocation[hash]
	if !ok {
		return nil, TxLocation{}, apierr.NewTransactionNotFound()
	}
	receipts, ok := s.receipts[loc.BlockHash]
	if !ok || loc.Index >= uint64(len(receipts)) {
		return nil, TxLocation{}, apierr.NewTransactionNotFound()
	}
	return receipts[loc.Index], loc, nil
}

func (s *Store) BestNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestNumber
}

func (s *Store) BestHash() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestHash
}

func (s *Store) GenesisHash() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.genesisHash
}

// UnwindTo drops every block (and its receipts/tx index entries) above
// `number`, used by reorg to discard the abandoned tip before the backend
// re-mines from the fork point.
func (s *Store) UnwindTo(number uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n, block := range s.blocksByNumber {
		if n <= number {
			continue
		}
		hash := block.Hash()
		delete(s.blocksByNumber, n)
		delete(s.blocksByHash, hash)
		delete(s.receipts, hash)
		delete(s.totalDiff, hash)
		s.removeBlockTransactionsLocked(block)
	}

	if block, ok := s.blocksByNumber[number]; ok {
		s.bestNumber = number
		s.bestHash = block.Hash()
	}
}

// RemoveBlockTransactionsByNumber clears only the transaction index entries
// for a block, leaving the block and its receipts in place. Used when a
// block needs to be re-indexed (e.g. after a tx-pool-driven reinsertion)
// without a full unwind.
func (s *Store) RemoveBlockTransactionsByNumber(number uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, ok := s.blocksByNumber[number]
	if !ok {
		return
	}
	s.removeBlockTransactionsLocked(block)
}

// PruneTxIndex drops transaction-lookup entries for blocks older than
// keepBlocks behind the current tip, bounding transaction_block_keeper-style
// memory growth without discarding the blocks or receipts themselves (those
// stay reachable by number/hash regardless of keepBlocks).
func (s *Store) PruneTxIndex(keepBlocks uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keepBlocks == 0 || s.bestNumber <= keepBlocks {
		return
	}
	cutoff := s.bestNumber - keepBlocks
	for n, block := range s.blocksByNumber {
		if n >= cutoff {
			continue
		}
		s.removeBlockTransactionsLocked(block)
	}
}

func (s *Store) removeBlockTransactionsLocked(block *types.Block) {
	for _, tx := range block.Transactions() {
		delete(s.txLocation, tx.Hash())
	}
}

// LogFilter selects logs by an optional address set and a per-position topic
// list, matching the standard eth_getLogs matching rule: an empty Addresses
// set matches every address, and each Topics[i] is itself a set of
// alternatives (OR'd) or empty to match any topic at that position.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses map[common.Address]struct{}
	Topics    [][]common.Hash
}

// Logs scans the receipts for every block in [FromBlock, ToBlock] and
// returns the logs matching the filter, in chain order.
func (s *Store) Logs(filter LogFilter) []*types.Log {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Log
	for n := filter.FromBlock; n <= filter.ToBlock; n++ {
		block, ok := s.blocksByNumber[n]
		if !ok {
			continue
		}
		receipts := s.receipts[block.Hash()]
		for _, r := range receipts {
			for _, lg := range r.Logs {
				if logMatches(lg, filter) {
					out = append(out, lg)
				}
			}
		}
	}
	return out
}

func logMatches(lg *types.Log, filter LogFilter) bool {
	if len(filter.Addresses) > 0 {
		if _, ok := filter.Addresses[lg.Address]; !ok {
			return false
		}
	}
	if len(filter.Topics) > len(lg.Topics) {
		return false
	}
	for i, alternatives := range filter.Topics {
		if len(alternatives) == 0 {
			continue
		}
		matched := false
		for _, want := range alternatives {
			if lg.Topics[i] == want {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// SerializedBlock is the wire-friendly projection of a block and its
// receipts used by dump/load-state style persistence.
type SerializedBlock struct {
	Block           *types.Block
	Receipts        types.Receipts
	TotalDifficulty *big.Int
}

// SerializedBlocks returns every block in number order, for persistence.
func (s *Store) SerializedBlocks() []SerializedBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SerializedBlock, 0, len(s.blocksByNumber))
	for n := uint64(0); n <= s.bestNumber; n++ {
		block, ok := s.blocksByNumber[n]
		if !ok {
			continue
		}
		hash := block.Hash()
		td, _ := s.totalDiff[hash]
		out = append(out, SerializedBlock{Block: block, Receipts: s.receipts[hash], TotalDifficulty: td})
	}
	return out
}

// LoadBlocks restores blocks previously produced by SerializedBlocks, in
// order, onto an empty or partially-populated store.
func (s *Store) LoadBlocks(blocks []SerializedBlock) {
	for _, b := range blocks {
		s.InsertBlock(b.Block, b.Receipts, b.TotalDifficulty)
	}
}
