package backend

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/zenanetwork/zenadev/internal/apierr"
)

// BlockTagKind names the six ways spec §6 lets a caller refer to a block:
// by well-known alias, or by explicit number.
type BlockTagKind int

const (
	TagLatest BlockTagKind = iota
	TagPending
	TagEarliest
	TagNumber
	TagSafe
	TagFinalized
)

// BlockTag is the resolved form of a JSON-RPC block parameter.
type BlockTag struct {
	Kind   BlockTagKind
	Number uint64
}

func Latest() BlockTag           { return BlockTag{Kind: TagLatest} }
func Pending() BlockTag          { return BlockTag{Kind: TagPending} }
func Earliest() BlockTag         { return BlockTag{Kind: TagEarliest} }
func Safe() BlockTag             { return BlockTag{Kind: TagSafe} }
func Finalized() BlockTag        { return BlockTag{Kind: TagFinalized} }
func Number(n uint64) BlockTag   { return BlockTag{Kind: TagNumber, Number: n} }

// resolveBlockNumber turns a BlockTag into a concrete block number against
// the backend's current chain. Latest and Pending both resolve to the
// current best block — a dev node commits every mined block immediately,
// so there is no distinct pending block to point to. Safe and Finalized
// resolve to a saturating distance behind best, the number of slots an
// epoch spans standing in for the real fork-choice justification/finality
// depth a beacon-chain-backed node would compute.
func (b *Backend) resolveBlockNumber(tag BlockTag) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resolveBlockNumberLocked(tag)
}

func (b *Backend) resolveBlockNumberLocked(tag BlockTag) (uint64, error) {
	switch tag.Kind {
	case TagLatest, TagPending:
		return b.store.BestNumber(), nil
	case TagSafe:
		return saturatingSub(b.store.BestNumber(), b.cfg.slotsInAnEpoch()), nil
	case TagFinalized:
		return saturatingSub(b.store.BestNumber(), 2*b.cfg.slotsInAnEpoch()), nil
	case TagEarliest:
		return b.cfg.GenesisNumber, nil
	case TagNumber:
		if b.forkClient != nil && tag.Number > b.store.BestNumber() {
			return 0, apierr.NewBlockOutOfRange(b.store.BestNumber(), tag.Number)
		}
		return tag.Number, nil
	default:
		return 0, apierr.NewBlockNotFound()
	}
}

// saturatingSub is a - b floored at zero, matching the original source's
// saturating_sub used for the safe/finalized block-tag formulas.
func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// resolvedBlockHash resolves tag to the hash of the block it names. Nothing
// in this package calls it; Logs works on block numbers.
func (b *Backend) resolvedBlockHash(tag BlockTag) (common.Hash, error) {
	number, err := b.resolveBlockNumber(tag)
	if err != nil {
		return common.Hash{}, err
	}
	block, err := b.BlockByNumber(number)
	if err != nil {
		return common.Hash{}, err
	}
	return block.Hash(), nil
}
