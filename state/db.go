package state

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SnapshotID is an opaque, strictly increasing handle returned by
// SnapshotState. Snapshots are totally ordered: reverting to snapshot S
// discards every snapshot created after S.
type SnapshotID uint64

// RevertAction controls whether RevertState discards the target snapshot
// itself once restored.
type RevertAction int

const (
	// RevertRemove discards every snapshot with id >= the target,
	// including the target: it can no longer be reverted to again.
	RevertRemove RevertAction = iota
	// RevertKeep restores the captured overlay but leaves the target
	// snapshot valid for a future revert.
	RevertKeep
)

// Capture is a point-in-time view of the account table, returned by
// CurrentState and accepted by LoadState. It is a deep copy: mutating it
// never affects the live DB.
type Capture struct {
	Accounts   map[common.Address]*Account
	BlockHashes map[uint64]common.Hash
}

// DB is the capability every component that reads/writes account state
// programs against; Mem and Forked both satisfy it. This is the "database
// capable of account/storage/code reads and commits" trait spec §9 calls
// out as polymorphic.
type DB interface {
	BasicRef(ctx context.Context, addr common.Address) (Info, bool, error)
	StorageRef(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	CodeByHashRef(ctx context.Context, hash common.Hash) ([]byte, error)

	InsertAccount(addr common.Address, info Info)
	SetNonce(addr common.Address, nonce uint64)
	SetBalance(addr common.Address, balance *uint256.Int)
	SetCode(addr common.Address, code []byte)
	SetStorageAt(addr common.Address, slot, value common.Hash)

	InsertBlockHash(number uint64, hash common.Hash)
	BlockHash(number uint64) (common.Hash, bool)

	SnapshotState() SnapshotID
	RevertState(id SnapshotID, action RevertAction) bool

	Clear()
	CurrentState() Capture
	LoadState(c Capture)
}
