package state

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zenanetwork/zenadev/internal/apierr"
)

// RemoteSource is the subset of the Fork client (C7) the state layer
// depends on. It is declared here, not imported from the fork package, so
// that state never needs to know about fork's read-through cache or
// memoization strategy — only that it can answer account/code/storage
// questions pinned at the fork block.
type RemoteSource interface {
	AccountAt(ctx context.Context, addr common.Address) (Info, bool, error)
	CodeByHash(ctx context.Context, codeHash common.Hash) ([]byte, error)
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
}

// Forked overlays a Mem cache over a RemoteSource: every write lands in the
// local overlay exactly like Mem; every read first consults the local
// overlay and only calls out to the remote source on a miss. Fetched
// accounts (found or not) and non-zero storage slots are memoized in the
// overlay, so later reads of them are answered locally; code and zero-valued
// slots are not stored, so those reads go back to the remote source.
type Forked struct {
	*Mem
	source RemoteSource

	// touched marks addresses that have had at least one successful
	// remote fetch recorded locally, so a zero balance/nonce coming back
	// from Mem is distinguished from "never looked up".
	touched map[common.Address]struct{}
}

func NewForked(source RemoteSource) *Forked {
	return &Forked{
		Mem:     NewMem(),
		source:  source,
		touched: make(map[common.Address]struct{}),
	}
}

func (f *Forked) BasicRef(ctx context.Context, addr common.Address) (Info, bool, error) {
	if info, ok, err := f.Mem.BasicRef(ctx, addr); err != nil || ok {
		return info, ok, err
	}
	f.Mem.mu.RLock()
	_, seen := f.touched[addr]
	f.Mem.mu.RUnlock()
	if seen {
		return Info{}, false, nil
	}

	info, found, err := f.source.AccountAt(ctx, addr)
	if err != nil {
		return Info{}, false, apierr.NewProviderFailure(err)
	}
	f.Mem.mu.Lock()
	f.touched[addr] = struct{}{}
	f.Mem.mu.Unlock()
	if !found {
		return Info{}, false, nil
	}
	f.Mem.InsertAccount(addr, info)
	return info, true, nil
}

func (f *Forked) StorageRef(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	f.Mem.mu.RLock()
	acc, ok := f.Mem.account(addr)
	var local common.Hash
	var hasSlot bool
	if ok {
		local, hasSlot = acc.Storage[slot]
	}
	f.Mem.mu.RUnlock()

	if hasSlot {
		return local, nil
	}

	value, err := f.source.StorageAt(ctx, addr, slot)
	if err != nil {
		return common.Hash{}, apierr.NewProviderFailure(err)
	}
	if value != (common.Hash{}) {
		f.Mem.SetStorageAt(addr, slot, value)
	}
	return value, nil
}

func (f *Forked) CodeByHashRef(ctx context.Context, hash common.Hash) ([]byte, error) {
	if code, err := f.Mem.CodeByHashRef(ctx, hash); err != nil || code != nil {
		return code, err
	}
	if hash == KeccakEmptyCodeHash {
		return nil, nil
	}

	code, err := f.source.CodeByHash(ctx, hash)
	if err != nil {
		return nil, apierr.NewProviderFailure(err)
	}
	return code, nil
}
