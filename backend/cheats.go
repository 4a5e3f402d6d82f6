package backend

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SetStorageAt overwrites a single storage slot on the live chain tip,
// bypassing the EVM entirely — the anvil_setStorageAt cheat.
func (b *Backend) SetStorageAt(addr common.Address, slot, value common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chainDB.SetStorageAt(addr, slot, value)
}

// SetCode overwrites an account's code directly, the anvil_setCode cheat.
func (b *Backend) SetCode(addr common.Address, code []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chainDB.SetCode(addr, code)
}

// SetNonce overwrites an account's nonce directly, the anvil_setNonce
// cheat.
func (b *Backend) SetNonce(addr common.Address, nonce uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chainDB.SetNonce(addr, nonce)
}

// SetBalance overwrites an account's balance directly, the
// anvil_setBalance cheat.
func (b *Backend) SetBalance(addr common.Address, balance *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chainDB.SetBalance(addr, balance)
}

// SetNextBlockBaseFeePerGas pins the base fee the next mined block will
// carry, overriding feemanager's own EIP-1559 update formula for exactly
// one block.
func (b *Backend) SetNextBlockBaseFeePerGas(fee uint64) {
	b.fees.SetBaseFee(fee)
}

// SetNextBlockTimestamp pins the timestamp the next mined block will
// carry.
func (b *Backend) SetNextBlockTimestamp(ts uint64) {
	b.clock.SetNextTimestamp(ts)
}

// Impersonate and StopImpersonating pass through to the cheats manager
// directly. The impersonated set is only recorded: neither the validator
// nor the executor consults it, so a mined transaction still needs a valid
// signature from its sender.
func (b *Backend) Impersonate(addr common.Address) bool { return b.cheats.Impersonate(addr) }

func (b *Backend) StopImpersonating(addr common.Address) { b.cheats.StopImpersonating(addr) }

func (b *Backend) IsImpersonated(addr common.Address) bool { return b.cheats.IsImpersonated(addr) }
