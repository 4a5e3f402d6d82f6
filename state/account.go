// Package state implements C4: the account/storage/code store backing both
// the purely in-memory dev chain (Mem) and a forked chain that falls back
// to a remote provider on cache miss (Forked).
package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// KeccakEmptyCodeHash is the well-known hash of the empty byte string,
// returned for accounts that have never had code set.
var KeccakEmptyCodeHash = crypto.Keccak256Hash(nil)

// Account mirrors spec §3's data model. Storage is only ever populated
// lazily (a zero value slot is never materialized), matching the EVM's
// own "unset == zero" semantics.
type Account struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
	Storage  map[common.Hash]common.Hash
}

// NewEmptyAccount returns the account an address has before it is ever
// touched: zero balance, zero nonce, empty code.
func NewEmptyAccount() *Account {
	return &Account{
		Balance:  new(uint256.Int),
		CodeHash: KeccakEmptyCodeHash,
		Storage:  make(map[common.Hash]common.Hash),
	}
}

// Clone deep-copies the account, including its storage map, so that a
// snapshot capture is never aliased with the live state it was taken from.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := &Account{
		Balance:  new(uint256.Int).Set(a.Balance),
		Nonce:    a.Nonce,
		CodeHash: a.CodeHash,
	}
	if a.Code != nil {
		cp.Code = append([]byte(nil), a.Code...)
	}
	cp.Storage = make(map[common.Hash]common.Hash, len(a.Storage))
	for k, v := range a.Storage {
		cp.Storage[k] = v
	}
	return cp
}

// Info is the read-only projection returned by BasicRef — callers that only
// need balance/nonce/code-hash should not have to copy the storage map.
type Info struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
}

func (a *Account) Info() Info {
	return Info{Balance: new(uint256.Int).Set(a.Balance), Nonce: a.Nonce, CodeHash: a.CodeHash}
}
