package state

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Mem is the authoritative, purely in-process StateDB variant. Reads take
// the reader lock; every write takes the writer lock for the duration of a
// single field mutation, matching the "writer lock held only for a single
// setter" discipline of spec §5.
type Mem struct {
	mu sync.RWMutex

	accounts    map[common.Address]*Account
	blockHashes map[uint64]common.Hash

	nextSnapshot SnapshotID
	snapshots    []memSnapshot
}

type memSnapshot struct {
	id          SnapshotID
	accounts    map[common.Address]*Account
	blockHashes map[uint64]common.Hash
}

func NewMem() *Mem {
	return &Mem{
		accounts:    make(map[common.Address]*Account),
		blockHashes: make(map[uint64]common.Hash),
	}
}

func (m *Mem) account(addr common.Address) (*Account, bool) {
	acc, ok := m.accounts[addr]
	return acc, ok
}

func (m *Mem) getOrCreate(addr common.Address) *Account {
	acc, ok := m.accounts[addr]
	if !ok {
		acc = NewEmptyAccount()
		m.accounts[addr] = acc
	}
	return acc
}

func (m *Mem) BasicRef(_ context.Context, addr common.Address) (Info, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.account(addr)
	if !ok {
		return Info{}, false, nil
	}
	return acc.Info(), true, nil
}

func (m *Mem) StorageRef(_ context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.account(addr)
	if !ok {
		return common.Hash{}, nil
	}
	return acc.Storage[slot], nil
}

func (m *Mem) CodeByHashRef(_ context.Context, hash common.Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if hash == KeccakEmptyCodeHash {
		return nil, nil
	}
	for _, acc := range m.accounts {
		if acc.CodeHash == hash {
			return append([]byte(nil), acc.Code...), nil
		}
	}
	return nil, nil
}

func (m *Mem) InsertAccount(addr common.Address, info Info) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := NewEmptyAccount()
	acc.Balance = new(uint256.Int).Set(info.Balance)
	acc.Nonce = info.Nonce
	acc.CodeHash = info.CodeHash
	m.accounts[addr] = acc
}

func (m *Mem) SetNonce(addr common.Address, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreate(addr).Nonce = nonce
}

func (m *Mem) SetBalance(addr common.Address, balance *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreate(addr).Balance = new(uint256.Int).Set(balance)
}

func (m *Mem) SetCode(addr common.Address, code []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.getOrCreate(addr)
	acc.Code = append([]byte(nil), code...)
	if len(code) == 0 {
		acc.CodeHash = KeccakEmptyCodeHash
		return
	}
	acc.CodeHash = codeHash(code)
}

func (m *Mem) SetStorageAt(addr common.Address, slot, value common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.getOrCreate(addr)
	if value == (common.Hash{}) {
		delete(acc.Storage, slot)
		return
	}
	acc.Storage[slot] = value
}

func (m *Mem) InsertBlockHash(number uint64, hash common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockHashes[number] = hash
}

func (m *Mem) BlockHash(number uint64) (common.Hash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.blockHashes[number]
	return h, ok
}

// SnapshotState captures a deep copy of the account and block-hash tables.
// The copy-on-write phrasing in spec §4.4 describes the logical contract
// (revert restores exactly this view); the capture itself is a plain clone,
// which keeps revert trivial and correct at the cost of snapshot cost
// scaling with state size — acceptable for a dev node's state sizes.
func (m *Mem) SnapshotState() SnapshotID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSnapshot
	m.nextSnapshot++

	m.snapshots = append(m.snapshots, memSnapshot{
		id:          id,
		accounts:    cloneAccounts(m.accounts),
		blockHashes: cloneBlockHashes(m.blockHashes),
	})
	return id
}

func (m *Mem) RevertState(id SnapshotID, action RevertAction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, s := range m.snapshots {
		if s.id == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}

	snap := m.snapshots[idx]
	m.accounts = cloneAccounts(snap.accounts)
	m.blockHashes = cloneBlockHashes(snap.blockHashes)

	switch action {
	case RevertRemove:
		m.snapshots = m.snapshots[:idx]
	case RevertKeep:
		m.snapshots = m.snapshots[:idx+1]
	}
	return true
}

func (m *Mem) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts = make(map[common.Address]*Account)
	m.snapshots = nil
}

func (m *Mem) CurrentState() Capture {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Capture{
		Accounts:    cloneAccounts(m.accounts),
		BlockHashes: cloneBlockHashes(m.blockHashes),
	}
}

func (m *Mem) LoadState(c Capture) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts = cloneAccounts(c.Accounts)
	m.blockHashes = cloneBlockHashes(c.BlockHashes)
	m.snapshots = nil
}

func cloneAccounts(src map[common.Address]*Account) map[common.Address]*Account {
	out := make(map[common.Address]*Account, len(src))
	for addr, acc := range src {
		out[addr] = acc.Clone()
	}
	return out
}

func cloneBlockHashes(src map[uint64]common.Hash) map[uint64]common.Hash {
	out := make(map[uint64]common.Hash, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
