// Package cheats implements C3: the impersonation set, auto-impersonate
// flag and the ecrecover signature-override table with its lookup,
// ApplyRecover. No precompile hook on the EVM consults the table: evmhost
// runs the standard ecrecover precompile.
package cheats

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// sigKey is a 65-byte ECDSA signature (r||s||v). ApplyRecover rebuilds it
// from the precompile payload, which carries v, r and s as 32-byte words.
type sigKey [65]byte

// Manager is guarded by a single mutex: impersonation membership and the
// recover-override table are both small maps mutated rarely and read on
// every transaction admission / ecrecover call, so a single RWMutex keeps
// the contract simple without becoming a bottleneck.
type Manager struct {
	mu sync.RWMutex

	impersonated    map[common.Address]struct{}
	autoImpersonate bool

	overrides map[sigKey]common.Address
}

func New() *Manager {
	return &Manager{
		impersonated: make(map[common.Address]struct{}),
		overrides:    make(map[sigKey]common.Address),
	}
}

// Impersonate adds addr to the impersonated set. It returns true if addr
// was already impersonated (idempotent, never fails).
func (m *Manager) Impersonate(addr common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, already := m.impersonated[addr]
	m.impersonated[addr] = struct{}{}
	return already
}

func (m *Manager) StopImpersonating(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.impersonated, addr)
}

func (m *Manager) SetAutoImpersonate(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoImpersonate = enabled
}

func (m *Manager) AutoImpersonate() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.autoImpersonate
}

// IsImpersonated reports whether addr should be treated as unlocked,
// either because it was explicitly impersonated or auto-impersonate is on.
func (m *Manager) IsImpersonated(addr common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.autoImpersonate {
		return true
	}
	_, ok := m.impersonated[addr]
	return ok
}

// ImpersonatedAccounts returns a snapshot of the impersonated set.
func (m *Manager) ImpersonatedAccounts() []common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]common.Address, 0, len(m.impersonated))
	for addr := range m.impersonated {
		out = append(out, addr)
	}
	return out
}

// AddRecoverOverride registers a fixed signature -> address mapping. From
// then on, every ApplyRecover call whose payload carries exactly this
// 65-byte signature returns addr instead of a cryptographic recovery; the
// mapping is never removed. This never fails.
func (m *Manager) AddRecoverOverride(signature [65]byte, addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[sigKey(signature)] = addr
}

func (m *Manager) HasRecoverOverrides() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.overrides) > 0
}

// ApplyRecover looks an ecrecover payload up in the override table. input
// is the full 128-byte precompile payload (hash || v || r || s), the layout
// the EVM passes to the real ecrecover precompile; the hash is ignored, and
// the low byte of the v word plus the r and s words form the lookup key.
func (m *Manager) ApplyRecover(input []byte) (common.Address, bool) {
	if len(input) < 128 {
		return common.Address{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.overrides) == 0 {
		return common.Address{}, false
	}

	var key sigKey
	// v is a single byte left-padded to 32 bytes at input[32:64]; r and s
	// each occupy a 32-byte word. Reassemble the canonical 65-byte
	// signature (r || s || v) used as the override table's key.
	copy(key[0:32], input[64:96])
	copy(key[32:64], input[96:128])
	key[64] = input[63]

	addr, ok := m.overrides[key]
	return addr, ok
}
