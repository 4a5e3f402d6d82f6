// Package backend implements C10: the orchestrator that owns every other
// component (C1-C9) and exposes the single public surface a transport or
// CLI entrypoint drives — mining, calls, snapshots, forking, and
// introspection.
package backend

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/zenanetwork/zenadev/fork"
)

// MiningMode distinguishes the two ways the backend advances the chain,
// named explicitly rather than inferred from a single duration option: a
// zero automine interval is ambiguous between "mine every call" and
// "never mine automatically" without this split. There is no separate
// mode that mines one block per submitted transaction.
type MiningMode int

const (
	// MiningDisabled means only explicit MineBlock calls produce blocks.
	MiningDisabled MiningMode = iota
	// MiningInterval mines automatically every AutomineBlockTime; Backend
	// itself does not run the timer (that belongs to a driver outside this
	// package's scope), but the historical state cache's retention adapts
	// to the interval via Backend.Retune.
	MiningInterval
)

// GenesisAccount seeds an address with balance/nonce/code/storage at
// construction, before any block is mined.
type GenesisAccount struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// PruneStateHistory bounds the historical state cache's memory tier.
type PruneStateHistory struct {
	Enabled         bool
	MaxMemoryHistory int
}

// Config holds the backend's construction options, plus the GenesisAlloc
// and MiningMode supplements. It has no option for supplying extra
// precompiles. DisablePoolBalanceChecks is accepted but not read: the
// executor's validator always applies the balance rule.
type Config struct {
	ChainConfig *params.ChainConfig

	GenesisAlloc     map[common.Address]GenesisAccount
	GenesisTimestamp uint64
	GenesisNumber    uint64
	GenesisBaseFee   uint64

	PruneStateHistory       PruneStateHistory
	MaxPersistedStates      int
	TransactionBlockKeeper  int
	MiningMode              MiningMode
	AutomineBlockTime       time.Duration
	CachePath               string
	SlotsInAnEpoch          uint64
	DisablePoolBalanceChecks bool

	PrintLogs         bool
	PrintTraces       bool
	EnableStepsTracing bool

	// Fork, when non-nil, pins the chain to a remote provider at
	// ForkBlockNumber/ForkBlockHash; a nil Fork means a purely in-memory
	// chain rooted at GenesisNumber.
	Fork            fork.Provider
	ForkBlockNumber uint64
	ForkBlockHash   common.Hash
	ForkChainID     *uint256.Int
}

func (c Config) slotsInAnEpoch() uint64 {
	if c.SlotsInAnEpoch == 0 {
		return 32
	}
	return c.SlotsInAnEpoch
}
