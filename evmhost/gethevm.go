package evmhost

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/zenanetwork/zenadev/internal/apierr"
	"github.com/zenanetwork/zenadev/state"
)

// GethEVM is the EVM implementation backed by go-ethereum's own
// interpreter. Every call builds a fresh vm.EVM the way StateProcessor.Process
// does: a block context once per block, a tx context per message.
type GethEVM struct {
	chainConfig *params.ChainConfig
	vmConfig    vm.Config
}

func NewGethEVM(chainConfig *params.ChainConfig, vmConfig vm.Config) *GethEVM {
	return &GethEVM{chainConfig: chainConfig, vmConfig: vmConfig}
}

// Bind ties a GethEVM to a concrete state.DB for the duration of a single
// block, returning an EVM that the executor can call ApplyMessage on
// repeatedly — once per transaction — without re-wrapping the state store
// each time.
func (g *GethEVM) Bind(db state.DB) EVM {
	return &boundEVM{chainConfig: g.chainConfig, vmConfig: g.vmConfig, shim: newStateShim(db)}
}

// BindWithTracer is Bind with the bound EVM's vm.Config.Tracer overridden to
// hooks for the duration of the binding. Everything else about the Config
// the GethEVM was constructed with (eth/tracers-visible NoBaseFee, ExtraEips,
// and so on) carries over unchanged; only the tracer hook set differs. Used
// by trace/debug operations that need to observe execution without
// reconfiguring the executor's default, tracer-less EVM for every other
// caller.
func (g *GethEVM) BindWithTracer(db state.DB, hooks *tracing.Hooks) EVM {
	cfg := g.vmConfig
	cfg.Tracer = hooks
	return &boundEVM{chainConfig: g.chainConfig, vmConfig: cfg, shim: newStateShim(db)}
}

type boundEVM struct {
	chainConfig *params.ChainConfig
	vmConfig    vm.Config
	shim        *stateShim
}

func (b *boundEVM) ApplyMessage(ctx context.Context, bctx BlockContext, msg *Message) (CallResult, error) {
	blockCtx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     bctx.GetHash,
		Coinbase:    bctx.Coinbase,
		BlockNumber: new(big.Int).SetUint64(bctx.BlockNumber),
		Time:        bctx.Time,
		Difficulty:  bctx.Difficulty,
		GasLimit:    bctx.GasLimit,
		BaseFee:     bctx.BaseFee,
		BlobBaseFee: bctx.BlobBaseFee,
		Random:      bctx.Random,
	}

	coreMsg := &core.Message{
		From:              msg.From,
		To:                msg.To,
		Nonce:             msg.Nonce,
		Value:             msg.Value,
		GasLimit:          msg.GasLimit,
		GasPrice:          msg.GasPrice,
		GasFeeCap:         msg.GasFeeCap,
		GasTipCap:         msg.GasTipCap,
		Data:              msg.Data,
		AccessList:        msg.AccessList,
		BlobHashes:        msg.BlobHashes,
		BlobGasFeeCap:     msg.BlobGasFeeCap,
		SkipAccountChecks: msg.SkipNonceCheck || msg.SkipBalanceCheck,
	}

	txCtx := core.NewEVMTxContext(coreMsg)
	evm := vm.NewEVM(blockCtx, txCtx, b.shim, b.chainConfig, b.vmConfig)

	gasPool := new(core.GasPool).AddGas(msg.GasLimit)
	result, err := core.ApplyMessage(evm, coreMsg, gasPool)
	if err != nil {
		return CallResult{}, apierr.NewInvalidTx(apierr.InsufficientFunds, err.Error())
	}

	out := CallResult{
		ReturnData: result.ReturnData,
		GasUsed:    result.UsedGas,
		Reverted:   result.Failed(),
		Logs:       b.shim.logs,
	}
	if msg.To == nil && !result.Failed() {
		addr := crypto.CreateAddress(msg.From, msg.Nonce)
		out.ContractAddress = &addr
	}
	return out, nil
}

// stateShim adapts state.DB to go-ethereum's vm.StateDB. It is the one
// place in this module that has to track go-ethereum's interpreter-facing
// interface shape; everything upstream of it only ever talks to state.DB.
type stateShim struct {
	db       state.DB
	ctx      context.Context
	refund   uint64
	logs     []*types.Log
	suicided map[common.Address]bool
	access   *accessList

	// snapshots maps the small sequential ids vm.EVM hands out from
	// Snapshot/RevertToSnapshot onto the underlying state.DB's own
	// SnapshotID, plus a copy of the shim-local bookkeeping (self-destructs,
	// logs) that state.DB's snapshot doesn't cover.
	snapshots []shimSnapshot
}

type shimSnapshot struct {
	stateID  state.SnapshotID
	suicided map[common.Address]bool
	logLen   int
}

func newStateShim(db state.DB) *stateShim {
	return &stateShim{
		db:       db,
		ctx:      context.Background(),
		suicided: make(map[common.Address]bool),
		access:   newAccessList(),
	}
}

func (s *stateShim) CreateAccount(addr common.Address) {
	info, ok, _ := s.db.BasicRef(s.ctx, addr)
	s.db.InsertAccount(addr, state.Info{Balance: new(uint256.Int), CodeHash: state.KeccakEmptyCodeHash})
	if ok {
		s.db.SetBalance(addr, info.Balance)
	}
}

func (s *stateShim) CreateContract(addr common.Address) {}

func (s *stateShim) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	info, _, _ := s.db.BasicRef(s.ctx, addr)
	prev := *info.Balance
	next := new(uint256.Int).Sub(info.Balance, amount)
	s.db.SetBalance(addr, next)
	return prev
}

func (s *stateShim) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	info, _, _ := s.db.BasicRef(s.ctx, addr)
	prev := *info.Balance
	next := new(uint256.Int).Add(info.Balance, amount)
	s.db.SetBalance(addr, next)
	return prev
}

func (s *stateShim) GetBalance(addr common.Address) *uint256.Int {
	info, _, _ := s.db.BasicRef(s.ctx, addr)
	if info.Balance == nil {
		return new(uint256.Int)
	}
	return info.Balance
}

func (s *stateShim) GetNonce(addr common.Address) uint64 {
	info, _, _ := s.db.BasicRef(s.ctx, addr)
	return info.Nonce
}

func (s *stateShim) SetNonce(addr common.Address, nonce uint64, _ tracing.NonceChangeReason) {
	s.db.SetNonce(addr, nonce)
}

func (s *stateShim) GetCodeHash(addr common.Address) common.Hash {
	info, ok, _ := s.db.BasicRef(s.ctx, addr)
	if !ok {
		return common.Hash{}
	}
	return info.CodeHash
}

func (s *stateShim) GetCode(addr common.Address) []byte {
	info, ok, _ := s.db.BasicRef(s.ctx, addr)
	if !ok {
		return nil
	}
	code, _ := s.db.CodeByHashRef(s.ctx, info.CodeHash)
	return code
}

func (s *stateShim) SetCode(addr common.Address, code []byte) []byte {
	prev := s.GetCode(addr)
	s.db.SetCode(addr, code)
	return prev
}

func (s *stateShim) GetCodeSize(addr common.Address) int { return len(s.GetCode(addr)) }

func (s *stateShim) AddRefund(gas uint64)         { s.refund += gas }
func (s *stateShim) SubRefund(gas uint64) {
	if gas > s.refund {
		s.refund = 0
		return
	}
	s.refund -= gas
}
func (s *stateShim) GetRefund() uint64 { return s.refund }

func (s *stateShim) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	v, _ := s.db.StorageRef(s.ctx, addr, key)
	return v
}

func (s *stateShim) GetState(addr common.Address, key common.Hash) common.Hash {
	v, _ := s.db.StorageRef(s.ctx, addr, key)
	return v
}

func (s *stateShim) SetState(addr common.Address, key, value common.Hash) common.Hash {
	prev, _ := s.db.StorageRef(s.ctx, addr, key)
	s.db.SetStorageAt(addr, key, value)
	return prev
}

func (s *stateShim) GetStorageRoot(common.Address) common.Hash { return common.Hash{} }

func (s *stateShim) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return s.access.transient[transientKey{addr, key}]
}

func (s *stateShim) SetTransientState(addr common.Address, key, value common.Hash) {
	if s.access.transient == nil {
		s.access.transient = make(map[transientKey]common.Hash)
	}
	s.access.transient[transientKey{addr, key}] = value
}

func (s *stateShim) SelfDestruct(addr common.Address) uint256.Int {
	info, _, _ := s.db.BasicRef(s.ctx, addr)
	s.suicided[addr] = true
	prev := *info.Balance
	s.db.SetBalance(addr, new(uint256.Int))
	return prev
}

func (s *stateShim) HasSelfDestructed(addr common.Address) bool { return s.suicided[addr] }

func (s *stateShim) Selfdestruct6780(addr common.Address) (uint256.Int, bool) {
	bal := s.SelfDestruct(addr)
	return bal, true
}

func (s *stateShim) Exist(addr common.Address) bool {
	_, ok, _ := s.db.BasicRef(s.ctx, addr)
	return ok
}

func (s *stateShim) Empty(addr common.Address) bool {
	info, ok, _ := s.db.BasicRef(s.ctx, addr)
	if !ok {
		return true
	}
	return info.Nonce == 0 && info.Balance.IsZero() && info.CodeHash == state.KeccakEmptyCodeHash
}

func (s *stateShim) AddressInAccessList(addr common.Address) bool {
	return s.access.containsAddress(addr)
}

func (s *stateShim) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	return s.access.contains(addr, slot)
}

func (s *stateShim) AddAddressToAccessList(addr common.Address) { s.access.addAddress(addr) }

func (s *stateShim) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.access.addSlot(addr, slot)
}

func (s *stateShim) Prepare(rules params.Rules, sender, coinbase common.Address, dst *common.Address, precompiles []common.Address, list types.AccessList) {
	s.access = newAccessList()
	s.access.addAddress(sender)
	if dst != nil {
		s.access.addAddress(*dst)
	}
	for _, addr := range precompiles {
		s.access.addAddress(addr)
	}
	for _, entry := range list {
		s.access.addAddress(entry.Address)
		for _, key := range entry.StorageKeys {
			s.access.addSlot(entry.Address, key)
		}
	}
	if rules.IsEIP2929 {
		s.access.addAddress(coinbase)
	}
}

func (s *stateShim) Snapshot() int {
	suicided := make(map[common.Address]bool, len(s.suicided))
	for k, v := range s.suicided {
		suicided[k] = v
	}
	s.snapshots = append(s.snapshots, shimSnapshot{
		stateID:  s.db.SnapshotState(),
		suicided: suicided,
		logLen:   len(s.logs),
	})
	return len(s.snapshots) - 1
}

func (s *stateShim) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	snap := s.snapshots[id]
	s.db.RevertState(snap.stateID, state.RevertRemove)
	s.suicided = snap.suicided
	s.logs = s.logs[:snap.logLen]
	s.snapshots = s.snapshots[:id]
}

func (s *stateShim) AddLog(log *types.Log) { s.logs = append(s.logs, log) }

func (s *stateShim) AddPreimage(common.Hash, []byte) {}

type transientKey struct {
	addr common.Address
	slot common.Hash
}

type accessList struct {
	addresses map[common.Address]struct{}
	slots     map[common.Address]map[common.Hash]struct{}
	transient map[transientKey]common.Hash
}

func newAccessList() *accessList {
	return &accessList{
		addresses: make(map[common.Address]struct{}),
		slots:     make(map[common.Address]map[common.Hash]struct{}),
	}
}

func (a *accessList) containsAddress(addr common.Address) bool {
	_, ok := a.addresses[addr]
	return ok
}

func (a *accessList) contains(addr common.Address, slot common.Hash) (bool, bool) {
	addrOK := a.containsAddress(addr)
	slots, ok := a.slots[addr]
	if !ok {
		return addrOK, false
	}
	_, slotOK := slots[slot]
	return addrOK, slotOK
}

func (a *accessList) addAddress(addr common.Address) { a.addresses[addr] = struct{}{} }

func (a *accessList) addSlot(addr common.Address, slot common.Hash) {
	a.addAddress(addr)
	if a.slots[addr] == nil {
		a.slots[addr] = make(map[common.Hash]struct{})
	}
	a.slots[addr][slot] = struct{}{}
}
