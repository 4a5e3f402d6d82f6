// Package feemanager implements C1: a pure value object tracking the gas
// price, EIP-1559 base fee and EIP-4844 blob excess gas, and the formulas
// that derive the next block's fee fields from the parent block's.
package feemanager

import (
	"math/big"
	"sync"

	cmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/params"
)

// Manager is a reader/writer-lock-guarded fee state. All setters take the
// writer lock briefly; all getters take the reader lock. There is no
// implicit background recomputation — next_block_base_fee and
// next_block_blob_excess_gas are pure functions the executor/backend call
// explicitly once a block has been produced.
type Manager struct {
	mu sync.RWMutex

	baseFee    uint64
	gasPrice   uint64
	excessBlobGas uint64

	elasticity           uint64
	minPriorityFeeEnforced bool
	eip1559 bool
}

// Config seeds a Manager at genesis.
type Config struct {
	InitialBaseFee  uint64
	InitialGasPrice uint64
	Elasticity      uint64
	EnforceMinPriorityFee bool
	EIP1559 bool
}

func New(cfg Config) *Manager {
	elasticity := cfg.Elasticity
	if elasticity == 0 {
		elasticity = params.ElasticityMultiplier
	}
	return &Manager{
		baseFee:                cfg.InitialBaseFee,
		gasPrice:                cfg.InitialGasPrice,
		elasticity:              elasticity,
		minPriorityFeeEnforced:  cfg.EnforceMinPriorityFee,
		eip1559:                 cfg.EIP1559,
	}
}

func (m *Manager) BaseFee() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseFee
}

func (m *Manager) SetBaseFee(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseFee = v
}

func (m *Manager) GasPrice() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gasPrice
}

func (m *Manager) SetGasPrice(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gasPrice = v
}

func (m *Manager) ExcessBlobGas() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.excessBlobGas
}

func (m *Manager) SetExcessBlobGas(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.excessBlobGas = v
}

func (m *Manager) IsMinPriorityFeeEnforced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minPriorityFeeEnforced
}

func (m *Manager) IsEIP1559() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eip1559
}

// NextBlockBaseFee applies the EIP-1559 update formula:
//
//	target = gasLimit / elasticity
//	delta  = baseFee * |gasUsed-target| / target / denominator
//
// baseFee increases when gasUsed > target and decreases when gasUsed <
// target. A decrease is at most 1/denominator of the parent fee, so a
// non-zero base fee never drops to zero; there is no configurable minimum
// base fee.
// When EIP-1559 is disabled the parent base fee is returned unchanged.
func (m *Manager) NextBlockBaseFee(parentGasUsed, gasLimit, parentBaseFee uint64) uint64 {
	m.mu.RLock()
	elasticity := m.elasticity
	eip1559 := m.eip1559
	m.mu.RUnlock()

	if !eip1559 {
		return parentBaseFee
	}
	if gasLimit == 0 {
		return parentBaseFee
	}
	if elasticity == 0 {
		elasticity = params.ElasticityMultiplier
	}
	target := gasLimit / elasticity
	if target == 0 {
		target = 1
	}

	parentBaseFeeBig := new(big.Int).SetUint64(parentBaseFee)
	denom := new(big.Int).SetUint64(params.BaseFeeChangeDenominator)

	switch {
	case parentGasUsed == target:
		return parentBaseFee
	case parentGasUsed > target:
		gasUsedDelta := new(big.Int).SetUint64(parentGasUsed - target)
		x := new(big.Int).Mul(parentBaseFeeBig, gasUsedDelta)
		y := x.Div(x, new(big.Int).SetUint64(target))
		baseFeeDelta := cmath.BigMax(x.Div(y, denom), big.NewInt(1))

		return new(big.Int).Add(parentBaseFeeBig, baseFeeDelta).Uint64()
	default:
		gasUsedDelta := new(big.Int).SetUint64(target - parentGasUsed)
		x := new(big.Int).Mul(parentBaseFeeBig, gasUsedDelta)
		y := x.Div(x, new(big.Int).SetUint64(target))
		baseFeeDelta := x.Div(y, denom)

		next := new(big.Int).Sub(parentBaseFeeBig, baseFeeDelta)
		if next.Sign() < 0 {
			return 0
		}
		return next.Uint64()
	}
}

// NextBlockBlobExcessGas applies the EIP-4844 update: the new excess blob
// gas is the saturating sum of the parent's excess and used blob gas, minus
// the per-block target, floored at zero.
func (m *Manager) NextBlockBlobExcessGas(parentExcess, parentBlobGasUsed uint64) uint64 {
	total := parentExcess + parentBlobGasUsed
	if total < parentExcess {
		total = ^uint64(0)
	}
	if total < params.BlobTxTargetBlobGasPerBlock {
		return 0
	}
	return total - params.BlobTxTargetBlobGasPerBlock
}

// BlobBaseFee derives the per-blob-gas fee from the excess blob gas using
// the fake-exponential formula EIP-4844 specifies.
func (m *Manager) BlobBaseFee(excessBlobGas uint64) uint64 {
	fee := fakeExponential(params.BlobTxMinBlobGasprice, excessBlobGas, params.BlobTxBlobGasPriceUpdateFraction)
	if !fee.IsUint64() {
		return ^uint64(0)
	}
	return fee.Uint64()
}

// fakeExponential approximates factor * e**(numerator/denominator) using the
// integer approximation from EIP-4844.
func fakeExponential(factor, numerator, denominator uint64) *big.Int {
	f := new(big.Int).SetUint64(factor)
	num := new(big.Int).SetUint64(numerator)
	den := new(big.Int).SetUint64(denominator)

	i := big.NewInt(1)
	output := new(big.Int)
	numAccum := new(big.Int).Mul(f, den)

	for numAccum.Sign() > 0 {
		output.Add(output, numAccum)

		numAccum.Mul(numAccum, num)
		numAccum.Div(numAccum, den)
		numAccum.Div(numAccum, i)

		i.Add(i, big.NewInt(1))
	}
	return output.Div(output, den)
}
