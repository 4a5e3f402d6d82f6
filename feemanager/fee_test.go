package feemanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextBlockBaseFeeStableAtTarget(t *testing.T) {
	m := New(Config{InitialBaseFee: 1_000_000_000, EIP1559: true})
	gasLimit := uint64(30_000_000)
	target := gasLimit / 2

	got := m.NextBlockBaseFee(target, gasLimit, 1_000_000_000)
	require.Equal(t, uint64(1_000_000_000), got)
}

func TestNextBlockBaseFeeIncreasesWhenAboveTarget(t *testing.T) {
	m := New(Config{EIP1559: true})
	gasLimit := uint64(30_000_000)

	got := m.NextBlockBaseFee(gasLimit, gasLimit, 1_000_000_000)
	require.Greater(t, got, uint64(1_000_000_000))
}

func TestNextBlockBaseFeeDecreasesWhenBelowTarget(t *testing.T) {
	m := New(Config{EIP1559: true})
	gasLimit := uint64(30_000_000)

	got := m.NextBlockBaseFee(0, gasLimit, 1_000_000_000)
	require.Less(t, got, uint64(1_000_000_000))
}

func TestNextBlockBaseFeeNeverUnderflows(t *testing.T) {
	m := New(Config{EIP1559: true})
	got := m.NextBlockBaseFee(0, 30_000_000, 1)
	require.GreaterOrEqual(t, got, uint64(0))
}

func TestNextBlockBaseFeeDisabledReturnsParent(t *testing.T) {
	m := New(Config{EIP1559: false})
	got := m.NextBlockBaseFee(30_000_000, 30_000_000, 7)
	require.Equal(t, uint64(7), got)
}

func TestNextBlockBlobExcessGasSaturatesAtZero(t *testing.T) {
	m := New(Config{})
	require.Equal(t, uint64(0), m.NextBlockBlobExcessGas(0, 0))
}

func TestNextBlockBlobExcessGasAccumulates(t *testing.T) {
	m := New(Config{})
	got := m.NextBlockBlobExcessGas(1_000_000, 1_000_000)
	require.Greater(t, got, uint64(0))
}

func TestSettersTakeWriterLockBriefly(t *testing.T) {
	m := New(Config{})
	m.SetBaseFee(42)
	m.SetGasPrice(7)
	m.SetExcessBlobGas(3)
	require.Equal(t, uint64(42), m.BaseFee())
	require.Equal(t, uint64(7), m.GasPrice())
	require.Equal(t, uint64(3), m.ExcessBlobGas())
}
