package cheats

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestImpersonateReturnsPriorMembership(t *testing.T) {
	m := New()
	addr := common.HexToAddress("0xaaaa")

	require.False(t, m.Impersonate(addr))
	require.True(t, m.Impersonate(addr))
	require.True(t, m.IsImpersonated(addr))

	m.StopImpersonating(addr)
	require.False(t, m.IsImpersonated(addr))
}

func TestAutoImpersonateShortCircuits(t *testing.T) {
	m := New()
	addr := common.HexToAddress("0xbbbb")
	require.False(t, m.IsImpersonated(addr))

	m.SetAutoImpersonate(true)
	require.True(t, m.IsImpersonated(addr))
}

func TestRecoverOverrideRoundTrip(t *testing.T) {
	m := New()
	require.False(t, m.HasRecoverOverrides())

	var sig [65]byte
	sig[0] = 1
	want := common.HexToAddress("0xcccc")
	m.AddRecoverOverride(sig, want)
	require.True(t, m.HasRecoverOverrides())

	input := make([]byte, 128)
	input[63] = sig[64]
	copy(input[64:96], sig[0:32])
	copy(input[96:128], sig[32:64])

	got, ok := m.ApplyRecover(input)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestApplyRecoverRejectsShortInput(t *testing.T) {
	m := New()
	var sig [65]byte
	m.AddRecoverOverride(sig, common.HexToAddress("0xdddd"))

	_, ok := m.ApplyRecover(make([]byte, 10))
	require.False(t, ok)
}
