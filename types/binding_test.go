// SPDX-License-Identifier: MIT

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rustchain/store"
)

func newTestBindings(t *testing.T, maxIdle time.Duration) *BindingTable {
	t.Helper()
	return NewBindingTable(store.NewMemStore(), nil, maxIdle)
}

func sampleEntropy() EntropyProfile {
	return EntropyProfile{
		ClockCV:      0.02,
		CacheL1:      1.2,
		CacheL2:      3.4,
		ThermalRatio: 1.05,
		JitterCV:     0.8,
	}
}

func TestComputeHardwareIDNormalizes(t *testing.T) {
	a := ComputeHardwareID("  abc123  ", "PPC")
	b := ComputeHardwareID("ABC123", "ppc")
	assert.Equal(t, a, b)
	assert.Len(t, string(a), 40)

	assert.NotEqual(t, a, ComputeHardwareID("abc123", "x86"))
}

func TestBindNewHardware(t *testing.T) {
	bt := newTestBindings(t, 0)
	hw := ComputeHardwareID("serial-1", "ppc")

	res, err := bt.Bind(hw, "alice", "ppc", 2, sampleEntropy())
	require.NoError(t, err)
	assert.Equal(t, BindNew, res.Status)
	assert.True(t, res.Ok())

	b, err := bt.Lookup(hw)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, MinerID("alice"), b.Miner)
	assert.Equal(t, uint64(1), b.Attestations)
}

func TestBindSameMinerRefreshes(t *testing.T) {
	bt := newTestBindings(t, 0)
	hw := ComputeHardwareID("serial-1", "ppc")

	_, err := bt.Bind(hw, "alice", "ppc", 2, sampleEntropy())
	require.NoError(t, err)

	res, err := bt.Bind(hw, "alice", "ppc", 2, sampleEntropy())
	require.NoError(t, err)
	assert.Equal(t, BindAuthorized, res.Status)

	b, _ := bt.Lookup(hw)
	assert.Equal(t, uint64(2), b.Attestations)
}

func TestBindConflictPreservesExisting(t *testing.T) {
	bt := newTestBindings(t, 0)
	hw := ComputeHardwareID("serial-1", "ppc")

	_, err := bt.Bind(hw, "alice", "ppc", 2, sampleEntropy())
	require.NoError(t, err)

	res, err := bt.Bind(hw, "bob", "ppc", 2, sampleEntropy())
	require.NoError(t, err)
	assert.Equal(t, BindConflict, res.Status)
	assert.Equal(t, MinerID("alice"), res.Existing)
	assert.False(t, res.Ok())

	// the stored binding did not move
	b, _ := bt.Lookup(hw)
	assert.Equal(t, MinerID("alice"), b.Miner)
	assert.Equal(t, uint64(1), b.Attestations)
}

func TestBindEntropyMismatchSuspectsSpoof(t *testing.T) {
	bt := newTestBindings(t, 0)
	hw := ComputeHardwareID("serial-1", "ppc")

	_, err := bt.Bind(hw, "alice", "ppc", 2, sampleEntropy())
	require.NoError(t, err)

	// both stable cache fields shifted far outside tolerance
	shifted := sampleEntropy()
	shifted.CacheL1 *= 10
	shifted.CacheL2 *= 10

	res, err := bt.Bind(hw, "alice", "ppc", 2, shifted)
	require.NoError(t, err)
	assert.Equal(t, BindSuspectedSpoof, res.Status)
	assert.False(t, res.Ok())
}

func TestBindToleratesVolatileDrift(t *testing.T) {
	bt := newTestBindings(t, 0)
	hw := ComputeHardwareID("serial-1", "ppc")

	_, err := bt.Bind(hw, "alice", "ppc", 2, sampleEntropy())
	require.NoError(t, err)

	// clock and jitter swing hard on real machines; only one stable
	// field drifting is still accepted
	drifted := sampleEntropy()
	drifted.ClockCV *= 3
	drifted.JitterCV *= 2.5
	drifted.CacheL1 *= 1.2

	res, err := bt.Bind(hw, "alice", "ppc", 2, drifted)
	require.NoError(t, err)
	assert.Equal(t, BindAuthorized, res.Status)
}

func TestReleaseAllowsRebind(t *testing.T) {
	bt := newTestBindings(t, 0)
	hw := ComputeHardwareID("serial-1", "ppc")

	_, err := bt.Bind(hw, "alice", "ppc", 2, sampleEntropy())
	require.NoError(t, err)
	require.NoError(t, bt.Release(hw))

	res, err := bt.Bind(hw, "bob", "ppc", 2, sampleEntropy())
	require.NoError(t, err)
	assert.Equal(t, BindNew, res.Status)

	b, _ := bt.Lookup(hw)
	assert.Equal(t, MinerID("bob"), b.Miner)
}

func TestReleaseUnknownHardware(t *testing.T) {
	bt := newTestBindings(t, 0)
	assert.Error(t, bt.Release(ComputeHardwareID("ghost", "ppc")))
}

func TestAgedOutBindingRebinds(t *testing.T) {
	// 1ns idle limit: any existing binding is immediately stale
	bt := newTestBindings(t, time.Nanosecond)
	hw := ComputeHardwareID("serial-1", "ppc")

	_, err := bt.Bind(hw, "alice", "ppc", 2, sampleEntropy())
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	res, err := bt.Bind(hw, "bob", "ppc", 2, sampleEntropy())
	require.NoError(t, err)
	assert.Equal(t, BindNew, res.Status)
}

func TestPruneIdle(t *testing.T) {
	bt := newTestBindings(t, time.Nanosecond)
	_, err := bt.Bind(ComputeHardwareID("s1", "ppc"), "alice", "ppc", 2, sampleEntropy())
	require.NoError(t, err)
	_, err = bt.Bind(ComputeHardwareID("s2", "x86"), "bob", "x86", 4, sampleEntropy())
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	removed, err := bt.PruneIdle()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	b, err := bt.Lookup(ComputeHardwareID("s1", "ppc"))
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestCompareEntropyNoBaseline(t *testing.T) {
	ok, score, reason := CompareEntropy(EntropyProfile{}, sampleEntropy())
	assert.True(t, ok)
	assert.Equal(t, 1.0, score)
	assert.Equal(t, "no_comparable_fields", reason)
}
