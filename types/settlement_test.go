// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rustchain/store"
)

type settleFixture struct {
	db     store.Store
	ledger *Ledger
	clock  *Clock
	attest *AttestationService
	engine *SettlementEngine
}

// newSettleFixture builds the full engine stack over a mem store, with
// genesis three days back so a few epochs have already completed.
func newSettleFixture(t *testing.T) *settleFixture {
	t.Helper()
	db := store.NewMemStore()
	ledger := NewLedger(db, nil)
	bindings := NewBindingTable(db, nil, 0)
	registry := NewChallengeRegistry(2 * time.Minute)
	attest := NewAttestationService(registry, DefaultFingerprintPolicy(), bindings, ledger, db, nil, 0)

	genesis := time.Now().Unix() - 3*86400 - 100
	clock, err := NewClock(genesis, DefaultSlotDuration, DefaultSlotsPerEpoch)
	require.NoError(t, err)

	engine := NewSettlementEngine(db, ledger, clock, attest, nil, DefaultEpochPotMicro, 0)
	return &settleFixture{db: db, ledger: ledger, clock: clock, attest: attest, engine: engine}
}

// markAttested plants a recent accepted attestation for the miner.
func (f *settleFixture) markAttested(t *testing.T, miner MinerID, family string, age time.Duration) {
	t.Helper()
	rec := RecentAttestation{
		Miner:  miner,
		TS:     time.Now().Add(-age).Unix(),
		Family: family,
		Arch:   "ppc",
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, f.db.Update(func(tx store.Tx) error {
		return tx.Put(store.BucketMeta, recentKey(miner), raw)
	}))
}

func testAddr(t *testing.T) Address {
	t.Helper()
	w, err := NewWallet()
	require.NoError(t, err)
	return w.Address
}

func TestEnrollRequiresRecentAttestation(t *testing.T) {
	f := newSettleFixture(t)
	epoch := f.clock.Now().Epoch

	_, err := f.engine.Enroll("miner-1", testAddr(t), epoch)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}

func TestEnrollRejectsStaleAttestation(t *testing.T) {
	f := newSettleFixture(t)
	epoch := f.clock.Now().Epoch

	f.markAttested(t, "miner-1", "powerpc-g4", 2*DefaultEnrollmentTTL*time.Second)
	_, err := f.engine.Enroll("miner-1", testAddr(t), epoch)
	assert.Error(t, err)
}

func TestEnrollSnapshotsWeight(t *testing.T) {
	f := newSettleFixture(t)
	epoch := f.clock.Now().Epoch

	f.markAttested(t, "miner-1", "powerpc-g4", time.Minute)
	enr, err := f.engine.Enroll("miner-1", testAddr(t), epoch)
	require.NoError(t, err)
	assert.Equal(t, 2.5, enr.Multiplier)
	assert.Equal(t, int64(2500), enr.WeightMilli)

	list, err := f.engine.Enrollments(epoch)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, MinerID("miner-1"), list[0].Miner)
}

func TestSettleProportionalSharesWithCarry(t *testing.T) {
	f := newSettleFixture(t)
	epoch := f.clock.Now().Epoch - 1

	aliceAddr, bobAddr := testAddr(t), testAddr(t)
	f.markAttested(t, "alice", "powerpc-g4", time.Minute) // weight 2500
	f.markAttested(t, "bob", "xeon", time.Minute)         // weight 1000

	_, err := f.engine.Enroll("alice", aliceAddr, epoch)
	require.NoError(t, err)
	_, err = f.engine.Enroll("bob", bobAddr, epoch)
	require.NoError(t, err)

	state, err := f.engine.Settle(epoch)
	require.NoError(t, err)
	assert.Equal(t, EpochSettled, state.Status)
	assert.Equal(t, int64(1_500_000), state.Pot)

	// 1,500,000 * 2500/3500 and * 1000/3500, truncated
	aBal, _ := f.ledger.Balance(aliceAddr)
	bBal, _ := f.ledger.Balance(bobAddr)
	assert.Equal(t, int64(1_071_428), aBal)
	assert.Equal(t, int64(428_571), bBal)
	assert.Equal(t, int64(1), state.Remainder)

	// the truncation remainder rolls into the next settled pot
	f.markAttested(t, "alice", "powerpc-g4", time.Minute)
	_, err = f.engine.Enroll("alice", aliceAddr, epoch-1)
	require.NoError(t, err)
	state2, err := f.engine.Settle(epoch - 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_001), state2.Pot)
	assert.Equal(t, int64(1), state2.CarryIn)
}

func TestSettleIdempotent(t *testing.T) {
	f := newSettleFixture(t)
	epoch := f.clock.Now().Epoch - 1

	addr := testAddr(t)
	f.markAttested(t, "alice", "powerpc-g4", time.Minute)
	_, err := f.engine.Enroll("alice", addr, epoch)
	require.NoError(t, err)

	first, err := f.engine.Settle(epoch)
	require.NoError(t, err)
	balAfterFirst, _ := f.ledger.Balance(addr)

	second, err := f.engine.Settle(epoch)
	require.NoError(t, err)
	assert.Equal(t, first.Payouts, second.Payouts)
	assert.Equal(t, first.SettledAt, second.SettledAt)

	// no double credit
	bal, _ := f.ledger.Balance(addr)
	assert.Equal(t, balAfterFirst, bal)
}

func TestSettleConcurrentTriggersSettleOnce(t *testing.T) {
	f := newSettleFixture(t)
	epoch := f.clock.Now().Epoch - 1

	addr := testAddr(t)
	f.markAttested(t, "alice", "powerpc-g4", time.Minute)
	_, err := f.engine.Enroll("alice", addr, epoch)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Settle(epoch)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// the whole pot was paid exactly once
	bal, _ := f.ledger.Balance(addr)
	assert.Equal(t, int64(1_500_000), bal)
}

func TestSettleRefusesOpenEpoch(t *testing.T) {
	f := newSettleFixture(t)
	current := f.clock.Now().Epoch

	_, err := f.engine.Settle(current)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}

func TestSettleEmptyEpochCarriesWholePot(t *testing.T) {
	f := newSettleFixture(t)
	epoch := f.clock.Now().Epoch - 1

	state, err := f.engine.Settle(epoch)
	require.NoError(t, err)
	assert.Empty(t, state.Payouts)
	assert.Equal(t, int64(1_500_000), state.Remainder)
}

func TestEnrollAfterSettleRejected(t *testing.T) {
	f := newSettleFixture(t)
	epoch := f.clock.Now().Epoch - 1

	_, err := f.engine.Settle(epoch)
	require.NoError(t, err)

	f.markAttested(t, "late", "i486", time.Minute)
	_, err = f.engine.Enroll("late", testAddr(t), epoch)
	assert.ErrorIs(t, err, ErrEpochSettled)
}

func TestEpochStateReporting(t *testing.T) {
	f := newSettleFixture(t)
	epoch := f.clock.Now().Epoch - 1

	state, err := f.engine.State(epoch)
	require.NoError(t, err)
	assert.Equal(t, EpochOpen, state.Status)

	_, err = f.engine.Settle(epoch)
	require.NoError(t, err)

	state, err = f.engine.State(epoch)
	require.NoError(t, err)
	assert.Equal(t, EpochSettled, state.Status)
}
