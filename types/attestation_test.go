// SPDX-License-Identifier: MIT

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rustchain/store"
)

func newAttestFixture(t *testing.T) (*AttestationService, *ChallengeRegistry) {
	t.Helper()
	db := store.NewMemStore()
	ledger := NewLedger(db, nil)
	bindings := NewBindingTable(db, nil, 0)
	registry := NewChallengeRegistry(2 * time.Minute)
	svc := NewAttestationService(registry, DefaultFingerprintPolicy(), bindings, ledger, db, nil, 0)
	return svc, registry
}

func validSubmission(nonce string, miner MinerID) *AttestationSubmission {
	return &AttestationSubmission{
		Miner:    miner,
		Nonce:    nonce,
		ClientTS: time.Now().Unix(),
		Serial:   "SER-" + string(miner),
		Arch:     "ppc",
		Family:   "powerpc-g4",
		Cores:    2,
		Evidence: goodEvidence(),
	}
}

func TestSubmitHappyPath(t *testing.T) {
	svc, registry := newAttestFixture(t)
	ch := registry.Issue("miner-1")

	res, err := svc.Submit(validSubmission(ch.Nonce, "miner-1"))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "new_binding", res.Bind)
	assert.Equal(t, 2.5, res.Multiplier)
	assert.NotEmpty(t, res.Hardware)

	rec, err := svc.RecentFor("miner-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "powerpc-g4", rec.Family)
}

func TestSubmitReplayedNonce(t *testing.T) {
	svc, registry := newAttestFixture(t)
	ch := registry.Issue("miner-1")

	_, err := svc.Submit(validSubmission(ch.Nonce, "miner-1"))
	require.NoError(t, err)

	_, err = svc.Submit(validSubmission(ch.Nonce, "miner-1"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeReplay, CodeOf(err))
}

func TestSubmitUnknownNonce(t *testing.T) {
	svc, _ := newAttestFixture(t)
	_, err := svc.Submit(validSubmission("never-issued", "miner-1"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}

func TestSubmitStaleClientTimestamp(t *testing.T) {
	svc, registry := newAttestFixture(t)
	ch := registry.Issue("miner-1")

	sub := validSubmission(ch.Nonce, "miner-1")
	sub.ClientTS = time.Now().Unix() - 2*DefaultFreshnessSkew
	_, err := svc.Submit(sub)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}

func TestSubmitMissingTimestampRejected(t *testing.T) {
	svc, registry := newAttestFixture(t)
	ch := registry.Issue("miner-1")

	sub := validSubmission(ch.Nonce, "miner-1")
	sub.ClientTS = 0
	_, err := svc.Submit(sub)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}

func TestSubmitBadFingerprintDeniesWithoutBlacklist(t *testing.T) {
	svc, registry := newAttestFixture(t)

	ch := registry.Issue("miner-1")
	sub := validSubmission(ch.Nonce, "miner-1")
	sub.Evidence.AntiEmulation.HypervisorFlag = true

	res, err := svc.Submit(sub)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "fingerprint_rejected", res.Reason)

	// no recency record was written
	rec, err := svc.RecentFor("miner-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// the same miner passes cleanly on the next attempt
	ch2 := registry.Issue("miner-1")
	res, err = svc.Submit(validSubmission(ch2.Nonce, "miner-1"))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestSubmitBindConflictReported(t *testing.T) {
	svc, registry := newAttestFixture(t)

	ch := registry.Issue("alice")
	res, err := svc.Submit(validSubmission(ch.Nonce, "alice"))
	require.NoError(t, err)
	require.True(t, res.Accepted)

	// bob attests from alice's hardware
	ch2 := registry.Issue("bob")
	sub := validSubmission(ch2.Nonce, "bob")
	sub.Serial = "SER-alice"
	res, err = svc.Submit(sub)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "hardware_already_bound", res.Bind)
}

func TestSubmitMissingFields(t *testing.T) {
	svc, _ := newAttestFixture(t)
	_, err := svc.Submit(&AttestationSubmission{})
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}
