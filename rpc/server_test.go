// SPDX-License-Identifier: MIT

package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rustchain/store"
	"rustchain/types"
)

const testAdminKey = "test-admin-key-0123456789abcdef-0000"

type fixture struct {
	server *Server
	ledger *types.Ledger
	clock  *types.Clock
}

func newTestServer(t *testing.T) *fixture {
	t.Helper()
	db := store.NewMemStore()
	ledger := types.NewLedger(db, nil)
	bindings := types.NewBindingTable(db, nil, 0)
	registry := types.NewChallengeRegistry(2 * time.Minute)
	attest := types.NewAttestationService(registry, types.DefaultFingerprintPolicy(), bindings, ledger, db, nil, 0)

	genesis := time.Now().Unix() - 2*86400 - 100
	clock, err := types.NewClock(genesis, types.DefaultSlotDuration, types.DefaultSlotsPerEpoch)
	require.NoError(t, err)

	settle := types.NewSettlementEngine(db, ledger, clock, attest, nil, types.DefaultEpochPotMicro, 0)

	srv := NewServer(Services{
		Clock:    clock,
		Registry: registry,
		Attest:   attest,
		Settle:   settle,
		Ledger:   ledger,
	}, testAdminKey, nil)

	return &fixture{server: srv, ledger: ledger, clock: clock}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func goodEvidence() *types.FingerprintEvidence {
	return &types.FingerprintEvidence{
		ClockDrift:        &types.ClockDriftEvidence{MeanNs: 500000, StdevNs: 12000, CV: 0.024, DriftStdev: 9000},
		CacheTiming:       &types.CacheTimingEvidence{L1Ns: 1.2, L2Ns: 3.4, L3Ns: 11.8, L2L1Ratio: 2.83, L3L2Ratio: 3.47},
		SIMDIdentity:      &types.SIMDEvidence{Arch: "ppc", FlagsCount: 4, HasAltiVec: true},
		ThermalDrift:      &types.ThermalDriftEvidence{ColdAvgNs: 900000, HotAvgNs: 950000, ColdStdev: 4000, HotStdev: 5200, DriftRatio: 1.05},
		InstructionJitter: &types.InstructionJitterEvidence{IntStdev: 800, FPStdev: 950, BranchStdev: 700},
		AntiEmulation:     &types.AntiEmulationEvidence{DMIStrings: []string{"PowerMac3,6"}},
	}
}

func TestHealth(t *testing.T) {
	f := newTestServer(t)
	w := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestEpochEndpoint(t *testing.T) {
	f := newTestServer(t)
	w := f.do(t, http.MethodGet, "/epoch", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var p types.SchedulePoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, f.clock.Now().Epoch, p.Epoch)
}

func TestChallengeSubmitEnrollFlow(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodPost, "/attest/challenge", map[string]string{"miner_id": "miner-1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ch types.Challenge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ch))
	require.NotEmpty(t, ch.Nonce)

	sub := types.AttestationSubmission{
		Miner:    "miner-1",
		Nonce:    ch.Nonce,
		ClientTS: time.Now().Unix(),
		Serial:   "SER-1",
		Arch:     "ppc",
		Family:   "powerpc-g4",
		Cores:    2,
		Evidence: goodEvidence(),
	}
	w = f.do(t, http.MethodPost, "/attest/submit", sub, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res types.AttestationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Accepted)

	wlt, err := types.NewWallet()
	require.NoError(t, err)
	w = f.do(t, http.MethodPost, "/epoch/enroll",
		map[string]string{"miner_id": "miner-1", "address": string(wlt.Address)}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var enr types.Enrollment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &enr))
	assert.Equal(t, 2.5, enr.Multiplier)
}

func TestSubmitReplayReturnsConflict(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodPost, "/attest/challenge", map[string]string{"miner_id": "m"}, nil)
	var ch types.Challenge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ch))

	sub := types.AttestationSubmission{
		Miner: "m", Nonce: ch.Nonce, ClientTS: time.Now().Unix(),
		Serial: "S", Arch: "ppc", Family: "powerpc-g4", Cores: 1,
		Evidence: goodEvidence(),
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/attest/submit", sub, nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/attest/submit", sub, nil).Code)
}

func TestSignedTransferEndpoint(t *testing.T) {
	f := newTestServer(t)

	alice, err := types.NewWallet()
	require.NoError(t, err)
	bob, err := types.NewWallet()
	require.NoError(t, err)
	require.NoError(t, f.ledger.Credit(alice.Address, 10_000, 0, "test_fund"))

	tr := &types.SignedTransfer{From: alice.Address, To: bob.Address, Amount: 4_000, Nonce: "n-1"}
	require.NoError(t, types.SignTransfer(tr, alice.PrivateKey))

	w := f.do(t, http.MethodPost, "/wallet/transfer/signed", tr, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/balance/"+string(bob.Address), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"balance":4000`)

	// tampered replay: signature no longer matches
	tr.Amount = 9_999
	w = f.do(t, http.MethodPost, "/wallet/transfer/signed", tr, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBalanceRejectsBadAddress(t *testing.T) {
	f := newTestServer(t)
	w := f.do(t, http.MethodGet, "/balance/not-an-address", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminGate(t *testing.T) {
	f := newTestServer(t)

	// no key
	w := f.do(t, http.MethodGet, "/wallet/balances/all", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())

	// wrong key gets the same opaque denial
	w = f.do(t, http.MethodGet, "/wallet/balances/all", nil,
		map[string]string{"X-Admin-Key": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())

	// correct key
	w = f.do(t, http.MethodGet, "/wallet/balances/all", nil,
		map[string]string{"X-Admin-Key": testAdminKey})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminSettle(t *testing.T) {
	f := newTestServer(t)
	prev := f.clock.Now().Epoch - 1

	w := f.do(t, http.MethodPost, "/rewards/settle",
		map[string]uint64{"epoch": prev},
		map[string]string{"X-Admin-Key": testAdminKey})
	require.Equal(t, http.StatusOK, w.Code)

	var state types.EpochState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, types.EpochSettled, state.Status)

	// unauthorized trigger
	w = f.do(t, http.MethodPost, "/rewards/settle", map[string]uint64{"epoch": prev}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLedgerEndpoint(t *testing.T) {
	f := newTestServer(t)
	wlt, err := types.NewWallet()
	require.NoError(t, err)
	require.NoError(t, f.ledger.Credit(wlt.Address, 777, 0, "test_fund"))

	w := f.do(t, http.MethodGet, "/wallet/ledger?limit=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_fund")
}

func TestStatsEndpoint(t *testing.T) {
	f := newTestServer(t)
	w := f.do(t, http.MethodGet, "/api/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "enrolled_miners")
}
