// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"rustchain/store"
)

// AttestationSubmission is the full payload a miner sends after
// receiving a challenge.
type AttestationSubmission struct {
	Miner       MinerID              `json:"miner_id"`
	Nonce       string               `json:"nonce"`
	ClientTS    int64                `json:"client_ts"`
	Serial      string               `json:"serial"`
	Arch        string               `json:"arch"`
	Family      string               `json:"family"`
	ReleaseYear int                  `json:"release_year,omitempty"`
	Cores       int                  `json:"cores"`
	Evidence    *FingerprintEvidence `json:"fingerprint"`
}

// AttestationResult reports the adjudication of one submission.
type AttestationResult struct {
	Accepted   bool               `json:"accepted"`
	Reason     string             `json:"reason,omitempty"`
	Verdict    FingerprintVerdict `json:"verdict"`
	Bind       string             `json:"bind_status,omitempty"`
	Multiplier float64            `json:"multiplier,omitempty"`
	Hardware   HardwareID         `json:"hardware_id,omitempty"`
}

// RecentAttestation marks a miner's last accepted attestation; epoch
// enrollment requires one inside the enrollment TTL.
type RecentAttestation struct {
	Miner       MinerID `json:"miner_id"`
	TS          int64   `json:"ts"`
	Family      string  `json:"family"`
	ReleaseYear int     `json:"release_year"`
	Arch        string  `json:"arch"`
}

// AttestationService runs the challenge-response flow: nonce
// consumption, freshness, fingerprint policy, hardware binding, and
// finally the recency record enrollment reads.
type AttestationService struct {
	registry *ChallengeRegistry
	policy   FingerprintPolicy
	bindings *BindingTable
	ledger   *Ledger
	db       store.Store
	log      *zap.Logger
	skew     time.Duration
}

func NewAttestationService(
	registry *ChallengeRegistry,
	policy FingerprintPolicy,
	bindings *BindingTable,
	ledger *Ledger,
	db store.Store,
	log *zap.Logger,
	skew time.Duration,
) *AttestationService {
	if log == nil {
		log = zap.NewNop()
	}
	if skew <= 0 {
		skew = DefaultFreshnessSkew * time.Second
	}
	return &AttestationService{
		registry: registry,
		policy:   policy,
		bindings: bindings,
		ledger:   ledger,
		db:       db,
		log:      log.Named("attest"),
		skew:     skew,
	}
}

// Submit adjudicates one attestation. The nonce is consumed before any
// expensive work so a replayed submission dies immediately, and a
// rejection never blacklists the miner.
func (s *AttestationService) Submit(sub *AttestationSubmission) (AttestationResult, error) {
	if sub == nil || sub.Miner.IsZero() || sub.Nonce == "" {
		return AttestationResult{}, NewError(ErrCodeValidation, "missing miner or nonce")
	}

	now := time.Now()
	switch s.registry.Consume(sub.Nonce, now) {
	case ConsumeOk:
	case ConsumeExpired:
		return s.reject(sub, "challenge_expired", NewError(ErrCodeValidation, "challenge expired"))
	case ConsumeAlreadyUsed:
		return s.reject(sub, "replay_detected", NewError(ErrCodeReplay, "challenge already used"))
	default:
		return s.reject(sub, "unknown_challenge", NewError(ErrCodeValidation, "unknown challenge"))
	}

	// Client timestamp is required and must sit inside the skew
	// window; omitting it is not a way around the freshness check.
	if sub.ClientTS == 0 {
		return s.reject(sub, "missing_timestamp", NewError(ErrCodeValidation, "missing client timestamp"))
	}
	delta := now.Unix() - sub.ClientTS
	if delta < 0 {
		delta = -delta
	}
	if delta > int64(s.skew.Seconds()) {
		return s.reject(sub, "stale_timestamp", NewError(ErrCodeValidation, "client timestamp outside freshness window"))
	}

	verdict := s.policy.Evaluate(sub.Evidence)
	if !verdict.Eligible {
		res := AttestationResult{Verdict: verdict, Reason: "fingerprint_rejected"}
		s.ledger.RecordReject("attestation", string(sub.Miner), NewError(ErrCodeValidation, "fingerprint rejected"))
		return res, nil
	}

	hw := ComputeHardwareID(sub.Serial, sub.Arch)
	bind, err := s.bindings.Bind(hw, sub.Miner, sub.Arch, sub.Cores, entropyFromEvidence(sub.Evidence))
	if err != nil {
		return AttestationResult{}, err
	}
	if !bind.Ok() {
		res := AttestationResult{Verdict: verdict, Bind: bind.Status.String(), Reason: bind.Reason, Hardware: hw}
		cause := error(ErrHardwareBound)
		if bind.Status != BindConflict {
			cause = NewError(ErrCodeConflict, bind.Reason)
		}
		s.ledger.RecordReject("bind", string(sub.Miner), cause)
		return res, nil
	}

	mult := EffectiveMultiplier(sub.Family, sub.ReleaseYear)
	if err := s.recordRecent(sub, now.Unix()); err != nil {
		return AttestationResult{}, err
	}

	s.log.Info("attestation accepted",
		zap.String("miner", string(sub.Miner)),
		zap.String("hardware", string(hw)),
		zap.Float64("multiplier", mult))

	return AttestationResult{
		Accepted:   true,
		Verdict:    verdict,
		Bind:       bind.Status.String(),
		Multiplier: mult,
		Hardware:   hw,
	}, nil
}

// RecentFor returns the miner's last accepted attestation, if any.
func (s *AttestationService) RecentFor(miner MinerID) (*RecentAttestation, error) {
	var rec *RecentAttestation
	err := s.db.View(func(tx store.Tx) error {
		raw := tx.Get(store.BucketMeta, recentKey(miner))
		if raw == nil {
			return nil
		}
		var r RecentAttestation
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	return rec, err
}

func (s *AttestationService) reject(sub *AttestationSubmission, reason string, cause error) (AttestationResult, error) {
	s.ledger.RecordReject("attestation", string(sub.Miner), cause)
	return AttestationResult{Reason: reason}, cause
}

func (s *AttestationService) recordRecent(sub *AttestationSubmission, ts int64) error {
	rec := RecentAttestation{
		Miner:       sub.Miner,
		TS:          ts,
		Family:      sub.Family,
		ReleaseYear: sub.ReleaseYear,
		Arch:        sub.Arch,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx store.Tx) error {
		return tx.Put(store.BucketMeta, recentKey(sub.Miner), raw)
	})
}

func recentKey(miner MinerID) string { return "attest:" + string(miner) }

func entropyFromEvidence(ev *FingerprintEvidence) EntropyProfile {
	var p EntropyProfile
	if ev == nil {
		return p
	}
	if ev.ClockDrift != nil {
		p.ClockCV = ev.ClockDrift.CV
	}
	if ev.CacheTiming != nil {
		p.CacheL1 = ev.CacheTiming.L1Ns
		p.CacheL2 = ev.CacheTiming.L2Ns
	}
	if ev.ThermalDrift != nil {
		p.ThermalRatio = ev.ThermalDrift.DriftRatio
	}
	if ev.InstructionJitter != nil && ev.InstructionJitter.IntStdev > 0 {
		// jitter cv approximated from the integer path stdev
		p.JitterCV = float64(ev.InstructionJitter.IntStdev)
	}
	return p
}
