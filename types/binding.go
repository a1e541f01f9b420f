// SPDX-License-Identifier: MIT

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rustchain/store"
)

// ComputeHardwareID hashes the normalized serial and architecture so
// the node never stores raw serials.
func ComputeHardwareID(serial, arch string) HardwareID {
	data := strings.ToUpper(strings.TrimSpace(serial)) + "|" + strings.ToLower(arch)
	sum := sha256.Sum256([]byte(data))
	return HardwareID(hex.EncodeToString(sum[:])[:40])
}

// EntropyProfile carries the comparable timing signals of a host.
// Values are volatile to different degrees; comparison tolerances are
// per field.
type EntropyProfile struct {
	ClockCV      float64 `json:"clock_cv"`
	CacheL1      float64 `json:"cache_l1"`
	CacheL2      float64 `json:"cache_l2"`
	ThermalRatio float64 `json:"thermal_ratio"`
	JitterCV     float64 `json:"jitter_cv"`
}

// Per-field relative tolerances. Clock and jitter swing wildly on real
// hardware under load, so only the stable cache fields count as hard
// mismatch evidence.
var entropyTolerance = map[string]float64{
	"clock_cv":      5.0,
	"cache_l1":      0.30,
	"cache_l2":      0.30,
	"thermal_ratio": 0.50,
	"jitter_cv":     2.0,
}

const stableFieldTolerance = 0.30

func (p EntropyProfile) fields() map[string]float64 {
	return map[string]float64{
		"clock_cv":      p.ClockCV,
		"cache_l1":      p.CacheL1,
		"cache_l2":      p.CacheL2,
		"thermal_ratio": p.ThermalRatio,
		"jitter_cv":     p.JitterCV,
	}
}

// CompareEntropy returns whether two profiles plausibly come from the
// same host, with a similarity score in [0,1]. Rejection needs two or
// more stable-field mismatches.
func CompareEntropy(stored, current EntropyProfile) (bool, float64, string) {
	sf, cf := stored.fields(), current.fields()

	var totalDiff float64
	count := 0
	hardFails := 0
	var drift []string

	for key, sv := range sf {
		cv := cf[key]
		if sv <= 0 || cv <= 0 {
			continue
		}
		diff := abs(sv-cv) / sv
		if diff > 1.0 {
			totalDiff += 1.0
		} else {
			totalDiff += diff
		}
		count++
		if diff > entropyTolerance[key] {
			drift = append(drift, fmt.Sprintf("%s:%.0f%%", key, diff*100))
			if entropyTolerance[key] <= stableFieldTolerance {
				hardFails++
			}
		}
	}
	if count == 0 {
		return true, 1.0, "no_comparable_fields"
	}
	similarity := 1.0 - totalDiff/float64(count)
	if hardFails >= 2 {
		return false, similarity, "entropy_mismatch:" + strings.Join(drift, ",")
	}
	if len(drift) > 0 {
		return true, similarity, "entropy_drift:" + strings.Join(drift, ",")
	}
	return true, similarity, "entropy_ok"
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// HardwareBinding is one hardware→miner association.
type HardwareBinding struct {
	Hardware     HardwareID     `json:"hardware_id"`
	Miner        MinerID        `json:"miner_id"`
	Arch         string         `json:"arch"`
	Cores        int            `json:"cores"`
	Entropy      EntropyProfile `json:"entropy"`
	FirstSeen    int64          `json:"first_seen"`
	LastSeen     int64          `json:"last_seen"`
	Attestations uint64         `json:"attestations"`
}

// BindStatus classifies a bind attempt.
type BindStatus int

const (
	BindNew BindStatus = iota
	BindAuthorized
	BindConflict
	BindSuspectedSpoof
)

func (s BindStatus) String() string {
	switch s {
	case BindNew:
		return "new_binding"
	case BindAuthorized:
		return "authorized"
	case BindConflict:
		return "hardware_already_bound"
	default:
		return "suspected_spoof"
	}
}

// BindResult is the outcome of Bind. Existing is set on conflict so the
// caller can report who holds the binding, truncated for privacy.
type BindResult struct {
	Status     BindStatus
	Existing   MinerID
	Similarity float64
	Reason     string
}

// Ok reports whether the attempt authorized the miner.
func (r BindResult) Ok() bool { return r.Status == BindNew || r.Status == BindAuthorized }

// BindingTable enforces one active hardware identity per miner. All
// decisions happen inside a single store transaction, so two racing
// binds for the same hardware serialize and exactly one wins.
type BindingTable struct {
	db      store.Store
	log     *zap.Logger
	maxIdle time.Duration
}

func NewBindingTable(db store.Store, log *zap.Logger, maxIdle time.Duration) *BindingTable {
	if log == nil {
		log = zap.NewNop()
	}
	if maxIdle <= 0 {
		maxIdle = time.Duration(DefaultBindingMaxIdle) * time.Second
	}
	return &BindingTable{db: db, log: log.Named("binding"), maxIdle: maxIdle}
}

// Bind associates hardware with a miner, or refreshes an existing
// association. Conflicts never alter the stored binding.
func (t *BindingTable) Bind(hw HardwareID, miner MinerID, arch string, cores int, entropy EntropyProfile) (BindResult, error) {
	var res BindResult
	now := time.Now().Unix()

	err := t.db.Update(func(tx store.Tx) error {
		existing, err := readBinding(tx, hw)
		if err != nil {
			return err
		}

		if existing != nil && now-existing.LastSeen > int64(t.maxIdle.Seconds()) {
			// Aged out; treat as released.
			existing = nil
		}

		if existing == nil {
			b := &HardwareBinding{
				Hardware:     hw,
				Miner:        miner,
				Arch:         arch,
				Cores:        cores,
				Entropy:      entropy,
				FirstSeen:    now,
				LastSeen:     now,
				Attestations: 1,
			}
			res = BindResult{Status: BindNew, Similarity: 1.0, Reason: "new_binding"}
			return writeBinding(tx, b)
		}

		if existing.Miner != miner {
			res = BindResult{Status: BindConflict, Existing: existing.Miner, Reason: "hardware_already_bound"}
			return nil
		}

		ok, sim, reason := CompareEntropy(existing.Entropy, entropy)
		if !ok {
			res = BindResult{Status: BindSuspectedSpoof, Existing: existing.Miner, Similarity: sim, Reason: reason}
			return nil
		}

		existing.LastSeen = now
		existing.Attestations++
		res = BindResult{Status: BindAuthorized, Similarity: sim, Reason: reason}
		return writeBinding(tx, existing)
	})
	if err != nil {
		return BindResult{}, err
	}

	if !res.Ok() {
		t.log.Warn("bind rejected",
			zap.String("hardware", string(hw)),
			zap.String("miner", string(miner)),
			zap.String("reason", res.Reason))
	}
	return res, nil
}

// Release removes a binding so the hardware can be rebound.
func (t *BindingTable) Release(hw HardwareID) error {
	return t.db.Update(func(tx store.Tx) error {
		if tx.Get(store.BucketBindings, string(hw)) == nil {
			return ErrUnknownAccount
		}
		return tx.Delete(store.BucketBindings, string(hw))
	})
}

// Lookup returns the binding for a hardware identity, nil if none.
func (t *BindingTable) Lookup(hw HardwareID) (*HardwareBinding, error) {
	var b *HardwareBinding
	err := t.db.View(func(tx store.Tx) error {
		var err error
		b, err = readBinding(tx, hw)
		return err
	})
	return b, err
}

// PruneIdle deletes bindings unseen for longer than the idle limit and
// returns how many were removed.
func (t *BindingTable) PruneIdle() (int, error) {
	cutoff := time.Now().Unix() - int64(t.maxIdle.Seconds())
	var stale []string
	err := t.db.Update(func(tx store.Tx) error {
		stale = stale[:0]
		err := tx.ForEach(store.BucketBindings, func(key string, val []byte) error {
			var b HardwareBinding
			if err := json.Unmarshal(val, &b); err != nil {
				return err
			}
			if b.LastSeen < cutoff {
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := tx.Delete(store.BucketBindings, key); err != nil {
				return err
			}
		}
		return nil
	})
	return len(stale), err
}

func readBinding(tx store.Tx, hw HardwareID) (*HardwareBinding, error) {
	raw := tx.Get(store.BucketBindings, string(hw))
	if raw == nil {
		return nil, nil
	}
	var b HardwareBinding
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func writeBinding(tx store.Tx, b *HardwareBinding) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return tx.Put(store.BucketBindings, string(b.Hardware), raw)
}
