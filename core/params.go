// SPDX-License-Identifier: MIT

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"rustchain/types"
)

// Params are the protocol constants: the schedule, the pot, and the
// attestation windows. They load from an optional JSON file with
// RC_* environment overrides on top; bad values are fatal because a
// node running the wrong schedule forks the ledger.
type Params struct {
	GenesisUnix     int64  `json:"genesis_unix"`
	SlotDurationSec int64  `json:"slot_duration_sec"`
	SlotsPerEpoch   uint64 `json:"slots_per_epoch"`
	EpochPotMicro   int64  `json:"epoch_pot_micro"`
	ChallengeTTLSec int64  `json:"challenge_ttl_sec"`
	FreshnessSkew   int64  `json:"freshness_skew_sec"`
	EnrollTTLSec    int64  `json:"enroll_ttl_sec"`
	BindingMaxIdle  int64  `json:"binding_max_idle_sec"`
}

func DefaultParams() Params {
	return Params{
		// 2025-01-01T00:00:00Z
		GenesisUnix:     1735689600,
		SlotDurationSec: types.DefaultSlotDuration,
		SlotsPerEpoch:   types.DefaultSlotsPerEpoch,
		EpochPotMicro:   types.DefaultEpochPotMicro,
		ChallengeTTLSec: types.DefaultChallengeTTL,
		FreshnessSkew:   types.DefaultFreshnessSkew,
		EnrollTTLSec:    types.DefaultEnrollmentTTL,
		BindingMaxIdle:  types.DefaultBindingMaxIdle,
	}
}

func LoadParams(path string) (Params, error) {
	p := DefaultParams()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return p, fmt.Errorf("cannot open params file: %w", err)
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("invalid params json: %w", err)
		}
	}

	if err := applyEnvOverrides(&p); err != nil {
		return p, fmt.Errorf("environment override error: %w", err)
	}

	return p, validate(p)
}

func applyEnvOverrides(p *Params) error {
	parseInt := func(key string, field *int64) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s invalid numeric value: %s", key, v)
		}
		*field = n
		return nil
	}

	if err := parseInt("RC_GENESIS_UNIX", &p.GenesisUnix); err != nil {
		return err
	}
	if err := parseInt("RC_SLOT_DURATION", &p.SlotDurationSec); err != nil {
		return err
	}
	if err := parseInt("RC_EPOCH_POT_MICRO", &p.EpochPotMicro); err != nil {
		return err
	}
	if err := parseInt("RC_CHALLENGE_TTL", &p.ChallengeTTLSec); err != nil {
		return err
	}
	if err := parseInt("RC_FRESHNESS_SKEW", &p.FreshnessSkew); err != nil {
		return err
	}
	if err := parseInt("RC_ENROLL_TTL", &p.EnrollTTLSec); err != nil {
		return err
	}

	if v := os.Getenv("RC_SLOTS_PER_EPOCH"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("RC_SLOTS_PER_EPOCH invalid numeric value: %s", v)
		}
		p.SlotsPerEpoch = n
	}

	return nil
}

func validate(p Params) error {
	if p.GenesisUnix < 0 {
		return errors.New("genesis_unix must be >= 0")
	}
	if p.SlotDurationSec <= 0 {
		return errors.New("slot_duration_sec must be > 0")
	}
	if p.SlotsPerEpoch == 0 {
		return errors.New("slots_per_epoch must be > 0")
	}
	if p.EpochPotMicro <= 0 {
		return errors.New("epoch_pot_micro must be > 0")
	}
	if p.ChallengeTTLSec <= 0 {
		return errors.New("challenge_ttl_sec must be > 0")
	}
	if p.FreshnessSkew < 0 {
		return errors.New("freshness_skew_sec must be >= 0")
	}
	if p.EnrollTTLSec <= 0 {
		return errors.New("enroll_ttl_sec must be > 0")
	}
	return nil
}
