// SPDX-License-Identifier: MIT

package types

import "fmt"

// =========================
// Units and protocol defaults
// =========================

// UnitsPerRTC is the fixed-point scale: all ledger math is int64 micro-RTC.
const UnitsPerRTC int64 = 1_000_000

const (
	DefaultSlotDuration  = 600 // seconds
	DefaultSlotsPerEpoch = 144
	DefaultEpochPotMicro = 1_500_000 // 1.5 RTC minted per epoch
	DefaultChallengeTTL  = 120       // seconds
	DefaultFreshnessSkew = 60        // seconds of tolerated client/server clock skew
	DefaultEnrollmentTTL = 600       // seconds between attestation and enroll

	// DefaultBindingMaxIdle ages out hardware bindings not seen for 30 days.
	DefaultBindingMaxIdle = 30 * 24 * 3600
)

// MinerID identifies a miner account: the miner's RTC address for
// wallet-backed miners, or an operator-chosen identity string.
type MinerID string

func (m MinerID) IsZero() bool { return m == "" }

// HardwareID is the hashed identity of a physical host: sha256 of the
// normalized serial and architecture, first 40 hex chars.
type HardwareID string

func (h HardwareID) IsZero() bool { return h == "" }

// SchedulePoint is one reading of the slot/epoch clock.
type SchedulePoint struct {
	Epoch            uint64  `json:"epoch"`
	Slot             uint64  `json:"slot"`
	SlotProgress     float64 `json:"slot_progress"`
	SecondsRemaining int64   `json:"seconds_remaining"`

	// Anomaly is set when wall-clock time regressed and the reading
	// was clamped to the last observed schedule point.
	Anomaly bool `json:"anomaly,omitempty"`
}

func (p SchedulePoint) String() string {
	return fmt.Sprintf("epoch=%d slot=%d progress=%.4f", p.Epoch, p.Slot, p.SlotProgress)
}

// FormatRTC renders a micro-RTC amount as a decimal RTC string.
func FormatRTC(micro int64) string {
	sign := ""
	if micro < 0 {
		sign = "-"
		micro = -micro
	}
	return fmt.Sprintf("%s%d.%06d", sign, micro/UnitsPerRTC, micro%UnitsPerRTC)
}
