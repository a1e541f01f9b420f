// SPDX-License-Identifier: MIT

package types

import "strings"

// Raw-signal evidence submitted with an attestation. Each section is
// optional; nil means the client provided nothing for that check.

type ClockDriftEvidence struct {
	MeanNs     int64   `json:"mean_ns"`
	StdevNs    int64   `json:"stdev_ns"`
	CV         float64 `json:"cv"`
	DriftStdev int64   `json:"drift_stdev"`
}

type CacheTimingEvidence struct {
	L1Ns      float64 `json:"l1_ns"`
	L2Ns      float64 `json:"l2_ns"`
	L3Ns      float64 `json:"l3_ns"`
	L2L1Ratio float64 `json:"l2_l1_ratio"`
	L3L2Ratio float64 `json:"l3_l2_ratio"`
}

type SIMDEvidence struct {
	Arch       string `json:"arch"`
	FlagsCount int    `json:"simd_flags_count"`
	HasSSE     bool   `json:"has_sse"`
	HasAVX     bool   `json:"has_avx"`
	HasAltiVec bool   `json:"has_altivec"`
	HasNEON    bool   `json:"has_neon"`
}

type ThermalDriftEvidence struct {
	ColdAvgNs  int64   `json:"cold_avg_ns"`
	HotAvgNs   int64   `json:"hot_avg_ns"`
	ColdStdev  int64   `json:"cold_stdev"`
	HotStdev   int64   `json:"hot_stdev"`
	DriftRatio float64 `json:"drift_ratio"`
}

type InstructionJitterEvidence struct {
	IntStdev    int64 `json:"int_stdev"`
	FPStdev     int64 `json:"fp_stdev"`
	BranchStdev int64 `json:"branch_stdev"`
}

type AntiEmulationEvidence struct {
	VMIndicators   []string `json:"vm_indicators"`
	DMIStrings     []string `json:"dmi_strings,omitempty"`
	HypervisorFlag bool     `json:"hypervisor_flag"`
}

// FingerprintEvidence bundles everything a miner submits for scoring.
type FingerprintEvidence struct {
	ClockDrift        *ClockDriftEvidence        `json:"clock_drift,omitempty"`
	CacheTiming       *CacheTimingEvidence       `json:"cache_timing,omitempty"`
	SIMDIdentity      *SIMDEvidence              `json:"simd_identity,omitempty"`
	ThermalDrift      *ThermalDriftEvidence      `json:"thermal_drift,omitempty"`
	InstructionJitter *InstructionJitterEvidence `json:"instruction_jitter,omitempty"`
	AntiEmulation     *AntiEmulationEvidence     `json:"anti_emulation,omitempty"`
}

// CheckResult is one check's outcome. FailReason is empty on pass.
type CheckResult struct {
	Passed     bool   `json:"passed"`
	FailReason string `json:"fail_reason,omitempty"`
}

// FingerprintVerdict is the policy decision over all checks.
type FingerprintVerdict struct {
	Eligible bool                   `json:"eligible"`
	Checks   map[string]CheckResult `json:"checks"`
	Failures []string               `json:"failures,omitempty"`
}

// Check names.
const (
	CheckClockDrift        = "clock_drift"
	CheckCacheTiming       = "cache_timing"
	CheckSIMDIdentity      = "simd_identity"
	CheckThermalDrift      = "thermal_drift"
	CheckInstructionJitter = "instruction_jitter"
	CheckAntiEmulation     = "anti_emulation"
)

// Substrings that identify a virtualized environment in DMI data.
var vmIndicatorStrings = []string{
	"vmware", "virtualbox", "kvm", "qemu", "xen", "hyperv", "parallels",
}

// FingerprintPolicy adjudicates evidence. Critical checks must all pass
// and must all be present (missing evidence fails closed); of the
// remaining strong checks at least MinStrongPasses must pass.
type FingerprintPolicy struct {
	MinStrongPasses int
}

func DefaultFingerprintPolicy() FingerprintPolicy {
	return FingerprintPolicy{MinStrongPasses: 2}
}

var criticalChecks = []string{CheckClockDrift, CheckCacheTiming, CheckAntiEmulation}
var strongChecks = []string{CheckSIMDIdentity, CheckThermalDrift, CheckInstructionJitter}

// Evaluate runs every check independently and applies the policy.
// A check failure only denies eligibility; it never blacklists a miner.
func (p FingerprintPolicy) Evaluate(ev *FingerprintEvidence) FingerprintVerdict {
	checks := map[string]CheckResult{}
	if ev == nil {
		ev = &FingerprintEvidence{}
	}

	checks[CheckClockDrift] = evalClockDrift(ev.ClockDrift)
	checks[CheckCacheTiming] = evalCacheTiming(ev.CacheTiming)
	checks[CheckSIMDIdentity] = evalSIMD(ev.SIMDIdentity)
	checks[CheckThermalDrift] = evalThermal(ev.ThermalDrift)
	checks[CheckInstructionJitter] = evalJitter(ev.InstructionJitter)
	checks[CheckAntiEmulation] = evalAntiEmulation(ev.AntiEmulation)

	verdict := FingerprintVerdict{Eligible: true, Checks: checks}

	for _, name := range criticalChecks {
		if r := checks[name]; !r.Passed {
			verdict.Eligible = false
			verdict.Failures = append(verdict.Failures, name+":"+r.FailReason)
		}
	}

	strongPasses := 0
	for _, name := range strongChecks {
		if r := checks[name]; r.Passed {
			strongPasses++
		} else {
			verdict.Failures = append(verdict.Failures, name+":"+r.FailReason)
		}
	}
	if strongPasses < p.MinStrongPasses {
		verdict.Eligible = false
	}
	if verdict.Eligible {
		verdict.Failures = nil
	}
	return verdict
}

func evalClockDrift(ev *ClockDriftEvidence) CheckResult {
	if ev == nil {
		return CheckResult{FailReason: "evidence_missing"}
	}
	if ev.CV < 0.0001 {
		return CheckResult{FailReason: "synthetic_timing"}
	}
	if ev.DriftStdev == 0 {
		return CheckResult{FailReason: "no_drift"}
	}
	return CheckResult{Passed: true}
}

func evalCacheTiming(ev *CacheTimingEvidence) CheckResult {
	if ev == nil {
		return CheckResult{FailReason: "evidence_missing"}
	}
	if ev.L2L1Ratio < 1.01 && ev.L3L2Ratio < 1.01 {
		return CheckResult{FailReason: "no_cache_hierarchy"}
	}
	if ev.L1Ns == 0 || ev.L2Ns == 0 || ev.L3Ns == 0 {
		return CheckResult{FailReason: "zero_latency"}
	}
	return CheckResult{Passed: true}
}

func evalSIMD(ev *SIMDEvidence) CheckResult {
	if ev == nil {
		return CheckResult{FailReason: "evidence_missing"}
	}
	if ev.HasSSE || ev.HasAVX || ev.HasAltiVec || ev.HasNEON || ev.FlagsCount > 0 {
		return CheckResult{Passed: true}
	}
	return CheckResult{FailReason: "no_simd_detected"}
}

func evalThermal(ev *ThermalDriftEvidence) CheckResult {
	if ev == nil {
		return CheckResult{FailReason: "evidence_missing"}
	}
	if ev.ColdStdev == 0 && ev.HotStdev == 0 {
		return CheckResult{FailReason: "no_thermal_variance"}
	}
	return CheckResult{Passed: true}
}

func evalJitter(ev *InstructionJitterEvidence) CheckResult {
	if ev == nil {
		return CheckResult{FailReason: "evidence_missing"}
	}
	if ev.IntStdev == 0 && ev.FPStdev == 0 && ev.BranchStdev == 0 {
		return CheckResult{FailReason: "no_jitter"}
	}
	return CheckResult{Passed: true}
}

func evalAntiEmulation(ev *AntiEmulationEvidence) CheckResult {
	if ev == nil {
		return CheckResult{FailReason: "evidence_missing"}
	}
	if ev.HypervisorFlag {
		return CheckResult{FailReason: "vm_detected"}
	}
	if len(ev.VMIndicators) > 0 {
		return CheckResult{FailReason: "vm_detected"}
	}
	for _, s := range ev.DMIStrings {
		low := strings.ToLower(s)
		for _, vm := range vmIndicatorStrings {
			if strings.Contains(low, vm) {
				return CheckResult{FailReason: "vm_detected"}
			}
		}
	}
	return CheckResult{Passed: true}
}
