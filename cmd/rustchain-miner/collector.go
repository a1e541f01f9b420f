// SPDX-License-Identifier: MIT

package main

import (
	"crypto/sha256"
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"

	"rustchain/types"
)

// hostIdentity is what the agent learns about the machine it runs on.
type hostIdentity struct {
	Serial string
	Arch   string
	Family string
	Model  string
	Cores  int
}

func collectIdentity() (hostIdentity, error) {
	id := hostIdentity{Arch: runtime.GOARCH}

	hi, err := host.Info()
	if err == nil && hi.HostID != "" {
		id.Serial = hi.HostID
	}

	infos, err := cpu.Info()
	if err == nil && len(infos) > 0 {
		id.Model = infos[0].ModelName
		id.Family = guessFamily(infos[0].ModelName)
	}

	cores, err := cpu.Counts(true)
	if err == nil {
		id.Cores = cores
	}

	if id.Serial == "" {
		return id, fmt.Errorf("no stable host identity available")
	}
	return id, nil
}

func guessFamily(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "g5"):
		return "powerpc-g5"
	case strings.Contains(m, "g4") || strings.Contains(m, "powerpc"):
		return "powerpc-g4"
	case strings.Contains(m, "486"):
		return "i486"
	case strings.Contains(m, "386"):
		return "i386"
	default:
		return m
	}
}

// collectEvidence runs the local timing probes. Real silicon shows
// variance everywhere; a flat profile is what the node is looking for.
func collectEvidence() *types.FingerprintEvidence {
	return &types.FingerprintEvidence{
		ClockDrift:        measureClockDrift(),
		CacheTiming:       measureCacheTiming(),
		SIMDIdentity:      collectSIMD(),
		ThermalDrift:      measureThermalDrift(),
		InstructionJitter: measureJitter(),
		AntiEmulation:     collectAntiEmulation(),
	}
}

func measureClockDrift() *types.ClockDriftEvidence {
	const samples = 100
	data := []byte("drift")
	intervals := make([]float64, 0, samples)
	for i := 0; i < samples; i++ {
		start := time.Now()
		for j := 0; j < 2000; j++ {
			sha256.Sum256(data)
		}
		intervals = append(intervals, float64(time.Since(start).Nanoseconds()))
	}
	mean, stdev := meanStdev(intervals)

	drifts := make([]float64, 0, samples-1)
	for i := 1; i < len(intervals); i++ {
		drifts = append(drifts, intervals[i]-intervals[i-1])
	}
	_, driftStdev := meanStdev(drifts)

	cv := 0.0
	if mean > 0 {
		cv = stdev / mean
	}
	return &types.ClockDriftEvidence{
		MeanNs:     int64(mean),
		StdevNs:    int64(stdev),
		CV:         cv,
		DriftStdev: int64(driftStdev),
	}
}

func measureCacheTiming() *types.CacheTimingEvidence {
	probe := func(size int) float64 {
		buf := make([]byte, size)
		for i := 0; i < size; i += 64 {
			buf[i] = byte(i)
		}
		const accesses = 100000
		var sink byte
		start := time.Now()
		for i := 0; i < accesses; i++ {
			sink ^= buf[(i*64)%size]
		}
		_ = sink
		return float64(time.Since(start).Nanoseconds()) / accesses
	}

	l1 := probe(8 * 1024)
	l2 := probe(128 * 1024)
	l3 := probe(4 * 1024 * 1024)

	ev := &types.CacheTimingEvidence{L1Ns: l1, L2Ns: l2, L3Ns: l3}
	if l1 > 0 {
		ev.L2L1Ratio = l2 / l1
	}
	if l2 > 0 {
		ev.L3L2Ratio = l3 / l2
	}
	return ev
}

func collectSIMD() *types.SIMDEvidence {
	ev := &types.SIMDEvidence{Arch: runtime.GOARCH}
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return ev
	}
	flags := infos[0].Flags
	ev.FlagsCount = len(flags)
	for _, f := range flags {
		lf := strings.ToLower(f)
		switch {
		case strings.Contains(lf, "sse"):
			ev.HasSSE = true
		case strings.Contains(lf, "avx"):
			ev.HasAVX = true
		case strings.Contains(lf, "altivec"):
			ev.HasAltiVec = true
		case strings.Contains(lf, "neon") || strings.Contains(lf, "asimd"):
			ev.HasNEON = true
		}
	}
	if strings.Contains(runtime.GOARCH, "ppc") {
		ev.HasAltiVec = true
	}
	if strings.Contains(runtime.GOARCH, "arm") {
		ev.HasNEON = true
	}
	return ev
}

func measureThermalDrift() *types.ThermalDriftEvidence {
	burst := func(tag string, n int) []float64 {
		out := make([]float64, 0, n)
		data := []byte(tag)
		for i := 0; i < n; i++ {
			start := time.Now()
			for j := 0; j < 5000; j++ {
				sha256.Sum256(data)
			}
			out = append(out, float64(time.Since(start).Nanoseconds()))
		}
		return out
	}

	cold := burst("cold", 30)

	// warm the core before the hot pass
	warm := []byte("warmup")
	for i := 0; i < 200000; i++ {
		sha256.Sum256(warm)
	}

	hot := burst("hot", 30)

	coldAvg, coldStdev := meanStdev(cold)
	hotAvg, hotStdev := meanStdev(hot)

	ev := &types.ThermalDriftEvidence{
		ColdAvgNs: int64(coldAvg),
		HotAvgNs:  int64(hotAvg),
		ColdStdev: int64(coldStdev),
		HotStdev:  int64(hotStdev),
	}
	if coldAvg > 0 {
		ev.DriftRatio = hotAvg / coldAvg
	}
	return ev
}

func measureJitter() *types.InstructionJitterEvidence {
	run := func(f func()) []float64 {
		const samples = 50
		out := make([]float64, 0, samples)
		for i := 0; i < samples; i++ {
			start := time.Now()
			f()
			out = append(out, float64(time.Since(start).Nanoseconds()))
		}
		return out
	}

	intTimes := run(func() {
		x := 1
		for i := 0; i < 10000; i++ {
			x = (x*7 + 13) % 65537
		}
		_ = x
	})
	fpTimes := run(func() {
		x := 1.5
		for i := 0; i < 10000; i++ {
			x = math.Mod(x*1.414+0.5, 1000.0)
		}
		_ = x
	})
	branchTimes := run(func() {
		x := 0
		for i := 0; i < 10000; i++ {
			if i%2 == 0 {
				x++
			} else {
				x--
			}
		}
		_ = x
	})

	_, intStdev := meanStdev(intTimes)
	_, fpStdev := meanStdev(fpTimes)
	_, branchStdev := meanStdev(branchTimes)

	return &types.InstructionJitterEvidence{
		IntStdev:    int64(intStdev),
		FPStdev:     int64(fpStdev),
		BranchStdev: int64(branchStdev),
	}
}

func collectAntiEmulation() *types.AntiEmulationEvidence {
	ev := &types.AntiEmulationEvidence{}

	for _, path := range []string{
		"/sys/class/dmi/id/product_name",
		"/sys/class/dmi/id/sys_vendor",
	} {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		ev.DMIStrings = append(ev.DMIStrings, strings.TrimSpace(string(raw)))
	}

	infos, err := cpu.Info()
	if err == nil && len(infos) > 0 {
		for _, f := range infos[0].Flags {
			if strings.EqualFold(f, "hypervisor") {
				ev.HypervisorFlag = true
			}
		}
	}

	hi, err := host.Info()
	if err == nil && hi.VirtualizationRole == "guest" && hi.VirtualizationSystem != "" {
		ev.VMIndicators = append(ev.VMIndicators, "host:"+hi.VirtualizationSystem)
	}
	return ev
}

func meanStdev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}
