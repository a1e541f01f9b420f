// SPDX-License-Identifier: MIT

package types

import "strings"

// Antiquity multipliers reward keeping vintage silicon alive. The table
// maps a normalized architecture family to its base multiplier; any
// family not listed earns the modern default of 1.0.
const (
	MultiplierFloor   = 1.0
	MultiplierCeiling = 3.0

	// Bonuses fade for releases after this year, 5% of the bonus per
	// year, until only the floor remains.
	vintageCutoffYear = 2005
	bonusFadePerYear  = 0.05
)

var antiquityTable = map[string]float64{
	"i386":       3.0,
	"m68k":       3.0,
	"i486":       2.8,
	"power2":     2.6,
	"cyrix6x86":  2.5,
	"powerpc-g4": 2.5,
	"power3":     2.4,
	"power4":     2.2,
	"power5":     2.1,
	"powerpc-g5": 2.0,
	"viac3":      1.9,
	"power6":     1.9,
	"viac7":      1.8,
	"power7":     1.8,
	"vianano":    1.7,
	"sparc":      1.6,
	"alpha":      1.6,
	"pa-risc":    1.5,
	"mips-r4000": 1.4,
}

// NormalizeFamily canonicalizes a reported architecture family string.
func NormalizeFamily(family string) string {
	f := strings.ToLower(strings.TrimSpace(family))
	f = strings.ReplaceAll(f, " ", "")
	f = strings.ReplaceAll(f, "_", "-")
	switch {
	case strings.Contains(f, "g4"):
		return "powerpc-g4"
	case strings.Contains(f, "g5"):
		return "powerpc-g5"
	case strings.Contains(f, "6x86"):
		return "cyrix6x86"
	}
	return f
}

// BaseMultiplier is total over all inputs: unknown families get 1.0.
func BaseMultiplier(family string) float64 {
	if m, ok := antiquityTable[NormalizeFamily(family)]; ok {
		return m
	}
	return MultiplierFloor
}

// EffectiveMultiplier applies age decay to the base. The bonus above the
// floor fades linearly for release years past the vintage cutoff, so a
// newer release year never earns more than an older one. A zero release
// year means unknown and keeps the base.
func EffectiveMultiplier(family string, releaseYear int) float64 {
	base := BaseMultiplier(family)
	if releaseYear <= 0 || releaseYear <= vintageCutoffYear {
		return clampMultiplier(base)
	}
	bonus := base - MultiplierFloor
	fade := 1.0 - bonusFadePerYear*float64(releaseYear-vintageCutoffYear)
	if fade < 0 {
		fade = 0
	}
	return clampMultiplier(MultiplierFloor + bonus*fade)
}

func clampMultiplier(m float64) float64 {
	if m < MultiplierFloor {
		return MultiplierFloor
	}
	if m > MultiplierCeiling {
		return MultiplierCeiling
	}
	return m
}

// WeightMilli converts a multiplier to the integer milli-weight used by
// settlement, keeping pot division in pure int64 arithmetic.
func WeightMilli(multiplier float64) int64 {
	w := int64(clampMultiplier(multiplier)*1000 + 0.5)
	return w
}
