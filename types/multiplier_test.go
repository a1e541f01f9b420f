// SPDX-License-Identifier: MIT

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseMultiplierTable(t *testing.T) {
	assert.Equal(t, 3.0, BaseMultiplier("i386"))
	assert.Equal(t, 2.5, BaseMultiplier("PowerPC G4"))
	assert.Equal(t, 2.0, BaseMultiplier("powerpc_g5"))
	assert.Equal(t, 2.5, BaseMultiplier("Cyrix 6x86"))
}

func TestBaseMultiplierIsTotal(t *testing.T) {
	for _, family := range []string{"", "xeon-platinum", "apple-m3", "zz-unknown", "  "} {
		assert.Equal(t, MultiplierFloor, BaseMultiplier(family), "family %q", family)
	}
}

func TestEffectiveMultiplierVintageKeepsBase(t *testing.T) {
	assert.Equal(t, 2.5, EffectiveMultiplier("powerpc-g4", 1999))
	assert.Equal(t, 2.5, EffectiveMultiplier("powerpc-g4", 0)) // unknown year
	assert.Equal(t, 3.0, EffectiveMultiplier("i386", 1985))
}

func TestEffectiveMultiplierDecaysToFloor(t *testing.T) {
	// bonus fades completely after 20 years past the cutoff
	assert.Equal(t, MultiplierFloor, EffectiveMultiplier("powerpc-g4", 2030))
	// and never drops below the floor
	assert.GreaterOrEqual(t, EffectiveMultiplier("i486", 2100), MultiplierFloor)
}

func TestEffectiveMultiplierMonotoneInRecency(t *testing.T) {
	prev := EffectiveMultiplier("powerpc-g4", 2000)
	for year := 2001; year <= 2040; year++ {
		cur := EffectiveMultiplier("powerpc-g4", year)
		assert.LessOrEqual(t, cur, prev, "year %d", year)
		prev = cur
	}
}

func TestEffectiveMultiplierNeverExceedsCeiling(t *testing.T) {
	for family := range antiquityTable {
		for _, year := range []int{0, 1980, 2005, 2015, 2030} {
			m := EffectiveMultiplier(family, year)
			assert.LessOrEqual(t, m, MultiplierCeiling)
			assert.GreaterOrEqual(t, m, MultiplierFloor)
		}
	}
}

func TestWeightMilli(t *testing.T) {
	assert.Equal(t, int64(2500), WeightMilli(2.5))
	assert.Equal(t, int64(1000), WeightMilli(1.0))
	assert.Equal(t, int64(1000), WeightMilli(0.2))  // clamped up
	assert.Equal(t, int64(3000), WeightMilli(99.0)) // clamped down
}
