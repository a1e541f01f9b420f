// SPDX-License-Identifier: MIT

package types

import (
	"errors"
	"sync"
	"time"
)

// Clock converts wall-clock time into the epoch/slot schedule. The math
// is pure given the three parameters; the only state is the monotonic
// clamp guarding against wall-clock regression.
type Clock struct {
	genesis       int64 // unix seconds
	slotDuration  int64 // seconds
	slotsPerEpoch uint64

	mu          sync.Mutex
	lastAbsSlot uint64
}

// NewClock validates the schedule parameters. A zero slot duration or
// zero epoch length would divide by zero downstream, so both are
// construction errors; callers treat them as fatal.
func NewClock(genesisUnix, slotDurationSec int64, slotsPerEpoch uint64) (*Clock, error) {
	if slotDurationSec <= 0 {
		return nil, errors.New("slot duration must be positive")
	}
	if slotsPerEpoch == 0 {
		return nil, errors.New("slots per epoch must be positive")
	}
	if genesisUnix < 0 {
		return nil, errors.New("genesis timestamp must be non-negative")
	}
	return &Clock{
		genesis:       genesisUnix,
		slotDuration:  slotDurationSec,
		slotsPerEpoch: slotsPerEpoch,
	}, nil
}

// At computes the schedule point for an arbitrary instant without
// touching the monotonic state. Instants before genesis map to the
// start of epoch 0, slot 0.
func (c *Clock) At(t time.Time) SchedulePoint {
	elapsed := t.Unix() - c.genesis
	if elapsed < 0 {
		elapsed = 0
	}
	absSlot := uint64(elapsed / c.slotDuration)
	inSlot := elapsed % c.slotDuration
	return SchedulePoint{
		Epoch:            absSlot / c.slotsPerEpoch,
		Slot:             absSlot % c.slotsPerEpoch,
		SlotProgress:     float64(inSlot) / float64(c.slotDuration),
		SecondsRemaining: c.slotDuration - inSlot,
	}
}

// Now reads the current schedule point with the monotonic clamp: if the
// wall clock stepped backward across a slot boundary, the reading is
// pinned to the last observed slot and flagged.
func (c *Clock) Now() SchedulePoint {
	return c.nowAt(time.Now())
}

func (c *Clock) nowAt(t time.Time) SchedulePoint {
	p := c.At(t)
	abs := p.Epoch*c.slotsPerEpoch + p.Slot

	c.mu.Lock()
	defer c.mu.Unlock()

	if abs < c.lastAbsSlot {
		clamped := SchedulePoint{
			Epoch:            c.lastAbsSlot / c.slotsPerEpoch,
			Slot:             c.lastAbsSlot % c.slotsPerEpoch,
			SlotProgress:     1,
			SecondsRemaining: 0,
			Anomaly:          true,
		}
		return clamped
	}
	c.lastAbsSlot = abs
	return p
}

// EpochStart returns the unix time at which an epoch begins.
func (c *Clock) EpochStart(epoch uint64) int64 {
	return c.genesis + int64(epoch)*int64(c.slotsPerEpoch)*c.slotDuration
}

// SlotDuration exposes the configured slot length.
func (c *Clock) SlotDuration() time.Duration {
	return time.Duration(c.slotDuration) * time.Second
}

// SlotsPerEpoch exposes the configured epoch length.
func (c *Clock) SlotsPerEpoch() uint64 { return c.slotsPerEpoch }
