// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rustchain/store"
)

// Epoch settlement states.
const (
	EpochOpen     = "open"
	EpochSettling = "settling"
	EpochSettled  = "settled"
)

// Enrollment is one miner's stake in an epoch's pot. The weight is
// snapshotted at enrollment time and does not move afterwards.
type Enrollment struct {
	Miner       MinerID `json:"miner_id"`
	Address     Address `json:"address"`
	Epoch       uint64  `json:"epoch"`
	Family      string  `json:"family"`
	Multiplier  float64 `json:"multiplier"`
	WeightMilli int64   `json:"weight_milli"`
	EnrolledAt  int64   `json:"enrolled_at"`
}

// Payout is one settled share.
type Payout struct {
	Miner   MinerID `json:"miner_id"`
	Address Address `json:"address"`
	Amount  int64   `json:"amount"`
}

// EpochState is the persisted settlement record for one epoch.
type EpochState struct {
	Epoch     uint64   `json:"epoch"`
	Status    string   `json:"status"`
	Pot       int64    `json:"pot"`
	CarryIn   int64    `json:"carry_in"`
	Remainder int64    `json:"remainder"`
	Payouts   []Payout `json:"payouts"`
	SettledAt int64    `json:"settled_at,omitempty"`
}

// SettlementEngine distributes the per-epoch pot to enrolled miners,
// exactly once per epoch. Shares truncate to integer micro-RTC; the
// leftover carries into the next epoch's pot so issuance stays exact
// over time.
type SettlementEngine struct {
	db       store.Store
	ledger   *Ledger
	clock    *Clock
	attest   *AttestationService
	log      *zap.Logger
	potMicro int64
	enrolTTL time.Duration

	mu       sync.Mutex
	settling map[uint64]bool
}

func NewSettlementEngine(
	db store.Store,
	ledger *Ledger,
	clock *Clock,
	attest *AttestationService,
	log *zap.Logger,
	potMicro int64,
	enrolTTL time.Duration,
) *SettlementEngine {
	if log == nil {
		log = zap.NewNop()
	}
	if potMicro <= 0 {
		potMicro = DefaultEpochPotMicro
	}
	if enrolTTL <= 0 {
		enrolTTL = DefaultEnrollmentTTL * time.Second
	}
	return &SettlementEngine{
		db:       db,
		ledger:   ledger,
		clock:    clock,
		attest:   attest,
		log:      log.Named("settle"),
		potMicro: potMicro,
		enrolTTL: enrolTTL,
		settling: make(map[uint64]bool),
	}
}

// Enroll registers a miner for the current epoch. It requires an
// accepted attestation inside the enrollment TTL; the weight is the
// effective multiplier for the attested family at this moment.
func (e *SettlementEngine) Enroll(miner MinerID, addr Address, epoch uint64) (*Enrollment, error) {
	if miner.IsZero() {
		return nil, NewError(ErrCodeValidation, "missing miner id")
	}
	if !addr.Valid() {
		return nil, ErrInvalidAddress
	}

	recent, err := e.attest.RecentFor(miner)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	if recent == nil || now-recent.TS > int64(e.enrolTTL.Seconds()) {
		return nil, NewError(ErrCodeValidation, "no recent attestation", "attest before enrolling")
	}

	mult := EffectiveMultiplier(recent.Family, recent.ReleaseYear)
	enr := &Enrollment{
		Miner:       miner,
		Address:     addr,
		Epoch:       epoch,
		Family:      recent.Family,
		Multiplier:  mult,
		WeightMilli: WeightMilli(mult),
		EnrolledAt:  now,
	}
	raw, err := json.Marshal(enr)
	if err != nil {
		return nil, err
	}
	err = e.db.Update(func(tx store.Tx) error {
		state, err := readEpochState(tx, epoch)
		if err != nil {
			return err
		}
		if state != nil && state.Status == EpochSettled {
			return ErrEpochSettled
		}
		return tx.Put(store.BucketEnrollments, enrollKey(epoch, miner), raw)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("miner enrolled",
		zap.String("miner", string(miner)),
		zap.Uint64("epoch", epoch),
		zap.Float64("multiplier", mult))
	return enr, nil
}

// Enrollments lists an epoch's enrolled miners.
func (e *SettlementEngine) Enrollments(epoch uint64) ([]Enrollment, error) {
	var out []Enrollment
	prefix := fmt.Sprintf("%020d|", epoch)
	err := e.db.View(func(tx store.Tx) error {
		return tx.ForEach(store.BucketEnrollments, func(key string, val []byte) error {
			if len(key) < len(prefix) || key[:len(prefix)] != prefix {
				return nil
			}
			var enr Enrollment
			if err := json.Unmarshal(val, &enr); err != nil {
				return err
			}
			out = append(out, enr)
			return nil
		})
	})
	return out, err
}

// Settle finalizes an epoch. Re-settling a settled epoch returns the
// recorded result unchanged; concurrent triggers serialize on the
// engine lock and the store's single writer, so the transition from
// open to settled happens exactly once.
func (e *SettlementEngine) Settle(epoch uint64) (*EpochState, error) {
	current := e.clock.Now()
	if epoch >= current.Epoch {
		return nil, NewError(ErrCodeValidation, "epoch still open", "only completed epochs settle")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.settling[epoch] = true
	defer delete(e.settling, epoch)

	var result *EpochState
	fresh := false
	err := e.db.Update(func(tx store.Tx) error {
		fresh = false
		existing, err := readEpochState(tx, epoch)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == EpochSettled {
			result = existing
			return nil
		}

		carry := readCarry(tx)
		pot := e.potMicro + carry
		state := &EpochState{
			Epoch:   epoch,
			Status:  EpochSettled,
			Pot:     pot,
			CarryIn: carry,
		}

		enrollments, err := enrollmentsInTx(tx, epoch)
		if err != nil {
			return err
		}

		var totalWeight int64
		for _, enr := range enrollments {
			totalWeight += enr.WeightMilli
		}

		if totalWeight == 0 {
			// Nobody enrolled: the whole pot rolls forward.
			state.Remainder = pot
		} else {
			distributed := int64(0)
			for _, enr := range enrollments {
				share := pot * enr.WeightMilli / totalWeight
				if share == 0 {
					continue
				}
				if err := e.ledger.CreditInTx(tx, enr.Address, share, epoch, "epoch_reward"); err != nil {
					return err
				}
				state.Payouts = append(state.Payouts, Payout{
					Miner:   enr.Miner,
					Address: enr.Address,
					Amount:  share,
				})
				distributed += share
			}
			state.Remainder = pot - distributed
		}

		state.SettledAt = time.Now().Unix()
		if err := writeCarry(tx, state.Remainder); err != nil {
			return err
		}
		if err := writeEpochState(tx, state); err != nil {
			return err
		}
		result = state
		fresh = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fresh {
		e.log.Info("epoch settled",
			zap.Uint64("epoch", epoch),
			zap.Int64("pot", result.Pot),
			zap.Int("payouts", len(result.Payouts)),
			zap.Int64("remainder", result.Remainder))
	}
	return result, nil
}

// State reports an epoch's settlement record. Unsettled epochs read as
// open, or settling while a trigger is in flight.
func (e *SettlementEngine) State(epoch uint64) (*EpochState, error) {
	var state *EpochState
	err := e.db.View(func(tx store.Tx) error {
		var err error
		state, err = readEpochState(tx, epoch)
		return err
	})
	if err != nil {
		return nil, err
	}
	if state == nil {
		status := EpochOpen
		e.mu.Lock()
		if e.settling[epoch] {
			status = EpochSettling
		}
		e.mu.Unlock()
		state = &EpochState{Epoch: epoch, Status: status}
	}
	return state, nil
}

// Pot exposes the configured per-epoch issuance.
func (e *SettlementEngine) Pot() int64 { return e.potMicro }

// ---- persistence helpers ----

func enrollKey(epoch uint64, miner MinerID) string {
	return fmt.Sprintf("%020d|%s", epoch, miner)
}

func epochKey(epoch uint64) string { return fmt.Sprintf("%020d", epoch) }

func readEpochState(tx store.Tx, epoch uint64) (*EpochState, error) {
	raw := tx.Get(store.BucketEpochs, epochKey(epoch))
	if raw == nil {
		return nil, nil
	}
	var s EpochState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func writeEpochState(tx store.Tx, s *EpochState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return tx.Put(store.BucketEpochs, epochKey(s.Epoch), raw)
}

func enrollmentsInTx(tx store.Tx, epoch uint64) ([]Enrollment, error) {
	var out []Enrollment
	prefix := fmt.Sprintf("%020d|", epoch)
	err := tx.ForEach(store.BucketEnrollments, func(key string, val []byte) error {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			return nil
		}
		var enr Enrollment
		if err := json.Unmarshal(val, &enr); err != nil {
			return err
		}
		out = append(out, enr)
		return nil
	})
	return out, err
}

func readCarry(tx store.Tx) int64 {
	raw := tx.Get(store.BucketMeta, "settle:carry")
	if raw == nil {
		return 0
	}
	var carry int64
	fmt.Sscanf(string(raw), "%d", &carry)
	return carry
}

func writeCarry(tx store.Tx, carry int64) error {
	return tx.Put(store.BucketMeta, "settle:carry", []byte(fmt.Sprintf("%d", carry)))
}
