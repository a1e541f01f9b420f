// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rustchain/store"
)

// AuditEntry is one append-only ledger log record. Every applied
// balance delta produces one.
type AuditEntry struct {
	TS     int64   `json:"ts"`
	Epoch  uint64  `json:"epoch"`
	Acct   Address `json:"account"`
	Delta  int64   `json:"delta"`
	Reason string  `json:"reason"`
}

// RejectEntry records a refused mutation for later audit.
type RejectEntry struct {
	TS     int64  `json:"ts"`
	Kind   string `json:"kind"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// Ledger is the authoritative balance book. All mutations run inside a
// single store transaction: a transfer debits, credits and records the
// sender nonce atomically, or does none of it.
type Ledger struct {
	db  store.Store
	log *zap.Logger
}

func NewLedger(db store.Store, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{db: db, log: log.Named("ledger")}
}

// Balance returns the current balance; unknown accounts read as zero.
func (l *Ledger) Balance(addr Address) (int64, error) {
	var bal int64
	err := l.db.View(func(tx store.Tx) error {
		acct, err := readAccount(tx, addr)
		if err != nil {
			return err
		}
		if acct != nil {
			bal = acct.Balance
		}
		return nil
	})
	return bal, err
}

// ApplySignedTransfer validates and applies a client-signed transfer.
// Checks run in a fixed order so a given bad input always maps to the
// same error: amount shape, canonical signature, sender key/address
// match, nonce freshness, then funds.
func (l *Ledger) ApplySignedTransfer(tr *SignedTransfer, epoch uint64) error {
	if tr == nil {
		return NewError(ErrCodeValidation, "missing transfer body")
	}
	if err := tr.ValidateShape(); err != nil {
		l.recordReject("transfer", string(tr.From), err)
		return err
	}
	if err := VerifyTransferSignature(tr); err != nil {
		l.recordReject("transfer", string(tr.From), err)
		return err
	}

	nonceKey := string(tr.From) + "|" + tr.Nonce
	now := time.Now().Unix()

	err := l.db.Update(func(tx store.Tx) error {
		if tx.Get(store.BucketSpentNonces, nonceKey) != nil {
			return ErrReplayDetected
		}
		if err := l.move(tx, tr.From, tr.To, tr.Amount, epoch, "transfer:"+tr.Memo); err != nil {
			return err
		}
		return tx.Put(store.BucketSpentNonces, nonceKey, []byte(fmt.Sprintf("%d", now)))
	})
	if err != nil {
		l.recordReject("transfer", string(tr.From), err)
		return err
	}

	l.log.Info("transfer applied",
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.Int64("amount", tr.Amount))
	return nil
}

// ApplyInternalTransfer moves funds without a signature. Authorization
// is the caller's problem (the admin gate sits in front of this).
func (l *Ledger) ApplyInternalTransfer(tr *InternalTransfer, epoch uint64) error {
	if tr.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !tr.From.Valid() || !tr.To.Valid() {
		return ErrInvalidAddress
	}
	err := l.db.Update(func(tx store.Tx) error {
		return l.move(tx, tr.From, tr.To, tr.Amount, epoch, "internal:"+tr.Memo)
	})
	if err != nil {
		l.recordReject("internal_transfer", string(tr.From), err)
		return err
	}
	l.log.Info("internal transfer applied",
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.Int64("amount", tr.Amount))
	return nil
}

// CreditInTx mints into an account inside an existing transaction.
// Settlement uses this so all payouts of an epoch commit together.
func (l *Ledger) CreditInTx(tx store.Tx, addr Address, amount int64, epoch uint64, reason string) error {
	acct, err := readAccount(tx, addr)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = NewLedgerAccount(addr)
	}
	if err := acct.Credit(amount); err != nil {
		return err
	}
	acct.UpdatedAt = time.Now().Unix()
	if err := writeAccount(tx, acct); err != nil {
		return err
	}
	return appendAudit(tx, AuditEntry{
		TS: acct.UpdatedAt, Epoch: epoch, Acct: addr, Delta: amount, Reason: reason,
	})
}

// Credit mints into an account as its own transaction (genesis alloc).
func (l *Ledger) Credit(addr Address, amount int64, epoch uint64, reason string) error {
	return l.db.Update(func(tx store.Tx) error {
		return l.CreditInTx(tx, addr, amount, epoch, reason)
	})
}

// AllBalances exports every account, keyed by address.
func (l *Ledger) AllBalances() (map[Address]int64, error) {
	out := make(map[Address]int64)
	err := l.db.View(func(tx store.Tx) error {
		return tx.ForEach(store.BucketAccounts, func(key string, val []byte) error {
			var acct Account
			if err := json.Unmarshal(val, &acct); err != nil {
				return err
			}
			out[acct.Address] = acct.Balance
			return nil
		})
	})
	return out, err
}

// AuditTrail returns up to limit most recent audit entries.
func (l *Ledger) AuditTrail(limit int) ([]AuditEntry, error) {
	var all []AuditEntry
	err := l.db.View(func(tx store.Tx) error {
		return tx.ForEach(store.BucketAudit, func(key string, val []byte) error {
			var e AuditEntry
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			all = append(all, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// move debits from and credits to inside tx. Self-transfers are allowed
// and net to zero; the non-negative invariant holds throughout.
func (l *Ledger) move(tx store.Tx, from, to Address, amount int64, epoch uint64, reason string) error {
	src, err := readAccount(tx, from)
	if err != nil {
		return err
	}
	if src == nil {
		return ErrInsufficientBalance
	}
	if err := src.Debit(amount); err != nil {
		return err
	}
	now := time.Now().Unix()
	src.UpdatedAt = now

	if from == to {
		// Net zero: the debit proved the funds exist and is credited
		// straight back. Only the timestamp moves.
		if err := src.Credit(amount); err != nil {
			return err
		}
		return writeAccount(tx, src)
	}

	dst, err := readAccount(tx, to)
	if err != nil {
		return err
	}
	if dst == nil {
		dst = NewLedgerAccount(to)
	}
	if err := dst.Credit(amount); err != nil {
		return err
	}
	dst.UpdatedAt = now

	if err := writeAccount(tx, src); err != nil {
		return err
	}
	if err := writeAccount(tx, dst); err != nil {
		return err
	}
	if err := appendAudit(tx, AuditEntry{TS: now, Epoch: epoch, Acct: from, Delta: -amount, Reason: reason}); err != nil {
		return err
	}
	return appendAudit(tx, AuditEntry{TS: now, Epoch: epoch, Acct: to, Delta: amount, Reason: reason})
}

func (l *Ledger) recordReject(kind, actor string, cause error) {
	entry := RejectEntry{
		TS:     time.Now().Unix(),
		Kind:   kind,
		Actor:  actor,
		Reason: cause.Error(),
	}
	err := l.db.Update(func(tx store.Tx) error {
		return appendSeq(tx, store.BucketRejects, entry)
	})
	if err != nil {
		l.log.Warn("reject audit write failed", zap.Error(err))
	}
	l.log.Warn("mutation rejected",
		zap.String("kind", kind),
		zap.String("actor", actor),
		zap.String("reason", cause.Error()))
}

// Rejects returns up to limit most recent reject entries.
func (l *Ledger) Rejects(limit int) ([]RejectEntry, error) {
	var all []RejectEntry
	err := l.db.View(func(tx store.Tx) error {
		return tx.ForEach(store.BucketRejects, func(key string, val []byte) error {
			var e RejectEntry
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			all = append(all, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// RecordReject exposes reject auditing to the other engines.
func (l *Ledger) RecordReject(kind, actor string, cause error) {
	l.recordReject(kind, actor, cause)
}

// ---- persistence helpers ----

func accountKey(addr Address) string { return string(addr) }

func readAccount(tx store.Tx, addr Address) (*Account, error) {
	raw := tx.Get(store.BucketAccounts, accountKey(addr))
	if raw == nil {
		return nil, nil
	}
	var acct Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func writeAccount(tx store.Tx, acct *Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	return tx.Put(store.BucketAccounts, accountKey(acct.Address), raw)
}

func appendAudit(tx store.Tx, e AuditEntry) error {
	return appendSeq(tx, store.BucketAudit, e)
}

// appendSeq writes a record under a monotonically increasing zero-padded
// key so ForEach yields insertion order.
func appendSeq(tx store.Tx, bucket string, v any) error {
	seqKey := "seq:" + bucket
	var seq uint64
	if raw := tx.Get(store.BucketMeta, seqKey); raw != nil {
		fmt.Sscanf(string(raw), "%d", &seq)
	}
	seq++
	if err := tx.Put(store.BucketMeta, seqKey, []byte(fmt.Sprintf("%d", seq))); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Put(bucket, fmt.Sprintf("%020d", seq), raw)
}
