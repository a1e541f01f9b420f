// SPDX-License-Identifier: MIT

package types

import "errors"

// Account is one ledger entry. Balance is micro-RTC and never negative.
type Account struct {
	Address   Address `json:"address"`
	Balance   int64   `json:"balance"`
	UpdatedAt int64   `json:"updated_at"`
}

func NewLedgerAccount(addr Address) *Account {
	return &Account{Address: addr}
}

func (a *Account) Credit(amount int64) error {
	if a == nil {
		return errors.New("nil account")
	}
	if amount < 0 {
		return errors.New("amount must be non-negative")
	}
	a.Balance += amount
	return nil
}

func (a *Account) Debit(amount int64) error {
	if a == nil {
		return errors.New("nil account")
	}
	if amount < 0 {
		return errors.New("amount must be non-negative")
	}
	if a.Balance < amount {
		return ErrInsufficientBalance
	}
	a.Balance -= amount
	return nil
}
