// SPDX-License-Identifier: MIT

package types

import "errors"

// SignedTransfer is a client-authorized balance move. From/To are RTC
// addresses, Amount is micro-RTC, Nonce is unique per sender.
type SignedTransfer struct {
	From      Address `json:"from"`
	To        Address `json:"to"`
	Amount    int64   `json:"amount"`
	Memo      string  `json:"memo,omitempty"`
	Nonce     string  `json:"nonce"`
	PubKey    string  `json:"pubkey"`
	Signature string  `json:"signature"`
}

const MaxMemoLen = 256

// ValidateShape performs the pre-signature structural checks. Amount and
// shape problems are rejected before any signature work.
func (t *SignedTransfer) ValidateShape() error {
	if t == nil {
		return errors.New("nil transfer")
	}
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !t.From.Valid() || !t.To.Valid() {
		return ErrInvalidAddress
	}
	if t.Nonce == "" {
		return NewError(ErrCodeValidation, "missing transfer nonce")
	}
	if len(t.Memo) > MaxMemoLen {
		return NewError(ErrCodeValidation, "memo too long")
	}
	return nil
}

// InternalTransfer is an operator-initiated move applied through the
// admin gate. It carries no signature; authorization happens upstream.
type InternalTransfer struct {
	From   Address `json:"from"`
	To     Address `json:"to"`
	Amount int64   `json:"amount"`
	Memo   string  `json:"memo,omitempty"`
}
