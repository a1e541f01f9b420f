// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"errors"
)

// transferPayload is the byte-exact signing message. Fields are declared
// in alphabetical key order; encoding/json preserves declaration order,
// so Marshal emits the sorted compact form clients sign:
//
//	{"amount":N,"from":"RTC..","memo":"..","nonce":"..","to":"RTC.."}
//
// Memo is always present in the payload, empty string included.
type transferPayload struct {
	Amount int64   `json:"amount"`
	From   Address `json:"from"`
	Memo   string  `json:"memo"`
	Nonce  string  `json:"nonce"`
	To     Address `json:"to"`
}

// CanonicalPayload returns the exact bytes the sender signed.
func (t *SignedTransfer) CanonicalPayload() ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil transfer")
	}
	return json.Marshal(transferPayload{
		Amount: t.Amount,
		From:   t.From,
		Memo:   t.Memo,
		Nonce:  t.Nonce,
		To:     t.To,
	})
}

// EncodeTransfer serializes a transfer for transport or storage.
func EncodeTransfer(t *SignedTransfer) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil transfer")
	}
	return json.Marshal(t)
}

// DecodeTransfer deserializes a transfer from bytes.
func DecodeTransfer(data []byte) (*SignedTransfer, error) {
	if len(data) == 0 {
		return nil, errors.New("empty transfer data")
	}
	var t SignedTransfer
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
