// SPDX-License-Identifier: MIT

package types

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// AddressPrefix tags every RustChain account address.
	AddressPrefix = "RTC"

	// AddressHexLen is the number of hex chars of the pubkey hash kept
	// in the address body.
	AddressHexLen = 40
)

// Address is an RTC-prefixed account identifier derived from an Ed25519
// public key: "RTC" + first 40 hex chars of sha256(pubkey).
type Address string

func (a Address) String() string { return string(a) }

func (a Address) IsZero() bool { return a == "" }

// Valid reports whether the address is well formed. It does not prove a
// key exists for it.
func (a Address) Valid() bool {
	s := string(a)
	if len(s) != len(AddressPrefix)+AddressHexLen {
		return false
	}
	if !strings.HasPrefix(s, AddressPrefix) {
		return false
	}
	body := s[len(AddressPrefix):]
	if _, err := hex.DecodeString(body); err != nil {
		return false
	}
	// Hex must be lowercase so addresses compare bytewise.
	return body == strings.ToLower(body)
}

// AddressFromPubKey derives the account address for a public key.
func AddressFromPubKey(pub ed25519.PublicKey) Address {
	sum := sha256.Sum256(pub)
	return Address(AddressPrefix + hex.EncodeToString(sum[:])[:AddressHexLen])
}

// ParseAddress validates a raw string into an Address.
func ParseAddress(s string) (Address, error) {
	a := Address(strings.TrimSpace(s))
	if !a.Valid() {
		return "", ErrInvalidAddress
	}
	return a, nil
}
