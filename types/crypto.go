// SPDX-License-Identifier: MIT

package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// Wallet represents a local Ed25519 keypair and its derived address.
type Wallet struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	Address    Address
}

// NewWallet generates a fresh keypair.
func NewWallet() (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		PrivateKey: priv,
		PublicKey:  pub,
		Address:    AddressFromPubKey(pub),
	}, nil
}

// PrivateKeyToHex exports the 64-byte private key as hex.
func PrivateKeyToHex(priv ed25519.PrivateKey) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", errors.New("invalid private key size")
	}
	return hex.EncodeToString(priv), nil
}

// WalletFromHex rebuilds a wallet from a hex-encoded private key.
// 32-byte seeds and full 64-byte keys are both accepted.
func WalletFromHex(hexKey string) (*Wallet, error) {
	if hexKey == "" {
		return nil, errors.New("empty key string")
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, errors.New("invalid private key size")
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Wallet{
		PrivateKey: priv,
		PublicKey:  pub,
		Address:    AddressFromPubKey(pub),
	}, nil
}

// SignTransfer signs the canonical payload and fills the transfer's
// signature and public key fields.
func SignTransfer(tr *SignedTransfer, priv ed25519.PrivateKey) error {
	if tr == nil {
		return errors.New("nil transfer")
	}
	if len(priv) != ed25519.PrivateKeySize {
		return errors.New("invalid private key size")
	}
	payload, err := tr.CanonicalPayload()
	if err != nil {
		return err
	}
	pub := priv.Public().(ed25519.PublicKey)
	tr.PubKey = hex.EncodeToString(pub)
	tr.Signature = hex.EncodeToString(ed25519.Sign(priv, payload))
	return nil
}

// VerifyTransferSignature checks the Ed25519 signature over the
// canonical payload and that the public key derives the sender address.
func VerifyTransferSignature(tr *SignedTransfer) error {
	if tr == nil {
		return errors.New("nil transfer")
	}
	pubRaw, err := hex.DecodeString(tr.PubKey)
	if err != nil || len(pubRaw) != ed25519.PublicKeySize {
		return ErrBadSignature
	}
	sig, err := hex.DecodeString(tr.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	payload, err := tr.CanonicalPayload()
	if err != nil {
		return err
	}
	pub := ed25519.PublicKey(pubRaw)
	if !ed25519.Verify(pub, payload, sig) {
		return ErrBadSignature
	}
	if AddressFromPubKey(pub) != tr.From {
		return ErrAddressMismatch
	}
	return nil
}
