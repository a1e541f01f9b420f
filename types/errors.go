// SPDX-License-Identifier: MIT

package types

import (
	"errors"
	"fmt"
)

// Error categories. Every error crossing a package boundary carries one
// so callers (and the HTTP layer) can map it without string matching.
const (
	ErrCodeValidation     = 1000 // malformed or out-of-range input
	ErrCodeReplay         = 1001 // nonce or challenge reuse
	ErrCodeAuthentication = 1002 // signature or identity proof failure
	ErrCodeAuthorization  = 1003 // admin gate denial
	ErrCodeConflict       = 1004 // binding or settlement state conflict
	ErrCodeResource       = 1005 // insufficient balance, unknown entity
	ErrCodeInfrastructure = 1006 // storage or I/O failure
)

// Error is a coded error with an optional detail string.
type Error struct {
	Code    int
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// NewError builds a coded error. Extra detail strings are joined.
func NewError(code int, message string, details ...string) *Error {
	e := &Error{Code: code, Message: message}
	for i, d := range details {
		if i > 0 {
			e.Details += "; "
		}
		e.Details += d
	}
	return e
}

// CodeOf extracts the error category, defaulting to infrastructure for
// errors that did not originate in this package.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInfrastructure
}

// Common sentinels.
var (
	ErrInvalidAmount       = NewError(ErrCodeValidation, "amount must be positive")
	ErrInvalidAddress      = NewError(ErrCodeValidation, "invalid address")
	ErrBadSignature        = NewError(ErrCodeAuthentication, "signature verification failed")
	ErrAddressMismatch     = NewError(ErrCodeAuthentication, "public key does not derive sender address")
	ErrReplayDetected      = NewError(ErrCodeReplay, "nonce already used")
	ErrInsufficientBalance = NewError(ErrCodeResource, "insufficient balance")
	ErrUnknownAccount      = NewError(ErrCodeResource, "unknown account")
	ErrUnauthorized        = NewError(ErrCodeAuthorization, "unauthorized")
	ErrHardwareBound       = NewError(ErrCodeConflict, "hardware already bound to another miner")
	ErrEpochSettled        = NewError(ErrCodeConflict, "epoch already settled")
)
