// Package failure defines the closed set of symbolic error codes returned by
// chipledger operations.
package failure

import (
	"errors"
	"fmt"
)

// Code is a symbolic, caller-facing error code.
type Code string

const (
	CodeInvalidRoomKey     Code = "invalid-room-key"
	CodeInvalidRoomName    Code = "invalid-room-name"
	CodeInvalidAmount      Code = "invalid-amount"
	CodeInvalidRequest     Code = "invalid-request"
	CodeInvalidCredentials Code = "invalid-credentials"
	CodeNotFoundRoom       Code = "not-found-room"
	CodeNotFoundBalance    Code = "not-found-balance"
	CodeDuplicateRoomKey   Code = "duplicate-room-key"
	CodeBalanceExists      Code = "balance-exists"
	CodeBalanceConflict    Code = "balance-conflict"
	CodeRateLimited        Code = "rate-limited"
	CodeInternal           Code = "internal-server-error"
)

// Error carries a Code together with the operation that produced it.
type Error struct {
	code      Code
	operation string
	err       error
}

// New returns an Error for the operation with an optional cause.
func New(code Code, operation string, cause error) *Error {
	return &Error{code: code, operation: operation, err: cause}
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.operation, e.code)
	}
	return fmt.Sprintf("%s: %s: %v", e.operation, e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the symbolic code.
func (e *Error) Code() Code {
	return e.code
}

// Operation returns the operation name, e.g. "ledger.record_buy_in".
func (e *Error) Operation() string {
	return e.operation
}

// CodeOf extracts the Code from err. Unknown errors map to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
