package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the business-rule taxonomy. Services wrap these with
// fmt.Errorf("...: %w", ...) so callers can match with errors.Is while still
// getting a descriptive message. The web adapter maps each sentinel to an
// HTTP status; nothing in this package retries or absorbs a violation.
var (
	// ErrNotFound marks a missing or not-owned entity.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock marks a stock reduction exceeding the on-hand quantity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrOverpayment marks a payment amount exceeding the invoice amount due.
	ErrOverpayment = errors.New("payment exceeds amount due")

	// ErrAmountMismatch marks a gateway-verified amount differing from the expected amount.
	ErrAmountMismatch = errors.New("gateway amount mismatch")

	// ErrConflict marks an edit of an immutable entity or an illegal state transition,
	// e.g. modifying a paid invoice or refunding a non-completed payment.
	ErrConflict = errors.New("conflicting state")

	// ErrGateway marks a network or remote failure from the payment gateway.
	ErrGateway = errors.New("payment gateway failure")
)

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}
