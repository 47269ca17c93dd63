// Package service contains the seat reservation core: the seat lock state
// machine, the booking confirmation transaction, the payment event ledger
// and the post-commit notification step.
//
// Errors returned by this package belong to a small taxonomy that callers
// match with errors.Is:
//
//	ErrValidation       missing or malformed identifiers, nothing was touched
//	ErrConflict         seats are held or booked by somebody else
//	ErrExternalService  the payment provider failed or returned garbage
//	ErrFatalTransaction unexpected failure inside a transaction, rolled back
//
// Duplicate deliveries are not errors.  They are reported through result
// values (RecordResult.IsNew, ConfirmResult.AlreadyBooked).
package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("selected seats were just taken")
	ErrExternalService  = errors.New("external service error")
	ErrFatalTransaction = errors.New("transaction aborted")
	// ErrPaymentPending is returned when a checkout session is not paid yet.
	ErrPaymentPending = errors.New("payment not completed")
)

// ValidationError names the offending input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError lists the requested seats that could not be locked.  Err is
// the storage level cause, if any.
type ConflictError struct {
	Unavailable []uint64
	Err         error
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.Unavailable))
	for i, id := range e.Unavailable {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return fmt.Sprintf("%s: [%s]", ErrConflict, strings.Join(ids, ","))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func fatal(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrFatalTransaction, err)
}
