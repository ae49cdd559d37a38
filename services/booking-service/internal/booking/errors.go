package booking

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindAuthorization     Kind = "authorization"
	KindNotFound          Kind = "not_found"
	KindSlotNotAvailable  Kind = "slot_not_available"
	KindSlotAlreadyBooked Kind = "slot_already_booked"
	KindInvalidState      Kind = "invalid_state"
	KindStorage           Kind = "storage"
)

// Error is the single error type returned by the booking operations. Callers
// branch on Kind, never on Message.
type Error struct {
	Kind    Kind
	Message string
	// ConflictID is the reservation holding the slot, for KindSlotAlreadyBooked.
	ConflictID string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrNotFound) works
// for any *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrSlotNotAvailable  = &Error{Kind: KindSlotNotAvailable}
	ErrSlotAlreadyBooked = &Error{Kind: KindSlotAlreadyBooked}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrStorage           = &Error{Kind: KindStorage}
)

// KindOf returns KindStorage for errors that are not *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func storage(op string, err error) error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}
