package model

import (
	"errors"
	"slices"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no-show"
)

// ActiveStatuses hold a slot. At most one reservation per provider, date and
// time slot may be in one of these.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

var (
	ErrNotFound = errors.New("not found")
	// ErrActiveSlotTaken is returned by stores when an insert or status change
	// would leave two active reservations on one slot.
	ErrActiveSlotTaken = errors.New("active reservation already holds the slot")
	// ErrStaleStatus means the reservation left the expected status before a
	// conditional status update ran.
	ErrStaleStatus = errors.New("reservation status changed concurrently")
	// ErrSlotNotDeclared is returned by Create when no live availability
	// entry lists the slot at insert time, e.g. after a concurrent replace.
	ErrSlotNotDeclared = errors.New("time slot is not declared")
)

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	switch st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, true
	}
	return "", false
}

func (s Status) Active() bool {
	return slices.Contains(ActiveStatuses, s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type Reservation struct {
	ID                 string
	CustomerID         string
	ProviderID         string
	PetID              string
	ServiceID          string
	Date               time.Time // UTC midnight
	TimeSlot           string
	Status             Status
	TotalPrice         float64
	Currency           string
	Notes              string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
