package booking

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/slots"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Coordinator is the only write path for reservations.
type Coordinator struct {
	availability AvailabilityStore
	reservations ReservationStore
	directory    Directory
	quoter       Quoter
}

func NewCoordinator(availability AvailabilityStore, reservations ReservationStore, directory Directory, quoter Quoter) *Coordinator {
	return &Coordinator{
		availability: availability,
		reservations: reservations,
		directory:    directory,
		quoter:       quoter,
	}
}

type BookRequest struct {
	CustomerID string
	ProviderID string
	PetID      string
	ServiceID  string
	Date       string
	TimeSlot   string
	Notes      string
}

const maxNotesLen = 2000

// Book validates and authorizes the request, checks the slot was declared and
// inserts a pending reservation. Two concurrent bookings of one slot are
// arbitrated by the store: the loser gets ErrSlotAlreadyBooked with the
// winner's id as ConflictID.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (model.Reservation, error) {
	ctx, span := tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("provider.id", req.ProviderID),
		attribute.String("booking.date", req.Date),
		attribute.String("booking.time_slot", req.TimeSlot),
	))
	defer span.End()

	res, err := c.book(ctx, req)
	if err != nil {
		span.SetAttributes(attribute.String("booking.error_kind", string(KindOf(err))))
		if KindOf(err) == KindStorage {
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage failure")
		}
		return model.Reservation{}, err
	}
	span.SetAttributes(attribute.String("reservation.id", res.ID))
	return res, nil
}

func (c *Coordinator) book(ctx context.Context, req BookRequest) (model.Reservation, error) {
	if !validID(req.CustomerID) {
		return model.Reservation{}, &Error{Kind: KindAuthorization, Message: "caller identity is missing or malformed"}
	}
	if !validID(req.ProviderID) {
		return model.Reservation{}, validation("providerId must be a UUID")
	}
	if !validID(req.PetID) {
		return model.Reservation{}, validation("petId must be a UUID")
	}
	if req.ServiceID != "" && !validID(req.ServiceID) {
		return model.Reservation{}, validation("serviceId must be a UUID")
	}
	day, err := slots.ParseDate(req.Date)
	if err != nil {
		return model.Reservation{}, validation("%v", err)
	}
	if !slots.ValidClock(req.TimeSlot) {
		return model.Reservation{}, validation("timeSlot %q must be HH:MM", req.TimeSlot)
	}
	notes := strings.TrimSpace(req.Notes)
	if utf8.RuneCountInString(notes) > maxNotesLen {
		return model.Reservation{}, validation("notes must be at most %d characters", maxNotesLen)
	}

	// Unknown pets and other customers' pets are reported the same way.
	owner, found, err := c.directory.PetOwner(ctx, req.PetID)
	if err != nil {
		return model.Reservation{}, storage("look up pet", err)
	}
	if !found || owner != req.CustomerID {
		return model.Reservation{}, &Error{Kind: KindAuthorization, Message: "pet not found"}
	}

	exists, err := c.directory.ProviderExists(ctx, req.ProviderID)
	if err != nil {
		return model.Reservation{}, storage("look up provider", err)
	}
	if !exists {
		return model.Reservation{}, &Error{Kind: KindNotFound, Message: "provider not found"}
	}

	entries, err := c.availability.ListByProviderAndDateRange(ctx, req.ProviderID, day, day)
	if err != nil {
		return model.Reservation{}, storage("list availability", err)
	}
	if !isDeclared(entries, req.TimeSlot) {
		return model.Reservation{}, &Error{Kind: KindSlotNotAvailable, Message: "provider has not declared this time slot"}
	}

	quote, err := c.quoter.Quote(ctx, req.ProviderID, req.ServiceID)
	if err != nil {
		return model.Reservation{}, storage("quote price", err)
	}

	created, err := c.reservations.Create(ctx, model.Reservation{
		CustomerID: req.CustomerID,
		ProviderID: req.ProviderID,
		PetID:      req.PetID,
		ServiceID:  req.ServiceID,
		Date:       day,
		TimeSlot:   req.TimeSlot,
		Status:     model.StatusPending,
		TotalPrice: quote.Amount,
		Currency:   quote.Currency,
		Notes:      notes,
	})
	if errors.Is(err, model.ErrActiveSlotTaken) {
		return model.Reservation{}, c.alreadyBooked(ctx, req.ProviderID, day, req.TimeSlot)
	}
	if errors.Is(err, model.ErrSlotNotDeclared) {
		return model.Reservation{}, &Error{Kind: KindSlotNotAvailable, Message: "provider has withdrawn this time slot", Err: err}
	}
	if err != nil {
		return model.Reservation{}, storage("create reservation", err)
	}
	return created, nil
}

func (c *Coordinator) alreadyBooked(ctx context.Context, providerID string, day time.Time, slot string) error {
	e := &Error{Kind: KindSlotAlreadyBooked, Message: "Time slot already booked"}
	// The holder may have cancelled in between; the conflict id is then left empty.
	if holder, ok, err := c.reservations.FindConflicting(ctx, providerID, day, slot, model.ActiveStatuses); err == nil && ok {
		e.ConflictID = holder.ID
	}
	return e
}

// Cancel frees the slot. Either party may cancel a pending or confirmed
// reservation; cancelling twice returns the cancelled reservation.
func (c *Coordinator) Cancel(ctx context.Context, reservationID, actorID, reason string) (model.Reservation, error) {
	return c.Transition(ctx, reservationID, actorID, model.StatusCancelled, reason)
}

// Transition applies a status change on behalf of actorID. The provider may
// confirm a pending reservation and complete or mark no-show an active one.
// Terminal statuses never change.
func (c *Coordinator) Transition(ctx context.Context, reservationID, actorID string, next model.Status, reason string) (model.Reservation, error) {
	ctx, span := tracer.Start(ctx, "booking.Transition", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
		attribute.String("reservation.next_status", string(next)),
	))
	defer span.End()

	res, err := c.transition(ctx, reservationID, actorID, next, reason)
	if err != nil {
		span.SetAttributes(attribute.String("booking.error_kind", string(KindOf(err))))
		if KindOf(err) == KindStorage {
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage failure")
		}
	}
	return res, err
}

func (c *Coordinator) transition(ctx context.Context, reservationID, actorID string, next model.Status, reason string) (model.Reservation, error) {
	if !validID(reservationID) {
		return model.Reservation{}, validation("reservationId must be a UUID")
	}
	if !validID(actorID) {
		return model.Reservation{}, &Error{Kind: KindAuthorization, Message: "caller identity is missing or malformed"}
	}
	if _, ok := model.ParseStatus(string(next)); !ok {
		return model.Reservation{}, validation("unknown status %q", next)
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxNotesLen {
		return model.Reservation{}, validation("reason must be at most %d characters", maxNotesLen)
	}

	current, err := c.reservations.Get(ctx, reservationID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Reservation{}, &Error{Kind: KindNotFound, Message: "reservation not found"}
	}
	if err != nil {
		return model.Reservation{}, storage("get reservation", err)
	}

	isProvider := actorID == current.ProviderID
	if !isProvider && actorID != current.CustomerID {
		return model.Reservation{}, &Error{Kind: KindAuthorization, Message: "not a party to this reservation"}
	}
	if next == model.StatusCancelled && current.Status == model.StatusCancelled {
		return current, nil
	}
	if err := checkTransition(current.Status, next, isProvider); err != nil {
		return model.Reservation{}, err
	}

	updated, err := c.reservations.UpdateStatus(ctx, reservationID, current.Status, next, reason)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return model.Reservation{}, &Error{Kind: KindNotFound, Message: "reservation not found"}
	case errors.Is(err, model.ErrStaleStatus):
		return model.Reservation{}, &Error{Kind: KindInvalidState, Message: "reservation changed concurrently; reload and retry", Err: err}
	case err != nil:
		return model.Reservation{}, storage("update reservation status", err)
	}
	return updated, nil
}

func checkTransition(from, to model.Status, byProvider bool) error {
	if from.Terminal() {
		return &Error{Kind: KindInvalidState, Message: "reservation is already " + string(from)}
	}
	switch to {
	case model.StatusCancelled:
		return nil
	case model.StatusConfirmed:
		if !byProvider {
			return &Error{Kind: KindAuthorization, Message: "only the provider can confirm"}
		}
		if from != model.StatusPending {
			return &Error{Kind: KindInvalidState, Message: "only pending reservations can be confirmed"}
		}
		return nil
	case model.StatusCompleted, model.StatusNoShow:
		if !byProvider {
			return &Error{Kind: KindAuthorization, Message: "only the provider can mark " + string(to)}
		}
		return nil
	default:
		return &Error{Kind: KindInvalidState, Message: "cannot move reservation to " + string(to)}
	}
}

// Get returns the reservation to either party. Anyone else sees not found.
func (c *Coordinator) Get(ctx context.Context, reservationID, actorID string) (model.Reservation, error) {
	if !validID(reservationID) {
		return model.Reservation{}, validation("reservationId must be a UUID")
	}
	res, err := c.reservations.Get(ctx, reservationID)
	if errors.Is(err, model.ErrNotFound) || (err == nil && actorID != res.CustomerID && actorID != res.ProviderID) {
		return model.Reservation{}, &Error{Kind: KindNotFound, Message: "reservation not found"}
	}
	if err != nil {
		return model.Reservation{}, storage("get reservation", err)
	}
	return res, nil
}

type Perspective string

const (
	AsCustomer Perspective = "customer"
	AsProvider Perspective = "provider"
)

// List returns the actor's reservations as customer or as provider,
// optionally filtered by status.
func (c *Coordinator) List(ctx context.Context, actorID string, as Perspective, statuses []model.Status) ([]model.Reservation, error) {
	if !validID(actorID) {
		return nil, &Error{Kind: KindAuthorization, Message: "caller identity is missing or malformed"}
	}
	var (
		out []model.Reservation
		err error
	)
	switch as {
	case AsCustomer, "":
		out, err = c.reservations.ListByCustomer(ctx, actorID, statuses)
	case AsProvider:
		out, err = c.reservations.ListByProvider(ctx, actorID, statuses)
	default:
		return nil, validation("as must be customer or provider")
	}
	if err != nil {
		return nil, storage("list reservations", err)
	}
	return out, nil
}

func validID(s string) bool {
	return uuid.Validate(s) == nil
}
