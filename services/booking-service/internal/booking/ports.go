package booking

import (
	"context"
	"time"

	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/pricing"
)

// AvailabilityStore only ever returns live (non-invalidated) entries.
type AvailabilityStore interface {
	Publish(ctx context.Context, providerID string, date time.Time, times []string) (model.AvailabilityEntry, error)
	Replace(ctx context.Context, providerID string, date time.Time, times []string) (model.AvailabilityEntry, error)
	ListByProvider(ctx context.Context, providerID string) ([]model.AvailabilityEntry, error)
	ListByProviderAndDateRange(ctx context.Context, providerID string, start, end time.Time) ([]model.AvailabilityEntry, error)
}

// ReservationStore must reject a Create that would leave two active
// reservations on one slot with model.ErrActiveSlotTaken, atomically.
type ReservationStore interface {
	Create(ctx context.Context, res model.Reservation) (model.Reservation, error)
	Get(ctx context.Context, id string) (model.Reservation, error)
	FindConflicting(ctx context.Context, providerID string, date time.Time, timeSlot string, statuses []model.Status) (model.Reservation, bool, error)
	ListByProvider(ctx context.Context, providerID string, statuses []model.Status) ([]model.Reservation, error)
	ListByCustomer(ctx context.Context, customerID string, statuses []model.Status) ([]model.Reservation, error)
	ListByProviderAndDateRange(ctx context.Context, providerID string, start, end time.Time, statuses []model.Status) ([]model.Reservation, error)
	UpdateStatus(ctx context.Context, id string, expected, next model.Status, reason string) (model.Reservation, error)
}

type Directory interface {
	PetOwner(ctx context.Context, petID string) (ownerID string, found bool, err error)
	ProviderExists(ctx context.Context, providerID string) (bool, error)
}

type Quoter interface {
	Quote(ctx context.Context, providerID, serviceID string) (pricing.Quote, error)
}
