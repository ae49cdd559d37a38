package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/slots"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxSlotsPerEntry bounds one declaration; a day has 1440 minutes.
const maxSlotsPerEntry = 1440

// Publisher is the provider-facing side of availability.
type Publisher struct {
	store AvailabilityStore
}

func NewPublisher(store AvailabilityStore) *Publisher {
	return &Publisher{store: store}
}

// SetAvailability appends a declaration for date. Earlier declarations for
// the same date stay live and are unioned with it.
func (p *Publisher) SetAvailability(ctx context.Context, callerID, providerID, date string, times []string) (model.AvailabilityEntry, error) {
	return p.publish(ctx, "booking.SetAvailability", callerID, providerID, date, times, p.store.Publish)
}

// ReplaceAvailability invalidates every live declaration for date and
// appends times as the only one.
func (p *Publisher) ReplaceAvailability(ctx context.Context, callerID, providerID, date string, times []string) (model.AvailabilityEntry, error) {
	return p.publish(ctx, "booking.ReplaceAvailability", callerID, providerID, date, times, p.store.Replace)
}

type writeFunc func(ctx context.Context, providerID string, date time.Time, times []string) (model.AvailabilityEntry, error)

func (p *Publisher) publish(ctx context.Context, op, callerID, providerID, date string, times []string, write writeFunc) (model.AvailabilityEntry, error) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("booking.date", date),
		attribute.Int("availability.times", len(times)),
	))
	defer span.End()

	if callerID == "" || callerID != providerID {
		return model.AvailabilityEntry{}, &Error{Kind: KindAuthorization, Message: "only the provider can change its availability"}
	}
	day, err := slots.ParseDate(date)
	if err != nil {
		return model.AvailabilityEntry{}, validation("%v", err)
	}
	if err := validateTimes(times); err != nil {
		return model.AvailabilityEntry{}, err
	}

	entry, err := write(ctx, providerID, day, times)
	if err != nil {
		span.RecordError(err)
		return model.AvailabilityEntry{}, storage("publish availability", err)
	}
	return entry, nil
}

func validateTimes(times []string) error {
	if len(times) == 0 {
		return validation("times must be a non-empty array")
	}
	if len(times) > maxSlotsPerEntry {
		return validation("times must have at most %d entries", maxSlotsPerEntry)
	}
	for i, t := range times {
		if !slots.ValidClock(t) {
			return &Error{Kind: KindValidation, Message: fmt.Sprintf("times[%d] = %q must be HH:MM", i, t)}
		}
	}
	return nil
}
