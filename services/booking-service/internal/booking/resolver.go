package booking

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/slots"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("booking")

// Resolver derives available slots: declared slots of live entries minus the
// slots held by active reservations. It never writes.
type Resolver struct {
	availability AvailabilityStore
	reservations ReservationStore
}

func NewResolver(availability AvailabilityStore, reservations ReservationStore) *Resolver {
	return &Resolver{availability: availability, reservations: reservations}
}

// AvailableSlotsForDate returns the free slots on date, sorted. A provider
// without declarations for that date yields an empty list.
func (r *Resolver) AvailableSlotsForDate(ctx context.Context, providerID, date string) ([]string, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, validation("providerId is required")
	}
	day, err := slots.ParseDate(date)
	if err != nil {
		return nil, validation("%v", err)
	}
	ctx, span := tracer.Start(ctx, "booking.AvailableSlotsForDate", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("booking.date", date),
	))
	defer span.End()

	byDate, err := r.resolveRange(ctx, providerID, day, day)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if free, ok := byDate[slots.DateKey(day)]; ok {
		return free, nil
	}
	return []string{}, nil
}

// AvailableSlotsForMonth maps "YYYY-MM-DD" to free slots. Only dates with
// declared availability appear; a fully booked date maps to an empty list.
func (r *Resolver) AvailableSlotsForMonth(ctx context.Context, providerID string, year int, month time.Month) (map[string][]string, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, validation("providerId is required")
	}
	if month < time.January || month > time.December || year < 1 || year > 9999 {
		return nil, validation("invalid month %04d-%02d", year, int(month))
	}
	ctx, span := tracer.Start(ctx, "booking.AvailableSlotsForMonth", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.Int("booking.year", year),
		attribute.Int("booking.month", int(month)),
	))
	defer span.End()

	first, last := slots.MonthRange(year, month)
	byDate, err := r.resolveRange(ctx, providerID, first, last)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return byDate, nil
}

func (r *Resolver) resolveRange(ctx context.Context, providerID string, start, end time.Time) (map[string][]string, error) {
	var (
		entries  []model.AvailabilityEntry
		reserved []model.Reservation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = r.availability.ListByProviderAndDateRange(gctx, providerID, start, end)
		if err != nil {
			return storage("list availability", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		reserved, err = r.reservations.ListByProviderAndDateRange(gctx, providerID, start, end, model.ActiveStatuses)
		if err != nil {
			return storage("list reservations", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	declared := declaredByDate(entries)
	booked := bookedByDate(reserved)
	out := make(map[string][]string, len(declared))
	for date, times := range declared {
		out[date] = slots.Subtract(times, booked[date])
	}
	return out, nil
}

type DaySummary struct {
	Date               string
	AllTimeSlots       []string
	BookedTimeSlots    []string
	AvailableTimeSlots []string
	IsAvailable        bool
}

type Summary struct {
	ProviderID            string
	Days                  []DaySummary
	TotalDates            int
	DatesWithAvailability int
}

// Summary reports every date the provider has declared, in date order.
// Booked slots are the active reservations on that date.
func (r *Resolver) Summary(ctx context.Context, providerID string) (Summary, error) {
	if strings.TrimSpace(providerID) == "" {
		return Summary{}, validation("providerId is required")
	}
	ctx, span := tracer.Start(ctx, "booking.Summary", trace.WithAttributes(attribute.String("provider.id", providerID)))
	defer span.End()

	var (
		entries  []model.AvailabilityEntry
		reserved []model.Reservation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if entries, err = r.availability.ListByProvider(gctx, providerID); err != nil {
			return storage("list availability", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if reserved, err = r.reservations.ListByProvider(gctx, providerID, model.ActiveStatuses); err != nil {
			return storage("list reservations", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Summary{}, err
	}

	declared := declaredByDate(entries)
	booked := bookedByDate(reserved)
	dates := make([]string, 0, len(declared))
	for d := range declared {
		dates = append(dates, d)
	}
	slices.Sort(dates)

	sum := Summary{ProviderID: providerID, Days: make([]DaySummary, 0, len(dates)), TotalDates: len(dates)}
	for _, d := range dates {
		bookedSlots := slots.Union(booked[d])
		if bookedSlots == nil {
			bookedSlots = []string{}
		}
		free := slots.Subtract(declared[d], bookedSlots)
		sum.Days = append(sum.Days, DaySummary{
			Date:               d,
			AllTimeSlots:       declared[d],
			BookedTimeSlots:    bookedSlots,
			AvailableTimeSlots: free,
			IsAvailable:        len(free) > 0,
		})
		if len(free) > 0 {
			sum.DatesWithAvailability++
		}
	}
	return sum, nil
}

// declaredByDate unions the times of all entries per date.
func declaredByDate(entries []model.AvailabilityEntry) map[string][]string {
	out := map[string][]string{}
	for _, e := range entries {
		k := slots.DateKey(e.Date)
		out[k] = slots.Union(out[k], e.Times)
	}
	return out
}

func bookedByDate(reserved []model.Reservation) map[string][]string {
	out := map[string][]string{}
	for _, res := range reserved {
		if !res.Status.Active() {
			continue
		}
		k := slots.DateKey(res.Date)
		out[k] = append(out[k], res.TimeSlot)
	}
	return out
}

// isDeclared reports whether slot is in the union of the live entries for the date.
func isDeclared(entries []model.AvailabilityEntry, slot string) bool {
	for _, e := range entries {
		if slices.Contains(e.Times, slot) {
			return true
		}
	}
	return false
}
