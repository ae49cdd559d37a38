// Package bookingtest provides an in-memory store for tests. Under a mutex it
// enforces what Postgres enforces at insert time: one active reservation per
// slot, on a slot some live availability entry still declares.
package bookingtest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pawmarket/petcare/services/booking-service/internal/model"
)

type Store struct {
	mu           sync.Mutex
	entries      []model.AvailabilityEntry
	reservations map[string]model.Reservation
	pets         map[string]string
	providers    map[string]bool
	now          func() time.Time

	// Err, when set, is returned by every read and write.
	Err error
}

func NewStore() *Store {
	return &Store{
		reservations: map[string]model.Reservation{},
		pets:         map[string]string{},
		providers:    map[string]bool{},
		now:          time.Now,
	}
}

func (s *Store) AddPet(petID, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pets[petID] = ownerID
}

func (s *Store) AddProvider(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[providerID] = true
}

func (s *Store) PetOwner(_ context.Context, petID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", false, s.Err
	}
	owner, ok := s.pets[petID]
	return owner, ok, nil
}

func (s *Store) ProviderExists(_ context.Context, providerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	return s.providers[providerID], nil
}

// Availability is the AvailabilityStore view of the same in-memory data.
// ReservationStore and AvailabilityStore both name a ListByProvider, so the
// availability side lives on its own type.
type Availability struct {
	s *Store
}

func (s *Store) Availability() Availability {
	return Availability{s: s}
}

func (a Availability) Publish(_ context.Context, providerID string, date time.Time, times []string) (model.AvailabilityEntry, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.AvailabilityEntry{}, s.Err
	}
	return s.appendEntry(providerID, date, times), nil
}

func (a Availability) Replace(_ context.Context, providerID string, date time.Time, times []string) (model.AvailabilityEntry, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.AvailabilityEntry{}, s.Err
	}
	now := s.now()
	for i, e := range s.entries {
		if e.ProviderID == providerID && e.Date.Equal(date) && e.Live() {
			s.entries[i].InvalidatedAt = &now
			s.entries[i].UpdatedAt = now
		}
	}
	return s.appendEntry(providerID, date, times), nil
}

func (s *Store) appendEntry(providerID string, date time.Time, times []string) model.AvailabilityEntry {
	now := s.now()
	e := model.AvailabilityEntry{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		Date:       date,
		Times:      slices.Clone(times),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.entries = append(s.entries, e)
	return e
}

// Entries returns every entry including invalidated ones.
func (s *Store) Entries() []model.AvailabilityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

func (a Availability) ListByProvider(_ context.Context, providerID string) ([]model.AvailabilityEntry, error) {
	return a.s.listEntries(func(e model.AvailabilityEntry) bool { return e.ProviderID == providerID })
}

func (a Availability) ListByProviderAndDateRange(_ context.Context, providerID string, start, end time.Time) ([]model.AvailabilityEntry, error) {
	return a.s.listEntries(func(e model.AvailabilityEntry) bool {
		return e.ProviderID == providerID && !e.Date.Before(start) && !e.Date.After(end)
	})
}

func (s *Store) listEntries(keep func(model.AvailabilityEntry) bool) ([]model.AvailabilityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []model.AvailabilityEntry
	for _, e := range s.entries {
		if e.Live() && keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, res model.Reservation) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.Reservation{}, s.Err
	}
	if !s.declared(res) {
		return model.Reservation{}, model.ErrSlotNotDeclared
	}
	for _, other := range s.reservations {
		if other.Status.Active() && sameSlot(other, res) {
			return model.Reservation{}, model.ErrActiveSlotTaken
		}
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := s.now()
	res.Status = model.StatusPending
	res.CreatedAt = now
	res.UpdatedAt = now
	s.reservations[res.ID] = res
	return res, nil
}

func (s *Store) Get(_ context.Context, id string) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.Reservation{}, s.Err
	}
	res, ok := s.reservations[id]
	if !ok {
		return model.Reservation{}, model.ErrNotFound
	}
	return res, nil
}

func (s *Store) FindConflicting(_ context.Context, providerID string, date time.Time, timeSlot string, statuses []model.Status) (model.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.Reservation{}, false, s.Err
	}
	for _, res := range s.sorted() {
		if res.ProviderID == providerID && res.Date.Equal(date) && res.TimeSlot == timeSlot && slices.Contains(statuses, res.Status) {
			return res, true, nil
		}
	}
	return model.Reservation{}, false, nil
}

func (s *Store) ListByProvider(_ context.Context, providerID string, statuses []model.Status) ([]model.Reservation, error) {
	return s.listReservations(func(r model.Reservation) bool {
		return r.ProviderID == providerID && (len(statuses) == 0 || slices.Contains(statuses, r.Status))
	})
}

func (s *Store) ListByCustomer(_ context.Context, customerID string, statuses []model.Status) ([]model.Reservation, error) {
	return s.listReservations(func(r model.Reservation) bool {
		return r.CustomerID == customerID && (len(statuses) == 0 || slices.Contains(statuses, r.Status))
	})
}

func (s *Store) ListByProviderAndDateRange(_ context.Context, providerID string, start, end time.Time, statuses []model.Status) ([]model.Reservation, error) {
	return s.listReservations(func(r model.Reservation) bool {
		return r.ProviderID == providerID && !r.Date.Before(start) && !r.Date.After(end) && slices.Contains(statuses, r.Status)
	})
}

func (s *Store) UpdateStatus(_ context.Context, id string, expected, next model.Status, reason string) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.Reservation{}, s.Err
	}
	res, ok := s.reservations[id]
	if !ok {
		return model.Reservation{}, model.ErrNotFound
	}
	if res.Status != expected {
		return model.Reservation{}, model.ErrStaleStatus
	}
	if next.Active() && !res.Status.Active() {
		for _, other := range s.reservations {
			if other.ID != id && other.Status.Active() && sameSlot(other, res) {
				return model.Reservation{}, model.ErrActiveSlotTaken
			}
		}
	}
	res.Status = next
	if next == model.StatusCancelled && reason != "" {
		res.CancellationReason = reason
	}
	res.UpdatedAt = s.now()
	s.reservations[id] = res
	return res, nil
}

func (s *Store) listReservations(keep func(model.Reservation) bool) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []model.Reservation
	for _, r := range s.sorted() {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// sorted orders by date then slot then creation, matching the Postgres queries.
func (s *Store) sorted() []model.Reservation {
	out := make([]model.Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.TimeSlot != b.TimeSlot {
			return a.TimeSlot < b.TimeSlot
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

func (s *Store) declared(res model.Reservation) bool {
	for _, e := range s.entries {
		if e.Live() && e.ProviderID == res.ProviderID && e.Date.Equal(res.Date) && slices.Contains(e.Times, res.TimeSlot) {
			return true
		}
	}
	return false
}

func sameSlot(a, b model.Reservation) bool {
	return a.ProviderID == b.ProviderID && a.Date.Equal(b.Date) && a.TimeSlot == b.TimeSlot
}
