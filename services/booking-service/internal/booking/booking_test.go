package booking

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pawmarket/petcare/services/booking-service/internal/booking/bookingtest"
	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/pricing"
)

var (
	_ AvailabilityStore = bookingtest.Availability{}
	_ ReservationStore  = (*bookingtest.Store)(nil)
	_ Directory         = (*bookingtest.Store)(nil)
)

type fixture struct {
	store       *bookingtest.Store
	resolver    *Resolver
	coordinator *Coordinator
	publisher   *Publisher
	provider    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := bookingtest.NewStore()
	quoter, err := pricing.NewStatic(35, "USD")
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	provider := uuid.NewString()
	store.AddProvider(provider)
	return &fixture{
		store:       store,
		resolver:    NewResolver(store.Availability(), store),
		coordinator: NewCoordinator(store.Availability(), store, store, quoter),
		publisher:   NewPublisher(store.Availability()),
		provider:    provider,
	}
}

// customer registers a customer owning one pet and returns both ids.
func (f *fixture) customer() (customerID, petID string) {
	customerID, petID = uuid.NewString(), uuid.NewString()
	f.store.AddPet(petID, customerID)
	return customerID, petID
}

func (f *fixture) declare(t *testing.T, date string, times ...string) {
	t.Helper()
	if _, err := f.publisher.SetAvailability(context.Background(), f.provider, f.provider, date, times); err != nil {
		t.Fatalf("SetAvailability(%s): %v", date, err)
	}
}

func (f *fixture) book(customerID, petID, date, slot string) (model.Reservation, error) {
	return f.coordinator.Book(context.Background(), BookRequest{
		CustomerID: customerID,
		ProviderID: f.provider,
		PetID:      petID,
		Date:       date,
		TimeSlot:   slot,
	})
}

func TestConcurrentBookingsOfOneSlotAdmitExactlyOne(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-06-01", "09:00")

	const n = 50
	type result struct {
		res model.Reservation
		err error
	}
	results := make([]result, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		customer, pet := f.customer()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := f.book(customer, pet, "2024-06-01", "09:00")
			results[i] = result{res, err}
		}()
	}
	close(start)
	wg.Wait()

	var winners []model.Reservation
	for _, r := range results {
		if r.err == nil {
			winners = append(winners, r.res)
		}
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one success, got %d", len(winners))
	}
	for _, r := range results {
		if r.err == nil {
			continue
		}
		if !errors.Is(r.err, ErrSlotAlreadyBooked) {
			t.Fatalf("loser got %v, want slot already booked", r.err)
		}
		var e *Error
		if !errors.As(r.err, &e) || e.ConflictID != winners[0].ID {
			t.Fatalf("conflict id = %q, want %q", e.ConflictID, winners[0].ID)
		}
	}

	active, _ := f.store.ListByProvider(context.Background(), f.provider, model.ActiveStatuses)
	if len(active) != 1 {
		t.Fatalf("active reservations = %d", len(active))
	}
}

func TestAvailableSlotsEqualDeclaredMinusBooked(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	universe := []string{"08:00", "08:30", "09:00", "09:30", "10:00", "10:30", "11:00", "13:00", "14:00", "15:45"}
	ctx := context.Background()

	for round := range 40 {
		f := newFixture(t)
		date := time.Date(2024, 4, 1+round%28, 0, 0, 0, 0, time.UTC)
		dateKey := date.Format("2006-01-02")

		declared := map[string]bool{}
		for range 1 + rng.IntN(3) {
			var times []string
			for _, s := range universe {
				if rng.IntN(2) == 0 {
					times = append(times, s, s) // duplicates within an entry are allowed
					declared[s] = true
				}
			}
			if len(times) == 0 {
				continue
			}
			f.declare(t, dateKey, times...)
		}

		booked := map[string]bool{}
		for s := range declared {
			switch rng.IntN(3) {
			case 0:
				_, _ = f.store.Create(ctx, model.Reservation{ProviderID: f.provider, Date: date, TimeSlot: s})
				booked[s] = true
			case 1:
				// A cancelled reservation must not hide the slot.
				res, _ := f.store.Create(ctx, model.Reservation{ProviderID: f.provider, Date: date, TimeSlot: s})
				_, _ = f.store.UpdateStatus(ctx, res.ID, model.StatusPending, model.StatusCancelled, "")
			}
		}

		var want []string
		for _, s := range universe {
			if declared[s] && !booked[s] {
				want = append(want, s)
			}
		}
		got, err := f.resolver.AvailableSlotsForDate(ctx, f.provider, dateKey)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if !slices.Equal(got, want) && !(len(got) == 0 && len(want) == 0) {
			t.Fatalf("round %d: got %v, want %v", round, got, want)
		}
	}
}

func TestResolutionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-06-01", "11:00", "09:00", "10:00")
	c, pet := f.customer()
	if _, err := f.book(c, pet, "2024-06-01", "10:00"); err != nil {
		t.Fatalf("book: %v", err)
	}

	first, err := f.resolver.AvailableSlotsForDate(context.Background(), f.provider, "2024-06-01")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, _ := f.resolver.AvailableSlotsForDate(context.Background(), f.provider, "2024-06-01")
	if !slices.Equal(first, second) || !slices.Equal(first, []string{"09:00", "11:00"}) {
		t.Fatalf("first=%v second=%v", first, second)
	}
}

func TestCancellationFreesTheSlot(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-06-01", "09:00")
	a, petA := f.customer()
	b, petB := f.customer()

	res, err := f.book(a, petA, "2024-06-01", "09:00")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	cancelled, err := f.coordinator.Cancel(context.Background(), res.ID, a, "vet visit moved")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancellationReason != "vet visit moved" {
		t.Fatalf("cancelled = %+v", cancelled)
	}

	if _, err := f.book(b, petB, "2024-06-01", "09:00"); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestSetAvailabilityRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		date  string
		times []string
	}{
		{"hour out of range", "2024-06-01", []string{"25:00"}},
		{"empty times", "2024-06-01", []string{}},
		{"nil times", "2024-06-01", nil},
		{"unpadded", "2024-06-01", []string{"9:00"}},
		{"one bad among good", "2024-06-01", []string{"09:00", "10:61"}},
		{"bad date", "2024-02-30", []string{"09:00"}},
		{"missing date", "", []string{"09:00"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.publisher.SetAvailability(ctx, f.provider, f.provider, tc.date, tc.times)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}
	if len(f.store.Entries()) != 0 {
		t.Fatal("rejected input must not be persisted")
	}
}

func TestSetAvailabilityRequiresOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.publisher.SetAvailability(context.Background(), uuid.NewString(), f.provider, "2024-06-01", []string{"09:00"})
	if !errors.Is(err, ErrAuthorization) {
		t.Fatalf("got %v, want authorization error", err)
	}
	_, err = f.publisher.ReplaceAvailability(context.Background(), "", f.provider, "2024-06-01", []string{"09:00"})
	if !errors.Is(err, ErrAuthorization) {
		t.Fatalf("got %v, want authorization error", err)
	}
}

func TestMonthViewOmitsDaysWithoutDeclarations(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-03-05", "09:00", "10:00")
	f.declare(t, "2024-03-19", "14:00")
	f.declare(t, "2024-04-01", "09:00")
	c, pet := f.customer()
	if _, err := f.book(c, pet, "2024-03-19", "14:00"); err != nil {
		t.Fatalf("book: %v", err)
	}

	got, err := f.resolver.AvailableSlotsForMonth(context.Background(), f.provider, 2024, time.March)
	if err != nil {
		t.Fatalf("month: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 dates, got %v", got)
	}
	if !slices.Equal(got["2024-03-05"], []string{"09:00", "10:00"}) {
		t.Fatalf("2024-03-05 = %v", got["2024-03-05"])
	}
	if free, ok := got["2024-03-19"]; !ok || len(free) != 0 {
		t.Fatalf("fully booked date should be present and empty, got %v (present=%v)", free, ok)
	}

	empty, err := f.resolver.AvailableSlotsForMonth(context.Background(), uuid.NewString(), 2024, time.March)
	if err != nil || len(empty) != 0 {
		t.Fatalf("unknown provider: %v, %v", empty, err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-06-01", "09:00", "10:00")
	a, petA := f.customer()
	b, petB := f.customer()

	resA, err := f.book(a, petA, "2024-06-01", "09:00")
	if err != nil {
		t.Fatalf("A books 09:00: %v", err)
	}
	if resA.Status != model.StatusPending || resA.TotalPrice != 35 || resA.Currency != "USD" {
		t.Fatalf("reservation = %+v", resA)
	}

	_, err = f.book(b, petB, "2024-06-01", "09:00")
	if !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Fatalf("B books 09:00: got %v", err)
	}
	if _, err := f.book(b, petB, "2024-06-01", "10:00"); err != nil {
		t.Fatalf("B books 10:00: %v", err)
	}

	free, err := f.resolver.AvailableSlotsForDate(context.Background(), f.provider, "2024-06-01")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(free) != 0 {
		t.Fatalf("expected no free slots, got %v", free)
	}
}

func TestBookRejectsMalformedInput(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-06-01", "09:00")
	c, pet := f.customer()

	cases := []struct {
		name string
		req  BookRequest
		want error
	}{
		{"bad provider", BookRequest{CustomerID: c, ProviderID: "nope", PetID: pet, Date: "2024-06-01", TimeSlot: "09:00"}, ErrValidation},
		{"bad pet", BookRequest{CustomerID: c, ProviderID: f.provider, PetID: "", Date: "2024-06-01", TimeSlot: "09:00"}, ErrValidation},
		{"bad date", BookRequest{CustomerID: c, ProviderID: f.provider, PetID: pet, Date: "06/01/2024", TimeSlot: "09:00"}, ErrValidation},
		{"bad slot", BookRequest{CustomerID: c, ProviderID: f.provider, PetID: pet, Date: "2024-06-01", TimeSlot: "9am"}, ErrValidation},
		{"no caller", BookRequest{ProviderID: f.provider, PetID: pet, Date: "2024-06-01", TimeSlot: "09:00"}, ErrAuthorization},
		{"someone else's pet", BookRequest{CustomerID: uuid.NewString(), ProviderID: f.provider, PetID: pet, Date: "2024-06-01", TimeSlot: "09:00"}, ErrAuthorization},
		{"unknown pet", BookRequest{CustomerID: c, ProviderID: f.provider, PetID: uuid.NewString(), Date: "2024-06-01", TimeSlot: "09:00"}, ErrAuthorization},
		{"unknown provider", BookRequest{CustomerID: c, ProviderID: uuid.NewString(), PetID: pet, Date: "2024-06-01", TimeSlot: "09:00"}, ErrNotFound},
		{"undeclared slot", BookRequest{CustomerID: c, ProviderID: f.provider, PetID: pet, Date: "2024-06-01", TimeSlot: "10:00"}, ErrSlotNotAvailable},
		{"undeclared date", BookRequest{CustomerID: c, ProviderID: f.provider, PetID: pet, Date: "2024-06-02", TimeSlot: "09:00"}, ErrSlotNotAvailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.coordinator.Book(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want kind %s", err, tc.want.(*Error).Kind)
			}
		})
	}
}

func TestNotesLimitCountsCharacters(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-06-01", "09:00", "10:00")
	c, pet := f.customer()

	req := BookRequest{CustomerID: c, ProviderID: f.provider, PetID: pet, Date: "2024-06-01", TimeSlot: "09:00",
		Notes: strings.Repeat("日", maxNotesLen)}
	res, err := f.coordinator.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("%d multi-byte characters rejected: %v", maxNotesLen, err)
	}

	req.TimeSlot = "10:00"
	req.Notes = strings.Repeat("日", maxNotesLen+1)
	if _, err := f.coordinator.Book(context.Background(), req); !errors.Is(err, ErrValidation) {
		t.Fatalf("over-long notes: got %v", err)
	}

	if _, err := f.coordinator.Cancel(context.Background(), res.ID, c, strings.Repeat("犬", maxNotesLen)); err != nil {
		t.Fatalf("multi-byte reason rejected: %v", err)
	}
}

// replaceAfterList runs replace right after the coordinator has read the
// declarations, before it inserts the reservation.
type replaceAfterList struct {
	AvailabilityStore
	replace func()
}

func (a replaceAfterList) ListByProviderAndDateRange(ctx context.Context, providerID string, start, end time.Time) ([]model.AvailabilityEntry, error) {
	entries, err := a.AvailabilityStore.ListByProviderAndDateRange(ctx, providerID, start, end)
	a.replace()
	return entries, err
}

func TestBookLosesToConcurrentWithdrawal(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-06-01", "09:00", "10:00")
	c, pet := f.customer()

	avail := replaceAfterList{
		AvailabilityStore: f.store.Availability(),
		replace: func() {
			if _, err := f.publisher.ReplaceAvailability(context.Background(), f.provider, f.provider, "2024-06-01", []string{"10:00"}); err != nil {
				t.Errorf("replace: %v", err)
			}
		},
	}
	quoter, err := pricing.NewStatic(35, "USD")
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	coord := NewCoordinator(avail, f.store, f.store, quoter)

	_, err = coord.Book(context.Background(), BookRequest{CustomerID: c, ProviderID: f.provider, PetID: pet, Date: "2024-06-01", TimeSlot: "09:00"})
	if !errors.Is(err, ErrSlotNotAvailable) {
		t.Fatalf("got %v, want slot not available", err)
	}
	if got, _ := f.store.ListByCustomer(context.Background(), c, nil); len(got) != 0 {
		t.Fatalf("reservation stored on withdrawn slot: %+v", got)
	}
}

func TestReplaceSupersedesEarlierDeclarations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.declare(t, "2024-06-01", "09:00")
	f.declare(t, "2024-06-01", "10:00")
	f.declare(t, "2024-06-02", "09:00")

	if _, err := f.publisher.ReplaceAvailability(ctx, f.provider, f.provider, "2024-06-01", []string{"15:00"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ := f.resolver.AvailableSlotsForDate(ctx, f.provider, "2024-06-01")
	if !slices.Equal(got, []string{"15:00"}) {
		t.Fatalf("after replace = %v", got)
	}
	other, _ := f.resolver.AvailableSlotsForDate(ctx, f.provider, "2024-06-02")
	if !slices.Equal(other, []string{"09:00"}) {
		t.Fatalf("other date touched: %v", other)
	}

	var invalidated int
	for _, e := range f.store.Entries() {
		if !e.Live() {
			invalidated++
		}
	}
	if invalidated != 2 {
		t.Fatalf("invalidated entries = %d, want 2 kept as history", invalidated)
	}
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	stranger := uuid.NewString()

	cases := []struct {
		name  string
		setup []model.Status // applied by the provider before the step under test
		actor string         // "provider", "customer" or "stranger"
		next  model.Status
		want  error
	}{
		{"provider confirms", nil, "provider", model.StatusConfirmed, nil},
		{"customer cannot confirm", nil, "customer", model.StatusConfirmed, ErrAuthorization},
		{"customer cancels pending", nil, "customer", model.StatusCancelled, nil},
		{"provider cancels confirmed", []model.Status{model.StatusConfirmed}, "provider", model.StatusCancelled, nil},
		{"provider completes confirmed", []model.Status{model.StatusConfirmed}, "provider", model.StatusCompleted, nil},
		{"provider marks no-show", nil, "provider", model.StatusNoShow, nil},
		{"customer cannot complete", nil, "customer", model.StatusCompleted, ErrAuthorization},
		{"stranger cannot cancel", nil, "stranger", model.StatusCancelled, ErrAuthorization},
		{"completed is terminal", []model.Status{model.StatusCompleted}, "provider", model.StatusCancelled, ErrInvalidState},
		{"confirm twice", []model.Status{model.StatusConfirmed}, "provider", model.StatusConfirmed, ErrInvalidState},
		{"back to pending", nil, "provider", model.StatusPending, ErrInvalidState},
		{"cancel is idempotent", []model.Status{model.StatusCancelled}, "customer", model.StatusCancelled, nil},
		{"unknown status", nil, "provider", model.Status("archived"), ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.declare(t, "2024-06-01", "09:00")
			c, pet := f.customer()
			res, err := f.book(c, pet, "2024-06-01", "09:00")
			if err != nil {
				t.Fatalf("book: %v", err)
			}
			for _, st := range tc.setup {
				if _, err := f.coordinator.Transition(ctx, res.ID, f.provider, st, ""); err != nil {
					t.Fatalf("setup %s: %v", st, err)
				}
			}
			actor := map[string]string{"provider": f.provider, "customer": c, "stranger": stranger}[tc.actor]

			got, err := f.coordinator.Transition(ctx, res.ID, actor, tc.next, "")
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.Status != tc.next {
					t.Fatalf("status = %s, want %s", got.Status, tc.next)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want kind %s", err, tc.want.(*Error).Kind)
			}
		})
	}
}

func TestTransitionUnknownReservation(t *testing.T) {
	f := newFixture(t)
	_, err := f.coordinator.Cancel(context.Background(), uuid.NewString(), f.provider, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestGetHidesReservationFromStrangers(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-06-01", "09:00")
	c, pet := f.customer()
	res, _ := f.book(c, pet, "2024-06-01", "09:00")

	if _, err := f.coordinator.Get(context.Background(), res.ID, c); err != nil {
		t.Fatalf("customer get: %v", err)
	}
	if _, err := f.coordinator.Get(context.Background(), res.ID, f.provider); err != nil {
		t.Fatalf("provider get: %v", err)
	}
	if _, err := f.coordinator.Get(context.Background(), res.ID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger get: %v", err)
	}
}

func TestListByPerspective(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.declare(t, "2024-06-01", "09:00", "10:00")
	c, pet := f.customer()
	first, _ := f.book(c, pet, "2024-06-01", "09:00")
	_, _ = f.book(c, pet, "2024-06-01", "10:00")
	if _, err := f.coordinator.Cancel(ctx, first.ID, c, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	mine, err := f.coordinator.List(ctx, c, AsCustomer, nil)
	if err != nil || len(mine) != 2 {
		t.Fatalf("customer list = %d, %v", len(mine), err)
	}
	active, err := f.coordinator.List(ctx, f.provider, AsProvider, model.ActiveStatuses)
	if err != nil || len(active) != 1 || active[0].TimeSlot != "10:00" {
		t.Fatalf("provider active list = %+v, %v", active, err)
	}
	if _, err := f.coordinator.List(ctx, c, Perspective("admin"), nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want validation", err)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.declare(t, "2024-06-02", "09:00")
	f.declare(t, "2024-06-01", "10:00", "09:00")
	f.declare(t, "2024-06-01", "11:00")
	c, pet := f.customer()
	if _, err := f.book(c, pet, "2024-06-02", "09:00"); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.book(c, pet, "2024-06-01", "10:00"); err != nil {
		t.Fatalf("book: %v", err)
	}

	sum, err := f.resolver.Summary(ctx, f.provider)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalDates != 2 || sum.DatesWithAvailability != 1 {
		t.Fatalf("stats = %d/%d", sum.TotalDates, sum.DatesWithAvailability)
	}
	d1 := sum.Days[0]
	if d1.Date != "2024-06-01" ||
		!slices.Equal(d1.AllTimeSlots, []string{"09:00", "10:00", "11:00"}) ||
		!slices.Equal(d1.BookedTimeSlots, []string{"10:00"}) ||
		!slices.Equal(d1.AvailableTimeSlots, []string{"09:00", "11:00"}) ||
		!d1.IsAvailable {
		t.Fatalf("day 1 = %+v", d1)
	}
	d2 := sum.Days[1]
	if d2.Date != "2024-06-02" || d2.IsAvailable || len(d2.AvailableTimeSlots) != 0 {
		t.Fatalf("day 2 = %+v", d2)
	}

	empty, err := f.resolver.Summary(ctx, uuid.NewString())
	if err != nil || empty.TotalDates != 0 || len(empty.Days) != 0 {
		t.Fatalf("empty summary = %+v, %v", empty, err)
	}
}

func TestStorageFailuresSurfaceAsStorageKind(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "2024-06-01", "09:00")
	c, pet := f.customer()
	f.store.Err = errors.New("connection reset")

	_, err := f.book(c, pet, "2024-06-01", "09:00")
	if !errors.Is(err, ErrStorage) || KindOf(err) != KindStorage {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.resolver.AvailableSlotsForDate(context.Background(), f.provider, "2024-06-01"); !errors.Is(err, ErrStorage) {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.resolver.AvailableSlotsForDate(context.Background(), f.provider, "not-a-date"); !errors.Is(err, ErrValidation) {
		t.Fatalf("validation must run before storage: %v", err)
	}
}
