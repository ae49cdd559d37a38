package pricing

import (
	"context"
	"errors"
	"testing"
)

type fakeRates map[string]float64

func (f fakeRates) Rate(_ context.Context, providerID string) (float64, string, bool, error) {
	if providerID == "broken" {
		return 0, "", false, errors.New("db down")
	}
	p, ok := f[providerID]
	return p, "EUR", ok, nil
}

func TestNewStaticValidates(t *testing.T) {
	if _, err := NewStatic(-1, "USD"); err == nil {
		t.Fatal("expected negative price to fail")
	}
	if _, err := NewStatic(10, "dollars"); err == nil {
		t.Fatal("expected bad currency to fail")
	}
	s, err := NewStatic(25, " usd ")
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	q, _ := s.Quote(context.Background(), "p", "")
	if q.Amount != 25 || q.Currency != "USD" {
		t.Fatalf("quote = %+v", q)
	}
}

func TestRateTableFallsBack(t *testing.T) {
	fallback, _ := NewStatic(30, "USD")
	q := NewRateTable(fakeRates{"p1": 42.499}, fallback)

	got, err := q.Quote(context.Background(), "p1", "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got.Amount != 42.5 || got.Currency != "EUR" {
		t.Fatalf("quote = %+v", got)
	}

	got, _ = q.Quote(context.Background(), "p2", "")
	if got.Amount != 30 || got.Currency != "USD" {
		t.Fatalf("fallback quote = %+v", got)
	}

	if _, err := q.Quote(context.Background(), "broken", ""); err == nil {
		t.Fatal("expected source error")
	}
}
