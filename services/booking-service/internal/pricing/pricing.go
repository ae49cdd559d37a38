// Package pricing prices a single booked slot.
package pricing

import (
	"context"
	"errors"
	"math"
	"strings"
)

type Quote struct {
	Amount   float64
	Currency string
}

type Static struct {
	quote Quote
}

func NewStatic(amount float64, currency string) (*Static, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, errors.New("pricing: default price must be a non-negative number")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, errors.New("pricing: currency must be a 3-letter code")
	}
	return &Static{quote: Quote{Amount: amount, Currency: currency}}, nil
}

func (s *Static) Quote(context.Context, string, string) (Quote, error) {
	return s.quote, nil
}

// RateSource is the provider_rates table.
type RateSource interface {
	Rate(ctx context.Context, providerID string) (price float64, currency string, ok bool, err error)
}

// RateTable prices from the provider's own rate and falls back to Static for
// providers that never set one.
type RateTable struct {
	rates    RateSource
	fallback *Static
}

func NewRateTable(rates RateSource, fallback *Static) *RateTable {
	return &RateTable{rates: rates, fallback: fallback}
}

func (q *RateTable) Quote(ctx context.Context, providerID, serviceID string) (Quote, error) {
	price, currency, ok, err := q.rates.Rate(ctx, providerID)
	if err != nil {
		return Quote{}, err
	}
	if !ok {
		return q.fallback.Quote(ctx, providerID, serviceID)
	}
	return Quote{Amount: math.Round(price*100) / 100, Currency: currency}, nil
}
