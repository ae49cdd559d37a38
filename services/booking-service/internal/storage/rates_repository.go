package storage

import (
	"context"

	"github.com/pawmarket/petcare/libs/db"
)

type RatesRepository struct {
	pool *db.Pool
}

func NewRatesRepository(pool *db.Pool) *RatesRepository {
	return &RatesRepository{pool: pool}
}

// Rate returns the provider's per-slot price, or false when none is set.
func (r *RatesRepository) Rate(ctx context.Context, providerID string) (float64, string, bool, error) {
	var (
		price    float64
		currency string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT price::float8, currency FROM provider_rates WHERE provider_id = $1
	`, providerID).Scan(&price, &currency)
	if db.IsNoRows(err) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	return price, currency, true, nil
}

func (r *RatesRepository) SetRate(ctx context.Context, providerID string, price float64, currency string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_rates (provider_id, price, currency)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id) DO UPDATE
		SET price = EXCLUDED.price, currency = EXCLUDED.currency, updated_at = now()
	`, providerID, price, currency)
	return err
}
