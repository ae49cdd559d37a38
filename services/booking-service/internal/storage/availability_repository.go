package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pawmarket/petcare/libs/db"
	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/outbox"
	"github.com/pawmarket/petcare/services/booking-service/internal/slots"
)

type AvailabilityRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAvailabilityRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool, outbox: outboxRepo}
}

const availabilityColumns = `id, provider_id, date, times, invalidated_at, created_at, updated_at`

// Publish appends a new entry. Existing entries for the date are untouched.
func (r *AvailabilityRepository) Publish(ctx context.Context, providerID string, date time.Time, times []string) (model.AvailabilityEntry, error) {
	var entry model.AvailabilityEntry
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		entry, err = r.insert(ctx, tx, providerID, date, times)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, outbox.AvailabilityPublished(entry, false))
	})
	return entry, err
}

// Replace invalidates the provider's live entries for the date and appends
// the new one in the same transaction.
func (r *AvailabilityRepository) Replace(ctx context.Context, providerID string, date time.Time, times []string) (model.AvailabilityEntry, error) {
	var entry model.AvailabilityEntry
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		// Exclusive against other replaces and against reservation inserts,
		// which take the shared form of the same lock.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, availabilityLockKey(providerID, date)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE availability_entries
			SET invalidated_at = now(), updated_at = now()
			WHERE provider_id = $1 AND date = $2 AND invalidated_at IS NULL
		`, providerID, date); err != nil {
			return err
		}
		var err error
		entry, err = r.insert(ctx, tx, providerID, date, times)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, outbox.AvailabilityPublished(entry, true))
	})
	return entry, err
}

func (r *AvailabilityRepository) insert(ctx context.Context, tx pgx.Tx, providerID string, date time.Time, times []string) (model.AvailabilityEntry, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO availability_entries (id, provider_id, date, times)
		VALUES ($1, $2, $3, $4)
		RETURNING `+availabilityColumns,
		uuid.NewString(), providerID, date, times)
	return scanEntry(row)
}

// ListByProvider returns live entries, oldest first.
func (r *AvailabilityRepository) ListByProvider(ctx context.Context, providerID string) ([]model.AvailabilityEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability_entries
		WHERE provider_id = $1 AND invalidated_at IS NULL
		ORDER BY date, created_at
	`, providerID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ListByProviderAndDateRange returns live entries with start <= date <= end.
func (r *AvailabilityRepository) ListByProviderAndDateRange(ctx context.Context, providerID string, start, end time.Time) ([]model.AvailabilityEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability_entries
		WHERE provider_id = $1 AND date BETWEEN $2 AND $3 AND invalidated_at IS NULL
		ORDER BY date, created_at
	`, providerID, start, end)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func scanEntry(row pgx.Row) (model.AvailabilityEntry, error) {
	var e model.AvailabilityEntry
	err := row.Scan(&e.ID, &e.ProviderID, &e.Date, &e.Times, &e.InvalidatedAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func collectEntries(rows pgx.Rows) ([]model.AvailabilityEntry, error) {
	defer rows.Close()
	var out []model.AvailabilityEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func availabilityLockKey(providerID string, date time.Time) string {
	return providerID + "/" + slots.DateKey(date)
}
