package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pawmarket/petcare/libs/db"
	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/outbox"
)

type ReservationRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewReservationRepository(pool *db.Pool, outboxRepo *outbox.Repository) *ReservationRepository {
	return &ReservationRepository{pool: pool, outbox: outboxRepo}
}

const reservationColumns = `id, customer_id, provider_id, pet_id, service_id, date, time_slot, status,
	total_price::float8, currency, notes, COALESCE(cancellation_reason, ''), created_at, updated_at`

// Create inserts res as pending. The partial unique index on active slots is
// the arbitration point: a concurrent loser gets model.ErrActiveSlotTaken.
// The slot must still be declared when the insert runs; the shared advisory
// lock orders this check against AvailabilityRepository.Replace.
func (r *ReservationRepository) Create(ctx context.Context, res model.Reservation) (model.Reservation, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	var created model.Reservation
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock_shared(hashtext($1))`, availabilityLockKey(res.ProviderID, res.Date)); err != nil {
			return err
		}
		var declared bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM availability_entries
				WHERE provider_id = $1 AND date = $2 AND invalidated_at IS NULL AND $3 = ANY(times)
			)
		`, res.ProviderID, res.Date, res.TimeSlot).Scan(&declared); err != nil {
			return err
		}
		if !declared {
			return model.ErrSlotNotDeclared
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO reservations
				(id, customer_id, provider_id, pet_id, service_id, date, time_slot, status, total_price, currency, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING `+reservationColumns,
			res.ID, res.CustomerID, res.ProviderID, res.PetID, res.ServiceID, res.Date, res.TimeSlot,
			string(model.StatusPending), res.TotalPrice, res.Currency, res.Notes)
		var err error
		created, err = scanReservation(row)
		if err != nil {
			if db.ConstraintViolation(err, db.CodeUniqueViolation, ActiveSlotConstraint) {
				return model.ErrActiveSlotTaken
			}
			return err
		}
		return r.outbox.Insert(ctx, tx, outbox.ReservationRequested(created))
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return created, nil
}

func (r *ReservationRepository) Get(ctx context.Context, id string) (model.Reservation, error) {
	res, err := scanReservation(r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id))
	if db.IsNoRows(err) {
		return model.Reservation{}, model.ErrNotFound
	}
	return res, err
}

// FindConflicting returns the reservation on the slot whose status is in statuses.
func (r *ReservationRepository) FindConflicting(ctx context.Context, providerID string, date time.Time, timeSlot string, statuses []model.Status) (model.Reservation, bool, error) {
	res, err := scanReservation(r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE provider_id = $1 AND date = $2 AND time_slot = $3 AND status = ANY($4)
		ORDER BY created_at
		LIMIT 1
	`, providerID, date, timeSlot, statusStrings(statuses)))
	if db.IsNoRows(err) {
		return model.Reservation{}, false, nil
	}
	if err != nil {
		return model.Reservation{}, false, err
	}
	return res, true, nil
}

// ListByProvider filters by statuses when any are given.
func (r *ReservationRepository) ListByProvider(ctx context.Context, providerID string, statuses []model.Status) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE provider_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY date, time_slot
	`, providerID, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *ReservationRepository) ListByCustomer(ctx context.Context, customerID string, statuses []model.Status) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE customer_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY date, time_slot
	`, customerID, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ListByProviderAndDateRange returns reservations with start <= date <= end and status in statuses.
func (r *ReservationRepository) ListByProviderAndDateRange(ctx context.Context, providerID string, start, end time.Time, statuses []model.Status) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE provider_id = $1 AND date BETWEEN $2 AND $3 AND status = ANY($4)
		ORDER BY date, time_slot
	`, providerID, start, end, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// UpdateStatus moves the reservation from expected to next. It returns
// model.ErrNotFound for an unknown id and model.ErrStaleStatus when the
// current status is no longer expected.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id string, expected, next model.Status, reason string) (model.Reservation, error) {
	var updated model.Reservation
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		updated, err = scanReservation(tx.QueryRow(ctx, `
			UPDATE reservations
			SET status = $3,
				cancellation_reason = CASE WHEN $3 = 'cancelled' THEN NULLIF($4, '') ELSE cancellation_reason END,
				updated_at = now()
			WHERE id = $1 AND status = $2
			RETURNING `+reservationColumns,
			id, string(expected), string(next), reason))
		if db.IsNoRows(err) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return model.ErrNotFound
			}
			return model.ErrStaleStatus
		}
		if err != nil {
			if db.ConstraintViolation(err, db.CodeUniqueViolation, ActiveSlotConstraint) {
				return model.ErrActiveSlotTaken
			}
			return err
		}
		return r.outbox.Insert(ctx, tx, outbox.ReservationStatusChanged(updated, expected))
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return updated, nil
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanReservation(row pgx.Row) (model.Reservation, error) {
	var res model.Reservation
	var status string
	err := row.Scan(
		&res.ID,
		&res.CustomerID,
		&res.ProviderID,
		&res.PetID,
		&res.ServiceID,
		&res.Date,
		&res.TimeSlot,
		&status,
		&res.TotalPrice,
		&res.Currency,
		&res.Notes,
		&res.CancellationReason,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	res.Status = model.Status(status)
	return res, err
}

func collectReservations(rows pgx.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

