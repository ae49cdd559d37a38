package storage

import (
	"context"

	"github.com/pawmarket/petcare/libs/db"
)

// ActiveSlotConstraint arbitrates concurrent bookings: the losing insert fails
// with a unique violation on this index.
const ActiveSlotConstraint = "reservations_active_slot_uq"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS availability_entries (
	id TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL,
	date DATE NOT NULL,
	times TEXT[] NOT NULL,
	invalidated_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT availability_entries_times_nonempty CHECK (cardinality(times) > 0)
);

CREATE INDEX IF NOT EXISTS availability_entries_live_idx
	ON availability_entries (provider_id, date)
	WHERE invalidated_at IS NULL;

CREATE TABLE IF NOT EXISTS reservations (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	pet_id TEXT NOT NULL,
	service_id TEXT NOT NULL DEFAULT '',
	date DATE NOT NULL,
	time_slot TEXT NOT NULL CHECK (time_slot ~ '^([01][0-9]|2[0-3]):[0-5][0-9]$'),
	status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'completed', 'cancelled', 'no-show')),
	total_price NUMERIC(12, 2) NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'USD',
	notes TEXT NOT NULL DEFAULT '',
	cancellation_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS reservations_active_slot_uq
	ON reservations (provider_id, date, time_slot)
	WHERE status IN ('pending', 'confirmed');

CREATE INDEX IF NOT EXISTS reservations_provider_date_idx ON reservations (provider_id, date);
CREATE INDEX IF NOT EXISTS reservations_customer_idx ON reservations (customer_id, created_at DESC);

CREATE TABLE IF NOT EXISTS directory_providers (
	provider_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT true,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS directory_pets (
	pet_id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS provider_rates (
	provider_id TEXT PRIMARY KEY,
	price NUMERIC(12, 2) NOT NULL CHECK (price >= 0),
	currency TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox_events (
	id BIGSERIAL PRIMARY KEY,
	event_id TEXT NOT NULL UNIQUE,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	tracestate TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS outbox_events_unpublished_idx ON outbox_events (id) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS inbox_events (
	event_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate is idempotent; it is run by bookingctl and on startup when AUTO_MIGRATE is set.
func Migrate(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
