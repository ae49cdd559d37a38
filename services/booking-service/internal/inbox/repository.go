package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pawmarket/petcare/libs/db"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record claims eventID inside tx. It reports false when the event was already
// processed; the caller then skips the handler and still commits.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		if db.ConstraintViolation(err, db.CodeUniqueViolation, "") {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
