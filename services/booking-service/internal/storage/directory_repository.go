package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pawmarket/petcare/libs/db"
)

// DirectoryRepository is the local projection of pets and providers owned by
// the profile service. It answers the ownership and existence checks of a booking.
type DirectoryRepository struct {
	pool *db.Pool
}

func NewDirectoryRepository(pool *db.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// PetOwner reports the owner of petID, or false when the pet is unknown.
func (r *DirectoryRepository) PetOwner(ctx context.Context, petID string) (string, bool, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT owner_id FROM directory_pets WHERE pet_id = $1`, petID).Scan(&owner)
	if db.IsNoRows(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return owner, true, nil
}

// ProviderExists is false for unknown and deactivated providers.
func (r *DirectoryRepository) ProviderExists(ctx context.Context, providerID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM directory_providers WHERE provider_id = $1 AND active)
	`, providerID).Scan(&ok)
	return ok, err
}

func (r *DirectoryRepository) UpsertPet(ctx context.Context, tx pgx.Tx, petID, ownerID, name string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO directory_pets (pet_id, owner_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (pet_id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id, name = EXCLUDED.name, updated_at = now()
	`, petID, ownerID, name)
	return err
}

func (r *DirectoryRepository) DeletePet(ctx context.Context, tx pgx.Tx, petID string) error {
	_, err := tx.Exec(ctx, `DELETE FROM directory_pets WHERE pet_id = $1`, petID)
	return err
}

func (r *DirectoryRepository) UpsertProvider(ctx context.Context, tx pgx.Tx, providerID, displayName string, active bool) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO directory_providers (provider_id, display_name, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, active = EXCLUDED.active, updated_at = now()
	`, providerID, displayName, active)
	return err
}
