package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// AddressRepository answers existence checks against the address catalog.
// Registration and profile edits only need to know that the referenced
// building exists; the catalog itself is managed elsewhere.
type AddressRepository struct {
	db *sqlx.DB
}

// NewAddressRepository creates a new instance of AddressRepository.
func NewAddressRepository(db *sqlx.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// BuildingExists reports whether a house with the given object guid exists.
func (r *AddressRepository) BuildingExists(ctx context.Context, objectGUID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM houses WHERE object_guid = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, objectGUID); err != nil {
		return false, fmt.Errorf("check building exists: %w", err)
	}
	return exists, nil
}
