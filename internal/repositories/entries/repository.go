// Package entries persists credential entries.
//
// Every statement that modifies a row filters on both the entry id and the
// owner id, so a caller holding the wrong owner id cannot change or remove
// another account's data even if it skipped the service-level checks.
// Listings never select the ciphertext columns.
package entries

import (
	"context"

	"github.com/dmitrijs2005/keyvault/internal/models"
)

type Repository interface {
	Create(ctx context.Context, e *models.Entry) error
	// GetByID returns the full row, ciphertexts included, or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Entry, error)
	// ListByOwner returns the owner's entries without ciphertexts, ordered
	// by site label.
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Entry, error)
	// Update replaces labels and ciphertexts of the row matching e.ID and
	// e.OwnerID, returning common.ErrNotFound if there is none.
	Update(ctx context.Context, e *models.Entry) error
	// Delete reports whether a row matching id and ownerID was removed.
	Delete(ctx context.Context, id string, ownerID int64) (bool, error)
}
