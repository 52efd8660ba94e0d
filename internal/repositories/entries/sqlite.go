package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, e *models.Entry) error {
	query := `INSERT INTO entries (id, owner_id, site_label, login_identifier,
			secret_ciphertext, note_ciphertext, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.OwnerID, e.SiteLabel, e.LoginIdentifier, e.SecretCiphertext, e.NoteCiphertext,
		dbx.UnixNano(e.CreatedAt), dbx.UnixNano(e.ModifiedAt))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	query := `SELECT id, owner_id, site_label, login_identifier, secret_ciphertext, note_ciphertext,
			created_at, modified_at
		FROM entries WHERE id = ?`

	var (
		e                 models.Entry
		created, modified int64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.OwnerID, &e.SiteLabel, &e.LoginIdentifier,
		&e.SecretCiphertext, &e.NoteCiphertext, &created, &modified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	e.CreatedAt = dbx.FromUnixNano(created)
	e.ModifiedAt = dbx.FromUnixNano(modified)
	return &e, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Entry, error) {
	query := `SELECT id, owner_id, site_label, login_identifier, note_ciphertext IS NOT NULL,
			created_at, modified_at
		FROM entries WHERE owner_id = ?
		ORDER BY site_label, id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []models.Entry
	for rows.Next() {
		var (
			e                 models.Entry
			hasNote           bool
			created, modified int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.SiteLabel, &e.LoginIdentifier, &hasNote, &created, &modified); err != nil {
			return nil, err
		}
		if hasNote {
			// marker only; the note itself is never read by listings
			e.NoteCiphertext = []byte{}
		}
		e.CreatedAt = dbx.FromUnixNano(created)
		e.ModifiedAt = dbx.FromUnixNano(modified)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, e *models.Entry) error {
	query := `UPDATE entries SET site_label = ?, login_identifier = ?,
			secret_ciphertext = ?, note_ciphertext = ?, modified_at = ?
		WHERE id = ? AND owner_id = ?`
	res, err := r.db.ExecContext(ctx, query,
		e.SiteLabel, e.LoginIdentifier, e.SecretCiphertext, e.NoteCiphertext, dbx.UnixNano(e.ModifiedAt),
		e.ID, e.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string, ownerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}
