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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *models.Entry) error {
	query :=
		`INSERT INTO entries (id, owner_id, site_label, login_identifier,
			secret_ciphertext, note_ciphertext, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.OwnerID, e.SiteLabel, e.LoginIdentifier, e.SecretCiphertext, e.NoteCiphertext,
		e.CreatedAt, e.ModifiedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	query :=
		`SELECT id, owner_id, site_label, login_identifier, secret_ciphertext, note_ciphertext,
			created_at, modified_at
		 FROM entries WHERE id = $1`

	var e models.Entry
	err := r.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.OwnerID, &e.SiteLabel, &e.LoginIdentifier,
		&e.SecretCiphertext, &e.NoteCiphertext, &e.CreatedAt, &e.ModifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.ModifiedAt = e.ModifiedAt.UTC()
	return &e, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Entry, error) {
	query :=
		`SELECT id, owner_id, site_label, login_identifier, note_ciphertext IS NOT NULL,
			created_at, modified_at
		 FROM entries WHERE owner_id = $1
		 ORDER BY site_label, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Entry
	for rows.Next() {
		var (
			e       models.Entry
			hasNote bool
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.SiteLabel, &e.LoginIdentifier, &hasNote,
			&e.CreatedAt, &e.ModifiedAt); err != nil {
			return nil, err
		}
		if hasNote {
			e.NoteCiphertext = []byte{}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		e.ModifiedAt = e.ModifiedAt.UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, e *models.Entry) error {
	query :=
		`UPDATE entries SET site_label = $1, login_identifier = $2,
			secret_ciphertext = $3, note_ciphertext = $4, modified_at = $5
		 WHERE id = $6 AND owner_id = $7`

	res, err := r.db.ExecContext(ctx, query,
		e.SiteLabel, e.LoginIdentifier, e.SecretCiphertext, e.NoteCiphertext, e.ModifiedAt,
		e.ID, e.OwnerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string, ownerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
