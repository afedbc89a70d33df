package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payflow/payflow/internal/shared"
)

// Repository defines persistence operations for API keys.
type Repository interface {
	FindByKeyID(ctx context.Context, keyID string) (*APIKey, error)
	TouchLastUsed(ctx context.Context, keyID string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByKeyID fetches an API key record by its public id.
func (r *PGRepository) FindByKeyID(ctx context.Context, keyID string) (*APIKey, error) {
	const query = `
		SELECT id, secret_hash, principal_id, roles, is_active, created_at, last_used_at
		FROM api_keys
		WHERE id = $1`
	var key APIKey
	err := r.pool.QueryRow(ctx, query, keyID).Scan(
		&key.ID,
		&key.SecretHash,
		&key.PrincipalID,
		&key.Roles,
		&key.IsActive,
		&key.CreatedAt,
		&key.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

// TouchLastUsed stamps the key's last successful use.
func (r *PGRepository) TouchLastUsed(ctx context.Context, keyID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, keyID)
	return err
}

var _ Repository = (*PGRepository)(nil)
