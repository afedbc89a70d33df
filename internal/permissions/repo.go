package permissions

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads permission facts from the identity service database.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadFacts fetches the three fact sets for a principal.
func (r *Repository) LoadFacts(ctx context.Context, principalID string) (Facts, error) {
	perms, err := r.queryStrings(ctx, `SELECT name FROM principal_permissions WHERE principal_id = $1`, principalID)
	if err != nil {
		return Facts{}, err
	}
	owned, err := r.queryStrings(ctx, `SELECT resource_id FROM principal_resources WHERE principal_id = $1`, principalID)
	if err != nil {
		return Facts{}, err
	}
	entities, err := r.queryStrings(ctx, `SELECT entity_id FROM principal_entities WHERE principal_id = $1`, principalID)
	if err != nil {
		return Facts{}, err
	}
	return NewFacts(perms, owned, entities), nil
}

func (r *Repository) queryStrings(ctx context.Context, query, principalID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}
