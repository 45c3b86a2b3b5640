package reviewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Profile mirrors the reviewers table.
type Profile struct {
	ID        string
	Name      string
	Kind      string
	Tier      int
	Active    bool
	CreatedAt time.Time
}

// Repository implements Directory against the reviewers table, picking the
// least-loaded active reviewer at the requested tier.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) NextReviewer(ctx context.Context, kind string, level int) (string, error) {
	const query = `
		SELECT rv.id::text
		FROM reviewers rv
		LEFT JOIN queue_items qi
		  ON qi.assigned_reviewer_id = rv.id
		 AND qi.status NOT IN ('resolved', 'overturned')
		WHERE rv.kind = $1::queue_kind
		  AND rv.tier = $2
		  AND rv.active
		GROUP BY rv.id
		ORDER BY COUNT(qi.id), rv.created_at
		LIMIT 1`

	var id string
	if err := r.pool.QueryRow(ctx, query, kind, level).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoReviewer
		}
		return "", fmt.Errorf("reviewer: next reviewer: %w", err)
	}
	return id, nil
}

// GetByID returns a single reviewer profile.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	const query = `
		SELECT id::text, name, kind::text, tier, active, created_at
		FROM reviewers
		WHERE id = $1`

	var p Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Kind, &p.Tier, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("reviewer: %s not found", id)
		}
		return Profile{}, fmt.Errorf("reviewer: get: %w", err)
	}
	return p, nil
}
