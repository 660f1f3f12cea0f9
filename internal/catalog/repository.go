// Package catalog reads the clinic's service list. Staff manage the rows
// elsewhere; the bot only reads them.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a service id does not resolve to an active row.
var ErrNotFound = errors.New("catalog: service not found")

// Service is a bookable clinic service.
type Service struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	PriceCents       int64  `json:"price_cents"`
	DownpaymentCents int64  `json:"downpayment_cents"`
	DurationMinutes  int    `json:"duration_minutes"`
	ImageURL         string `json:"image_url,omitempty"`
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the Postgres-backed catalog.
type Repository struct {
	db querier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(db querier) *Repository {
	if db == nil {
		panic("catalog: querier required")
	}
	return &Repository{db: db}
}

const serviceColumns = `id::text, name, description, price_cents, downpayment_cents, duration_minutes, image_url`

// Get returns an active service by id.
func (r *Repository) Get(ctx context.Context, id string) (*Service, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1 AND active`
	svc, err := scanService(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get service: %w", err)
	}
	return svc, nil
}

// List returns active services ordered by name.
func (r *Repository) List(ctx context.Context) ([]Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE active ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		out = append(out, *svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	return out, nil
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.PriceCents, &s.DownpaymentCents, &s.DurationMinutes, &s.ImageURL); err != nil {
		return nil, err
	}
	return &s, nil
}
