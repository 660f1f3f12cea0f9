// Package blocks stores staff-entered closures: hour ranges on a date in
// which no appointments may be booked.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking/internal/slots"
)

// ErrNotFound is returned when deleting an unknown block.
var ErrNotFound = errors.New("blocks: block not found")

// Range closes [StartHour, EndHour) on Date.
type Range struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	StartHour int       `json:"start_hour"`
	EndHour   int       `json:"end_hour"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists blocked ranges in Postgres.
type Repository struct {
	db querier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("blocks: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(db querier) *Repository {
	if db == nil {
		panic("blocks: querier required")
	}
	return &Repository{db: db}
}

// Create inserts a block and returns it with its id and timestamp.
func (r *Repository) Create(ctx context.Context, date string, startHour, endHour int, reason string) (*Range, error) {
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return nil, fmt.Errorf("blocks: invalid range %d-%d", startHour, endHour)
	}
	query := `
		INSERT INTO blocked_ranges (id, block_date, start_hour, end_hour, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	b := &Range{ID: uuid.NewString(), Date: date, StartHour: startHour, EndHour: endHour, Reason: reason}
	if err := r.db.QueryRow(ctx, query, b.ID, date, startHour, endHour, reason).Scan(&b.CreatedAt); err != nil {
		return nil, fmt.Errorf("blocks: create: %w", err)
	}
	return b, nil
}

// Delete removes a block by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	ct, err := r.db.Exec(ctx, `DELETE FROM blocked_ranges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("blocks: delete: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByDate returns the blocks on one date ordered by start hour.
func (r *Repository) ListByDate(ctx context.Context, date string) ([]Range, error) {
	return r.list(ctx, `
		SELECT id::text, block_date, start_hour, end_hour, reason, created_at
		FROM blocked_ranges WHERE block_date = $1
		ORDER BY start_hour`, date)
}

// ListFrom returns blocks on or after date, for the staff calendar.
func (r *Repository) ListFrom(ctx context.Context, date string) ([]Range, error) {
	return r.list(ctx, `
		SELECT id::text, block_date, start_hour, end_hour, reason, created_at
		FROM blocked_ranges WHERE block_date >= $1
		ORDER BY block_date, start_hour`, date)
}

// BlockedHours adapts ListByDate for the availability calculator.
func (r *Repository) BlockedHours(ctx context.Context, date string) ([]slots.HourRange, error) {
	blocks, err := r.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	ranges := make([]slots.HourRange, len(blocks))
	for i, b := range blocks {
		ranges[i] = slots.HourRange{Start: b.StartHour, End: b.EndHour}
	}
	return ranges, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Range, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("blocks: list: %w", err)
	}
	defer rows.Close()

	var out []Range
	for rows.Next() {
		var b Range
		if err := rows.Scan(&b.ID, &b.Date, &b.StartHour, &b.EndHour, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("blocks: scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("blocks: list: %w", err)
	}
	return out, nil
}
