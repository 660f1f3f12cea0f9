package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errNotApplied means a guarded UPDATE matched no row.
var errNotApplied = errors.New("appointments: conditional update not applied")

const uniqueViolation = "23505"

const appointmentColumns = `id::text, actor_id, fullname, service_id, service_name, slot_date, slot_time,
	status, payment_status, payment_method, payment_proof, proof_archive_key, downpayment_cents,
	decline_reason, created_at, updated_at, cancelled_at, completed_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores appointments in Postgres. Slot exclusivity is enforced
// by the partial unique index appointments_active_slot_idx on
// (slot_date, slot_time) for active statuses.
type Repository struct {
	db querier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(db querier) *Repository {
	if db == nil {
		panic("appointments: querier required")
	}
	return &Repository{db: db}
}

// InsertIfSlotFree inserts a pending appointment. It fails with
// ErrSlotTaken when an active appointment already holds the slot.
func (r *Repository) InsertIfSlotFree(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := `
		INSERT INTO appointments (
			id, actor_id, fullname, service_id, service_name, slot_date, slot_time,
			status, payment_status, payment_method, payment_proof, proof_archive_key, downpayment_cents
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		a.ID, a.ActorID, a.Fullname, a.ServiceID, a.ServiceName, a.Date, a.Time,
		string(a.Status), string(a.PaymentStatus), a.PaymentMethod, a.PaymentProof, a.ProofArchiveKey, a.DownpaymentCents,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// Get loads one appointment.
func (r *Repository) Get(ctx context.Context, id string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	a, err := scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return a, nil
}

// FindByDateTime returns the active appointment holding a slot.
func (r *Repository) FindByDateTime(ctx context.Context, date, clock string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE slot_date = $1 AND slot_time = $2 AND status = ANY($3)`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, date, clock, statusStrings(ActiveStatuses)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: find by slot: %w", err)
	}
	return a, nil
}

// FindByActorAndStatusIn lists an actor's appointments in the given statuses,
// soonest first.
func (r *Repository) FindByActorAndStatusIn(ctx context.Context, actorID string, statuses []Status) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE actor_id = $1 AND status = ANY($2)
		ORDER BY slot_date, slot_time`
	return r.list(ctx, query, actorID, statusStrings(statuses))
}

// OccupiedTimes returns canonical times held by active appointments on date.
func (r *Repository) OccupiedTimes(ctx context.Context, date string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT slot_time FROM appointments WHERE slot_date = $1 AND status = ANY($2)`,
		date, statusStrings(ActiveStatuses))
	if err != nil {
		return nil, fmt.Errorf("appointments: occupied times: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("appointments: scan occupied time: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: occupied times: %w", err)
	}
	return out, nil
}

// Filter narrows the staff listing. Zero fields are ignored.
type Filter struct {
	Date     string
	From     string
	To       string
	ActorID  string
	Statuses []Status
	Limit    int
}

// List returns appointments matching f, ordered by slot.
func (r *Repository) List(ctx context.Context, f Filter) ([]Appointment, error) {
	q := psql.Select(appointmentColumns).From("appointments")
	if f.Date != "" {
		q = q.Where(sq.Eq{"slot_date": f.Date})
	}
	if f.From != "" {
		q = q.Where(sq.GtOrEq{"slot_date": f.From})
	}
	if f.To != "" {
		q = q.Where(sq.LtOrEq{"slot_date": f.To})
	}
	if f.ActorID != "" {
		q = q.Where(sq.Eq{"actor_id": f.ActorID})
	}
	if len(f.Statuses) > 0 {
		q = q.Where(sq.Eq{"status": statusStrings(f.Statuses)})
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query, args, err := q.OrderBy("slot_date", "slot_time").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("appointments: build list query: %w", err)
	}
	return r.list(ctx, query, args...)
}

// ApprovePayment marks the proof approved and confirms a pending booking.
// Rescheduled bookings keep their status.
func (r *Repository) ApprovePayment(ctx context.Context, id string) (*Appointment, error) {
	return r.guarded(ctx, `
		UPDATE appointments SET
			payment_status = 'approved',
			status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
			updated_at = now()
		WHERE id = $1 AND status = ANY($2) AND payment_status = 'pending'
		RETURNING `+appointmentColumns, id, statusStrings(ActiveStatuses))
}

// DeclinePayment rejects the proof and releases the slot.
func (r *Repository) DeclinePayment(ctx context.Context, id, reason string) (*Appointment, error) {
	return r.guarded(ctx, `
		UPDATE appointments SET
			payment_status = 'declined',
			status = 'declined',
			decline_reason = $3,
			updated_at = now()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+appointmentColumns, id, statusStrings(ActiveStatuses), reason)
}

// Cancel releases the slot of an active appointment.
func (r *Repository) Cancel(ctx context.Context, id string) (*Appointment, error) {
	return r.guarded(ctx, `
		UPDATE appointments SET
			status = 'cancelled',
			cancelled_at = now(),
			updated_at = now()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+appointmentColumns, id, statusStrings(ActiveStatuses))
}

// MarkDone completes an active appointment.
func (r *Repository) MarkDone(ctx context.Context, id string) (*Appointment, error) {
	return r.guarded(ctx, `
		UPDATE appointments SET
			status = 'done',
			completed_at = now(),
			updated_at = now()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+appointmentColumns, id, statusStrings(ActiveStatuses))
}

// RescheduleIfActive moves an active appointment to a new slot in one
// statement. The unique index rejects the move when the target is held by a
// different active appointment; the row's own slot never conflicts with it.
func (r *Repository) RescheduleIfActive(ctx context.Context, id, date, clock string) (*Appointment, error) {
	a, err := r.guarded(ctx, `
		UPDATE appointments SET
			slot_date = $3,
			slot_time = $4,
			status = 'rescheduled',
			updated_at = now()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+appointmentColumns, id, statusStrings(ActiveStatuses), date, clock)
	if err != nil && isUniqueViolation(err) {
		return nil, ErrSlotTaken
	}
	return a, err
}

func (r *Repository) guarded(ctx context.Context, query string, args ...any) (*Appointment, error) {
	if id, ok := args[0].(string); ok {
		if _, err := uuid.Parse(id); err != nil {
			return nil, errNotApplied
		}
	}
	a, err := scanAppointment(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNotApplied
		}
		if isUniqueViolation(err) {
			return nil, err
		}
		op := strings.Fields(query)[0]
		return nil, fmt.Errorf("appointments: %s: %w", strings.ToLower(op), err)
	}
	return a, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a             Appointment
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&a.ID, &a.ActorID, &a.Fullname, &a.ServiceID, &a.ServiceName, &a.Date, &a.Time,
		&status, &paymentStatus, &a.PaymentMethod, &a.PaymentProof, &a.ProofArchiveKey, &a.DownpaymentCents,
		&a.DeclineReason, &a.CreatedAt, &a.UpdatedAt, &a.CancelledAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(paymentStatus)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
