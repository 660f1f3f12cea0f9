package sessions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var sessionsTracer = otel.Tracer("clinic.internal.sessions")

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps sessions in conversation_sessions.
type PostgresStore struct {
	db querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("sessions: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(db querier) *PostgresStore {
	if db == nil {
		panic("sessions: querier required")
	}
	return &PostgresStore{db: db}
}

// Get returns the actor's session, creating an idle one in the same
// statement when none exists.
func (s *PostgresStore) Get(ctx context.Context, actorID string) (*Session, error) {
	ctx, span := sessionsTracer.Start(ctx, "sessions.get")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.actor_id", actorID))

	query := `
		INSERT INTO conversation_sessions (actor_id, step, draft, version, last_activity)
		VALUES ($1, 'idle', '{}'::jsonb, 0, now())
		ON CONFLICT (actor_id) DO UPDATE SET actor_id = EXCLUDED.actor_id
		RETURNING step, draft, version, last_activity, created_at, updated_at
	`
	sess := &Session{ActorID: actorID}
	var (
		step  string
		draft []byte
	)
	err := s.db.QueryRow(ctx, query, actorID).Scan(
		&step, &draft, &sess.Version, &sess.LastActivity, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	sess.Step = Step(step)
	if len(draft) > 0 {
		if err := json.Unmarshal(draft, &sess.Draft); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("sessions: decode draft: %w", err)
		}
	}
	return sess, nil
}

// Save writes the session if nobody saved it since it was read.
func (s *PostgresStore) Save(ctx context.Context, sess *Session) error {
	ctx, span := sessionsTracer.Start(ctx, "sessions.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.actor_id", sess.ActorID),
		attribute.String("clinic.step", string(sess.Step)),
		attribute.Int64("clinic.session_version", sess.Version),
	)

	draft, err := json.Marshal(sess.Draft)
	if err != nil {
		return fmt.Errorf("sessions: encode draft: %w", err)
	}
	query := `
		UPDATE conversation_sessions SET
			step = $2,
			draft = $3,
			version = version + 1,
			last_activity = $4,
			updated_at = now()
		WHERE actor_id = $1 AND version = $5
	`
	tag, err := s.db.Exec(ctx, query, sess.ActorID, string(sess.Step), draft, sess.LastActivity, sess.Version)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.RecordError(ErrVersionConflict)
		return ErrVersionConflict
	}
	sess.Version++
	return nil
}
