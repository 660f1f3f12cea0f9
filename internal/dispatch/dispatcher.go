// Package dispatch applies normalized webhook turns to conversation
// sessions, one turn per actor at a time.
package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/locks"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/outbound"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const (
	defaultConcurrency = 8
	defaultTurnTimeout = 20 * time.Second

	msgRetry = "⚠️ Sorry, we couldn't process that. Please try again."
)

// Turn is one inbound event reduced to a single token.
type Turn struct {
	ActorID   string
	MessageID string
	Kind      booking.Kind
	Token     string
	Timestamp time.Time
}

// Handler advances a session by one input.
type Handler interface {
	Handle(ctx context.Context, s *sessions.Session, in booking.Input) []outbound.Message
}

// Deduper reports whether a message id is seen for the first time.
type Deduper interface {
	FirstSeen(ctx context.Context, messageID string) bool
}

// Config wires a Dispatcher. Deduper and Metrics are optional.
type Config struct {
	Sessions    sessions.Store
	Machine     Handler
	Locker      locks.Locker
	Notifier    outbound.Notifier
	Deduper     Deduper
	Concurrency int
	TurnTimeout time.Duration
	Metrics     *metrics.BookingMetrics
	Logger      *logging.Logger
}

// Dispatcher serializes turns per actor and runs distinct actors in
// parallel.
type Dispatcher struct {
	sessions    sessions.Store
	machine     Handler
	locker      locks.Locker
	notifier    outbound.Notifier
	deduper     Deduper
	concurrency int
	turnTimeout time.Duration
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
}

func New(cfg Config) *Dispatcher {
	if cfg.Sessions == nil || cfg.Machine == nil || cfg.Locker == nil || cfg.Notifier == nil {
		panic("dispatch: sessions, machine, locker and notifier are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Dispatcher{
		sessions:    cfg.Sessions,
		machine:     cfg.Machine,
		locker:      cfg.Locker,
		notifier:    cfg.Notifier,
		deduper:     cfg.Deduper,
		concurrency: cfg.Concurrency,
		turnTimeout: cfg.TurnTimeout,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Dispatch processes a webhook batch. Turns for one actor run in batch
// order; different actors run concurrently.
func (d *Dispatcher) Dispatch(ctx context.Context, turns []Turn) error {
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, group := range groupByActor(turns) {
		g.Go(func() error {
			for _, t := range group {
				d.process(ctx, t)
			}
			return nil
		})
	}
	return g.Wait()
}

func groupByActor(turns []Turn) [][]Turn {
	index := make(map[string]int)
	var groups [][]Turn
	for _, t := range turns {
		i, ok := index[t.ActorID]
		if !ok {
			i = len(groups)
			index[t.ActorID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return groups
}

func (d *Dispatcher) process(ctx context.Context, t Turn) {
	if t.MessageID != "" && d.deduper != nil && !d.deduper.FirstSeen(ctx, t.MessageID) {
		d.logger.Debug("duplicate delivery skipped", "actor_id", t.ActorID, "message_id", t.MessageID)
		d.metrics.ObserveTurn("", "duplicate", 0)
		return
	}

	start := time.Now()
	replies, step, err := d.apply(ctx, t)
	result := "ok"
	if err != nil {
		switch {
		case errors.Is(err, sessions.ErrVersionConflict):
			result = "conflict"
		case errors.Is(err, locks.ErrNotAcquired):
			result = "lock_timeout"
		default:
			result = "error"
		}
		d.logger.Warn("turn dropped", "actor_id", t.ActorID, "message_id", t.MessageID, "result", result, "error", err)
		replies = []outbound.Message{outbound.Text(msgRetry)}
	}
	d.metrics.ObserveTurn(string(step), result, time.Since(start))

	for _, msg := range replies {
		d.notifier.Send(ctx, t.ActorID, msg)
	}
}

// apply runs the read-modify-write under the actor lock. The lock is
// released before any reply is sent.
func (d *Dispatcher) apply(ctx context.Context, t Turn) ([]outbound.Message, sessions.Step, error) {
	ctx, cancel := context.WithTimeout(ctx, d.turnTimeout)
	defer cancel()

	waitStart := time.Now()
	release, err := d.locker.Acquire(ctx, t.ActorID)
	d.metrics.ObserveLockWait(time.Since(waitStart))
	if err != nil {
		return nil, "", err
	}
	defer release()

	s, err := d.sessions.Get(ctx, t.ActorID)
	if err != nil {
		return nil, "", err
	}
	from := s.Step
	replies := d.machine.Handle(ctx, s, booking.Input{Token: t.Token, Kind: t.Kind})
	if err := d.sessions.Save(ctx, s); err != nil {
		return nil, from, err
	}
	if from != s.Step {
		d.logger.Debug("session advanced", "actor_id", t.ActorID, "from", string(from), "step", string(s.Step))
	}
	return replies, from, nil
}
