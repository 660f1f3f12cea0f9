package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/outbound"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var appointmentsTracer = otel.Tracer("clinic.internal.appointments")

// Store is the persistence the manager needs. Every occupancy change is a
// single conditional statement; guarded updates that match nothing return
// errNotApplied.
type Store interface {
	InsertIfSlotFree(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	FindByActorAndStatusIn(ctx context.Context, actorID string, statuses []Status) ([]Appointment, error)
	List(ctx context.Context, f Filter) ([]Appointment, error)
	ApprovePayment(ctx context.Context, id string) (*Appointment, error)
	DeclinePayment(ctx context.Context, id, reason string) (*Appointment, error)
	Cancel(ctx context.Context, id string) (*Appointment, error)
	MarkDone(ctx context.Context, id string) (*Appointment, error)
	RescheduleIfActive(ctx context.Context, id, date, clock string) (*Appointment, error)
}

// SessionReleaser returns an actor waiting on staff review to idle.
type SessionReleaser interface {
	ReleaseWaiting(ctx context.Context, actorID, appointmentID string) error
}

// ReserveRequest carries the snapshot taken from a completed conversation.
// ID is minted once per draft so a retried turn finds its own row instead of
// a conflict. An empty ID lets the store assign one.
type ReserveRequest struct {
	ID               string
	ActorID          string
	Fullname         string
	ServiceID        string
	ServiceName      string
	Date             string
	Time             string
	DownpaymentCents int64
	PaymentMethod    string
	PaymentProof     string
	ProofArchiveKey  string
}

// Manager applies lifecycle transitions and emits patient notifications.
type Manager struct {
	store    Store
	notifier outbound.Notifier
	releaser SessionReleaser
	allowed  map[slots.Clock]struct{}
	loc      *time.Location
	now      func() time.Time
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	inflight sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithSessionReleaser wires the hook run after staff resolve a payment.
func WithSessionReleaser(r SessionReleaser) Option {
	return func(m *Manager) { m.releaser = r }
}

// WithSlots restricts bookable times to the clinic's canonical slots.
func WithSlots(clocks []slots.Clock) Option {
	return func(m *Manager) {
		m.allowed = make(map[slots.Clock]struct{}, len(clocks))
		for _, c := range clocks {
			m.allowed[c] = struct{}{}
		}
	}
}

// WithLocation sets the clinic timezone used for "today".
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics records reservation and transition outcomes.
func WithMetrics(bm *metrics.BookingMetrics) Option {
	return func(m *Manager) { m.metrics = bm }
}

func NewManager(store Store, notifier outbound.Notifier, logger *logging.Logger, opts ...Option) *Manager {
	if store == nil {
		panic("appointments: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		store:    store,
		notifier: notifier,
		loc:      time.UTC,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reserve creates a pending appointment if the slot is free. created is false
// when req.ID already holds this actor's active booking of the same slot; the
// existing row is returned and nothing is written.
func (m *Manager) Reserve(ctx context.Context, req ReserveRequest) (a *Appointment, created bool, err error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.actor_id", req.ActorID),
		attribute.String("clinic.slot_date", req.Date),
		attribute.String("clinic.slot_time", req.Time),
	)

	date, clock, err := m.normalizeSlot(req.Date, req.Time)
	if err != nil {
		m.metrics.ObserveReservation("invalid")
		return nil, false, err
	}
	a = &Appointment{
		ID:               req.ID,
		ActorID:          req.ActorID,
		Fullname:         strings.TrimSpace(req.Fullname),
		ServiceID:        req.ServiceID,
		ServiceName:      req.ServiceName,
		Date:             date,
		Time:             clock,
		Status:           StatusPending,
		PaymentStatus:    PaymentPending,
		PaymentMethod:    req.PaymentMethod,
		PaymentProof:     req.PaymentProof,
		ProofArchiveKey:  req.ProofArchiveKey,
		DownpaymentCents: req.DownpaymentCents,
	}
	if err := m.store.InsertIfSlotFree(ctx, a); err != nil {
		if !errors.Is(err, ErrSlotTaken) {
			span.RecordError(err)
			m.metrics.ObserveReservation("error")
			return nil, false, err
		}
		prior, err := m.priorReservation(ctx, req.ID, a)
		if err != nil {
			span.RecordError(err)
			m.metrics.ObserveReservation("error")
			return nil, false, err
		}
		if prior != nil {
			m.metrics.ObserveReservation("replayed")
			m.logger.Info("reservation already recorded", "appointment_id", prior.ID, "actor_id", prior.ActorID)
			return prior, false, nil
		}
		m.metrics.ObserveReservation("slot_taken")
		m.logger.Info("slot already taken", "actor_id", req.ActorID, "date", date, "time", clock)
		return nil, false, ErrSlotTaken
	}
	m.metrics.ObserveReservation("ok")
	m.logger.Info("appointment reserved", "appointment_id", a.ID, "actor_id", a.ActorID, "date", a.Date, "time", a.Time)
	return a, true, nil
}

// priorReservation returns the row stored under id when it is want's own
// active booking of the same slot, or nil when the conflict is genuine.
func (m *Manager) priorReservation(ctx context.Context, id string, want *Appointment) (*Appointment, error) {
	if id == "" {
		return nil, nil
	}
	cur, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: reserve: load %s: %w", id, err)
	}
	if cur.Status.Terminal() || cur.ActorID != want.ActorID || cur.Date != want.Date || cur.Time != want.Time {
		return nil, nil
	}
	return cur, nil
}

// ApprovePayment approves the proof; a pending booking becomes confirmed.
func (m *Manager) ApprovePayment(ctx context.Context, id string) (*Appointment, error) {
	ctx, span := m.startTransition(ctx, "approve", id)
	defer span.End()

	applied, err := m.store.ApprovePayment(ctx, id)
	a, changed, err := m.resolve(ctx, "approve", id, applied, err, func(cur *Appointment) bool {
		return !cur.Status.Terminal() && cur.PaymentStatus == PaymentApproved
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if changed {
		m.release(ctx, a)
		m.notify(ctx, a.ActorID, outbound.Text(fmt.Sprintf(
			"✅ Payment approved! Your appointment is booked!\n\nService: %s\nDate: %s\nTime: %s\nPayment Method: %s",
			a.ServiceName, a.Date, a.DisplayTime(), a.PaymentMethod)))
	}
	return a, nil
}

// DeclinePayment rejects the proof and frees the slot.
func (m *Manager) DeclinePayment(ctx context.Context, id, reason string) (*Appointment, error) {
	ctx, span := m.startTransition(ctx, "decline", id)
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "No reason provided"
	}
	applied, err := m.store.DeclinePayment(ctx, id, reason)
	a, changed, err := m.resolve(ctx, "decline", id, applied, err, func(cur *Appointment) bool {
		return cur.Status == StatusDeclined
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if changed {
		m.release(ctx, a)
		m.notify(ctx, a.ActorID, outbound.Text(fmt.Sprintf(
			"❌ Your payment for %s on %s at %s has been declined.\nReason: %s\n\nPlease contact us or book again.",
			a.ServiceName, a.Date, a.DisplayTime(), a.DeclineReason)))
	}
	return a, nil
}

// Reschedule moves an active appointment to a free slot.
func (m *Manager) Reschedule(ctx context.Context, id, date, clock string, origin Origin) (*Appointment, error) {
	ctx, span := m.startTransition(ctx, "reschedule", id)
	defer span.End()
	span.SetAttributes(attribute.String("clinic.origin", origin.String()))

	date, clock, err := m.normalizeSlot(date, clock)
	if err != nil {
		return nil, err
	}
	applied, err := m.store.RescheduleIfActive(ctx, id, date, clock)
	if errors.Is(err, ErrSlotTaken) {
		m.metrics.ObserveTransition("reschedule", "slot_taken")
		return nil, ErrSlotTaken
	}
	a, _, err := m.resolve(ctx, "reschedule", id, applied, err, func(*Appointment) bool { return false })
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	m.logger.Info("appointment rescheduled", "appointment_id", a.ID, "date", a.Date, "time", a.Time, "origin", origin.String())
	if origin == OriginStaff {
		m.notify(ctx, a.ActorID, outbound.Text(fmt.Sprintf(
			"🔁 Your appointment has been rescheduled!\n\nService: %s\nNew Date: %s\nNew Time: %s",
			a.ServiceName, a.Date, a.DisplayTime())))
	}
	return a, nil
}

// Cancel frees the slot. Cancelling a cancelled appointment succeeds.
func (m *Manager) Cancel(ctx context.Context, id string, origin Origin) (*Appointment, error) {
	ctx, span := m.startTransition(ctx, "cancel", id)
	defer span.End()
	span.SetAttributes(attribute.String("clinic.origin", origin.String()))

	applied, err := m.store.Cancel(ctx, id)
	a, changed, err := m.resolve(ctx, "cancel", id, applied, err, func(cur *Appointment) bool {
		return cur.Status == StatusCancelled
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if changed && origin == OriginStaff {
		m.notify(ctx, a.ActorID, outbound.Text(fmt.Sprintf(
			"❌ Your appointment has been cancelled.\n\nService: %s\nDate: %s\nTime: %s\n\nTap Book Appointment if you'd like to book again 😊",
			a.ServiceName, a.Date, a.DisplayTime())))
	}
	return a, nil
}

// MarkDone completes an appointment. Marking a done appointment succeeds.
func (m *Manager) MarkDone(ctx context.Context, id string) (*Appointment, error) {
	ctx, span := m.startTransition(ctx, "done", id)
	defer span.End()

	applied, err := m.store.MarkDone(ctx, id)
	a, _, err := m.resolve(ctx, "done", id, applied, err, func(cur *Appointment) bool {
		return cur.Status == StatusDone
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return a, nil
}

// Get loads one appointment.
func (m *Manager) Get(ctx context.Context, id string) (*Appointment, error) {
	return m.store.Get(ctx, id)
}

// ListForActor returns the actor's active appointments.
func (m *Manager) ListForActor(ctx context.Context, actorID string) ([]Appointment, error) {
	return m.store.FindByActorAndStatusIn(ctx, actorID, ActiveStatuses)
}

// List returns appointments for the staff dashboard.
func (m *Manager) List(ctx context.Context, f Filter) ([]Appointment, error) {
	return m.store.List(ctx, f)
}

// Today is the clinic's current date, YYYY-MM-DD.
func (m *Manager) Today() string {
	return slots.Today(m.now(), m.loc).Format(slots.DateLayout)
}

// Wait blocks until in-flight notifications finish.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) startTransition(ctx context.Context, op, id string) (context.Context, trace.Span) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments."+op)
	span.SetAttributes(attribute.String("clinic.appointment_id", id))
	return ctx, span
}

// resolve classifies the result of a guarded update. When nothing matched,
// the row is re-read: a missing row is ErrNotFound, an already-applied
// change is an idempotent success, and any other terminal row is ErrTerminal.
func (m *Manager) resolve(ctx context.Context, op, id string, applied *Appointment, err error, idempotent func(*Appointment) bool) (*Appointment, bool, error) {
	if err == nil {
		m.metrics.ObserveTransition(op, "ok")
		return applied, true, nil
	}
	if !errors.Is(err, errNotApplied) {
		m.metrics.ObserveTransition(op, "error")
		return nil, false, err
	}

	cur, gerr := m.store.Get(ctx, id)
	if gerr != nil {
		if errors.Is(gerr, ErrNotFound) {
			m.metrics.ObserveTransition(op, "not_found")
			return nil, false, ErrNotFound
		}
		m.metrics.ObserveTransition(op, "error")
		return nil, false, gerr
	}
	if idempotent(cur) {
		m.metrics.ObserveTransition(op, "noop")
		return cur, false, nil
	}
	if cur.Status.Terminal() {
		m.metrics.ObserveTransition(op, "terminal")
		return nil, false, fmt.Errorf("%w: %s is %s", ErrTerminal, cur.ID, cur.Status)
	}
	m.metrics.ObserveTransition(op, "conflict")
	return nil, false, fmt.Errorf("appointments: %s %s: concurrent modification", op, id)
}

func (m *Manager) normalizeSlot(date, clock string) (string, string, error) {
	d, err := slots.ParseDate(date, m.loc)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	c, err := slots.ParseClock(clock)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	if len(m.allowed) > 0 {
		if _, ok := m.allowed[c]; !ok {
			return "", "", fmt.Errorf("%w: %s is not a clinic slot", ErrInvalidSlot, c.Display())
		}
	}
	return d.Format(slots.DateLayout), c.Canonical(), nil
}

func (m *Manager) release(ctx context.Context, a *Appointment) {
	if m.releaser == nil {
		return
	}
	if err := m.releaser.ReleaseWaiting(ctx, a.ActorID, a.ID); err != nil {
		m.logger.Warn("failed to release waiting session", "actor_id", a.ActorID, "appointment_id", a.ID, "error", err)
	}
}

// notify delivers in the background; failures are logged and never undo
// the transition.
func (m *Manager) notify(ctx context.Context, actorID string, msg outbound.Message) {
	if m.notifier == nil || actorID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if !m.notifier.Send(ctx, actorID, msg) {
			m.logger.Warn("patient notification not delivered", "actor_id", actorID)
		}
	}()
}
