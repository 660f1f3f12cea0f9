// Package booking runs the per-actor conversation that turns Messenger
// turns into appointments.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	"github.com/wolfman30/clinic-booking/internal/clinic"
	"github.com/wolfman30/clinic-booking/internal/outbound"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const maxNameLength = 100

// Catalog looks up bookable services.
type Catalog interface {
	Get(ctx context.Context, id string) (*catalog.Service, error)
	List(ctx context.Context) ([]catalog.Service, error)
}

// Availability returns the free canonical slots on a date.
type Availability interface {
	Free(ctx context.Context, date string) ([]slots.Clock, error)
}

// Appointments is the lifecycle surface the conversation drives.
type Appointments interface {
	Reserve(ctx context.Context, req appointments.ReserveRequest) (a *appointments.Appointment, created bool, err error)
	Reschedule(ctx context.Context, id, date, clock string, origin appointments.Origin) (*appointments.Appointment, error)
	Cancel(ctx context.Context, id string, origin appointments.Origin) (*appointments.Appointment, error)
	Get(ctx context.Context, id string) (*appointments.Appointment, error)
	ListForActor(ctx context.Context, actorID string) ([]appointments.Appointment, error)
}

// ProofArchiver copies an image proof somewhere durable and returns its key.
type ProofArchiver interface {
	Archive(ctx context.Context, actorID, url string) (string, error)
}

// StaffAlerter tells staff a proof is waiting for review. It must not block.
type StaffAlerter interface {
	ProofSubmitted(ctx context.Context, a *appointments.Appointment)
}

// MachineConfig wires the machine's collaborators. Archiver and Alerts are
// optional.
type MachineConfig struct {
	Catalog      Catalog
	Availability Availability
	Appointments Appointments
	Profile      *clinic.Profile
	Archiver     ProofArchiver
	Alerts       StaffAlerter
	Now          func() time.Time
	Logger       *logging.Logger
}

// Machine applies one turn to a session and returns the replies. It never
// sends anything itself.
type Machine struct {
	catalog  Catalog
	avail    Availability
	appts    Appointments
	profile  *clinic.Profile
	archiver ProofArchiver
	alerts   StaffAlerter
	now      func() time.Time
	logger   *logging.Logger
}

func NewMachine(cfg MachineConfig) *Machine {
	if cfg.Catalog == nil || cfg.Availability == nil || cfg.Appointments == nil {
		panic("booking: catalog, availability and appointments are required")
	}
	if cfg.Profile == nil {
		cfg.Profile = clinic.DefaultProfile()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Machine{
		catalog:  cfg.Catalog,
		avail:    cfg.Availability,
		appts:    cfg.Appointments,
		profile:  cfg.Profile,
		archiver: cfg.Archiver,
		alerts:   cfg.Alerts,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// Handle mutates s for one turn and returns the replies in order.
func (m *Machine) Handle(ctx context.Context, s *sessions.Session, in Input) []outbound.Message {
	s.LastActivity = m.now()
	in.Token = strings.TrimSpace(in.Token)

	if in.Kind == KindPostback {
		if replies, ok := m.command(ctx, s, in.Token); ok {
			return replies
		}
	}

	switch s.Step {
	case sessions.StepChooseService:
		return m.chooseService(ctx, s, in.Token)
	case sessions.StepChooseDate, sessions.StepAwaitingManualDate, sessions.StepChooseNewDate:
		return m.chooseDate(ctx, s, in.Token)
	case sessions.StepChooseTime:
		return m.chooseTime(s, in.Token)
	case sessions.StepChooseNewTime:
		return m.chooseNewTime(ctx, s, in.Token)
	case sessions.StepAskName:
		return m.askName(ctx, s, in)
	case sessions.StepConfirmDownpayment:
		return m.confirmDownpayment(s, in.Token)
	case sessions.StepChoosePayment:
		return m.choosePayment(s, in.Token)
	case sessions.StepSendProof:
		return m.sendProof(ctx, s, in)
	case sessions.StepConfirmCancel:
		return m.confirmCancel(ctx, s, in.Token)
	case sessions.StepIdle, sessions.StepWaitingAdmin:
		return []outbound.Message{outbound.Text(msgMenuHint)}
	default:
		m.logger.Warn("unknown session step, resetting", "actor_id", s.ActorID, "step", string(s.Step))
		s.Reset()
		return []outbound.Message{outbound.Text(msgMenuHint)}
	}
}

// command handles the persistent menu and carousel postbacks, which are
// accepted at any step.
func (m *Machine) command(ctx context.Context, s *sessions.Session, token string) ([]outbound.Message, bool) {
	switch {
	case token == PayloadCancelYes || token == PayloadCancelNo:
		return nil, false
	case token == PayloadBook:
		s.Reset()
		replies, err := m.serviceCarousel(ctx)
		if err != nil {
			return replies, true
		}
		s.Step = sessions.StepChooseService
		return replies, true
	case token == PayloadViewServices:
		replies, _ := m.serviceCarousel(ctx)
		return replies, true
	case token == PayloadMyAppointments:
		return m.myAppointments(ctx, s), true
	case token == PayloadContact:
		return []outbound.Message{outbound.Text(m.profile.ContactText())}, true
	case strings.HasPrefix(token, PrefixService):
		s.Reset()
		s.Step = sessions.StepChooseService
		return m.chooseService(ctx, s, token), true
	case strings.HasPrefix(token, PrefixReschedule):
		a, replies := m.ownedActive(ctx, s, strings.TrimPrefix(token, PrefixReschedule))
		if a == nil {
			return replies, true
		}
		s.Reset()
		s.Step = sessions.StepChooseNewDate
		s.Draft.AppointmentID = a.ID
		s.Draft.ServiceName = a.ServiceName
		return []outbound.Message{outbound.WithChoices(
			fmt.Sprintf("🔄 Rescheduling your %s on %s at %s.\n\n📅 Please choose a new date:", a.ServiceName, a.Date, a.DisplayTime()),
			dateChoices()...)}, true
	case strings.HasPrefix(token, PrefixCancel):
		a, replies := m.ownedActive(ctx, s, strings.TrimPrefix(token, PrefixCancel))
		if a == nil {
			return replies, true
		}
		s.Reset()
		s.Step = sessions.StepConfirmCancel
		s.Draft.AppointmentID = a.ID
		s.Draft.ServiceName = a.ServiceName
		return []outbound.Message{cancelPrompt(a)}, true
	default:
		return []outbound.Message{outbound.Text(msgMenuHint)}, true
	}
}

// ownedActive loads an appointment the actor may change. On any failure the
// session is reset and the explanation returned.
func (m *Machine) ownedActive(ctx context.Context, s *sessions.Session, id string) (*appointments.Appointment, []outbound.Message) {
	a, err := m.appts.Get(ctx, id)
	switch {
	case err == nil && a.ActorID == s.ActorID && !a.Status.Terminal():
		return a, nil
	case err == nil, errors.Is(err, appointments.ErrNotFound):
		s.Reset()
		return nil, []outbound.Message{outbound.Text(msgAppointmentClosed)}
	default:
		m.logger.Error("load appointment failed", "actor_id", s.ActorID, "appointment_id", id, "error", err)
		return nil, []outbound.Message{outbound.Text(msgTryAgain)}
	}
}

func (m *Machine) serviceCarousel(ctx context.Context) ([]outbound.Message, error) {
	services, err := m.catalog.List(ctx)
	if err != nil {
		m.logger.Error("list services failed", "error", err)
		return []outbound.Message{outbound.Text(msgServicesUnavailable)}, err
	}
	if len(services) == 0 {
		return []outbound.Message{outbound.Text(msgNoServices)}, nil
	}
	cards := make([]outbound.Card, 0, len(services))
	for _, svc := range services {
		subtitle := fmt.Sprintf("%s • Downpayment %s", clinic.FormatPeso(svc.PriceCents), clinic.FormatPeso(svc.DownpaymentCents))
		if svc.Description != "" {
			subtitle = svc.Description + "\n" + subtitle
		}
		cards = append(cards, outbound.Card{
			Title:    svc.Name,
			Subtitle: subtitle,
			ImageURL: svc.ImageURL,
			Buttons:  []outbound.Choice{{Title: "Book", Payload: PrefixService + svc.ID}},
		})
	}
	return []outbound.Message{
		outbound.Text(msgChooseService),
		{Cards: cards},
	}, nil
}

func (m *Machine) myAppointments(ctx context.Context, s *sessions.Session) []outbound.Message {
	list, err := m.appts.ListForActor(ctx, s.ActorID)
	if err != nil {
		m.logger.Error("list actor appointments failed", "actor_id", s.ActorID, "error", err)
		return []outbound.Message{outbound.Text(msgTryAgain)}
	}
	if len(list) == 0 {
		return []outbound.Message{outbound.Text(msgNoAppointments)}
	}
	today := slots.Today(m.now(), m.profile.Location()).Format(slots.DateLayout)
	cards := make([]outbound.Card, 0, len(list))
	for _, a := range list {
		cards = append(cards, outbound.Card{
			Title:    a.ServiceName,
			Subtitle: fmt.Sprintf("📅 %s ⏰ %s\nStatus: %s", a.Date, a.DisplayTime(), appointments.Project(a, today).Label),
			Buttons: []outbound.Choice{
				{Title: "🔄 Reschedule", Payload: PrefixReschedule + a.ID},
				{Title: "❌ Cancel", Payload: PrefixCancel + a.ID},
			},
		})
	}
	return []outbound.Message{outbound.Text(msgYourAppointments), {Cards: cards}}
}

func (m *Machine) chooseService(ctx context.Context, s *sessions.Session, token string) []outbound.Message {
	id, ok := strings.CutPrefix(token, PrefixService)
	if !ok {
		replies, _ := m.serviceCarousel(ctx)
		return replies
	}
	svc, err := m.catalog.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			m.logger.Error("load service failed", "actor_id", s.ActorID, "service_id", id, "error", err)
		}
		replies, _ := m.serviceCarousel(ctx)
		return replies
	}
	s.Draft.ServiceID = svc.ID
	s.Draft.ServiceName = svc.Name
	s.Draft.DownpaymentCents = svc.DownpaymentCents
	s.Step = sessions.StepChooseDate
	return []outbound.Message{
		outbound.Text("✅ You selected: " + svc.Name),
		outbound.WithChoices(msgChooseDate, dateChoices()...),
	}
}

// chooseDate serves choose_date, awaiting_manual_date and choose_new_date.
func (m *Machine) chooseDate(ctx context.Context, s *sessions.Session, token string) []outbound.Message {
	rescheduling := s.Step == sessions.StepChooseNewDate
	retryStep := sessions.StepChooseDate
	if rescheduling {
		retryStep = sessions.StepChooseNewDate
	}

	if token == PickDate {
		if !rescheduling {
			s.Step = sessions.StepAwaitingManualDate
		}
		return []outbound.Message{outbound.Text(msgManualDate)}
	}

	date, err := slots.ValidateBookable(token, m.now(), m.profile.Location())
	switch {
	case errors.Is(err, slots.ErrPastDate):
		return []outbound.Message{outbound.WithChoices(msgPastDate, dateChoices()...)}
	case err != nil:
		return []outbound.Message{outbound.WithChoices(msgInvalidDate, dateChoices()...)}
	}

	free, err := m.avail.Free(ctx, date)
	if err != nil {
		m.logger.Warn("availability lookup failed", "actor_id", s.ActorID, "date", date, "error", err)
		s.Step = retryStep
		return []outbound.Message{outbound.WithChoices(msgAvailabilityDown, dateChoices()...)}
	}
	if len(free) == 0 {
		s.Step = retryStep
		return []outbound.Message{outbound.WithChoices(msgNoTimes, dateChoices()...)}
	}
	if len(free) > outbound.MaxQuickReplies {
		free = free[:outbound.MaxQuickReplies]
	}

	offered := make([]string, len(free))
	for i, c := range free {
		offered[i] = c.Canonical()
	}
	s.Draft.OfferedTimes = offered
	if rescheduling {
		s.Draft.NewDate = date
		s.Step = sessions.StepChooseNewTime
	} else {
		s.Draft.Date = date
		s.Draft.Time = ""
		s.Step = sessions.StepChooseTime
	}
	return []outbound.Message{timePrompt(msgChooseTime, offered)}
}

// offered returns the canonical form of token if it was offered.
func offered(s *sessions.Session, token string) (string, bool) {
	canonical, err := slots.ToCanonical(strings.TrimPrefix(token, PrefixTime))
	if err != nil {
		return "", false
	}
	for _, t := range s.Draft.OfferedTimes {
		if t == canonical {
			return canonical, true
		}
	}
	return "", false
}

func (m *Machine) chooseTime(s *sessions.Session, token string) []outbound.Message {
	canonical, ok := offered(s, token)
	if !ok {
		return []outbound.Message{timePrompt(msgPickOfferedTime, s.Draft.OfferedTimes)}
	}
	s.Draft.Time = canonical
	s.Step = sessions.StepAskName
	return []outbound.Message{outbound.Text(msgAskName)}
}

func (m *Machine) chooseNewTime(ctx context.Context, s *sessions.Session, token string) []outbound.Message {
	canonical, ok := offered(s, token)
	if !ok {
		return []outbound.Message{timePrompt(msgPickOfferedTime, s.Draft.OfferedTimes)}
	}

	a, err := m.appts.Reschedule(ctx, s.Draft.AppointmentID, s.Draft.NewDate, canonical, appointments.OriginActor)
	switch {
	case err == nil:
		s.Reset()
		return []outbound.Message{outbound.Text(fmt.Sprintf(
			"✅ Appointment Rescheduled!\n\n📅 New Date: %s\n⏰ New Time: %s", a.Date, a.DisplayTime()))}
	case errors.Is(err, appointments.ErrSlotTaken):
		s.Draft.OfferedTimes = nil
		s.Step = sessions.StepChooseNewDate
		return []outbound.Message{outbound.WithChoices(msgSlotTaken, dateChoices()...)}
	case errors.Is(err, appointments.ErrNotFound), errors.Is(err, appointments.ErrTerminal):
		s.Reset()
		return []outbound.Message{outbound.Text(msgAppointmentClosed)}
	default:
		m.logger.Error("reschedule failed", "actor_id", s.ActorID, "appointment_id", s.Draft.AppointmentID, "error", err)
		return []outbound.Message{timePrompt(msgTryAgain, s.Draft.OfferedTimes)}
	}
}

func (m *Machine) askName(ctx context.Context, s *sessions.Session, in Input) []outbound.Message {
	name := strings.Join(strings.Fields(in.Token), " ")
	if in.Kind == KindImage || name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return []outbound.Message{outbound.Text(msgAskNameAgain)}
	}

	svc, err := m.catalog.Get(ctx, s.Draft.ServiceID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.Reset()
		return []outbound.Message{outbound.Text(msgServiceGone)}
	case err != nil:
		m.logger.Error("refresh service failed", "actor_id", s.ActorID, "service_id", s.Draft.ServiceID, "error", err)
		return []outbound.Message{outbound.Text(msgTryAgain)}
	}

	s.Draft.Fullname = name
	s.Draft.ServiceName = svc.Name
	s.Draft.DownpaymentCents = svc.DownpaymentCents
	s.Step = sessions.StepConfirmDownpayment
	return []outbound.Message{downpaymentPrompt(s.Draft)}
}

func (m *Machine) confirmDownpayment(s *sessions.Session, token string) []outbound.Message {
	switch token {
	case PayloadDownpaymentYes:
		s.Step = sessions.StepChoosePayment
		return []outbound.Message{m.paymentPrompt()}
	case PayloadDownpaymentNo:
		s.Reset()
		return []outbound.Message{outbound.Text(msgDeclinedDownpayment)}
	default:
		return []outbound.Message{downpaymentPrompt(s.Draft)}
	}
}

func (m *Machine) choosePayment(s *sessions.Session, token string) []outbound.Message {
	code, ok := strings.CutPrefix(token, PrefixPayment)
	if !ok {
		return []outbound.Message{m.paymentPrompt()}
	}
	method, ok := m.profile.PaymentMethod(code)
	if !ok {
		return []outbound.Message{m.paymentPrompt()}
	}
	s.Draft.PaymentMethod = method.Code
	s.Draft.AppointmentID = uuid.NewString()
	s.Step = sessions.StepSendProof
	return []outbound.Message{
		outbound.Text(m.profile.PaymentInstructions(method.Code, s.Draft.DownpaymentCents)),
		outbound.Text(msgSendProof),
	}
}

func (m *Machine) sendProof(ctx context.Context, s *sessions.Session, in Input) []outbound.Message {
	if in.Token == "" {
		return []outbound.Message{outbound.Text(msgSendProof)}
	}
	var archiveKey string
	if in.Kind == KindImage && m.archiver != nil {
		key, err := m.archiver.Archive(ctx, s.ActorID, in.Token)
		if err != nil {
			m.logger.Warn("proof archive failed, keeping original url", "actor_id", s.ActorID, "error", err)
		} else {
			archiveKey = key
		}
	}

	d := s.Draft
	a, created, err := m.appts.Reserve(ctx, appointments.ReserveRequest{
		ID:               d.AppointmentID,
		ActorID:          s.ActorID,
		Fullname:         d.Fullname,
		ServiceID:        d.ServiceID,
		ServiceName:      d.ServiceName,
		Date:             d.Date,
		Time:             d.Time,
		DownpaymentCents: d.DownpaymentCents,
		PaymentMethod:    d.PaymentMethod,
		PaymentProof:     in.Token,
		ProofArchiveKey:  archiveKey,
	})
	switch {
	case err == nil && !created && a.PaymentStatus != appointments.PaymentPending:
		// Staff resolved the booking before the retried turn arrived.
		s.Reset()
		return []outbound.Message{outbound.Text(msgAlreadyReviewed)}
	case err == nil:
		s.Draft.PaymentProof = in.Token
		s.Draft.AppointmentID = a.ID
		s.Draft.OfferedTimes = nil
		s.Step = sessions.StepWaitingAdmin
		if created && m.alerts != nil {
			m.alerts.ProofSubmitted(ctx, a)
		}
		m.logger.Info("proof submitted", "actor_id", s.ActorID, "appointment_id", a.ID, "created", created)
		return []outbound.Message{outbound.Text(msgProofReceived)}
	case errors.Is(err, appointments.ErrSlotTaken), errors.Is(err, appointments.ErrInvalidSlot):
		s.Draft.Time = ""
		s.Draft.AppointmentID = ""
		s.Draft.OfferedTimes = nil
		s.Step = sessions.StepChooseDate
		return []outbound.Message{outbound.WithChoices(msgSlotTaken, dateChoices()...)}
	default:
		m.logger.Error("reserve failed", "actor_id", s.ActorID, "error", err)
		return []outbound.Message{outbound.Text(msgResendProof)}
	}
}

func (m *Machine) confirmCancel(ctx context.Context, s *sessions.Session, token string) []outbound.Message {
	switch token {
	case PayloadCancelYes:
		_, err := m.appts.Cancel(ctx, s.Draft.AppointmentID, appointments.OriginActor)
		switch {
		case err == nil:
			s.Reset()
			return []outbound.Message{outbound.Text(msgCancelled)}
		case errors.Is(err, appointments.ErrNotFound), errors.Is(err, appointments.ErrTerminal):
			s.Reset()
			return []outbound.Message{outbound.Text(msgAppointmentClosed)}
		default:
			m.logger.Error("cancel failed", "actor_id", s.ActorID, "appointment_id", s.Draft.AppointmentID, "error", err)
			return []outbound.Message{outbound.WithChoices(msgTryAgain, yesNo(PayloadCancelYes, PayloadCancelNo)...)}
		}
	case PayloadCancelNo:
		s.Reset()
		return []outbound.Message{outbound.Text(msgKeepAppointment)}
	default:
		return []outbound.Message{outbound.WithChoices(msgConfirmCancel, yesNo(PayloadCancelYes, PayloadCancelNo)...)}
	}
}

func (m *Machine) paymentPrompt() outbound.Message {
	choices := make([]outbound.Choice, 0, len(m.profile.PaymentMethods))
	for _, pm := range m.profile.PaymentMethods {
		choices = append(choices, outbound.Choice{Title: pm.Label, Payload: PrefixPayment + pm.Code})
	}
	return outbound.WithChoices(msgChoosePayment, choices...)
}
