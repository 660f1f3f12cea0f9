package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	"github.com/wolfman30/clinic-booking/internal/clinic"
	"github.com/wolfman30/clinic-booking/internal/outbound"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/internal/slots"
)

const extractionID = "0d6f9a9e-2b7c-4c1e-8d3f-6a1b2c3d4e5f"

type fakeCatalog struct {
	services map[string]catalog.Service
	err      error
}

func (f *fakeCatalog) Get(_ context.Context, id string) (*catalog.Service, error) {
	if f.err != nil {
		return nil, f.err
	}
	svc, ok := f.services[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &svc, nil
}

func (f *fakeCatalog) List(_ context.Context) ([]catalog.Service, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]catalog.Service, 0, len(f.services))
	for _, svc := range f.services {
		out = append(out, svc)
	}
	return out, nil
}

type fakeAvailability struct {
	free map[string][]slots.Clock
	err  error
}

func (f *fakeAvailability) Free(_ context.Context, date string) ([]slots.Clock, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.free[date], nil
}

type fakeAppointments struct {
	mu          sync.Mutex
	reserved    []appointments.ReserveRequest
	reserveErr  error
	rescheduled []string
	rescheduErr error
	cancelled   []string
	cancelErr   error
	byID        map[string]*appointments.Appointment
}

func (f *fakeAppointments) Reserve(_ context.Context, req appointments.ReserveRequest) (*appointments.Appointment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return nil, false, f.reserveErr
	}
	if prior, ok := f.byID[req.ID]; ok {
		cp := *prior
		return &cp, false, nil
	}
	f.reserved = append(f.reserved, req)
	id := req.ID
	if id == "" {
		id = "appt-1"
	}
	a := &appointments.Appointment{
		ID: id, ActorID: req.ActorID, ServiceName: req.ServiceName, Date: req.Date, Time: req.Time,
		Status: appointments.StatusPending, PaymentStatus: appointments.PaymentPending,
	}
	f.byID[id] = a
	cp := *a
	return &cp, true, nil
}

func (f *fakeAppointments) Reschedule(_ context.Context, id, date, clock string, origin appointments.Origin) (*appointments.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rescheduErr != nil {
		return nil, f.rescheduErr
	}
	f.rescheduled = append(f.rescheduled, id+"@"+date+"T"+clock+"/"+origin.String())
	return &appointments.Appointment{ID: id, Date: date, Time: clock}, nil
}

func (f *fakeAppointments) Cancel(_ context.Context, id string, origin appointments.Origin) (*appointments.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = append(f.cancelled, id+"/"+origin.String())
	return &appointments.Appointment{ID: id, Status: appointments.StatusCancelled}, nil
}

func (f *fakeAppointments) Get(_ context.Context, id string) (*appointments.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAppointments) ListForActor(_ context.Context, actorID string) ([]appointments.Appointment, error) {
	var out []appointments.Appointment
	for _, a := range f.byID {
		if a.ActorID == actorID && !a.Status.Terminal() {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeArchiver struct {
	key string
	err error
}

func (f *fakeArchiver) Archive(_ context.Context, actorID, url string) (string, error) {
	return f.key, f.err
}

type fakeAlerts struct{ got []string }

func (f *fakeAlerts) ProofSubmitted(_ context.Context, a *appointments.Appointment) {
	f.got = append(f.got, a.ID)
}

type harness struct {
	catalog *fakeCatalog
	avail   *fakeAvailability
	appts   *fakeAppointments
	alerts  *fakeAlerts
	archive *fakeArchiver
	machine *Machine
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	profile := clinic.DefaultProfile()
	h := &harness{
		catalog: &fakeCatalog{services: map[string]catalog.Service{
			extractionID: {ID: extractionID, Name: "Tooth Extraction", PriceCents: 150000, DownpaymentCents: 30000},
		}},
		avail: &fakeAvailability{free: map[string][]slots.Clock{
			"2025-12-24": {slots.MustClock(9, 0), slots.MustClock(10, 0), slots.MustClock(14, 0)},
		}},
		appts:   &fakeAppointments{byID: map[string]*appointments.Appointment{}},
		alerts:  &fakeAlerts{},
		archive: &fakeArchiver{key: "proofs/psid-1/1.jpg"},
		now:     time.Date(2025, 12, 20, 9, 0, 0, 0, profile.Location()),
	}
	h.machine = NewMachine(MachineConfig{
		Catalog:      h.catalog,
		Availability: h.avail,
		Appointments: h.appts,
		Profile:      profile,
		Archiver:     h.archive,
		Alerts:       h.alerts,
		Now:          func() time.Time { return h.now },
	})
	return h
}

func session(step sessions.Step, d sessions.Draft) *sessions.Session {
	return &sessions.Session{ActorID: "psid-1", Step: step, Draft: d}
}

func text(replies []outbound.Message) string {
	parts := make([]string, 0, len(replies))
	for _, r := range replies {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n")
}

func (h *harness) turn(s *sessions.Session, kind Kind, token string) []outbound.Message {
	return h.machine.Handle(context.Background(), s, Input{Token: token, Kind: kind})
}

func TestChooseServiceRejectsAnythingElse(t *testing.T) {
	h := newHarness(t)
	for _, token := range []string{"hello", "SERVICE_", "SERVICE_missing", "DP_YES", ""} {
		s := session(sessions.StepChooseService, sessions.Draft{})
		replies := h.turn(s, KindText, token)
		assert.Equal(t, sessions.StepChooseService, s.Step, "token %q", token)
		require.Len(t, replies, 2)
		require.Len(t, replies[1].Cards, 1)
		assert.Equal(t, PrefixService+extractionID, replies[1].Cards[0].Buttons[0].Payload)
	}
}

func TestBookAppointmentFromAnyStep(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepAskName, sessions.Draft{ServiceID: "old", Date: "2025-12-24"})
	replies := h.turn(s, KindPostback, PayloadBook)
	assert.Equal(t, sessions.StepChooseService, s.Step)
	assert.Empty(t, s.Draft.ServiceID)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[1].Cards[0].Subtitle, "₱1,500.00")
}

func TestBookAppointmentCatalogDown(t *testing.T) {
	h := newHarness(t)
	h.catalog.err = errors.New("db down")
	s := session(sessions.StepIdle, sessions.Draft{})
	replies := h.turn(s, KindPostback, PayloadBook)
	assert.Equal(t, sessions.StepIdle, s.Step)
	assert.Equal(t, msgServicesUnavailable, text(replies))
}

func TestSelectServiceSnapshotsAndOffersDates(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepChooseService, sessions.Draft{})
	replies := h.turn(s, KindPostback, PrefixService+extractionID)
	assert.Equal(t, sessions.StepChooseDate, s.Step)
	assert.Equal(t, "Tooth Extraction", s.Draft.ServiceName)
	assert.Equal(t, int64(30000), s.Draft.DownpaymentCents)
	require.Len(t, replies, 2)
	assert.Equal(t, "✅ You selected: Tooth Extraction", replies[0].Text)
	assert.Len(t, replies[1].QuickReplies, 3)
}

func TestChooseDate(t *testing.T) {
	cases := []struct {
		name      string
		step      sessions.Step
		token     string
		availErr  error
		wantStep  sessions.Step
		wantText  string
		wantTimes []string
	}{
		{"pick sentinel", sessions.StepChooseDate, PickDate, nil, sessions.StepAwaitingManualDate, msgManualDate, nil},
		{"malformed", sessions.StepChooseDate, "Dec 24", nil, sessions.StepChooseDate, msgInvalidDate, nil},
		{"malformed manual", sessions.StepAwaitingManualDate, "2025-13-01", nil, sessions.StepAwaitingManualDate, msgInvalidDate, nil},
		{"past", sessions.StepChooseDate, "2025-12-19", nil, sessions.StepChooseDate, msgPastDate, nil},
		{"no times", sessions.StepAwaitingManualDate, "2025-12-25", nil, sessions.StepChooseDate, msgNoTimes, nil},
		{"availability down", sessions.StepAwaitingManualDate, "2025-12-24", errors.New("timeout"), sessions.StepChooseDate, msgAvailabilityDown, nil},
		{"offers times", sessions.StepChooseDate, "2025-12-24", nil, sessions.StepChooseTime, msgChooseTime, []string{"09:00", "10:00", "14:00"}},
		{"today allowed", sessions.StepChooseDate, "2025-12-20", nil, sessions.StepChooseDate, msgNoTimes, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.avail.err = tc.availErr
			s := session(tc.step, sessions.Draft{ServiceID: extractionID})
			replies := h.turn(s, KindText, tc.token)
			assert.Equal(t, tc.wantStep, s.Step)
			assert.Equal(t, tc.wantText, text(replies))
			assert.Equal(t, tc.wantTimes, s.Draft.OfferedTimes)
		})
	}
}

func TestTimeRepliesUseDisplayLabels(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepChooseDate, sessions.Draft{})
	replies := h.turn(s, KindQuickReply, "2025-12-24")
	require.Len(t, replies, 1)
	require.Len(t, replies[0].QuickReplies, 3)
	assert.Equal(t, "2:00 PM", replies[0].QuickReplies[2].Title)
	assert.Equal(t, "TIME_2:00 PM", replies[0].QuickReplies[2].Payload)
}

func TestOfferedTimesCappedAtPlatformLimit(t *testing.T) {
	h := newHarness(t)
	var many []slots.Clock
	for i := 0; i < 20; i++ {
		many = append(many, slots.MustClock(i%24, (i/24)*30))
	}
	h.avail.free["2025-12-26"] = many
	s := session(sessions.StepChooseDate, sessions.Draft{})
	replies := h.turn(s, KindText, "2025-12-26")
	assert.Len(t, s.Draft.OfferedTimes, outbound.MaxQuickReplies)
	assert.Len(t, replies[0].QuickReplies, outbound.MaxQuickReplies)
}

func TestChooseTimeOnlyAcceptsOffered(t *testing.T) {
	h := newHarness(t)
	draft := sessions.Draft{Date: "2025-12-24", OfferedTimes: []string{"09:00", "14:00"}}

	s := session(sessions.StepChooseTime, draft)
	replies := h.turn(s, KindText, "10:00 AM")
	assert.Equal(t, sessions.StepChooseTime, s.Step)
	assert.Len(t, replies[0].QuickReplies, 2)

	for _, token := range []string{"2:00 PM", "14:00", "TIME_2:00 PM"} {
		s = session(sessions.StepChooseTime, draft)
		replies = h.turn(s, KindQuickReply, token)
		assert.Equal(t, sessions.StepAskName, s.Step, token)
		assert.Equal(t, "14:00", s.Draft.Time)
		assert.Equal(t, msgAskName, text(replies))
	}
}

func TestAskNameMariaCruz(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepAskName, sessions.Draft{
		ServiceID: extractionID, ServiceName: "Tooth Extraction", Date: "2025-12-24", Time: "10:00",
	})
	replies := h.turn(s, KindText, "  Maria   Cruz ")
	assert.Equal(t, sessions.StepConfirmDownpayment, s.Step)
	assert.Equal(t, "Maria Cruz", s.Draft.Fullname)
	assert.Equal(t, int64(30000), s.Draft.DownpaymentCents)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Hi Maria Cruz!")
	assert.Contains(t, replies[0].Text, "₱300.00")
	assert.Equal(t, []outbound.Choice{{Title: "Yes", Payload: "DP_YES"}, {Title: "No", Payload: "DP_NO"}}, replies[0].QuickReplies)
	assert.Equal(t, h.now, s.LastActivity)
}

func TestAskNameRejectsAndResets(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepAskName, sessions.Draft{ServiceID: extractionID})
	h.turn(s, KindImage, "https://cdn/photo.jpg")
	assert.Equal(t, sessions.StepAskName, s.Step)
	h.turn(s, KindText, strings.Repeat("a", 101))
	assert.Equal(t, sessions.StepAskName, s.Step)

	s = session(sessions.StepAskName, sessions.Draft{ServiceID: "gone"})
	replies := h.turn(s, KindText, "Maria Cruz")
	assert.Equal(t, sessions.StepIdle, s.Step)
	assert.Equal(t, msgServiceGone, text(replies))
}

func TestConfirmDownpayment(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepConfirmDownpayment, sessions.Draft{Fullname: "Maria Cruz", DownpaymentCents: 30000})
	h.turn(s, KindText, "maybe")
	assert.Equal(t, sessions.StepConfirmDownpayment, s.Step)

	replies := h.turn(s, KindQuickReply, PayloadDownpaymentYes)
	assert.Equal(t, sessions.StepChoosePayment, s.Step)
	require.Len(t, replies[0].QuickReplies, 3)
	assert.Equal(t, "PAYMENT_GCASH", replies[0].QuickReplies[0].Payload)

	s = session(sessions.StepConfirmDownpayment, sessions.Draft{Fullname: "Maria Cruz"})
	replies = h.turn(s, KindQuickReply, PayloadDownpaymentNo)
	assert.Equal(t, sessions.StepIdle, s.Step)
	assert.Equal(t, msgDeclinedDownpayment, text(replies))
	assert.Empty(t, s.Draft.Fullname)
}

func TestChoosePayment(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepChoosePayment, sessions.Draft{DownpaymentCents: 30000})
	h.turn(s, KindQuickReply, "PAYMENT_BITCOIN")
	assert.Equal(t, sessions.StepChoosePayment, s.Step)

	replies := h.turn(s, KindQuickReply, "PAYMENT_GCASH")
	assert.Equal(t, sessions.StepSendProof, s.Step)
	assert.Equal(t, "GCASH", s.Draft.PaymentMethod)
	_, err := uuid.Parse(s.Draft.AppointmentID)
	assert.NoError(t, err, "choosing a payment method fixes the reservation id")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "₱300.00")
	assert.Equal(t, msgSendProof, replies[1].Text)
}

func proofDraft() sessions.Draft {
	return sessions.Draft{
		ServiceID: extractionID, ServiceName: "Tooth Extraction", Date: "2025-12-24", Time: "10:00",
		Fullname: "Maria Cruz", DownpaymentCents: 30000, PaymentMethod: "GCASH", OfferedTimes: []string{"10:00"},
	}
}

func TestSendProofReserves(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepSendProof, proofDraft())
	replies := h.turn(s, KindImage, "https://cdn/receipt.jpg")

	assert.Equal(t, sessions.StepWaitingAdmin, s.Step)
	assert.Equal(t, "appt-1", s.Draft.AppointmentID)
	assert.Equal(t, msgProofReceived, text(replies))
	require.Len(t, h.appts.reserved, 1)
	req := h.appts.reserved[0]
	assert.Equal(t, "https://cdn/receipt.jpg", req.PaymentProof)
	assert.Equal(t, "proofs/psid-1/1.jpg", req.ProofArchiveKey)
	assert.Equal(t, int64(30000), req.DownpaymentCents)
	assert.Equal(t, []string{"appt-1"}, h.alerts.got)
}

func TestSendProofRetryAfterLostSave(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepChoosePayment, proofDraft())
	h.turn(s, KindQuickReply, "PAYMENT_GCASH")
	require.Equal(t, sessions.StepSendProof, s.Step)
	draftID := s.Draft.AppointmentID

	// The first turn reserves but its session save is lost, so the stored
	// session is still in send_proof when the patient sends the proof again.
	stored := *s
	h.turn(s, KindImage, "https://cdn/receipt.jpg")
	require.Equal(t, sessions.StepWaitingAdmin, s.Step)

	retry := stored
	replies := h.turn(&retry, KindImage, "https://cdn/receipt.jpg")
	assert.Equal(t, sessions.StepWaitingAdmin, retry.Step)
	assert.Equal(t, draftID, retry.Draft.AppointmentID)
	assert.Equal(t, msgProofReceived, text(replies))
	assert.Len(t, h.appts.reserved, 1)
	assert.Equal(t, []string{draftID}, h.alerts.got, "staff are alerted once per reservation")
}

func TestSendProofRetryAfterStaffReview(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepChoosePayment, proofDraft())
	h.turn(s, KindQuickReply, "PAYMENT_GCASH")
	stored := *s
	h.turn(s, KindImage, "https://cdn/receipt.jpg")
	h.appts.byID[s.Draft.AppointmentID].PaymentStatus = appointments.PaymentApproved

	retry := stored
	replies := h.turn(&retry, KindImage, "https://cdn/receipt.jpg")
	assert.Equal(t, sessions.StepIdle, retry.Step)
	assert.Equal(t, msgAlreadyReviewed, text(replies))
	assert.Len(t, h.alerts.got, 1)
}

func TestSendProofArchiveFailureKeepsURL(t *testing.T) {
	h := newHarness(t)
	h.archive.err = errors.New("s3 down")
	s := session(sessions.StepSendProof, proofDraft())
	h.turn(s, KindImage, "https://cdn/receipt.jpg")
	require.Len(t, h.appts.reserved, 1)
	assert.Empty(t, h.appts.reserved[0].ProofArchiveKey)
	assert.Equal(t, sessions.StepWaitingAdmin, s.Step)
}

func TestSendProofSlotTaken(t *testing.T) {
	h := newHarness(t)
	h.appts.reserveErr = appointments.ErrSlotTaken
	s := session(sessions.StepSendProof, proofDraft())
	replies := h.turn(s, KindText, "ref 12345")
	assert.Equal(t, sessions.StepChooseDate, s.Step)
	assert.Empty(t, s.Draft.Time)
	assert.Equal(t, msgSlotTaken, text(replies))
	assert.Empty(t, h.alerts.got)
}

func TestSendProofStoreFailureStays(t *testing.T) {
	h := newHarness(t)
	h.appts.reserveErr = errors.New("db down")
	s := session(sessions.StepSendProof, proofDraft())
	replies := h.turn(s, KindText, "ref 12345")
	assert.Equal(t, sessions.StepSendProof, s.Step)
	assert.Equal(t, msgResendProof, text(replies))
}

func TestWaitingAdminAndIdleFallBackToHint(t *testing.T) {
	h := newHarness(t)
	for _, step := range []sessions.Step{sessions.StepWaitingAdmin, sessions.StepIdle} {
		s := session(step, sessions.Draft{AppointmentID: "appt-1"})
		replies := h.turn(s, KindText, "hello?")
		assert.Equal(t, step, s.Step)
		assert.Equal(t, msgMenuHint, text(replies))
	}
}

func TestUnknownPostbackAndContact(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepChooseTime, sessions.Draft{OfferedTimes: []string{"09:00"}})
	replies := h.turn(s, KindPostback, "GET_STARTED_LEGACY")
	assert.Equal(t, sessions.StepChooseTime, s.Step)
	assert.Equal(t, msgMenuHint, text(replies))

	replies = h.turn(s, KindPostback, PayloadContact)
	assert.Contains(t, text(replies), "Jaylon Dental Clinic")
	assert.Equal(t, sessions.StepChooseTime, s.Step)
}

func TestMyAppointmentsCarousel(t *testing.T) {
	h := newHarness(t)
	s := session(sessions.StepIdle, sessions.Draft{})
	assert.Equal(t, msgNoAppointments, text(h.turn(s, KindPostback, PayloadMyAppointments)))

	h.appts.byID["appt-1"] = &appointments.Appointment{
		ID: "appt-1", ActorID: "psid-1", ServiceName: "Cleaning", Date: "2025-12-24", Time: "13:00",
		Status: appointments.StatusConfirmed, PaymentStatus: appointments.PaymentApproved,
	}
	replies := h.turn(s, KindPostback, PayloadMyAppointments)
	require.Len(t, replies, 2)
	card := replies[1].Cards[0]
	assert.Contains(t, card.Subtitle, "1:00 PM")
	assert.Contains(t, card.Subtitle, "Upcoming")
	assert.Equal(t, "RESCHED_appt-1", card.Buttons[0].Payload)
	assert.Equal(t, "CANCEL_appt-1", card.Buttons[1].Payload)
}

func TestRescheduleFlow(t *testing.T) {
	h := newHarness(t)
	h.appts.byID["appt-1"] = &appointments.Appointment{
		ID: "appt-1", ActorID: "psid-1", ServiceName: "Cleaning", Date: "2025-12-22", Time: "09:00", Status: appointments.StatusConfirmed,
	}
	s := session(sessions.StepWaitingAdmin, sessions.Draft{AppointmentID: "other"})

	h.turn(s, KindPostback, "RESCHED_appt-1")
	require.Equal(t, sessions.StepChooseNewDate, s.Step)
	assert.Equal(t, "appt-1", s.Draft.AppointmentID)

	h.turn(s, KindText, PickDate)
	assert.Equal(t, sessions.StepChooseNewDate, s.Step)

	h.turn(s, KindText, "2025-12-24")
	require.Equal(t, sessions.StepChooseNewTime, s.Step)
	assert.Equal(t, "2025-12-24", s.Draft.NewDate)

	replies := h.turn(s, KindQuickReply, "2:00 PM")
	assert.Equal(t, sessions.StepIdle, s.Step)
	assert.Contains(t, text(replies), "Appointment Rescheduled!")
	assert.Contains(t, text(replies), "2:00 PM")
	assert.Equal(t, []string{"appt-1@2025-12-24T14:00/actor"}, h.appts.rescheduled)
}

func TestRescheduleOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantStep sessions.Step
	}{
		{"slot taken", appointments.ErrSlotTaken, sessions.StepChooseNewDate},
		{"terminal", appointments.ErrTerminal, sessions.StepIdle},
		{"not found", appointments.ErrNotFound, sessions.StepIdle},
		{"store down", errors.New("db down"), sessions.StepChooseNewTime},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.appts.rescheduErr = tc.err
			s := session(sessions.StepChooseNewTime, sessions.Draft{AppointmentID: "appt-1", NewDate: "2025-12-24", OfferedTimes: []string{"09:00"}})
			h.turn(s, KindQuickReply, "9:00 AM")
			assert.Equal(t, tc.wantStep, s.Step)
		})
	}
}

func TestOwnershipChecks(t *testing.T) {
	h := newHarness(t)
	h.appts.byID["theirs"] = &appointments.Appointment{ID: "theirs", ActorID: "psid-2", Status: appointments.StatusPending}
	h.appts.byID["closed"] = &appointments.Appointment{ID: "closed", ActorID: "psid-1", Status: appointments.StatusCancelled}

	for _, token := range []string{"RESCHED_theirs", "CANCEL_closed", "CANCEL_missing"} {
		s := session(sessions.StepChooseDate, sessions.Draft{ServiceID: extractionID})
		replies := h.turn(s, KindPostback, token)
		assert.Equal(t, sessions.StepIdle, s.Step, token)
		assert.Equal(t, msgAppointmentClosed, text(replies))
	}
}

func TestCancelFlow(t *testing.T) {
	h := newHarness(t)
	h.appts.byID["appt-1"] = &appointments.Appointment{ID: "appt-1", ActorID: "psid-1", ServiceName: "Cleaning", Date: "2025-12-24", Time: "10:00", Status: appointments.StatusPending}

	s := session(sessions.StepIdle, sessions.Draft{})
	replies := h.turn(s, KindPostback, "CANCEL_appt-1")
	assert.Equal(t, sessions.StepConfirmCancel, s.Step)
	assert.Contains(t, text(replies), "10:00 AM")

	h.turn(s, KindText, "hmm")
	assert.Equal(t, sessions.StepConfirmCancel, s.Step)

	replies = h.turn(s, KindQuickReply, PayloadCancelYes)
	assert.Equal(t, sessions.StepIdle, s.Step)
	assert.Equal(t, msgCancelled, text(replies))
	assert.Equal(t, []string{"appt-1/actor"}, h.appts.cancelled)

	s = session(sessions.StepConfirmCancel, sessions.Draft{AppointmentID: "appt-1"})
	replies = h.turn(s, KindPostback, PayloadCancelNo)
	assert.Equal(t, sessions.StepIdle, s.Step)
	assert.Equal(t, msgKeepAppointment, text(replies))
}
