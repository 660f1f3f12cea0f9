// Package sessions persists per-actor conversation state with an optimistic
// version token, so concurrent writers never overwrite each other blindly.
package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrVersionConflict means the stored session changed since it was read.
var ErrVersionConflict = errors.New("sessions: version conflict")

// Step is the conversation state of one actor.
type Step string

const (
	StepIdle               Step = "idle"
	StepChooseService      Step = "choose_service"
	StepChooseDate         Step = "choose_date"
	StepAwaitingManualDate Step = "awaiting_manual_date"
	StepChooseTime         Step = "choose_time"
	StepAskName            Step = "ask_name"
	StepConfirmDownpayment Step = "confirm_downpayment"
	StepChoosePayment      Step = "choose_payment"
	StepSendProof          Step = "send_proof"
	StepWaitingAdmin       Step = "waiting_admin"
	StepChooseNewDate      Step = "choose_new_date"
	StepChooseNewTime      Step = "choose_new_time"
	StepConfirmCancel      Step = "confirm_cancel"
)

// Draft holds the booking being assembled. It is stored as JSONB.
type Draft struct {
	ServiceID        string   `json:"serviceId,omitempty"`
	ServiceName      string   `json:"serviceName,omitempty"`
	Date             string   `json:"date,omitempty"`
	Time             string   `json:"time,omitempty"`
	Fullname         string   `json:"fullname,omitempty"`
	DownpaymentCents int64    `json:"downpaymentCents,omitempty"`
	PaymentMethod    string   `json:"paymentMethod,omitempty"`
	PaymentProof     string   `json:"paymentProof,omitempty"`
	AppointmentID    string   `json:"appointmentId,omitempty"`
	NewDate          string   `json:"newDate,omitempty"`
	OfferedTimes     []string `json:"offeredTimes,omitempty"`
}

// Session is one actor's conversation. Version is owned by the store.
type Session struct {
	ActorID      string
	Step         Step
	Draft        Draft
	Version      int64
	LastActivity time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Reset returns the session to idle with an empty draft.
func (s *Session) Reset() {
	s.Step = StepIdle
	s.Draft = Draft{}
}

// Store loads and saves sessions. Get creates an idle session for a
// first-seen actor. Save fails with ErrVersionConflict when the stored
// version no longer matches s.Version, and bumps s.Version on success.
type Store interface {
	Get(ctx context.Context, actorID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}
