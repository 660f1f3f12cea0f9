// Package appointments owns the appointment lifecycle: atomic slot
// reservation and the staff and patient driven status transitions.
package appointments

import (
	"errors"
	"time"

	"github.com/wolfman30/clinic-booking/internal/slots"
)

var (
	// ErrSlotTaken means another non-terminal appointment holds the slot.
	ErrSlotTaken = errors.New("appointments: slot already taken")
	// ErrNotFound means the appointment id does not exist.
	ErrNotFound = errors.New("appointments: appointment not found")
	// ErrTerminal means the appointment is cancelled, declined or done.
	ErrTerminal = errors.New("appointments: appointment is in a terminal status")
	// ErrInvalidSlot means the date or time is malformed or not a clinic slot.
	ErrInvalidSlot = errors.New("appointments: invalid slot")
)

// Status is the lifecycle status of an appointment.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
	StatusDeclined    Status = "declined"
	StatusDone        Status = "done"
)

// ActiveStatuses hold a slot. Every other status is terminal.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusRescheduled}

// Terminal reports whether s releases the slot for good.
func (s Status) Terminal() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRescheduled:
		return false
	default:
		return true
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRescheduled, StatusCancelled, StatusDeclined, StatusDone:
		return true
	}
	return false
}

// PaymentStatus tracks staff review of the down payment proof.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentDeclined PaymentStatus = "declined"
)

// Origin says who requested a transition. Staff-initiated changes notify
// the patient; patient-initiated ones are answered in the conversation.
type Origin int

const (
	OriginStaff Origin = iota
	OriginActor
)

func (o Origin) String() string {
	if o == OriginActor {
		return "actor"
	}
	return "staff"
}

// Appointment is one booking attempt. Date is YYYY-MM-DD and Time is the
// canonical HH:MM form.
type Appointment struct {
	ID               string        `json:"id"`
	ActorID          string        `json:"actor_id"`
	Fullname         string        `json:"fullname"`
	ServiceID        string        `json:"service_id"`
	ServiceName      string        `json:"service_name"`
	Date             string        `json:"date"`
	Time             string        `json:"time"`
	Status           Status        `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentMethod    string        `json:"payment_method"`
	PaymentProof     string        `json:"payment_proof"`
	ProofArchiveKey  string        `json:"proof_archive_key,omitempty"`
	DownpaymentCents int64         `json:"downpayment_cents"`
	DeclineReason    string        `json:"decline_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// DisplayTime renders Time as "h:MM AM", falling back to the raw value.
func (a Appointment) DisplayTime() string {
	if d, err := slots.ToDisplay(a.Time); err == nil {
		return d
	}
	return a.Time
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
