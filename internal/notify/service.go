// Package notify emails clinic staff when a patient submits a down
// payment proof.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/clinic"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Service sends staff alerts in the background. Failures are logged only.
type Service struct {
	email      EmailSender
	recipients []string
	clinicName string
	timeout    time.Duration
	logger     *logging.Logger
	inflight   sync.WaitGroup
}

// NewService creates a staff alert service. Recipients are trimmed and
// de-duplicated; invalid addresses are dropped with a warning. With no
// recipients left it only logs.
func NewService(email EmailSender, recipients []string, clinicName string, timeout time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		email:      email,
		recipients: staffRecipients(recipients, logger),
		clinicName: clinicName,
		timeout:    timeout,
		logger:     logger,
	}
}

func staffRecipients(raw []string, logger *logging.Logger) []string {
	v := validator.New()
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		if err := v.Var(addr, "email"); err != nil {
			logger.Warn("notify: dropping invalid staff alert address", "address", addr)
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// ProofSubmitted alerts staff that appointment a is waiting for payment
// review. It returns immediately.
func (s *Service) ProofSubmitted(ctx context.Context, a *appointments.Appointment) {
	if a == nil {
		return
	}
	if len(s.recipients) == 0 {
		s.logger.Debug("notify: no staff recipients configured, skipping alert", "appointment_id", a.ID)
		return
	}
	msg, err := proofEmail(s.clinicName, a)
	if err != nil {
		s.logger.Error("notify: render staff alert", "appointment_id", a.ID, "error", err)
		return
	}
	msg.To = s.recipients

	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: staff alert failed", "appointment_id", a.ID, "recipients", len(msg.To), "error", err)
		}
	}()
}

// Wait blocks until queued alerts finish.
func (s *Service) Wait() {
	s.inflight.Wait()
}

type proofView struct {
	ClinicName  string
	Patient     string
	Service     string
	Date        string
	Time        string
	Downpayment string
	Method      string
	Proof       string
	ProofURL    string
	ArchiveKey  string
	ID          string
}

var proofHTML = template.Must(template.New("proof").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<p>A new down payment proof is waiting for review{{if .ClinicName}} at {{.ClinicName}}{{end}}.</p>
<table cellpadding="4">
<tr><td><b>Patient</b></td><td>{{.Patient}}</td></tr>
<tr><td><b>Service</b></td><td>{{.Service}}</td></tr>
<tr><td><b>Date</b></td><td>{{.Date}}</td></tr>
<tr><td><b>Time</b></td><td>{{.Time}}</td></tr>
<tr><td><b>Down payment</b></td><td>{{.Downpayment}} via {{.Method}}</td></tr>
<tr><td><b>Proof</b></td><td>{{if .ProofURL}}<a href="{{.ProofURL}}">View payment proof</a>{{else}}{{.Proof}}{{end}}</td></tr>
{{if .ArchiveKey}}<tr><td><b>Archived as</b></td><td>{{.ArchiveKey}}</td></tr>{{end}}
<tr><td><b>Appointment ID</b></td><td>{{.ID}}</td></tr>
</table>
</body></html>`))

func proofEmail(clinicName string, a *appointments.Appointment) (EmailMessage, error) {
	v := proofView{
		ClinicName:  clinicName,
		Patient:     a.Fullname,
		Service:     a.ServiceName,
		Date:        a.Date,
		Time:        a.DisplayTime(),
		Downpayment: clinic.FormatPeso(a.DownpaymentCents),
		Method:      a.PaymentMethod,
		Proof:       a.PaymentProof,
		ProofURL:    proofLink(a.PaymentProof),
		ArchiveKey:  a.ProofArchiveKey,
		ID:          a.ID,
	}

	var html bytes.Buffer
	if err := proofHTML.Execute(&html, v); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render proof email: %w", err)
	}

	var b strings.Builder
	b.WriteString("A new down payment proof is waiting for review.\n\n")
	fmt.Fprintf(&b, "Patient: %s\n", v.Patient)
	fmt.Fprintf(&b, "Service: %s\n", v.Service)
	fmt.Fprintf(&b, "Date: %s\n", v.Date)
	fmt.Fprintf(&b, "Time: %s\n", v.Time)
	fmt.Fprintf(&b, "Down payment: %s via %s\n", v.Downpayment, v.Method)
	fmt.Fprintf(&b, "Proof: %s\n", v.Proof)
	if v.ArchiveKey != "" {
		fmt.Fprintf(&b, "Archived as: %s\n", v.ArchiveKey)
	}
	fmt.Fprintf(&b, "Appointment ID: %s\n", v.ID)

	subject := fmt.Sprintf("Payment proof: %s on %s at %s", v.Patient, v.Date, v.Time)
	if clinicName != "" {
		subject = fmt.Sprintf("[%s] %s", clinicName, subject)
	}
	return EmailMessage{Subject: subject, Text: b.String(), HTML: html.String()}, nil
}

// proofLink returns the proof as a link target when it is an http(s) URL.
// Text references such as a GCash transaction number yield "".
func proofLink(proof string) string {
	u, err := url.Parse(strings.TrimSpace(proof))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}
