package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const defaultFromName = "Clinic Booking"

var errNoRecipients = errors.New("notify: email has no recipients")

// EmailSender delivers one staff alert to every address on it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single alert addressed to all staff recipients. HTML is
// optional; Text is always sent.
type EmailMessage struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

func (m EmailMessage) validate() error {
	if len(m.To) == 0 {
		return errNoRecipients
	}
	if m.Subject == "" || m.Text == "" {
		return fmt.Errorf("notify: email needs a subject and a text body")
	}
	return nil
}

// SendGridSender sends alerts through the SendGrid v3 mail API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send makes one API call for all recipients.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	resp, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("notify: sendgrid rejected alert", "status", resp.StatusCode, "body", resp.Body, "recipients", len(msg.To))
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}
	s.logger.Info("notify: staff alert sent via sendgrid", "recipients", len(msg.To), "subject", msg.Subject, "status", resp.StatusCode)
	return nil
}

// build gives every recipient its own personalization so no one sees the
// other staff addresses.
func (s *SendGridSender) build(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.Subject = msg.Subject
	for _, to := range msg.To {
		p := mail.NewPersonalization()
		p.AddTos(mail.NewEmail("", to))
		m.AddPersonalizations(p)
	}
	m.AddContent(mail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	return m
}

// StubEmailSender logs alerts instead of sending them.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("notify: email disabled, staff alert not sent", "recipients", msg.To, "subject", msg.Subject)
	return nil
}
