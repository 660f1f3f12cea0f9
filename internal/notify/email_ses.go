package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// maxSESRecipients is the SES limit on destination addresses per message.
const maxSESRecipients = 50

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends alerts through AWS SES, one message per batch of
// recipients.
type SESSender struct {
	client SESAPI
	from   string
	logger *logging.Logger
}

type SESConfig struct {
	FromEmail string
	FromName  string
}

// NewSESSender returns nil when client is nil.
func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SESSender{
		client: client,
		from:   (&mail.Address{Name: cfg.FromName, Address: cfg.FromEmail}).String(),
		logger: logger,
	}
}

// Send delivers msg to all recipients. A failed batch does not stop the
// remaining ones; their errors are joined.
func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	body := &types.Body{Text: utf8Content(msg.Text)}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}

	var errs []error
	for start := 0; start < len(msg.To); start += maxSESRecipients {
		batch := msg.To[start:min(start+maxSESRecipients, len(msg.To))]
		out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(s.from),
			Destination:      &types.Destination{ToAddresses: batch},
			Content: &types.EmailContent{
				Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify: ses send to %d recipients: %w", len(batch), err))
			continue
		}
		s.logger.Info("notify: staff alert sent via ses", "recipients", len(batch), "subject", msg.Subject, "message_id", aws.ToString(out.MessageId))
	}
	return errors.Join(errs...)
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

var _ EmailSender = (*SESSender)(nil)
