package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/notify"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// BuildEmailSender selects the staff alert sender from EMAIL_PROVIDER:
// "sendgrid", "ses", "stub" or "auto" (SendGrid when keyed, else stub).
// awsCfg may be nil when SES is not in use.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub"
	}

	sendgridSender := func() notify.EmailSender {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "ses":
		if awsCfg == nil {
			logger.Warn("EMAIL_PROVIDER=ses but AWS is not configured, using stub sender")
			return notify.NewStubEmailSender(logger), "stub"
		}
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger), "ses"
	case "stub":
		return notify.NewStubEmailSender(logger), "stub"
	case "sendgrid":
		if s := sendgridSender(); s != nil {
			return s, "sendgrid"
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty, using stub sender")
		return notify.NewStubEmailSender(logger), "stub"
	default:
		if s := sendgridSender(); s != nil {
			return s, "sendgrid"
		}
		return notify.NewStubEmailSender(logger), "stub"
	}
}
