package notification

import (
	"casewatch/logger"
	"casewatch/models"
	"context"
	"fmt"
	"net/mail"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sendGridClient is the part of *sendgrid.Client the sender uses
type sendGridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// EmailConfig configures the SendGrid email sender
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// RedirectTo forces every email to one address (staging)
	RedirectTo string
}

// EmailSender sends email through SendGrid. Without an API key it validates and logs only.
type EmailSender struct {
	cfg    EmailConfig
	client sendGridClient
}

// NewEmailSender creates an email sender
func NewEmailSender(cfg EmailConfig) *EmailSender {
	s := &EmailSender{cfg: cfg}
	if cfg.APIKey != "" {
		s.client = sendgrid.NewSendClient(cfg.APIKey)
	}
	return s
}

// Channel returns the email channel type
func (s *EmailSender) Channel() models.NotificationChannel {
	return models.ChannelEmail
}

// Validate validates email notification
func (s *EmailSender) Validate(notification *models.Notification) error {
	if notification.Recipient == "" {
		return ErrInvalidRecipient
	}
	if _, err := mail.ParseAddress(notification.Recipient); err != nil {
		return invalidRecipient(err)
	}
	return nil
}

// Send sends an email. With RedirectTo set, the recipient is replaced before sending.
func (s *EmailSender) Send(ctx context.Context, notification *models.Notification) (string, error) {
	to := notification.Recipient
	if s.cfg.RedirectTo != "" {
		to = s.cfg.RedirectTo
	}
	if to == "" {
		return "", ErrInvalidRecipient
	}

	if s.client == nil {
		logger.Component("notification").
			WithField("notification_id", notification.NotificationID).
			WithField("to", to).
			Info("email delivery disabled (no SENDGRID_API_KEY), skipping send")
		return "", nil
	}

	subject := ""
	if notification.Subject.Valid {
		subject = notification.Subject.String
	}
	from := sgmail.NewEmail(s.cfg.FromName, s.cfg.FromEmail)
	message := sgmail.NewSingleEmail(from, subject, sgmail.NewEmail("", to), notification.Body, "")

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("failed to send email via SendGrid: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid status %d: %s", response.StatusCode, response.Body)
	}

	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
