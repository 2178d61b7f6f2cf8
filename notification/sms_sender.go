package notification

import (
	"casewatch/logger"
	"casewatch/models"
	"context"
	"fmt"
	"regexp"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// messageCreator is the part of the Twilio REST API the sender uses
type messageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// SMSConfig configures the Twilio SMS sender
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// SMSSender sends SMS through Twilio. Without credentials it validates and logs only.
type SMSSender struct {
	cfg SMSConfig
	api messageCreator
}

// NewSMSSender creates a new SMS sender
func NewSMSSender(cfg SMSConfig) *SMSSender {
	s := &SMSSender{cfg: cfg}
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		s.api = client.Api
	}
	return s
}

// Channel returns the SMS channel type
func (s *SMSSender) Channel() models.NotificationChannel {
	return models.ChannelSMS
}

// Validate validates SMS notification (E.164 numbers only)
func (s *SMSSender) Validate(notification *models.Notification) error {
	if notification.Recipient == "" {
		return ErrInvalidRecipient
	}
	if !e164.MatchString(notification.Recipient) {
		return invalidRecipient(fmt.Errorf("%q is not an E.164 number", notification.Recipient))
	}
	return nil
}

// Send sends an SMS
func (s *SMSSender) Send(ctx context.Context, notification *models.Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.api == nil {
		logger.Component("notification").
			WithField("notification_id", notification.NotificationID).
			Info("sms delivery disabled (no Twilio credentials), skipping send")
		return "", nil
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(notification.Recipient)
	params.SetFrom(s.cfg.FromNumber)
	params.SetBody(notification.Body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send SMS via Twilio: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		return *resp.Sid, nil
	}
	return "", nil
}
