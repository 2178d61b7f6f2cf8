package notification

import (
	"casewatch/models"
	"context"
)

// Sender is the interface for notification senders
type Sender interface {
	// Send delivers the notification and returns the provider's message id, if any
	Send(ctx context.Context, notification *models.Notification) (string, error)
	Channel() models.NotificationChannel
	Validate(notification *models.Notification) error
}

// Errors
var (
	ErrInvalidRecipient   = &NotificationError{Message: "invalid recipient"}
	ErrUnsupportedChannel = &NotificationError{Message: "unsupported channel"}
	ErrMaxRetriesExceeded = &NotificationError{Message: "max retries exceeded"}
)

// NotificationError represents a notification error
type NotificationError struct {
	Message string
	Err     error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match wrapped NotificationErrors by message
func (e *NotificationError) Is(target error) bool {
	t, ok := target.(*NotificationError)
	return ok && t.Message == e.Message
}

func invalidRecipient(err error) error {
	return &NotificationError{Message: ErrInvalidRecipient.Message, Err: err}
}
