package notification

import (
	"casewatch/logger"
	"casewatch/models"
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSender wraps a Sender with a circuit breaker so a failing provider is not
// hammered by every queued notification. While open, Send fails fast with
// gobreaker.ErrOpenState and the caller schedules a retry.
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

// BreakerConfig tunes the circuit breaker
type BreakerConfig struct {
	MaxFailures uint32        // consecutive failures before opening
	OpenTimeout time.Duration // how long to stay open before a trial request
}

// NewBreakerSender wraps next
func NewBreakerSender(next Sender, cfg BreakerConfig) *BreakerSender {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	name := string(next.Channel())
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// a bad address says nothing about provider health
			return err == nil || errors.Is(err, ErrInvalidRecipient) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Component("notification").
				WithField("channel", name).
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("sender circuit breaker changed state")
		},
	}
	return &BreakerSender{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Channel returns the wrapped channel
func (b *BreakerSender) Channel() models.NotificationChannel {
	return b.next.Channel()
}

// Validate delegates to the wrapped sender
func (b *BreakerSender) Validate(notification *models.Notification) error {
	return b.next.Validate(notification)
}

// Send runs the wrapped Send through the breaker
func (b *BreakerSender) Send(ctx context.Context, notification *models.Notification) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Send(ctx, notification)
	})
	if err != nil {
		return "", err
	}
	id, _ := out.(string)
	return id, nil
}

// State exposes the breaker state (health and tests)
func (b *BreakerSender) State() gobreaker.State {
	return b.cb.State()
}
