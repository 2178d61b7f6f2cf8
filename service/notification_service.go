package service

import (
	"casewatch/logger"
	"casewatch/metrics"
	"casewatch/models"
	"casewatch/notification"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// NotificationService queues notifications and delivers them with retry logic.
// notifications_log is the queue; the notification worker drains it.
type NotificationService struct {
	repo    NotificationStore
	senders map[models.NotificationChannel]notification.Sender
	config  *models.NotificationConfig
	clock   Clock
	metrics *metrics.Collector
}

// NewNotificationService creates a new notification service
func NewNotificationService(
	repo NotificationStore,
	senders []notification.Sender,
	config *models.NotificationConfig,
	clock Clock,
	m *metrics.Collector,
) *NotificationService {
	if config == nil {
		config = models.DefaultNotificationConfig()
	}
	if clock == nil {
		clock = SystemClock{}
	}

	bySender := make(map[models.NotificationChannel]notification.Sender, len(senders))
	for _, s := range senders {
		bySender[s.Channel()] = s
	}

	return &NotificationService{
		repo:    repo,
		senders: bySender,
		config:  config,
		clock:   clock,
		metrics: m,
	}
}

var templatePriority = map[models.TemplateKind]models.NotificationPriority{
	models.TemplateEscalation:         models.NotificationPriorityHigh,
	models.TemplateNewCase:            models.NotificationPriorityHigh,
	models.TemplateNewMessage:         models.NotificationPriorityNormal,
	models.TemplateEscalationResolved: models.NotificationPriorityLow,
}

// channelsFor picks delivery channels: email when the user has an address,
// plus SMS for escalations when a phone number is on file.
func channelsFor(user models.User, kind models.TemplateKind) []models.NotificationChannel {
	var channels []models.NotificationChannel
	if user.Email.Valid && user.Email.String != "" {
		channels = append(channels, models.ChannelEmail)
	}
	if kind == models.TemplateEscalation && user.Phone.Valid && user.Phone.String != "" {
		channels = append(channels, models.ChannelSMS)
	}
	return channels
}

// Notify queues one notification per channel for the user. It only writes to the queue
// and never talks to a provider, so a slow provider cannot hold up the caller.
func (s *NotificationService) Notify(ctx context.Context, user models.User, kind models.TemplateKind, payload models.NotificationPayload) error {
	channels := channelsFor(user, kind)
	if len(channels) == 0 {
		return fmt.Errorf("user %d has no deliverable address", user.UserID)
	}

	templateData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize template data: %w", err)
	}

	priority, ok := templatePriority[kind]
	if !ok {
		priority = models.NotificationPriorityNormal
	}

	var errs []error
	for _, channel := range channels {
		rendered, err := notification.Render(kind, channel, payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		recipient := user.Email.String
		if channel == models.ChannelSMS {
			recipient = user.Phone.String
		}

		n := &models.Notification{
			DedupeKey:       dedupeKey(payload.DedupeScope, user.UserID, channel),
			EntityType:      payload.EntityType,
			EntityID:        payload.EntityID,
			RecipientUserID: user.UserID,
			Channel:         channel,
			Recipient:       recipient,
			TemplateKind:    kind,
			Body:            rendered.Body,
			TemplateData:    sql.NullString{String: string(templateData), Valid: true},
			Status:          models.NotificationStatusPending,
			Priority:        priority,
			MaxRetries:      s.config.DefaultMaxRetries,
			CreatedAt:       s.clock.Now(),
		}
		if rendered.Subject != "" {
			n.Subject = sql.NullString{String: rendered.Subject, Valid: true}
		}

		created, err := s.repo.CreateNotification(ctx, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to queue %s notification: %w", channel, err))
			continue
		}
		if !created {
			logger.Component("notification").
				WithField("dedupe_key", n.DedupeKey).
				Debug("notification already queued, skipping")
		}
	}
	return errors.Join(errs...)
}

func dedupeKey(scope string, userID int64, channel models.NotificationChannel) string {
	if scope == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s:%d:%s", scope, userID, channel)
}

// ProcessNotification processes a single notification.
// This is called by the worker for each pending notification.
func (s *NotificationService) ProcessNotification(ctx context.Context, n *models.Notification) error {
	sender, exists := s.senders[n.Channel]
	if !exists {
		return s.markFailed(ctx, n, notification.ErrUnsupportedChannel.Error())
	}

	if err := sender.Validate(n); err != nil {
		// a bad address will not get better with retries
		return s.markFailed(ctx, n, fmt.Sprintf("validation failed: %v", err))
	}

	attemptNumber := n.RetryCount + 1
	providerID, err := sender.Send(ctx, n)

	if logErr := s.logNotificationAttempt(ctx, n, attemptNumber, providerID, err); logErr != nil {
		logger.Component("notification").WithError(logErr).Warn("failed to log notification attempt")
	}

	if err != nil {
		return s.handleNotificationFailure(ctx, n, err.Error())
	}

	if err := s.repo.MarkSent(ctx, n.NotificationID, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	s.metrics.NotificationSent(string(n.Channel))
	return nil
}

func (s *NotificationService) markFailed(ctx context.Context, n *models.Notification, errorMessage string) error {
	s.metrics.NotificationFailed(string(n.Channel), false)
	if err := s.repo.MarkFailed(ctx, n.NotificationID, errorMessage, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to mark notification as failed: %w", err)
	}
	return fmt.Errorf("notification %d failed: %s", n.NotificationID, errorMessage)
}

// handleNotificationFailure handles notification failure with retry logic
func (s *NotificationService) handleNotificationFailure(ctx context.Context, n *models.Notification, errorMessage string) error {
	if n.RetryCount >= n.MaxRetries {
		s.metrics.NotificationFailed(string(n.Channel), false)
		if err := s.repo.MarkFailed(ctx, n.NotificationID, errorMessage, s.clock.Now()); err != nil {
			return fmt.Errorf("failed to mark notification as failed: %w", err)
		}
		return fmt.Errorf("%w: %s", notification.ErrMaxRetriesExceeded, errorMessage)
	}

	nextRetryAt := s.calculateNextRetryTime(n.RetryCount)
	if err := s.repo.ScheduleRetry(ctx, n.NotificationID, nextRetryAt, errorMessage); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	s.metrics.NotificationFailed(string(n.Channel), true)

	return fmt.Errorf("notification failed, retry scheduled: %s", errorMessage)
}

// calculateNextRetryTime calculates the next retry time using exponential backoff
// Backoff formula: delay = min(initialDelay * (multiplier ^ retryCount), maxDelay)
func (s *NotificationService) calculateNextRetryTime(retryCount int) time.Time {
	delaySeconds := s.config.InitialRetryDelay.Seconds() * math.Pow(s.config.BackoffMultiplier, float64(retryCount))
	delay := time.Duration(delaySeconds) * time.Second

	if delay > s.config.MaxRetryDelay {
		delay = s.config.MaxRetryDelay
	}

	return s.clock.Now().Add(delay)
}

// logNotificationAttempt logs a notification attempt to notification_attempts_log
func (s *NotificationService) logNotificationAttempt(
	ctx context.Context,
	n *models.Notification,
	attemptNumber int,
	providerID string,
	sendError error,
) error {
	entry := &models.NotificationLog{
		NotificationID: n.NotificationID,
		AttemptNumber:  attemptNumber,
		Status:         models.NotificationStatusSent,
	}
	if providerID != "" {
		entry.ResponseData = sql.NullString{String: providerID, Valid: true}
	}
	if sendError != nil {
		entry.Status = models.NotificationStatusFailed
		entry.ErrorMessage = sql.NullString{String: sendError.Error(), Valid: true}
	}

	if err := s.repo.CreateAttemptLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to log notification attempt: %w", err)
	}
	return nil
}

// GetPendingNotifications retrieves pending notifications (used by worker)
func (s *NotificationService) GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	return s.repo.GetPendingNotifications(ctx, limit, s.clock.Now())
}
