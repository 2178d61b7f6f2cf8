package repository

import (
	"casewatch/models"
	"context"
	"database/sql"
	"fmt"
	"time"
)

// NotificationRepository handles database operations for notifications.
// notifications_log is the outbound queue; notification_attempts_log records each send.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateNotification queues a notification. A repeated dedupe key is ignored and
// reported as created=false.
func (r *NotificationRepository) CreateNotification(ctx context.Context, notification *models.Notification) (bool, error) {
	query := `
		INSERT INTO notifications_log (
			dedupe_key, entity_type, entity_id, recipient_user_id, channel, recipient,
			template_kind, subject, body, template_data,
			status, priority, retry_count, max_retries, next_retry_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	templateData := notification.TemplateData
	if !templateData.Valid || templateData.String == "" {
		templateData = sql.NullString{String: "{}", Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		query,
		notification.DedupeKey,
		notification.EntityType,
		notification.EntityID,
		notification.RecipientUserID,
		notification.Channel,
		notification.Recipient,
		notification.TemplateKind,
		notification.Subject,
		notification.Body,
		templateData,
		notification.Status,
		notification.Priority,
		notification.RetryCount,
		notification.MaxRetries,
		notification.NextRetryAt,
		notification.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create notification: %w", err)
	}

	notificationID, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get notification ID: %w", err)
	}

	notification.NotificationID = notificationID
	return true, nil
}

// GetPendingNotifications retrieves pending notifications ready to be sent
func (r *NotificationRepository) GetPendingNotifications(ctx context.Context, limit int, now time.Time) ([]models.Notification, error) {
	query := `
		SELECT
			notification_id, dedupe_key, entity_type, entity_id, recipient_user_id,
			channel, recipient, template_kind, subject, body, template_data,
			status, priority, retry_count, max_retries,
			next_retry_at, sent_at, failed_at, error_message,
			created_at, updated_at
		FROM notifications_log
		WHERE status IN ('pending', 'retrying')
			AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY
			CASE priority
				WHEN 'urgent' THEN 1
				WHEN 'high' THEN 2
				WHEN 'normal' THEN 3
				WHEN 'low' THEN 4
			END,
			created_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(
			&n.NotificationID,
			&n.DedupeKey,
			&n.EntityType,
			&n.EntityID,
			&n.RecipientUserID,
			&n.Channel,
			&n.Recipient,
			&n.TemplateKind,
			&n.Subject,
			&n.Body,
			&n.TemplateData,
			&n.Status,
			&n.Priority,
			&n.RetryCount,
			&n.MaxRetries,
			&n.NextRetryAt,
			&n.SentAt,
			&n.FailedAt,
			&n.ErrorMessage,
			&n.CreatedAt,
			&n.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

// MarkSent marks a notification delivered
func (r *NotificationRepository) MarkSent(ctx context.Context, notificationID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications_log
		SET status = 'sent', sent_at = ?, updated_at = ?, error_message = NULL
		WHERE notification_id = ?
	`, at, at, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed marks a notification permanently failed
func (r *NotificationRepository) MarkFailed(ctx context.Context, notificationID int64, errorMessage string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications_log
		SET status = 'failed', failed_at = ?, updated_at = ?, error_message = ?
		WHERE notification_id = ?
	`, at, at, errorMessage, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

// ScheduleRetry schedules a retry for a failed notification
func (r *NotificationRepository) ScheduleRetry(
	ctx context.Context,
	notificationID int64,
	nextRetryAt time.Time,
	errorMessage string,
) error {
	query := `
		UPDATE notifications_log
		SET status = 'retrying',
			retry_count = retry_count + 1,
			next_retry_at = ?,
			error_message = ?,
			updated_at = UTC_TIMESTAMP()
		WHERE notification_id = ?
	`

	_, err := r.db.ExecContext(ctx, query, nextRetryAt, errorMessage, notificationID)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	return nil
}

// CreateAttemptLog creates a log entry for a notification attempt
func (r *NotificationRepository) CreateAttemptLog(ctx context.Context, log *models.NotificationLog) error {
	query := `
		INSERT INTO notification_attempts_log (
			notification_id, attempt_number, status,
			error_message, response_data
		) VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx,
		query,
		log.NotificationID,
		log.AttemptNumber,
		log.Status,
		log.ErrorMessage,
		log.ResponseData,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification attempt log: %w", err)
	}

	logID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get log ID: %w", err)
	}

	log.LogID = logID
	return nil
}
