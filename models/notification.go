package models

import (
	"database/sql"
	"time"
)

// NotificationChannel represents the notification channel type
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// NotificationStatus represents the status of a notification
type NotificationStatus string

const (
	NotificationStatusPending  NotificationStatus = "pending"
	NotificationStatusSent     NotificationStatus = "sent"
	NotificationStatusFailed   NotificationStatus = "failed"
	NotificationStatusRetrying NotificationStatus = "retrying"
)

// NotificationPriority represents notification priority
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
	NotificationPriorityUrgent NotificationPriority = "urgent"
)

// TemplateKind selects the message template rendered for a notification
type TemplateKind string

const (
	TemplateEscalation         TemplateKind = "escalation"
	TemplateEscalationResolved TemplateKind = "escalation_resolved"
	TemplateNewCase            TemplateKind = "new_case"
	TemplateNewMessage         TemplateKind = "new_message"
)

// Notification represents a queued notification (notifications_log is the queue)
type Notification struct {
	NotificationID  int64                `db:"notification_id" json:"notification_id"`
	DedupeKey       string               `db:"dedupe_key" json:"dedupe_key"`
	EntityType      string               `db:"entity_type" json:"entity_type"` // "case", "escalation"
	EntityID        int64                `db:"entity_id" json:"entity_id"`
	RecipientUserID int64                `db:"recipient_user_id" json:"recipient_user_id"`
	Channel         NotificationChannel  `db:"channel" json:"channel"`
	Recipient       string               `db:"recipient" json:"recipient"` // email or phone
	TemplateKind    TemplateKind         `db:"template_kind" json:"template_kind"`
	Subject         sql.NullString       `db:"subject" json:"subject"`
	Body            string               `db:"body" json:"body"`
	TemplateData    sql.NullString       `db:"template_data" json:"template_data"` // JSON
	Status          NotificationStatus   `db:"status" json:"status"`
	Priority        NotificationPriority `db:"priority" json:"priority"`
	RetryCount      int                  `db:"retry_count" json:"retry_count"`
	MaxRetries      int                  `db:"max_retries" json:"max_retries"`
	NextRetryAt     sql.NullTime         `db:"next_retry_at" json:"next_retry_at"`
	SentAt          sql.NullTime         `db:"sent_at" json:"sent_at"`
	FailedAt        sql.NullTime         `db:"failed_at" json:"failed_at"`
	ErrorMessage    sql.NullString       `db:"error_message" json:"error_message"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt       sql.NullTime         `db:"updated_at" json:"updated_at"`
}

// NotificationLog represents a log entry for notification attempts
type NotificationLog struct {
	LogID          int64              `db:"log_id" json:"log_id"`
	NotificationID int64              `db:"notification_id" json:"notification_id"`
	AttemptNumber  int                `db:"attempt_number" json:"attempt_number"`
	Status         NotificationStatus `db:"status" json:"status"`
	ErrorMessage   sql.NullString     `db:"error_message" json:"error_message"`
	ResponseData   sql.NullString     `db:"response_data" json:"response_data"` // provider message id
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}

// NotificationConfig holds configuration for the notification system
type NotificationConfig struct {
	DefaultMaxRetries int

	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	BackoffMultiplier float64

	WorkerBatchSize int
	WorkerInterval  time.Duration

	// SendsPerSecond paces outbound provider calls; 0 disables pacing.
	SendsPerSecond float64
	SendBurst      int
}

// DefaultNotificationConfig returns default notification configuration
func DefaultNotificationConfig() *NotificationConfig {
	return &NotificationConfig{
		DefaultMaxRetries: 3,
		InitialRetryDelay: 1 * time.Minute,
		MaxRetryDelay:     30 * time.Minute,
		BackoffMultiplier: 2.0,
		WorkerBatchSize:   100,
		WorkerInterval:    30 * time.Second,
		SendsPerSecond:    5,
		SendBurst:         10,
	}
}

// NotificationPayload carries what templates render for one notification
type NotificationPayload struct {
	EntityType       string `json:"entity_type"` // "case" or "escalation"
	EntityID         int64  `json:"entity_id"`
	CaseID           int64  `json:"case_id"`
	CaseToken        string `json:"case_token"`
	CompanyName      string `json:"company_name,omitempty"`
	Stage            Stage  `json:"stage,omitempty"`
	RuleName         string `json:"rule_name,omitempty"`
	ThresholdMinutes int    `json:"threshold_minutes,omitempty"`
	ElapsedMinutes   int    `json:"elapsed_minutes,omitempty"`
	OverdueMinutes   int    `json:"overdue_minutes,omitempty"`
	CasePriority     int    `json:"case_priority,omitempty"`
	Note             string `json:"note,omitempty"`
	// DedupeScope makes repeated Notify calls for the same fact collapse to one row per
	// recipient and channel. Empty means always queue.
	DedupeScope string `json:"-"`
}
