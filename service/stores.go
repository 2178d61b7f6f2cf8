package service

import (
	"casewatch/models"
	"context"
	"database/sql"
	"time"
)

// The stores below are satisfied by the MySQL repositories and by in-memory fakes in tests.

// CaseStore reads and mutates cases
type CaseStore interface {
	ListOpenCases(ctx context.Context, companyID *int64) ([]models.CaseRecord, error)
	GetCase(ctx context.Context, caseID int64) (*models.CaseRecord, error)
	ListInvolvedPartyIDs(ctx context.Context, caseID int64) ([]int64, error)
	CreateCase(ctx context.Context, c *models.CaseRecord) error
	UpdateCaseStatus(ctx context.Context, caseID int64, status models.CaseStatus, assignedTo sql.NullInt64, events []models.CaseEvent) error
}

// EventStore reads and appends case timeline events
type EventStore interface {
	ListEvents(ctx context.Context, caseID int64) ([]models.CaseEvent, error)
	AppendEvent(ctx context.Context, event *models.CaseEvent) error
}

// RuleStore loads the rule set
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]models.EscalationRule, error)
}

// EscalationChecker answers whether (case, rule) already has an unresolved escalation
type EscalationChecker interface {
	HasUnresolvedEscalation(ctx context.Context, caseID, ruleID int64) (bool, error)
}

// EscalationStore persists escalations
type EscalationStore interface {
	EscalationChecker
	RecordEscalation(ctx context.Context, esc *models.Escalation, change models.CaseChange) error
	ResolveEscalation(ctx context.Context, escalationID int64, note string, at time.Time) error
	ResolveStaleEscalations(ctx context.Context, caseID int64, currentStage models.Stage, at time.Time) (int, error)
	ResolveAllForCase(ctx context.Context, caseID int64, note string, at time.Time) (int, error)
	GetEscalation(ctx context.Context, escalationID int64) (*models.Escalation, error)
	ListEscalations(ctx context.Context, filter models.EscalationFilter) ([]models.Escalation, error)
}

// UserDirectory supplies notification candidates
type UserDirectory interface {
	BranchAdmins(ctx context.Context, branchID int64) ([]models.User, error)
	CompanyAdmins(ctx context.Context, companyID int64) ([]models.User, error)
	RecipientsByType(ctx context.Context, branchID int64, recipientType models.RecipientType) ([]models.User, error)
	SuperAdmins(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

// NotificationStore is the outbound notification queue
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) (bool, error)
	GetPendingNotifications(ctx context.Context, limit int, now time.Time) ([]models.Notification, error)
	MarkSent(ctx context.Context, notificationID int64, at time.Time) error
	MarkFailed(ctx context.Context, notificationID int64, errorMessage string, at time.Time) error
	ScheduleRetry(ctx context.Context, notificationID int64, nextRetryAt time.Time, errorMessage string) error
	CreateAttemptLog(ctx context.Context, log *models.NotificationLog) error
}

// Notifier queues one notification for one user. Implementations must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, user models.User, kind models.TemplateKind, payload models.NotificationPayload) error
}
