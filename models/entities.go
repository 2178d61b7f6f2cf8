package models

import (
	"database/sql"
	"time"
)

// CaseStatus represents the possible statuses of a case
type CaseStatus string

const (
	StatusOpen       CaseStatus = "open"
	StatusAssigned   CaseStatus = "assigned"
	StatusInProgress CaseStatus = "in_progress"
	StatusResolved   CaseStatus = "resolved"
	StatusClosed     CaseStatus = "closed"
)

// OpenStatuses are the statuses swept for escalation
var OpenStatuses = []CaseStatus{StatusOpen, StatusAssigned, StatusInProgress}

// ParseCaseStatus converts a stored status string. ok is false for anything outside the enum.
func ParseCaseStatus(s string) (CaseStatus, bool) {
	switch CaseStatus(s) {
	case StatusOpen, StatusAssigned, StatusInProgress, StatusResolved, StatusClosed:
		return CaseStatus(s), true
	}
	return CaseStatus(s), false
}

// Valid reports whether the status is one of the known statuses
func (s CaseStatus) Valid() bool {
	_, ok := ParseCaseStatus(string(s))
	return ok
}

// IsOpen reports whether the case can still escalate
func (s CaseStatus) IsOpen() bool {
	return s == StatusOpen || s == StatusAssigned || s == StatusInProgress
}

// Stage is a named phase of a case's lifecycle used to select escalation rules
type Stage string

const (
	StageIntake        Stage = "intake"
	StageInvestigation Stage = "investigation"
	StageResolution    Stage = "resolution"
	// StageUnknown is returned when the stage cannot be determined; callers skip evaluation.
	StageUnknown Stage = "unknown"
)

// ParseStage converts a stored stage string; unrecognized values map to StageUnknown.
func ParseStage(s string) Stage {
	switch Stage(s) {
	case StageIntake, StageInvestigation, StageResolution:
		return Stage(s)
	}
	return StageUnknown
}

// Priority bounds. 1 = low, 4 = critical.
const (
	MinPriority = 1
	MaxPriority = 4
)

// ValidPriority reports whether p is within 1..4
func ValidPriority(p int) bool {
	return p >= MinPriority && p <= MaxPriority
}

// CaseRecord is a reported incident as seen by the escalation engine
type CaseRecord struct {
	ID          int64         `db:"case_id" json:"case_id"`
	Token       string        `db:"case_token" json:"case_token"` // public reporter-facing token
	CompanyID   int64         `db:"company_id" json:"company_id"`
	CompanyName string        `db:"company_name" json:"company_name"`
	BranchID    int64         `db:"branch_id" json:"branch_id"`
	CategoryID  sql.NullInt64 `db:"category_id" json:"category_id"`
	Status      CaseStatus    `db:"status" json:"status"`
	Priority    int           `db:"priority" json:"priority"`
	AssignedTo  sql.NullInt64 `db:"assigned_to" json:"assigned_to"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   sql.NullTime  `db:"updated_at" json:"updated_at"`

	// InvolvedPartyIDs are users implicated in the case; never notified about it.
	InvolvedPartyIDs []int64 `db:"-" json:"-"`
}

// CaseEventType is the kind of fact appended to a case timeline
type CaseEventType string

const (
	EventSubmitted    CaseEventType = "submitted"
	EventStageEntered CaseEventType = "stage_entered"
	EventAssigned     CaseEventType = "assigned"
	EventMessageSent  CaseEventType = "message_sent"
	EventResolved     CaseEventType = "resolved"
	EventEscalated    CaseEventType = "escalated"
)

// CaseEvent is an immutable timeline entry (append-only)
type CaseEvent struct {
	EventID     int64          `db:"event_id" json:"event_id"`
	CaseID      int64          `db:"case_id" json:"case_id"`
	EventType   CaseEventType  `db:"event_type" json:"event_type"`
	Stage       sql.NullString `db:"stage" json:"stage"`
	ActorUserID sql.NullInt64  `db:"actor_user_id" json:"actor_user_id"`
	OccurredAt  time.Time      `db:"occurred_at" json:"occurred_at"`
}

// StageValue returns the event's stage when one is recorded
func (e CaseEvent) StageValue() (Stage, bool) {
	if !e.Stage.Valid || e.Stage.String == "" {
		return "", false
	}
	return ParseStage(e.Stage.String), true
}

// UserRole is the role a user holds inside a tenant
type UserRole string

const (
	RoleInvestigator UserRole = "investigator"
	RoleBranchAdmin  UserRole = "branch_admin"
	RoleCompanyAdmin UserRole = "company_admin"
	RoleSuperAdmin   UserRole = "super_admin"
)

// RecipientType flags a user as a case-notification recipient for a branch
type RecipientType string

const (
	RecipientNone        RecipientType = "none"
	RecipientPrimary     RecipientType = "primary"
	RecipientAlternative RecipientType = "alternative"
)

// User is a notification candidate
type User struct {
	UserID        int64          `db:"user_id" json:"user_id"`
	CompanyID     sql.NullInt64  `db:"company_id" json:"company_id"`
	BranchID      sql.NullInt64  `db:"branch_id" json:"branch_id"`
	FullName      string         `db:"full_name" json:"full_name"`
	Email         sql.NullString `db:"email" json:"email"`
	Phone         sql.NullString `db:"phone" json:"phone"`
	Role          UserRole       `db:"role" json:"role"`
	RecipientType RecipientType  `db:"recipient_type" json:"recipient_type"`
	IsActive      bool           `db:"is_active" json:"is_active"`
}

// ErrorResponse is the JSON error envelope returned by handlers
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
