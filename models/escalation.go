package models

import (
	"database/sql"
	"time"
)

// EscalationRule represents an escalation rule from the escalation_rules table
type EscalationRule struct {
	RuleID            int64         `db:"rule_id" json:"rule_id"`
	Name              string        `db:"name" json:"name"`
	Stage             Stage         `db:"stage" json:"stage"`
	ThresholdMinutes  int           `db:"threshold_minutes" json:"threshold_minutes"`
	Priority          int           `db:"priority" json:"priority"` // higher is evaluated first
	IsActive          bool          `db:"is_active" json:"is_active"`
	CompanyID         sql.NullInt64 `db:"company_id" json:"company_id"` // NULL = any company
	BranchID          sql.NullInt64 `db:"branch_id" json:"branch_id"`   // NULL = any branch
	CategoryID        sql.NullInt64 `db:"category_id" json:"category_id"`
	EscalationLevel   int           `db:"escalation_level" json:"escalation_level"`
	BusinessHoursOnly bool          `db:"business_hours_only" json:"business_hours_only"`
	ReassignToUserID  sql.NullInt64 `db:"reassign_to_user_id" json:"reassign_to_user_id"`
	BumpPriorityTo    sql.NullInt64 `db:"bump_priority_to" json:"bump_priority_to"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         sql.NullTime  `db:"updated_at" json:"updated_at"`
}

// AppliesTo checks the rule's company / branch / category scope against a case
func (r EscalationRule) AppliesTo(c CaseRecord) bool {
	if r.CompanyID.Valid && r.CompanyID.Int64 != c.CompanyID {
		return false
	}
	if r.BranchID.Valid && r.BranchID.Int64 != c.BranchID {
		return false
	}
	if r.CategoryID.Valid {
		if !c.CategoryID.Valid || c.CategoryID.Int64 != r.CategoryID.Int64 {
			return false
		}
	}
	return true
}

// Escalation records that a rule fired for a case. The persisted shape is read by
// reporting and email templates and must stay stable.
type Escalation struct {
	EscalationID     int64          `db:"escalation_id" json:"escalation_id"`
	CaseID           int64          `db:"case_id" json:"case_id"`
	EscalationRuleID int64          `db:"escalation_rule_id" json:"escalation_rule_id"`
	Stage            Stage          `db:"stage" json:"stage"`
	Reason           string         `db:"reason" json:"reason"`
	OverdueMinutes   int            `db:"overdue_minutes" json:"overdue_minutes"`
	IsResolved       bool           `db:"is_resolved" json:"is_resolved"`
	WasReassigned    bool           `db:"was_reassigned" json:"was_reassigned"`
	PriorityChanged  bool           `db:"priority_changed" json:"priority_changed"`
	OldPriority      sql.NullInt64  `db:"old_priority" json:"old_priority"`
	NewPriority      sql.NullInt64  `db:"new_priority" json:"new_priority"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	ResolvedAt       sql.NullTime   `db:"resolved_at" json:"resolved_at"`
	ResolutionNote   sql.NullString `db:"resolution_note" json:"resolution_note"`
}

// CaseChange is the case mutation applied in the same transaction as an escalation insert
type CaseChange struct {
	ReassignTo  sql.NullInt64
	NewPriority sql.NullInt64
}

// Empty reports whether the change touches nothing
func (c CaseChange) Empty() bool {
	return !c.ReassignTo.Valid && !c.NewPriority.Valid
}

// EscalationFilter narrows escalation listings
type EscalationFilter struct {
	CaseID         *int64
	CompanyID      *int64
	UnresolvedOnly bool
	Limit          int
}

// EscalationSummary is one row of a sweep report
type EscalationSummary struct {
	CaseID         int64  `json:"case_id"`
	CaseToken      string `json:"case_token"`
	CompanyID      int64  `json:"company_id"`
	CompanyName    string `json:"company_name"`
	Stage          Stage  `json:"stage"`
	RuleID         int64  `json:"rule_id"`
	RuleName       string `json:"rule_name"`
	ThresholdMin   int    `json:"threshold_minutes"`
	ElapsedMin     int    `json:"elapsed_minutes"`
	OverdueMinutes int    `json:"overdue_minutes"`
	EscalationID   *int64 `json:"escalation_id,omitempty"`
	RecipientTier  string `json:"recipient_tier,omitempty"`
	AlreadyExisted bool   `json:"already_escalated,omitempty"`
}

// SweepReport is the outcome of one sweep invocation
type SweepReport struct {
	RunID         string              `json:"run_id"`
	DryRun        bool                `json:"dry_run"`
	CompanyID     *int64              `json:"company_id,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`
	CasesScanned  int                 `json:"cases_scanned"`
	CasesSkipped  int                 `json:"cases_skipped"`
	CasesFailed   int                 `json:"cases_failed"`
	StaleResolved int                 `json:"stale_resolved"`
	Escalations   []EscalationSummary `json:"escalations"`
}
