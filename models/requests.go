package models

// SubmitCaseRequest is the intake payload for a new case
type SubmitCaseRequest struct {
	CompanyID        int64   `json:"company_id"`
	BranchID         int64   `json:"branch_id"`
	CategoryID       *int64  `json:"category_id,omitempty"`
	Priority         *int    `json:"priority,omitempty"`
	InvolvedPartyIDs []int64 `json:"involved_party_ids,omitempty"`
}

// SubmitCaseResponse is returned after intake
type SubmitCaseResponse struct {
	CaseID        int64      `json:"case_id"`
	CaseToken     string     `json:"case_token"`
	Status        CaseStatus `json:"status"`
	NotifiedTier  string     `json:"notified_tier"`
	NotifiedCount int        `json:"notified_count"`
}

// PostMessageRequest records a message on a case. AuthorUserID is nil for the reporter.
type PostMessageRequest struct {
	AuthorUserID *int64 `json:"author_user_id,omitempty"`
}

// AssignCaseRequest assigns an investigator
type AssignCaseRequest struct {
	AssigneeUserID int64  `json:"assignee_user_id"`
	ActorUserID    *int64 `json:"actor_user_id,omitempty"`
}

// ResolveCaseRequest closes out a case
type ResolveCaseRequest struct {
	ActorUserID *int64 `json:"actor_user_id,omitempty"`
	Note        string `json:"note,omitempty"`
}

// ResolveEscalationRequest marks an escalation handled
type ResolveEscalationRequest struct {
	Note string `json:"note"`
}

// CreateRuleRequest defines a new escalation rule
type CreateRuleRequest struct {
	Name              string `json:"name"`
	Stage             string `json:"stage"`
	ThresholdMinutes  int    `json:"threshold_minutes"`
	Priority          int    `json:"priority"`
	CompanyID         *int64 `json:"company_id,omitempty"`
	BranchID          *int64 `json:"branch_id,omitempty"`
	CategoryID        *int64 `json:"category_id,omitempty"`
	EscalationLevel   int    `json:"escalation_level"`
	BusinessHoursOnly bool   `json:"business_hours_only"`
	ReassignToUserID  *int64 `json:"reassign_to_user_id,omitempty"`
	BumpPriorityTo    *int   `json:"bump_priority_to,omitempty"`
	Inactive          bool   `json:"inactive,omitempty"`
}

// SetRuleActiveRequest switches a rule on or off
type SetRuleActiveRequest struct {
	IsActive *bool `json:"is_active"`
}
