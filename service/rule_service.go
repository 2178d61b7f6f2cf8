package service

import (
	"casewatch/logger"
	"casewatch/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRule is returned for rule definitions the evaluator could not use
var ErrInvalidRule = errors.New("invalid escalation rule")

// RuleAdminStore reads and edits the rule set
type RuleAdminStore interface {
	RuleStore
	GetRule(ctx context.Context, ruleID int64) (*models.EscalationRule, error)
	CreateRule(ctx context.Context, rule *models.EscalationRule) error
	SetRuleActive(ctx context.Context, ruleID int64, active bool) error
}

// RuleService administers escalation rules. Changes apply from the next sweep,
// which loads the active set once at its start.
type RuleService struct {
	rules RuleAdminStore
}

// NewRuleService creates a new rule service
func NewRuleService(rules RuleAdminStore) *RuleService {
	return &RuleService{rules: rules}
}

// ListActiveRules returns the rule set the next sweep will use, highest priority first
func (s *RuleService) ListActiveRules(ctx context.Context) ([]models.EscalationRule, error) {
	return s.rules.ListActiveRules(ctx)
}

// GetRule returns one rule
func (s *RuleService) GetRule(ctx context.Context, ruleID int64) (*models.EscalationRule, error) {
	return s.rules.GetRule(ctx, ruleID)
}

// CreateRule validates and stores a rule
func (s *RuleService) CreateRule(ctx context.Context, req *models.CreateRuleRequest) (*models.EscalationRule, error) {
	rule, err := ruleFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	logger.Component("rules").
		WithField("rule_id", rule.RuleID).
		WithField("stage", rule.Stage).
		WithField("threshold_minutes", rule.ThresholdMinutes).
		Info("escalation rule created")
	return rule, nil
}

// SetRuleActive switches a rule on or off and returns the stored rule
func (s *RuleService) SetRuleActive(ctx context.Context, ruleID int64, active bool) (*models.EscalationRule, error) {
	if err := s.rules.SetRuleActive(ctx, ruleID, active); err != nil {
		return nil, err
	}
	logger.Component("rules").WithField("rule_id", ruleID).WithField("active", active).Info("escalation rule updated")
	return s.rules.GetRule(ctx, ruleID)
}

func ruleFromRequest(req *models.CreateRuleRequest) (*models.EscalationRule, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	stage := models.ParseStage(req.Stage)
	if stage == models.StageUnknown {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidRule, req.Stage)
	}
	if req.ThresholdMinutes <= 0 {
		return nil, fmt.Errorf("%w: threshold_minutes must be positive", ErrInvalidRule)
	}
	if req.BumpPriorityTo != nil && !models.ValidPriority(*req.BumpPriorityTo) {
		return nil, fmt.Errorf("%w: bump_priority_to must be between %d and %d", ErrInvalidRule, models.MinPriority, models.MaxPriority)
	}

	rule := &models.EscalationRule{
		Name:              name,
		Stage:             stage,
		ThresholdMinutes:  req.ThresholdMinutes,
		Priority:          req.Priority,
		IsActive:          !req.Inactive,
		CompanyID:         nullID(req.CompanyID),
		BranchID:          nullID(req.BranchID),
		CategoryID:        nullID(req.CategoryID),
		EscalationLevel:   req.EscalationLevel,
		BusinessHoursOnly: req.BusinessHoursOnly,
		ReassignToUserID:  nullID(req.ReassignToUserID),
	}
	if rule.EscalationLevel <= 0 {
		rule.EscalationLevel = 1
	}
	if req.BumpPriorityTo != nil {
		rule.BumpPriorityTo = sql.NullInt64{Int64: int64(*req.BumpPriorityTo), Valid: true}
	}
	return rule, nil
}
