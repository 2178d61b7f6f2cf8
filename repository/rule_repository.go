package repository

import (
	"casewatch/models"
	"context"
	"database/sql"
	"fmt"
)

// RuleRepository handles database operations for escalation rules
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `
	rule_id, name, stage, threshold_minutes, priority, is_active,
	company_id, branch_id, category_id, escalation_level, business_hours_only,
	reassign_to_user_id, bump_priority_to, created_at, updated_at`

func scanRule(row rowScanner) (*models.EscalationRule, error) {
	var rule models.EscalationRule
	var stage string
	err := row.Scan(
		&rule.RuleID,
		&rule.Name,
		&stage,
		&rule.ThresholdMinutes,
		&rule.Priority,
		&rule.IsActive,
		&rule.CompanyID,
		&rule.BranchID,
		&rule.CategoryID,
		&rule.EscalationLevel,
		&rule.BusinessHoursOnly,
		&rule.ReassignToUserID,
		&rule.BumpPriorityTo,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Stage = models.ParseStage(stage)
	return &rule, nil
}

// ListActiveRules retrieves all active escalation rules, highest priority first
func (r *RuleRepository) ListActiveRules(ctx context.Context) ([]models.EscalationRule, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM escalation_rules
		WHERE is_active = true
		ORDER BY priority DESC, rule_id ASC
	`, ruleColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalation rules: %w", err)
	}
	defer rows.Close()

	var rules []models.EscalationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalation rules: %w", err)
	}

	return rules, nil
}

// GetRule retrieves one rule by id
func (r *RuleRepository) GetRule(ctx context.Context, ruleID int64) (*models.EscalationRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM escalation_rules WHERE rule_id = ?`, ruleColumns)
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, ruleID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation rule: %w", err)
	}
	return rule, nil
}

// CreateRule inserts a rule. Threshold must be positive.
func (r *RuleRepository) CreateRule(ctx context.Context, rule *models.EscalationRule) error {
	if rule.ThresholdMinutes <= 0 {
		return fmt.Errorf("threshold_minutes must be positive, got %d", rule.ThresholdMinutes)
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO escalation_rules (
			name, stage, threshold_minutes, priority, is_active,
			company_id, branch_id, category_id, escalation_level, business_hours_only,
			reassign_to_user_id, bump_priority_to
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.Name,
		rule.Stage,
		rule.ThresholdMinutes,
		rule.Priority,
		rule.IsActive,
		rule.CompanyID,
		rule.BranchID,
		rule.CategoryID,
		rule.EscalationLevel,
		rule.BusinessHoursOnly,
		rule.ReassignToUserID,
		rule.BumpPriorityTo,
	)
	if err != nil {
		return fmt.Errorf("failed to create escalation rule: %w", err)
	}
	ruleID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	rule.RuleID = ruleID
	return nil
}

// SetRuleActive toggles a rule; edits apply from the next sweep
func (r *RuleRepository) SetRuleActive(ctx context.Context, ruleID int64, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE escalation_rules SET is_active = ?, updated_at = UTC_TIMESTAMP() WHERE rule_id = ?`,
		active, ruleID)
	if err != nil {
		return fmt.Errorf("failed to update escalation rule: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
