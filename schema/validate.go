package schema

import (
	"casewatch/logger"
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RequiredColumn defines a required column for a table.
type RequiredColumn struct {
	Table  string
	Column string
}

// DefaultRequiredColumns is the persisted escalation row shape read by reporting and email
// templates, plus the timeline columns the stage resolver needs.
var DefaultRequiredColumns = []RequiredColumn{
	{Table: "escalations", Column: "case_id"},
	{Table: "escalations", Column: "escalation_rule_id"},
	{Table: "escalations", Column: "stage"},
	{Table: "escalations", Column: "reason"},
	{Table: "escalations", Column: "overdue_minutes"},
	{Table: "escalations", Column: "is_resolved"},
	{Table: "escalations", Column: "was_reassigned"},
	{Table: "escalations", Column: "priority_changed"},
	{Table: "escalations", Column: "old_priority"},
	{Table: "escalations", Column: "new_priority"},
	{Table: "escalations", Column: "created_at"},
	{Table: "escalations", Column: "resolved_at"},
	{Table: "case_events", Column: "event_type"},
	{Table: "case_events", Column: "stage"},
	{Table: "case_events", Column: "occurred_at"},
}

// ValidateRequiredColumns checks that all required columns exist and returns an error
// listing every missing one. The server should not start on error.
func ValidateRequiredColumns(ctx context.Context, db *sql.DB, required []RequiredColumn) error {
	if len(required) == 0 {
		required = DefaultRequiredColumns
	}
	var missing []string
	for _, rc := range required {
		exists, err := columnExists(ctx, db, rc.Table, rc.Column)
		if err != nil {
			return fmt.Errorf("failed to check column %s.%s: %w", rc.Table, rc.Column, err)
		}
		if !exists {
			missing = append(missing, rc.Table+"."+rc.Column)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns (run migrations to fix): %s", strings.Join(missing, ", "))
	}
	logger.Component("schema").Info("required columns verified")
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
