package repository

import (
	"casewatch/models"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EscalationRepository handles database operations for escalations
type EscalationRepository struct {
	db *sql.DB
}

// NewEscalationRepository creates a new escalation repository
func NewEscalationRepository(db *sql.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

const escalationColumns = `
	escalation_id, case_id, escalation_rule_id, stage, reason, overdue_minutes,
	is_resolved, was_reassigned, priority_changed, old_priority, new_priority,
	created_at, resolved_at, resolution_note`

func scanEscalation(row rowScanner) (*models.Escalation, error) {
	var esc models.Escalation
	var stage string
	err := row.Scan(
		&esc.EscalationID,
		&esc.CaseID,
		&esc.EscalationRuleID,
		&stage,
		&esc.Reason,
		&esc.OverdueMinutes,
		&esc.IsResolved,
		&esc.WasReassigned,
		&esc.PriorityChanged,
		&esc.OldPriority,
		&esc.NewPriority,
		&esc.CreatedAt,
		&esc.ResolvedAt,
		&esc.ResolutionNote,
	)
	if err != nil {
		return nil, err
	}
	esc.Stage = models.ParseStage(stage)
	return &esc, nil
}

// HasUnresolvedEscalation checks whether (case, rule) already has an unresolved escalation.
// This is the idempotency check: a rule never fires twice while its escalation is open.
func (r *EscalationRepository) HasUnresolvedEscalation(ctx context.Context, caseID, ruleID int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM escalations
		WHERE case_id = ? AND escalation_rule_id = ? AND is_resolved = false
	`, caseID, ruleID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check existing escalation: %w", err)
	}
	return count > 0, nil
}

// RecordEscalation inserts the escalation and applies the case change atomically.
// The unresolved check is repeated under a row lock; a concurrent sweep that already
// fired the same (case, rule) yields ErrDuplicateEscalation. On success esc carries its
// new id and the old/new priority actually applied.
func (r *EscalationRepository) RecordEscalation(ctx context.Context, esc *models.Escalation, change models.CaseChange) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var existingID int64
		err := tx.QueryRowContext(ctx, `
			SELECT escalation_id
			FROM escalations
			WHERE case_id = ? AND escalation_rule_id = ? AND is_resolved = false
			LIMIT 1
			FOR UPDATE
		`, esc.CaseID, esc.EscalationRuleID).Scan(&existingID)
		if err == nil {
			return ErrDuplicateEscalation
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to lock escalation row: %w", err)
		}

		if !change.Empty() {
			if err := applyCaseChange(ctx, tx, esc, change); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO escalations (
				case_id, escalation_rule_id, stage, reason, overdue_minutes,
				is_resolved, was_reassigned, priority_changed, old_priority, new_priority,
				created_at
			) VALUES (?, ?, ?, ?, ?, false, ?, ?, ?, ?, ?)
		`,
			esc.CaseID,
			esc.EscalationRuleID,
			esc.Stage,
			esc.Reason,
			esc.OverdueMinutes,
			esc.WasReassigned,
			esc.PriorityChanged,
			esc.OldPriority,
			esc.NewPriority,
			esc.CreatedAt,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateEscalation
			}
			return fmt.Errorf("failed to create escalation: %w", err)
		}
		escalationID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get escalation ID: %w", err)
		}
		esc.EscalationID = escalationID

		return appendEvent(ctx, tx, &models.CaseEvent{
			CaseID:     esc.CaseID,
			EventType:  models.EventEscalated,
			Stage:      sql.NullString{String: string(esc.Stage), Valid: true},
			OccurredAt: esc.CreatedAt,
		})
	})
}

// applyCaseChange updates the case row; priority only ever moves up
func applyCaseChange(ctx context.Context, tx *sql.Tx, esc *models.Escalation, change models.CaseChange) error {
	var currentPriority int
	var assignedTo sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT priority, assigned_to FROM cases WHERE case_id = ? FOR UPDATE`, esc.CaseID,
	).Scan(&currentPriority, &assignedTo)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock case: %w", err)
	}

	sets := []string{}
	args := []interface{}{}

	if change.ReassignTo.Valid && (!assignedTo.Valid || assignedTo.Int64 != change.ReassignTo.Int64) {
		sets = append(sets, "assigned_to = ?")
		args = append(args, change.ReassignTo.Int64)
		esc.WasReassigned = true
	}

	if change.NewPriority.Valid && int(change.NewPriority.Int64) > currentPriority {
		sets = append(sets, "priority = ?")
		args = append(args, change.NewPriority.Int64)
		esc.PriorityChanged = true
		esc.OldPriority = sql.NullInt64{Int64: int64(currentPriority), Valid: true}
		esc.NewPriority = change.NewPriority
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = UTC_TIMESTAMP()")
	args = append(args, esc.CaseID)

	query := fmt.Sprintf(`UPDATE cases SET %s WHERE case_id = ?`, strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to apply case change: %w", err)
	}
	return nil
}

// ResolveEscalation marks one escalation resolved. Resolving an already resolved row is a no-op.
func (r *EscalationRepository) ResolveEscalation(ctx context.Context, escalationID int64, note string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE escalations
		SET is_resolved = true, resolved_at = ?, resolution_note = ?
		WHERE escalation_id = ? AND is_resolved = false
	`, at, nullString(note), escalationID)
	if err != nil {
		return fmt.Errorf("failed to resolve escalation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM escalations WHERE escalation_id = ?`, escalationID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check escalation: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// ResolveStaleEscalations resolves a case's unresolved escalations raised in a stage
// the case has since left. Returns the number of rows resolved.
func (r *EscalationRepository) ResolveStaleEscalations(ctx context.Context, caseID int64, currentStage models.Stage, at time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE escalations
		SET is_resolved = true, resolved_at = ?, resolution_note = ?
		WHERE case_id = ? AND is_resolved = false AND stage <> ?
	`, at, "stage advanced to "+string(currentStage), caseID, currentStage)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve stale escalations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count resolved escalations: %w", err)
	}
	return int(n), nil
}

// ResolveAllForCase resolves every open escalation of a case (used when the case is resolved)
func (r *EscalationRepository) ResolveAllForCase(ctx context.Context, caseID int64, note string, at time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE escalations
		SET is_resolved = true, resolved_at = ?, resolution_note = ?
		WHERE case_id = ? AND is_resolved = false
	`, at, nullString(note), caseID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve case escalations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count resolved escalations: %w", err)
	}
	return int(n), nil
}

// GetEscalation retrieves one escalation by id
func (r *EscalationRepository) GetEscalation(ctx context.Context, escalationID int64) (*models.Escalation, error) {
	query := fmt.Sprintf(`SELECT %s FROM escalations WHERE escalation_id = ?`, escalationColumns)
	esc, err := scanEscalation(r.db.QueryRowContext(ctx, query, escalationID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation: %w", err)
	}
	return esc, nil
}

// ListEscalations returns escalations newest first
func (r *EscalationRepository) ListEscalations(ctx context.Context, filter models.EscalationFilter) ([]models.Escalation, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.CaseID != nil {
		where = append(where, "e.case_id = ?")
		args = append(args, *filter.CaseID)
	}
	if filter.CompanyID != nil {
		where = append(where, "c.company_id = ?")
		args = append(args, *filter.CompanyID)
	}
	if filter.UnresolvedOnly {
		where = append(where, "e.is_resolved = false")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM escalations e
		JOIN cases c ON c.case_id = e.case_id
		WHERE %s
		ORDER BY e.created_at DESC, e.escalation_id DESC
		LIMIT ?
	`, prefixColumns("e", escalationColumns), strings.Join(where, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalations: %w", err)
	}
	defer rows.Close()

	var escalations []models.Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		escalations = append(escalations, *esc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalations: %w", err)
	}

	return escalations, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
