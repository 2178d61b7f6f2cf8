package repository

import (
	"casewatch/models"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CaseRepository handles database operations for cases
type CaseRepository struct {
	db *sql.DB
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

// GenerateCaseToken generates the public reporter-facing case token
// Format: CASE-YYYYMMDD-{8 hex}
func GenerateCaseToken(now time.Time) string {
	return fmt.Sprintf("CASE-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(uuid.New().String()[:8]))
}

const caseColumns = `
	c.case_id, c.case_token, c.company_id, COALESCE(co.name, ''), c.branch_id,
	c.category_id, c.status, c.priority, c.assigned_to, c.created_at, c.updated_at`

func scanCase(row rowScanner) (*models.CaseRecord, error) {
	var c models.CaseRecord
	err := row.Scan(
		&c.ID,
		&c.Token,
		&c.CompanyID,
		&c.CompanyName,
		&c.BranchID,
		&c.CategoryID,
		&c.Status,
		&c.Priority,
		&c.AssignedTo,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListOpenCases returns cases in open / assigned / in_progress, optionally for one company.
// Involved parties are not loaded; use ListInvolvedPartyIDs when needed.
func (r *CaseRepository) ListOpenCases(ctx context.Context, companyID *int64) ([]models.CaseRecord, error) {
	placeholders := make([]string, len(models.OpenStatuses))
	args := make([]interface{}, 0, len(models.OpenStatuses)+1)
	for i, s := range models.OpenStatuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	companyFilter := ""
	if companyID != nil {
		companyFilter = "AND c.company_id = ?"
		args = append(args, *companyID)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM cases c
		LEFT JOIN companies co ON co.company_id = c.company_id
		WHERE c.status IN (%s)
			%s
		ORDER BY c.created_at ASC, c.case_id ASC
	`, caseColumns, strings.Join(placeholders, ", "), companyFilter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open cases: %w", err)
	}
	defer rows.Close()

	var cases []models.CaseRecord
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cases: %w", err)
	}

	return cases, nil
}

// GetCase retrieves a case with its involved parties
func (r *CaseRepository) GetCase(ctx context.Context, caseID int64) (*models.CaseRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM cases c
		LEFT JOIN companies co ON co.company_id = c.company_id
		WHERE c.case_id = ?
	`, caseColumns)

	c, err := scanCase(r.db.QueryRowContext(ctx, query, caseID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	c.InvolvedPartyIDs, err = r.ListInvolvedPartyIDs(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListInvolvedPartyIDs returns the users implicated in a case
func (r *CaseRepository) ListInvolvedPartyIDs(ctx context.Context, caseID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM case_involved_parties WHERE case_id = ? ORDER BY user_id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query involved parties: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan involved party: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating involved parties: %w", err)
	}
	return ids, nil
}

// CreateCase inserts the case, its involved parties and the submitted event in one transaction
func (r *CaseRepository) CreateCase(ctx context.Context, c *models.CaseRecord) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO cases (
				case_token, company_id, branch_id, category_id,
				status, priority, assigned_to, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			c.Token,
			c.CompanyID,
			c.BranchID,
			c.CategoryID,
			c.Status,
			c.Priority,
			c.AssignedTo,
			c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create case: %w", err)
		}
		caseID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get case ID: %w", err)
		}
		c.ID = caseID

		for _, userID := range c.InvolvedPartyIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO case_involved_parties (case_id, user_id) VALUES (?, ?)`,
				caseID, userID,
			); err != nil {
				return fmt.Errorf("failed to add involved party: %w", err)
			}
		}

		event := &models.CaseEvent{
			CaseID:     caseID,
			EventType:  models.EventSubmitted,
			Stage:      sql.NullString{String: string(models.StageIntake), Valid: true},
			OccurredAt: c.CreatedAt,
		}
		return appendEvent(ctx, tx, event)
	})
}

// UpdateCaseStatus sets status (and optionally assignee) and appends the matching timeline events
func (r *CaseRepository) UpdateCaseStatus(
	ctx context.Context,
	caseID int64,
	status models.CaseStatus,
	assignedTo sql.NullInt64,
	events []models.CaseEvent,
) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var result sql.Result
		var err error
		if assignedTo.Valid {
			result, err = tx.ExecContext(ctx,
				`UPDATE cases SET status = ?, assigned_to = ?, updated_at = UTC_TIMESTAMP() WHERE case_id = ?`,
				status, assignedTo, caseID)
		} else {
			result, err = tx.ExecContext(ctx,
				`UPDATE cases SET status = ?, updated_at = UTC_TIMESTAMP() WHERE case_id = ?`,
				status, caseID)
		}
		if err != nil {
			return fmt.Errorf("failed to update case status: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		for i := range events {
			events[i].CaseID = caseID
			if err := appendEvent(ctx, tx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
