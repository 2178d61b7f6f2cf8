package repository

import (
	"casewatch/models"
	"context"
	"database/sql"
	"fmt"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	user_id, company_id, branch_id, full_name, email, phone,
	role, recipient_type, is_active`

func (r *UserRepository) queryUsers(ctx context.Context, where string, args ...interface{}) ([]models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE is_active = true AND %s
		ORDER BY user_id ASC
	`, userColumns, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.UserID,
		&u.CompanyID,
		&u.BranchID,
		&u.FullName,
		&u.Email,
		&u.Phone,
		&u.Role,
		&u.RecipientType,
		&u.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// BranchAdmins returns active branch admins of a branch
func (r *UserRepository) BranchAdmins(ctx context.Context, branchID int64) ([]models.User, error) {
	return r.queryUsers(ctx, "role = ? AND branch_id = ?", models.RoleBranchAdmin, branchID)
}

// CompanyAdmins returns active company admins of a company
func (r *UserRepository) CompanyAdmins(ctx context.Context, companyID int64) ([]models.User, error) {
	return r.queryUsers(ctx, "role = ? AND company_id = ?", models.RoleCompanyAdmin, companyID)
}

// RecipientsByType returns active users of a branch flagged with the given recipient type
func (r *UserRepository) RecipientsByType(ctx context.Context, branchID int64, recipientType models.RecipientType) ([]models.User, error) {
	return r.queryUsers(ctx, "branch_id = ? AND recipient_type = ?", branchID, recipientType)
}

// SuperAdmins returns platform super admins
func (r *UserRepository) SuperAdmins(ctx context.Context) ([]models.User, error) {
	return r.queryUsers(ctx, "role = ?", models.RoleSuperAdmin)
}

// GetUser retrieves an active user by ID
func (r *UserRepository) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE user_id = ? AND is_active = true LIMIT 1`, userColumns)
	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}
