package repository

import (
	"casewatch/models"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testEscalation(at time.Time) *models.Escalation {
	return &models.Escalation{
		CaseID:           10,
		EscalationRuleID: 3,
		Stage:            models.StageIntake,
		Reason:           "intake SLA breached",
		OverdueMinutes:   1,
		CreatedAt:        at,
	}
}

func TestRecordEscalation_InsertsEscalationAndEvent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEscalationRepository(db)
	at := time.Date(2024, 3, 4, 10, 1, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT escalation_id\s+FROM escalations`).
		WithArgs(int64(10), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"escalation_id"}))
	mock.ExpectExec(`INSERT INTO escalations`).
		WillReturnResult(sqlmock.NewResult(55, 1))
	mock.ExpectExec(`INSERT INTO case_events`).
		WithArgs(int64(10), models.EventEscalated, sqlmock.AnyArg(), sqlmock.AnyArg(), at).
		WillReturnResult(sqlmock.NewResult(900, 1))
	mock.ExpectCommit()

	esc := testEscalation(at)
	err := repo.RecordEscalation(context.Background(), esc, models.CaseChange{})
	require.NoError(t, err)
	assert.Equal(t, int64(55), esc.EscalationID)
	assert.False(t, esc.WasReassigned)
	assert.False(t, esc.PriorityChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEscalation_ExistingUnresolvedRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEscalationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT escalation_id\s+FROM escalations`).
		WillReturnRows(sqlmock.NewRows([]string{"escalation_id"}).AddRow(int64(7)))
	mock.ExpectRollback()

	err := repo.RecordEscalation(context.Background(), testEscalation(time.Now()), models.CaseChange{})
	assert.ErrorIs(t, err, ErrDuplicateEscalation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEscalation_DuplicateKeyMapsToSentinel(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEscalationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT escalation_id\s+FROM escalations`).
		WillReturnRows(sqlmock.NewRows([]string{"escalation_id"}))
	mock.ExpectExec(`INSERT INTO escalations`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err := repo.RecordEscalation(context.Background(), testEscalation(time.Now()), models.CaseChange{})
	assert.ErrorIs(t, err, ErrDuplicateEscalation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEscalation_AppliesReassignAndPriorityBump(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEscalationRepository(db)
	at := time.Date(2024, 3, 4, 10, 1, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT escalation_id\s+FROM escalations`).
		WillReturnRows(sqlmock.NewRows([]string{"escalation_id"}))
	mock.ExpectQuery(`SELECT priority, assigned_to FROM cases`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"priority", "assigned_to"}).AddRow(2, nil))
	mock.ExpectExec(`UPDATE cases SET assigned_to = \?, priority = \?, updated_at = UTC_TIMESTAMP\(\) WHERE case_id = \?`).
		WithArgs(int64(42), int64(4), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO escalations`).
		WillReturnResult(sqlmock.NewResult(56, 1))
	mock.ExpectExec(`INSERT INTO case_events`).
		WillReturnResult(sqlmock.NewResult(901, 1))
	mock.ExpectCommit()

	esc := testEscalation(at)
	change := models.CaseChange{
		ReassignTo:  sql.NullInt64{Int64: 42, Valid: true},
		NewPriority: sql.NullInt64{Int64: 4, Valid: true},
	}
	require.NoError(t, repo.RecordEscalation(context.Background(), esc, change))

	assert.True(t, esc.WasReassigned)
	assert.True(t, esc.PriorityChanged)
	assert.Equal(t, int64(2), esc.OldPriority.Int64)
	assert.Equal(t, int64(4), esc.NewPriority.Int64)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEscalation_PriorityNeverLowered(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEscalationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT escalation_id\s+FROM escalations`).
		WillReturnRows(sqlmock.NewRows([]string{"escalation_id"}))
	mock.ExpectQuery(`SELECT priority, assigned_to FROM cases`).
		WillReturnRows(sqlmock.NewRows([]string{"priority", "assigned_to"}).AddRow(4, nil))
	mock.ExpectExec(`INSERT INTO escalations`).
		WillReturnResult(sqlmock.NewResult(57, 1))
	mock.ExpectExec(`INSERT INTO case_events`).
		WillReturnResult(sqlmock.NewResult(902, 1))
	mock.ExpectCommit()

	esc := testEscalation(time.Now())
	change := models.CaseChange{NewPriority: sql.NullInt64{Int64: 3, Valid: true}}
	require.NoError(t, repo.RecordEscalation(context.Background(), esc, change))

	assert.False(t, esc.PriorityChanged)
	assert.False(t, esc.OldPriority.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveEscalation_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEscalationRepository(db)

	mock.ExpectExec(`UPDATE escalations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM escalations WHERE escalation_id = \?`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := repo.ResolveEscalation(context.Background(), 99, "handled", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveEscalation_AlreadyResolvedIsNoop(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEscalationRepository(db)

	mock.ExpectExec(`UPDATE escalations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM escalations`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	assert.NoError(t, repo.ResolveEscalation(context.Background(), 5, "", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveStaleEscalations(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEscalationRepository(db)
	at := time.Now()

	mock.ExpectExec(`UPDATE escalations\s+SET is_resolved = true.*stage <> \?`).
		WithArgs(at, "stage advanced to investigation", int64(10), models.StageInvestigation).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ResolveStaleEscalations(context.Background(), 10, models.StageInvestigation, at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasUnresolvedEscalation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEscalationRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM escalations`).
		WithArgs(int64(10), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.HasUnresolvedEscalation(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, "e.a, e.b, e.c", prefixColumns("e", "a,\n\tb, c"))
}
