package repository

import (
	"casewatch/models"
	"context"
	"database/sql"
	"fmt"
)

// EventRepository reads and appends case timeline events (append-only)
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// ListEvents returns a case's events in insertion-tolerant chronological order.
// Ordering is by occurred_at then event_id; callers must still not rely on it.
func (r *EventRepository) ListEvents(ctx context.Context, caseID int64) ([]models.CaseEvent, error) {
	query := `
		SELECT event_id, case_id, event_type, stage, actor_user_id, occurred_at
		FROM case_events
		WHERE case_id = ?
		ORDER BY occurred_at ASC, event_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query case events: %w", err)
	}
	defer rows.Close()

	var events []models.CaseEvent
	for rows.Next() {
		var e models.CaseEvent
		if err := rows.Scan(
			&e.EventID,
			&e.CaseID,
			&e.EventType,
			&e.Stage,
			&e.ActorUserID,
			&e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan case event: %w", err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case events: %w", err)
	}

	return events, nil
}

// AppendEvent inserts one event
func (r *EventRepository) AppendEvent(ctx context.Context, event *models.CaseEvent) error {
	return appendEvent(ctx, r.db, event)
}

func appendEvent(ctx context.Context, db execer, event *models.CaseEvent) error {
	result, err := db.ExecContext(ctx, `
		INSERT INTO case_events (case_id, event_type, stage, actor_user_id, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.CaseID,
		event.EventType,
		event.Stage,
		event.ActorUserID,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append case event: %w", err)
	}
	eventID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}
	event.EventID = eventID
	return nil
}
