package service

import (
	"casewatch/models"
	"casewatch/repository"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory stand-in for the MySQL repositories
type memStore struct {
	mu sync.Mutex

	cases       map[int64]*models.CaseRecord
	events      map[int64][]models.CaseEvent
	rules       []models.EscalationRule
	escalations []*models.Escalation
	users       []models.User

	nextEventID      int64
	nextEscalationID int64
	nextCaseID       int64
	writes           int

	rulesErr         error
	casesErr         error
	eventsErr        map[int64]error
	involvedErr      error
	recordErr        error
	panicOnCase      int64
	blockOnCase      int64
	stallCheckOnCase int64 // unresolved-escalation check outlasts the case deadline
	tierErrors       map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		cases:      make(map[int64]*models.CaseRecord),
		events:     make(map[int64][]models.CaseEvent),
		eventsErr:  make(map[int64]error),
		tierErrors: make(map[string]error),
	}
}

func (m *memStore) addCase(c models.CaseRecord, events ...models.CaseEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.ID] = &c
	for _, e := range events {
		m.nextEventID++
		e.EventID = m.nextEventID
		e.CaseID = c.ID
		m.events[c.ID] = append(m.events[c.ID], e)
	}
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) unresolved(caseID int64) []models.Escalation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Escalation
	for _, e := range m.escalations {
		if e.CaseID == caseID && !e.IsResolved {
			out = append(out, *e)
		}
	}
	return out
}

// CaseStore

func (m *memStore) ListOpenCases(ctx context.Context, companyID *int64) ([]models.CaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.casesErr != nil {
		return nil, m.casesErr
	}
	var out []models.CaseRecord
	for _, c := range m.cases {
		// statuses outside the enum pass through, like a corrupt row would
		if c.Status.Valid() && !c.Status.IsOpen() {
			continue
		}
		if companyID != nil && c.CompanyID != *companyID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetCase(ctx context.Context, caseID int64) (*models.CaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListInvolvedPartyIDs(ctx context.Context, caseID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.involvedErr != nil {
		return nil, m.involvedErr
	}
	if c, ok := m.cases[caseID]; ok {
		return c.InvolvedPartyIDs, nil
	}
	return nil, nil
}

func (m *memStore) CreateCase(ctx context.Context, c *models.CaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.nextCaseID++
	c.ID = 1000 + m.nextCaseID
	cp := *c
	m.cases[c.ID] = &cp
	m.nextEventID++
	m.events[c.ID] = append(m.events[c.ID], models.CaseEvent{
		EventID:    m.nextEventID,
		CaseID:     c.ID,
		EventType:  models.EventSubmitted,
		Stage:      sql.NullString{String: string(models.StageIntake), Valid: true},
		OccurredAt: c.CreatedAt,
	})
	return nil
}

func (m *memStore) UpdateCaseStatus(ctx context.Context, caseID int64, status models.CaseStatus, assignedTo sql.NullInt64, events []models.CaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return repository.ErrNotFound
	}
	m.writes++
	c.Status = status
	if assignedTo.Valid {
		c.AssignedTo = assignedTo
	}
	for _, e := range events {
		m.nextEventID++
		e.EventID = m.nextEventID
		e.CaseID = caseID
		m.events[caseID] = append(m.events[caseID], e)
	}
	return nil
}

// EventStore

func (m *memStore) ListEvents(ctx context.Context, caseID int64) ([]models.CaseEvent, error) {
	if caseID == m.panicOnCase {
		panic("corrupt event row")
	}
	if caseID == m.blockOnCase {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.eventsErr[caseID]; err != nil {
		return nil, err
	}
	return append([]models.CaseEvent(nil), m.events[caseID]...), nil
}

func (m *memStore) AppendEvent(ctx context.Context, event *models.CaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.nextEventID++
	event.EventID = m.nextEventID
	m.events[event.CaseID] = append(m.events[event.CaseID], *event)
	return nil
}

// RuleStore

func (m *memStore) ListActiveRules(ctx context.Context) ([]models.EscalationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rulesErr != nil {
		return nil, m.rulesErr
	}
	var out []models.EscalationRule
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

// EscalationStore

func (m *memStore) HasUnresolvedEscalation(ctx context.Context, caseID, ruleID int64) (bool, error) {
	if caseID == m.stallCheckOnCase {
		<-ctx.Done()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.escalations {
		if e.CaseID == caseID && e.EscalationRuleID == ruleID && !e.IsResolved {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) RecordEscalation(ctx context.Context, esc *models.Escalation, change models.CaseChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	for _, e := range m.escalations {
		if e.CaseID == esc.CaseID && e.EscalationRuleID == esc.EscalationRuleID && !e.IsResolved {
			return repository.ErrDuplicateEscalation
		}
	}
	c := m.cases[esc.CaseID]
	if change.ReassignTo.Valid && c != nil {
		c.AssignedTo = change.ReassignTo
		esc.WasReassigned = true
	}
	if change.NewPriority.Valid && c != nil && int(change.NewPriority.Int64) > c.Priority {
		esc.OldPriority = sql.NullInt64{Int64: int64(c.Priority), Valid: true}
		esc.NewPriority = change.NewPriority
		esc.PriorityChanged = true
		c.Priority = int(change.NewPriority.Int64)
	}
	m.writes++
	m.nextEscalationID++
	esc.EscalationID = m.nextEscalationID
	cp := *esc
	m.escalations = append(m.escalations, &cp)
	m.nextEventID++
	m.events[esc.CaseID] = append(m.events[esc.CaseID], models.CaseEvent{
		EventID:    m.nextEventID,
		CaseID:     esc.CaseID,
		EventType:  models.EventEscalated,
		Stage:      sql.NullString{String: string(esc.Stage), Valid: true},
		OccurredAt: esc.CreatedAt,
	})
	return nil
}

func (m *memStore) ResolveEscalation(ctx context.Context, escalationID int64, note string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.escalations {
		if e.EscalationID == escalationID {
			if !e.IsResolved {
				m.writes++
				e.IsResolved = true
				e.ResolvedAt = sql.NullTime{Time: at, Valid: true}
				e.ResolutionNote = sql.NullString{String: note, Valid: note != ""}
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memStore) ResolveStaleEscalations(ctx context.Context, caseID int64, currentStage models.Stage, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.escalations {
		if e.CaseID == caseID && !e.IsResolved && e.Stage != currentStage {
			e.IsResolved = true
			e.ResolvedAt = sql.NullTime{Time: at, Valid: true}
			n++
		}
	}
	if n > 0 {
		m.writes++
	}
	return n, nil
}

func (m *memStore) ResolveAllForCase(ctx context.Context, caseID int64, note string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.escalations {
		if e.CaseID == caseID && !e.IsResolved {
			e.IsResolved = true
			e.ResolvedAt = sql.NullTime{Time: at, Valid: true}
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetEscalation(ctx context.Context, escalationID int64) (*models.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.escalations {
		if e.EscalationID == escalationID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListEscalations(ctx context.Context, filter models.EscalationFilter) ([]models.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Escalation
	for _, e := range m.escalations {
		if filter.CaseID != nil && e.CaseID != *filter.CaseID {
			continue
		}
		if filter.UnresolvedOnly && e.IsResolved {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// UserDirectory

func (m *memStore) filterUsers(tier string, keep func(models.User) bool) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.tierErrors[tier]; err != nil {
		return nil, err
	}
	var out []models.User
	for _, u := range m.users {
		if u.IsActive && keep(u) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) BranchAdmins(ctx context.Context, branchID int64) ([]models.User, error) {
	return m.filterUsers("branch_admins", func(u models.User) bool {
		return u.Role == models.RoleBranchAdmin && u.BranchID.Int64 == branchID
	})
}

func (m *memStore) CompanyAdmins(ctx context.Context, companyID int64) ([]models.User, error) {
	return m.filterUsers("company_admins", func(u models.User) bool {
		return u.Role == models.RoleCompanyAdmin && u.CompanyID.Int64 == companyID
	})
}

func (m *memStore) RecipientsByType(ctx context.Context, branchID int64, t models.RecipientType) ([]models.User, error) {
	return m.filterUsers(string(t), func(u models.User) bool {
		return u.RecipientType == t && u.BranchID.Int64 == branchID
	})
}

func (m *memStore) SuperAdmins(ctx context.Context) ([]models.User, error) {
	return m.filterUsers("super_admins", func(u models.User) bool { return u.Role == models.RoleSuperAdmin })
}

func (m *memStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.UserID == userID {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// notifyCall is one Notify invocation seen by recordingNotifier
type notifyCall struct {
	UserID  int64
	Kind    models.TemplateKind
	Payload models.NotificationPayload
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, user models.User, kind models.TemplateKind, payload models.NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{UserID: user.UserID, Kind: kind, Payload: payload})
	return n.err
}

func (n *recordingNotifier) userIDs() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]int64, 0, len(n.calls))
	for _, c := range n.calls {
		ids = append(ids, c.UserID)
	}
	return ids
}

// memQueue is an in-memory NotificationStore
type memQueue struct {
	mu        sync.Mutex
	byKey     map[string]*models.Notification
	order     []*models.Notification
	attempts  []models.NotificationLog
	nextID    int64
	createErr error
}

func newMemQueue() *memQueue {
	return &memQueue{byKey: make(map[string]*models.Notification)}
}

func (q *memQueue) CreateNotification(ctx context.Context, n *models.Notification) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.createErr != nil {
		return false, q.createErr
	}
	if _, ok := q.byKey[n.DedupeKey]; ok {
		return false, nil
	}
	q.nextID++
	n.NotificationID = q.nextID
	cp := *n
	q.byKey[n.DedupeKey] = &cp
	q.order = append(q.order, &cp)
	return true, nil
}

func (q *memQueue) GetPendingNotifications(ctx context.Context, limit int, now time.Time) ([]models.Notification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.Notification
	for _, n := range q.order {
		if n.Status != models.NotificationStatusPending && n.Status != models.NotificationStatusRetrying {
			continue
		}
		if n.NextRetryAt.Valid && n.NextRetryAt.Time.After(now) {
			continue
		}
		out = append(out, *n)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (q *memQueue) find(id int64) *models.Notification {
	for _, n := range q.order {
		if n.NotificationID == id {
			return n
		}
	}
	return nil
}

func (q *memQueue) MarkSent(ctx context.Context, id int64, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.find(id)
	if n == nil {
		return errors.New("missing notification")
	}
	n.Status = models.NotificationStatusSent
	n.SentAt = sql.NullTime{Time: at, Valid: true}
	return nil
}

func (q *memQueue) MarkFailed(ctx context.Context, id int64, msg string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.find(id)
	if n == nil {
		return errors.New("missing notification")
	}
	n.Status = models.NotificationStatusFailed
	n.ErrorMessage = sql.NullString{String: msg, Valid: true}
	return nil
}

func (q *memQueue) ScheduleRetry(ctx context.Context, id int64, next time.Time, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.find(id)
	if n == nil {
		return errors.New("missing notification")
	}
	n.Status = models.NotificationStatusRetrying
	n.RetryCount++
	n.NextRetryAt = sql.NullTime{Time: next, Valid: true}
	n.ErrorMessage = sql.NullString{String: msg, Valid: true}
	return nil
}

func (q *memQueue) CreateAttemptLog(ctx context.Context, log *models.NotificationLog) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts = append(q.attempts, *log)
	return nil
}

func (q *memQueue) get(id int64) models.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.find(id)
}

// fixture helpers

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) // a Monday

func user(id int64, role models.UserRole, branchID int64, rt models.RecipientType) models.User {
	return models.User{
		UserID:        id,
		CompanyID:     sql.NullInt64{Int64: 7, Valid: true},
		BranchID:      sql.NullInt64{Int64: branchID, Valid: branchID != 0},
		FullName:      "user",
		Email:         sql.NullString{String: "u@example.com", Valid: true},
		Role:          role,
		RecipientType: rt,
		IsActive:      true,
	}
}

func caseFixture(id int64, status models.CaseStatus, createdAt time.Time) models.CaseRecord {
	return models.CaseRecord{
		ID:          id,
		Token:       fmt.Sprintf("CASE-20240304-%08d", id),
		CompanyID:   7,
		CompanyName: "Acme",
		BranchID:    70,
		Status:      status,
		Priority:    2,
		CreatedAt:   createdAt,
	}
}

func submitted(at time.Time) models.CaseEvent {
	return models.CaseEvent{
		EventType:  models.EventSubmitted,
		Stage:      sql.NullString{String: string(models.StageIntake), Valid: true},
		OccurredAt: at,
	}
}

func stageEntered(stage models.Stage, at time.Time) models.CaseEvent {
	return models.CaseEvent{
		EventType:  models.EventStageEntered,
		Stage:      sql.NullString{String: string(stage), Valid: true},
		OccurredAt: at,
	}
}

func rule(id int64, stage models.Stage, threshold, priority int) models.EscalationRule {
	return models.EscalationRule{
		RuleID:           id,
		Name:             string(stage) + " rule",
		Stage:            stage,
		ThresholdMinutes: threshold,
		Priority:         priority,
		IsActive:         true,
		EscalationLevel:  1,
	}
}
