package service

import (
	"casewatch/logger"
	"casewatch/models"
	"casewatch/repository"
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrInvalidCase is returned for malformed intake requests
	ErrInvalidCase = errors.New("invalid case")
	// ErrCaseNotOpen is returned when a lifecycle action targets a resolved or closed case
	ErrCaseNotOpen = errors.New("case is not open")
	// ErrInvolvedParty is returned when an implicated user would be given access to the case
	ErrInvolvedParty = errors.New("user is an involved party of the case")
)

// defaultCasePriority is used when intake does not ask for one
const defaultCasePriority = 2

// CaseService handles the case lifecycle actions that feed the event log.
// Notification fan-out runs after the write and never fails the action.
type CaseService struct {
	cases       CaseStore
	events      EventStore
	escalations EscalationStore
	recipients  *RecipientResolver
	notifier    Notifier
	clock       Clock
}

// NewCaseService creates a new case service
func NewCaseService(
	cases CaseStore,
	events EventStore,
	escalations EscalationStore,
	recipients *RecipientResolver,
	notifier Notifier,
	clock Clock,
) *CaseService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CaseService{
		cases:       cases,
		events:      events,
		escalations: escalations,
		recipients:  recipients,
		notifier:    notifier,
		clock:       clock,
	}
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func stageValue(stage models.Stage) sql.NullString {
	return sql.NullString{String: string(stage), Valid: true}
}

// SubmitCase creates a case in the intake stage and notifies the new-case chain
func (s *CaseService) SubmitCase(ctx context.Context, req *models.SubmitCaseRequest) (*models.SubmitCaseResponse, error) {
	if req.CompanyID <= 0 || req.BranchID <= 0 {
		return nil, fmt.Errorf("%w: company_id and branch_id are required", ErrInvalidCase)
	}
	priority := defaultCasePriority
	if req.Priority != nil {
		if !models.ValidPriority(*req.Priority) {
			return nil, fmt.Errorf("%w: priority must be between %d and %d", ErrInvalidCase, models.MinPriority, models.MaxPriority)
		}
		priority = *req.Priority
	}

	now := s.clock.Now()
	c := &models.CaseRecord{
		Token:            repository.GenerateCaseToken(now),
		CompanyID:        req.CompanyID,
		BranchID:         req.BranchID,
		CategoryID:       nullID(req.CategoryID),
		Status:           models.StatusOpen,
		Priority:         priority,
		CreatedAt:        now,
		InvolvedPartyIDs: req.InvolvedPartyIDs,
	}
	if err := s.cases.CreateCase(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to submit case: %w", err)
	}
	logger.Component("case").WithField("case_id", c.ID).WithField("case_token", c.Token).Info("case submitted")

	// reload for the company name used in templates
	if stored, err := s.cases.GetCase(ctx, c.ID); err == nil {
		stored.InvolvedPartyIDs = c.InvolvedPartyIDs
		c = stored
	}

	result := s.fanOut(ctx, models.TemplateNewCase, *c, s.recipients.NewCaseTiers(*c), nil, fmt.Sprintf("new-case:%d", c.ID))

	return &models.SubmitCaseResponse{
		CaseID:        c.ID,
		CaseToken:     c.Token,
		Status:        c.Status,
		NotifiedTier:  result.Tier,
		NotifiedCount: len(result.Recipients),
	}, nil
}

// PostMessage appends a message_sent event and notifies the new-message chain.
// The author never receives their own notification.
func (s *CaseService) PostMessage(ctx context.Context, caseID int64, req *models.PostMessageRequest) (*models.CaseEvent, error) {
	c, err := s.openCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	event := &models.CaseEvent{
		CaseID:      c.ID,
		EventType:   models.EventMessageSent,
		ActorUserID: nullID(req.AuthorUserID),
		OccurredAt:  s.clock.Now(),
	}
	if err := s.events.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	var exclude []int64
	if req.AuthorUserID != nil {
		exclude = append(exclude, *req.AuthorUserID)
	}
	s.fanOut(ctx, models.TemplateNewMessage, *c, s.recipients.NewMessageTiers(*c), exclude,
		fmt.Sprintf("message:%d", event.EventID))
	return event, nil
}

// AssignCase hands the case to an investigator and moves it into the investigation stage
func (s *CaseService) AssignCase(ctx context.Context, caseID int64, req *models.AssignCaseRequest) error {
	if req.AssigneeUserID <= 0 {
		return fmt.Errorf("%w: assignee_user_id is required", ErrInvalidCase)
	}
	c, err := s.openCase(ctx, caseID)
	if err != nil {
		return err
	}
	for _, id := range c.InvolvedPartyIDs {
		if id == req.AssigneeUserID {
			return ErrInvolvedParty
		}
	}

	now := s.clock.Now()
	actorID := nullID(req.ActorUserID)
	events := []models.CaseEvent{
		{EventType: models.EventAssigned, ActorUserID: actorID, OccurredAt: now},
		{EventType: models.EventStageEntered, Stage: stageValue(models.StageInvestigation), ActorUserID: actorID, OccurredAt: now},
	}
	assignee := sql.NullInt64{Int64: req.AssigneeUserID, Valid: true}
	if err := s.cases.UpdateCaseStatus(ctx, c.ID, models.StatusAssigned, assignee, events); err != nil {
		return fmt.Errorf("failed to assign case: %w", err)
	}

	logger.Component("case").WithField("case_id", c.ID).WithField("assignee", req.AssigneeUserID).Info("case assigned")
	return nil
}

// ResolveCase marks the case resolved and closes its open escalations.
// Escalation cleanup is secondary: a failure there is logged, the case stays resolved.
func (s *CaseService) ResolveCase(ctx context.Context, caseID int64, req *models.ResolveCaseRequest) error {
	c, err := s.openCase(ctx, caseID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	actorID := nullID(req.ActorUserID)
	events := []models.CaseEvent{
		{EventType: models.EventResolved, ActorUserID: actorID, OccurredAt: now},
		{EventType: models.EventStageEntered, Stage: stageValue(models.StageResolution), ActorUserID: actorID, OccurredAt: now},
	}
	if err := s.cases.UpdateCaseStatus(ctx, c.ID, models.StatusResolved, sql.NullInt64{}, events); err != nil {
		return fmt.Errorf("failed to resolve case: %w", err)
	}

	log := logger.Component("case").WithField("case_id", c.ID)
	note := req.Note
	if note == "" {
		note = "case resolved"
	}
	n, err := s.escalations.ResolveAllForCase(ctx, c.ID, note, now)
	if err != nil {
		log.WithError(err).Warn("case resolved but open escalations were not closed")
	} else if n > 0 {
		log.WithField("escalations", n).Info("closed open escalations")
	}
	log.Info("case resolved")
	return nil
}

func (s *CaseService) openCase(ctx context.Context, caseID int64) (*models.CaseRecord, error) {
	c, err := s.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.Status.IsOpen() {
		return nil, ErrCaseNotOpen
	}
	return c, nil
}

// fanOut resolves recipients (involved parties and extra ids excluded) and queues a
// notification for each. Failures are logged only.
func (s *CaseService) fanOut(
	ctx context.Context,
	kind models.TemplateKind,
	c models.CaseRecord,
	tiers []RecipientTier,
	exclude []int64,
	scope string,
) RecipientResult {
	if len(exclude) > 0 {
		c.InvolvedPartyIDs = append(append([]int64{}, c.InvolvedPartyIDs...), exclude...)
	}
	result := s.recipients.Resolve(ctx, kind, c, tiers)

	payload := models.NotificationPayload{
		EntityType:   "case",
		EntityID:     c.ID,
		CaseID:       c.ID,
		CaseToken:    c.Token,
		CompanyName:  c.CompanyName,
		CasePriority: c.Priority,
		DedupeScope:  scope,
	}
	log := logger.Component("case").WithField("case_id", c.ID).WithField("kind", kind)
	for _, user := range result.Recipients {
		if err := s.notifier.Notify(ctx, user, kind, payload); err != nil {
			log.WithError(err).WithField("user_id", user.UserID).Warn("failed to queue notification")
		}
	}
	return result
}
