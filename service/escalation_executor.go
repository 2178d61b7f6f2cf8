package service

import (
	"casewatch/logger"
	"casewatch/metrics"
	"casewatch/models"
	"casewatch/repository"
	"context"
	"errors"
	"fmt"
	"time"
)

// EscalationResult is the outcome of executing one firing decision
type EscalationResult struct {
	Escalation       *models.Escalation
	AlreadyEscalated bool
	Recipients       RecipientResult
	NotifyErrors     []error
}

// EscalationExecutor records an escalation and its case change in one transaction,
// then fans out notifications. Notification problems never undo the recorded escalation.
type EscalationExecutor struct {
	cases       CaseStore
	escalations EscalationStore
	recipients  *RecipientResolver
	notifier    Notifier
	metrics     *metrics.Collector
}

// NewEscalationExecutor creates an executor
func NewEscalationExecutor(
	cases CaseStore,
	escalations EscalationStore,
	recipients *RecipientResolver,
	notifier Notifier,
	m *metrics.Collector,
) *EscalationExecutor {
	return &EscalationExecutor{
		cases:       cases,
		escalations: escalations,
		recipients:  recipients,
		notifier:    notifier,
		metrics:     m,
	}
}

// caseChangeFor turns the rule's configured actions into a case change.
// Out-of-range priority bumps are ignored.
func caseChangeFor(rule models.EscalationRule) models.CaseChange {
	change := models.CaseChange{ReassignTo: rule.ReassignToUserID}
	if rule.BumpPriorityTo.Valid && models.ValidPriority(int(rule.BumpPriorityTo.Int64)) {
		change.NewPriority = rule.BumpPriorityTo
	}
	return change
}

// Execute records the escalation for decision. A concurrent run that already recorded it
// yields AlreadyEscalated with a nil error.
func (x *EscalationExecutor) Execute(ctx context.Context, c models.CaseRecord, d FiringDecision, now time.Time) (*EscalationResult, error) {
	log := logger.Component("escalation").
		WithField("case_id", c.ID).
		WithField("rule_id", d.Rule.RuleID)

	esc := &models.Escalation{
		CaseID:           c.ID,
		EscalationRuleID: d.Rule.RuleID,
		Stage:            d.Stage,
		Reason: fmt.Sprintf("%s: %d minutes in %s stage (threshold %d)",
			d.Rule.Name, d.ElapsedMinutes, d.Stage, d.Rule.ThresholdMinutes),
		OverdueMinutes: d.OverdueMinutes,
		CreatedAt:      now,
	}

	err := x.escalations.RecordEscalation(ctx, esc, caseChangeFor(d.Rule))
	if errors.Is(err, repository.ErrDuplicateEscalation) {
		x.metrics.DuplicateSkipped()
		log.Info("already escalated by another run, skipping")
		return &EscalationResult{AlreadyEscalated: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record escalation: %w", err)
	}
	x.metrics.EscalationFired(string(d.Stage))

	log.WithField("escalation_id", esc.EscalationID).
		WithField("overdue_minutes", esc.OverdueMinutes).
		WithField("reassigned", esc.WasReassigned).
		WithField("priority_changed", esc.PriorityChanged).
		Info("case escalated")

	result := &EscalationResult{Escalation: esc}
	x.notify(ctx, c, d, esc, result)
	return result, nil
}

// notify runs after commit; every failure is logged and kept on the result only
func (x *EscalationExecutor) notify(ctx context.Context, c models.CaseRecord, d FiringDecision, esc *models.Escalation, result *EscalationResult) {
	log := logger.Component("escalation").WithField("case_id", c.ID).WithField("escalation_id", esc.EscalationID)

	involved, err := x.cases.ListInvolvedPartyIDs(ctx, c.ID)
	if err != nil {
		// without the exclusion list we could alert an implicated person
		result.NotifyErrors = append(result.NotifyErrors, err)
		log.WithError(err).Error("failed to load involved parties, escalation notifications not sent")
		return
	}
	c.InvolvedPartyIDs = involved
	if esc.WasReassigned {
		c.AssignedTo = d.Rule.ReassignToUserID
	}
	priority := c.Priority
	if esc.PriorityChanged {
		priority = int(esc.NewPriority.Int64)
	}

	result.Recipients = x.recipients.Resolve(ctx, models.TemplateEscalation, c, x.recipients.EscalationTiers(c))

	payload := models.NotificationPayload{
		EntityType:       "escalation",
		EntityID:         esc.EscalationID,
		CaseID:           c.ID,
		CaseToken:        c.Token,
		CompanyName:      c.CompanyName,
		Stage:            d.Stage,
		RuleName:         d.Rule.Name,
		ThresholdMinutes: d.Rule.ThresholdMinutes,
		ElapsedMinutes:   d.ElapsedMinutes,
		OverdueMinutes:   d.OverdueMinutes,
		CasePriority:     priority,
		DedupeScope:      fmt.Sprintf("escalation:%d", esc.EscalationID),
	}
	for _, user := range result.Recipients.Recipients {
		if err := x.notifier.Notify(ctx, user, models.TemplateEscalation, payload); err != nil {
			result.NotifyErrors = append(result.NotifyErrors, err)
			log.WithError(err).WithField("user_id", user.UserID).Warn("failed to queue escalation notification")
		}
	}
}
