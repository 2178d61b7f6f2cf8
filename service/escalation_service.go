package service

import (
	"casewatch/logger"
	"casewatch/metrics"
	"casewatch/models"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SweepOptions narrows one sweep
type SweepOptions struct {
	CompanyID *int64
	DryRun    bool
}

// EscalationServiceDeps wires the sweep
type EscalationServiceDeps struct {
	Cases       CaseStore
	Events      EventStore
	Rules       RuleStore
	Escalations EscalationStore
	Evaluator   *EscalationEvaluator
	Executor    *EscalationExecutor
	Recipients  *RecipientResolver
	Notifier    Notifier
	Clock       Clock
	CaseTimeout time.Duration
	Metrics     *metrics.Collector
}

// EscalationService runs escalation sweeps and administers recorded escalations
type EscalationService struct {
	cases       CaseStore
	events      EventStore
	rules       RuleStore
	escalations EscalationStore
	stages      *StageResolver
	evaluator   *EscalationEvaluator
	executor    *EscalationExecutor
	recipients  *RecipientResolver
	notifier    Notifier
	clock       Clock
	caseTimeout time.Duration
	metrics     *metrics.Collector
}

// NewEscalationService creates a new escalation service
func NewEscalationService(deps EscalationServiceDeps) *EscalationService {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.CaseTimeout <= 0 {
		deps.CaseTimeout = 10 * time.Second
	}
	return &EscalationService{
		cases:       deps.Cases,
		events:      deps.Events,
		rules:       deps.Rules,
		escalations: deps.Escalations,
		stages:      NewStageResolver(),
		evaluator:   deps.Evaluator,
		executor:    deps.Executor,
		recipients:  deps.Recipients,
		notifier:    deps.Notifier,
		clock:       deps.Clock,
		caseTimeout: deps.CaseTimeout,
		metrics:     deps.Metrics,
	}
}

type caseOutcome struct {
	summary       *models.EscalationSummary
	skipped       bool
	staleResolved int
}

// RunSweep evaluates every open case once.
//
// Flow:
// 1. Load active rules once (edits during the sweep apply to the next one)
// 2. Load open cases, optionally for one company
// 3. Per case: resolve stage, auto-resolve escalations from earlier stages, evaluate rules
// 4. Outside dry-run, execute the firing decision
//
// Per-case failures are logged and counted; only failing to load rules or cases fails the sweep.
// Dry-run performs reads only.
func (s *EscalationService) RunSweep(ctx context.Context, opts SweepOptions) (report *models.SweepReport, err error) {
	started := s.clock.Now()
	timer := time.Now()
	report = &models.SweepReport{
		RunID:       uuid.NewString(),
		DryRun:      opts.DryRun,
		CompanyID:   opts.CompanyID,
		StartedAt:   started,
		Escalations: []models.EscalationSummary{},
	}
	log := logger.Component("sweep").WithField("run_id", report.RunID).WithField("dry_run", opts.DryRun)
	if opts.CompanyID != nil {
		log = log.WithField("company_id", *opts.CompanyID)
	}

	defer func() {
		report.FinishedAt = s.clock.Now()
		s.metrics.ObserveSweep(opts.DryRun, time.Since(timer), err)
	}()

	rules, err := s.rules.ListActiveRules(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load escalation rules: %w", err)
	}
	if len(rules) == 0 {
		log.Warn("no active escalation rules configured, nothing to evaluate")
		return report, nil
	}

	cases, err := s.cases.ListOpenCases(ctx, opts.CompanyID)
	if err != nil {
		return report, fmt.Errorf("failed to load open cases: %w", err)
	}
	log.WithField("rules", len(rules)).WithField("cases", len(cases)).Info("sweep started")

	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("sweep interrupted: %w", err)
		}
		report.CasesScanned++
		s.metrics.CaseScanned()

		out, err := s.processCase(ctx, c, rules, opts.DryRun)
		if err != nil {
			report.CasesFailed++
			s.metrics.CaseFailed()
			log.WithError(err).WithField("case_id", c.ID).Warn("skipping case")
			continue
		}
		if out.skipped {
			report.CasesSkipped++
		}
		report.StaleResolved += out.staleResolved
		if out.summary != nil {
			report.Escalations = append(report.Escalations, *out.summary)
		}
	}

	log.WithField("scanned", report.CasesScanned).
		WithField("escalated", len(report.Escalations)).
		WithField("failed", report.CasesFailed).
		WithField("skipped", report.CasesSkipped).
		Info("sweep finished")
	return report, nil
}

// processCase bounds one case by the per-case timeout and turns panics into errors.
// A case that overruns is reported as failed; its goroutine sees a cancelled context
// and does not start an escalation write after the deadline.
func (s *EscalationService) processCase(ctx context.Context, c models.CaseRecord, rules []models.EscalationRule, dryRun bool) (caseOutcome, error) {
	caseCtx, cancel := context.WithTimeout(ctx, s.caseTimeout)
	defer cancel()

	type result struct {
		out caseOutcome
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic processing case %d: %v", c.ID, r)}
			}
		}()
		out, err := s.evaluateCase(caseCtx, c, rules, dryRun)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-caseCtx.Done():
		return caseOutcome{}, fmt.Errorf("case %d: %w", c.ID, caseCtx.Err())
	}
}

func (s *EscalationService) evaluateCase(ctx context.Context, c models.CaseRecord, rules []models.EscalationRule, dryRun bool) (caseOutcome, error) {
	var out caseOutcome
	now := s.clock.Now()

	events, err := s.events.ListEvents(ctx, c.ID)
	if err != nil {
		return out, err
	}

	stage := s.stages.Resolve(c, events)
	if !stage.Known() {
		logger.Component("sweep").WithField("case_id", c.ID).WithField("status", c.Status).
			Warn("unknown stage for case status, skipping evaluation")
		out.skipped = true
		return out, nil
	}

	if !dryRun {
		n, err := s.escalations.ResolveStaleEscalations(ctx, c.ID, stage.Stage, now)
		if err != nil {
			logger.Component("sweep").WithError(err).WithField("case_id", c.ID).Warn("failed to auto-resolve stale escalations")
		} else {
			out.staleResolved = n
			s.metrics.StaleResolved(n)
		}
	}

	decision, err := s.evaluator.Evaluate(ctx, c, stage.Stage, stage.EnteredAt, rules, now)
	if err != nil {
		return out, err
	}
	if decision == nil {
		return out, nil
	}

	summary := models.EscalationSummary{
		CaseID:         c.ID,
		CaseToken:      c.Token,
		CompanyID:      c.CompanyID,
		CompanyName:    c.CompanyName,
		Stage:          decision.Stage,
		RuleID:         decision.Rule.RuleID,
		RuleName:       decision.Rule.Name,
		ThresholdMin:   decision.Rule.ThresholdMinutes,
		ElapsedMin:     decision.ElapsedMinutes,
		OverdueMinutes: decision.OverdueMinutes,
	}
	if dryRun {
		out.summary = &summary
		return out, nil
	}

	// the sweep has already counted this case failed once its deadline passes
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("case %d not escalated: %w", c.ID, err)
	}
	result, err := s.executor.Execute(ctx, c, *decision, now)
	if err != nil {
		return out, err
	}
	if ctx.Err() != nil && !result.AlreadyEscalated {
		logger.Component("sweep").
			WithField("case_id", c.ID).
			WithField("escalation_id", result.Escalation.EscalationID).
			WithField("rule_id", decision.Rule.RuleID).
			Warn("escalation committed after the case timed out; it is missing from the sweep report")
	}
	if result.AlreadyEscalated {
		summary.AlreadyExisted = true
	} else {
		id := result.Escalation.EscalationID
		summary.EscalationID = &id
		summary.RecipientTier = result.Recipients.Tier
	}
	out.summary = &summary
	return out, nil
}

// ListEscalations returns recorded escalations
func (s *EscalationService) ListEscalations(ctx context.Context, filter models.EscalationFilter) ([]models.Escalation, error) {
	return s.escalations.ListEscalations(ctx, filter)
}

// ResolveEscalation marks an escalation handled and tells the escalation recipients.
// Notification failures are logged only.
func (s *EscalationService) ResolveEscalation(ctx context.Context, escalationID int64, note string) (*models.Escalation, error) {
	now := s.clock.Now()
	if err := s.escalations.ResolveEscalation(ctx, escalationID, note, now); err != nil {
		return nil, err
	}
	esc, err := s.escalations.GetEscalation(ctx, escalationID)
	if err != nil {
		return nil, err
	}

	log := logger.Component("escalation").WithField("escalation_id", escalationID)
	log.Info("escalation resolved")

	c, err := s.cases.GetCase(ctx, esc.CaseID)
	if err != nil {
		log.WithError(err).Warn("failed to load case for resolution notice")
		return esc, nil
	}
	recipients := s.recipients.Resolve(ctx, models.TemplateEscalationResolved, *c, s.recipients.EscalationTiers(*c))
	payload := models.NotificationPayload{
		EntityType:  "escalation",
		EntityID:    esc.EscalationID,
		CaseID:      c.ID,
		CaseToken:   c.Token,
		CompanyName: c.CompanyName,
		Stage:       esc.Stage,
		Note:        note,
		DedupeScope: fmt.Sprintf("escalation-resolved:%d", esc.EscalationID),
	}
	for _, user := range recipients.Recipients {
		if err := s.notifier.Notify(ctx, user, models.TemplateEscalationResolved, payload); err != nil {
			log.WithError(err).WithField("user_id", user.UserID).Warn("failed to queue resolution notice")
		}
	}
	return esc, nil
}
