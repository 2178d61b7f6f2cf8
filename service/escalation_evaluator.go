package service

import (
	"casewatch/models"
	"context"
	"fmt"
	"sort"
	"time"
)

// FiringDecision is the rule chosen to fire for a case in one evaluation
type FiringDecision struct {
	Rule           models.EscalationRule
	Stage          models.Stage
	EnteredAt      time.Time
	ElapsedMinutes int
	OverdueMinutes int
}

// EscalationEvaluator picks at most one rule to fire per case: the highest-priority
// applicable rule whose threshold is met and which has no unresolved escalation.
type EscalationEvaluator struct {
	checker       EscalationChecker
	wallClock     BusinessHoursPolicy
	businessHours BusinessHoursPolicy
}

// NewEscalationEvaluator creates an evaluator. businessHours is used for rules flagged
// business-hours-only; nil selects DefaultBusinessCalendar.
func NewEscalationEvaluator(checker EscalationChecker, businessHours BusinessHoursPolicy) *EscalationEvaluator {
	if businessHours == nil {
		businessHours = DefaultBusinessCalendar()
	}
	return &EscalationEvaluator{
		checker:       checker,
		wallClock:     WallClockPolicy{},
		businessHours: businessHours,
	}
}

// ApplicableRules filters to active rules for the stage and case scope, ordered by
// priority descending with rule id as the stable tie-break.
func ApplicableRules(c models.CaseRecord, stage models.Stage, rules []models.EscalationRule) []models.EscalationRule {
	var out []models.EscalationRule
	for _, r := range rules {
		if r.IsActive && r.Stage == stage && r.AppliesTo(c) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// ElapsedFor measures time in stage the way the rule asks for
func (e *EscalationEvaluator) ElapsedFor(rule models.EscalationRule, enteredAt, now time.Time) int {
	if rule.BusinessHoursOnly {
		return e.businessHours.ElapsedMinutes(enteredAt, now)
	}
	return e.wallClock.ElapsedMinutes(enteredAt, now)
}

// Evaluate returns the firing decision, or nil when no rule fires
func (e *EscalationEvaluator) Evaluate(
	ctx context.Context,
	c models.CaseRecord,
	stage models.Stage,
	enteredAt time.Time,
	rules []models.EscalationRule,
	now time.Time,
) (*FiringDecision, error) {
	if stage == models.StageUnknown {
		return nil, nil
	}

	for _, rule := range ApplicableRules(c, stage, rules) {
		elapsed := e.ElapsedFor(rule, enteredAt, now)
		if elapsed < rule.ThresholdMinutes {
			continue
		}

		exists, err := e.checker.HasUnresolvedEscalation(ctx, c.ID, rule.RuleID)
		if err != nil {
			return nil, fmt.Errorf("failed to check escalation for rule %d: %w", rule.RuleID, err)
		}
		if exists {
			continue
		}

		return &FiringDecision{
			Rule:           rule,
			Stage:          stage,
			EnteredAt:      enteredAt,
			ElapsedMinutes: elapsed,
			OverdueMinutes: elapsed - rule.ThresholdMinutes,
		}, nil
	}
	return nil, nil
}
