package service

import (
	"casewatch/models"
	"sort"
	"time"
)

// StageSource tells how a stage was determined
type StageSource string

const (
	StageFromEmptyLog     StageSource = "empty_log"
	StageFromStageEntered StageSource = "stage_entered"
	StageFromStatus       StageSource = "status_fallback"
	StageFromUnknown      StageSource = "unknown_status"
)

// StageResolution is the current stage of a case and when it was entered
type StageResolution struct {
	Stage     models.Stage
	EnteredAt time.Time
	Source    StageSource
}

// Known reports whether evaluation can proceed
func (r StageResolution) Known() bool {
	return r.Stage != models.StageUnknown
}

// statusStage maps a status to its default stage when the log has no current stage_entered
var statusStage = map[models.CaseStatus]models.Stage{
	models.StatusOpen:       models.StageIntake,
	models.StatusAssigned:   models.StageInvestigation,
	models.StatusInProgress: models.StageInvestigation,
	models.StatusResolved:   models.StageResolution,
	models.StatusClosed:     models.StageResolution,
}

// stageMarker is the event that marks entry into a stage for the fallback enteredAt
var stageMarker = map[models.Stage]models.CaseEventType{
	models.StageIntake:        models.EventSubmitted,
	models.StageInvestigation: models.EventAssigned,
	models.StageResolution:    models.EventResolved,
}

// StageResolver derives a case's stage from its event log. It is pure and never fails.
type StageResolver struct{}

// NewStageResolver creates a stage resolver
func NewStageResolver() *StageResolver {
	return &StageResolver{}
}

// Resolve returns the case's current stage. events may arrive in any order.
func (r *StageResolver) Resolve(c models.CaseRecord, events []models.CaseEvent) StageResolution {
	if !c.Status.Valid() {
		return StageResolution{Stage: models.StageUnknown, Source: StageFromUnknown}
	}
	if len(events) == 0 {
		return StageResolution{Stage: models.StageIntake, EnteredAt: c.CreatedAt, Source: StageFromEmptyLog}
	}

	ordered := make([]models.CaseEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].OccurredAt.Equal(ordered[j].OccurredAt) {
			return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
		}
		return ordered[i].EventID < ordered[j].EventID
	})

	var current *models.CaseEvent
	var cutoff time.Time
	for i := range ordered {
		e := &ordered[i]
		switch e.EventType {
		case models.EventStageEntered:
			if stage, ok := e.StageValue(); ok && stage != models.StageUnknown {
				current = e
			}
		case models.EventResolved, models.EventAssigned:
			// the case left whatever stage it was in
			current = nil
			cutoff = e.OccurredAt
		}
	}

	if current != nil {
		stage, _ := current.StageValue()
		return StageResolution{Stage: stage, EnteredAt: current.OccurredAt, Source: StageFromStageEntered}
	}

	stage := statusStage[c.Status]
	enteredAt := c.CreatedAt
	marker := stageMarker[stage]
	for _, e := range ordered {
		if e.EventType == marker && !e.OccurredAt.Before(cutoff) {
			enteredAt = e.OccurredAt
			break
		}
	}
	return StageResolution{Stage: stage, EnteredAt: enteredAt, Source: StageFromStatus}
}
