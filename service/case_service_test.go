package service

import (
	"casewatch/models"
	"casewatch/repository"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCaseHarness() (*CaseService, *memStore, *recordingNotifier, *FixedClock) {
	store := newMemStore()
	store.users = []models.User{
		user(1, models.RoleBranchAdmin, 70, models.RecipientNone),
		user(5, models.RoleInvestigator, 70, models.RecipientPrimary),
		user(6, models.RoleInvestigator, 70, models.RecipientPrimary),
	}
	notifier := &recordingNotifier{}
	clock := NewFixedClock(t0)
	svc := NewCaseService(store, store, store, NewRecipientResolver(store, nil), notifier, clock)
	return svc, store, notifier, clock
}

func TestSubmitCase(t *testing.T) {
	svc, store, notifier, _ := newCaseHarness()

	resp, err := svc.SubmitCase(context.Background(), &models.SubmitCaseRequest{
		CompanyID:        7,
		BranchID:         70,
		InvolvedPartyIDs: []int64{6},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^CASE-20240304-`, resp.CaseToken)
	assert.Equal(t, models.StatusOpen, resp.Status)
	assert.Equal(t, TierPrimaryRecipients, resp.NotifiedTier)
	assert.Equal(t, []int64{5}, notifier.userIDs())

	events, err := store.ListEvents(context.Background(), resp.CaseID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSubmitted, events[0].EventType)
}

func TestSubmitCase_Validation(t *testing.T) {
	svc, _, _, _ := newCaseHarness()
	bad := 7

	_, err := svc.SubmitCase(context.Background(), &models.SubmitCaseRequest{BranchID: 70})
	assert.ErrorIs(t, err, ErrInvalidCase)

	_, err = svc.SubmitCase(context.Background(), &models.SubmitCaseRequest{CompanyID: 7, BranchID: 70, Priority: &bad})
	assert.ErrorIs(t, err, ErrInvalidCase)
}

func TestPostMessage_ExcludesAuthor(t *testing.T) {
	svc, store, notifier, _ := newCaseHarness()
	c := caseFixture(1, models.StatusAssigned, t0)
	c.AssignedTo = sql.NullInt64{Int64: 5, Valid: true}
	store.addCase(c, submitted(t0))

	author := int64(5)
	event, err := svc.PostMessage(context.Background(), 1, &models.PostMessageRequest{AuthorUserID: &author})
	require.NoError(t, err)
	assert.Equal(t, models.EventMessageSent, event.EventType)

	// the investigator wrote it, so the chain falls through to branch admins
	assert.Equal(t, []int64{1}, notifier.userIDs())
}

func TestAssignCase_MovesToInvestigation(t *testing.T) {
	svc, store, _, clock := newCaseHarness()
	store.addCase(caseFixture(1, models.StatusOpen, t0), submitted(t0))
	clock.Advance(20 * time.Minute)

	require.NoError(t, svc.AssignCase(context.Background(), 1, &models.AssignCaseRequest{AssigneeUserID: 5}))

	c, err := store.GetCase(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, c.Status)

	events, _ := store.ListEvents(context.Background(), 1)
	got := NewStageResolver().Resolve(*c, events)
	assert.Equal(t, models.StageInvestigation, got.Stage)
	assert.Equal(t, t0.Add(20*time.Minute), got.EnteredAt)
}

func TestAssignCase_RejectsInvolvedParty(t *testing.T) {
	svc, store, _, _ := newCaseHarness()
	c := caseFixture(1, models.StatusOpen, t0)
	c.InvolvedPartyIDs = []int64{6}
	store.addCase(c, submitted(t0))

	err := svc.AssignCase(context.Background(), 1, &models.AssignCaseRequest{AssigneeUserID: 6})
	assert.ErrorIs(t, err, ErrInvolvedParty)
}

func TestResolveCase_ClosesEscalations(t *testing.T) {
	svc, store, _, _ := newCaseHarness()
	store.addCase(caseFixture(1, models.StatusOpen, t0), submitted(t0))
	store.escalations = []*models.Escalation{{EscalationID: 1, CaseID: 1, EscalationRuleID: 1, Stage: models.StageIntake}}

	require.NoError(t, svc.ResolveCase(context.Background(), 1, &models.ResolveCaseRequest{Note: "substantiated"}))
	assert.Empty(t, store.unresolved(1))

	err := svc.ResolveCase(context.Background(), 1, &models.ResolveCaseRequest{})
	assert.ErrorIs(t, err, ErrCaseNotOpen)

	err = svc.ResolveCase(context.Background(), 99, &models.ResolveCaseRequest{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
