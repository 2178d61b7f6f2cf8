package handler

import (
	"casewatch/models"
	"casewatch/repository"
	"casewatch/service"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEscalations struct {
	opts    service.SweepOptions
	filter  models.EscalationFilter
	err     error
	note    string
	resolve error
}

func (f *fakeEscalations) RunSweep(ctx context.Context, opts service.SweepOptions) (*models.SweepReport, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &models.SweepReport{RunID: "run-1", DryRun: opts.DryRun, Escalations: []models.EscalationSummary{}}, nil
}

func (f *fakeEscalations) ListEscalations(ctx context.Context, filter models.EscalationFilter) ([]models.Escalation, error) {
	f.filter = filter
	return nil, f.err
}

func (f *fakeEscalations) ResolveEscalation(ctx context.Context, id int64, note string) (*models.Escalation, error) {
	f.note = note
	if f.resolve != nil {
		return nil, f.resolve
	}
	return &models.Escalation{EscalationID: id, IsResolved: true}, nil
}

type fakeCases struct {
	err      error
	assigned *models.AssignCaseRequest
}

func (f *fakeCases) SubmitCase(ctx context.Context, req *models.SubmitCaseRequest) (*models.SubmitCaseResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.SubmitCaseResponse{CaseID: 1, CaseToken: "CASE-20240304-ABCDEF01", Status: models.StatusOpen}, nil
}

func (f *fakeCases) PostMessage(ctx context.Context, caseID int64, req *models.PostMessageRequest) (*models.CaseEvent, error) {
	return &models.CaseEvent{CaseID: caseID, EventType: models.EventMessageSent}, f.err
}

func (f *fakeCases) AssignCase(ctx context.Context, caseID int64, req *models.AssignCaseRequest) error {
	f.assigned = req
	return f.err
}

func (f *fakeCases) ResolveCase(ctx context.Context, caseID int64, req *models.ResolveCaseRequest) error {
	return f.err
}

func testRouter(esc EscalationOperations, cases CaseOperations) *mux.Router {
	r := mux.NewRouter()
	eh := NewEscalationHandler(esc)
	ch := NewCaseHandler(cases)
	r.HandleFunc("/sweep", eh.RunSweep).Methods("POST")
	r.HandleFunc("/escalations", eh.ListEscalations).Methods("GET")
	r.HandleFunc("/escalations/{id}/resolve", eh.ResolveEscalation).Methods("POST")
	r.HandleFunc("/cases", ch.SubmitCase).Methods("POST")
	r.HandleFunc("/cases/{id}/assign", ch.AssignCase).Methods("POST")
	r.HandleFunc("/cases/{id}/messages", ch.PostMessage).Methods("POST")
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRunSweep_ParsesOptions(t *testing.T) {
	esc := &fakeEscalations{}
	r := testRouter(esc, &fakeCases{})

	rec := do(r, "POST", "/sweep?company=7&dry_run=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, esc.opts.CompanyID)
	assert.Equal(t, int64(7), *esc.opts.CompanyID)
	assert.True(t, esc.opts.DryRun)

	var report models.SweepReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "run-1", report.RunID)

	assert.Equal(t, http.StatusBadRequest, do(r, "POST", "/sweep?company=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, "POST", "/sweep?dry_run=maybe", "").Code)
}

func TestRunSweep_FailureIs500(t *testing.T) {
	r := testRouter(&fakeEscalations{err: errors.New("rules table missing")}, &fakeCases{})
	rec := do(r, "POST", "/sweep", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "rules table missing")
}

func TestListEscalations_Filters(t *testing.T) {
	esc := &fakeEscalations{}
	r := testRouter(esc, &fakeCases{})

	rec := do(r, "GET", "/escalations?case_id=3&unresolved=true&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, esc.filter.CaseID)
	assert.Equal(t, int64(3), *esc.filter.CaseID)
	assert.True(t, esc.filter.UnresolvedOnly)
	assert.Equal(t, 5, esc.filter.Limit)
	assert.Contains(t, rec.Body.String(), `"escalations":[]`)

	assert.Equal(t, http.StatusBadRequest, do(r, "GET", "/escalations?case_id=-1", "").Code)
}

func TestResolveEscalation_Handler(t *testing.T) {
	esc := &fakeEscalations{}
	r := testRouter(esc, &fakeCases{})

	rec := do(r, "POST", "/escalations/4/resolve", `{"note":"handled"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "handled", esc.note)

	assert.Equal(t, http.StatusOK, do(r, "POST", "/escalations/4/resolve", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, "POST", "/escalations/x/resolve", "").Code)

	esc.resolve = repository.ErrNotFound
	assert.Equal(t, http.StatusNotFound, do(r, "POST", "/escalations/4/resolve", "").Code)
}

func TestCaseHandlers_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidCase, http.StatusBadRequest},
		{service.ErrCaseNotOpen, http.StatusConflict},
		{service.ErrInvolvedParty, http.StatusConflict},
		{repository.ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		r := testRouter(&fakeEscalations{}, &fakeCases{err: tt.err})
		rec := do(r, "POST", "/cases/1/assign", `{"assignee_user_id":5}`)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}

func TestSubmitCase_Handler(t *testing.T) {
	cases := &fakeCases{}
	r := testRouter(&fakeEscalations{}, cases)

	rec := do(r, "POST", "/cases", `{"company_id":7,"branch_id":70}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "CASE-20240304-ABCDEF01")

	assert.Equal(t, http.StatusBadRequest, do(r, "POST", "/cases", `{not json`).Code)
}

func TestAssignCase_Handler(t *testing.T) {
	cases := &fakeCases{}
	r := testRouter(&fakeEscalations{}, cases)

	rec := do(r, "POST", "/cases/9/assign", `{"assignee_user_id":5}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, cases.assigned)
	assert.Equal(t, int64(5), cases.assigned.AssigneeUserID)
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{}).Health(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("refused")}).Health(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeRules struct {
	created *models.CreateRuleRequest
	active  *bool
	err     error
}

func (f *fakeRules) ListActiveRules(ctx context.Context) ([]models.EscalationRule, error) {
	return nil, f.err
}

func (f *fakeRules) GetRule(ctx context.Context, ruleID int64) (*models.EscalationRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.EscalationRule{RuleID: ruleID}, nil
}

func (f *fakeRules) CreateRule(ctx context.Context, req *models.CreateRuleRequest) (*models.EscalationRule, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.EscalationRule{RuleID: 1, Name: req.Name}, nil
}

func (f *fakeRules) SetRuleActive(ctx context.Context, ruleID int64, active bool) (*models.EscalationRule, error) {
	f.active = &active
	return &models.EscalationRule{RuleID: ruleID, IsActive: active}, f.err
}

func ruleRouter(rules RuleOperations) *mux.Router {
	r := mux.NewRouter()
	h := NewRuleHandler(rules)
	r.HandleFunc("/rules", h.ListRules).Methods("GET")
	r.HandleFunc("/rules", h.CreateRule).Methods("POST")
	r.HandleFunc("/rules/{id}", h.GetRule).Methods("GET")
	r.HandleFunc("/rules/{id}", h.SetRuleActive).Methods("PATCH")
	return r
}

func TestRuleHandlers(t *testing.T) {
	rules := &fakeRules{}
	r := ruleRouter(rules)

	rec := do(r, "GET", "/rules", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"rules":[]}`, rec.Body.String())

	rec = do(r, "POST", "/rules", `{"name":"intake 60m","stage":"intake","threshold_minutes":60}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, rules.created)
	assert.Equal(t, 60, rules.created.ThresholdMinutes)

	rec = do(r, "PATCH", "/rules/3", `{"is_active":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, rules.active)
	assert.False(t, *rules.active)

	assert.Equal(t, http.StatusBadRequest, do(r, "PATCH", "/rules/3", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, "GET", "/rules/abc", "").Code)
}

func TestRuleHandlers_ErrorMapping(t *testing.T) {
	r := ruleRouter(&fakeRules{err: service.ErrInvalidRule})
	assert.Equal(t, http.StatusBadRequest, do(r, "POST", "/rules", `{"name":"x"}`).Code)

	r = ruleRouter(&fakeRules{err: repository.ErrNotFound})
	assert.Equal(t, http.StatusNotFound, do(r, "GET", "/rules/8", "").Code)
}
