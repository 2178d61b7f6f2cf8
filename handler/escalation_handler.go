package handler

import (
	"casewatch/models"
	"casewatch/service"
	"context"
	"net/http"
	"strconv"
)

// EscalationOperations is what the escalation endpoints need from the service layer
type EscalationOperations interface {
	RunSweep(ctx context.Context, opts service.SweepOptions) (*models.SweepReport, error)
	ListEscalations(ctx context.Context, filter models.EscalationFilter) ([]models.Escalation, error)
	ResolveEscalation(ctx context.Context, escalationID int64, note string) (*models.Escalation, error)
}

// EscalationHandler handles HTTP requests for escalation operations
type EscalationHandler struct {
	escalations EscalationOperations
}

// NewEscalationHandler creates a new escalation handler
func NewEscalationHandler(escalations EscalationOperations) *EscalationHandler {
	return &EscalationHandler{escalations: escalations}
}

// RunSweep handles POST /api/v1/escalations/sweep?company=&dry_run=
// Manually triggers one sweep; the scheduled worker keeps running independently.
func (h *EscalationHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	var opts service.SweepOptions
	q := r.URL.Query()

	if raw := q.Get("company"); raw != "" {
		companyID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || companyID <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid request", "company must be a positive integer")
			return
		}
		opts.CompanyID = &companyID
	}
	if raw := q.Get("dry_run"); raw != "" {
		dryRun, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request", "dry_run must be a boolean")
			return
		}
		opts.DryRun = dryRun
	}

	report, err := h.escalations.RunSweep(r.Context(), opts)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

// ListEscalations handles GET /api/v1/escalations?case_id=&company=&unresolved=&limit=
func (h *EscalationHandler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	var filter models.EscalationFilter
	q := r.URL.Query()

	for name, dst := range map[string]**int64{"case_id": &filter.CaseID, "company": &filter.CompanyID} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid request", name+" must be a positive integer")
			return
		}
		*dst = &id
	}
	if raw := q.Get("unresolved"); raw != "" {
		unresolved, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request", "unresolved must be a boolean")
			return
		}
		filter.UnresolvedOnly = unresolved
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid request", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	escalations, err := h.escalations.ListEscalations(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if escalations == nil {
		escalations = []models.Escalation{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(escalations),
		"escalations": escalations,
	})
}

// ResolveEscalation handles POST /api/v1/escalations/{id}/resolve
func (h *EscalationHandler) ResolveEscalation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid escalation ID")
		return
	}
	var req models.ResolveEscalationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid JSON body")
		return
	}

	esc, err := h.escalations.ResolveEscalation(r.Context(), id, req.Note)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, esc)
}
