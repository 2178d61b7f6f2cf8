package handler

import (
	"casewatch/models"
	"context"
	"net/http"
)

// CaseOperations is what the case endpoints need from the service layer
type CaseOperations interface {
	SubmitCase(ctx context.Context, req *models.SubmitCaseRequest) (*models.SubmitCaseResponse, error)
	PostMessage(ctx context.Context, caseID int64, req *models.PostMessageRequest) (*models.CaseEvent, error)
	AssignCase(ctx context.Context, caseID int64, req *models.AssignCaseRequest) error
	ResolveCase(ctx context.Context, caseID int64, req *models.ResolveCaseRequest) error
}

// CaseHandler handles case lifecycle requests
type CaseHandler struct {
	cases CaseOperations
}

// NewCaseHandler creates a new case handler
func NewCaseHandler(cases CaseOperations) *CaseHandler {
	return &CaseHandler{cases: cases}
}

// SubmitCase handles POST /api/v1/cases
func (h *CaseHandler) SubmitCase(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid JSON body")
		return
	}
	resp, err := h.cases.SubmitCase(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

// PostMessage handles POST /api/v1/cases/{id}/messages
func (h *CaseHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid case ID")
		return
	}
	var req models.PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid JSON body")
		return
	}
	event, err := h.cases.PostMessage(r.Context(), caseID, &req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, event)
}

// AssignCase handles POST /api/v1/cases/{id}/assign
func (h *CaseHandler) AssignCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid case ID")
		return
	}
	var req models.AssignCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid JSON body")
		return
	}
	if err := h.cases.AssignCase(r.Context(), caseID, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"case_id": caseID, "status": models.StatusAssigned})
}

// ResolveCase handles POST /api/v1/cases/{id}/resolve
func (h *CaseHandler) ResolveCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid case ID")
		return
	}
	var req models.ResolveCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid JSON body")
		return
	}
	if err := h.cases.ResolveCase(r.Context(), caseID, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"case_id": caseID, "status": models.StatusResolved})
}
