package handler

import (
	"casewatch/models"
	"context"
	"net/http"
)

// RuleOperations is what the rule endpoints need from the service layer
type RuleOperations interface {
	ListActiveRules(ctx context.Context) ([]models.EscalationRule, error)
	GetRule(ctx context.Context, ruleID int64) (*models.EscalationRule, error)
	CreateRule(ctx context.Context, req *models.CreateRuleRequest) (*models.EscalationRule, error)
	SetRuleActive(ctx context.Context, ruleID int64, active bool) (*models.EscalationRule, error)
}

// RuleHandler handles HTTP requests for escalation rule administration
type RuleHandler struct {
	rules RuleOperations
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(rules RuleOperations) *RuleHandler {
	return &RuleHandler{rules: rules}
}

// ListRules handles GET /api/v1/rules
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListActiveRules(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if rules == nil {
		rules = []models.EscalationRule{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rules),
		"rules": rules,
	})
}

// GetRule handles GET /api/v1/rules/{id}
func (h *RuleHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid rule ID")
		return
	}
	rule, err := h.rules.GetRule(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /api/v1/rules
func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid JSON body")
		return
	}
	rule, err := h.rules.CreateRule(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, rule)
}

// SetRuleActive handles PATCH /api/v1/rules/{id} with {"is_active": bool}
func (h *RuleHandler) SetRuleActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "Invalid rule ID")
		return
	}
	var req models.SetRuleActiveRequest
	if err := decodeJSON(r, &req); err != nil || req.IsActive == nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request", "is_active is required")
		return
	}
	rule, err := h.rules.SetRuleActive(r.Context(), id, *req.IsActive)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}
