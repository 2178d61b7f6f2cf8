package routes

import (
	"casewatch/handler"
	"casewatch/middleware"
	"net/http"

	"github.com/gorilla/mux"
)

// Dependencies are the pieces the router wires into handlers
type Dependencies struct {
	Escalations handler.EscalationOperations
	Cases       handler.CaseOperations
	Rules       handler.RuleOperations
	AdminAuth   *middleware.AdminAuth
	DB          handler.Pinger
	Metrics     http.Handler // nil disables the metrics endpoint
	MetricsPath string       // defaults to /metrics
}

// SetupRoutes configures all API routes
func SetupRoutes(deps Dependencies) *mux.Router {
	router := mux.NewRouter()

	escalationHandler := handler.NewEscalationHandler(deps.Escalations)
	caseHandler := handler.NewCaseHandler(deps.Cases)
	ruleHandler := handler.NewRuleHandler(deps.Rules)
	healthHandler := handler.NewHealthHandler(deps.DB)
	admin := deps.AdminAuth.RequireAdmin

	// API v1 routes
	apiV1 := router.PathPrefix("/api/v1").Subrouter()

	// Escalation routes (admin only)
	escalations := apiV1.PathPrefix("/escalations").Subrouter()

	// POST /api/v1/escalations/sweep - Run one sweep now (?company=&dry_run=)
	escalations.Handle("/sweep", admin(http.HandlerFunc(escalationHandler.RunSweep))).Methods("POST")

	// GET /api/v1/escalations - List escalations (?case_id=&company=&unresolved=&limit=)
	escalations.Handle("", admin(http.HandlerFunc(escalationHandler.ListEscalations))).Methods("GET")

	// POST /api/v1/escalations/{id}/resolve - Mark an escalation handled
	escalations.Handle("/{id:[0-9]+}/resolve", admin(http.HandlerFunc(escalationHandler.ResolveEscalation))).Methods("POST")

	// Case routes
	cases := apiV1.PathPrefix("/cases").Subrouter()

	// POST /api/v1/cases - Submit a case (public intake)
	cases.HandleFunc("", caseHandler.SubmitCase).Methods("POST")

	// POST /api/v1/cases/{id}/messages - Record a message on a case (public, reporter side)
	cases.HandleFunc("/{id:[0-9]+}/messages", caseHandler.PostMessage).Methods("POST")

	// POST /api/v1/cases/{id}/assign - Assign an investigator (admin)
	cases.Handle("/{id:[0-9]+}/assign", admin(http.HandlerFunc(caseHandler.AssignCase))).Methods("POST")

	// POST /api/v1/cases/{id}/resolve - Resolve a case (admin)
	cases.Handle("/{id:[0-9]+}/resolve", admin(http.HandlerFunc(caseHandler.ResolveCase))).Methods("POST")

	// Rule routes (admin only); changes apply from the next sweep
	rules := apiV1.PathPrefix("/rules").Subrouter()

	// GET /api/v1/rules - Active rules, highest priority first
	rules.Handle("", admin(http.HandlerFunc(ruleHandler.ListRules))).Methods("GET")

	// POST /api/v1/rules - Create a rule
	rules.Handle("", admin(http.HandlerFunc(ruleHandler.CreateRule))).Methods("POST")

	// GET /api/v1/rules/{id} - One rule
	rules.Handle("/{id:[0-9]+}", admin(http.HandlerFunc(ruleHandler.GetRule))).Methods("GET")

	// PATCH /api/v1/rules/{id} - Activate or deactivate a rule
	rules.Handle("/{id:[0-9]+}", admin(http.HandlerFunc(ruleHandler.SetRuleActive))).Methods("PATCH")

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, deps.Metrics).Methods("GET")
	}

	return router
}
