package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/service"
	"github.com/heraldhq/herald/pkg/httputil"
	"github.com/heraldhq/herald/pkg/middleware"
	"github.com/heraldhq/herald/pkg/validator"
)

// RuleHandler handles HTTP requests for routing rule endpoints.
type RuleHandler struct {
	service *service.RuleService
	logger  *slog.Logger
}

// NewRuleHandler creates a new rule HTTP handler.
func NewRuleHandler(svc *service.RuleService, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// ConditionRequest is one condition within a rule request body.
type ConditionRequest struct {
	Field    string `json:"field" validate:"required"`
	Operator string `json:"operator" validate:"required,oneof=eq ne gt gte lt lte in nin contains matches"`
	Value    any    `json:"value"`
}

// ActionRequest is one action within a rule request body.
type ActionRequest struct {
	Type   string         `json:"type" validate:"required,oneof=route escalate suppress transform delay"`
	Config map[string]any `json:"config"`
}

// RuleRequest is the JSON request body for creating or updating a rule.
type RuleRequest struct {
	Name       string             `json:"name" validate:"required,max=200"`
	Enabled    *bool              `json:"enabled"`
	Priority   int                `json:"priority" validate:"gte=0,lte=1000"`
	Logic      string             `json:"condition_logic" validate:"required,oneof=AND OR"`
	Conditions []ConditionRequest `json:"conditions" validate:"required,min=1,dive"`
	Actions    []ActionRequest    `json:"actions" validate:"required,min=1,dive"`
}

func (req *RuleRequest) toDomain() *domain.Rule {
	rule := &domain.Rule{
		Name:     req.Name,
		Enabled:  true,
		Priority: req.Priority,
		Logic:    domain.ConditionLogic(req.Logic),
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	for _, c := range req.Conditions {
		rule.Conditions = append(rule.Conditions, domain.Condition{
			Field:    c.Field,
			Operator: domain.Operator(c.Operator),
			Value:    c.Value,
		})
	}
	for _, a := range req.Actions {
		rule.Actions = append(rule.Actions, domain.Action{
			Type:   domain.ActionType(a.Type),
			Config: a.Config,
		})
	}
	return rule
}

// TestRuleRequest is the JSON request body for a dry-run rule evaluation.
type TestRuleRequest struct {
	Rule   RuleRequest        `json:"rule" validate:"required"`
	Sample SampleNotification `json:"sample" validate:"required"`
}

// SampleNotification is the synthetic notification a rule is tested against.
// It never touches the store.
type SampleNotification struct {
	UserID   string         `json:"user_id"`
	Type     string         `json:"type" validate:"required,oneof=info success warning error system task mention comment approval reminder alert"`
	Priority string         `json:"priority" validate:"omitempty,oneof=low medium high urgent critical"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

// --- Handlers ---

// CreateRule handles POST /api/v1/rules
func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	rule, err := h.service.CreateRule(r.Context(), middleware.TenantFromContext(r.Context()), req.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: rule})
}

// GetRule handles GET /api/v1/rules/{id}
func (h *RuleHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	rule, err := h.service.GetRule(r.Context(), middleware.TenantFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: rule})
}

// UpdateRule handles PUT /api/v1/rules/{id}
func (h *RuleHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	rule, err := h.service.UpdateRule(r.Context(), middleware.TenantFromContext(r.Context()), id.String(), req.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: rule})
}

// DeleteRule handles DELETE /api/v1/rules/{id}
func (h *RuleHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteRule(r.Context(), middleware.TenantFromContext(r.Context()), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListRules handles GET /api/v1/rules
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context(), middleware.TenantFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: rules})
}

// TestRule handles POST /api/v1/rules/test
func (h *RuleHandler) TestRule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req TestRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sample := &domain.Notification{
		UserID:   req.Sample.UserID,
		Type:     domain.NotificationType(req.Sample.Type),
		Priority: domain.Priority(req.Sample.Priority),
		Title:    req.Sample.Title,
		Message:  req.Sample.Message,
		Metadata: req.Sample.Metadata,
	}
	if sample.Priority == "" {
		sample.Priority = domain.PriorityMedium
	}

	results, err := h.service.TestRule(r.Context(), req.Rule.toDomain(), sample)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"matched": len(results) > 0,
		"actions": results,
	}})
}
