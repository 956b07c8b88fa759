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

// TemplateHandler handles HTTP requests for notification template endpoints.
type TemplateHandler struct {
	service *service.TemplateService
	logger  *slog.Logger
}

// NewTemplateHandler creates a new template HTTP handler.
func NewTemplateHandler(svc *service.TemplateService, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// TemplateRequest is the JSON request body for creating or updating a template.
type TemplateRequest struct {
	Name            string   `json:"name" validate:"required,max=200"`
	Type            string   `json:"type" validate:"required,oneof=info success warning error system task mention comment approval reminder alert"`
	Priority        string   `json:"priority" validate:"required,oneof=low medium high urgent critical"`
	Channels        []string `json:"channels" validate:"omitempty,dive,oneof=in_app email sms push slack teams webhook"`
	TitleTemplate   string   `json:"title_template" validate:"required,max=500"`
	MessageTemplate string   `json:"message_template" validate:"required"`
	Variables       []string `json:"variables"`
	Active          *bool    `json:"active"`
}

func (req *TemplateRequest) toDomain() *domain.NotificationTemplate {
	tmpl := &domain.NotificationTemplate{
		Name:            req.Name,
		Type:            domain.NotificationType(req.Type),
		Priority:        domain.Priority(req.Priority),
		TitleTemplate:   req.TitleTemplate,
		MessageTemplate: req.MessageTemplate,
		Variables:       req.Variables,
		Active:          true,
	}
	if req.Active != nil {
		tmpl.Active = *req.Active
	}
	for _, ch := range req.Channels {
		tmpl.Channels = append(tmpl.Channels, domain.Channel(ch))
	}
	return tmpl
}

// PreviewTemplateRequest is the JSON request body for rendering a template
// without creating a notification.
type PreviewTemplateRequest struct {
	Variables map[string]any `json:"variables"`
}

// --- Handlers ---

// CreateTemplate handles POST /api/v1/templates
func (h *TemplateHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req TemplateRequest
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

	tmpl, err := h.service.CreateTemplate(r.Context(), middleware.TenantFromContext(r.Context()), req.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: tmpl})
}

// GetTemplate handles GET /api/v1/templates/{id}
func (h *TemplateHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	tmpl, err := h.service.GetTemplate(r.Context(), middleware.TenantFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tmpl})
}

// UpdateTemplate handles PUT /api/v1/templates/{id}
func (h *TemplateHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req TemplateRequest
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

	tmpl, err := h.service.UpdateTemplate(r.Context(), middleware.TenantFromContext(r.Context()), id.String(), req.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tmpl})
}

// DeleteTemplate handles DELETE /api/v1/templates/{id}
func (h *TemplateHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteTemplate(r.Context(), middleware.TenantFromContext(r.Context()), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTemplates handles GET /api/v1/templates
func (h *TemplateHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context(), middleware.TenantFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: templates})
}

// PreviewTemplate handles POST /api/v1/templates/{id}/preview
func (h *TemplateHandler) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req PreviewTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	rendered, err := h.service.PreviewTemplate(r.Context(), middleware.TenantFromContext(r.Context()), id.String(), req.Variables)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: rendered})
}
