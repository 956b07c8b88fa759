package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/repository"
	"github.com/heraldhq/herald/internal/service"
	"github.com/heraldhq/herald/pkg/httputil"
	"github.com/heraldhq/herald/pkg/middleware"
	"github.com/heraldhq/herald/pkg/validator"
)

// NotificationHandler handles HTTP requests for notification endpoints.
type NotificationHandler struct {
	service *service.NotificationService
	logger  *slog.Logger
}

// NewNotificationHandler creates a new notification HTTP handler.
func NewNotificationHandler(svc *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateNotificationRequest is the JSON request body for creating a notification.
type CreateNotificationRequest struct {
	UserID   string         `json:"user_id" validate:"required"`
	Type     string         `json:"type" validate:"required,oneof=info success warning error system task mention comment approval reminder alert"`
	Priority string         `json:"priority" validate:"omitempty,oneof=low medium high urgent critical"`
	Title    string         `json:"title" validate:"required,max=500"`
	Message  string         `json:"message" validate:"required"`
	Channels []string       `json:"channels" validate:"omitempty,dive,oneof=in_app email sms push slack teams webhook"`
	Metadata map[string]any `json:"metadata"`
}

// CreateFromTemplateRequest is the JSON request body for template-based creation.
type CreateFromTemplateRequest struct {
	UserID    string         `json:"user_id" validate:"required"`
	Template  string         `json:"template" validate:"required"`
	Variables map[string]any `json:"variables"`
	Metadata  map[string]any `json:"metadata"`
}

// BulkRequest is the JSON request body for bulk status operations.
type BulkRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
}

// --- Handlers ---

// CreateNotification handles POST /api/v1/notifications
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1 MB to prevent abuse.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateNotificationRequest
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

	input := &service.CreateNotificationInput{
		UserID:   req.UserID,
		Type:     req.Type,
		Priority: req.Priority,
		Title:    req.Title,
		Message:  req.Message,
		Channels: req.Channels,
		Metadata: req.Metadata,
	}

	notification, err := h.service.CreateNotification(r.Context(), middleware.TenantFromContext(r.Context()), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: notification})
}

// CreateFromTemplate handles POST /api/v1/notifications/from-template
func (h *NotificationHandler) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateFromTemplateRequest
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

	input := &service.CreateFromTemplateInput{
		UserID:    req.UserID,
		Template:  req.Template,
		Variables: req.Variables,
		Metadata:  req.Metadata,
	}

	notification, err := h.service.CreateFromTemplate(r.Context(), middleware.TenantFromContext(r.Context()), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: notification})
}

// GetNotification handles GET /api/v1/notifications/{id}
func (h *NotificationHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	notification, err := h.service.GetNotification(r.Context(), middleware.TenantFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: notification})
}

// ListNotifications handles GET /api/v1/notifications
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseNotificationFilter(w, r)
	if !ok {
		return
	}
	page, perPage, ok := parsePagination(w, r)
	if !ok {
		return
	}
	filter.Offset = (page - 1) * perPage
	filter.Limit = perPage

	notifications, total, err := h.service.ListNotifications(r.Context(), middleware.TenantFromContext(r.Context()), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse[domain.Notification](notifications, total, page, perPage))
}

// GroupNotifications handles GET /api/v1/notifications/groups
func (h *NotificationHandler) GroupNotifications(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("group_by")
	if mode == "" {
		mode = string(domain.GroupByDate)
	}

	filter, ok := parseNotificationFilter(w, r)
	if !ok {
		return
	}

	groups, err := h.service.GroupNotifications(r.Context(), middleware.TenantFromContext(r.Context()), domain.GroupBy(mode), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: groups})
}

// GetStats handles GET /api/v1/notifications/stats
func (h *NotificationHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context(), middleware.TenantFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}

// MarkRead handles PUT /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.MarkRead)
}

// MarkUnread handles PUT /api/v1/notifications/{id}/unread
func (h *NotificationHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.MarkUnread)
}

// Archive handles PUT /api/v1/notifications/{id}/archive
func (h *NotificationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.Archive)
}

// DeleteNotification handles DELETE /api/v1/notifications/{id}
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteNotification(r.Context(), middleware.TenantFromContext(r.Context()), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BulkMarkRead handles POST /api/v1/notifications/bulk/read
func (h *NotificationHandler) BulkMarkRead(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.service.BulkMarkRead)
}

// BulkArchive handles POST /api/v1/notifications/bulk/archive
func (h *NotificationHandler) BulkArchive(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.service.BulkArchive)
}

// BulkDelete handles POST /api/v1/notifications/bulk/delete
func (h *NotificationHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.service.BulkDelete)
}

func (h *NotificationHandler) setStatus(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, string, string) (*domain.Notification, error),
) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	notification, err := op(r.Context(), middleware.TenantFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: notification})
}

func (h *NotificationHandler) bulk(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, string, []string) []service.BulkResult,
) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req BulkRequest
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

	results := op(r.Context(), middleware.TenantFromContext(r.Context()), req.IDs)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: results})
}

// --- Query parsing helpers ---

func parsePagination(w http.ResponseWriter, r *http.Request) (page, perPage int, ok bool) {
	page = 1
	perPage = 20

	if v := r.URL.Query().Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "page must be a valid positive integer"},
			})
			return 0, 0, false
		}
		page = p
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		pp, err := strconv.Atoi(v)
		if err != nil || pp < 1 || pp > 100 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "per_page must be a valid integer between 1 and 100"},
			})
			return 0, 0, false
		}
		perPage = pp
	}

	return page, perPage, true
}

func parseNotificationFilter(w http.ResponseWriter, r *http.Request) (repository.NotificationFilter, bool) {
	q := r.URL.Query()
	var f repository.NotificationFilter

	f.UserID = q.Get("user_id")
	f.Source = q.Get("source")

	for _, v := range q["type"] {
		if !domain.IsValidType(v) {
			writeInvalidParameter(w, "invalid type: "+v)
			return f, false
		}
		f.Types = append(f.Types, domain.NotificationType(v))
	}
	for _, v := range q["status"] {
		if !domain.IsValidNotificationStatus(v) {
			writeInvalidParameter(w, "invalid status: "+v)
			return f, false
		}
		f.Statuses = append(f.Statuses, domain.NotificationStatus(v))
	}
	for _, v := range q["priority"] {
		if !domain.IsValidPriority(v) {
			writeInvalidParameter(w, "invalid priority: "+v)
			return f, false
		}
		f.Priorities = append(f.Priorities, domain.Priority(v))
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeInvalidParameter(w, "since must be an RFC 3339 timestamp")
			return f, false
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeInvalidParameter(w, "until must be an RFC 3339 timestamp")
			return f, false
		}
		f.Until = t
	}

	return f, true
}

func writeInvalidParameter(w http.ResponseWriter, msg string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: msg},
	})
}
