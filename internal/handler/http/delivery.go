package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heraldhq/herald/internal/service"
	"github.com/heraldhq/herald/pkg/httputil"
	"github.com/heraldhq/herald/pkg/middleware"
	"github.com/heraldhq/herald/pkg/validator"
)

// DeliveryHandler handles HTTP requests for delivery endpoints.
type DeliveryHandler struct {
	service *service.DeliveryService
	logger  *slog.Logger
}

// NewDeliveryHandler creates a new delivery HTTP handler.
func NewDeliveryHandler(svc *service.DeliveryService, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		service: svc,
		logger:  logger,
	}
}

// UpdateDeliveryStatusRequest is the JSON request body for provider status
// callbacks, such as an email provider confirming a delivery or bounce.
type UpdateDeliveryStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending sent delivered read failed bounced archived"`
}

// GetDelivery handles GET /api/v1/deliveries/{id}
func (h *DeliveryHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	delivery, err := h.service.GetDelivery(r.Context(), middleware.TenantFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: delivery})
}

// ListDeliveries handles GET /api/v1/notifications/{id}/deliveries
func (h *DeliveryHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	deliveries, err := h.service.ListDeliveries(r.Context(), middleware.TenantFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: deliveries})
}

// RetryDelivery handles POST /api/v1/deliveries/{id}/retry
func (h *DeliveryHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	delivery, err := h.service.RetryDelivery(r.Context(), middleware.TenantFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: delivery})
}

// UpdateDeliveryStatus handles PUT /api/v1/deliveries/{id}/status
func (h *DeliveryHandler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req UpdateDeliveryStatusRequest
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

	delivery, err := h.service.UpdateDeliveryStatus(r.Context(), middleware.TenantFromContext(r.Context()), id.String(), req.Status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: delivery})
}
