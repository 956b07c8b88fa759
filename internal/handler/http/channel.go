package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/service"
	"github.com/heraldhq/herald/pkg/httputil"
	"github.com/heraldhq/herald/pkg/middleware"
	"github.com/heraldhq/herald/pkg/validator"
)

// ChannelHandler handles HTTP requests for channel configuration endpoints.
type ChannelHandler struct {
	service *service.ChannelService
	logger  *slog.Logger
}

// NewChannelHandler creates a new channel config HTTP handler.
func NewChannelHandler(svc *service.ChannelService, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// RateLimitRequest caps deliveries on a channel per minute, hour, and day.
type RateLimitRequest struct {
	MaxPerMinute int `json:"max_per_minute" validate:"gte=0"`
	MaxPerHour   int `json:"max_per_hour" validate:"gte=0"`
	MaxPerDay    int `json:"max_per_day" validate:"gte=0"`
}

// RetryPolicyRequest configures backoff between failed delivery attempts.
// Delays are in milliseconds.
type RetryPolicyRequest struct {
	MaxAttempts       int     `json:"max_attempts" validate:"gte=1,lte=10"`
	BackoffMultiplier float64 `json:"backoff_multiplier" validate:"gte=1"`
	InitialDelayMs    int     `json:"initial_delay_ms" validate:"gte=0"`
	MaxDelayMs        int     `json:"max_delay_ms" validate:"gte=0"`
}

// ChannelConfigRequest is the JSON request body for configuring a channel.
type ChannelConfigRequest struct {
	Enabled     bool                `json:"enabled"`
	Settings    map[string]any      `json:"settings"`
	RateLimit   *RateLimitRequest   `json:"rate_limit" validate:"omitempty"`
	RetryPolicy *RetryPolicyRequest `json:"retry_policy" validate:"omitempty"`
}

func (req *ChannelConfigRequest) toDomain(channel domain.Channel) *domain.ChannelConfig {
	cfg := &domain.ChannelConfig{
		Channel:  channel,
		Enabled:  req.Enabled,
		Settings: req.Settings,
	}
	if req.RateLimit != nil {
		cfg.RateLimit = domain.RateLimit{
			MaxPerMinute: req.RateLimit.MaxPerMinute,
			MaxPerHour:   req.RateLimit.MaxPerHour,
			MaxPerDay:    req.RateLimit.MaxPerDay,
		}
	}
	if req.RetryPolicy != nil {
		cfg.RetryPolicy = domain.RetryPolicy{
			MaxAttempts:       req.RetryPolicy.MaxAttempts,
			BackoffMultiplier: req.RetryPolicy.BackoffMultiplier,
			InitialDelay:      time.Duration(req.RetryPolicy.InitialDelayMs) * time.Millisecond,
			MaxDelay:          time.Duration(req.RetryPolicy.MaxDelayMs) * time.Millisecond,
		}
	}
	return cfg
}

// --- Handlers ---

// UpsertChannelConfig handles PUT /api/v1/channels/{channel}
func (h *ChannelHandler) UpsertChannelConfig(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if !domain.IsValidChannel(channel) {
		writeInvalidParameter(w, "invalid channel: "+channel)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ChannelConfigRequest
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

	cfg, err := h.service.UpsertChannelConfig(r.Context(), middleware.TenantFromContext(r.Context()), req.toDomain(domain.Channel(channel)))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cfg})
}

// GetChannelConfig handles GET /api/v1/channels/{channel}
func (h *ChannelHandler) GetChannelConfig(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if !domain.IsValidChannel(channel) {
		writeInvalidParameter(w, "invalid channel: "+channel)
		return
	}

	cfg, err := h.service.GetChannelConfig(r.Context(), middleware.TenantFromContext(r.Context()), domain.Channel(channel))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cfg})
}

// ListChannelConfigs handles GET /api/v1/channels
func (h *ChannelHandler) ListChannelConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.ListChannelConfigs(r.Context(), middleware.TenantFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: configs})
}
