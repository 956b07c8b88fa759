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

// PreferenceHandler handles HTTP requests for user preference endpoints.
type PreferenceHandler struct {
	service *service.PreferenceService
	logger  *slog.Logger
}

// NewPreferenceHandler creates a new preference HTTP handler.
func NewPreferenceHandler(svc *service.PreferenceService, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// DoNotDisturbRequest configures a user's quiet window.
type DoNotDisturbRequest struct {
	Enabled       bool   `json:"enabled"`
	StartTime     string `json:"start_time" validate:"omitempty,hhmm"`
	EndTime       string `json:"end_time" validate:"omitempty,hhmm"`
	Days          []int  `json:"days" validate:"omitempty,dive,gte=0,lte=6"`
	AllowUrgent   bool   `json:"allow_urgent"`
	AllowCritical bool   `json:"allow_critical"`
}

// EmailDigestRequest configures batched email summaries.
type EmailDigestRequest struct {
	Enabled   bool   `json:"enabled"`
	Frequency string `json:"frequency" validate:"omitempty,oneof=hourly daily weekly"`
	Time      string `json:"time" validate:"omitempty,hhmm"`
}

// TypeOverrideRequest is a per-notification-type preference override.
type TypeOverrideRequest struct {
	Enabled  bool     `json:"enabled"`
	Channels []string `json:"channels" validate:"omitempty,dive,oneof=in_app email sms push slack teams webhook"`
}

// PreferenceRequest is the JSON request body for replacing a user's preferences.
type PreferenceRequest struct {
	Enabled        bool                           `json:"enabled"`
	SoundEnabled   bool                           `json:"sound_enabled"`
	DesktopEnabled bool                           `json:"desktop_enabled"`
	MobileEnabled  bool                           `json:"mobile_enabled"`
	DoNotDisturb   DoNotDisturbRequest            `json:"do_not_disturb"`
	EmailDigest    EmailDigestRequest             `json:"email_digest"`
	TypeOverrides  map[string]TypeOverrideRequest `json:"type_overrides" validate:"omitempty,dive"`
}

func (req *PreferenceRequest) toDomain() *domain.Preference {
	pref := &domain.Preference{
		Enabled:        req.Enabled,
		SoundEnabled:   req.SoundEnabled,
		DesktopEnabled: req.DesktopEnabled,
		MobileEnabled:  req.MobileEnabled,
		DoNotDisturb: domain.DoNotDisturb{
			Enabled:       req.DoNotDisturb.Enabled,
			StartTime:     req.DoNotDisturb.StartTime,
			EndTime:       req.DoNotDisturb.EndTime,
			Days:          req.DoNotDisturb.Days,
			AllowUrgent:   req.DoNotDisturb.AllowUrgent,
			AllowCritical: req.DoNotDisturb.AllowCritical,
		},
		EmailDigest: domain.EmailDigest{
			Enabled:   req.EmailDigest.Enabled,
			Frequency: req.EmailDigest.Frequency,
			Time:      req.EmailDigest.Time,
		},
	}
	if len(req.TypeOverrides) > 0 {
		pref.TypeOverrides = make(map[domain.NotificationType]domain.TypeOverride, len(req.TypeOverrides))
		for t, ov := range req.TypeOverrides {
			channels := make([]domain.Channel, 0, len(ov.Channels))
			for _, ch := range ov.Channels {
				channels = append(channels, domain.Channel(ch))
			}
			pref.TypeOverrides[domain.NotificationType(t)] = domain.TypeOverride{
				Enabled:  ov.Enabled,
				Channels: channels,
			}
		}
	}
	return pref
}

// --- Handlers ---

// GetPreference handles GET /api/v1/preferences/{userId}
//
// A user with no stored row gets the defaults, never a 404.
func (h *PreferenceHandler) GetPreference(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	pref, err := h.service.GetPreference(r.Context(), middleware.TenantFromContext(r.Context()), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pref})
}

// UpdatePreference handles PUT/PATCH /api/v1/preferences/{userId}
func (h *PreferenceHandler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req PreferenceRequest
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

	pref, err := h.service.UpdatePreference(r.Context(), middleware.TenantFromContext(r.Context()), userID, req.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pref})
}
