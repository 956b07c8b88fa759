package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heraldhq/herald/internal/service"
	"github.com/heraldhq/herald/pkg/health"
	"github.com/heraldhq/herald/pkg/middleware"
)

// NewRouter creates a chi router with all engine routes registered. Every
// /api/v1 route is tenant-scoped through the X-Tenant-ID header.
func NewRouter(
	notificationService *service.NotificationService,
	ruleService *service.RuleService,
	templateService *service.TemplateService,
	preferenceService *service.PreferenceService,
	channelService *service.ChannelService,
	deliveryService *service.DeliveryService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS)
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("herald"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	notificationHandler := NewNotificationHandler(notificationService, logger)
	ruleHandler := NewRuleHandler(ruleService, logger)
	templateHandler := NewTemplateHandler(templateService, logger)
	preferenceHandler := NewPreferenceHandler(preferenceService, logger)
	channelHandler := NewChannelHandler(channelService, logger)
	deliveryHandler := NewDeliveryHandler(deliveryService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Tenant())

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", notificationHandler.CreateNotification)
			r.Post("/from-template", notificationHandler.CreateFromTemplate)
			r.Get("/", notificationHandler.ListNotifications)
			r.Get("/groups", notificationHandler.GroupNotifications)
			r.Get("/stats", notificationHandler.GetStats)
			r.Post("/bulk/read", notificationHandler.BulkMarkRead)
			r.Post("/bulk/archive", notificationHandler.BulkArchive)
			r.Post("/bulk/delete", notificationHandler.BulkDelete)
			r.Get("/{id}", notificationHandler.GetNotification)
			r.Delete("/{id}", notificationHandler.DeleteNotification)
			r.Put("/{id}/read", notificationHandler.MarkRead)
			r.Put("/{id}/unread", notificationHandler.MarkUnread)
			r.Put("/{id}/archive", notificationHandler.Archive)
			r.Get("/{id}/deliveries", deliveryHandler.ListDeliveries)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Post("/", ruleHandler.CreateRule)
			r.Get("/", ruleHandler.ListRules)
			r.Post("/test", ruleHandler.TestRule)
			r.Get("/{id}", ruleHandler.GetRule)
			r.Put("/{id}", ruleHandler.UpdateRule)
			r.Delete("/{id}", ruleHandler.DeleteRule)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", templateHandler.CreateTemplate)
			r.Get("/", templateHandler.ListTemplates)
			r.Get("/{id}", templateHandler.GetTemplate)
			r.Put("/{id}", templateHandler.UpdateTemplate)
			r.Delete("/{id}", templateHandler.DeleteTemplate)
			r.Post("/{id}/preview", templateHandler.PreviewTemplate)
		})

		r.Route("/preferences/{userId}", func(r chi.Router) {
			r.Get("/", preferenceHandler.GetPreference)
			r.Put("/", preferenceHandler.UpdatePreference)
			r.Patch("/", preferenceHandler.UpdatePreference)
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", channelHandler.ListChannelConfigs)
			r.Get("/{channel}", channelHandler.GetChannelConfig)
			r.Put("/{channel}", channelHandler.UpsertChannelConfig)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/{id}", deliveryHandler.GetDelivery)
			r.Post("/{id}/retry", deliveryHandler.RetryDelivery)
			r.Put("/{id}/status", deliveryHandler.UpdateDeliveryStatus)
		})
	})

	return r
}
