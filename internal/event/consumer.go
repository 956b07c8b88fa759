package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/service"
	apperrors "github.com/heraldhq/herald/pkg/errors"
	pkgkafka "github.com/heraldhq/herald/pkg/kafka"
)

// Topic consumed from producing services.
const TopicNotificationRequested = "herald.notification.requested"

// Consumer group ID for this service.
const ConsumerGroupID = "herald"

// NotificationRequestedData is the payload other services publish to request
// a notification. Either Template plus Variables or Title plus Message must
// be set; the template form wins when both are present.
type NotificationRequestedData struct {
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message,omitempty"`
	Template  string         `json:"template,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Channels  []string       `json:"channels,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NotificationCreator is the slice of the notification service the consumer
// needs.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, tenantID string, input *service.CreateNotificationInput) (*domain.Notification, error)
	CreateFromTemplate(ctx context.Context, tenantID string, input *service.CreateFromTemplateInput) (*domain.Notification, error)
}

// ConsumerHandler routes incoming Kafka events to the notification service.
type ConsumerHandler struct {
	notifications NotificationCreator
	logger        *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler.
func NewConsumerHandler(notifications NotificationCreator, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		notifications: notifications,
		logger:        logger,
	}
}

// Handle processes an incoming Kafka event based on its event type.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicNotificationRequested:
		return h.handleNotificationRequested(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleNotificationRequested turns a requested event into a stored,
// dispatched notification. Malformed payloads are dropped after logging:
// retrying a request that cannot validate would poison the partition.
func (h *ConsumerHandler) handleNotificationRequested(ctx context.Context, event *pkgkafka.Event) error {
	var data NotificationRequestedData
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.ErrorContext(ctx, "malformed notification.requested payload, dropping",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	tenantID := data.TenantID
	if tenantID == "" {
		tenantID = "default"
	}

	var (
		n   *domain.Notification
		err error
	)
	if data.Template != "" {
		n, err = h.notifications.CreateFromTemplate(ctx, tenantID, &service.CreateFromTemplateInput{
			UserID:    data.UserID,
			Template:  data.Template,
			Variables: data.Variables,
			Metadata:  data.Metadata,
		})
	} else {
		n, err = h.notifications.CreateNotification(ctx, tenantID, &service.CreateNotificationInput{
			UserID:   data.UserID,
			Type:     data.Type,
			Priority: data.Priority,
			Title:    data.Title,
			Message:  data.Message,
			Channels: data.Channels,
			Metadata: data.Metadata,
		})
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) || errors.Is(err, apperrors.ErrNotFound) {
			h.logger.ErrorContext(ctx, "invalid notification request, dropping",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("handle notification.requested: %w", err)
	}

	h.logger.InfoContext(ctx, "notification created from event",
		slog.String("event_id", event.EventID),
		slog.String("notification_id", n.ID),
	)
	return nil
}

// NewConsumers creates Kafka consumers for every topic this service
// subscribes to.
func NewConsumers(brokers []string, handler *ConsumerHandler, logger *slog.Logger) []*pkgkafka.Consumer {
	topics := []string{
		TopicNotificationRequested,
	}

	consumers := make([]*pkgkafka.Consumer, 0, len(topics))
	for _, topic := range topics {
		cfg := pkgkafka.ConsumerConfig{
			Brokers:  brokers,
			GroupID:  ConsumerGroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}
		consumers = append(consumers, pkgkafka.NewConsumer(cfg, handler.Handle, logger))
	}
	return consumers
}
