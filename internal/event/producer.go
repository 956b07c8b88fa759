package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heraldhq/herald/internal/domain"
	pkgkafka "github.com/heraldhq/herald/pkg/kafka"
)

// Kafka topic constants for notification domain events.
const (
	TopicNotificationCreated = "herald.notification.created"
	TopicDeliverySent        = "herald.delivery.sent"
	TopicDeliveryFailed      = "herald.delivery.failed"
)

// Aggregate type constants.
const (
	AggregateTypeNotification = "notification"
	AggregateTypeDelivery     = "delivery"
)

// Source identifier for events originating from this service.
const SourceHerald = "herald"

// NotificationCreatedData is the payload for a notification.created event.
type NotificationCreatedData struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Title    string `json:"title"`
}

// DeliverySentData is the payload for a delivery.sent event.
type DeliverySentData struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	NotificationID string `json:"notification_id"`
	Channel        string `json:"channel"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
}

// DeliveryFailedData is the payload for a delivery.failed event.
type DeliveryFailedData struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	NotificationID string `json:"notification_id"`
	Channel        string `json:"channel"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// Producer publishes notification domain events to Kafka. A nil underlying
// producer disables publishing, used in tests and broker-less deployments.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishNotificationCreated publishes a notification.created event.
func (p *Producer) PublishNotificationCreated(ctx context.Context, n *domain.Notification) error {
	if p.kafka == nil {
		return nil
	}

	data := NotificationCreatedData{
		ID:       n.ID,
		TenantID: n.TenantID,
		UserID:   n.UserID,
		Type:     string(n.Type),
		Priority: string(n.Priority),
		Title:    n.Title,
	}

	event, err := pkgkafka.NewEvent(TopicNotificationCreated, n.ID, AggregateTypeNotification, SourceHerald, data)
	if err != nil {
		return fmt.Errorf("create notification.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicNotificationCreated, event); err != nil {
		return fmt.Errorf("publish notification.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published notification.created event",
		slog.String("notification_id", n.ID),
	)

	return nil
}

// PublishDeliverySent publishes a delivery.sent event.
func (p *Producer) PublishDeliverySent(ctx context.Context, d *domain.Delivery) error {
	if p.kafka == nil {
		return nil
	}

	data := DeliverySentData{
		ID:             d.ID,
		TenantID:       d.TenantID,
		NotificationID: d.NotificationID,
		Channel:        string(d.Channel),
		Status:         string(d.Status),
		Attempts:       d.Attempts,
	}

	event, err := pkgkafka.NewEvent(TopicDeliverySent, d.ID, AggregateTypeDelivery, SourceHerald, data)
	if err != nil {
		return fmt.Errorf("create delivery.sent event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicDeliverySent, event); err != nil {
		return fmt.Errorf("publish delivery.sent event: %w", err)
	}

	p.logger.DebugContext(ctx, "published delivery.sent event",
		slog.String("delivery_id", d.ID),
		slog.String("channel", string(d.Channel)),
	)

	return nil
}

// PublishDeliveryFailed publishes a delivery.failed event.
func (p *Producer) PublishDeliveryFailed(ctx context.Context, d *domain.Delivery) error {
	if p.kafka == nil {
		return nil
	}

	data := DeliveryFailedData{
		ID:             d.ID,
		TenantID:       d.TenantID,
		NotificationID: d.NotificationID,
		Channel:        string(d.Channel),
		Status:         string(d.Status),
		Attempts:       d.Attempts,
		ErrorMessage:   d.ErrorMessage,
	}

	event, err := pkgkafka.NewEvent(TopicDeliveryFailed, d.ID, AggregateTypeDelivery, SourceHerald, data)
	if err != nil {
		return fmt.Errorf("create delivery.failed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicDeliveryFailed, event); err != nil {
		return fmt.Errorf("publish delivery.failed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published delivery.failed event",
		slog.String("delivery_id", d.ID),
		slog.String("channel", string(d.Channel)),
	)

	return nil
}
