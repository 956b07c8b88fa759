package repository

import (
	"context"
	"time"

	"github.com/heraldhq/herald/internal/domain"
)

// NotificationFilter narrows notification listings. Zero values mean
// "no constraint"; Limit of zero falls back to the store default.
type NotificationFilter struct {
	UserID     string
	Types      []domain.NotificationType
	Statuses   []domain.NotificationStatus
	Priorities []domain.Priority
	Source     string
	Since      time.Time
	Until      time.Time
	Offset     int
	Limit      int
}

// NotificationRepository defines the interface for notification persistence operations.
type NotificationRepository interface {
	// Create inserts a new notification into the store.
	Create(ctx context.Context, notification *domain.Notification) error

	// GetByID retrieves a tenant's notification by its unique identifier.
	GetByID(ctx context.Context, tenantID, id string) (*domain.Notification, error)

	// Update modifies an existing notification in the store.
	Update(ctx context.Context, notification *domain.Notification) error

	// Delete removes a tenant's notification and its delivery records.
	Delete(ctx context.Context, tenantID, id string) error

	// List returns a tenant's notifications matching the filter, newest first,
	// plus the total match count before pagination.
	List(ctx context.Context, tenantID string, filter NotificationFilter) ([]domain.Notification, int, error)

	// CountByStatus returns per-status notification counts for a tenant.
	CountByStatus(ctx context.Context, tenantID string) (map[domain.NotificationStatus]int, error)

	// CountByPriority returns per-priority notification counts for a tenant.
	CountByPriority(ctx context.Context, tenantID string) (map[domain.Priority]int, error)
}

// TemplateRepository defines the interface for notification template persistence.
type TemplateRepository interface {
	Create(ctx context.Context, tmpl *domain.NotificationTemplate) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.NotificationTemplate, error)
	GetByName(ctx context.Context, tenantID, name string) (*domain.NotificationTemplate, error)
	Update(ctx context.Context, tmpl *domain.NotificationTemplate) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string) ([]domain.NotificationTemplate, error)
}

// RuleRepository defines the interface for routing rule persistence.
type RuleRepository interface {
	Create(ctx context.Context, rule *domain.Rule) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Rule, error)
	Update(ctx context.Context, rule *domain.Rule) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string) ([]domain.Rule, error)

	// ListEnabled returns only rules the engine should evaluate.
	ListEnabled(ctx context.Context, tenantID string) ([]domain.Rule, error)
}

// ChannelConfigRepository defines the interface for per-channel configuration.
type ChannelConfigRepository interface {
	// Upsert creates or replaces a tenant's configuration for a channel.
	Upsert(ctx context.Context, cfg *domain.ChannelConfig) error
	GetByChannel(ctx context.Context, tenantID string, channel domain.Channel) (*domain.ChannelConfig, error)
	List(ctx context.Context, tenantID string) ([]domain.ChannelConfig, error)
}

// DeliveryRepository defines the interface for delivery attempt persistence.
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *domain.Delivery) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Delivery, error)
	Update(ctx context.Context, delivery *domain.Delivery) error
	ListByNotification(ctx context.Context, tenantID, notificationID string) ([]domain.Delivery, error)

	// CountByStatus returns per-status delivery counts for a tenant.
	CountByStatus(ctx context.Context, tenantID string) (map[domain.DeliveryStatus]int, error)
}

// PreferenceRepository defines the interface for user preference persistence.
type PreferenceRepository interface {
	// Get returns the stored preference for a user, or apperrors.ErrNotFound
	// when the user has never saved one.
	Get(ctx context.Context, tenantID, userID string) (*domain.Preference, error)

	// Upsert creates or replaces a user's preference row.
	Upsert(ctx context.Context, pref *domain.Preference) error
}
