package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/render"
	"github.com/heraldhq/herald/internal/repository"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

// Dispatcher hands freshly created notifications to the delivery pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *domain.Notification) error
}

// CreatedPublisher emits notification.created events.
type CreatedPublisher interface {
	PublishNotificationCreated(ctx context.Context, n *domain.Notification) error
}

// NotificationService implements the business logic for notification operations.
type NotificationService struct {
	repo       repository.NotificationRepository
	templates  repository.TemplateRepository
	deliveries repository.DeliveryRepository
	dispatcher Dispatcher
	producer   CreatedPublisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewNotificationService creates a new notification service.
func NewNotificationService(
	repo repository.NotificationRepository,
	templates repository.TemplateRepository,
	deliveries repository.DeliveryRepository,
	dispatcher Dispatcher,
	producer CreatedPublisher,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		repo:       repo,
		templates:  templates,
		deliveries: deliveries,
		dispatcher: dispatcher,
		producer:   producer,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateNotificationInput holds the parameters for creating a notification.
type CreateNotificationInput struct {
	UserID   string
	Type     string
	Priority string
	Title    string
	Message  string
	Channels []string
	Metadata map[string]any
}

// CreateNotification validates the input, stores the notification, publishes
// the created event, and hands it to the delivery pipeline.
func (s *NotificationService) CreateNotification(ctx context.Context, tenantID string, input *CreateNotificationInput) (*domain.Notification, error) {
	if input.UserID == "" {
		return nil, apperrors.InvalidInput("user_id is required")
	}
	if input.Type == "" {
		return nil, apperrors.InvalidInput("type is required")
	}
	if !domain.IsValidType(input.Type) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid notification type %q", input.Type))
	}
	if input.Title == "" {
		return nil, apperrors.InvalidInput("title is required")
	}
	if input.Message == "" {
		return nil, apperrors.InvalidInput("message is required")
	}

	priority := input.Priority
	if priority == "" {
		priority = string(domain.PriorityMedium)
	}
	if !domain.IsValidPriority(priority) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid priority %q", priority))
	}

	channels := make([]domain.Channel, 0, len(input.Channels))
	for _, ch := range input.Channels {
		if !domain.IsValidChannel(ch) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid channel %q", ch))
		}
		channels = append(channels, domain.Channel(ch))
	}

	now := s.now()
	notification := &domain.Notification{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    input.UserID,
		Type:      domain.NotificationType(input.Type),
		Priority:  domain.Priority(priority),
		Title:     input.Title,
		Message:   input.Message,
		Status:    domain.NotificationPending,
		Channels:  channels,
		Metadata:  input.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if notification.Metadata == nil {
		notification.Metadata = make(map[string]any)
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, apperrors.Wrap(err, "create notification")
	}

	if err := s.producer.PublishNotificationCreated(ctx, notification); err != nil {
		s.logger.ErrorContext(ctx, "publish notification.created failed",
			slog.String("notification_id", notification.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
		s.logger.ErrorContext(ctx, "dispatch failed",
			slog.String("notification_id", notification.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "notification created",
		slog.String("notification_id", notification.ID),
		slog.String("user_id", notification.UserID),
		slog.String("type", string(notification.Type)),
	)

	return notification, nil
}

// CreateFromTemplateInput holds the parameters for template-based creation.
type CreateFromTemplateInput struct {
	UserID    string
	Template  string
	Variables map[string]any
	Metadata  map[string]any
}

// CreateFromTemplate renders the named template with the given variables and
// creates the resulting notification. A missing variable fails the whole
// request; partial renders never reach users.
func (s *NotificationService) CreateFromTemplate(ctx context.Context, tenantID string, input *CreateFromTemplateInput) (*domain.Notification, error) {
	if input.UserID == "" {
		return nil, apperrors.InvalidInput("user_id is required")
	}
	if input.Template == "" {
		return nil, apperrors.InvalidInput("template is required")
	}

	tmpl, err := s.templates.GetByName(ctx, tenantID, input.Template)
	if err != nil {
		return nil, err
	}
	if !tmpl.Active {
		return nil, apperrors.InvalidInput(fmt.Sprintf("template %q is inactive", input.Template))
	}

	rendered, err := render.Render(tmpl, input.Variables)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	channels := make([]string, len(tmpl.Channels))
	for i, ch := range tmpl.Channels {
		channels[i] = string(ch)
	}

	return s.CreateNotification(ctx, tenantID, &CreateNotificationInput{
		UserID:   input.UserID,
		Type:     string(tmpl.Type),
		Priority: string(tmpl.Priority),
		Title:    rendered.Title,
		Message:  rendered.Message,
		Channels: channels,
		Metadata: input.Metadata,
	})
}

// GetNotification returns a tenant's notification by id.
func (s *NotificationService) GetNotification(ctx context.Context, tenantID, id string) (*domain.Notification, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// ListNotifications returns notifications matching the filter with the total
// match count.
func (s *NotificationService) ListNotifications(ctx context.Context, tenantID string, filter repository.NotificationFilter) ([]domain.Notification, int, error) {
	return s.repo.List(ctx, tenantID, filter)
}

// MarkRead marks a notification read.
func (s *NotificationService) MarkRead(ctx context.Context, tenantID, id string) (*domain.Notification, error) {
	return s.setStatus(ctx, tenantID, id, domain.NotificationRead)
}

// MarkUnread reverses a read marking, returning the notification to the
// delivered state.
func (s *NotificationService) MarkUnread(ctx context.Context, tenantID, id string) (*domain.Notification, error) {
	n, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if n.Status != domain.NotificationRead {
		return nil, apperrors.InvalidTransition(string(n.Status), string(domain.NotificationDelivered))
	}
	n.Status = domain.NotificationDelivered
	n.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Archive moves a notification to the archived state. Archival is terminal.
func (s *NotificationService) Archive(ctx context.Context, tenantID, id string) (*domain.Notification, error) {
	return s.setStatus(ctx, tenantID, id, domain.NotificationArchived)
}

func (s *NotificationService) setStatus(ctx context.Context, tenantID, id string, status domain.NotificationStatus) (*domain.Notification, error) {
	n, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if n.Status == domain.NotificationArchived {
		return nil, apperrors.InvalidTransition(string(n.Status), string(status))
	}
	n.Status = status
	n.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// DeleteNotification removes a notification and its delivery history.
func (s *NotificationService) DeleteNotification(ctx context.Context, tenantID, id string) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// BulkResult reports the outcome of one id within a bulk operation.
type BulkResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BulkMarkRead marks many notifications read, reporting per-id outcomes.
// One bad id never aborts the rest.
func (s *NotificationService) BulkMarkRead(ctx context.Context, tenantID string, ids []string) []BulkResult {
	return s.bulk(ctx, ids, func(ctx context.Context, id string) error {
		_, err := s.MarkRead(ctx, tenantID, id)
		return err
	})
}

// BulkArchive archives many notifications, reporting per-id outcomes.
func (s *NotificationService) BulkArchive(ctx context.Context, tenantID string, ids []string) []BulkResult {
	return s.bulk(ctx, ids, func(ctx context.Context, id string) error {
		_, err := s.Archive(ctx, tenantID, id)
		return err
	})
}

// BulkDelete removes many notifications, reporting per-id outcomes.
func (s *NotificationService) BulkDelete(ctx context.Context, tenantID string, ids []string) []BulkResult {
	return s.bulk(ctx, ids, func(ctx context.Context, id string) error {
		return s.repo.Delete(ctx, tenantID, id)
	})
}

func (s *NotificationService) bulk(ctx context.Context, ids []string, op func(context.Context, string) error) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		if err := op(ctx, id); err != nil {
			results = append(results, BulkResult{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{ID: id, OK: true})
	}
	return results
}

// GroupNotifications aggregates a tenant's notifications under the given
// grouping mode. Groups are derived on read and never persisted.
func (s *NotificationService) GroupNotifications(ctx context.Context, tenantID string, mode domain.GroupBy, filter repository.NotificationFilter) ([]domain.NotificationGroup, error) {
	if !domain.IsValidGroupBy(string(mode)) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid group_by %q", mode))
	}

	notifications, _, err := s.repo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*domain.NotificationGroup)
	for i := range notifications {
		n := &notifications[i]
		key := domain.GroupKey(n, mode)

		g, ok := groups[key]
		if !ok {
			g = &domain.NotificationGroup{
				Key:       key,
				GroupBy:   mode,
				AllRead:   true,
				CreatedAt: n.CreatedAt,
				UpdatedAt: n.UpdatedAt,
			}
			groups[key] = g
		}

		g.Count++
		if n.Status != domain.NotificationRead && n.Status != domain.NotificationArchived {
			g.AllRead = false
		}
		if n.CreatedAt.Before(g.CreatedAt) {
			g.CreatedAt = n.CreatedAt
		}
		if n.UpdatedAt.After(g.UpdatedAt) {
			g.UpdatedAt = n.UpdatedAt
		}
		if g.Latest == nil || n.CreatedAt.After(g.Latest.CreatedAt) {
			g.Latest = n
		}
	}

	out := make([]domain.NotificationGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	return out, nil
}
