package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/repository"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

// Retrier re-queues failed deliveries through the pipeline.
type Retrier interface {
	ManualRetry(ctx context.Context, tenantID, deliveryID string) (*domain.Delivery, error)
}

// DeliveryService implements delivery inspection and state operations.
type DeliveryService struct {
	repo    repository.DeliveryRepository
	retrier Retrier
	logger  *slog.Logger
	now     func() time.Time
}

// NewDeliveryService creates a new delivery service.
func NewDeliveryService(repo repository.DeliveryRepository, retrier Retrier, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{
		repo:    repo,
		retrier: retrier,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetDelivery returns a tenant's delivery by id.
func (s *DeliveryService) GetDelivery(ctx context.Context, tenantID, id string) (*domain.Delivery, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// ListDeliveries returns the delivery audit trail for a notification.
func (s *DeliveryService) ListDeliveries(ctx context.Context, tenantID, notificationID string) ([]domain.Delivery, error) {
	return s.repo.ListByNotification(ctx, tenantID, notificationID)
}

// RetryDelivery manually re-queues a failed or bounced delivery. The retry
// runs through the full pipeline, so rate limits and quiet hours still apply.
func (s *DeliveryService) RetryDelivery(ctx context.Context, tenantID, id string) (*domain.Delivery, error) {
	d, err := s.retrier.ManualRetry(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "delivery retry queued",
		slog.String("delivery_id", id),
		slog.String("channel", string(d.Channel)),
	)
	return d, nil
}

// UpdateDeliveryStatus applies an externally observed transition, typically
// a provider callback reporting delivered, read, or bounced. The delivery
// state machine rejects impossible transitions.
func (s *DeliveryService) UpdateDeliveryStatus(ctx context.Context, tenantID, id, status string) (*domain.Delivery, error) {
	if !domain.IsValidDeliveryStatus(status) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid delivery status %q", status))
	}

	d, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := d.TransitionTo(domain.DeliveryStatus(status), s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
