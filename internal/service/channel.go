package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/repository"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

// ChannelService implements the business logic for per-channel configuration.
type ChannelService struct {
	repo   repository.ChannelConfigRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewChannelService creates a new channel config service.
func NewChannelService(repo repository.ChannelConfigRepository, logger *slog.Logger) *ChannelService {
	return &ChannelService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// UpsertChannelConfig validates and stores a channel configuration.
func (s *ChannelService) UpsertChannelConfig(ctx context.Context, tenantID string, cfg *domain.ChannelConfig) (*domain.ChannelConfig, error) {
	cfg.TenantID = tenantID
	if cfg.RetryPolicy.MaxAttempts <= 0 {
		cfg.RetryPolicy = domain.DefaultRetryPolicy()
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if existing, err := s.repo.GetByChannel(ctx, tenantID, cfg.Channel); err == nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	} else if errors.Is(err, apperrors.ErrNotFound) {
		cfg.ID = uuid.New().String()
		cfg.CreatedAt = s.now()
	} else {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, apperrors.Wrap(err, "upsert channel config")
	}

	s.logger.InfoContext(ctx, "channel config saved",
		slog.String("channel", string(cfg.Channel)),
		slog.Bool("enabled", cfg.Enabled),
	)
	return cfg, nil
}

// GetChannelConfig returns a tenant's configuration for one channel.
func (s *ChannelService) GetChannelConfig(ctx context.Context, tenantID string, channel domain.Channel) (*domain.ChannelConfig, error) {
	return s.repo.GetByChannel(ctx, tenantID, channel)
}

// ListChannelConfigs returns all of a tenant's channel configurations.
func (s *ChannelService) ListChannelConfigs(ctx context.Context, tenantID string) ([]domain.ChannelConfig, error) {
	return s.repo.List(ctx, tenantID)
}
