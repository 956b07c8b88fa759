package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/repository"
	"github.com/heraldhq/herald/internal/rules"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

// RuleService implements the business logic for routing rule management.
type RuleService struct {
	repo   repository.RuleRepository
	engine *rules.Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewRuleService creates a new rule service.
func NewRuleService(repo repository.RuleRepository, engine *rules.Engine, logger *slog.Logger) *RuleService {
	return &RuleService{
		repo:   repo,
		engine: engine,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateRule validates and stores a new rule.
func (s *RuleService) CreateRule(ctx context.Context, tenantID string, rule *domain.Rule) (*domain.Rule, error) {
	rule.ID = uuid.New().String()
	rule.TenantID = tenantID
	now := s.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := rule.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, apperrors.Wrap(err, "create rule")
	}

	s.logger.InfoContext(ctx, "rule created",
		slog.String("rule_id", rule.ID),
		slog.String("name", rule.Name),
		slog.Int("priority", rule.Priority),
	)
	return rule, nil
}

// GetRule returns a tenant's rule by id.
func (s *RuleService) GetRule(ctx context.Context, tenantID, id string) (*domain.Rule, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// UpdateRule validates and replaces an existing rule.
func (s *RuleService) UpdateRule(ctx context.Context, tenantID, id string, rule *domain.Rule) (*domain.Rule, error) {
	existing, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	rule.ID = existing.ID
	rule.TenantID = existing.TenantID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now()

	if err := rule.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// DeleteRule removes a tenant's rule.
func (s *RuleService) DeleteRule(ctx context.Context, tenantID, id string) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// ListRules returns all of a tenant's rules, highest priority first.
func (s *RuleService) ListRules(ctx context.Context, tenantID string) ([]domain.Rule, error) {
	return s.repo.List(ctx, tenantID)
}

// TestRule runs a single rule against a sample notification and reports the
// actions it would produce. Used to preview a rule before enabling it; the
// rule is forced enabled for the dry run.
func (s *RuleService) TestRule(ctx context.Context, rule *domain.Rule, sample *domain.Notification) ([]rules.ActionResult, error) {
	if err := rule.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	probe := *rule
	probe.Enabled = true
	return s.engine.Evaluate([]domain.Rule{probe}, sample), nil
}
