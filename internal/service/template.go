package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/render"
	"github.com/heraldhq/herald/internal/repository"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

// TemplateService implements the business logic for notification templates.
type TemplateService struct {
	repo   repository.TemplateRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewTemplateService creates a new template service.
func NewTemplateService(repo repository.TemplateRepository, logger *slog.Logger) *TemplateService {
	return &TemplateService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateTemplate validates and stores a new template.
func (s *TemplateService) CreateTemplate(ctx context.Context, tenantID string, tmpl *domain.NotificationTemplate) (*domain.NotificationTemplate, error) {
	tmpl.ID = uuid.New().String()
	tmpl.TenantID = tenantID
	now := s.now()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now

	if err := tmpl.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if _, err := s.repo.GetByName(ctx, tenantID, tmpl.Name); err == nil {
		return nil, apperrors.AlreadyExists("template", "name", tmpl.Name)
	}

	if err := s.repo.Create(ctx, tmpl); err != nil {
		return nil, apperrors.Wrap(err, "create template")
	}

	s.logger.InfoContext(ctx, "template created",
		slog.String("template_id", tmpl.ID),
		slog.String("name", tmpl.Name),
	)
	return tmpl, nil
}

// GetTemplate returns a tenant's template by id.
func (s *TemplateService) GetTemplate(ctx context.Context, tenantID, id string) (*domain.NotificationTemplate, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// UpdateTemplate validates and replaces an existing template.
func (s *TemplateService) UpdateTemplate(ctx context.Context, tenantID, id string, tmpl *domain.NotificationTemplate) (*domain.NotificationTemplate, error) {
	existing, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	tmpl.ID = existing.ID
	tmpl.TenantID = existing.TenantID
	tmpl.CreatedAt = existing.CreatedAt
	tmpl.UpdatedAt = s.now()

	if err := tmpl.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if err := s.repo.Update(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// DeleteTemplate removes a tenant's template.
func (s *TemplateService) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// ListTemplates returns all of a tenant's templates.
func (s *TemplateService) ListTemplates(ctx context.Context, tenantID string) ([]domain.NotificationTemplate, error) {
	return s.repo.List(ctx, tenantID)
}

// PreviewTemplate renders a template with sample variables without creating
// anything.
func (s *TemplateService) PreviewTemplate(ctx context.Context, tenantID, id string, vars map[string]any) (*render.Rendered, error) {
	tmpl, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	out, err := render.Render(tmpl, vars)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	return &out, nil
}
