package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/pkg/database"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

const templateColumns = `id, tenant_id, name, type, priority, channels, title_template, message_template, variables, active, created_at, updated_at`

// TemplateRepository implements repository.TemplateRepository using PostgreSQL.
type TemplateRepository struct {
	pool database.DBTX
}

// NewTemplateRepository creates a new PostgreSQL-backed template repository.
func NewTemplateRepository(pool database.DBTX) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// Create inserts a new template into the database.
func (r *TemplateRepository) Create(ctx context.Context, t *domain.NotificationTemplate) error {
	channelsJSON, variablesJSON, err := marshalTemplateJSON(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO templates (id, tenant_id, name, type, priority, channels, title_template, message_template, variables, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.pool.Exec(ctx, query,
		t.ID,
		t.TenantID,
		t.Name,
		t.Type,
		t.Priority,
		channelsJSON,
		t.TitleTemplate,
		t.MessageTemplate,
		variablesJSON,
		t.Active,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant's template by its ID.
func (r *TemplateRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.NotificationTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE tenant_id = $1 AND id = $2`

	return r.scanTemplate(ctx, query, tenantID, id)
}

// GetByName retrieves a tenant's template by its unique name. Inbound events
// reference templates by name, not id.
func (r *TemplateRepository) GetByName(ctx context.Context, tenantID, name string) (*domain.NotificationTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE tenant_id = $1 AND name = $2`

	return r.scanTemplate(ctx, query, tenantID, name)
}

// Update modifies an existing template in the database.
func (r *TemplateRepository) Update(ctx context.Context, t *domain.NotificationTemplate) error {
	channelsJSON, variablesJSON, err := marshalTemplateJSON(t)
	if err != nil {
		return err
	}

	t.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE templates
		SET name = $1, type = $2, priority = $3, channels = $4, title_template = $5,
		    message_template = $6, variables = $7, active = $8, updated_at = $9
		WHERE tenant_id = $10 AND id = $11`

	ct, err := r.pool.Exec(ctx, query,
		t.Name,
		t.Type,
		t.Priority,
		channelsJSON,
		t.TitleTemplate,
		t.MessageTemplate,
		variablesJSON,
		t.Active,
		t.UpdatedAt,
		t.TenantID,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("template", t.ID)
	}

	return nil
}

// Delete removes a tenant's template.
func (r *TemplateRepository) Delete(ctx context.Context, tenantID, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM templates WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("template", id)
	}
	return nil
}

// List returns all of a tenant's templates, alphabetically by name.
func (r *TemplateRepository) List(ctx context.Context, tenantID string) ([]domain.NotificationTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE tenant_id = $1
		ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := make([]domain.NotificationTemplate, 0)

	for rows.Next() {
		var (
			t             domain.NotificationTemplate
			channelsJSON  []byte
			variablesJSON []byte
		)

		if err := rows.Scan(
			&t.ID,
			&t.TenantID,
			&t.Name,
			&t.Type,
			&t.Priority,
			&channelsJSON,
			&t.TitleTemplate,
			&t.MessageTemplate,
			&variablesJSON,
			&t.Active,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}

		if err := unmarshalTemplateJSON(&t, channelsJSON, variablesJSON); err != nil {
			return nil, err
		}

		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate template rows: %w", err)
	}

	return templates, nil
}

func (r *TemplateRepository) scanTemplate(ctx context.Context, query string, args ...any) (*domain.NotificationTemplate, error) {
	var (
		t             domain.NotificationTemplate
		channelsJSON  []byte
		variablesJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&t.ID,
		&t.TenantID,
		&t.Name,
		&t.Type,
		&t.Priority,
		&channelsJSON,
		&t.TitleTemplate,
		&t.MessageTemplate,
		&variablesJSON,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}

	if err := unmarshalTemplateJSON(&t, channelsJSON, variablesJSON); err != nil {
		return nil, err
	}

	return &t, nil
}

func marshalTemplateJSON(t *domain.NotificationTemplate) (channels, variables []byte, err error) {
	channels, err = json.Marshal(t.Channels)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal channels: %w", err)
	}
	variables, err = json.Marshal(t.Variables)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal variables: %w", err)
	}
	return channels, variables, nil
}

func unmarshalTemplateJSON(t *domain.NotificationTemplate, channelsJSON, variablesJSON []byte) error {
	if channelsJSON != nil {
		if err := json.Unmarshal(channelsJSON, &t.Channels); err != nil {
			return fmt.Errorf("unmarshal channels: %w", err)
		}
	}
	if variablesJSON != nil {
		if err := json.Unmarshal(variablesJSON, &t.Variables); err != nil {
			return fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	return nil
}
