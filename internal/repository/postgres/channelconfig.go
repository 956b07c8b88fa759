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

const channelConfigColumns = `id, tenant_id, channel, enabled, settings, rate_limit, retry_policy, created_at, updated_at`

// ChannelConfigRepository implements repository.ChannelConfigRepository using PostgreSQL.
type ChannelConfigRepository struct {
	pool database.DBTX
}

// NewChannelConfigRepository creates a new PostgreSQL-backed channel config repository.
func NewChannelConfigRepository(pool database.DBTX) *ChannelConfigRepository {
	return &ChannelConfigRepository{pool: pool}
}

// Upsert creates or replaces a tenant's configuration for a channel. One row
// per tenant and channel, keyed by (tenant_id, channel).
func (r *ChannelConfigRepository) Upsert(ctx context.Context, cfg *domain.ChannelConfig) error {
	settingsJSON, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	rateLimitJSON, err := json.Marshal(cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("marshal rate_limit: %w", err)
	}
	retryPolicyJSON, err := json.Marshal(cfg.RetryPolicy)
	if err != nil {
		return fmt.Errorf("marshal retry_policy: %w", err)
	}

	cfg.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO channel_configs (id, tenant_id, channel, enabled, settings, rate_limit, retry_policy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, channel) DO UPDATE
		SET enabled = EXCLUDED.enabled, settings = EXCLUDED.settings,
		    rate_limit = EXCLUDED.rate_limit, retry_policy = EXCLUDED.retry_policy,
		    updated_at = EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, query,
		cfg.ID,
		cfg.TenantID,
		cfg.Channel,
		cfg.Enabled,
		settingsJSON,
		rateLimitJSON,
		retryPolicyJSON,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert channel config: %w", err)
	}

	return nil
}

// GetByChannel retrieves a tenant's configuration for one channel.
func (r *ChannelConfigRepository) GetByChannel(ctx context.Context, tenantID string, channel domain.Channel) (*domain.ChannelConfig, error) {
	query := `
		SELECT ` + channelConfigColumns + `
		FROM channel_configs
		WHERE tenant_id = $1 AND channel = $2`

	var (
		cfg             domain.ChannelConfig
		settingsJSON    []byte
		rateLimitJSON   []byte
		retryPolicyJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, tenantID, channel).Scan(
		&cfg.ID,
		&cfg.TenantID,
		&cfg.Channel,
		&cfg.Enabled,
		&settingsJSON,
		&rateLimitJSON,
		&retryPolicyJSON,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan channel config: %w", err)
	}

	if err := unmarshalChannelConfigJSON(&cfg, settingsJSON, rateLimitJSON, retryPolicyJSON); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// List returns all of a tenant's channel configurations.
func (r *ChannelConfigRepository) List(ctx context.Context, tenantID string) ([]domain.ChannelConfig, error) {
	query := `
		SELECT ` + channelConfigColumns + `
		FROM channel_configs
		WHERE tenant_id = $1
		ORDER BY channel ASC`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list channel configs: %w", err)
	}
	defer rows.Close()

	configs := make([]domain.ChannelConfig, 0)

	for rows.Next() {
		var (
			cfg             domain.ChannelConfig
			settingsJSON    []byte
			rateLimitJSON   []byte
			retryPolicyJSON []byte
		)

		if err := rows.Scan(
			&cfg.ID,
			&cfg.TenantID,
			&cfg.Channel,
			&cfg.Enabled,
			&settingsJSON,
			&rateLimitJSON,
			&retryPolicyJSON,
			&cfg.CreatedAt,
			&cfg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan channel config row: %w", err)
		}

		if err := unmarshalChannelConfigJSON(&cfg, settingsJSON, rateLimitJSON, retryPolicyJSON); err != nil {
			return nil, err
		}

		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel config rows: %w", err)
	}

	return configs, nil
}

func unmarshalChannelConfigJSON(cfg *domain.ChannelConfig, settingsJSON, rateLimitJSON, retryPolicyJSON []byte) error {
	if settingsJSON != nil {
		if err := json.Unmarshal(settingsJSON, &cfg.Settings); err != nil {
			return fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	if rateLimitJSON != nil {
		if err := json.Unmarshal(rateLimitJSON, &cfg.RateLimit); err != nil {
			return fmt.Errorf("unmarshal rate_limit: %w", err)
		}
	}
	if retryPolicyJSON != nil {
		if err := json.Unmarshal(retryPolicyJSON, &cfg.RetryPolicy); err != nil {
			return fmt.Errorf("unmarshal retry_policy: %w", err)
		}
	}
	return nil
}
