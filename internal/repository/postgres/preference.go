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

// PreferenceRepository implements repository.PreferenceRepository using PostgreSQL.
type PreferenceRepository struct {
	pool database.DBTX
}

// NewPreferenceRepository creates a new PostgreSQL-backed preference repository.
func NewPreferenceRepository(pool database.DBTX) *PreferenceRepository {
	return &PreferenceRepository{pool: pool}
}

// Get returns the stored preference for a user. Callers fall back to
// domain.DefaultPreference when this returns apperrors.ErrNotFound.
func (r *PreferenceRepository) Get(ctx context.Context, tenantID, userID string) (*domain.Preference, error) {
	query := `
		SELECT tenant_id, user_id, enabled, sound_enabled, desktop_enabled, mobile_enabled, do_not_disturb, email_digest, type_overrides, updated_at
		FROM preferences
		WHERE tenant_id = $1 AND user_id = $2`

	var (
		p             domain.Preference
		dndJSON       []byte
		digestJSON    []byte
		overridesJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, tenantID, userID).Scan(
		&p.TenantID,
		&p.UserID,
		&p.Enabled,
		&p.SoundEnabled,
		&p.DesktopEnabled,
		&p.MobileEnabled,
		&dndJSON,
		&digestJSON,
		&overridesJSON,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan preference: %w", err)
	}

	if dndJSON != nil {
		if err := json.Unmarshal(dndJSON, &p.DoNotDisturb); err != nil {
			return nil, fmt.Errorf("unmarshal do_not_disturb: %w", err)
		}
	}
	if digestJSON != nil {
		if err := json.Unmarshal(digestJSON, &p.EmailDigest); err != nil {
			return nil, fmt.Errorf("unmarshal email_digest: %w", err)
		}
	}
	if overridesJSON != nil {
		if err := json.Unmarshal(overridesJSON, &p.TypeOverrides); err != nil {
			return nil, fmt.Errorf("unmarshal type_overrides: %w", err)
		}
	}

	return &p, nil
}

// Upsert creates or replaces a user's preference row.
func (r *PreferenceRepository) Upsert(ctx context.Context, p *domain.Preference) error {
	dndJSON, err := json.Marshal(p.DoNotDisturb)
	if err != nil {
		return fmt.Errorf("marshal do_not_disturb: %w", err)
	}
	digestJSON, err := json.Marshal(p.EmailDigest)
	if err != nil {
		return fmt.Errorf("marshal email_digest: %w", err)
	}
	overridesJSON, err := json.Marshal(p.TypeOverrides)
	if err != nil {
		return fmt.Errorf("marshal type_overrides: %w", err)
	}

	p.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO preferences (tenant_id, user_id, enabled, sound_enabled, desktop_enabled, mobile_enabled, do_not_disturb, email_digest, type_overrides, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET enabled = EXCLUDED.enabled, sound_enabled = EXCLUDED.sound_enabled,
		    desktop_enabled = EXCLUDED.desktop_enabled, mobile_enabled = EXCLUDED.mobile_enabled,
		    do_not_disturb = EXCLUDED.do_not_disturb, email_digest = EXCLUDED.email_digest,
		    type_overrides = EXCLUDED.type_overrides, updated_at = EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, query,
		p.TenantID,
		p.UserID,
		p.Enabled,
		p.SoundEnabled,
		p.DesktopEnabled,
		p.MobileEnabled,
		dndJSON,
		digestJSON,
		overridesJSON,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}

	return nil
}
