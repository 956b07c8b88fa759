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

const deliveryColumns = `id, tenant_id, notification_id, channel, recipient_address, status, attempts, max_attempts, error_message, metadata, created_at, last_attempt_at, delivered_at, updated_at`

// DeliveryRepository implements repository.DeliveryRepository using PostgreSQL.
type DeliveryRepository struct {
	pool database.DBTX
}

// NewDeliveryRepository creates a new PostgreSQL-backed delivery repository.
func NewDeliveryRepository(pool database.DBTX) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// Create inserts a new delivery record into the database.
func (r *DeliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	metadataJSON, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO deliveries (id, tenant_id, notification_id, channel, recipient_address, status, attempts, max_attempts, error_message, metadata, created_at, last_attempt_at, delivered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.pool.Exec(ctx, query,
		d.ID,
		d.TenantID,
		d.NotificationID,
		d.Channel,
		d.RecipientAddress,
		d.Status,
		d.Attempts,
		d.MaxAttempts,
		d.ErrorMessage,
		metadataJSON,
		d.CreatedAt,
		d.LastAttemptAt,
		d.DeliveredAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant's delivery by its ID.
func (r *DeliveryRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Delivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE tenant_id = $1 AND id = $2`

	var (
		d            domain.Delivery
		metadataJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&d.ID,
		&d.TenantID,
		&d.NotificationID,
		&d.Channel,
		&d.RecipientAddress,
		&d.Status,
		&d.Attempts,
		&d.MaxAttempts,
		&d.ErrorMessage,
		&metadataJSON,
		&d.CreatedAt,
		&d.LastAttemptAt,
		&d.DeliveredAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &d.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &d, nil
}

// Update modifies an existing delivery in the database.
func (r *DeliveryRepository) Update(ctx context.Context, d *domain.Delivery) error {
	metadataJSON, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE deliveries
		SET status = $1, attempts = $2, error_message = $3, metadata = $4,
		    last_attempt_at = $5, delivered_at = $6, updated_at = $7
		WHERE tenant_id = $8 AND id = $9`

	ct, err := r.pool.Exec(ctx, query,
		d.Status,
		d.Attempts,
		d.ErrorMessage,
		metadataJSON,
		d.LastAttemptAt,
		d.DeliveredAt,
		d.UpdatedAt,
		d.TenantID,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("delivery", d.ID)
	}

	return nil
}

// ListByNotification returns all delivery records for a notification,
// oldest first, so the audit trail reads in attempt order.
func (r *DeliveryRepository) ListByNotification(ctx context.Context, tenantID, notificationID string) ([]domain.Delivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE tenant_id = $1 AND notification_id = $2
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, tenantID, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make([]domain.Delivery, 0)

	for rows.Next() {
		var (
			d            domain.Delivery
			metadataJSON []byte
		)

		if err := rows.Scan(
			&d.ID,
			&d.TenantID,
			&d.NotificationID,
			&d.Channel,
			&d.RecipientAddress,
			&d.Status,
			&d.Attempts,
			&d.MaxAttempts,
			&d.ErrorMessage,
			&metadataJSON,
			&d.CreatedAt,
			&d.LastAttemptAt,
			&d.DeliveredAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery row: %w", err)
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &d.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}

		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery rows: %w", err)
	}

	return deliveries, nil
}

// CountByStatus returns per-status delivery counts for a tenant.
func (r *DeliveryRepository) CountByStatus(ctx context.Context, tenantID string) (map[domain.DeliveryStatus]int, error) {
	query := `
		SELECT status, count(*)
		FROM deliveries
		WHERE tenant_id = $1
		GROUP BY status`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count deliveries by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.DeliveryStatus]int)
	for rows.Next() {
		var (
			status domain.DeliveryStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan delivery status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery status counts: %w", err)
	}

	return counts, nil
}
