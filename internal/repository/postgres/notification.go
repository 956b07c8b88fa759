package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/repository"
	"github.com/heraldhq/herald/pkg/database"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

const defaultListLimit = 50

const notificationColumns = `id, tenant_id, user_id, type, priority, title, message, status, channels, metadata, created_at, updated_at`

// NotificationRepository implements repository.NotificationRepository using PostgreSQL.
type NotificationRepository struct {
	pool database.DBTX
}

// NewNotificationRepository creates a new PostgreSQL-backed notification repository.
func NewNotificationRepository(pool database.DBTX) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create inserts a new notification into the database.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	metadataJSON, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	channelsJSON, err := json.Marshal(n.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}

	query := `
		INSERT INTO notifications (id, tenant_id, user_id, type, priority, title, message, status, channels, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.pool.Exec(ctx, query,
		n.ID,
		n.TenantID,
		n.UserID,
		n.Type,
		n.Priority,
		n.Title,
		n.Message,
		n.Status,
		channelsJSON,
		metadataJSON,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant's notification by its ID.
func (r *NotificationRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE tenant_id = $1 AND id = $2`

	return r.scanNotification(ctx, query, tenantID, id)
}

// Update modifies an existing notification in the database.
func (r *NotificationRepository) Update(ctx context.Context, n *domain.Notification) error {
	metadataJSON, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	channelsJSON, err := json.Marshal(n.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}

	n.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE notifications
		SET user_id = $1, type = $2, priority = $3, title = $4, message = $5,
		    status = $6, channels = $7, metadata = $8, updated_at = $9
		WHERE tenant_id = $10 AND id = $11`

	ct, err := r.pool.Exec(ctx, query,
		n.UserID,
		n.Type,
		n.Priority,
		n.Title,
		n.Message,
		n.Status,
		channelsJSON,
		metadataJSON,
		n.UpdatedAt,
		n.TenantID,
		n.ID,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("notification", n.ID)
	}

	return nil
}

// Delete removes a notification. Delivery rows cascade via the foreign key.
func (r *NotificationRepository) Delete(ctx context.Context, tenantID, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("notification", id)
	}
	return nil
}

// List returns a tenant's notifications matching the filter, newest first,
// with the pre-pagination match count.
func (r *NotificationRepository) List(ctx context.Context, tenantID string, f repository.NotificationFilter) ([]domain.Notification, int, error) {
	where, args := buildNotificationFilter(tenantID, f)

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM notifications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		notificationColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var totalCount int
	notifications := make([]domain.Notification, 0)

	for rows.Next() {
		var (
			n            domain.Notification
			channelsJSON []byte
			metadataJSON []byte
		)

		if err := rows.Scan(
			&n.ID,
			&n.TenantID,
			&n.UserID,
			&n.Type,
			&n.Priority,
			&n.Title,
			&n.Message,
			&n.Status,
			&channelsJSON,
			&metadataJSON,
			&n.CreatedAt,
			&n.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan notification row: %w", err)
		}

		if err := unmarshalNotificationJSON(&n, channelsJSON, metadataJSON); err != nil {
			return nil, 0, err
		}

		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notification rows: %w", err)
	}

	return notifications, totalCount, nil
}

// CountByStatus returns per-status notification counts for a tenant.
func (r *NotificationRepository) CountByStatus(ctx context.Context, tenantID string) (map[domain.NotificationStatus]int, error) {
	query := `
		SELECT status, count(*)
		FROM notifications
		WHERE tenant_id = $1
		GROUP BY status`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count notifications by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.NotificationStatus]int)
	for rows.Next() {
		var (
			status domain.NotificationStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

// CountByPriority returns per-priority notification counts for a tenant.
func (r *NotificationRepository) CountByPriority(ctx context.Context, tenantID string) (map[domain.Priority]int, error) {
	query := `
		SELECT priority, count(*)
		FROM notifications
		WHERE tenant_id = $1
		GROUP BY priority`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count notifications by priority: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Priority]int)
	for rows.Next() {
		var (
			priority domain.Priority
			count    int
		)
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, fmt.Errorf("scan priority count: %w", err)
		}
		counts[priority] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate priority counts: %w", err)
	}

	return counts, nil
}

// buildNotificationFilter assembles the WHERE clause and its arguments from
// the filter. tenant_id is always the first predicate.
func buildNotificationFilter(tenantID string, f repository.NotificationFilter) (string, []any) {
	clauses := []string{"tenant_id = $1"}
	args := []any{tenantID}

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if len(f.Types) > 0 {
		add("type = ANY($%d)", typeStrings(f.Types))
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if len(f.Priorities) > 0 {
		add("priority = ANY($%d)", priorityStrings(f.Priorities))
	}
	if f.Source != "" {
		add("metadata->>'source' = $%d", f.Source)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <= $%d", f.Until)
	}

	return strings.Join(clauses, " AND "), args
}

func typeStrings(ts []domain.NotificationType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

func statusStrings(ss []domain.NotificationStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func priorityStrings(ps []domain.Priority) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// scanNotification is a helper that executes a query expected to return a single notification row.
func (r *NotificationRepository) scanNotification(ctx context.Context, query string, args ...any) (*domain.Notification, error) {
	var (
		n            domain.Notification
		channelsJSON []byte
		metadataJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&n.ID,
		&n.TenantID,
		&n.UserID,
		&n.Type,
		&n.Priority,
		&n.Title,
		&n.Message,
		&n.Status,
		&channelsJSON,
		&metadataJSON,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	if err := unmarshalNotificationJSON(&n, channelsJSON, metadataJSON); err != nil {
		return nil, err
	}

	return &n, nil
}

func unmarshalNotificationJSON(n *domain.Notification, channelsJSON, metadataJSON []byte) error {
	if channelsJSON != nil {
		if err := json.Unmarshal(channelsJSON, &n.Channels); err != nil {
			return fmt.Errorf("unmarshal channels: %w", err)
		}
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &n.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return nil
}
