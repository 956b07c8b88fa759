package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/pkg/database"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

func sampleDelivery() *domain.Delivery {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	return &domain.Delivery{
		ID:               "dlv-001",
		TenantID:         "acme",
		NotificationID:   "ntf-001",
		Channel:          domain.ChannelEmail,
		RecipientAddress: "ops@acme.example",
		Status:           domain.DeliveryPending,
		Attempts:         0,
		MaxAttempts:      3,
		Metadata:         map[string]any{"provider": "smtp"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

var deliveryCols = []string{
	"id", "tenant_id", "notification_id", "channel", "recipient_address",
	"status", "attempts", "max_attempts", "error_message", "metadata",
	"created_at", "last_attempt_at", "delivered_at", "updated_at",
}

func deliveryRow(d *domain.Delivery) []any {
	metadataJSON, _ := json.Marshal(d.Metadata)
	return []any{
		d.ID, d.TenantID, d.NotificationID, d.Channel, d.RecipientAddress,
		d.Status, d.Attempts, d.MaxAttempts, d.ErrorMessage, metadataJSON,
		d.CreatedAt, d.LastAttemptAt, d.DeliveredAt, d.UpdatedAt,
	}
}

func TestDeliveryRepository_Create_Success(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepository(mock)
	d := sampleDelivery()

	metadataJSON, err := json.Marshal(d.Metadata)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO deliveries").
		WithArgs(
			d.ID, d.TenantID, d.NotificationID, d.Channel, d.RecipientAddress,
			d.Status, d.Attempts, d.MaxAttempts, d.ErrorMessage, metadataJSON,
			d.CreatedAt, d.LastAttemptAt, d.DeliveredAt, d.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), d)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepository_GetByID_NotFound(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepository(mock)

	mock.ExpectQuery("SELECT (.+) FROM deliveries").
		WithArgs("acme", "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByID(context.Background(), "acme", "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeliveryRepository_ListByNotification(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepository(mock)
	d := sampleDelivery()

	second := *d
	second.ID = "dlv-002"
	second.Channel = domain.ChannelSlack

	mock.ExpectQuery("SELECT (.+) FROM deliveries").
		WithArgs(d.TenantID, d.NotificationID).
		WillReturnRows(pgxmock.NewRows(deliveryCols).
			AddRow(deliveryRow(d)...).
			AddRow(deliveryRow(&second)...))

	got, err := repo.ListByNotification(context.Background(), d.TenantID, d.NotificationID)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, domain.ChannelEmail, got[0].Channel)
	assert.Equal(t, domain.ChannelSlack, got[1].Channel)
}

func TestDeliveryRepository_Update_PersistsTransition(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepository(mock)
	d := sampleDelivery()
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	require.NoError(t, d.RecordAttempt(now))
	require.NoError(t, d.TransitionTo(domain.DeliveryDelivered, now))

	mock.ExpectExec("UPDATE deliveries").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.Update(context.Background(), d)
	assert.NoError(t, err)
}

func TestDeliveryRepository_CountByStatus(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepository(mock)

	mock.ExpectQuery("SELECT status, count").
		WithArgs("acme").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow(domain.DeliveryDelivered, 40).
			AddRow(domain.DeliveryFailed, 2))

	counts, err := repo.CountByStatus(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, 40, counts[domain.DeliveryDelivered])
	assert.Equal(t, 2, counts[domain.DeliveryFailed])
}
