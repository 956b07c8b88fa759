package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/service"
	apperrors "github.com/heraldhq/herald/pkg/errors"
	pkgkafka "github.com/heraldhq/herald/pkg/kafka"
)

// --- Mock NotificationCreator ---

type mockCreator struct {
	mock.Mock
}

func (m *mockCreator) CreateNotification(ctx context.Context, tenantID string, input *service.CreateNotificationInput) (*domain.Notification, error) {
	args := m.Called(ctx, tenantID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *mockCreator) CreateFromTemplate(ctx context.Context, tenantID string, input *service.CreateFromTemplateInput) (*domain.Notification, error) {
	args := m.Called(ctx, tenantID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEvent(eventType string, data any) *pkgkafka.Event {
	dataBytes, _ := json.Marshal(data)
	return &pkgkafka.Event{
		EventID:       "evt-test-123",
		EventType:     eventType,
		AggregateID:   "agg-test-456",
		AggregateType: "notification",
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        "billing-service",
		Data:          dataBytes,
	}
}

// --- Tests ---

func TestConsumerHandler_InlineRequest(t *testing.T) {
	creator := new(mockCreator)
	h := NewConsumerHandler(creator, newTestLogger())

	creator.On("CreateNotification", mock.Anything, "acme", mock.MatchedBy(func(in *service.CreateNotificationInput) bool {
		return in.UserID == "usr-1" && in.Title == "Invoice due" && in.Type == "reminder"
	})).Return(&domain.Notification{ID: "ntf-1"}, nil)

	err := h.Handle(context.Background(), newTestEvent(TopicNotificationRequested, NotificationRequestedData{
		TenantID: "acme",
		UserID:   "usr-1",
		Type:     "reminder",
		Title:    "Invoice due",
		Message:  "Invoice #42 is due Friday",
	}))
	require.NoError(t, err)

	creator.AssertExpectations(t)
}

func TestConsumerHandler_TemplateRequestWins(t *testing.T) {
	creator := new(mockCreator)
	h := NewConsumerHandler(creator, newTestLogger())

	creator.On("CreateFromTemplate", mock.Anything, "acme", mock.MatchedBy(func(in *service.CreateFromTemplateInput) bool {
		return in.Template == "invoice-due" && in.Variables["invoice_id"] == float64(42)
	})).Return(&domain.Notification{ID: "ntf-1"}, nil)

	err := h.Handle(context.Background(), newTestEvent(TopicNotificationRequested, NotificationRequestedData{
		TenantID:  "acme",
		UserID:    "usr-1",
		Template:  "invoice-due",
		Variables: map[string]any{"invoice_id": 42},
		Title:     "ignored",
	}))
	require.NoError(t, err)

	creator.AssertExpectations(t)
}

func TestConsumerHandler_MissingTenantFallsBackToDefault(t *testing.T) {
	creator := new(mockCreator)
	h := NewConsumerHandler(creator, newTestLogger())

	creator.On("CreateNotification", mock.Anything, "default", mock.Anything).
		Return(&domain.Notification{ID: "ntf-1"}, nil)

	err := h.Handle(context.Background(), newTestEvent(TopicNotificationRequested, NotificationRequestedData{
		UserID:  "usr-1",
		Type:    "info",
		Title:   "t",
		Message: "m",
	}))
	require.NoError(t, err)
}

func TestConsumerHandler_InvalidRequestIsDropped(t *testing.T) {
	creator := new(mockCreator)
	h := NewConsumerHandler(creator, newTestLogger())

	creator.On("CreateNotification", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.InvalidInput("user_id is required"))

	// Validation failures must not bubble up, or the consumer would retry
	// the same bad message forever.
	err := h.Handle(context.Background(), newTestEvent(TopicNotificationRequested, NotificationRequestedData{
		TenantID: "acme",
		Type:     "info",
	}))
	assert.NoError(t, err)
}

func TestConsumerHandler_TransientErrorPropagates(t *testing.T) {
	creator := new(mockCreator)
	h := NewConsumerHandler(creator, newTestLogger())

	creator.On("CreateNotification", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("database unavailable"))

	err := h.Handle(context.Background(), newTestEvent(TopicNotificationRequested, NotificationRequestedData{
		TenantID: "acme",
		UserID:   "usr-1",
		Type:     "info",
		Title:    "t",
		Message:  "m",
	}))
	assert.Error(t, err)
}

func TestConsumerHandler_UnknownEventTypeIgnored(t *testing.T) {
	creator := new(mockCreator)
	h := NewConsumerHandler(creator, newTestLogger())

	err := h.Handle(context.Background(), newTestEvent("herald.unrelated", map[string]any{}))
	assert.NoError(t, err)

	creator.AssertNotCalled(t, "CreateNotification")
}
