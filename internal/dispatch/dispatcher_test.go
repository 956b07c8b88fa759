package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/event"
	"github.com/heraldhq/herald/internal/ratelimit"
	"github.com/heraldhq/herald/internal/repository"
	"github.com/heraldhq/herald/internal/rules"
	"github.com/heraldhq/herald/internal/sender"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

// ---- fakes ----------------------------------------------------------------

type memNotifications struct {
	mu sync.Mutex
	m  map[string]*domain.Notification
}

func newMemNotifications(ns ...*domain.Notification) *memNotifications {
	s := &memNotifications{m: make(map[string]*domain.Notification)}
	for _, n := range ns {
		cp := *n
		s.m[n.ID] = &cp
	}
	return s
}

func (s *memNotifications) Create(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.m[n.ID] = &cp
	return nil
}

func (s *memNotifications) GetByID(_ context.Context, tenantID, id string) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.m[id]
	if !ok || n.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memNotifications) Update(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[n.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *n
	s.m[n.ID] = &cp
	return nil
}

func (s *memNotifications) Delete(_ context.Context, _, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

func (s *memNotifications) List(context.Context, string, repository.NotificationFilter) ([]domain.Notification, int, error) {
	return nil, 0, nil
}

func (s *memNotifications) CountByStatus(context.Context, string) (map[domain.NotificationStatus]int, error) {
	return nil, nil
}

func (s *memNotifications) CountByPriority(context.Context, string) (map[domain.Priority]int, error) {
	return nil, nil
}

func (s *memNotifications) current(id string) domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.m[id]
}

type memDeliveries struct {
	mu sync.Mutex
	m  map[string]*domain.Delivery
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{m: make(map[string]*domain.Delivery)}
}

func (s *memDeliveries) Create(_ context.Context, d *domain.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.m[d.ID] = &cp
	return nil
}

func (s *memDeliveries) GetByID(_ context.Context, tenantID, id string) (*domain.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.m[id]
	if !ok || d.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memDeliveries) Update(_ context.Context, d *domain.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[d.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *d
	s.m[d.ID] = &cp
	return nil
}

func (s *memDeliveries) ListByNotification(_ context.Context, tenantID, notificationID string) ([]domain.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Delivery
	for _, d := range s.m {
		if d.TenantID == tenantID && d.NotificationID == notificationID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memDeliveries) CountByStatus(context.Context, string) (map[domain.DeliveryStatus]int, error) {
	return nil, nil
}

func (s *memDeliveries) all() []domain.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Delivery
	for _, d := range s.m {
		out = append(out, *d)
	}
	return out
}

type stubRules struct {
	rules []domain.Rule
}

func (s *stubRules) Create(context.Context, *domain.Rule) error { return nil }
func (s *stubRules) GetByID(context.Context, string, string) (*domain.Rule, error) {
	return nil, apperrors.ErrNotFound
}
func (s *stubRules) Update(context.Context, *domain.Rule) error   { return nil }
func (s *stubRules) Delete(context.Context, string, string) error { return nil }
func (s *stubRules) List(context.Context, string) ([]domain.Rule, error) {
	return s.rules, nil
}
func (s *stubRules) ListEnabled(context.Context, string) ([]domain.Rule, error) {
	return s.rules, nil
}

type stubPrefs struct {
	pref *domain.Preference
}

func (s *stubPrefs) Get(context.Context, string, string) (*domain.Preference, error) {
	if s.pref == nil {
		return nil, apperrors.ErrNotFound
	}
	cp := *s.pref
	return &cp, nil
}
func (s *stubPrefs) Upsert(context.Context, *domain.Preference) error { return nil }

type stubChannelCfgs struct {
	cfgs map[domain.Channel]*domain.ChannelConfig
}

func (s *stubChannelCfgs) Upsert(context.Context, *domain.ChannelConfig) error { return nil }
func (s *stubChannelCfgs) GetByChannel(_ context.Context, _ string, ch domain.Channel) (*domain.ChannelConfig, error) {
	cfg, ok := s.cfgs[ch]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}
func (s *stubChannelCfgs) List(context.Context, string) ([]domain.ChannelConfig, error) {
	return nil, nil
}

type stubLimiter struct {
	allow bool
	calls int
}

func (l *stubLimiter) TryAcquire(context.Context, string, domain.Channel, domain.RateLimit) (bool, error) {
	l.calls++
	return l.allow, nil
}

func (l *stubLimiter) Peek(context.Context, string, domain.Channel, domain.RateLimit) (bool, error) {
	return l.allow, nil
}

var _ ratelimit.Limiter = (*stubLimiter)(nil)

type scheduleCall struct {
	tenantID   string
	deliveryID string
	delay      time.Duration
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduleCall
}

func (s *recordingScheduler) Schedule(tenantID, deliveryID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduleCall{tenantID: tenantID, deliveryID: deliveryID, delay: delay})
}

func (s *recordingScheduler) recorded() []scheduleCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduleCall(nil), s.calls...)
}

// scriptedSender returns the queued outcomes in order, then succeeds.
type scriptedSender struct {
	channel  domain.Channel
	mu       sync.Mutex
	outcomes []error
	results  []sender.Result
	sent     int
}

func (s *scriptedSender) Name() domain.Channel { return s.channel }

func (s *scriptedSender) Send(context.Context, *domain.ChannelConfig, string, sender.Content) (sender.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.sent
	s.sent++
	if i < len(s.outcomes) && s.outcomes[i] != nil {
		var res sender.Result
		if i < len(s.results) {
			res = s.results[i]
		}
		return res, s.outcomes[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return sender.Result{}, nil
}

func (s *scriptedSender) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// ---- harness --------------------------------------------------------------

type harness struct {
	dispatcher    *Dispatcher
	notifications *memNotifications
	deliveries    *memDeliveries
	scheduler     *recordingScheduler
	limiter       *stubLimiter
}

func newHarness(t *testing.T, ruleset []domain.Rule, pref *domain.Preference, cfgs map[domain.Channel]*domain.ChannelConfig, senders ...sender.Sender) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	h := &harness{
		notifications: newMemNotifications(),
		deliveries:    newMemDeliveries(),
		scheduler:     &recordingScheduler{},
		limiter:       &stubLimiter{allow: true},
	}

	h.dispatcher = NewDispatcher(DefaultConfig(), Deps{
		Notifications: h.notifications,
		Deliveries:    h.deliveries,
		Rules:         &stubRules{rules: ruleset},
		Preferences:   &stubPrefs{pref: pref},
		ChannelCfgs:   &stubChannelCfgs{cfgs: cfgs},
		Engine:        rules.NewEngine(logger),
		Limiter:       h.limiter,
		Senders:       sender.NewRegistry(senders...),
		Scheduler:     h.scheduler,
		Events:        event.NewProducer(nil, logger),
		Logger:        logger,
	}).WithClock(func() time.Time {
		// Wednesday afternoon, outside any test's quiet hours.
		return time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	})

	return h
}

func alertNotification() *domain.Notification {
	return &domain.Notification{
		ID:       "ntf-1",
		TenantID: "acme",
		UserID:   "usr-1",
		Type:     domain.TypeAlert,
		Priority: domain.PriorityHigh,
		Title:    "Disk almost full",
		Message:  "Volume /data at 91%",
		Status:   domain.NotificationPending,
		Metadata: map[string]any{"source": "infra-mon"},
	}
}

func routeRule(id string, priority int, channel domain.Channel, conditions ...domain.Condition) domain.Rule {
	return domain.Rule{
		ID:         id,
		TenantID:   "acme",
		Name:       id,
		Enabled:    true,
		Priority:   priority,
		Logic:      domain.LogicAnd,
		Conditions: conditions,
		Actions: []domain.Action{
			{Type: domain.ActionRoute, Config: map[string]any{"channel": string(channel)}},
		},
	}
}

// ---- tests ----------------------------------------------------------------

func TestDispatcher_RuleRoutesAlertToSMS(t *testing.T) {
	rule := routeRule("r-1", 10, domain.ChannelSMS,
		domain.Condition{Field: "type", Operator: domain.OpEq, Value: "alert"})
	sms := &scriptedSender{channel: domain.ChannelSMS}

	h := newHarness(t, []domain.Rule{rule}, nil, nil, sms)
	n := alertNotification()
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	all := h.deliveries.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.ChannelSMS, all[0].Channel)
	assert.Equal(t, domain.DeliverySent, all[0].Status)
	assert.Equal(t, 1, all[0].Attempts)
	assert.Equal(t, 1, sms.sendCount())

	assert.Equal(t, domain.NotificationSent, h.notifications.current(n.ID).Status)
}

func TestDispatcher_TransientFailuresBackOffThenFail(t *testing.T) {
	cfgs := map[domain.Channel]*domain.ChannelConfig{
		domain.ChannelEmail: {
			Channel: domain.ChannelEmail,
			Enabled: true,
			RetryPolicy: domain.RetryPolicy{
				MaxAttempts:       3,
				BackoffMultiplier: 2,
				InitialDelay:      time.Second,
				MaxDelay:          time.Minute,
			},
		},
	}
	email := &scriptedSender{
		channel:  domain.ChannelEmail,
		outcomes: []error{errors.New("smtp timeout"), errors.New("smtp timeout"), errors.New("smtp timeout")},
	}

	h := newHarness(t, nil, nil, cfgs, email)
	n := alertNotification()
	n.Channels = []domain.Channel{domain.ChannelEmail}
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	// Each scheduled retry is replayed by hand in place of the timer.
	for i := 0; i < 2; i++ {
		calls := h.scheduler.recorded()
		require.Len(t, calls, i+1)
		h.dispatcher.Redispatch(context.Background(), calls[i].tenantID, calls[i].deliveryID)
	}

	calls := h.scheduler.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, time.Second, calls[0].delay)
	assert.Equal(t, 2*time.Second, calls[1].delay)

	all := h.deliveries.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.DeliveryFailed, all[0].Status)
	assert.Equal(t, 3, all[0].Attempts)
	assert.Equal(t, "smtp timeout", all[0].ErrorMessage)

	assert.Equal(t, domain.NotificationFailed, h.notifications.current(n.ID).Status)
}

func TestDispatcher_PermanentFailureBounces(t *testing.T) {
	email := &scriptedSender{
		channel:  domain.ChannelEmail,
		outcomes: []error{errors.New("recipient rejected")},
		results:  []sender.Result{{PermanentFailure: true}},
	}

	h := newHarness(t, nil, nil, nil, email)
	n := alertNotification()
	n.Channels = []domain.Channel{domain.ChannelEmail}
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	all := h.deliveries.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.DeliveryBounced, all[0].Status)
	assert.Equal(t, 1, all[0].Attempts)
	assert.Empty(t, h.scheduler.recorded())
}

func TestDispatcher_DoNotDisturbDefersWithoutAttempt(t *testing.T) {
	pref := domain.DefaultPreference("acme", "usr-1")
	pref.DoNotDisturb = domain.DoNotDisturb{
		Enabled:   true,
		StartTime: "14:00",
		EndTime:   "16:00",
	}
	email := &scriptedSender{channel: domain.ChannelEmail}

	h := newHarness(t, nil, pref, nil, email)
	n := alertNotification()
	n.Channels = []domain.Channel{domain.ChannelEmail}
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	all := h.deliveries.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.DeliveryPending, all[0].Status)
	assert.Equal(t, 0, all[0].Attempts)
	assert.Equal(t, 0, email.sendCount())

	calls := h.scheduler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultConfig().DeferralDelay, calls[0].delay)
}

func TestDispatcher_InAppBypassesDoNotDisturb(t *testing.T) {
	pref := domain.DefaultPreference("acme", "usr-1")
	pref.DoNotDisturb = domain.DoNotDisturb{Enabled: true, StartTime: "14:00", EndTime: "16:00"}
	inapp := &scriptedSender{channel: domain.ChannelInApp, results: []sender.Result{{DeliveredImmediately: true}}}

	h := newHarness(t, nil, pref, nil, inapp)
	n := alertNotification()
	n.Channels = []domain.Channel{domain.ChannelInApp}
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	all := h.deliveries.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.DeliveryDelivered, all[0].Status)
	assert.NotNil(t, all[0].DeliveredAt)

	assert.Equal(t, domain.NotificationDelivered, h.notifications.current(n.ID).Status)
}

func TestDispatcher_RateLimitDefersWithoutAttempt(t *testing.T) {
	email := &scriptedSender{channel: domain.ChannelEmail}
	h := newHarness(t, nil, nil, nil, email)
	h.limiter.allow = false

	n := alertNotification()
	n.Channels = []domain.Channel{domain.ChannelEmail}
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	all := h.deliveries.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.DeliveryPending, all[0].Status)
	assert.Equal(t, 0, all[0].Attempts)
	assert.Equal(t, 0, email.sendCount())
	require.Len(t, h.scheduler.recorded(), 1)
}

func TestDispatcher_SuppressRuleCreatesNoDeliveries(t *testing.T) {
	suppress := domain.Rule{
		ID:       "r-mute",
		TenantID: "acme",
		Name:     "mute infra-mon",
		Enabled:  true,
		Priority: 100,
		Logic:    domain.LogicAnd,
		Conditions: []domain.Condition{
			{Field: "metadata.source", Operator: domain.OpEq, Value: "infra-mon"},
		},
		Actions: []domain.Action{{Type: domain.ActionSuppress}},
	}

	h := newHarness(t, []domain.Rule{suppress}, nil, nil)
	n := alertNotification()
	n.Channels = []domain.Channel{domain.ChannelEmail}
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	assert.Empty(t, h.deliveries.all())
}

func TestDispatcher_FallsBackToInApp(t *testing.T) {
	inapp := &scriptedSender{channel: domain.ChannelInApp, results: []sender.Result{{DeliveredImmediately: true}}}

	h := newHarness(t, nil, nil, nil, inapp)
	n := alertNotification()
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	all := h.deliveries.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.ChannelInApp, all[0].Channel)
}

func TestDispatcher_DisabledTypeKeepsInAppRecordOnly(t *testing.T) {
	pref := domain.DefaultPreference("acme", "usr-1")
	pref.TypeOverrides = map[domain.NotificationType]domain.TypeOverride{
		domain.TypeAlert: {Enabled: false},
	}
	inapp := &scriptedSender{channel: domain.ChannelInApp, results: []sender.Result{{DeliveredImmediately: true}}}

	h := newHarness(t, nil, pref, nil, inapp)
	n := alertNotification()
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	all := h.deliveries.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.ChannelInApp, all[0].Channel)
}

func TestDispatcher_DelayActionSchedulesInsteadOfSending(t *testing.T) {
	delayed := domain.Rule{
		ID:       "r-delay",
		TenantID: "acme",
		Name:     "hold alerts",
		Enabled:  true,
		Priority: 5,
		Logic:    domain.LogicAnd,
		Conditions: []domain.Condition{
			{Field: "type", Operator: domain.OpEq, Value: "alert"},
		},
		Actions: []domain.Action{
			{Type: domain.ActionRoute, Config: map[string]any{"channel": "email"}},
			{Type: domain.ActionDelay, Config: map[string]any{"duration_ms": float64(5000)}},
		},
	}
	email := &scriptedSender{channel: domain.ChannelEmail}

	h := newHarness(t, []domain.Rule{delayed}, nil, nil, email)
	n := alertNotification()
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	assert.Equal(t, 0, email.sendCount())
	calls := h.scheduler.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, 5*time.Second, calls[0].delay)

	// The scheduler callback sends it on its way.
	h.dispatcher.Redispatch(context.Background(), calls[0].tenantID, calls[0].deliveryID)
	assert.Equal(t, 1, email.sendCount())
}

func TestDispatcher_EscalateRaisesPriority(t *testing.T) {
	escalate := domain.Rule{
		ID:       "r-esc",
		TenantID: "acme",
		Name:     "escalate infra alerts",
		Enabled:  true,
		Priority: 50,
		Logic:    domain.LogicAnd,
		Conditions: []domain.Condition{
			{Field: "metadata.source", Operator: domain.OpEq, Value: "infra-mon"},
		},
		Actions: []domain.Action{
			{Type: domain.ActionEscalate, Config: map[string]any{"priority": "critical"}},
			{Type: domain.ActionRoute, Config: map[string]any{"channel": "sms"}},
		},
	}
	sms := &scriptedSender{channel: domain.ChannelSMS}

	h := newHarness(t, []domain.Rule{escalate}, nil, nil, sms)
	n := alertNotification()
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	assert.Equal(t, domain.PriorityCritical, h.notifications.current(n.ID).Priority)
}

func TestDispatcher_ManualRetry(t *testing.T) {
	email := &scriptedSender{channel: domain.ChannelEmail}
	h := newHarness(t, nil, nil, nil, email)

	n := alertNotification()
	require.NoError(t, h.notifications.Create(context.Background(), n))

	failed := &domain.Delivery{
		ID:             "dlv-9",
		TenantID:       "acme",
		NotificationID: n.ID,
		Channel:        domain.ChannelEmail,
		Status:         domain.DeliveryFailed,
		Attempts:       1,
		MaxAttempts:    3,
		ErrorMessage:   "smtp timeout",
	}
	require.NoError(t, h.deliveries.Create(context.Background(), failed))

	got, err := h.dispatcher.ManualRetry(context.Background(), "acme", "dlv-9")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryPending, got.Status)

	stored, err := h.deliveries.GetByID(context.Background(), "acme", "dlv-9")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, 1, email.sendCount())
}

func TestDispatcher_ManualRetryRejectsNonRetriable(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	delivered := &domain.Delivery{
		ID:          "dlv-ok",
		TenantID:    "acme",
		Status:      domain.DeliveryDelivered,
		Attempts:    1,
		MaxAttempts: 3,
	}
	require.NoError(t, h.deliveries.Create(context.Background(), delivered))

	_, err := h.dispatcher.ManualRetry(context.Background(), "acme", "dlv-ok")
	assert.Error(t, err)

	exhausted := &domain.Delivery{
		ID:          "dlv-done",
		TenantID:    "acme",
		Status:      domain.DeliveryFailed,
		Attempts:    3,
		MaxAttempts: 3,
	}
	require.NoError(t, h.deliveries.Create(context.Background(), exhausted))

	_, err = h.dispatcher.ManualRetry(context.Background(), "acme", "dlv-done")
	assert.Error(t, err)
}

func TestDispatcher_ManualRetryRejectedWhileRateLimited(t *testing.T) {
	email := &scriptedSender{channel: domain.ChannelEmail}
	h := newHarness(t, nil, nil, nil, email)
	h.limiter.allow = false

	failed := &domain.Delivery{
		ID:          "dlv-limited",
		TenantID:    "acme",
		Channel:     domain.ChannelEmail,
		Status:      domain.DeliveryFailed,
		Attempts:    1,
		MaxAttempts: 3,
	}
	require.NoError(t, h.deliveries.Create(context.Background(), failed))

	_, err := h.dispatcher.ManualRetry(context.Background(), "acme", "dlv-limited")
	require.ErrorIs(t, err, apperrors.ErrRateLimited)

	// The rejection leaves the delivery untouched and sends nothing.
	stored, err := h.deliveries.GetByID(context.Background(), "acme", "dlv-limited")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, 0, email.sendCount())
}

func TestDispatcher_DisabledChannelFailsDelivery(t *testing.T) {
	cfgs := map[domain.Channel]*domain.ChannelConfig{
		domain.ChannelEmail: {Channel: domain.ChannelEmail, Enabled: false},
	}
	email := &scriptedSender{channel: domain.ChannelEmail}

	h := newHarness(t, nil, nil, cfgs, email)
	n := alertNotification()
	n.Channels = []domain.Channel{domain.ChannelEmail}
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	all := h.deliveries.all()
	require.Len(t, all, 1)
	assert.Equal(t, domain.DeliveryFailed, all[0].Status)
	assert.Equal(t, 0, email.sendCount())
}

func TestDispatcher_WorkerPoolProcessesQueuedJobs(t *testing.T) {
	sms := &scriptedSender{channel: domain.ChannelSMS}
	h := newHarness(t, nil, nil, nil, sms)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.dispatcher.Start(ctx)
	defer h.dispatcher.Stop()

	n := alertNotification()
	n.Channels = []domain.Channel{domain.ChannelSMS}
	require.NoError(t, h.notifications.Create(context.Background(), n))

	require.NoError(t, h.dispatcher.Dispatch(context.Background(), n))

	require.Eventually(t, func() bool {
		all := h.deliveries.all()
		return len(all) == 1 && all[0].Status == domain.DeliverySent
	}, time.Second, 5*time.Millisecond)
}
