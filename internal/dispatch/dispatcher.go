// Package dispatch runs the delivery pipeline: rule evaluation, channel
// routing, preference and do-not-disturb gating, rate limiting, sending,
// and retry scheduling.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/quiet"
	"github.com/heraldhq/herald/internal/ratelimit"
	"github.com/heraldhq/herald/internal/repository"
	"github.com/heraldhq/herald/internal/retry"
	"github.com/heraldhq/herald/internal/rules"
	"github.com/heraldhq/herald/internal/sender"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

// Config tunes the dispatcher's worker pool and deferral behavior.
type Config struct {
	// WorkersPerChannel is the number of goroutines draining each channel queue.
	WorkersPerChannel int

	// QueueSize bounds each per-channel queue. A full queue falls back to
	// processing on the caller's goroutine rather than dropping work.
	QueueSize int

	// DeferralDelay is how long a delivery blocked by do-not-disturb or the
	// rate limiter waits before re-entering the pipeline. Deferral consumes
	// no delivery attempt.
	DeferralDelay time.Duration
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		WorkersPerChannel: 2,
		QueueSize:         256,
		DeferralDelay:     time.Minute,
	}
}

// RetryScheduler re-enqueues a delivery after a delay.
type RetryScheduler interface {
	Schedule(tenantID, deliveryID string, delay time.Duration)
}

// EventPublisher emits delivery lifecycle events.
type EventPublisher interface {
	PublishDeliverySent(ctx context.Context, d *domain.Delivery) error
	PublishDeliveryFailed(ctx context.Context, d *domain.Delivery) error
}

// Dispatcher fans notifications out to per-channel delivery workers.
type Dispatcher struct {
	cfg           Config
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	rulesRepo     repository.RuleRepository
	prefs         repository.PreferenceRepository
	channelCfgs   repository.ChannelConfigRepository
	engine        *rules.Engine
	limiter       ratelimit.Limiter
	senders       *sender.Registry
	scheduler     RetryScheduler
	events        EventPublisher
	logger        *slog.Logger
	now           func() time.Time

	mu      sync.Mutex
	queues  map[domain.Channel]chan job
	baseCtx context.Context
	wg      sync.WaitGroup
	started bool
}

type job struct {
	tenantID   string
	deliveryID string
}

// Deps bundles the dispatcher's collaborators.
type Deps struct {
	Notifications repository.NotificationRepository
	Deliveries    repository.DeliveryRepository
	Rules         repository.RuleRepository
	Preferences   repository.PreferenceRepository
	ChannelCfgs   repository.ChannelConfigRepository
	Engine        *rules.Engine
	Limiter       ratelimit.Limiter
	Senders       *sender.Registry
	Scheduler     RetryScheduler
	Events        EventPublisher
	Logger        *slog.Logger
}

// NewDispatcher creates a dispatcher. Call Start before dispatching.
func NewDispatcher(cfg Config, deps Deps) *Dispatcher {
	return &Dispatcher{
		cfg:           cfg,
		notifications: deps.Notifications,
		deliveries:    deps.Deliveries,
		rulesRepo:     deps.Rules,
		prefs:         deps.Preferences,
		channelCfgs:   deps.ChannelCfgs,
		engine:        deps.Engine,
		limiter:       deps.Limiter,
		senders:       deps.Senders,
		scheduler:     deps.Scheduler,
		events:        deps.Events,
		logger:        deps.Logger,
		now:           func() time.Time { return time.Now().UTC() },
		queues:        make(map[domain.Channel]chan job),
	}
}

// WithClock overrides the dispatcher's clock. Test hook.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// SetScheduler attaches the retry scheduler. The scheduler's dispatch
// callback points back at this dispatcher, so the two are constructed
// first and linked afterwards. Must be called before Start.
func (d *Dispatcher) SetScheduler(s RetryScheduler) {
	d.scheduler = s
}

// Start launches the per-channel worker pools. Workers drain until Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	d.baseCtx = ctx

	for _, ch := range domain.ValidChannels() {
		queue := make(chan job, d.cfg.QueueSize)
		d.queues[ch] = queue
		for i := 0; i < d.cfg.WorkersPerChannel; i++ {
			d.wg.Add(1)
			go d.worker(ctx, queue)
		}
	}
}

// Stop closes the queues and waits for in-flight deliveries to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	for _, q := range d.queues {
		close(q)
	}
	d.queues = make(map[domain.Channel]chan job)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, queue <-chan job) {
	defer d.wg.Done()
	for j := range queue {
		d.process(ctx, j.tenantID, j.deliveryID)
	}
}

// Dispatch evaluates routing rules for the notification, creates one delivery
// per resolved channel, and hands them to the channel workers. Deliveries for
// rules carrying a delay action enter the pipeline after the delay instead.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification) error {
	plan := d.plan(ctx, n)

	if len(plan.channels) == 0 {
		d.logger.InfoContext(ctx, "notification routed to no channels",
			slog.String("notification_id", n.ID),
			slog.Bool("suppressed", plan.suppressed),
		)
		return nil
	}

	now := d.now()
	for _, ch := range plan.channels {
		policy := d.retryPolicyFor(ctx, n.TenantID, ch)

		delivery := &domain.Delivery{
			ID:               uuid.NewString(),
			TenantID:         n.TenantID,
			NotificationID:   n.ID,
			Channel:          ch,
			RecipientAddress: recipientFor(n, ch),
			Status:           domain.DeliveryPending,
			MaxAttempts:      policy.MaxAttempts,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		if err := d.deliveries.Create(ctx, delivery); err != nil {
			return fmt.Errorf("create delivery for channel %s: %w", ch, err)
		}

		if plan.delay > 0 {
			d.scheduler.Schedule(delivery.TenantID, delivery.ID, plan.delay)
			deliveriesDeferred.WithLabelValues(string(ch), "rule_delay").Inc()
			continue
		}
		d.enqueue(ctx, ch, job{tenantID: delivery.TenantID, deliveryID: delivery.ID})
	}

	return nil
}

// Redispatch re-enters a previously deferred or retried delivery into the
// pipeline. Used as the retry scheduler's callback. Deliveries that left the
// pending state since scheduling are skipped.
func (d *Dispatcher) Redispatch(ctx context.Context, tenantID, deliveryID string) {
	delivery, err := d.deliveries.GetByID(ctx, tenantID, deliveryID)
	if err != nil {
		d.logger.ErrorContext(ctx, "redispatch lookup failed",
			slog.String("delivery_id", deliveryID),
			slog.String("error", err.Error()),
		)
		return
	}
	if delivery.Status != domain.DeliveryPending {
		d.logger.DebugContext(ctx, "redispatch skipped, delivery no longer pending",
			slog.String("delivery_id", deliveryID),
			slog.String("status", string(delivery.Status)),
		)
		return
	}
	d.enqueue(ctx, delivery.Channel, job{tenantID: tenantID, deliveryID: deliveryID})
}

// ManualRetry re-queues a failed or bounced delivery. The delivery re-enters
// the full pipeline, so preference gates and rate limits still apply. A
// channel with no budget left rejects the request up front with a rate limit
// error rather than queueing work that would only sit deferred.
func (d *Dispatcher) ManualRetry(ctx context.Context, tenantID, deliveryID string) (*domain.Delivery, error) {
	delivery, err := d.deliveries.GetByID(ctx, tenantID, deliveryID)
	if err != nil {
		return nil, err
	}
	if !delivery.Retriable() {
		return nil, apperrors.InvalidInput(
			fmt.Sprintf("delivery %s is not retriable (status %s, attempts %d/%d)",
				deliveryID, delivery.Status, delivery.Attempts, delivery.MaxAttempts))
	}

	cfg := d.channelConfigFor(ctx, tenantID, delivery.Channel)
	allowed, err := d.limiter.Peek(ctx, tenantID, delivery.Channel, cfg.RateLimit)
	if err != nil {
		// Advisory check only. A limiter outage falls through to the
		// pipeline, which fails open the same way.
		d.logger.ErrorContext(ctx, "rate limiter peek failed, queueing retry anyway",
			slog.String("channel", string(delivery.Channel)),
			slog.String("error", err.Error()),
		)
		allowed = true
	}
	if !allowed {
		return nil, apperrors.RateLimited(string(delivery.Channel))
	}

	if err := delivery.TransitionTo(domain.DeliveryPending, d.now()); err != nil {
		return nil, err
	}
	delivery.ErrorMessage = ""
	if err := d.deliveries.Update(ctx, delivery); err != nil {
		return nil, err
	}

	d.enqueue(ctx, delivery.Channel, job{tenantID: tenantID, deliveryID: deliveryID})
	return delivery, nil
}

// enqueue hands a job to the channel's worker pool, falling back to inline
// processing when the dispatcher is not started or the queue is full.
func (d *Dispatcher) enqueue(ctx context.Context, ch domain.Channel, j job) {
	d.mu.Lock()
	queue, ok := d.queues[ch]
	base := d.baseCtx
	d.mu.Unlock()

	if !ok {
		d.process(ctx, j.tenantID, j.deliveryID)
		return
	}

	select {
	case queue <- j:
	default:
		d.logger.WarnContext(ctx, "delivery queue full, processing inline",
			slog.String("channel", string(ch)),
		)
		if base != nil {
			ctx = base
		}
		d.process(ctx, j.tenantID, j.deliveryID)
	}
}

// process runs one delivery attempt end to end.
func (d *Dispatcher) process(ctx context.Context, tenantID, deliveryID string) {
	delivery, err := d.deliveries.GetByID(ctx, tenantID, deliveryID)
	if err != nil {
		d.logger.ErrorContext(ctx, "delivery lookup failed",
			slog.String("delivery_id", deliveryID),
			slog.String("error", err.Error()),
		)
		return
	}
	if delivery.Status != domain.DeliveryPending {
		return
	}

	n, err := d.notifications.GetByID(ctx, tenantID, delivery.NotificationID)
	if err != nil {
		d.failDelivery(ctx, delivery, fmt.Sprintf("notification lookup failed: %v", err))
		return
	}

	pref := d.preferenceFor(ctx, tenantID, n.UserID)

	// Do-not-disturb defers the delivery without consuming an attempt.
	if decision := quiet.Check(pref.DoNotDisturb, n.Priority, delivery.Channel, d.now()); !decision.Allowed {
		d.logger.InfoContext(ctx, "delivery deferred by do-not-disturb",
			slog.String("delivery_id", delivery.ID),
			slog.String("reason", decision.Reason),
		)
		deliveriesDeferred.WithLabelValues(string(delivery.Channel), "do_not_disturb").Inc()
		d.scheduler.Schedule(tenantID, delivery.ID, d.cfg.DeferralDelay)
		return
	}

	cfg := d.channelConfigFor(ctx, tenantID, delivery.Channel)
	if !cfg.Enabled {
		d.failDelivery(ctx, delivery, fmt.Sprintf("channel %s is disabled", delivery.Channel))
		return
	}

	// Rate limiting also defers without consuming an attempt. Limiter
	// errors fail open: a Redis outage must not halt deliveries.
	allowed, err := d.limiter.TryAcquire(ctx, tenantID, delivery.Channel, cfg.RateLimit)
	if err != nil {
		d.logger.ErrorContext(ctx, "rate limiter unavailable, allowing delivery",
			slog.String("channel", string(delivery.Channel)),
			slog.String("error", err.Error()),
		)
		allowed = true
	}
	if !allowed {
		d.logger.InfoContext(ctx, "delivery deferred by rate limit",
			slog.String("delivery_id", delivery.ID),
			slog.String("channel", string(delivery.Channel)),
		)
		deliveriesDeferred.WithLabelValues(string(delivery.Channel), "rate_limited").Inc()
		d.scheduler.Schedule(tenantID, delivery.ID, d.cfg.DeferralDelay)
		return
	}

	if err := delivery.RecordAttempt(d.now()); err != nil {
		d.failDelivery(ctx, delivery, "delivery attempts exhausted")
		return
	}

	d.attempt(ctx, n, delivery, cfg)
}

// attempt performs the send and applies the outcome to the delivery record.
func (d *Dispatcher) attempt(ctx context.Context, n *domain.Notification, delivery *domain.Delivery, cfg *domain.ChannelConfig) {
	snd, err := d.senders.Lookup(delivery.Channel)
	if err != nil {
		d.failDelivery(ctx, delivery, err.Error())
		return
	}

	res, sendErr := snd.Send(ctx, cfg, delivery.RecipientAddress, sender.Content{
		Title:    n.Title,
		Message:  n.Message,
		Metadata: n.Metadata,
	})

	now := d.now()
	switch {
	case sendErr == nil:
		target := domain.DeliverySent
		if res.DeliveredImmediately {
			target = domain.DeliveryDelivered
		}
		if err := delivery.TransitionTo(target, now); err != nil {
			d.logger.ErrorContext(ctx, "delivery transition rejected",
				slog.String("delivery_id", delivery.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		delivery.ErrorMessage = ""
		d.persist(ctx, delivery)
		deliveriesProcessed.WithLabelValues(string(delivery.Channel), string(target)).Inc()
		if err := d.events.PublishDeliverySent(ctx, delivery); err != nil {
			d.logger.ErrorContext(ctx, "publish delivery.sent failed", slog.String("error", err.Error()))
		}
		d.advanceNotification(ctx, n, target)

	case res.PermanentFailure:
		// Provider rejected the delivery outright. No retry can help.
		if err := delivery.TransitionTo(domain.DeliveryBounced, now); err != nil {
			d.logger.ErrorContext(ctx, "delivery transition rejected",
				slog.String("delivery_id", delivery.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		delivery.ErrorMessage = sendErr.Error()
		d.persist(ctx, delivery)
		deliveriesProcessed.WithLabelValues(string(delivery.Channel), string(domain.DeliveryBounced)).Inc()
		if err := d.events.PublishDeliveryFailed(ctx, delivery); err != nil {
			d.logger.ErrorContext(ctx, "publish delivery.failed failed", slog.String("error", err.Error()))
		}
		d.settleNotification(ctx, n)

	case delivery.Attempts < delivery.MaxAttempts:
		// Transient failure with attempts remaining: stay pending and
		// come back after the backoff.
		delivery.ErrorMessage = sendErr.Error()
		delivery.UpdatedAt = now
		d.persist(ctx, delivery)

		delay := retry.Backoff(cfg.RetryPolicy, delivery.Attempts)
		d.logger.WarnContext(ctx, "delivery attempt failed, retry scheduled",
			slog.String("delivery_id", delivery.ID),
			slog.Int("attempt", delivery.Attempts),
			slog.Duration("delay", delay),
			slog.String("error", sendErr.Error()),
		)
		deliveriesRetried.WithLabelValues(string(delivery.Channel)).Inc()
		d.scheduler.Schedule(delivery.TenantID, delivery.ID, delay)

	default:
		if err := delivery.TransitionTo(domain.DeliveryFailed, now); err != nil {
			d.logger.ErrorContext(ctx, "delivery transition rejected",
				slog.String("delivery_id", delivery.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		delivery.ErrorMessage = sendErr.Error()
		d.persist(ctx, delivery)
		deliveriesProcessed.WithLabelValues(string(delivery.Channel), string(domain.DeliveryFailed)).Inc()
		if err := d.events.PublishDeliveryFailed(ctx, delivery); err != nil {
			d.logger.ErrorContext(ctx, "publish delivery.failed failed", slog.String("error", err.Error()))
		}
		d.settleNotification(ctx, n)
	}
}

// failDelivery marks the delivery failed for pipeline-level errors that no
// retry can fix (missing sender, disabled channel, exhausted attempts).
func (d *Dispatcher) failDelivery(ctx context.Context, delivery *domain.Delivery, reason string) {
	if err := delivery.TransitionTo(domain.DeliveryFailed, d.now()); err != nil {
		d.logger.ErrorContext(ctx, "delivery transition rejected",
			slog.String("delivery_id", delivery.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	delivery.ErrorMessage = reason
	d.persist(ctx, delivery)
	deliveriesProcessed.WithLabelValues(string(delivery.Channel), string(domain.DeliveryFailed)).Inc()
	if err := d.events.PublishDeliveryFailed(ctx, delivery); err != nil {
		d.logger.ErrorContext(ctx, "publish delivery.failed failed", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) persist(ctx context.Context, delivery *domain.Delivery) {
	if err := d.deliveries.Update(ctx, delivery); err != nil {
		d.logger.ErrorContext(ctx, "persist delivery failed",
			slog.String("delivery_id", delivery.ID),
			slog.String("error", err.Error()),
		)
	}
}

// advanceNotification promotes the notification's own status when a delivery
// lands. Read and archived states are user-owned and never overwritten.
func (d *Dispatcher) advanceNotification(ctx context.Context, n *domain.Notification, target domain.DeliveryStatus) {
	var next domain.NotificationStatus
	switch target {
	case domain.DeliveryDelivered:
		next = domain.NotificationDelivered
	case domain.DeliverySent:
		next = domain.NotificationSent
	default:
		return
	}

	switch n.Status {
	case domain.NotificationPending, domain.NotificationFailed:
	case domain.NotificationSent:
		if next != domain.NotificationDelivered {
			return
		}
	default:
		return
	}

	n.Status = next
	if err := d.notifications.Update(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "advance notification status failed",
			slog.String("notification_id", n.ID),
			slog.String("error", err.Error()),
		)
	}
}

// settleNotification marks the notification failed once every one of its
// deliveries has terminally failed.
func (d *Dispatcher) settleNotification(ctx context.Context, n *domain.Notification) {
	if n.Status != domain.NotificationPending {
		return
	}

	all, err := d.deliveries.ListByNotification(ctx, n.TenantID, n.ID)
	if err != nil {
		d.logger.ErrorContext(ctx, "settle notification lookup failed",
			slog.String("notification_id", n.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, dl := range all {
		if dl.Status != domain.DeliveryFailed && dl.Status != domain.DeliveryBounced {
			return
		}
	}

	n.Status = domain.NotificationFailed
	if err := d.notifications.Update(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "settle notification status failed",
			slog.String("notification_id", n.ID),
			slog.String("error", err.Error()),
		)
	}
}

// preferenceFor loads the user's preference, falling back to the default on
// a missing row or a store error. Preference reads never block dispatch.
func (d *Dispatcher) preferenceFor(ctx context.Context, tenantID, userID string) *domain.Preference {
	pref, err := d.prefs.Get(ctx, tenantID, userID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			d.logger.ErrorContext(ctx, "preference lookup failed, using defaults",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return domain.DefaultPreference(tenantID, userID)
	}
	return pref
}

// channelConfigFor loads the tenant's channel config, falling back to an
// enabled config with default limits when none is stored.
func (d *Dispatcher) channelConfigFor(ctx context.Context, tenantID string, ch domain.Channel) *domain.ChannelConfig {
	cfg, err := d.channelCfgs.GetByChannel(ctx, tenantID, ch)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			d.logger.ErrorContext(ctx, "channel config lookup failed, using defaults",
				slog.String("channel", string(ch)),
				slog.String("error", err.Error()),
			)
		}
		return &domain.ChannelConfig{
			TenantID:    tenantID,
			Channel:     ch,
			Enabled:     true,
			RetryPolicy: domain.DefaultRetryPolicy(),
		}
	}
	return cfg
}

func (d *Dispatcher) retryPolicyFor(ctx context.Context, tenantID string, ch domain.Channel) domain.RetryPolicy {
	cfg := d.channelConfigFor(ctx, tenantID, ch)
	if cfg.RetryPolicy.MaxAttempts <= 0 {
		return domain.DefaultRetryPolicy()
	}
	return cfg.RetryPolicy
}

// recipientFor resolves the delivery address. User-facing channels address
// the user; webhook-family channels address the endpoint in their config.
func recipientFor(n *domain.Notification, ch domain.Channel) string {
	switch ch {
	case domain.ChannelWebhook, domain.ChannelSlack, domain.ChannelTeams:
		return ""
	default:
		return n.UserID
	}
}
