package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/heraldhq/herald/internal/domain"
)

// dispatchPlan is the outcome of rule evaluation for one notification.
type dispatchPlan struct {
	channels   []domain.Channel
	delay      time.Duration
	suppressed bool
}

// plan evaluates the tenant's rules and resolves the final channel set.
// Rule-routed channels are tenant policy and bypass the user's channel
// selection; only when no rule routes does the fallback chain apply:
// explicit notification channels, then the user's preferred channels for
// the type, then the in-app feed. A suppress with no surviving routes
// yields an empty plan. Rule store errors degrade to an empty ruleset so
// the notification still reaches its fallback channels.
func (d *Dispatcher) plan(ctx context.Context, n *domain.Notification) dispatchPlan {
	ruleset, err := d.rulesRepo.ListEnabled(ctx, n.TenantID)
	if err != nil {
		d.logger.ErrorContext(ctx, "rule listing failed, dispatching without rules",
			slog.String("tenant_id", n.TenantID),
			slog.String("error", err.Error()),
		)
		ruleset = nil
	}

	results := d.engine.Evaluate(ruleset, n)

	var (
		p       dispatchPlan
		routed  []domain.Channel
		seen    = make(map[domain.Channel]bool)
		mutated bool
	)

	for _, r := range results {
		switch r.Action.Type {
		case domain.ActionRoute:
			raw, _ := r.Action.Config["channel"].(string)
			ch := domain.Channel(raw)
			if domain.IsValidChannel(raw) && !seen[ch] {
				seen[ch] = true
				routed = append(routed, ch)
			}

		case domain.ActionEscalate:
			if raw, ok := r.Action.Config["priority"].(string); ok && domain.IsValidPriority(raw) {
				next := domain.Priority(raw)
				// Escalation only raises priority, never lowers it.
				if priorityRank(next) > priorityRank(n.Priority) {
					n.Priority = next
					mutated = true
				}
			}

		case domain.ActionTransform:
			if set, ok := r.Action.Config["set"].(map[string]any); ok && len(set) > 0 {
				if n.Metadata == nil {
					n.Metadata = make(map[string]any, len(set))
				}
				for k, v := range set {
					n.Metadata[k] = v
				}
				mutated = true
			}

		case domain.ActionDelay:
			if ms, ok := asInt64(r.Action.Config["duration_ms"]); ok && ms > 0 {
				if delay := time.Duration(ms) * time.Millisecond; delay > p.delay {
					p.delay = delay
				}
			}

		case domain.ActionSuppress:
			p.suppressed = true
		}
	}

	if mutated {
		if err := d.notifications.Update(ctx, n); err != nil {
			d.logger.ErrorContext(ctx, "persist rule mutation failed",
				slog.String("notification_id", n.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(routed) > 0 {
		p.channels = routed
		return p
	}
	if p.suppressed {
		return p
	}

	p.channels = d.fallbackChannels(ctx, n)
	return p
}

// fallbackChannels resolves routing when no rule matched: the notification's
// own channel list, then the user's per-type preference, then in-app.
func (d *Dispatcher) fallbackChannels(ctx context.Context, n *domain.Notification) []domain.Channel {
	if chs := validChannelSet(n.Channels); len(chs) > 0 {
		return chs
	}

	pref := d.preferenceFor(ctx, n.TenantID, n.UserID)
	preferred, enabled := pref.ChannelsForType(n.Type)
	if !enabled {
		// The user turned this type (or all notifications) off. Keep the
		// in-app record so the feed stays complete; nothing interrupts.
		return []domain.Channel{domain.ChannelInApp}
	}
	if chs := validChannelSet(preferred); len(chs) > 0 {
		return chs
	}

	return []domain.Channel{domain.ChannelInApp}
}

func validChannelSet(chs []domain.Channel) []domain.Channel {
	seen := make(map[domain.Channel]bool, len(chs))
	out := make([]domain.Channel, 0, len(chs))
	for _, ch := range chs {
		if domain.IsValidChannel(string(ch)) && !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

var priorityOrder = map[domain.Priority]int{
	domain.PriorityLow:      0,
	domain.PriorityMedium:   1,
	domain.PriorityHigh:     2,
	domain.PriorityUrgent:   3,
	domain.PriorityCritical: 4,
}

func priorityRank(p domain.Priority) int {
	return priorityOrder[p]
}

// asInt64 accepts the numeric shapes JSON decoding produces for rule config.
func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
