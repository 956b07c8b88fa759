package domain

import (
	"fmt"
	"time"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp   Channel = "in_app"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelSlack   Channel = "slack"
	ChannelTeams   Channel = "teams"
	ChannelWebhook Channel = "webhook"
)

// ValidChannels returns the set of valid channels.
func ValidChannels() []Channel {
	return []Channel{
		ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush,
		ChannelSlack, ChannelTeams, ChannelWebhook,
	}
}

// IsValidChannel checks whether the given string is a valid channel.
func IsValidChannel(c string) bool {
	for _, v := range ValidChannels() {
		if string(v) == c {
			return true
		}
	}
	return false
}

// Interruptive reports whether the channel interrupts the user. The in-app
// feed is not interruptive and is exempt from do-not-disturb so it stays
// complete for later review.
func (c Channel) Interruptive() bool {
	return c != ChannelInApp
}

// RateLimit caps deliveries per channel at minute, hour, and day granularity.
// A zero value for any cap disables that window.
type RateLimit struct {
	MaxPerMinute int `json:"max_per_minute"`
	MaxPerHour   int `json:"max_per_hour"`
	MaxPerDay    int `json:"max_per_day"`
}

// RetryPolicy governs backoff between failed delivery attempts.
type RetryPolicy struct {
	MaxAttempts       int           `json:"max_attempts"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
}

// DefaultRetryPolicy returns the policy applied when a channel config does not
// specify one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BackoffMultiplier: 2,
		InitialDelay:      time.Second,
		MaxDelay:          time.Minute,
	}
}

// ChannelConfig is the per-tenant configuration for one channel. At most one
// config exists per (tenant, channel).
type ChannelConfig struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Channel     Channel        `json:"channel"`
	Enabled     bool           `json:"enabled"`
	Settings    map[string]any `json:"settings,omitempty"`
	RateLimit   RateLimit      `json:"rate_limit"`
	RetryPolicy RetryPolicy    `json:"retry_policy"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Validate rejects malformed channel configs at write time so they never reach
// the delivery pipeline.
func (c *ChannelConfig) Validate() error {
	if !IsValidChannel(string(c.Channel)) {
		return fmt.Errorf("invalid channel %q", c.Channel)
	}
	if c.RateLimit.MaxPerMinute < 0 || c.RateLimit.MaxPerHour < 0 || c.RateLimit.MaxPerDay < 0 {
		return fmt.Errorf("rate limit caps must not be negative")
	}
	if c.RetryPolicy.MaxAttempts < 1 {
		return fmt.Errorf("retry policy max_attempts must be at least 1")
	}
	if c.RetryPolicy.BackoffMultiplier < 1 {
		return fmt.Errorf("retry policy backoff_multiplier must be at least 1")
	}
	if c.RetryPolicy.InitialDelay <= 0 {
		return fmt.Errorf("retry policy initial_delay must be positive")
	}
	if c.RetryPolicy.MaxDelay < c.RetryPolicy.InitialDelay {
		return fmt.Errorf("retry policy max_delay must be at least initial_delay")
	}
	switch c.Channel {
	case ChannelWebhook, ChannelSlack, ChannelTeams:
		if _, ok := c.Settings["url"].(string); !ok {
			return fmt.Errorf("%s channel config requires a settings.url", c.Channel)
		}
	}
	return nil
}
