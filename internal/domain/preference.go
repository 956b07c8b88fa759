package domain

import "time"

// DoNotDisturb is a user-configured window during which non-urgent
// interruptive delivery is suppressed. Times are HH:MM in the user's local
// time; Days are weekday numbers 0 (Sunday) through 6 (Saturday), and an
// empty Days list means every day.
type DoNotDisturb struct {
	Enabled       bool   `json:"enabled"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Days          []int  `json:"days,omitempty"`
	AllowUrgent   bool   `json:"allow_urgent"`
	AllowCritical bool   `json:"allow_critical"`
}

// EmailDigest configures batched email summaries.
type EmailDigest struct {
	Enabled   bool   `json:"enabled"`
	Frequency string `json:"frequency"`
	Time      string `json:"time"`
}

// TypeOverride is a per-notification-type preference override.
type TypeOverride struct {
	Enabled  bool      `json:"enabled"`
	Channels []Channel `json:"channels,omitempty"`
}

// Preference holds a user's notification settings within a tenant.
type Preference struct {
	TenantID       string                            `json:"tenant_id"`
	UserID         string                            `json:"user_id"`
	Enabled        bool                              `json:"enabled"`
	SoundEnabled   bool                              `json:"sound_enabled"`
	DesktopEnabled bool                              `json:"desktop_enabled"`
	MobileEnabled  bool                              `json:"mobile_enabled"`
	DoNotDisturb   DoNotDisturb                      `json:"do_not_disturb"`
	EmailDigest    EmailDigest                       `json:"email_digest"`
	TypeOverrides  map[NotificationType]TypeOverride `json:"type_overrides,omitempty"`
	UpdatedAt      time.Time                         `json:"updated_at"`
}

// DefaultPreference returns the settings applied to a user with no stored
// preference row: everything on, no quiet hours.
func DefaultPreference(tenantID, userID string) *Preference {
	return &Preference{
		TenantID:       tenantID,
		UserID:         userID,
		Enabled:        true,
		SoundEnabled:   true,
		DesktopEnabled: true,
		MobileEnabled:  true,
	}
}

// ChannelsForType returns the user's preferred channels for a notification
// type, honoring per-type overrides. The second return is false when the type
// is disabled outright for this user.
func (p *Preference) ChannelsForType(t NotificationType) ([]Channel, bool) {
	if !p.Enabled {
		return nil, false
	}
	if ov, ok := p.TypeOverrides[t]; ok {
		if !ov.Enabled {
			return nil, false
		}
		return ov.Channels, true
	}
	return nil, true
}
