package domain

import (
	"fmt"
	"time"
)

// NotificationTemplate renders an inbound event into a notification. Title and
// message templates use {{name}} placeholders bound from the event's variable
// map; an unresolved placeholder is a render error, not an empty string.
type NotificationTemplate struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	Name            string           `json:"name"`
	Type            NotificationType `json:"type"`
	Priority        Priority         `json:"priority"`
	Channels        []Channel        `json:"channels,omitempty"`
	TitleTemplate   string           `json:"title_template"`
	MessageTemplate string           `json:"message_template"`
	Variables       []string         `json:"variables,omitempty"`
	Active          bool             `json:"active"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Validate rejects malformed templates at write time.
func (t *NotificationTemplate) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if !IsValidType(string(t.Type)) {
		return fmt.Errorf("invalid notification type %q", t.Type)
	}
	if !IsValidPriority(string(t.Priority)) {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.TitleTemplate == "" {
		return fmt.Errorf("title_template is required")
	}
	if t.MessageTemplate == "" {
		return fmt.Errorf("message_template is required")
	}
	for _, ch := range t.Channels {
		if !IsValidChannel(string(ch)) {
			return fmt.Errorf("invalid channel %q", ch)
		}
	}
	return nil
}
