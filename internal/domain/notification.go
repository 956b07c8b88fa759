package domain

import (
	"strings"
	"time"
)

// NotificationType classifies what kind of event a notification represents.
type NotificationType string

const (
	TypeInfo     NotificationType = "info"
	TypeSuccess  NotificationType = "success"
	TypeWarning  NotificationType = "warning"
	TypeError    NotificationType = "error"
	TypeSystem   NotificationType = "system"
	TypeTask     NotificationType = "task"
	TypeMention  NotificationType = "mention"
	TypeComment  NotificationType = "comment"
	TypeApproval NotificationType = "approval"
	TypeReminder NotificationType = "reminder"
	TypeAlert    NotificationType = "alert"
)

// Priority orders notifications by urgency. Urgent and critical priorities can
// pierce a do-not-disturb window when the user's preferences allow it.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// NotificationStatus is the read-state lifecycle of the notification itself.
// Per-channel transmission state lives on Delivery, not here.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationRead      NotificationStatus = "read"
	NotificationFailed    NotificationStatus = "failed"
	NotificationArchived  NotificationStatus = "archived"
)

// Notification is a rendered message awaiting (or past) delivery. Immutable
// once created except for Status, UpdatedAt, and read-state transitions.
type Notification struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenant_id"`
	UserID    string             `json:"user_id"`
	Type      NotificationType   `json:"type"`
	Priority  Priority           `json:"priority"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Status    NotificationStatus `json:"status"`
	Channels  []Channel          `json:"channels,omitempty"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ValidTypes returns the set of valid notification types.
func ValidTypes() []NotificationType {
	return []NotificationType{
		TypeInfo, TypeSuccess, TypeWarning, TypeError, TypeSystem,
		TypeTask, TypeMention, TypeComment, TypeApproval, TypeReminder, TypeAlert,
	}
}

// IsValidType checks whether the given string is a valid notification type.
func IsValidType(t string) bool {
	for _, v := range ValidTypes() {
		if string(v) == t {
			return true
		}
	}
	return false
}

// ValidPriorities returns the set of valid priorities, lowest first.
func ValidPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent, PriorityCritical}
}

// IsValidPriority checks whether the given string is a valid priority.
func IsValidPriority(p string) bool {
	for _, v := range ValidPriorities() {
		if string(v) == p {
			return true
		}
	}
	return false
}

// IsValidNotificationStatus checks whether the given string is a valid notification status.
func IsValidNotificationStatus(s string) bool {
	switch NotificationStatus(s) {
	case NotificationPending, NotificationSent, NotificationDelivered,
		NotificationRead, NotificationFailed, NotificationArchived:
		return true
	}
	return false
}

// Field resolves a dot-path field name against the notification. Top-level
// names map to the typed fields; anything else (with or without a "metadata."
// prefix) walks the metadata map. Returns false when the path does not
// resolve; callers treat a missing value as a non-match, never an error.
func (n *Notification) Field(path string) (any, bool) {
	switch path {
	case "id":
		return n.ID, true
	case "user_id", "userId":
		return n.UserID, true
	case "type":
		return string(n.Type), true
	case "priority":
		return string(n.Priority), true
	case "title":
		return n.Title, true
	case "message":
		return n.Message, true
	case "status":
		return string(n.Status), true
	case "created_at", "createdAt":
		return n.CreatedAt.UTC().Format(time.RFC3339), true
	}

	path = strings.TrimPrefix(path, "metadata.")
	return lookupPath(n.Metadata, strings.Split(path, "."))
}

// Source returns the metadata source, or "unknown" when absent. Used as the
// grouping key so every notification maps to exactly one source group.
func (n *Notification) Source() string {
	if v, ok := n.Metadata["source"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return UnknownSource
}

// lookupPath walks nested maps by the given path segments.
func lookupPath(m map[string]any, segments []string) (any, bool) {
	if m == nil || len(segments) == 0 {
		return nil, false
	}

	cur := any(m)
	for _, seg := range segments {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
