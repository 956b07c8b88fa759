package domain

import "time"

// UnknownSource is the sentinel grouping key for notifications whose metadata
// carries no source.
const UnknownSource = "unknown"

// GroupBy selects the grouping key for derived notification groups.
type GroupBy string

const (
	GroupByType     GroupBy = "type"
	GroupBySource   GroupBy = "source"
	GroupByDate     GroupBy = "date"
	GroupByPriority GroupBy = "priority"
)

// IsValidGroupBy checks whether the given string is a valid grouping mode.
func IsValidGroupBy(g string) bool {
	switch GroupBy(g) {
	case GroupByType, GroupBySource, GroupByDate, GroupByPriority:
		return true
	}
	return false
}

// NotificationGroup is a derived (never persisted) aggregate over
// notifications sharing one grouping key.
type NotificationGroup struct {
	Key       string        `json:"key"`
	GroupBy   GroupBy       `json:"group_by"`
	Count     int           `json:"count"`
	AllRead   bool          `json:"all_read"`
	Latest    *Notification `json:"latest_notification,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// GroupKey extracts the grouping key for a notification under the given mode.
// The mapping is total: every notification yields exactly one key.
func GroupKey(n *Notification, mode GroupBy) string {
	switch mode {
	case GroupByType:
		return string(n.Type)
	case GroupBySource:
		return n.Source()
	case GroupByDate:
		return n.CreatedAt.UTC().Format("2006-01-02")
	case GroupByPriority:
		return string(n.Priority)
	default:
		return string(n.Type)
	}
}
