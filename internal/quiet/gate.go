// Package quiet implements the do-not-disturb gate. The gate decides, from a
// user's schedule and an already-localized current time, whether an
// interruptive delivery is currently suppressed.
package quiet

import (
	"time"

	"github.com/heraldhq/herald/internal/domain"
)

// Decision explains a gate outcome.
type Decision struct {
	Allowed bool
	Reason  string
}

// Check decides whether a delivery over the given channel may proceed at now.
// now must already be localized to the subject user; timezone resolution is
// the caller's concern.
//
// The in-app channel is never blocked: do-not-disturb governs interruptive
// channels only, so the in-app feed stays complete for later review.
func Check(dnd domain.DoNotDisturb, priority domain.Priority, channel domain.Channel, now time.Time) Decision {
	if !channel.Interruptive() {
		return Decision{Allowed: true, Reason: "in_app is exempt from do-not-disturb"}
	}
	if !dnd.Enabled {
		return Decision{Allowed: true, Reason: "do-not-disturb disabled"}
	}
	if len(dnd.Days) > 0 && !dayActive(dnd.Days, now.Weekday()) {
		return Decision{Allowed: true, Reason: "do-not-disturb inactive today"}
	}
	if !windowActive(dnd.StartTime, dnd.EndTime, now) {
		return Decision{Allowed: true, Reason: "outside do-not-disturb window"}
	}
	if priority == domain.PriorityUrgent && dnd.AllowUrgent {
		return Decision{Allowed: true, Reason: "urgent override"}
	}
	if priority == domain.PriorityCritical && dnd.AllowCritical {
		return Decision{Allowed: true, Reason: "critical override"}
	}
	return Decision{Allowed: false, Reason: "do-not-disturb window active"}
}

func dayActive(days []int, weekday time.Weekday) bool {
	for _, d := range days {
		if d == int(weekday) {
			return true
		}
	}
	return false
}

// windowActive compares the current HH:MM against [start, end]. A window whose
// start is after its end crosses midnight: active when now >= start OR
// now <= end. Unparseable window times fail open: a broken schedule must not
// silence deliveries.
func windowActive(start, end string, now time.Time) bool {
	startMin, ok := parseHHMM(start)
	if !ok {
		return false
	}
	endMin, ok := parseHHMM(end)
	if !ok {
		return false
	}
	nowMin := now.Hour()*60 + now.Minute()

	if startMin <= endMin {
		return nowMin >= startMin && nowMin <= endMin
	}
	return nowMin >= startMin || nowMin <= endMin
}

// parseHHMM converts "HH:MM" to minutes since midnight.
func parseHHMM(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' ||
		s[3] < '0' || s[3] > '9' || s[4] < '0' || s[4] > '9' ||
		h > 23 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
