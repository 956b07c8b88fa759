package quiet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/heraldhq/herald/internal/domain"
)

// at builds a local time on a fixed Wednesday at the given clock time.
func at(hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	// 2026-03-11 is a Wednesday (weekday 3).
	return time.Date(2026, 3, 11, t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func TestCheck_Disabled(t *testing.T) {
	dnd := domain.DoNotDisturb{Enabled: false, StartTime: "00:00", EndTime: "23:59"}
	d := Check(dnd, domain.PriorityLow, domain.ChannelEmail, at("12:00"))
	assert.True(t, d.Allowed)
}

func TestCheck_MidnightCrossingWindow(t *testing.T) {
	dnd := domain.DoNotDisturb{Enabled: true, StartTime: "22:00", EndTime: "06:00"}

	assert.False(t, Check(dnd, domain.PriorityMedium, domain.ChannelEmail, at("23:30")).Allowed)
	assert.False(t, Check(dnd, domain.PriorityMedium, domain.ChannelEmail, at("03:00")).Allowed)
	assert.True(t, Check(dnd, domain.PriorityMedium, domain.ChannelEmail, at("12:00")).Allowed)
}

func TestCheck_SameDayWindow(t *testing.T) {
	dnd := domain.DoNotDisturb{Enabled: true, StartTime: "09:00", EndTime: "17:00"}

	assert.False(t, Check(dnd, domain.PriorityLow, domain.ChannelPush, at("09:00")).Allowed)
	assert.False(t, Check(dnd, domain.PriorityLow, domain.ChannelPush, at("17:00")).Allowed)
	assert.True(t, Check(dnd, domain.PriorityLow, domain.ChannelPush, at("17:01")).Allowed)
	assert.True(t, Check(dnd, domain.PriorityLow, domain.ChannelPush, at("08:59")).Allowed)
}

func TestCheck_DaysSubset(t *testing.T) {
	// Window covers all day, but only on Saturday (6) and Sunday (0);
	// the probe time is a Wednesday.
	dnd := domain.DoNotDisturb{Enabled: true, StartTime: "00:00", EndTime: "23:59", Days: []int{0, 6}}
	assert.True(t, Check(dnd, domain.PriorityLow, domain.ChannelEmail, at("12:00")).Allowed)

	dnd.Days = []int{3}
	assert.False(t, Check(dnd, domain.PriorityLow, domain.ChannelEmail, at("12:00")).Allowed)
}

func TestCheck_PriorityOverrides(t *testing.T) {
	dnd := domain.DoNotDisturb{
		Enabled: true, StartTime: "00:00", EndTime: "23:59",
		AllowUrgent: true, AllowCritical: true,
	}

	assert.False(t, Check(dnd, domain.PriorityHigh, domain.ChannelSMS, at("12:00")).Allowed)
	assert.True(t, Check(dnd, domain.PriorityUrgent, domain.ChannelSMS, at("12:00")).Allowed)
	assert.True(t, Check(dnd, domain.PriorityCritical, domain.ChannelSMS, at("12:00")).Allowed)

	dnd.AllowUrgent = false
	assert.False(t, Check(dnd, domain.PriorityUrgent, domain.ChannelSMS, at("12:00")).Allowed)
}

func TestCheck_InAppNeverBlocked(t *testing.T) {
	dnd := domain.DoNotDisturb{Enabled: true, StartTime: "00:00", EndTime: "23:59"}
	d := Check(dnd, domain.PriorityLow, domain.ChannelInApp, at("12:00"))
	assert.True(t, d.Allowed)
}

func TestCheck_BrokenWindowFailsOpen(t *testing.T) {
	dnd := domain.DoNotDisturb{Enabled: true, StartTime: "not-a-time", EndTime: "06:00"}
	assert.True(t, Check(dnd, domain.PriorityLow, domain.ChannelEmail, at("03:00")).Allowed)
}
