package rules

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testNotification() *domain.Notification {
	return &domain.Notification{
		ID:       "n-1",
		TenantID: "t-1",
		Type:     domain.TypeAlert,
		Priority: domain.PriorityHigh,
		Title:    "Disk usage alert",
		Message:  "Disk usage above 90% on host web-3",
		Status:   domain.NotificationPending,
		Metadata: map[string]any{
			"source": "monitoring",
			"host":   "web-3",
			"usage":  92.5,
			"tags":   []any{"disk", "infra"},
			"nested": map[string]any{"region": "eu-west-1"},
		},
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func cond(field string, op domain.Operator, value any) domain.Condition {
	return domain.Condition{Field: field, Operator: op, Value: value}
}

func TestEvalCondition_Operators(t *testing.T) {
	n := testNotification()

	tests := []struct {
		name string
		c    domain.Condition
		want bool
	}{
		{"eq match", cond("type", domain.OpEq, "alert"), true},
		{"eq mismatch", cond("type", domain.OpEq, "info"), false},
		{"ne", cond("type", domain.OpNe, "info"), true},
		{"gt numeric", cond("usage", domain.OpGt, 90), true},
		{"gt numeric false", cond("usage", domain.OpGt, 95), false},
		{"gte boundary", cond("usage", domain.OpGte, 92.5), true},
		{"lt numeric", cond("usage", domain.OpLt, 100), true},
		{"lte boundary", cond("usage", domain.OpLte, 92.5), true},
		{"gt numeric string coerces", cond("usage", domain.OpGt, "90"), true},
		{"gt timestamp", cond("created_at", domain.OpGt, "2026-03-09T00:00:00Z"), true},
		{"lt timestamp", cond("created_at", domain.OpLt, "2026-03-09T00:00:00Z"), false},
		{"gt non-coercible is false", cond("title", domain.OpGt, 5), false},
		{"in array", cond("type", domain.OpIn, []any{"alert", "error"}), true},
		{"in comma list", cond("type", domain.OpIn, "error, alert"), true},
		{"in miss", cond("type", domain.OpIn, "info,success"), false},
		{"nin", cond("type", domain.OpNin, "info,success"), true},
		{"contains substring", cond("message", domain.OpContains, "90%"), true},
		{"contains array member", cond("tags", domain.OpContains, "disk"), true},
		{"contains array miss", cond("tags", domain.OpContains, "network"), false},
		{"matches", cond("host", domain.OpMatches, `^web-\d+$`), true},
		{"matches bad pattern is false", cond("host", domain.OpMatches, `([`), false},
		{"metadata dot path", cond("nested.region", domain.OpEq, "eu-west-1"), true},
		{"metadata prefix", cond("metadata.source", domain.OpEq, "monitoring"), true},
		{"missing field is false", cond("nope.missing", domain.OpEq, "x"), false},
		{"unknown operator is false", cond("type", domain.Operator("almost"), "alert"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalCondition(tt.c, n, testLogger()))
		})
	}
}

func TestEvaluate_AndLogic(t *testing.T) {
	e := NewEngine(testLogger())
	n := testNotification()

	rule := domain.Rule{
		ID: "r-1", Enabled: true, Priority: 10, Logic: domain.LogicAnd,
		Conditions: []domain.Condition{
			cond("type", domain.OpEq, "alert"),
			cond("usage", domain.OpGt, 90),
		},
		Actions: []domain.Action{{Type: domain.ActionRoute, Config: map[string]any{"channel": "sms"}}},
	}

	results := e.Evaluate([]domain.Rule{rule}, n)
	require.Len(t, results, 1)
	assert.Equal(t, "r-1", results[0].RuleID)

	// One failing condition fails the whole AND rule.
	rule.Conditions = append(rule.Conditions, cond("type", domain.OpEq, "info"))
	assert.Empty(t, e.Evaluate([]domain.Rule{rule}, n))
}

func TestEvaluate_OrLogic(t *testing.T) {
	e := NewEngine(testLogger())
	n := testNotification()

	rule := domain.Rule{
		ID: "r-1", Enabled: true, Priority: 10, Logic: domain.LogicOr,
		Conditions: []domain.Condition{
			cond("type", domain.OpEq, "info"),
			cond("usage", domain.OpGt, 90),
		},
		Actions: []domain.Action{{Type: domain.ActionEscalate, Config: map[string]any{"priority": "critical"}}},
	}

	require.Len(t, e.Evaluate([]domain.Rule{rule}, n), 1)

	// All conditions false: no match.
	rule.Conditions = []domain.Condition{
		cond("type", domain.OpEq, "info"),
		cond("usage", domain.OpGt, 99),
	}
	assert.Empty(t, e.Evaluate([]domain.Rule{rule}, n))
}

func TestEvaluate_PriorityOrderAndTieBreak(t *testing.T) {
	e := NewEngine(testLogger())
	n := testNotification()

	route := func(id string, priority int, channel string) domain.Rule {
		return domain.Rule{
			ID: id, Enabled: true, Priority: priority, Logic: domain.LogicAnd,
			Conditions: []domain.Condition{cond("type", domain.OpEq, "alert")},
			Actions:    []domain.Action{{Type: domain.ActionRoute, Config: map[string]any{"channel": channel}}},
		}
	}

	ruleset := []domain.Rule{
		route("r-b", 50, "email"),
		route("r-a", 50, "push"),
		route("r-c", 100, "sms"),
	}

	results := e.Evaluate(ruleset, n)
	require.Len(t, results, 3)
	assert.Equal(t, "r-c", results[0].RuleID)
	assert.Equal(t, "r-a", results[1].RuleID)
	assert.Equal(t, "r-b", results[2].RuleID)
}

func TestEvaluate_DisabledRulesSkipped(t *testing.T) {
	e := NewEngine(testLogger())
	n := testNotification()

	rule := domain.Rule{
		ID: "r-1", Enabled: false, Priority: 10, Logic: domain.LogicAnd,
		Conditions: []domain.Condition{cond("type", domain.OpEq, "alert")},
		Actions:    []domain.Action{{Type: domain.ActionRoute, Config: map[string]any{"channel": "sms"}}},
	}

	assert.Empty(t, e.Evaluate([]domain.Rule{rule}, n))
}

func TestEvaluate_SuppressRemovesAllRoutesAndStops(t *testing.T) {
	e := NewEngine(testLogger())
	n := testNotification()

	ruleset := []domain.Rule{
		{
			ID: "r-high", Enabled: true, Priority: 100, Logic: domain.LogicAnd,
			Conditions: []domain.Condition{cond("type", domain.OpEq, "alert")},
			Actions:    []domain.Action{{Type: domain.ActionRoute, Config: map[string]any{"channel": "sms"}}},
		},
		{
			ID: "r-mute", Enabled: true, Priority: 50, Logic: domain.LogicAnd,
			Conditions: []domain.Condition{cond("source", domain.OpEq, "monitoring")},
			Actions:    []domain.Action{{Type: domain.ActionSuppress}},
		},
		{
			ID: "r-low", Enabled: true, Priority: 10, Logic: domain.LogicAnd,
			Conditions: []domain.Condition{cond("type", domain.OpEq, "alert")},
			Actions:    []domain.Action{{Type: domain.ActionRoute, Config: map[string]any{"channel": "email"}}},
		},
	}

	results := e.Evaluate(ruleset, n)

	// The unscoped suppress cancels the queued sms route; the lower-priority
	// rule is never evaluated.
	require.Len(t, results, 1)
	assert.Equal(t, domain.ActionSuppress, results[0].Action.Type)
}

func TestEvaluate_SuppressChannelScope(t *testing.T) {
	e := NewEngine(testLogger())
	n := testNotification()

	ruleset := []domain.Rule{
		{
			ID: "r-high", Enabled: true, Priority: 100, Logic: domain.LogicAnd,
			Conditions: []domain.Condition{cond("type", domain.OpEq, "alert")},
			Actions: []domain.Action{
				{Type: domain.ActionRoute, Config: map[string]any{"channel": "sms"}},
				{Type: domain.ActionRoute, Config: map[string]any{"channel": "email"}},
			},
		},
		{
			ID: "r-mute-sms", Enabled: true, Priority: 50, Logic: domain.LogicAnd,
			Conditions: []domain.Condition{cond("source", domain.OpEq, "monitoring")},
			Actions:    []domain.Action{{Type: domain.ActionSuppress, Config: map[string]any{"channels": []any{"sms"}}}},
		},
	}

	results := e.Evaluate(ruleset, n)

	var routed []string
	for _, r := range results {
		if r.Action.Type == domain.ActionRoute {
			ch, _ := r.Action.Config["channel"].(string)
			routed = append(routed, ch)
		}
	}
	assert.Equal(t, []string{"email"}, routed)
}

func TestEvaluate_IsPure(t *testing.T) {
	e := NewEngine(testLogger())
	n := testNotification()

	rule := domain.Rule{
		ID: "r-1", Enabled: true, Priority: 10, Logic: domain.LogicAnd,
		Conditions: []domain.Condition{cond("type", domain.OpEq, "alert")},
		Actions:    []domain.Action{{Type: domain.ActionRoute, Config: map[string]any{"channel": "sms"}}},
	}

	first := e.Evaluate([]domain.Rule{rule}, n)
	second := e.Evaluate([]domain.Rule{rule}, n)
	assert.Equal(t, first, second)
}
