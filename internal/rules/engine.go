package rules

import (
	"log/slog"
	"sort"

	"github.com/heraldhq/herald/internal/domain"
)

// ActionResult is one action produced by rule evaluation, tagged with the rule
// that emitted it.
type ActionResult struct {
	RuleID   string        `json:"rule_id"`
	RuleName string        `json:"rule_name"`
	Action   domain.Action `json:"action"`
}

// Engine evaluates rules against notifications. It holds no state beyond a
// logger: evaluation is a pure function of (rules, notification), so it can
// run on any worker without locking.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a rule engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Evaluate runs the given rules against a notification and returns the
// ordered action list. Only enabled rules participate, in descending priority
// order with ties broken by rule id. The first matched rule containing a
// suppress action stops evaluation; the suppress removes queued route actions
// for its channel scope (all channels when unscoped).
//
// An empty result means no rule matched: the caller falls back to the
// notification's own channel list.
func (e *Engine) Evaluate(ruleset []domain.Rule, n *domain.Notification) []ActionResult {
	ordered := make([]domain.Rule, 0, len(ruleset))
	for _, r := range ruleset {
		if r.Enabled {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	var results []ActionResult
	for _, rule := range ordered {
		if !e.ruleMatches(rule, n) {
			continue
		}

		var suppress *domain.Action
		for _, action := range rule.Actions {
			if action.Type == domain.ActionSuppress && suppress == nil {
				a := action
				suppress = &a
			}
			results = append(results, ActionResult{RuleID: rule.ID, RuleName: rule.Name, Action: action})
		}

		// Suppress is terminal: cancel queued routes in its scope and stop.
		if suppress != nil {
			results = applySuppress(results, *suppress)
			e.logger.Debug("suppress action fired, rule evaluation stopped",
				slog.String("rule_id", rule.ID),
				slog.String("notification_id", n.ID),
			)
			break
		}
	}

	return results
}

// ruleMatches applies the rule's condition logic: AND requires every
// condition true, OR at least one.
func (e *Engine) ruleMatches(rule domain.Rule, n *domain.Notification) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	for _, c := range rule.Conditions {
		matched := evalCondition(c, n, e.logger)
		if rule.Logic == domain.LogicOr && matched {
			return true
		}
		if rule.Logic != domain.LogicOr && !matched {
			return false
		}
	}
	return rule.Logic != domain.LogicOr
}

// applySuppress removes route actions covered by the suppress action's channel
// scope. An unscoped suppress removes every route.
func applySuppress(results []ActionResult, suppress domain.Action) []ActionResult {
	scope := suppressScope(suppress)

	kept := results[:0]
	for _, r := range results {
		if r.Action.Type == domain.ActionRoute && routeSuppressed(r.Action, scope) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// suppressScope returns the set of channels a suppress action covers, or nil
// for all channels.
func suppressScope(a domain.Action) map[string]bool {
	raw, ok := a.Config["channels"]
	if !ok {
		if ch, ok := a.Config["channel"].(string); ok && ch != "" {
			return map[string]bool{ch: true}
		}
		return nil
	}

	scope := make(map[string]bool)
	switch t := raw.(type) {
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				scope[s] = true
			}
		}
	case []string:
		for _, s := range t {
			scope[s] = true
		}
	}
	if len(scope) == 0 {
		return nil
	}
	return scope
}

func routeSuppressed(route domain.Action, scope map[string]bool) bool {
	if scope == nil {
		return true
	}
	ch, _ := route.Config["channel"].(string)
	return scope[ch]
}
