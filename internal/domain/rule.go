package domain

import (
	"fmt"
	"time"
)

// Operator is the comparison applied by a rule condition.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpNin      Operator = "nin"
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
)

// IsValidOperator checks whether the given string is a valid condition operator.
func IsValidOperator(op string) bool {
	switch Operator(op) {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpContains, OpMatches:
		return true
	}
	return false
}

// ConditionLogic combines a rule's conditions.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)

// ActionType is what a matched rule does to a notification.
type ActionType string

const (
	ActionRoute     ActionType = "route"
	ActionEscalate  ActionType = "escalate"
	ActionSuppress  ActionType = "suppress"
	ActionTransform ActionType = "transform"
	ActionDelay     ActionType = "delay"
)

// IsValidActionType checks whether the given string is a valid action type.
func IsValidActionType(t string) bool {
	switch ActionType(t) {
	case ActionRoute, ActionEscalate, ActionSuppress, ActionTransform, ActionDelay:
		return true
	}
	return false
}

// Condition is a single typed test against a notification field.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Action is one effect of a matched rule. Config keys are action-specific:
// route uses "channel", escalate uses "priority", transform uses "set",
// delay uses "duration_ms", suppress optionally uses "channels".
type Action struct {
	Type   ActionType     `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Rule is a named, prioritized condition-to-action mapping. Higher priority
// evaluates first; ties break by rule id for determinism.
type Rule struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Name       string         `json:"name"`
	Enabled    bool           `json:"enabled"`
	Priority   int            `json:"priority"`
	Logic      ConditionLogic `json:"condition_logic"`
	Conditions []Condition    `json:"conditions"`
	Actions    []Action       `json:"actions"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Validate rejects malformed rules at write time; evaluation-time tolerance
// (unknown operators degrading to false) exists only for data that predates a
// schema change, not as a write-path loophole.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.Logic != LogicAnd && r.Logic != LogicOr {
		return fmt.Errorf("condition_logic must be AND or OR")
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule requires at least one condition")
	}
	for i, c := range r.Conditions {
		if c.Field == "" {
			return fmt.Errorf("condition %d: field is required", i)
		}
		if !IsValidOperator(string(c.Operator)) {
			return fmt.Errorf("condition %d: invalid operator %q", i, c.Operator)
		}
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule requires at least one action")
	}
	for i, a := range r.Actions {
		if !IsValidActionType(string(a.Type)) {
			return fmt.Errorf("action %d: invalid action type %q", i, a.Type)
		}
		if a.Type == ActionRoute {
			ch, _ := a.Config["channel"].(string)
			if !IsValidChannel(ch) {
				return fmt.Errorf("action %d: route requires a valid config.channel", i)
			}
		}
	}
	return nil
}
