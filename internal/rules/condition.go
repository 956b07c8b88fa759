package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/heraldhq/herald/internal/domain"
)

// evalCondition evaluates a single condition against a notification. Every
// failure mode (missing field, non-coercible operand, bad pattern, unknown
// operator) degrades to false so rule evaluation can never crash the
// delivery pipeline. logger may be nil.
func evalCondition(c domain.Condition, n *domain.Notification, logger *slog.Logger) bool {
	fieldVal, ok := n.Field(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case domain.OpEq:
		return stringify(fieldVal) == stringify(c.Value)
	case domain.OpNe:
		return stringify(fieldVal) != stringify(c.Value)
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		return evalOrdered(c.Operator, fieldVal, c.Value)
	case domain.OpIn:
		return inSet(fieldVal, c.Value)
	case domain.OpNin:
		return !inSet(fieldVal, c.Value)
	case domain.OpContains:
		return contains(fieldVal, c.Value)
	case domain.OpMatches:
		return matches(fieldVal, c.Value, logger)
	default:
		if logger != nil {
			logger.Warn("unknown condition operator, condition evaluates false",
				slog.String("operator", string(c.Operator)),
				slog.String("field", c.Field),
			)
		}
		return false
	}
}

// evalOrdered compares two operands under a total order. Both must coerce to
// the same orderable kind, numeric or RFC 3339 timestamp, otherwise the
// condition is false.
func evalOrdered(op domain.Operator, field, value any) bool {
	if fa, fb, ok := asFloats(field, value); ok {
		return cmpOrdered(op, compareFloats(fa, fb))
	}
	if ta, tb, ok := asTimes(field, value); ok {
		return cmpOrdered(op, ta.Compare(tb))
	}
	return false
}

func cmpOrdered(op domain.Operator, cmp int) bool {
	switch op {
	case domain.OpGt:
		return cmp > 0
	case domain.OpGte:
		return cmp >= 0
	case domain.OpLt:
		return cmp < 0
	case domain.OpLte:
		return cmp <= 0
	}
	return false
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func asFloats(a, b any) (float64, float64, bool) {
	fa, ok := toFloat(a)
	if !ok {
		return 0, 0, false
	}
	fb, ok := toFloat(b)
	if !ok {
		return 0, 0, false
	}
	return fa, fb, true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func asTimes(a, b any) (time.Time, time.Time, bool) {
	ta, ok := toTime(a)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	tb, ok := toTime(b)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return ta, tb, true
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// inSet treats the condition value as a set (array or comma-delimited string)
// and tests membership of the field value.
func inSet(field, value any) bool {
	fs := stringify(field)
	for _, member := range setMembers(value) {
		if fs == member {
			return true
		}
	}
	return false
}

func setMembers(value any) []string {
	switch t := value.(type) {
	case []any:
		members := make([]string, 0, len(t))
		for _, v := range t {
			members = append(members, stringify(v))
		}
		return members
	case []string:
		return t
	case string:
		parts := strings.Split(t, ",")
		members := make([]string, 0, len(parts))
		for _, p := range parts {
			members = append(members, strings.TrimSpace(p))
		}
		return members
	default:
		return []string{stringify(value)}
	}
}

// contains does a substring test for string fields and a membership test for
// array fields.
func contains(field, value any) bool {
	vs := stringify(value)
	switch t := field.(type) {
	case []any:
		for _, item := range t {
			if stringify(item) == vs {
				return true
			}
		}
		return false
	case []string:
		for _, item := range t {
			if item == vs {
				return true
			}
		}
		return false
	default:
		return strings.Contains(stringify(field), vs)
	}
}

// matches interprets the condition value as a regular expression and tests it
// against the stringified field. A pattern that fails to compile evaluates
// false.
func matches(field, value any, logger *slog.Logger) bool {
	pattern := stringify(value)
	re, err := regexp.Compile(pattern)
	if err != nil {
		if logger != nil {
			logger.Warn("condition pattern failed to compile, condition evaluates false",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()),
			)
		}
		return false
	}
	return re.MatchString(stringify(field))
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
