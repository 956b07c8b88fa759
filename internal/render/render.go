// Package render substitutes variables into notification templates.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/heraldhq/herald/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// MissingVariableError reports template placeholders with no matching
// variable. Rendering is all-or-nothing so callers never deliver a
// message with raw placeholders in it.
type MissingVariableError struct {
	Variables []string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("render: missing template variables: %s", strings.Join(e.Variables, ", "))
}

// Rendered is the output of applying variables to a template.
type Rendered struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Render fills every {{name}} placeholder in the template's title and
// message from vars. Values are formatted with fmt.Sprint, so numbers
// and booleans substitute naturally.
func Render(tmpl *domain.NotificationTemplate, vars map[string]any) (Rendered, error) {
	var missing []string

	title := substitute(tmpl.TitleTemplate, vars, &missing)
	message := substitute(tmpl.MessageTemplate, vars, &missing)

	if len(missing) > 0 {
		return Rendered{}, &MissingVariableError{Variables: dedupe(missing)}
	}
	return Rendered{Title: title, Message: message}, nil
}

func substitute(text string, vars map[string]any, missing *[]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := vars[name]
		if !ok {
			*missing = append(*missing, name)
			return match
		}
		return fmt.Sprint(v)
	})
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
