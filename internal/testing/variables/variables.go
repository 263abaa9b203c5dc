// Package variables fills {{name}} placeholders in adapter configuration
// from a merged variable scope.
package variables

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Scope maps placeholder names to values. Values are rendered with Stringify.
type Scope map[string]any

// Reserved scope keys derived from the test case.
const (
	KeyInput      = "input"
	KeyTestCaseID = "test_case_id"
)

// BuildScope merges, in increasing precedence, the test case's input and id,
// its own context mapping, and the runtime context of the whole run.
func BuildScope(testCaseID, input string, caseContext, runtime map[string]any) Scope {
	scope := make(Scope, len(caseContext)+len(runtime)+2)
	scope[KeyInput] = input
	scope[KeyTestCaseID] = testCaseID

	for k, v := range caseContext {
		scope[k] = v
	}

	for k, v := range runtime {
		scope[k] = v
	}

	return scope
}

// Substitute returns a deep copy of value with every {{name}} occurrence in
// string leaves replaced. Unknown placeholders stay as literal text and
// non-string leaves are copied unchanged.
func Substitute(value any, scope Scope) any {
	switch v := value.(type) {
	case string:
		return SubstituteString(v, scope)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Substitute(item, scope)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = SubstituteString(item, scope)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Substitute(item, scope)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = SubstituteString(item, scope)
		}
		return out
	default:
		return value
	}
}

// SubstituteString replaces placeholders in a single string.
func SubstituteString(s string, scope Scope) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}

		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}

		// The placeholder opens at the last "{{" before its closing "}}".
		end += start + 2
		start = strings.LastIndex(rest[:end], "{{")

		name := rest[start+2 : end]
		b.WriteString(rest[:start])

		if val, ok := scope[name]; ok {
			b.WriteString(Stringify(val))
		} else {
			b.WriteString(rest[start : end+2])
		}

		rest = rest[end+2:]
	}

	return b.String()
}

// Stringify renders a value as placeholder text. Mappings and sequences are
// rendered as JSON so they can be embedded in request bodies.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any, map[string]string, []string:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
