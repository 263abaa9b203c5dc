package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"
	"github.com/thleqel/llm-test-platform/internal/testing/variables"
)

var errPathNotFound = errors.New("path not found in response")

// searchPath evaluates a JMESPath expression against decoded JSON and
// renders the match as text.
func searchPath(expr string, data any) (string, error) {
	value, err := jmespath.Search(expr, data)
	if err != nil {
		return "", fmt.Errorf("evaluating path %q: %w", expr, err)
	}

	if value == nil {
		return "", fmt.Errorf("%w: %s", errPathNotFound, expr)
	}

	return variables.Stringify(value), nil
}

// dottedLookup walks a.b.c through nested mappings.
func dottedLookup(path string, data any) (string, error) {
	current := data

	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%w: %s", errPathNotFound, path)
		}

		current, ok = m[key]
		if !ok {
			return "", fmt.Errorf("%w: %s", errPathNotFound, path)
		}
	}

	return variables.Stringify(current), nil
}
