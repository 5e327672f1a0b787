package catalog

import (
	"fmt"
	"strconv"
)

// stringParam reads a required string parameter.
func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("catalog: missing required parameter %s", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("catalog: parameter %s must be a string", name)
	}
	return s, nil
}

// stringParamOr reads an optional string parameter.
func stringParamOr(params map[string]any, name, fallback string) string {
	if v, ok := params[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intParam reads a required integer parameter. JSON-decoded numbers arrive
// as float64.
func intParam(params map[string]any, name string) (int, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("catalog: missing required parameter %s", name)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("catalog: parameter %s must be an integer: %w", name, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("catalog: parameter %s must be an integer", name)
	}
}
