package model

import "fmt"

// ValidationError reports a workflow or task document that breaks a schema
// invariant at ingress.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
