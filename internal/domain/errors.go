package domain

import "fmt"

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports an operation that collides with current state.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}
