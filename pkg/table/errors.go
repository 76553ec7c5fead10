package table

import (
	"fmt"
	"strings"
)

// TypeMismatchError reports incompatible join-key type families.
type TypeMismatchError struct {
	LeftColumn  string
	RightColumn string
	LeftFamily  string
	RightFamily string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("join key type mismatch: %s is %s but %s is %s",
		e.LeftColumn, e.LeftFamily, e.RightColumn, e.RightFamily)
}

// ValidationError reports a join validation failure under a strict mode:
// duplicate or null keys on the right side. Samples holds up to 5 offending
// key combinations in first-encounter order.
type ValidationError struct {
	Mode    string
	Reason  string
	Samples []string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("join validation failed (%s): %s", e.Mode, e.Reason)
	if len(e.Samples) > 0 {
		msg += ", sample keys: " + strings.Join(e.Samples, ", ")
	}
	return msg
}
