package expr

import "fmt"

// ParseError reports a malformed formula. Pos is a zero-based character
// offset into the formula text, or -1 when no position is determinable.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("parse error: %s", e.Message)
	}
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Message)
}
