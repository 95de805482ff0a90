package invoice

import "fmt"

// ParseError indicates that a totals marker was found but its payload could not be read
type ParseError struct {
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return "invoice parse error: " + e.Reason
}

// Is implements the errors.Is interface for ParseError
func (e *ParseError) Is(target error) bool {
	_, ok := target.(*ParseError)
	return ok
}

// ValidationError indicates that a matched template carried a malformed or
// out-of-range value
type ValidationError struct {
	Text   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invoice validation error: %s %s", e.Field, e.Reason)
}

// Is implements the errors.Is interface for ValidationError
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}
