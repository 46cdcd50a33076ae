package service

import (
	"fmt"
	"unicode/utf8"
)

// Length bounds checked after whitespace is trimmed.
const (
	minRoomNameLen = 3
	maxRoomNameLen = 100
	minUsernameLen = 3
	maxUsernameLen = 50
)

// FieldError reports a request field that breaks a rule once normalised.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Message
}

func checkLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	switch {
	case n < min:
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at least %d characters", min)}
	case n > max:
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}
