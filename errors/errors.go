package errors

import "fmt"

var (
	ErrChannelNotFound     = fmt.Errorf("channel not found")
	ErrSenderNotInChannel  = fmt.Errorf("sender is not a participant of the channel")
	ErrMessageNotFound     = fmt.Errorf("message not found")
	ErrMessageNotInChannel = fmt.Errorf("message belongs to another channel")
	ErrAlreadyExists       = fmt.Errorf("already exists")
	ErrInvalidParticipant  = fmt.Errorf("participant is not part of the roster")
)

// ValidationError reports a rejected input with the offending field,
// so callers can render "content too long" apart from "bad type".
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) ValidationError {
	return ValidationError{Field: field, Reason: reason}
}
