package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrOutOfWindow is returned when a submission arrives outside [startTime, endTime].
	ErrOutOfWindow = errors.New("quiz is not currently active")
	// ErrAlreadySubmitted is returned when the student already has a finalized attempt.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrUnauthenticated is returned when no principal is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the principal lacks the required capability.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports a malformed request payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError returns a *ValidationError with the given message.
func NewValidationError(msg string) error {
	return &ValidationError{Message: msg}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
