package provider

// Error wraps backend errors with additional context.
type Error struct {
	operation  string
	statusCode int
	message    string
	cause      error
}

// NewError creates a backend Error.
func NewError(operation string, statusCode int, message string, cause error) *Error {
	return &Error{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		cause:      cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Operation returns the operation that failed.
func (e *Error) Operation() string { return e.operation }

// StatusCode returns the HTTP status code if available.
func (e *Error) StatusCode() int { return e.statusCode }

// Message returns the error message.
func (e *Error) Message() string { return e.message }

// IsRateLimited returns true if the error is due to rate limiting.
func (e *Error) IsRateLimited() bool {
	return e.statusCode == 429
}
