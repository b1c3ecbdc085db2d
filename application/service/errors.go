// Package service orchestrates theme evolution over survey-response batches.
package service

import "fmt"

// ValidationError indicates extractor output carried no usable content
// (e.g. zero valid themes). It aborts the current batch.
type ValidationError struct {
	Op     string
	Reason string
}

// NewValidationError creates a ValidationError.
func NewValidationError(op, reason string) *ValidationError {
	return &ValidationError{Op: op, Reason: reason}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// ParseError indicates malformed generation backend output. It aborts the
// current batch.
type ParseError struct {
	Op     string
	Reason string
	cause  error
}

// NewParseError creates a ParseError.
func NewParseError(op, reason string, cause error) *ParseError {
	return &ParseError{Op: op, Reason: reason, cause: cause}
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.cause
}
