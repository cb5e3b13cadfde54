// Package shared contains the error kinds and event contracts used by
// every layer of the gradebook. No external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Check them with errors.Is, never by message.
var (
	ErrNotFound = errors.New("entity not found")

	// Validation kinds
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// Infrastructure kinds. All three are retryable.
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError is an error with its layer, operation and kind attached.
// errors.Is matches both Kind and the wrapped Err.
type DomainError struct {
	Domain  string // "gradebook", "projection", "redis", "postgres"
	Op      string // "RecordGrade", "Project", ...
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the cause, or the kind when there is no cause.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is reports whether target is the kind or anywhere in the cause chain.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError creates a sentinel DomainError without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError attaches domain context and a kind to err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Реестр
var (
	ErrStudentNotFound  = NewDomainError("gradebook", "Find", ErrNotFound, "student not found")
	ErrEmptyStudentID   = NewDomainError("gradebook", "Validate", ErrEmptyValue, "student id cannot be empty")
	ErrGradeOutOfRange  = NewDomainError("gradebook", "RecordGrade", ErrValueOutOfRange, "grade is outside the allowed range")
	ErrInvalidGradeSpan = NewDomainError("gradebook", "Configure", ErrInvalidInput, "grade range minimum exceeds maximum")
)

// Проекции
var (
	ErrProjectionFailed = NewDomainError("projection", "Project", ErrExternalService, "failed to project averages")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err was caused by bad input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService reports whether err came from infrastructure outside the registry.
func IsExternalService(err error) bool {
	return IsRetryable(err)
}

// IsRetryable reports whether the failed operation may succeed if repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrExternalService)
}
