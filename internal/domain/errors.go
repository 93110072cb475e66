package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeVersionConflict  = "VERSION_CONFLICT"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeTransient        = "TRANSIENT_EXTERNAL"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrInvalidNoteStatus = NewDomainError(ErrCodeValidation, "invalid note status")
	ErrInvalidChangeKind = NewDomainError(ErrCodeValidation, "invalid revision change kind")
	ErrEmptyContent      = NewDomainError(ErrCodeValidation, "note content is empty")
)

// Not found errors
var (
	ErrNoteNotFound     = NewDomainError(ErrCodeNotFound, "note not found")
	ErrRevisionNotFound = NewDomainError(ErrCodeNotFound, "revision not found")
)

// Concurrency errors
var (
	// ErrVersionConflict signals a write against a stale note version.
	// Callers must re-read the note and retry, never overwrite blindly.
	ErrVersionConflict = NewDomainError(ErrCodeVersionConflict, "note was modified concurrently")
)

// Operation errors
var (
	ErrNoteDeleted     = NewDomainError(ErrCodeInvalidOperation, "note has been deleted")
	ErrMergeSelfTarget = NewDomainError(ErrCodeInvalidOperation, "cannot merge a note into itself")
)

// Transient external failures
var (
	ErrIndexUnavailable = NewDomainError(ErrCodeTransient, "similarity index unavailable")
	ErrQueueFull        = NewDomainError(ErrCodeTransient, "ingestion queue is full")
)
