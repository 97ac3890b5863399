package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Custom errors
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Validation error: %v", e.Fields)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// MissingOriginError means the session has no obsT0 to reconcile against.
type MissingOriginError struct{ SessionID string }

func (e *MissingOriginError) Error() string {
	return fmt.Sprintf("obsT0 missing for session %s", e.SessionID)
}

type NoEventsError struct{ SessionID string }

func (e *NoEventsError) Error() string {
	return fmt.Sprintf("no room events for session %s", e.SessionID)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
