// Package apperror defines the error taxonomy shared by repositories,
// transactional operations and the bulk transfer pipeline.
package apperror

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a referenced entity id does not exist.
type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Entity, e.ID)
}

// ConflictError reports an operation that would violate an invariant,
// such as deleting a card that is lent out.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ExternalServiceError wraps a failure of the catalog lookup provider.
// Callers treat it as non-fatal and continue without enrichment.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// ImportRowError is a recoverable failure of a single imported row or
// archive member. It is accumulated in import results, never returned.
type ImportRowError struct {
	File    string `json:"filename,omitempty"`
	Row     int    `json:"row,omitempty"` // 1-based data row, 0 for whole-file errors
	Message string `json:"error"`
}

func (e *ImportRowError) Error() string {
	switch {
	case e.File != "" && e.Row > 0:
		return fmt.Sprintf("%s row %d: %s", e.File, e.Row, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	case e.Row > 0:
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	default:
		return e.Message
	}
}

func NotFound(entity string, id uint) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func Conflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func External(service string, err error) error {
	if err == nil {
		return nil
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalServiceError{Service: service, Err: err}
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}
