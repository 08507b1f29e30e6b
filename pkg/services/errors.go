// Package services provides the application service layer composing
// persistence, engines and event publishing.
package services

import (
	"errors"
	"fmt"

	"github.com/veriflow-io/veriflow/pkg/definition"
	"github.com/veriflow-io/veriflow/pkg/instance"
	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest         = errors.New("invalid request")
	ErrDefinitionNameTooShort = errors.New("workflow definition name must have at least 3 characters")
	ErrActivityNameRequired   = errors.New("activity name is required")
	ErrRuleLabelRequired      = errors.New("rule label is required")
	ErrItemIDRequired         = errors.New("item id is required")
	ErrAccountGroupRequired   = errors.New("account group id is required")
	ErrOperatorRequired       = errors.New("operator is required")
	ErrUsernameRequired       = errors.New("username is required")
	ErrChoiceRequired         = errors.New("choice is required")
	ErrGroupTagRequired       = errors.New("group tag is required")

	// Business Logic Conflicts (409 Conflict).
	ErrInstanceNotRunning = errors.New("instance is not running")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrDefinitionNameTooShort) ||
		errors.Is(err, ErrActivityNameRequired) ||
		errors.Is(err, ErrRuleLabelRequired) ||
		errors.Is(err, ErrItemIDRequired) ||
		errors.Is(err, ErrAccountGroupRequired) ||
		errors.Is(err, ErrOperatorRequired) ||
		errors.Is(err, ErrUsernameRequired) ||
		errors.Is(err, ErrChoiceRequired) ||
		errors.Is(err, ErrGroupTagRequired) ||
		errors.Is(err, definition.ErrPositionOutOfRange) ||
		errors.Is(err, definition.ErrDuplicateDefaultTransition) ||
		errors.Is(err, definition.ErrTransitionCycle)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInstanceNotRunning) ||
		errors.Is(err, instance.ErrInvalidStatusTransition) ||
		errors.Is(err, instance.ErrInstanceEnded) ||
		errors.Is(err, instance.ErrNotStarted) ||
		errors.Is(err, instance.ErrNoCurrentActivity) ||
		errors.Is(err, persistence.ErrActivityInUse)
}

// IsNotFoundError checks if an error maps to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
