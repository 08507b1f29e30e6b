// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a workflow definition was not found.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrActivityDefinitionNotFound indicates an activity definition was not found.
	ErrActivityDefinitionNotFound = errors.New("activity definition not found")

	// ErrTransitionNotFound indicates a transition definition was not found.
	ErrTransitionNotFound = errors.New("transition definition not found")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrActivityNotFound indicates an activity was not found.
	ErrActivityNotFound = errors.New("activity not found")

	// ErrRuleNotFound indicates a rule definition was not found.
	ErrRuleNotFound = errors.New("rule definition not found")

	// ErrSelectorNotFound indicates a selector definition was not found.
	ErrSelectorNotFound = errors.New("selector definition not found")

	// ErrActivityInUse indicates an activity definition still has dependent
	// activities in live instances and cannot be removed.
	ErrActivityInUse = errors.New("activity definition has dependent activities")
)

// StoreError wraps store-related errors with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g., "SaveRule", "InstanceByID")
	Entity string // Entity kind (e.g., "rule", "instance")
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for store errors.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsDefinitionNotFound checks if an error indicates a missing workflow definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsInstanceNotFound checks if an error indicates a missing workflow instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsActivityNotFound checks if an error indicates a missing activity.
func IsActivityNotFound(err error) bool {
	return errors.Is(err, ErrActivityNotFound)
}

// IsRuleNotFound checks if an error indicates a missing rule definition.
func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

// IsSelectorNotFound checks if an error indicates a missing selector definition.
func IsSelectorNotFound(err error) bool {
	return errors.Is(err, ErrSelectorNotFound)
}

// IsNotFound checks if an error indicates any missing entity.
func IsNotFound(err error) bool {
	return IsDefinitionNotFound(err) ||
		errors.Is(err, ErrActivityDefinitionNotFound) ||
		errors.Is(err, ErrTransitionNotFound) ||
		IsInstanceNotFound(err) ||
		IsActivityNotFound(err) ||
		IsRuleNotFound(err) ||
		IsSelectorNotFound(err)
}
