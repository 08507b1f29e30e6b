package instance

import (
	"errors"
	"fmt"

	"github.com/veriflow-io/veriflow/pkg/models"
)

var (
	// ErrInvalidStatusTransition indicates a lifecycle operation that the
	// status graph does not permit.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrInstanceEnded indicates an operation on an ended instance. Ended is
	// terminal.
	ErrInstanceEnded = errors.New("workflow instance has ended")

	// ErrNoCurrentActivity indicates a decision was attempted before any
	// activity was materialized for the instance.
	ErrNoCurrentActivity = errors.New("instance has no current activity")

	// ErrNotStarted indicates a decision on an instance that is not running.
	ErrNotStarted = errors.New("workflow instance is not started")
)

// StatusTransitionError carries the rejected lifecycle move.
type StatusTransitionError struct {
	InstanceID string
	From       models.InstanceStatus
	To         models.InstanceStatus
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("instance %s: cannot move from %s to %s", e.InstanceID, e.From, e.To)
}

func (e *StatusTransitionError) Is(target error) bool {
	return target == ErrInvalidStatusTransition
}
