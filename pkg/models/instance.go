package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
// Ended is terminal; no transition leaves it.
type InstanceStatus string

const (
	InstanceStatusCreated InstanceStatus = "created"
	InstanceStatusStarted InstanceStatus = "started"
	InstanceStatusPaused  InstanceStatus = "paused"
	InstanceStatusEnded   InstanceStatus = "ended"
)

// WorkflowInstance is a running process bound to exactly one business item.
// CurrentActivityID references the Activity row the instance is waiting on;
// it is empty until the first activity has been materialized.
type WorkflowInstance struct {
	ID                   string         `json:"id"`
	WorkflowDefinitionID string         `json:"workflow_definition_id" validate:"required"`
	ItemID               string         `json:"item_id"                validate:"required"`
	Status               InstanceStatus `json:"status"                 validate:"required,oneof=created started paused ended"`
	CurrentActivityID    string         `json:"current_activity_id,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Activity is one occurrence of a step within an instance. IsAuto marks
// activities the engine validated without a human decision; IsValid marks the
// step as satisfied, whether automatically or by decision.
type Activity struct {
	ID                   string    `json:"id"`
	ActivityDefinitionID string    `json:"activity_definition_id" validate:"required"`
	WorkflowInstanceID   string    `json:"workflow_instance_id"   validate:"required"`
	IsAuto               bool      `json:"is_auto"`
	IsValid              bool      `json:"is_valid"`
	CreatedAt            time.Time `json:"created_at"`
}

// Decision is a recorded human choice on an Activity. Decisions are immutable
// once created.
type Decision struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activity_id" validate:"required"`
	Username   string    `json:"username"    validate:"required"`
	Choice     string    `json:"choice"      validate:"required"`
	Comments   string    `json:"comments,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
