// Package events defines event types for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/veriflow-io/veriflow/pkg/models"
)

type EventType string

// Topic carries every engine event.
const Topic = "veriflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceCreatedEvent       EventType = "instance.created"
	InstanceStatusChangedEvent EventType = "instance.status.changed"
	InstanceAdvancedEvent      EventType = "instance.advanced"
	DecisionSavedEvent         EventType = "decision.saved"
	RecalculationAppliedEvent  EventType = "recalculation.applied"
	SelectorsRemovedEvent      EventType = "selectors.removed"
	DefinitionChangedEvent     EventType = "definition.changed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type InstanceCreated struct {
	BaseEvent

	InstanceID           string `json:"instance_id"`
	WorkflowDefinitionID string `json:"workflow_definition_id"`
	ItemID               string `json:"item_id"`
}

func (e InstanceCreated) GetType() EventType {
	return InstanceCreatedEvent
}

type InstanceStatusChanged struct {
	BaseEvent

	InstanceID string                `json:"instance_id"`
	From       models.InstanceStatus `json:"from"`
	To         models.InstanceStatus `json:"to"`
}

func (e InstanceStatusChanged) GetType() EventType {
	return InstanceStatusChangedEvent
}

type InstanceAdvanced struct {
	BaseEvent

	InstanceID           string `json:"instance_id"`
	ActivityID           string `json:"activity_id"`
	ActivityDefinitionID string `json:"activity_definition_id"`
	TransitionName       string `json:"transition_name"`
}

func (e InstanceAdvanced) GetType() EventType {
	return InstanceAdvancedEvent
}

type DecisionSaved struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	ActivityID string `json:"activity_id"`
	Username   string `json:"username"`
	Choice     string `json:"choice"`
}

func (e DecisionSaved) GetType() EventType {
	return DecisionSavedEvent
}

type RecalculationApplied struct {
	BaseEvent

	WorkflowDefinitionID string `json:"workflow_definition_id"`
	Instances            int    `json:"instances"`
	PointerMoves         int    `json:"pointer_moves"`
	ActivitiesCreated    int    `json:"activities_created"`
	ActivitiesUpdated    int    `json:"activities_updated"`
}

func (e RecalculationApplied) GetType() EventType {
	return RecalculationAppliedEvent
}

type SelectorsRemoved struct {
	BaseEvent

	GroupTag string `json:"group_tag"`
}

func (e SelectorsRemoved) GetType() EventType {
	return SelectorsRemovedEvent
}

type DefinitionChanged struct {
	BaseEvent

	WorkflowDefinitionID string `json:"workflow_definition_id"`
	Change               string `json:"change"`
}

func (e DefinitionChanged) GetType() EventType {
	return DefinitionChangedEvent
}
