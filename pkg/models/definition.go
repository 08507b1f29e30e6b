// Package models defines the core domain models for rule-driven validation workflows.
package models

import "time"

// Multiplicity controls how many live Activities a single ActivityDefinition
// may have inside one WorkflowInstance.
type Multiplicity string

const (
	MultiplicitySingle   Multiplicity = "single"   // At most one live Activity per definition
	MultiplicityMultiple Multiplicity = "multiple" // Several concurrent Activities allowed
)

// DefaultTransitionName is the implicit forward-progress edge between two
// ActivityDefinitions. At most one default-named transition leaves a given
// activity definition.
const DefaultTransitionName = "Default"

// WorkflowDefinition is an immutable process template. Activities and
// transitions reference it; structural edits go through the definition graph.
type WorkflowDefinition struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"              validate:"required,min=3"`
	FirstActivityID string    `json:"first_activity_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ActivityDefinition is the template for one workflow step, positioned in the
// default chain of its WorkflowDefinition. Position is nullable: an activity
// that has been detached from the chain carries no level.
type ActivityDefinition struct {
	ID                   string       `json:"id"`
	WorkflowDefinitionID string       `json:"workflow_definition_id" validate:"required"`
	Name                 string       `json:"name"                   validate:"required"`
	Position             *int         `json:"position,omitempty"`
	Multiplicity         Multiplicity `json:"multiplicity"           validate:"required,oneof=single multiple"`
}

// TransitionDefinition is a named edge between two ActivityDefinitions.
type TransitionDefinition struct {
	ID                   string `json:"id"`
	WorkflowDefinitionID string `json:"workflow_definition_id" validate:"required"`
	FromID               string `json:"from_id"                validate:"required"`
	ToID                 string `json:"to_id"                  validate:"required"`
	Name                 string `json:"name"                   validate:"required"`
}

// IsDefault reports whether the transition is the implicit forward edge.
func (t *TransitionDefinition) IsDefault() bool {
	return t.Name == DefaultTransitionName
}

// ActivityDefinitionOptions configures NewActivityDefinition.
// Zero values fall back to documented defaults: multiplicity single.
type ActivityDefinitionOptions struct {
	Multiplicity Multiplicity
	Position     *int
}

// NewActivityDefinition creates an activity definition template with defaults
// applied. The ID is assigned by the persistence layer on save when empty.
func NewActivityDefinition(workflowDefinitionID, name string, opts ActivityDefinitionOptions) *ActivityDefinition {
	multiplicity := opts.Multiplicity
	if multiplicity == "" {
		multiplicity = MultiplicitySingle
	}

	return &ActivityDefinition{
		WorkflowDefinitionID: workflowDefinitionID,
		Name:                 name,
		Position:             opts.Position,
		Multiplicity:         multiplicity,
	}
}

// TransitionDefinitionOptions configures NewTransitionDefinition.
// An empty name falls back to DefaultTransitionName.
type TransitionDefinitionOptions struct {
	Name string
}

// NewTransitionDefinition creates a transition between two activity definitions.
func NewTransitionDefinition(workflowDefinitionID, fromID, toID string, opts TransitionDefinitionOptions) *TransitionDefinition {
	name := opts.Name
	if name == "" {
		name = DefaultTransitionName
	}

	return &TransitionDefinition{
		WorkflowDefinitionID: workflowDefinitionID,
		FromID:               fromID,
		ToID:                 toID,
		Name:                 name,
	}
}
