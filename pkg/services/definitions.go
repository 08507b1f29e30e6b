package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/veriflow-io/veriflow/pkg/definition"
	"github.com/veriflow-io/veriflow/pkg/eventbus"
	"github.com/veriflow-io/veriflow/pkg/events"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// Definitions manages workflow definition graphs: templates, their activity
// chains and transitions.
type Definitions struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
}

// NewDefinitions creates a new definitions service.
func NewDefinitions(store persistence.Persistence, publisher eventbus.EventPublisher) *Definitions {
	return &Definitions{
		persistence: store,
		publisher:   publisher,
		validate:    validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Definitions) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateDefinitionRequest contains the fields for a new workflow definition.
type CreateDefinitionRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

// CreateDefinition creates an empty workflow definition template.
func (s *Definitions) CreateDefinition(ctx context.Context, req CreateDefinitionRequest) (*models.WorkflowDefinition, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("CreateDefinition", "INVALID_NAME",
			"workflow definition name must have at least 3 characters", ErrDefinitionNameTooShort)
	}

	workflowDefinition := &models.WorkflowDefinition{Name: req.Name}

	err := s.persistence.Definitions().SaveWorkflowDefinition(ctx, workflowDefinition)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow definition: %w", err)
	}

	s.publishChange(ctx, workflowDefinition.ID, "created")

	return workflowDefinition, nil
}

// GetDefinition returns a workflow definition by id.
func (s *Definitions) GetDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.persistence.Definitions().WorkflowDefinitionByID(ctx, id)
}

// ListDefinitions returns every workflow definition.
func (s *Definitions) ListDefinitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return s.persistence.Definitions().ListWorkflowDefinitions(ctx)
}

// DeleteDefinition removes a workflow definition and its graph.
func (s *Definitions) DeleteDefinition(ctx context.Context, id string) error {
	err := s.persistence.Definitions().DeleteWorkflowDefinition(ctx, id)
	if err != nil {
		return err
	}

	s.publishChange(ctx, id, "deleted")

	return nil
}

// GetGraph loads the complete definition graph.
func (s *Definitions) GetGraph(ctx context.Context, workflowDefinitionID string) (*definition.Graph, error) {
	repo := s.persistence.Definitions()

	workflowDefinition, err := repo.WorkflowDefinitionByID(ctx, workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	activities, err := repo.ActivityDefinitionsByWorkflow(ctx, workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	transitions, err := repo.TransitionsByWorkflow(ctx, workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	return definition.Load(workflowDefinition, activities, transitions)
}

// ImportGraph validates a graph document and replaces the stored graph with
// it.
func (s *Definitions) ImportGraph(ctx context.Context, data []byte) (*definition.Graph, error) {
	graph, err := definition.ParseGraphDocument(data)
	if err != nil {
		return nil, NewValidationError("ImportGraph", "INVALID_GRAPH", err.Error(), ErrInvalidRequest)
	}

	err = s.replaceGraph(ctx, graph)
	if err != nil {
		return nil, err
	}

	s.publishChange(ctx, graph.Definition().ID, "graph_imported")

	return graph, nil
}

// AddActivityRequest describes a new activity placed into the default chain.
type AddActivityRequest struct {
	Name         string              `json:"name"     validate:"required"`
	Position     int                 `json:"position" validate:"min=1"`
	Multiplicity models.Multiplicity `json:"multiplicity,omitempty"`
}

// AddActivity inserts an activity into the default chain at a 1-based
// position and rewires the surrounding default transitions.
func (s *Definitions) AddActivity(ctx context.Context, workflowDefinitionID string, req AddActivityRequest) (*models.ActivityDefinition, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("AddActivity", "INVALID_ACTIVITY", err.Error(), ErrActivityNameRequired)
	}

	graph, err := s.GetGraph(ctx, workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	activity := models.NewActivityDefinition(workflowDefinitionID, req.Name, models.ActivityDefinitionOptions{
		Multiplicity: req.Multiplicity,
	})

	err = graph.AddActivity(activity, req.Position)
	if err != nil {
		return nil, err
	}

	err = s.replaceGraph(ctx, graph)
	if err != nil {
		return nil, err
	}

	s.publishChange(ctx, workflowDefinitionID, "activity_added")

	return activity, nil
}

// RemoveActivity detaches an activity from the chain and splices its default
// transitions. Activities with live instances are protected by the store.
func (s *Definitions) RemoveActivity(ctx context.Context, workflowDefinitionID, activityDefinitionID string) error {
	activities, err := s.persistence.Instances().ActivitiesByDefinitionIDs(ctx, []string{activityDefinitionID})
	if err != nil {
		return err
	}

	if len(activities) > 0 {
		return persistence.ErrActivityInUse
	}

	graph, err := s.GetGraph(ctx, workflowDefinitionID)
	if err != nil {
		return err
	}

	err = graph.RemoveActivity(activityDefinitionID)
	if err != nil {
		return err
	}

	err = s.replaceGraph(ctx, graph)
	if err != nil {
		return err
	}

	s.publishChange(ctx, workflowDefinitionID, "activity_removed")

	return nil
}

// MoveActivity moves an activity to another 1-based position in the chain.
func (s *Definitions) MoveActivity(ctx context.Context, workflowDefinitionID, activityDefinitionID string, toPosition int) error {
	graph, err := s.GetGraph(ctx, workflowDefinitionID)
	if err != nil {
		return err
	}

	err = graph.MoveActivity(activityDefinitionID, toPosition)
	if err != nil {
		return err
	}

	err = s.replaceGraph(ctx, graph)
	if err != nil {
		return err
	}

	s.publishChange(ctx, workflowDefinitionID, "activity_moved")

	return nil
}

// AddTransitionRequest describes a named edge between two activities.
type AddTransitionRequest struct {
	FromID string `json:"from_id" validate:"required"`
	ToID   string `json:"to_id"   validate:"required"`
	Name   string `json:"name"`
}

// AddTransition adds a named transition between two activity definitions.
func (s *Definitions) AddTransition(ctx context.Context, workflowDefinitionID string, req AddTransitionRequest) (*models.TransitionDefinition, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("AddTransition", "INVALID_TRANSITION", err.Error(), ErrInvalidRequest)
	}

	graph, err := s.GetGraph(ctx, workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	transition := models.NewTransitionDefinition(workflowDefinitionID, req.FromID, req.ToID,
		models.TransitionDefinitionOptions{Name: req.Name})

	err = graph.AddTransition(transition)
	if err != nil {
		return nil, err
	}

	err = s.replaceGraph(ctx, graph)
	if err != nil {
		return nil, err
	}

	s.publishChange(ctx, workflowDefinitionID, "transition_added")

	return transition, nil
}

func (s *Definitions) replaceGraph(ctx context.Context, graph *definition.Graph) error {
	err := s.persistence.Definitions().ReplaceGraph(ctx, graph.Definition(), graph.Activities(), graph.Transitions())
	if err != nil {
		return fmt.Errorf("failed to replace definition graph: %w", err)
	}

	return nil
}

func (s *Definitions) publishChange(ctx context.Context, workflowDefinitionID, change string) {
	if s.publisher == nil {
		return
	}

	event := events.DefinitionChanged{
		BaseEvent: events.BaseEvent{
			Type:      events.DefinitionChangedEvent,
			Timestamp: time.Now().UTC(),
		},
		WorkflowDefinitionID: workflowDefinitionID,
		Change:               change,
	}

	// Event publishing is best effort; state is already persisted.
	_ = s.publisher.Publish(ctx, workflowDefinitionID, event)
}
