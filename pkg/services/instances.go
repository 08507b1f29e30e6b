package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/veriflow-io/veriflow/pkg/eventbus"
	"github.com/veriflow-io/veriflow/pkg/events"
	"github.com/veriflow-io/veriflow/pkg/instance"
	"github.com/veriflow-io/veriflow/pkg/middleware"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// Instances drives the workflow instance lifecycle: creation, status
// changes, decisions and chain advancement.
type Instances struct {
	persistence persistence.Persistence
	manager     *instance.Manager
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	logger      *slog.Logger

	saveDecision middleware.DecisionFunc
}

// NewInstances creates a new instances service. Decision decorators wrap the
// manager's decision path in order.
func NewInstances(
	store persistence.Persistence,
	manager *instance.Manager,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	decisionDecorators ...middleware.Decision,
) *Instances {
	service := &Instances{
		persistence: store,
		manager:     manager,
		publisher:   publisher,
		validate:    validator.New(),
		logger:      logger,
	}

	service.saveDecision = middleware.ChainDecision(manager.SaveDecision, decisionDecorators...)

	return service
}

// CreateInstanceRequest binds a new instance to a definition and an item.
type CreateInstanceRequest struct {
	WorkflowDefinitionID string `json:"workflow_definition_id" validate:"required"`
	ItemID               string `json:"item_id"                validate:"required"`
}

func (s *Instances) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*models.WorkflowInstance, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("CreateInstance", "INVALID_INSTANCE", err.Error(), ErrItemIDRequired)
	}

	inst, err := s.manager.CreateInstance(ctx, req.WorkflowDefinitionID, req.ItemID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, inst.ID, events.InstanceCreated{
		BaseEvent:            s.baseEvent(events.InstanceCreatedEvent),
		InstanceID:           inst.ID,
		WorkflowDefinitionID: inst.WorkflowDefinitionID,
		ItemID:               inst.ItemID,
	})

	return inst, nil
}

func (s *Instances) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return s.persistence.Instances().InstanceByID(ctx, id)
}

func (s *Instances) InstancesByDefinition(ctx context.Context, workflowDefinitionID string) ([]*models.WorkflowInstance, error) {
	return s.persistence.Instances().InstancesByDefinition(ctx, workflowDefinitionID)
}

// StartInstance starts a created instance and auto-validates the leading
// chain steps until the first human decision point.
func (s *Instances) StartInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	inst, err := s.persistence.Instances().InstanceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := inst.Status

	if err := s.manager.StartInstance(ctx, inst); err != nil {
		return nil, err
	}

	definition, err := s.persistence.Definitions().WorkflowDefinitionByID(ctx, inst.WorkflowDefinitionID)
	if err != nil {
		return nil, err
	}

	if definition.FirstActivityID != "" {
		_, err = s.manager.AutoValidateNextActivities(ctx, inst, definition.FirstActivityID)
		if err != nil {
			return nil, err
		}
	}

	s.publishStatusChange(ctx, inst, from)

	return inst, nil
}

func (s *Instances) PauseInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return s.changeStatus(ctx, id, s.manager.PauseInstance)
}

func (s *Instances) ResumeInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return s.changeStatus(ctx, id, s.manager.ResumeInstance)
}

func (s *Instances) EndInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return s.changeStatus(ctx, id, s.manager.EndInstance)
}

func (s *Instances) changeStatus(
	ctx context.Context,
	id string,
	change func(context.Context, *models.WorkflowInstance) error,
) (*models.WorkflowInstance, error) {
	inst, err := s.persistence.Instances().InstanceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := inst.Status

	if err := change(ctx, inst); err != nil {
		return nil, err
	}

	s.publishStatusChange(ctx, inst, from)

	return inst, nil
}

// SaveDecisionRequest records a human choice on the current activity.
type SaveDecisionRequest struct {
	Username       string `json:"username" validate:"required"`
	Choice         string `json:"choice"   validate:"required"`
	Comments       string `json:"comments,omitempty"`
	TransitionName string `json:"transition_name,omitempty"`

	// Advance moves the instance to the next activity after the decision.
	Advance bool `json:"advance"`
}

// SaveDecision records the decision on the instance's current activity and,
// when requested, advances through the named or default transition. The
// returned activity is the new current one, nil when the chain ended.
func (s *Instances) SaveDecision(ctx context.Context, id string, req SaveDecisionRequest) (*models.Activity, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("SaveDecision", "INVALID_DECISION", err.Error(), ErrUsernameRequired)
	}

	inst, err := s.persistence.Instances().InstanceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	decision := &models.Decision{
		Username: req.Username,
		Choice:   req.Choice,
		Comments: req.Comments,
	}

	var next *models.Activity

	if req.Advance {
		next, err = s.manager.SaveDecisionAndGoToNextActivity(ctx, inst, req.TransitionName, decision)
	} else {
		err = s.saveDecision(ctx, inst, decision)
	}

	if err != nil {
		return nil, err
	}

	s.publish(ctx, inst.ID, events.DecisionSaved{
		BaseEvent:  s.baseEvent(events.DecisionSavedEvent),
		InstanceID: inst.ID,
		ActivityID: decision.ActivityID,
		Username:   decision.Username,
		Choice:     decision.Choice,
	})

	if next != nil {
		s.publish(ctx, inst.ID, events.InstanceAdvanced{
			BaseEvent:            s.baseEvent(events.InstanceAdvancedEvent),
			InstanceID:           inst.ID,
			ActivityID:           next.ID,
			ActivityDefinitionID: next.ActivityDefinitionID,
			TransitionName:       req.TransitionName,
		})
	}

	return next, nil
}

// GetActivities returns the instance's default chain of activity
// definitions.
func (s *Instances) GetActivities(ctx context.Context, id string) ([]*models.ActivityDefinition, error) {
	inst, err := s.persistence.Instances().InstanceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.manager.GetActivities(ctx, inst)
}

// DecisionsByInstance returns the decision history of an instance.
func (s *Instances) DecisionsByInstance(ctx context.Context, id string) ([]*models.Decision, error) {
	return s.persistence.Instances().DecisionsByInstance(ctx, id)
}

func (s *Instances) publishStatusChange(ctx context.Context, inst *models.WorkflowInstance, from models.InstanceStatus) {
	s.publish(ctx, inst.ID, events.InstanceStatusChanged{
		BaseEvent:  s.baseEvent(events.InstanceStatusChangedEvent),
		InstanceID: inst.ID,
		From:       from,
		To:         inst.Status,
	})
}

func (s *Instances) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Instances) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
