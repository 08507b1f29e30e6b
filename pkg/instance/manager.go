// Package instance implements the per-item workflow lifecycle: status
// mutations, decision recording, transition walking and auto-validation.
// Interactive mutation is serialized per instance by the store; the manager
// itself adds no concurrency control.
package instance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/veriflow-io/veriflow/pkg/definition"
	"github.com/veriflow-io/veriflow/pkg/items"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/rules"
	"github.com/veriflow-io/veriflow/pkg/selectors"
)

// Manager drives single workflow instances. Bulk reconciliation lives in the
// recalc package and reuses the same rule/selector semantics over pre-loaded
// maps.
type Manager struct {
	store     persistence.Persistence
	rules     *rules.Engine
	selectors *selectors.Engine
	resolver  selectors.GroupResolver
	itemsRes  items.Resolver
	constants map[string]any
	logger    *slog.Logger
}

// NewManager creates an instance manager. Constants are the rule constants
// applied to every evaluation context built by this manager.
func NewManager(
	store persistence.Persistence,
	ruleEngine *rules.Engine,
	selectorEngine *selectors.Engine,
	groupResolver selectors.GroupResolver,
	itemResolver items.Resolver,
	constants map[string]any,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		store:     store,
		rules:     ruleEngine,
		selectors: selectorEngine,
		resolver:  groupResolver,
		itemsRes:  itemResolver,
		constants: constants,
		logger:    logger,
	}
}

// CreateInstance binds a new instance to one business item. The instance
// starts in status Created with no materialized activity.
func (m *Manager) CreateInstance(ctx context.Context, workflowDefinitionID, itemID string) (*models.WorkflowInstance, error) {
	if _, err := m.store.Definitions().WorkflowDefinitionByID(ctx, workflowDefinitionID); err != nil {
		return nil, fmt.Errorf("failed to load workflow definition %s: %w", workflowDefinitionID, err)
	}

	now := time.Now().UTC()
	inst := &models.WorkflowInstance{
		ID:                   uuid.New().String(),
		WorkflowDefinitionID: workflowDefinitionID,
		ItemID:               itemID,
		Status:               models.InstanceStatusCreated,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := m.store.Instances().SaveInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}

	return inst, nil
}

// StartInstance moves a created instance to Started.
func (m *Manager) StartInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	return m.setStatus(ctx, inst, models.InstanceStatusStarted, models.InstanceStatusCreated)
}

// PauseInstance moves a started instance to Paused.
func (m *Manager) PauseInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	return m.setStatus(ctx, inst, models.InstanceStatusPaused, models.InstanceStatusStarted)
}

// ResumeInstance moves a paused instance back to Started.
func (m *Manager) ResumeInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	return m.setStatus(ctx, inst, models.InstanceStatusStarted, models.InstanceStatusPaused)
}

// EndInstance moves a started or paused instance to Ended, the terminal state.
func (m *Manager) EndInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	return m.setStatus(ctx, inst, models.InstanceStatusEnded,
		models.InstanceStatusStarted, models.InstanceStatusPaused)
}

func (m *Manager) setStatus(
	ctx context.Context,
	inst *models.WorkflowInstance,
	to models.InstanceStatus,
	allowedFrom ...models.InstanceStatus,
) error {
	if inst.Status == models.InstanceStatusEnded {
		return fmt.Errorf("instance %s: %w", inst.ID, ErrInstanceEnded)
	}

	allowed := false

	for _, from := range allowedFrom {
		if inst.Status == from {
			allowed = true

			break
		}
	}

	if !allowed {
		return &StatusTransitionError{InstanceID: inst.ID, From: inst.Status, To: to}
	}

	inst.Status = to
	inst.UpdatedAt = time.Now().UTC()

	if err := m.store.Instances().SaveInstance(ctx, inst); err != nil {
		return fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
	}

	m.logger.InfoContext(ctx, "Instance status changed", "instance_id", inst.ID, "status", to)

	return nil
}

// SaveDecision attaches a decision to the instance's current activity without
// advancing. The activity becomes valid, human-validated.
func (m *Manager) SaveDecision(ctx context.Context, inst *models.WorkflowInstance, decision *models.Decision) error {
	if inst.Status != models.InstanceStatusStarted {
		return fmt.Errorf("instance %s: %w", inst.ID, ErrNotStarted)
	}

	if inst.CurrentActivityID == "" {
		return fmt.Errorf("instance %s: %w", inst.ID, ErrNoCurrentActivity)
	}

	activity, err := m.store.Instances().ActivityByID(ctx, inst.CurrentActivityID)
	if err != nil {
		return fmt.Errorf("failed to load current activity %s: %w", inst.CurrentActivityID, err)
	}

	decision.ID = uuid.New().String()
	decision.ActivityID = activity.ID
	decision.CreatedAt = time.Now().UTC()

	if err := m.store.Instances().SaveDecision(ctx, decision); err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}

	activity.IsValid = true
	activity.IsAuto = false

	if err := m.store.Instances().SaveActivity(ctx, activity); err != nil {
		return fmt.Errorf("failed to save activity %s: %w", activity.ID, err)
	}

	return nil
}

// SaveDecisionAndGoToNextActivity saves the decision, resolves the next
// activity definition through the named (or default) transition and
// activates the resulting activity. It returns the new current activity, or
// nil when the chain ends at the current step. Under multiplicity Multiple,
// advancing does not close sibling activities of the same definition.
func (m *Manager) SaveDecisionAndGoToNextActivity(
	ctx context.Context,
	inst *models.WorkflowInstance,
	transitionName string,
	decision *models.Decision,
) (*models.Activity, error) {
	if inst.CurrentActivityID == "" {
		return nil, fmt.Errorf("instance %s: %w", inst.ID, ErrNoCurrentActivity)
	}

	current, err := m.store.Instances().ActivityByID(ctx, inst.CurrentActivityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current activity: %w", err)
	}

	if err := m.SaveDecision(ctx, inst, decision); err != nil {
		return nil, err
	}

	graph, err := m.loadGraph(ctx, inst.WorkflowDefinitionID)
	if err != nil {
		return nil, err
	}

	if !graph.HasNextActivity(current.ActivityDefinitionID) && transitionName == "" {
		return nil, nil
	}

	next, err := graph.FindNextActivity(current.ActivityDefinitionID, transitionName)
	if err != nil {
		return nil, err
	}

	activity, err := m.activateActivity(ctx, inst, next)
	if err != nil {
		return nil, err
	}

	inst.CurrentActivityID = activity.ID
	inst.UpdatedAt = time.Now().UTC()

	if err := m.store.Instances().SaveInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
	}

	return activity, nil
}

// CanAutoValidateActivity reports whether a step needs no human decision: its
// rules are not satisfied for the item, or no eligible account could act.
func (m *Manager) CanAutoValidateActivity(
	ctx context.Context,
	activityDefinitionID string,
	rctx models.RuleContext,
) (bool, error) {
	valid, err := m.rules.IsRuleValidForItem(ctx, m.store.Rules(), activityDefinitionID, rctx)
	if err != nil {
		return false, err
	}

	if !valid {
		return true, nil
	}

	accounts, err := m.selectors.SelectAccountsForItem(ctx, m.store.Selectors(), activityDefinitionID, rctx, m.resolver)
	if err != nil {
		return false, err
	}

	return len(accounts) == 0, nil
}

// AutoValidateNextActivities walks the default chain from the given activity
// definition, marking each traversed activity auto-validated for as long as
// CanAutoValidateActivity holds. It stops at the first step requiring a human
// decision, materializes that step as the new current activity, or runs off
// the end of the chain. The validated activities are returned in order.
func (m *Manager) AutoValidateNextActivities(
	ctx context.Context,
	inst *models.WorkflowInstance,
	fromActivityDefinitionID string,
) ([]*models.Activity, error) {
	graph, err := m.loadGraph(ctx, inst.WorkflowDefinitionID)
	if err != nil {
		return nil, err
	}

	rctx, err := items.NewRuleContext(ctx, m.itemsRes, inst.ItemID, m.constants)
	if err != nil {
		return nil, err
	}

	validated := make([]*models.Activity, 0)
	currentDefID := fromActivityDefinitionID

	for currentDefID != "" {
		auto, err := m.CanAutoValidateActivity(ctx, currentDefID, rctx)
		if err != nil {
			return nil, err
		}

		def, err := m.store.Definitions().ActivityDefinitionByID(ctx, currentDefID)
		if err != nil {
			return nil, fmt.Errorf("failed to load activity definition %s: %w", currentDefID, err)
		}

		if !auto {
			activity, err := m.activateActivity(ctx, inst, def)
			if err != nil {
				return nil, err
			}

			inst.CurrentActivityID = activity.ID
			inst.UpdatedAt = time.Now().UTC()

			if err := m.store.Instances().SaveInstance(ctx, inst); err != nil {
				return nil, fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
			}

			return validated, nil
		}

		activity, err := m.activateActivity(ctx, inst, def)
		if err != nil {
			return nil, err
		}

		activity.IsAuto = true
		activity.IsValid = true

		if err := m.store.Instances().SaveActivity(ctx, activity); err != nil {
			return nil, fmt.Errorf("failed to save activity %s: %w", activity.ID, err)
		}

		validated = append(validated, activity)

		inst.CurrentActivityID = activity.ID
		inst.UpdatedAt = time.Now().UTC()

		if err := m.store.Instances().SaveInstance(ctx, inst); err != nil {
			return nil, fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
		}

		if !graph.HasNextActivity(currentDefID) {
			break
		}

		next, err := graph.FindNextActivity(currentDefID, models.DefaultTransitionName)
		if err != nil {
			return nil, err
		}

		currentDefID = next.ID
	}

	return validated, nil
}

// GetActivities returns the full default-path activity-definition sequence of
// the instance's workflow, independent of instance state. Display helper.
func (m *Manager) GetActivities(ctx context.Context, inst *models.WorkflowInstance) ([]*models.ActivityDefinition, error) {
	graph, err := m.loadGraph(ctx, inst.WorkflowDefinitionID)
	if err != nil {
		return nil, err
	}

	return graph.FindAllDefaultActivityDefinitions()
}

// activateActivity returns the open activity for the definition, creating one
// when none exists. Single multiplicity reuses the open activity; Multiple
// creates a fresh one unless an open one is already waiting, which keeps
// repeated activation from piling up duplicates before a decision closes it.
func (m *Manager) activateActivity(
	ctx context.Context,
	inst *models.WorkflowInstance,
	def *models.ActivityDefinition,
) (*models.Activity, error) {
	existing, err := m.store.Instances().ActivitiesByInstance(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities for instance %s: %w", inst.ID, err)
	}

	for _, activity := range existing {
		if activity.ActivityDefinitionID != def.ID {
			continue
		}

		if def.Multiplicity == models.MultiplicitySingle || !activity.IsValid {
			return activity, nil
		}
	}

	activity := &models.Activity{
		ID:                   uuid.New().String(),
		ActivityDefinitionID: def.ID,
		WorkflowInstanceID:   inst.ID,
		CreatedAt:            time.Now().UTC(),
	}

	if err := m.store.Instances().SaveActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("failed to save activity: %w", err)
	}

	return activity, nil
}

func (m *Manager) loadGraph(ctx context.Context, workflowDefinitionID string) (*definition.Graph, error) {
	def, err := m.store.Definitions().WorkflowDefinitionByID(ctx, workflowDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow definition %s: %w", workflowDefinitionID, err)
	}

	activities, err := m.store.Definitions().ActivityDefinitionsByWorkflow(ctx, workflowDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity definitions: %w", err)
	}

	transitions, err := m.store.Definitions().TransitionsByWorkflow(ctx, workflowDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}

	return definition.Load(def, activities, transitions)
}
