// Package persistence provides the data storage abstraction layer for
// workflow definitions, instances, rules and selectors.
package persistence

import (
	"context"

	"github.com/veriflow-io/veriflow/pkg/models"
)

// Persistence is the store contract the engine depends on. Implementations
// live in the file and postgresql subpackages.
type Persistence interface {
	Definitions() DefinitionRepository
	Instances() InstanceRepository
	Rules() RuleRepository
	Selectors() SelectorRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores process templates and their graph.
type DefinitionRepository interface {
	SaveWorkflowDefinition(ctx context.Context, definition *models.WorkflowDefinition) error
	WorkflowDefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	ListWorkflowDefinitions(ctx context.Context) ([]*models.WorkflowDefinition, error)
	DeleteWorkflowDefinition(ctx context.Context, id string) error

	SaveActivityDefinition(ctx context.Context, activity *models.ActivityDefinition) error
	ActivityDefinitionByID(ctx context.Context, id string) (*models.ActivityDefinition, error)
	ActivityDefinitionsByWorkflow(ctx context.Context, workflowDefinitionID string) ([]*models.ActivityDefinition, error)
	DeleteActivityDefinition(ctx context.Context, id string) error

	SaveTransitionDefinition(ctx context.Context, transition *models.TransitionDefinition) error
	TransitionsByWorkflow(ctx context.Context, workflowDefinitionID string) ([]*models.TransitionDefinition, error)
	DeleteTransitionDefinition(ctx context.Context, id string) error

	// ReplaceGraph atomically replaces the activity/transition graph of a
	// workflow definition with the given snapshot.
	ReplaceGraph(
		ctx context.Context,
		definition *models.WorkflowDefinition,
		activities []*models.ActivityDefinition,
		transitions []*models.TransitionDefinition,
	) error
}

// InstanceRepository stores running instances, their activities and decisions.
type InstanceRepository interface {
	SaveInstance(ctx context.Context, instance *models.WorkflowInstance) error
	InstanceByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	InstancesByDefinition(ctx context.Context, workflowDefinitionID string) ([]*models.WorkflowInstance, error)
	DeleteInstance(ctx context.Context, id string) error

	SaveActivity(ctx context.Context, activity *models.Activity) error
	ActivityByID(ctx context.Context, id string) (*models.Activity, error)
	ActivitiesByInstance(ctx context.Context, instanceID string) ([]*models.Activity, error)
	ActivitiesByDefinitionIDs(ctx context.Context, definitionIDs []string) ([]*models.Activity, error)

	SaveDecision(ctx context.Context, decision *models.Decision) error
	DecisionsByActivity(ctx context.Context, activityID string) ([]*models.Decision, error)
	DecisionsByInstance(ctx context.Context, instanceID string) ([]*models.Decision, error)

	// ApplyRecalculation applies a recalculation diff in one batch: activity
	// creations, flag updates and current-activity pointer moves.
	ApplyRecalculation(ctx context.Context, batch *RecalculationBatch) error
}

// RecalculationBatch is the storage-facing shape of a recalculation diff.
// The recalc package produces it; the store applies it atomically.
type RecalculationBatch struct {
	WorkflowsUpdateCurrentActivity        []*models.WorkflowInstance
	ActivitiesUpdateIsAuto                []*models.Activity
	ActivitiesCreate                      []*models.Activity
	ActivitiesCreateUpdateCurrentActivity []*models.Activity
}

// RuleCriteria is a reverse-lookup predicate over rule conditions: which
// rules carry a condition with this exact field/operator/expression.
type RuleCriteria struct {
	Field      string          `json:"field"`
	Operator   models.Operator `json:"operator"`
	Expression string          `json:"expression"`
}

// RuleRepository stores rules and their conditions.
type RuleRepository interface {
	SaveRule(ctx context.Context, rule *models.RuleDefinition) error
	RuleByID(ctx context.Context, id string) (*models.RuleDefinition, error)
	RulesByItem(ctx context.Context, itemID string) ([]*models.RuleDefinition, error)
	RulesByItemIDs(ctx context.Context, itemIDs []string) (map[string][]*models.RuleDefinition, error)
	DeleteRule(ctx context.Context, id string) error

	SaveCondition(ctx context.Context, condition *models.ConditionDefinition) error
	ConditionsByRule(ctx context.Context, ruleID string) ([]*models.ConditionDefinition, error)
	ConditionsByRuleIDs(ctx context.Context, ruleIDs []string) (map[string][]*models.ConditionDefinition, error)
	DeleteCondition(ctx context.Context, id string) error

	FindRulesByCriteria(ctx context.Context, criteria RuleCriteria) ([]*models.RuleDefinition, error)
}

// SelectorRepository stores selectors and their filters.
type SelectorRepository interface {
	SaveSelector(ctx context.Context, selector *models.SelectorDefinition) error
	SelectorByID(ctx context.Context, id string) (*models.SelectorDefinition, error)
	SelectorsByItem(ctx context.Context, itemID string) ([]*models.SelectorDefinition, error)
	SelectorsByItemIDs(ctx context.Context, itemIDs []string) (map[string][]*models.SelectorDefinition, error)
	DeleteSelector(ctx context.Context, id string) error

	SaveFilter(ctx context.Context, filter *models.FilterDefinition) error
	FiltersBySelector(ctx context.Context, selectorID string) ([]*models.FilterDefinition, error)
	FiltersBySelectorIDs(ctx context.Context, selectorIDs []string) (map[string][]*models.FilterDefinition, error)
	DeleteFilter(ctx context.Context, id string) error

	// RemoveSelectorsFiltersByGroupTag deletes every selector carrying the
	// bulk-removal tag, together with its filters.
	RemoveSelectorsFiltersByGroupTag(ctx context.Context, groupTag string) error
}
