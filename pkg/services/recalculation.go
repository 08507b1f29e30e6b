package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veriflow-io/veriflow/pkg/definition"
	"github.com/veriflow-io/veriflow/pkg/eventbus"
	"github.com/veriflow-io/veriflow/pkg/events"
	"github.com/veriflow-io/veriflow/pkg/items"
	"github.com/veriflow-io/veriflow/pkg/middleware"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/recalc"
	"github.com/veriflow-io/veriflow/pkg/selectors"
)

// Recalculation loads reconciliation snapshots from the store, fans the pure
// engine out over a batch and applies the merged diff back in one write.
type Recalculation struct {
	persistence   persistence.Persistence
	runner        *recalc.Runner
	itemResolver  items.Resolver
	groupResolver selectors.GroupResolver
	constants     map[string]any
	publisher     eventbus.EventPublisher
	logger        *slog.Logger

	recalculate middleware.RecalculateFunc
}

// NewRecalculation creates a recalculation service. Decorators wrap the
// per-instance reconciliation path in order.
func NewRecalculation(
	store persistence.Persistence,
	engine *recalc.Engine,
	runner *recalc.Runner,
	itemResolver items.Resolver,
	groupResolver selectors.GroupResolver,
	constants map[string]any,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	decorators ...middleware.Recalculation,
) *Recalculation {
	service := &Recalculation{
		persistence:   store,
		runner:        runner,
		itemResolver:  itemResolver,
		groupResolver: groupResolver,
		constants:     constants,
		publisher:     publisher,
		logger:        logger,
	}

	service.recalculate = middleware.ChainRecalculation(engine.Recalculate, decorators...)

	return service
}

// RecalculateDefinition reconciles every started instance of a workflow
// definition and applies the merged diff. Partial failures are reported but
// do not block the surviving instances.
func (s *Recalculation) RecalculateDefinition(ctx context.Context, workflowDefinitionID string) (*recalc.Output, error) {
	inputs, err := s.BuildInputs(ctx, workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	out, runErr := s.runner.Run(ctx, inputs)

	if err := s.apply(ctx, workflowDefinitionID, len(inputs), out); err != nil {
		return nil, err
	}

	return out, runErr
}

// RecalculateInstance reconciles a single instance through the decorated
// path and applies its diff.
func (s *Recalculation) RecalculateInstance(ctx context.Context, instanceID string) (*recalc.Output, error) {
	inst, err := s.persistence.Instances().InstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.buildSnapshot(ctx, inst.WorkflowDefinitionID)
	if err != nil {
		return nil, err
	}

	in, err := snapshot.inputFor(ctx, s, inst)
	if err != nil {
		return nil, err
	}

	out, err := s.recalculate(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.apply(ctx, inst.WorkflowDefinitionID, 1, out); err != nil {
		return nil, err
	}

	return out, nil
}

// BuildInputs resolves the full reconciliation snapshot for every started
// instance of a definition. All storage reads happen here; the engine run
// itself is I/O free.
func (s *Recalculation) BuildInputs(ctx context.Context, workflowDefinitionID string) ([]recalc.Input, error) {
	snapshot, err := s.buildSnapshot(ctx, workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	instances, err := s.persistence.Instances().InstancesByDefinition(ctx, workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	inputs := make([]recalc.Input, 0, len(instances))

	for _, inst := range instances {
		if inst.Status != models.InstanceStatusStarted {
			continue
		}

		in, err := snapshot.inputFor(ctx, s, inst)
		if err != nil {
			return nil, err
		}

		inputs = append(inputs, in)
	}

	return inputs, nil
}

// definitionSnapshot is the instance-independent part of the reconciliation
// input, shared read-only across the batch.
type definitionSnapshot struct {
	chain             []*models.ActivityDefinition
	rulesByItem       map[string][]*models.RuleDefinition
	conditionsByRule  map[string][]*models.ConditionDefinition
	selectorsByItem   map[string][]*models.SelectorDefinition
	filtersBySelector map[string][]*models.FilterDefinition
	accountsByGroup   map[string][]string

	activitiesByInstance map[string]map[string][]*models.Activity
	decisionsByActivity  map[string][]*models.Decision
}

func (s *Recalculation) buildSnapshot(ctx context.Context, workflowDefinitionID string) (*definitionSnapshot, error) {
	graph, err := s.loadGraph(ctx, workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	chain, err := graph.FindAllDefaultActivityDefinitions()
	if err != nil {
		return nil, err
	}

	chainIDs := make([]string, 0, len(chain))
	for _, def := range chain {
		chainIDs = append(chainIDs, def.ID)
	}

	rulesByItem, err := s.persistence.Rules().RulesByItemIDs(ctx, chainIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	ruleIDs := make([]string, 0)
	for _, rules := range rulesByItem {
		for _, rule := range rules {
			ruleIDs = append(ruleIDs, rule.ID)
		}
	}

	conditionsByRule, err := s.persistence.Rules().ConditionsByRuleIDs(ctx, ruleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load conditions: %w", err)
	}

	selectorsByItem, err := s.persistence.Selectors().SelectorsByItemIDs(ctx, chainIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load selectors: %w", err)
	}

	selectorIDs := make([]string, 0)
	groupIDs := make(map[string]struct{})

	for _, sels := range selectorsByItem {
		for _, selector := range sels {
			selectorIDs = append(selectorIDs, selector.ID)
			groupIDs[selector.AccountGroupID] = struct{}{}
		}
	}

	filtersBySelector, err := s.persistence.Selectors().FiltersBySelectorIDs(ctx, selectorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load filters: %w", err)
	}

	accountsByGroup := make(map[string][]string, len(groupIDs))

	for groupID := range groupIDs {
		accounts, err := s.groupResolver.AccountsByGroup(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve account group %s: %w", groupID, err)
		}

		accountsByGroup[groupID] = accounts
	}

	activities, err := s.persistence.Instances().ActivitiesByDefinitionIDs(ctx, chainIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}

	activitiesByInstance := make(map[string]map[string][]*models.Activity)
	decisionsByActivity := make(map[string][]*models.Decision)

	for _, activity := range activities {
		byDefinition := activitiesByInstance[activity.WorkflowInstanceID]
		if byDefinition == nil {
			byDefinition = make(map[string][]*models.Activity)
			activitiesByInstance[activity.WorkflowInstanceID] = byDefinition
		}

		byDefinition[activity.ActivityDefinitionID] = append(byDefinition[activity.ActivityDefinitionID], activity)

		decisions, err := s.persistence.Instances().DecisionsByActivity(ctx, activity.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load decisions: %w", err)
		}

		if len(decisions) > 0 {
			decisionsByActivity[activity.ID] = decisions
		}
	}

	return &definitionSnapshot{
		chain:                chain,
		rulesByItem:          rulesByItem,
		conditionsByRule:     conditionsByRule,
		selectorsByItem:      selectorsByItem,
		filtersBySelector:    filtersBySelector,
		accountsByGroup:      accountsByGroup,
		activitiesByInstance: activitiesByInstance,
		decisionsByActivity:  decisionsByActivity,
	}, nil
}

func (d *definitionSnapshot) inputFor(ctx context.Context, s *Recalculation, inst *models.WorkflowInstance) (recalc.Input, error) {
	itemSnapshot, err := items.Snapshot(ctx, s.itemResolver, []string{inst.ItemID})
	if err != nil {
		return recalc.Input{}, fmt.Errorf("failed to read item %s: %w", inst.ItemID, err)
	}

	return recalc.Input{
		Chain:                  d.chain,
		Constants:              s.constants,
		Instance:               inst,
		RulesByItem:            d.rulesByItem,
		ConditionsByRule:       d.conditionsByRule,
		SelectorsByItem:        d.selectorsByItem,
		FiltersBySelector:      d.filtersBySelector,
		ActivitiesByDefinition: d.activitiesByInstance[inst.ID],
		DecisionsByActivity:    d.decisionsByActivity,
		Items:                  itemSnapshot,
		AccountsByGroup:        d.accountsByGroup,
	}, nil
}

// apply persists a merged diff as one batch and publishes the applied event.
func (s *Recalculation) apply(ctx context.Context, workflowDefinitionID string, instances int, out *recalc.Output) error {
	if out == nil || out.Empty() {
		return nil
	}

	batch := &persistence.RecalculationBatch{
		WorkflowsUpdateCurrentActivity:        out.WorkflowsUpdateCurrentActivity,
		ActivitiesUpdateIsAuto:                out.ActivitiesUpdateIsAuto,
		ActivitiesCreate:                      out.ActivitiesCreate,
		ActivitiesCreateUpdateCurrentActivity: out.ActivitiesCreateUpdateCurrentActivity,
	}

	err := s.persistence.Instances().ApplyRecalculation(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to apply recalculation batch: %w", err)
	}

	if s.publisher != nil {
		event := events.RecalculationApplied{
			BaseEvent: events.BaseEvent{
				Type:      events.RecalculationAppliedEvent,
				Timestamp: time.Now().UTC(),
			},
			WorkflowDefinitionID: workflowDefinitionID,
			Instances:            instances,
			PointerMoves:         len(out.WorkflowsUpdateCurrentActivity) + len(out.ActivitiesCreateUpdateCurrentActivity),
			ActivitiesCreated:    len(out.ActivitiesCreate) + len(out.ActivitiesCreateUpdateCurrentActivity),
			ActivitiesUpdated:    len(out.ActivitiesUpdateIsAuto),
		}

		if err := s.publisher.Publish(ctx, workflowDefinitionID, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish recalculation event", "error", err)
		}
	}

	return nil
}

func (s *Recalculation) loadGraph(ctx context.Context, workflowDefinitionID string) (*definition.Graph, error) {
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
