// Package recalc reconciles workflow instance state against the current
// rule, selector and business-data configuration in bulk, without per-item
// I/O. Every input is a pre-loaded map treated as a read-only snapshot;
// every output is an in-memory diff the store applies in one batch.
package recalc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/rules"
	"github.com/veriflow-io/veriflow/pkg/selectors"
)

// Input is the resolved snapshot one instance is reconciled against. The
// maps may be shared, read-only, across a whole batch.
type Input struct {
	// Chain is the ordered activity-definition sequence of the instance's
	// workflow definition, default transitions only.
	Chain []*models.ActivityDefinition

	// Constants are the rule constants of the evaluation context.
	Constants map[string]any

	// Instance is the workflow under reconciliation.
	Instance *models.WorkflowInstance

	RulesByItem       map[string][]*models.RuleDefinition
	ConditionsByRule  map[string][]*models.ConditionDefinition
	SelectorsByItem   map[string][]*models.SelectorDefinition
	FiltersBySelector map[string][]*models.FilterDefinition

	// ActivitiesByDefinition holds the instance's existing activities keyed
	// by activity definition id.
	ActivitiesByDefinition map[string][]*models.Activity

	// DecisionsByActivity holds the recorded decisions keyed by activity id.
	DecisionsByActivity map[string][]*models.Decision

	// Items caches the business objects keyed by item id.
	Items map[string]map[string]any

	// AccountsByGroup is the account-group membership snapshot used for
	// selector resolution.
	AccountsByGroup map[string][]string
}

// Output is the diff produced by one reconciliation pass. Re-running with
// unchanged inputs yields an empty output.
type Output struct {
	// WorkflowsUpdateCurrentActivity lists instances whose current-activity
	// pointer must change.
	WorkflowsUpdateCurrentActivity []*models.WorkflowInstance

	// ActivitiesUpdateIsAuto lists existing activities whose auto/valid
	// flags must change.
	ActivitiesUpdateIsAuto []*models.Activity

	// ActivitiesCreate lists new activity rows to insert.
	ActivitiesCreate []*models.Activity

	// ActivitiesCreateUpdateCurrentActivity lists newly created activities
	// that simultaneously become the instance's new current activity.
	ActivitiesCreateUpdateCurrentActivity []*models.Activity
}

// Empty reports whether the pass produced no work.
func (o *Output) Empty() bool {
	return len(o.WorkflowsUpdateCurrentActivity) == 0 &&
		len(o.ActivitiesUpdateIsAuto) == 0 &&
		len(o.ActivitiesCreate) == 0 &&
		len(o.ActivitiesCreateUpdateCurrentActivity) == 0
}

// Merge folds another output into this one.
func (o *Output) Merge(other *Output) {
	o.WorkflowsUpdateCurrentActivity = append(o.WorkflowsUpdateCurrentActivity, other.WorkflowsUpdateCurrentActivity...)
	o.ActivitiesUpdateIsAuto = append(o.ActivitiesUpdateIsAuto, other.ActivitiesUpdateIsAuto...)
	o.ActivitiesCreate = append(o.ActivitiesCreate, other.ActivitiesCreate...)
	o.ActivitiesCreateUpdateCurrentActivity = append(o.ActivitiesCreateUpdateCurrentActivity, other.ActivitiesCreateUpdateCurrentActivity...)
}

// CustomRecalculation is an extension hook invoked before the generic pass,
// contributing additional entries to the same output. Hooks must stay pure:
// maps in, diff out, no I/O.
type CustomRecalculation interface {
	Name() string
	Recalculate(ctx context.Context, in Input, out *Output) error
}

// Engine runs reconciliation passes. It is stateless apart from the shared
// rule/selector engines and the registered hooks, and safe for concurrent
// use across a batch.
type Engine struct {
	rules     *rules.Engine
	selectors *selectors.Engine
	hooks     []CustomRecalculation
}

// NewEngine creates a recalculation engine reusing the interactive
// rule/selector semantics.
func NewEngine(ruleEngine *rules.Engine, selectorEngine *selectors.Engine, hooks ...CustomRecalculation) *Engine {
	return &Engine{
		rules:     ruleEngine,
		selectors: selectorEngine,
		hooks:     hooks,
	}
}

// Recalculate reconciles one instance in a single forward pass over the
// ordered chain, starting at the instance's current position:
//
//  1. When an activity already exists for the definition, rule validity is
//     re-evaluated and flag drift is enqueued as an update.
//  2. When none exists and the step is auto-satisfiable, a new activity is
//     synthesized.
//  3. The pointer freezes at the first step requiring a human decision; the
//     step is materialized as the new current activity when missing.
//
// Only started instances are reconciled; anything else yields an empty diff.
func (e *Engine) Recalculate(ctx context.Context, in Input) (*Output, error) {
	out := &Output{}

	if in.Instance == nil || in.Instance.Status != models.InstanceStatusStarted {
		return out, nil
	}

	for _, hook := range e.hooks {
		if err := hook.Recalculate(ctx, in, out); err != nil {
			return nil, fmt.Errorf("custom recalculation %s: %w", hook.Name(), err)
		}
	}

	if err := e.walk(ctx, in, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (e *Engine) walk(ctx context.Context, in Input, out *Output) error {
	rctx := models.RuleContext{
		Item:      in.Items[in.Instance.ItemID],
		Constants: in.Constants,
	}

	resolver := selectors.StaticGroupResolver(in.AccountsByGroup)

	var lastActivityID string

	for index := e.startIndex(in); index < len(in.Chain); index++ {
		def := in.Chain[index]

		auto, err := e.canAutoValidate(ctx, def.ID, rctx, in, resolver)
		if err != nil {
			return fmt.Errorf("instance %s, definition %s: %w", in.Instance.ID, def.ID, err)
		}

		existing, decided := resolveExisting(in, def.ID)

		if decided {
			// Humanly satisfied; nothing to reconcile at this step.
			lastActivityID = existing.ID

			continue
		}

		if existing != nil {
			lastActivityID = existing.ID

			if auto {
				if !existing.IsAuto || !existing.IsValid {
					update := *existing
					update.IsAuto = true
					update.IsValid = true
					out.ActivitiesUpdateIsAuto = append(out.ActivitiesUpdateIsAuto, &update)
				}

				continue
			}

			// Pointer freezes here: the step needs a human decision.
			if existing.IsAuto || existing.IsValid {
				update := *existing
				update.IsAuto = false
				update.IsValid = false
				out.ActivitiesUpdateIsAuto = append(out.ActivitiesUpdateIsAuto, &update)
			}

			e.repoint(in, out, existing.ID)

			return nil
		}

		created := &models.Activity{
			ID:                   uuid.New().String(),
			ActivityDefinitionID: def.ID,
			WorkflowInstanceID:   in.Instance.ID,
			CreatedAt:            time.Now().UTC(),
		}

		if auto {
			created.IsAuto = true
			created.IsValid = true
			out.ActivitiesCreate = append(out.ActivitiesCreate, created)
			lastActivityID = created.ID

			continue
		}

		out.ActivitiesCreateUpdateCurrentActivity = append(out.ActivitiesCreateUpdateCurrentActivity, created)

		return nil
	}

	// Chain exhausted with every step satisfied: the pointer lands on the
	// last activity.
	if lastActivityID != "" {
		e.repoint(in, out, lastActivityID)
	}

	return nil
}

// startIndex finds the chain position of the instance's current activity.
// Instances without a materialized pointer start at the head.
func (e *Engine) startIndex(in Input) int {
	if in.Instance.CurrentActivityID == "" {
		return 0
	}

	for index, def := range in.Chain {
		for _, activity := range in.ActivitiesByDefinition[def.ID] {
			if activity.ID == in.Instance.CurrentActivityID {
				return index
			}
		}
	}

	return 0
}

// canAutoValidate mirrors the interactive CanAutoValidateActivity over the
// pre-loaded maps: a step is auto-satisfiable when its rules are not
// satisfied or when no eligible account remains.
func (e *Engine) canAutoValidate(
	ctx context.Context,
	itemID string,
	rctx models.RuleContext,
	in Input,
	resolver selectors.StaticGroupResolver,
) (bool, error) {
	valid, err := e.rules.IsRuleValid(in.RulesByItem[itemID], in.ConditionsByRule, rctx)
	if err != nil {
		return false, err
	}

	if !valid {
		return true, nil
	}

	accounts, err := e.selectors.SelectAccounts(
		ctx,
		in.SelectorsByItem[itemID],
		in.FiltersBySelector,
		rctx,
		resolver,
	)
	if err != nil {
		return false, err
	}

	return len(accounts) == 0, nil
}

// resolveExisting picks the activity to reconcile for a definition. A step is
// humanly decided when any of its activities carries a decision; otherwise
// the most recent activity is the single open one. At most one open activity
// per definition, whatever the multiplicity, so repeated runs never pile up
// duplicates.
func resolveExisting(in Input, definitionID string) (*models.Activity, bool) {
	activities := in.ActivitiesByDefinition[definitionID]
	if len(activities) == 0 {
		return nil, false
	}

	for _, activity := range activities {
		if len(in.DecisionsByActivity[activity.ID]) > 0 {
			return activity, true
		}
	}

	latest := activities[0]
	for _, activity := range activities[1:] {
		if activity.CreatedAt.After(latest.CreatedAt) {
			latest = activity
		}
	}

	return latest, false
}

// repoint enqueues a pointer move when the target differs from the stored
// current activity.
func (e *Engine) repoint(in Input, out *Output, activityID string) {
	if in.Instance.CurrentActivityID == activityID {
		return
	}

	update := *in.Instance
	update.CurrentActivityID = activityID
	out.WorkflowsUpdateCurrentActivity = append(out.WorkflowsUpdateCurrentActivity, &update)
}
