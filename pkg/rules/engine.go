// Package rules implements rule satisfaction over a business-object context:
// OR across the rules attached to an item, AND across the conditions of each
// rule. An item with no attached rules is never valid.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr/vm"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// Engine evaluates rules and predicates. It is safe for concurrent use; the
// only mutable state is the compiled expression cache.
type Engine struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewEngine creates a rule evaluation engine.
func NewEngine() *Engine {
	return &Engine{
		programs: make(map[string]*vm.Program),
	}
}

// IsRuleValid reports whether at least one rule is fully satisfied by the
// context. A rule is satisfied iff all of its conditions evaluate true; a
// rule with zero conditions is not satisfied. This is the pure call shape:
// rules and conditions are pre-fetched, no storage access happens.
func (e *Engine) IsRuleValid(
	rules []*models.RuleDefinition,
	conditionsByRule map[string][]*models.ConditionDefinition,
	rctx models.RuleContext,
) (bool, error) {
	for _, rule := range rules {
		satisfied, err := e.isRuleSatisfied(conditionsByRule[rule.ID], rctx)
		if err != nil {
			return false, fmt.Errorf("rule %s (%s): %w", rule.ID, rule.Label, err)
		}

		if satisfied {
			return true, nil
		}
	}

	return false, nil
}

// IsRuleValidForItem is the storage-backed call shape: it loads the item's
// rules and conditions on demand and delegates to IsRuleValid.
func (e *Engine) IsRuleValidForItem(
	ctx context.Context,
	repo persistence.RuleRepository,
	itemID string,
	rctx models.RuleContext,
) (bool, error) {
	rules, err := repo.RulesByItem(ctx, itemID)
	if err != nil {
		return false, fmt.Errorf("failed to load rules for item %s: %w", itemID, err)
	}

	if len(rules) == 0 {
		return false, nil
	}

	ruleIDs := make([]string, 0, len(rules))
	for _, rule := range rules {
		ruleIDs = append(ruleIDs, rule.ID)
	}

	conditionsByRule, err := repo.ConditionsByRuleIDs(ctx, ruleIDs)
	if err != nil {
		return false, fmt.Errorf("failed to load conditions for item %s: %w", itemID, err)
	}

	return e.IsRuleValid(rules, conditionsByRule, rctx)
}

// isRuleSatisfied ANDs the rule's conditions. Zero conditions means the rule
// never fires.
func (e *Engine) isRuleSatisfied(conditions []*models.ConditionDefinition, rctx models.RuleContext) (bool, error) {
	if len(conditions) == 0 {
		return false, nil
	}

	for _, condition := range conditions {
		holds, err := e.EvaluatePredicate(condition.Field, condition.Operator, condition.Expression, rctx)
		if err != nil {
			return false, err
		}

		if !holds {
			return false, nil
		}
	}

	return true, nil
}
