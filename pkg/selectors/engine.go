// Package selectors resolves which accounts and groups may act on a step: a
// selector matches when all of its filters hold, and the result is the union
// of the matching selectors' target groups' accounts.
package selectors

import (
	"context"
	"fmt"
	"sort"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/rules"
)

// GroupResolver maps a selector's target account-group id to concrete
// accounts. Account management is external to the engine.
type GroupResolver interface {
	AccountsByGroup(ctx context.Context, accountGroupID string) ([]string, error)
}

// StaticGroupResolver is a snapshot-backed resolver used on the pure
// recalculation path, where no I/O may happen.
type StaticGroupResolver map[string][]string

// AccountsByGroup returns the snapshot accounts for a group; unknown groups
// resolve to no accounts.
func (s StaticGroupResolver) AccountsByGroup(_ context.Context, accountGroupID string) ([]string, error) {
	return s[accountGroupID], nil
}

// Engine resolves selectors against a rule context. Filter predicates share
// the condition model, so evaluation delegates to the rule engine.
type Engine struct {
	rules *rules.Engine
}

// NewEngine creates a selector engine on top of the given rule engine.
func NewEngine(ruleEngine *rules.Engine) *Engine {
	return &Engine{rules: ruleEngine}
}

// SelectGroups returns the target account-group ids of the selectors whose
// filters all hold, de-duplicated and sorted.
func (e *Engine) SelectGroups(
	selectors []*models.SelectorDefinition,
	filtersBySelector map[string][]*models.FilterDefinition,
	rctx models.RuleContext,
) ([]string, error) {
	seen := make(map[string]struct{})
	groups := make([]string, 0)

	for _, selector := range selectors {
		matches, err := e.selectorMatches(selector, filtersBySelector[selector.ID], rctx)
		if err != nil {
			return nil, err
		}

		if !matches {
			continue
		}

		if _, dup := seen[selector.AccountGroupID]; dup {
			continue
		}

		seen[selector.AccountGroupID] = struct{}{}
		groups = append(groups, selector.AccountGroupID)
	}

	sort.Strings(groups)

	return groups, nil
}

// SelectAccounts returns the union of the accounts of every matching
// selector's target group, de-duplicated and sorted.
func (e *Engine) SelectAccounts(
	ctx context.Context,
	selectors []*models.SelectorDefinition,
	filtersBySelector map[string][]*models.FilterDefinition,
	rctx models.RuleContext,
	resolver GroupResolver,
) ([]string, error) {
	groups, err := e.SelectGroups(selectors, filtersBySelector, rctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	accounts := make([]string, 0)

	for _, group := range groups {
		groupAccounts, err := resolver.AccountsByGroup(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve accounts for group %s: %w", group, err)
		}

		for _, account := range groupAccounts {
			if _, dup := seen[account]; dup {
				continue
			}

			seen[account] = struct{}{}
			accounts = append(accounts, account)
		}
	}

	sort.Strings(accounts)

	return accounts, nil
}

// SelectAccountsForItem is the storage-backed call shape: it loads the item's
// selectors and filters on demand.
func (e *Engine) SelectAccountsForItem(
	ctx context.Context,
	repo persistence.SelectorRepository,
	itemID string,
	rctx models.RuleContext,
	resolver GroupResolver,
) ([]string, error) {
	selectors, err := repo.SelectorsByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load selectors for item %s: %w", itemID, err)
	}

	if len(selectors) == 0 {
		return nil, nil
	}

	selectorIDs := make([]string, 0, len(selectors))
	for _, selector := range selectors {
		selectorIDs = append(selectorIDs, selector.ID)
	}

	filtersBySelector, err := repo.FiltersBySelectorIDs(ctx, selectorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load filters for item %s: %w", itemID, err)
	}

	return e.SelectAccounts(ctx, selectors, filtersBySelector, rctx, resolver)
}

// selectorMatches ANDs the selector's filters. A selector with zero filters
// matches unconditionally: it is a plain group binding.
func (e *Engine) selectorMatches(
	selector *models.SelectorDefinition,
	filters []*models.FilterDefinition,
	rctx models.RuleContext,
) (bool, error) {
	for _, filter := range filters {
		holds, err := e.rules.EvaluatePredicate(filter.Field, filter.Operator, filter.Expression, rctx)
		if err != nil {
			return false, fmt.Errorf("selector %s: %w", selector.ID, err)
		}

		if !holds {
			return false, nil
		}
	}

	return true, nil
}
