// Package items resolves business objects for rule evaluation. The resolver
// is a boundary contract: the host application owns the item data, the
// engine only reads it to build rule contexts and recalculation snapshots.
package items

import (
	"context"
	"errors"
	"fmt"

	"github.com/veriflow-io/veriflow/pkg/models"
)

// ErrItemNotFound indicates the host application knows no item by the id.
var ErrItemNotFound = errors.New("item not found")

// Resolver reads one business object by its item id.
type Resolver interface {
	ReadItem(ctx context.Context, itemID string) (map[string]any, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, itemID string) (map[string]any, error)

func (f ResolverFunc) ReadItem(ctx context.Context, itemID string) (map[string]any, error) {
	return f(ctx, itemID)
}

// StaticResolver serves items from a fixed map, for tests and for replaying
// recalculation snapshots.
type StaticResolver map[string]map[string]any

func (s StaticResolver) ReadItem(_ context.Context, itemID string) (map[string]any, error) {
	item, ok := s[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	return item, nil
}

// NewRuleContext bundles a resolved item with the evaluation constants.
func NewRuleContext(ctx context.Context, resolver Resolver, itemID string, constants map[string]any) (models.RuleContext, error) {
	item, err := resolver.ReadItem(ctx, itemID)
	if err != nil {
		return models.RuleContext{}, fmt.Errorf("failed to read item %s: %w", itemID, err)
	}

	return models.RuleContext{Item: item, Constants: constants}, nil
}

// Snapshot reads every item once and returns the id-to-object map consumed
// by the recalculation input. Duplicate ids are read once.
func Snapshot(ctx context.Context, resolver Resolver, itemIDs []string) (map[string]map[string]any, error) {
	snapshot := make(map[string]map[string]any, len(itemIDs))

	for _, itemID := range itemIDs {
		if _, done := snapshot[itemID]; done {
			continue
		}

		item, err := resolver.ReadItem(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot item %s: %w", itemID, err)
		}

		snapshot[itemID] = item
	}

	return snapshot, nil
}
