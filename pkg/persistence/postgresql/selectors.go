package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// SelectorRepository handles selector and filter storage.
type SelectorRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *SelectorRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func (r *SelectorRepository) SaveSelector(ctx context.Context, selector *models.SelectorDefinition) error {
	if selector.ID == "" {
		selector.ID = uuid.New().String()
	}

	if selector.CreatedAt.IsZero() {
		selector.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO selector_definitions (id, item_id, account_group_id, group_tag, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (id) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			account_group_id = EXCLUDED.account_group_id,
			group_tag = EXCLUDED.group_tag
	`

	_, err := r.db.ExecContext(ctx, query,
		selector.ID,
		selector.ItemID,
		selector.AccountGroupID,
		selector.GroupTag,
		selector.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save selector: %w", err)
	}

	return nil
}

const selectorColumns = `id, item_id, account_group_id, COALESCE(group_tag, ''), created_at`

func scanSelector(row rowScanner) (*models.SelectorDefinition, error) {
	selector := &models.SelectorDefinition{}

	err := row.Scan(
		&selector.ID,
		&selector.ItemID,
		&selector.AccountGroupID,
		&selector.GroupTag,
		&selector.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return selector, nil
}

func (r *SelectorRepository) SelectorByID(ctx context.Context, id string) (*models.SelectorDefinition, error) {
	query := `SELECT ` + selectorColumns + ` FROM selector_definitions WHERE id = $1`

	selector, err := scanSelector(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrSelectorNotFound
		}

		return nil, fmt.Errorf("failed to scan selector: %w", err)
	}

	return selector, nil
}

func (r *SelectorRepository) SelectorsByItem(ctx context.Context, itemID string) ([]*models.SelectorDefinition, error) {
	query := `SELECT ` + selectorColumns + ` FROM selector_definitions WHERE item_id = $1 ORDER BY created_at`

	return r.querySelectors(ctx, query, itemID)
}

func (r *SelectorRepository) SelectorsByItemIDs(ctx context.Context, itemIDs []string) (map[string][]*models.SelectorDefinition, error) {
	query := `SELECT ` + selectorColumns + ` FROM selector_definitions WHERE item_id = ANY($1::uuid[]) ORDER BY created_at`

	selectors, err := r.querySelectors(ctx, query, pq.Array(itemIDs))
	if err != nil {
		return nil, err
	}

	byItem := make(map[string][]*models.SelectorDefinition)
	for _, selector := range selectors {
		byItem[selector.ItemID] = append(byItem[selector.ItemID], selector)
	}

	return byItem, nil
}

func (r *SelectorRepository) querySelectors(ctx context.Context, query string, args ...any) ([]*models.SelectorDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query selectors: %w", err)
	}

	defer r.closeRows(ctx, rows)

	selectors := make([]*models.SelectorDefinition, 0)

	for rows.Next() {
		selector, err := scanSelector(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan selector: %w", err)
		}

		selectors = append(selectors, selector)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating selectors: %w", err)
	}

	return selectors, nil
}

func (r *SelectorRepository) DeleteSelector(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM selector_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete selector: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrSelectorNotFound
	}

	return nil
}

func (r *SelectorRepository) SaveFilter(ctx context.Context, filter *models.FilterDefinition) error {
	if filter.ID == "" {
		filter.ID = uuid.New().String()
	}

	query := `
		INSERT INTO filter_definitions (id, selector_id, field, operator, expression)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			field = EXCLUDED.field,
			operator = EXCLUDED.operator,
			expression = EXCLUDED.expression
	`

	_, err := r.db.ExecContext(ctx, query,
		filter.ID,
		filter.SelectorID,
		filter.Field,
		filter.Operator,
		filter.Expression,
	)
	if err != nil {
		return fmt.Errorf("failed to save filter: %w", err)
	}

	return nil
}

func (r *SelectorRepository) FiltersBySelector(ctx context.Context, selectorID string) ([]*models.FilterDefinition, error) {
	query := `SELECT id, selector_id, field, operator, expression FROM filter_definitions WHERE selector_id = $1 ORDER BY id`

	return r.queryFilters(ctx, query, selectorID)
}

func (r *SelectorRepository) FiltersBySelectorIDs(ctx context.Context, selectorIDs []string) (map[string][]*models.FilterDefinition, error) {
	query := `SELECT id, selector_id, field, operator, expression FROM filter_definitions WHERE selector_id = ANY($1::uuid[]) ORDER BY id`

	filters, err := r.queryFilters(ctx, query, pq.Array(selectorIDs))
	if err != nil {
		return nil, err
	}

	bySelector := make(map[string][]*models.FilterDefinition)
	for _, filter := range filters {
		bySelector[filter.SelectorID] = append(bySelector[filter.SelectorID], filter)
	}

	return bySelector, nil
}

func (r *SelectorRepository) queryFilters(ctx context.Context, query string, args ...any) ([]*models.FilterDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query filters: %w", err)
	}

	defer r.closeRows(ctx, rows)

	filters := make([]*models.FilterDefinition, 0)

	for rows.Next() {
		filter := &models.FilterDefinition{}

		err := rows.Scan(
			&filter.ID,
			&filter.SelectorID,
			&filter.Field,
			&filter.Operator,
			&filter.Expression,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}

		filters = append(filters, filter)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filters: %w", err)
	}

	return filters, nil
}

func (r *SelectorRepository) DeleteFilter(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM filter_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete filter: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrSelectorNotFound
	}

	return nil
}

// RemoveSelectorsFiltersByGroupTag deletes every selector carrying the group
// tag. Filters cascade with their selector.
func (r *SelectorRepository) RemoveSelectorsFiltersByGroupTag(ctx context.Context, groupTag string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM selector_definitions WHERE group_tag = $1`, groupTag)
	if err != nil {
		return fmt.Errorf("failed to remove selectors by group tag: %w", err)
	}

	return nil
}
