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

// RuleRepository handles rule and condition storage.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *RuleRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func (r *RuleRepository) SaveRule(ctx context.Context, rule *models.RuleDefinition) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO rule_definitions (id, item_id, label, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			label = EXCLUDED.label
	`

	_, err := r.db.ExecContext(ctx, query, rule.ID, rule.ItemID, rule.Label, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	return nil
}

func (r *RuleRepository) RuleByID(ctx context.Context, id string) (*models.RuleDefinition, error) {
	query := `SELECT id, item_id, label, created_at FROM rule_definitions WHERE id = $1`

	rule := &models.RuleDefinition{}

	err := r.db.QueryRowContext(ctx, query, id).Scan(&rule.ID, &rule.ItemID, &rule.Label, &rule.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRuleNotFound
		}

		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	return rule, nil
}

func (r *RuleRepository) RulesByItem(ctx context.Context, itemID string) ([]*models.RuleDefinition, error) {
	query := `SELECT id, item_id, label, created_at FROM rule_definitions WHERE item_id = $1 ORDER BY created_at`

	return r.queryRules(ctx, query, itemID)
}

func (r *RuleRepository) RulesByItemIDs(ctx context.Context, itemIDs []string) (map[string][]*models.RuleDefinition, error) {
	query := `SELECT id, item_id, label, created_at FROM rule_definitions WHERE item_id = ANY($1::uuid[]) ORDER BY created_at`

	rules, err := r.queryRules(ctx, query, pq.Array(itemIDs))
	if err != nil {
		return nil, err
	}

	byItem := make(map[string][]*models.RuleDefinition)
	for _, rule := range rules {
		byItem[rule.ItemID] = append(byItem[rule.ItemID], rule)
	}

	return byItem, nil
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]*models.RuleDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	defer r.closeRows(ctx, rows)

	rules := make([]*models.RuleDefinition, 0)

	for rows.Next() {
		rule := &models.RuleDefinition{}

		err := rows.Scan(&rule.ID, &rule.ItemID, &rule.Label, &rule.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

func (r *RuleRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rule_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrRuleNotFound
	}

	return nil
}

func (r *RuleRepository) SaveCondition(ctx context.Context, condition *models.ConditionDefinition) error {
	if condition.ID == "" {
		condition.ID = uuid.New().String()
	}

	query := `
		INSERT INTO condition_definitions (id, rule_id, field, operator, expression)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			field = EXCLUDED.field,
			operator = EXCLUDED.operator,
			expression = EXCLUDED.expression
	`

	_, err := r.db.ExecContext(ctx, query,
		condition.ID,
		condition.RuleID,
		condition.Field,
		condition.Operator,
		condition.Expression,
	)
	if err != nil {
		return fmt.Errorf("failed to save condition: %w", err)
	}

	return nil
}

func (r *RuleRepository) ConditionsByRule(ctx context.Context, ruleID string) ([]*models.ConditionDefinition, error) {
	query := `SELECT id, rule_id, field, operator, expression FROM condition_definitions WHERE rule_id = $1 ORDER BY id`

	return r.queryConditions(ctx, query, ruleID)
}

func (r *RuleRepository) ConditionsByRuleIDs(ctx context.Context, ruleIDs []string) (map[string][]*models.ConditionDefinition, error) {
	query := `SELECT id, rule_id, field, operator, expression FROM condition_definitions WHERE rule_id = ANY($1::uuid[]) ORDER BY id`

	conditions, err := r.queryConditions(ctx, query, pq.Array(ruleIDs))
	if err != nil {
		return nil, err
	}

	byRule := make(map[string][]*models.ConditionDefinition)
	for _, condition := range conditions {
		byRule[condition.RuleID] = append(byRule[condition.RuleID], condition)
	}

	return byRule, nil
}

func (r *RuleRepository) queryConditions(ctx context.Context, query string, args ...any) ([]*models.ConditionDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	conditions := make([]*models.ConditionDefinition, 0)

	for rows.Next() {
		condition := &models.ConditionDefinition{}

		err := rows.Scan(
			&condition.ID,
			&condition.RuleID,
			&condition.Field,
			&condition.Operator,
			&condition.Expression,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}

		conditions = append(conditions, condition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conditions: %w", err)
	}

	return conditions, nil
}

func (r *RuleRepository) DeleteCondition(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM condition_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete condition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrRuleNotFound
	}

	return nil
}

// FindRulesByCriteria returns every rule carrying a condition with the exact
// field, operator and expression.
func (r *RuleRepository) FindRulesByCriteria(ctx context.Context, criteria persistence.RuleCriteria) ([]*models.RuleDefinition, error) {
	query := `
		SELECT DISTINCT r.id, r.item_id, r.label, r.created_at
		FROM rule_definitions r
		JOIN condition_definitions c ON c.rule_id = r.id
		WHERE c.field = $1 AND c.operator = $2 AND c.expression = $3
		ORDER BY r.created_at
	`

	return r.queryRules(ctx, query, criteria.Field, criteria.Operator, criteria.Expression)
}
