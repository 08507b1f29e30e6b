package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// DefinitionRepository handles workflow definition graph storage.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *DefinitionRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func (r *DefinitionRepository) SaveWorkflowDefinition(ctx context.Context, definition *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if definition.ID == "" {
		definition.ID = uuid.New().String()
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	query := `
		INSERT INTO workflow_definitions (id, name, first_activity_id, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			first_activity_id = EXCLUDED.first_activity_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		definition.ID,
		definition.Name,
		definition.FirstActivityID,
		definition.CreatedAt,
		definition.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}

	return nil
}

func (r *DefinitionRepository) WorkflowDefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT id, name, COALESCE(first_activity_id::text, ''), created_at, updated_at
		FROM workflow_definitions
		WHERE id = $1
	`

	definition := &models.WorkflowDefinition{}

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&definition.ID,
		&definition.Name,
		&definition.FirstActivityID,
		&definition.CreatedAt,
		&definition.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDefinitionNotFound
		}

		return nil, fmt.Errorf("failed to query workflow definition: %w", err)
	}

	return definition, nil
}

func (r *DefinitionRepository) ListWorkflowDefinitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT id, name, COALESCE(first_activity_id::text, ''), created_at, updated_at
		FROM workflow_definitions
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		definition := &models.WorkflowDefinition{}

		err := rows.Scan(
			&definition.ID,
			&definition.Name,
			&definition.FirstActivityID,
			&definition.CreatedAt,
			&definition.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow definitions: %w", err)
	}

	return definitions, nil
}

func (r *DefinitionRepository) DeleteWorkflowDefinition(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrDefinitionNotFound
	}

	return nil
}

func (r *DefinitionRepository) SaveActivityDefinition(ctx context.Context, activity *models.ActivityDefinition) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	query := `
		INSERT INTO activity_definitions (id, workflow_definition_id, name, position, multiplicity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			position = EXCLUDED.position,
			multiplicity = EXCLUDED.multiplicity
	`

	_, err := r.db.ExecContext(ctx, query,
		activity.ID,
		activity.WorkflowDefinitionID,
		activity.Name,
		nullableInt(activity.Position),
		activity.Multiplicity,
	)
	if err != nil {
		return fmt.Errorf("failed to save activity definition: %w", err)
	}

	return nil
}

func (r *DefinitionRepository) ActivityDefinitionByID(ctx context.Context, id string) (*models.ActivityDefinition, error) {
	query := `
		SELECT id, workflow_definition_id, name, position, multiplicity
		FROM activity_definitions
		WHERE id = $1
	`

	activity, err := scanActivityDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrActivityDefinitionNotFound
		}

		return nil, fmt.Errorf("failed to scan activity definition: %w", err)
	}

	return activity, nil
}

func (r *DefinitionRepository) ActivityDefinitionsByWorkflow(ctx context.Context, workflowDefinitionID string) ([]*models.ActivityDefinition, error) {
	query := `
		SELECT id, workflow_definition_id, name, position, multiplicity
		FROM activity_definitions
		WHERE workflow_definition_id = $1
		ORDER BY position NULLS LAST, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity definitions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	activities := make([]*models.ActivityDefinition, 0)

	for rows.Next() {
		activity, err := scanActivityDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity definition: %w", err)
		}

		activities = append(activities, activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity definitions: %w", err)
	}

	return activities, nil
}

func (r *DefinitionRepository) DeleteActivityDefinition(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM activity_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete activity definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrActivityDefinitionNotFound
	}

	return nil
}

func (r *DefinitionRepository) SaveTransitionDefinition(ctx context.Context, transition *models.TransitionDefinition) error {
	if transition.ID == "" {
		transition.ID = uuid.New().String()
	}

	query := `
		INSERT INTO transition_definitions (id, workflow_definition_id, from_id, to_id, name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			from_id = EXCLUDED.from_id,
			to_id = EXCLUDED.to_id,
			name = EXCLUDED.name
	`

	_, err := r.db.ExecContext(ctx, query,
		transition.ID,
		transition.WorkflowDefinitionID,
		transition.FromID,
		transition.ToID,
		transition.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to save transition definition: %w", err)
	}

	return nil
}

func (r *DefinitionRepository) TransitionsByWorkflow(ctx context.Context, workflowDefinitionID string) ([]*models.TransitionDefinition, error) {
	query := `
		SELECT id, workflow_definition_id, from_id, to_id, name
		FROM transition_definitions
		WHERE workflow_definition_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transition definitions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	transitions := make([]*models.TransitionDefinition, 0)

	for rows.Next() {
		transition := &models.TransitionDefinition{}

		err := rows.Scan(
			&transition.ID,
			&transition.WorkflowDefinitionID,
			&transition.FromID,
			&transition.ToID,
			&transition.Name,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition definition: %w", err)
		}

		transitions = append(transitions, transition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transition definitions: %w", err)
	}

	return transitions, nil
}

func (r *DefinitionRepository) DeleteTransitionDefinition(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transition_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transition definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrTransitionNotFound
	}

	return nil
}

// ReplaceGraph swaps the whole activity and transition set of a definition in
// one transaction.
func (r *DefinitionRepository) ReplaceGraph(
	ctx context.Context,
	definition *models.WorkflowDefinition,
	activities []*models.ActivityDefinition,
	transitions []*models.TransitionDefinition,
) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = r.replaceGraphTx(ctx, transaction, definition, activities, transitions)
	if err != nil {
		_ = transaction.Rollback()

		return err
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit graph replacement: %w", err)
	}

	return nil
}

func (r *DefinitionRepository) replaceGraphTx(
	ctx context.Context,
	transaction *sql.Tx,
	definition *models.WorkflowDefinition,
	activities []*models.ActivityDefinition,
	transitions []*models.TransitionDefinition,
) error {
	now := time.Now().UTC()

	if definition.ID == "" {
		definition.ID = uuid.New().String()
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	_, err := transaction.ExecContext(ctx, `
		INSERT INTO workflow_definitions (id, name, first_activity_id, created_at, updated_at)
		VALUES ($1, $2, NULL, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			first_activity_id = NULL,
			updated_at = EXCLUDED.updated_at
	`, definition.ID, definition.Name, definition.CreatedAt, definition.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}

	_, err = transaction.ExecContext(ctx,
		`DELETE FROM transition_definitions WHERE workflow_definition_id = $1`, definition.ID)
	if err != nil {
		return fmt.Errorf("failed to clear transition definitions: %w", err)
	}

	_, err = transaction.ExecContext(ctx,
		`DELETE FROM activity_definitions WHERE workflow_definition_id = $1`, definition.ID)
	if err != nil {
		return fmt.Errorf("failed to clear activity definitions: %w", err)
	}

	for _, activity := range activities {
		if activity.ID == "" {
			activity.ID = uuid.New().String()
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO activity_definitions (id, workflow_definition_id, name, position, multiplicity)
			VALUES ($1, $2, $3, $4, $5)
		`, activity.ID, definition.ID, activity.Name, nullableInt(activity.Position), activity.Multiplicity)
		if err != nil {
			return fmt.Errorf("failed to insert activity definition: %w", err)
		}
	}

	for _, transition := range transitions {
		if transition.ID == "" {
			transition.ID = uuid.New().String()
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO transition_definitions (id, workflow_definition_id, from_id, to_id, name)
			VALUES ($1, $2, $3, $4, $5)
		`, transition.ID, definition.ID, transition.FromID, transition.ToID, transition.Name)
		if err != nil {
			return fmt.Errorf("failed to insert transition definition: %w", err)
		}
	}

	_, err = transaction.ExecContext(ctx, `
		UPDATE workflow_definitions SET first_activity_id = NULLIF($2, '')::uuid WHERE id = $1
	`, definition.ID, definition.FirstActivityID)
	if err != nil {
		return fmt.Errorf("failed to set first activity: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivityDefinition(row rowScanner) (*models.ActivityDefinition, error) {
	activity := &models.ActivityDefinition{}

	var position sql.NullInt64

	err := row.Scan(
		&activity.ID,
		&activity.WorkflowDefinitionID,
		&activity.Name,
		&position,
		&activity.Multiplicity,
	)
	if err != nil {
		return nil, err
	}

	if position.Valid {
		value := int(position.Int64)
		activity.Position = &value
	}

	return activity, nil
}

func nullableInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(*value), Valid: true}
}
