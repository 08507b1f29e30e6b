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

// InstanceRepository handles workflow instance, activity and decision storage.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *InstanceRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func (r *InstanceRepository) SaveInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	now := time.Now().UTC()

	if instance.ID == "" {
		instance.ID = uuid.New().String()
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	query := `
		INSERT INTO workflow_instances (id, workflow_definition_id, item_id, status, current_activity_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_activity_id = EXCLUDED.current_activity_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.WorkflowDefinitionID,
		instance.ItemID,
		instance.Status,
		instance.CurrentActivityID,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow instance: %w", err)
	}

	return nil
}

const instanceColumns = `id, workflow_definition_id, item_id, status, COALESCE(current_activity_id::text, ''), created_at, updated_at`

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	instance := &models.WorkflowInstance{}

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowDefinitionID,
		&instance.ItemID,
		&instance.Status,
		&instance.CurrentActivityID,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

func (r *InstanceRepository) InstanceByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
	}

	return instance, nil
}

func (r *InstanceRepository) InstancesByDefinition(ctx context.Context, workflowDefinitionID string) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE workflow_definition_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, workflowDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow instances: %w", err)
	}

	defer r.closeRows(ctx, rows)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow instances: %w", err)
	}

	return instances, nil
}

func (r *InstanceRepository) DeleteInstance(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrInstanceNotFound
	}

	return nil
}

func (r *InstanceRepository) SaveActivity(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO activities (id, activity_definition_id, workflow_instance_id, is_auto, is_valid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			is_auto = EXCLUDED.is_auto,
			is_valid = EXCLUDED.is_valid
	`

	_, err := r.db.ExecContext(ctx, query,
		activity.ID,
		activity.ActivityDefinitionID,
		activity.WorkflowInstanceID,
		activity.IsAuto,
		activity.IsValid,
		activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save activity: %w", err)
	}

	return nil
}

const activityColumns = `id, activity_definition_id, workflow_instance_id, is_auto, is_valid, created_at`

func scanActivity(row rowScanner) (*models.Activity, error) {
	activity := &models.Activity{}

	err := row.Scan(
		&activity.ID,
		&activity.ActivityDefinitionID,
		&activity.WorkflowInstanceID,
		&activity.IsAuto,
		&activity.IsValid,
		&activity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return activity, nil
}

func (r *InstanceRepository) ActivityByID(ctx context.Context, id string) (*models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`

	activity, err := scanActivity(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrActivityNotFound
		}

		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}

	return activity, nil
}

func (r *InstanceRepository) ActivitiesByInstance(ctx context.Context, instanceID string) ([]*models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE workflow_instance_id = $1 ORDER BY created_at`

	return r.queryActivities(ctx, query, instanceID)
}

func (r *InstanceRepository) ActivitiesByDefinitionIDs(ctx context.Context, definitionIDs []string) ([]*models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE activity_definition_id = ANY($1::uuid[]) ORDER BY created_at`

	return r.queryActivities(ctx, query, pq.Array(definitionIDs))
}

func (r *InstanceRepository) queryActivities(ctx context.Context, query string, args ...any) ([]*models.Activity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}

	defer r.closeRows(ctx, rows)

	activities := make([]*models.Activity, 0)

	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}

		activities = append(activities, activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}

func (r *InstanceRepository) SaveDecision(ctx context.Context, decision *models.Decision) error {
	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}

	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO decisions (id, activity_id, username, choice, comments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		decision.ID,
		decision.ActivityID,
		decision.Username,
		decision.Choice,
		decision.Comments,
		decision.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}

	return nil
}

func (r *InstanceRepository) DecisionsByActivity(ctx context.Context, activityID string) ([]*models.Decision, error) {
	query := `
		SELECT id, activity_id, username, choice, COALESCE(comments, ''), created_at
		FROM decisions
		WHERE activity_id = $1
		ORDER BY created_at
	`

	return r.queryDecisions(ctx, query, activityID)
}

func (r *InstanceRepository) DecisionsByInstance(ctx context.Context, instanceID string) ([]*models.Decision, error) {
	query := `
		SELECT d.id, d.activity_id, d.username, d.choice, COALESCE(d.comments, ''), d.created_at
		FROM decisions d
		JOIN activities a ON a.id = d.activity_id
		WHERE a.workflow_instance_id = $1
		ORDER BY d.created_at
	`

	return r.queryDecisions(ctx, query, instanceID)
}

func (r *InstanceRepository) queryDecisions(ctx context.Context, query string, args ...any) ([]*models.Decision, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	decisions := make([]*models.Decision, 0)

	for rows.Next() {
		decision := &models.Decision{}

		err := rows.Scan(
			&decision.ID,
			&decision.ActivityID,
			&decision.Username,
			&decision.Choice,
			&decision.Comments,
			&decision.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}

		decisions = append(decisions, decision)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}

	return decisions, nil
}

// ApplyRecalculation applies the whole recalculation diff in one transaction,
// so a batch either lands completely or not at all.
func (r *InstanceRepository) ApplyRecalculation(ctx context.Context, batch *persistence.RecalculationBatch) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = r.applyRecalculationTx(ctx, transaction, batch)
	if err != nil {
		_ = transaction.Rollback()

		return err
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit recalculation batch: %w", err)
	}

	return nil
}

func (r *InstanceRepository) applyRecalculationTx(ctx context.Context, transaction *sql.Tx, batch *persistence.RecalculationBatch) error {
	insertActivity := `
		INSERT INTO activities (id, activity_definition_id, workflow_instance_id, is_auto, is_valid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	updatePointer := `
		UPDATE workflow_instances SET current_activity_id = NULLIF($2, '')::uuid, updated_at = NOW() WHERE id = $1
	`

	for _, activity := range append(batch.ActivitiesCreate, batch.ActivitiesCreateUpdateCurrentActivity...) {
		if activity.ID == "" {
			activity.ID = uuid.New().String()
		}

		if activity.CreatedAt.IsZero() {
			activity.CreatedAt = time.Now().UTC()
		}

		_, err := transaction.ExecContext(ctx, insertActivity,
			activity.ID,
			activity.ActivityDefinitionID,
			activity.WorkflowInstanceID,
			activity.IsAuto,
			activity.IsValid,
			activity.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert activity: %w", err)
		}
	}

	for _, activity := range batch.ActivitiesCreateUpdateCurrentActivity {
		_, err := transaction.ExecContext(ctx, updatePointer, activity.WorkflowInstanceID, activity.ID)
		if err != nil {
			return fmt.Errorf("failed to move current activity: %w", err)
		}
	}

	for _, activity := range batch.ActivitiesUpdateIsAuto {
		_, err := transaction.ExecContext(ctx,
			`UPDATE activities SET is_auto = $2, is_valid = $3 WHERE id = $1`,
			activity.ID, activity.IsAuto, activity.IsValid,
		)
		if err != nil {
			return fmt.Errorf("failed to update activity flags: %w", err)
		}
	}

	for _, instance := range batch.WorkflowsUpdateCurrentActivity {
		_, err := transaction.ExecContext(ctx, updatePointer, instance.ID, instance.CurrentActivityID)
		if err != nil {
			return fmt.Errorf("failed to move current activity: %w", err)
		}
	}

	return nil
}
