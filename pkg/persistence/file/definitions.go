package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// definitionDocument is the on-disk shape of one workflow definition graph.
type definitionDocument struct {
	Definition  *models.WorkflowDefinition     `json:"definition"`
	Activities  []*models.ActivityDefinition   `json:"activities"`
	Transitions []*models.TransitionDefinition `json:"transitions"`
}

// DefinitionRepository stores each workflow definition with its full graph in
// one JSON document.
type DefinitionRepository struct {
	root string
}

func (r *DefinitionRepository) path(id string) string {
	return filepath.Join(r.root, "definitions", id+".json")
}

func (r *DefinitionRepository) load(id string) (*definitionDocument, error) {
	var doc definitionDocument
	if err := readDocument(r.path(id), &doc, persistence.ErrDefinitionNotFound); err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *DefinitionRepository) SaveWorkflowDefinition(_ context.Context, definition *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if definition.ID == "" {
		definition.ID = uuid.New().String()
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	doc, err := r.load(definition.ID)
	if err != nil {
		doc = &definitionDocument{}
	}

	doc.Definition = definition

	return writeDocument(r.path(definition.ID), doc)
}

func (r *DefinitionRepository) WorkflowDefinitionByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	doc, err := r.load(id)
	if err != nil {
		return nil, err
	}

	return doc.Definition, nil
}

func (r *DefinitionRepository) ListWorkflowDefinitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	ids, err := listDocuments(filepath.Join(r.root, "definitions"))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowDefinition{}, nil
		}

		return nil, err
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		definition, err := r.WorkflowDefinitionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, definition)
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].CreatedAt.Before(definitions[j].CreatedAt)
	})

	return definitions, nil
}

func (r *DefinitionRepository) DeleteWorkflowDefinition(_ context.Context, id string) error {
	err := os.Remove(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrDefinitionNotFound
		}

		return fmt.Errorf("failed to delete definition %s: %w", id, err)
	}

	return nil
}

func (r *DefinitionRepository) SaveActivityDefinition(_ context.Context, activity *models.ActivityDefinition) error {
	doc, err := r.load(activity.WorkflowDefinitionID)
	if err != nil {
		return err
	}

	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	replaced := false

	for index, existing := range doc.Activities {
		if existing.ID == activity.ID {
			doc.Activities[index] = activity
			replaced = true

			break
		}
	}

	if !replaced {
		doc.Activities = append(doc.Activities, activity)
	}

	return writeDocument(r.path(activity.WorkflowDefinitionID), doc)
}

func (r *DefinitionRepository) ActivityDefinitionByID(ctx context.Context, id string) (*models.ActivityDefinition, error) {
	ids, err := listDocuments(filepath.Join(r.root, "definitions"))
	if err != nil {
		return nil, persistence.ErrActivityDefinitionNotFound
	}

	for _, definitionID := range ids {
		doc, err := r.load(definitionID)
		if err != nil {
			return nil, err
		}

		for _, activity := range doc.Activities {
			if activity.ID == id {
				return activity, nil
			}
		}
	}

	return nil, persistence.ErrActivityDefinitionNotFound
}

func (r *DefinitionRepository) ActivityDefinitionsByWorkflow(_ context.Context, workflowDefinitionID string) ([]*models.ActivityDefinition, error) {
	doc, err := r.load(workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	return doc.Activities, nil
}

func (r *DefinitionRepository) DeleteActivityDefinition(ctx context.Context, id string) error {
	activity, err := r.ActivityDefinitionByID(ctx, id)
	if err != nil {
		return err
	}

	doc, err := r.load(activity.WorkflowDefinitionID)
	if err != nil {
		return err
	}

	kept := doc.Activities[:0]

	for _, existing := range doc.Activities {
		if existing.ID != id {
			kept = append(kept, existing)
		}
	}

	doc.Activities = kept

	return writeDocument(r.path(activity.WorkflowDefinitionID), doc)
}

func (r *DefinitionRepository) SaveTransitionDefinition(_ context.Context, transition *models.TransitionDefinition) error {
	doc, err := r.load(transition.WorkflowDefinitionID)
	if err != nil {
		return err
	}

	if transition.ID == "" {
		transition.ID = uuid.New().String()
	}

	replaced := false

	for index, existing := range doc.Transitions {
		if existing.ID == transition.ID {
			doc.Transitions[index] = transition
			replaced = true

			break
		}
	}

	if !replaced {
		doc.Transitions = append(doc.Transitions, transition)
	}

	return writeDocument(r.path(transition.WorkflowDefinitionID), doc)
}

func (r *DefinitionRepository) TransitionsByWorkflow(_ context.Context, workflowDefinitionID string) ([]*models.TransitionDefinition, error) {
	doc, err := r.load(workflowDefinitionID)
	if err != nil {
		return nil, err
	}

	return doc.Transitions, nil
}

func (r *DefinitionRepository) DeleteTransitionDefinition(_ context.Context, id string) error {
	ids, err := listDocuments(filepath.Join(r.root, "definitions"))
	if err != nil {
		return persistence.ErrTransitionNotFound
	}

	for _, definitionID := range ids {
		doc, err := r.load(definitionID)
		if err != nil {
			return err
		}

		for index, transition := range doc.Transitions {
			if transition.ID != id {
				continue
			}

			doc.Transitions = append(doc.Transitions[:index], doc.Transitions[index+1:]...)

			return writeDocument(r.path(definitionID), doc)
		}
	}

	return persistence.ErrTransitionNotFound
}

func (r *DefinitionRepository) ReplaceGraph(
	_ context.Context,
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

	doc := &definitionDocument{
		Definition:  definition,
		Activities:  activities,
		Transitions: transitions,
	}

	return writeDocument(r.path(definition.ID), doc)
}
