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

// instanceDocument is the on-disk shape of one workflow instance with its
// activities and decisions.
type instanceDocument struct {
	Instance   *models.WorkflowInstance `json:"instance"`
	Activities []*models.Activity       `json:"activities"`
	Decisions  []*models.Decision       `json:"decisions"`
}

// InstanceRepository stores each workflow instance in one JSON document.
type InstanceRepository struct {
	root string
}

func (r *InstanceRepository) path(id string) string {
	return filepath.Join(r.root, "instances", id+".json")
}

func (r *InstanceRepository) load(id string) (*instanceDocument, error) {
	var doc instanceDocument
	if err := readDocument(r.path(id), &doc, persistence.ErrInstanceNotFound); err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *InstanceRepository) loadAll() ([]*instanceDocument, error) {
	ids, err := listDocuments(filepath.Join(r.root, "instances"))
	if err != nil {
		return nil, err
	}

	docs := make([]*instanceDocument, 0, len(ids))

	for _, id := range ids {
		doc, err := r.load(id)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (r *InstanceRepository) SaveInstance(_ context.Context, inst *models.WorkflowInstance) error {
	now := time.Now().UTC()

	if inst.ID == "" {
		inst.ID = uuid.New().String()
		inst.CreatedAt = now
	}

	inst.UpdatedAt = now

	doc, err := r.load(inst.ID)
	if err != nil {
		doc = &instanceDocument{}
	}

	doc.Instance = inst

	return writeDocument(r.path(inst.ID), doc)
}

func (r *InstanceRepository) InstanceByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	doc, err := r.load(id)
	if err != nil {
		return nil, err
	}

	return doc.Instance, nil
}

func (r *InstanceRepository) InstancesByDefinition(_ context.Context, workflowDefinitionID string) ([]*models.WorkflowInstance, error) {
	docs, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	instances := make([]*models.WorkflowInstance, 0)

	for _, doc := range docs {
		if doc.Instance.WorkflowDefinitionID == workflowDefinitionID {
			instances = append(instances, doc.Instance)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})

	return instances, nil
}

func (r *InstanceRepository) DeleteInstance(_ context.Context, id string) error {
	err := os.Remove(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrInstanceNotFound
		}

		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}

	return nil
}

func (r *InstanceRepository) SaveActivity(_ context.Context, activity *models.Activity) error {
	doc, err := r.load(activity.WorkflowInstanceID)
	if err != nil {
		return err
	}

	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
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

	return writeDocument(r.path(activity.WorkflowInstanceID), doc)
}

func (r *InstanceRepository) ActivityByID(_ context.Context, id string) (*models.Activity, error) {
	docs, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		for _, activity := range doc.Activities {
			if activity.ID == id {
				return activity, nil
			}
		}
	}

	return nil, persistence.ErrActivityNotFound
}

func (r *InstanceRepository) ActivitiesByInstance(_ context.Context, instanceID string) ([]*models.Activity, error) {
	doc, err := r.load(instanceID)
	if err != nil {
		return nil, err
	}

	return doc.Activities, nil
}

func (r *InstanceRepository) ActivitiesByDefinitionIDs(_ context.Context, definitionIDs []string) ([]*models.Activity, error) {
	wanted := make(map[string]struct{}, len(definitionIDs))
	for _, id := range definitionIDs {
		wanted[id] = struct{}{}
	}

	docs, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	activities := make([]*models.Activity, 0)

	for _, doc := range docs {
		for _, activity := range doc.Activities {
			if _, ok := wanted[activity.ActivityDefinitionID]; ok {
				activities = append(activities, activity)
			}
		}
	}

	return activities, nil
}

func (r *InstanceRepository) SaveDecision(_ context.Context, decision *models.Decision) error {
	docs, err := r.loadAll()
	if err != nil {
		return err
	}

	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}

	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}

	for _, doc := range docs {
		for _, activity := range doc.Activities {
			if activity.ID != decision.ActivityID {
				continue
			}

			doc.Decisions = append(doc.Decisions, decision)

			return writeDocument(r.path(doc.Instance.ID), doc)
		}
	}

	return persistence.ErrActivityNotFound
}

func (r *InstanceRepository) DecisionsByActivity(_ context.Context, activityID string) ([]*models.Decision, error) {
	docs, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	decisions := make([]*models.Decision, 0)

	for _, doc := range docs {
		for _, decision := range doc.Decisions {
			if decision.ActivityID == activityID {
				decisions = append(decisions, decision)
			}
		}
	}

	return decisions, nil
}

func (r *InstanceRepository) DecisionsByInstance(_ context.Context, instanceID string) ([]*models.Decision, error) {
	doc, err := r.load(instanceID)
	if err != nil {
		return nil, err
	}

	return doc.Decisions, nil
}

// ApplyRecalculation applies the diff document by document, so every touched
// instance is rewritten exactly once.
func (r *InstanceRepository) ApplyRecalculation(_ context.Context, batch *persistence.RecalculationBatch) error {
	touched := make(map[string]*instanceDocument)

	loadOnce := func(instanceID string) (*instanceDocument, error) {
		if doc, ok := touched[instanceID]; ok {
			return doc, nil
		}

		doc, err := r.load(instanceID)
		if err != nil {
			return nil, err
		}

		touched[instanceID] = doc

		return doc, nil
	}

	for _, activity := range batch.ActivitiesCreate {
		doc, err := loadOnce(activity.WorkflowInstanceID)
		if err != nil {
			return err
		}

		doc.Activities = append(doc.Activities, activity)
	}

	for _, activity := range batch.ActivitiesCreateUpdateCurrentActivity {
		doc, err := loadOnce(activity.WorkflowInstanceID)
		if err != nil {
			return err
		}

		doc.Activities = append(doc.Activities, activity)
		doc.Instance.CurrentActivityID = activity.ID
		doc.Instance.UpdatedAt = time.Now().UTC()
	}

	for _, activity := range batch.ActivitiesUpdateIsAuto {
		doc, err := loadOnce(activity.WorkflowInstanceID)
		if err != nil {
			return err
		}

		for index, existing := range doc.Activities {
			if existing.ID == activity.ID {
				doc.Activities[index] = activity

				break
			}
		}
	}

	for _, inst := range batch.WorkflowsUpdateCurrentActivity {
		doc, err := loadOnce(inst.ID)
		if err != nil {
			return err
		}

		doc.Instance.CurrentActivityID = inst.CurrentActivityID
		doc.Instance.UpdatedAt = time.Now().UTC()
	}

	for _, doc := range touched {
		if err := writeDocument(r.path(doc.Instance.ID), doc); err != nil {
			return err
		}
	}

	return nil
}
