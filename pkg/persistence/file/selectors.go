package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// selectorDocument stores one selector with its filters in a single JSON file.
type selectorDocument struct {
	Selector *models.SelectorDefinition `json:"selector"`
	Filters  []*models.FilterDefinition `json:"filters"`
}

type SelectorRepository struct {
	root string
}

func (r *SelectorRepository) path(id string) string {
	return filepath.Join(r.root, "selectors", id+".json")
}

func (r *SelectorRepository) load(id string) (*selectorDocument, error) {
	var doc selectorDocument
	if err := readDocument(r.path(id), &doc, persistence.ErrSelectorNotFound); err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *SelectorRepository) loadAll() ([]*selectorDocument, error) {
	ids, err := listDocuments(filepath.Join(r.root, "selectors"))
	if err != nil {
		return nil, err
	}

	docs := make([]*selectorDocument, 0, len(ids))

	for _, id := range ids {
		doc, err := r.load(id)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (r *SelectorRepository) SaveSelector(_ context.Context, selector *models.SelectorDefinition) error {
	if selector.ID == "" {
		selector.ID = uuid.New().String()
	}

	if selector.CreatedAt.IsZero() {
		selector.CreatedAt = time.Now().UTC()
	}

	doc, err := r.load(selector.ID)
	if err != nil {
		doc = &selectorDocument{}
	}

	doc.Selector = selector

	return writeDocument(r.path(selector.ID), doc)
}

func (r *SelectorRepository) SelectorByID(_ context.Context, id string) (*models.SelectorDefinition, error) {
	doc, err := r.load(id)
	if err != nil {
		return nil, err
	}

	return doc.Selector, nil
}

func (r *SelectorRepository) SelectorsByItem(ctx context.Context, itemID string) ([]*models.SelectorDefinition, error) {
	byItem, err := r.SelectorsByItemIDs(ctx, []string{itemID})
	if err != nil {
		return nil, err
	}

	return byItem[itemID], nil
}

func (r *SelectorRepository) SelectorsByItemIDs(_ context.Context, itemIDs []string) (map[string][]*models.SelectorDefinition, error) {
	wanted := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = struct{}{}
	}

	docs, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	byItem := make(map[string][]*models.SelectorDefinition)

	for _, doc := range docs {
		if _, ok := wanted[doc.Selector.ItemID]; ok {
			byItem[doc.Selector.ItemID] = append(byItem[doc.Selector.ItemID], doc.Selector)
		}
	}

	for _, selectors := range byItem {
		sort.Slice(selectors, func(i, j int) bool {
			return selectors[i].CreatedAt.Before(selectors[j].CreatedAt)
		})
	}

	return byItem, nil
}

func (r *SelectorRepository) DeleteSelector(_ context.Context, id string) error {
	err := os.Remove(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrSelectorNotFound
		}

		return err
	}

	return nil
}

func (r *SelectorRepository) SaveFilter(_ context.Context, filter *models.FilterDefinition) error {
	doc, err := r.load(filter.SelectorID)
	if err != nil {
		return err
	}

	if filter.ID == "" {
		filter.ID = uuid.New().String()
	}

	replaced := false

	for index, existing := range doc.Filters {
		if existing.ID == filter.ID {
			doc.Filters[index] = filter
			replaced = true

			break
		}
	}

	if !replaced {
		doc.Filters = append(doc.Filters, filter)
	}

	return writeDocument(r.path(filter.SelectorID), doc)
}

func (r *SelectorRepository) FiltersBySelector(_ context.Context, selectorID string) ([]*models.FilterDefinition, error) {
	doc, err := r.load(selectorID)
	if err != nil {
		return nil, err
	}

	return doc.Filters, nil
}

func (r *SelectorRepository) FiltersBySelectorIDs(_ context.Context, selectorIDs []string) (map[string][]*models.FilterDefinition, error) {
	bySelector := make(map[string][]*models.FilterDefinition, len(selectorIDs))

	for _, selectorID := range selectorIDs {
		doc, err := r.load(selectorID)
		if err != nil {
			return nil, err
		}

		bySelector[selectorID] = doc.Filters
	}

	return bySelector, nil
}

func (r *SelectorRepository) DeleteFilter(_ context.Context, id string) error {
	docs, err := r.loadAll()
	if err != nil {
		return err
	}

	for _, doc := range docs {
		for index, filter := range doc.Filters {
			if filter.ID != id {
				continue
			}

			doc.Filters = append(doc.Filters[:index], doc.Filters[index+1:]...)

			return writeDocument(r.path(doc.Selector.ID), doc)
		}
	}

	return persistence.ErrSelectorNotFound
}

// RemoveSelectorsFiltersByGroupTag deletes every selector document tagged with
// the given group tag. The filters live inside the document, so they go with
// it.
func (r *SelectorRepository) RemoveSelectorsFiltersByGroupTag(_ context.Context, groupTag string) error {
	docs, err := r.loadAll()
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if doc.Selector.GroupTag != groupTag {
			continue
		}

		if err := os.Remove(r.path(doc.Selector.ID)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}
