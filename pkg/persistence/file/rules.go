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

// ruleDocument stores one rule with its conditions in a single JSON file.
type ruleDocument struct {
	Rule       *models.RuleDefinition        `json:"rule"`
	Conditions []*models.ConditionDefinition `json:"conditions"`
}

type RuleRepository struct {
	root string
}

func (r *RuleRepository) path(id string) string {
	return filepath.Join(r.root, "rules", id+".json")
}

func (r *RuleRepository) load(id string) (*ruleDocument, error) {
	var doc ruleDocument
	if err := readDocument(r.path(id), &doc, persistence.ErrRuleNotFound); err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *RuleRepository) loadAll() ([]*ruleDocument, error) {
	ids, err := listDocuments(filepath.Join(r.root, "rules"))
	if err != nil {
		return nil, err
	}

	docs := make([]*ruleDocument, 0, len(ids))

	for _, id := range ids {
		doc, err := r.load(id)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (r *RuleRepository) SaveRule(_ context.Context, rule *models.RuleDefinition) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	doc, err := r.load(rule.ID)
	if err != nil {
		doc = &ruleDocument{}
	}

	doc.Rule = rule

	return writeDocument(r.path(rule.ID), doc)
}

func (r *RuleRepository) RuleByID(_ context.Context, id string) (*models.RuleDefinition, error) {
	doc, err := r.load(id)
	if err != nil {
		return nil, err
	}

	return doc.Rule, nil
}

func (r *RuleRepository) RulesByItem(ctx context.Context, itemID string) ([]*models.RuleDefinition, error) {
	byItem, err := r.RulesByItemIDs(ctx, []string{itemID})
	if err != nil {
		return nil, err
	}

	return byItem[itemID], nil
}

func (r *RuleRepository) RulesByItemIDs(_ context.Context, itemIDs []string) (map[string][]*models.RuleDefinition, error) {
	wanted := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = struct{}{}
	}

	docs, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	byItem := make(map[string][]*models.RuleDefinition)

	for _, doc := range docs {
		if _, ok := wanted[doc.Rule.ItemID]; ok {
			byItem[doc.Rule.ItemID] = append(byItem[doc.Rule.ItemID], doc.Rule)
		}
	}

	for _, rules := range byItem {
		sort.Slice(rules, func(i, j int) bool {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		})
	}

	return byItem, nil
}

func (r *RuleRepository) DeleteRule(_ context.Context, id string) error {
	err := os.Remove(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrRuleNotFound
		}

		return err
	}

	return nil
}

func (r *RuleRepository) SaveCondition(_ context.Context, condition *models.ConditionDefinition) error {
	doc, err := r.load(condition.RuleID)
	if err != nil {
		return err
	}

	if condition.ID == "" {
		condition.ID = uuid.New().String()
	}

	replaced := false

	for index, existing := range doc.Conditions {
		if existing.ID == condition.ID {
			doc.Conditions[index] = condition
			replaced = true

			break
		}
	}

	if !replaced {
		doc.Conditions = append(doc.Conditions, condition)
	}

	return writeDocument(r.path(condition.RuleID), doc)
}

func (r *RuleRepository) ConditionsByRule(_ context.Context, ruleID string) ([]*models.ConditionDefinition, error) {
	doc, err := r.load(ruleID)
	if err != nil {
		return nil, err
	}

	return doc.Conditions, nil
}

func (r *RuleRepository) ConditionsByRuleIDs(_ context.Context, ruleIDs []string) (map[string][]*models.ConditionDefinition, error) {
	byRule := make(map[string][]*models.ConditionDefinition, len(ruleIDs))

	for _, ruleID := range ruleIDs {
		doc, err := r.load(ruleID)
		if err != nil {
			return nil, err
		}

		byRule[ruleID] = doc.Conditions
	}

	return byRule, nil
}

func (r *RuleRepository) DeleteCondition(_ context.Context, id string) error {
	docs, err := r.loadAll()
	if err != nil {
		return err
	}

	for _, doc := range docs {
		for index, condition := range doc.Conditions {
			if condition.ID != id {
				continue
			}

			doc.Conditions = append(doc.Conditions[:index], doc.Conditions[index+1:]...)

			return writeDocument(r.path(doc.Rule.ID), doc)
		}
	}

	return persistence.ErrRuleNotFound
}

// FindRulesByCriteria returns every rule carrying a condition with the exact
// field, operator and expression.
func (r *RuleRepository) FindRulesByCriteria(_ context.Context, criteria persistence.RuleCriteria) ([]*models.RuleDefinition, error) {
	docs, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	rules := make([]*models.RuleDefinition, 0)

	for _, doc := range docs {
		for _, condition := range doc.Conditions {
			if condition.Field == criteria.Field &&
				condition.Operator == criteria.Operator &&
				condition.Expression == criteria.Expression {
				rules = append(rules, doc.Rule)

				break
			}
		}
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})

	return rules, nil
}
