package services

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/veriflow-io/veriflow/pkg/eventbus"
	"github.com/veriflow-io/veriflow/pkg/events"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
)

// Rules manages rule, condition, selector and filter configuration.
type Rules struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
}

// NewRules creates a new rules service.
func NewRules(store persistence.Persistence, publisher eventbus.EventPublisher) *Rules {
	return &Rules{
		persistence: store,
		publisher:   publisher,
		validate:    validator.New(),
	}
}

// CreateRuleRequest binds a new rule to an item.
type CreateRuleRequest struct {
	ItemID string `json:"item_id" validate:"required"`
	Label  string `json:"label"   validate:"required"`
}

func (s *Rules) CreateRule(ctx context.Context, req CreateRuleRequest) (*models.RuleDefinition, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("CreateRule", "INVALID_RULE", err.Error(), ErrRuleLabelRequired)
	}

	rule := &models.RuleDefinition{ItemID: req.ItemID, Label: req.Label}

	err := s.persistence.Rules().SaveRule(ctx, rule)
	if err != nil {
		return nil, err
	}

	return rule, nil
}

func (s *Rules) GetRule(ctx context.Context, id string) (*models.RuleDefinition, error) {
	return s.persistence.Rules().RuleByID(ctx, id)
}

func (s *Rules) RulesByItem(ctx context.Context, itemID string) ([]*models.RuleDefinition, error) {
	return s.persistence.Rules().RulesByItem(ctx, itemID)
}

func (s *Rules) DeleteRule(ctx context.Context, id string) error {
	return s.persistence.Rules().DeleteRule(ctx, id)
}

// AddConditionRequest adds a predicate to a rule.
type AddConditionRequest struct {
	Field      string          `json:"field"`
	Operator   models.Operator `json:"operator" validate:"required"`
	Expression string          `json:"expression"`
}

func (s *Rules) AddCondition(ctx context.Context, ruleID string, req AddConditionRequest) (*models.ConditionDefinition, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("AddCondition", "INVALID_CONDITION", err.Error(), ErrOperatorRequired)
	}

	if _, err := s.persistence.Rules().RuleByID(ctx, ruleID); err != nil {
		return nil, err
	}

	condition := &models.ConditionDefinition{
		RuleID:     ruleID,
		Field:      req.Field,
		Operator:   req.Operator,
		Expression: req.Expression,
	}

	err := s.persistence.Rules().SaveCondition(ctx, condition)
	if err != nil {
		return nil, err
	}

	return condition, nil
}

func (s *Rules) ConditionsByRule(ctx context.Context, ruleID string) ([]*models.ConditionDefinition, error) {
	return s.persistence.Rules().ConditionsByRule(ctx, ruleID)
}

func (s *Rules) DeleteCondition(ctx context.Context, id string) error {
	return s.persistence.Rules().DeleteCondition(ctx, id)
}

// CreateSelectorRequest binds an item to an account group.
type CreateSelectorRequest struct {
	ItemID         string `json:"item_id"          validate:"required"`
	AccountGroupID string `json:"account_group_id" validate:"required"`
	GroupTag       string `json:"group_tag,omitempty"`
}

func (s *Rules) CreateSelector(ctx context.Context, req CreateSelectorRequest) (*models.SelectorDefinition, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("CreateSelector", "INVALID_SELECTOR", err.Error(), ErrAccountGroupRequired)
	}

	selector := &models.SelectorDefinition{
		ItemID:         req.ItemID,
		AccountGroupID: req.AccountGroupID,
		GroupTag:       req.GroupTag,
	}

	err := s.persistence.Selectors().SaveSelector(ctx, selector)
	if err != nil {
		return nil, err
	}

	return selector, nil
}

func (s *Rules) GetSelector(ctx context.Context, id string) (*models.SelectorDefinition, error) {
	return s.persistence.Selectors().SelectorByID(ctx, id)
}

func (s *Rules) SelectorsByItem(ctx context.Context, itemID string) ([]*models.SelectorDefinition, error) {
	return s.persistence.Selectors().SelectorsByItem(ctx, itemID)
}

func (s *Rules) DeleteSelector(ctx context.Context, id string) error {
	return s.persistence.Selectors().DeleteSelector(ctx, id)
}

// AddFilterRequest adds a predicate to a selector.
type AddFilterRequest struct {
	Field      string          `json:"field"`
	Operator   models.Operator `json:"operator" validate:"required"`
	Expression string          `json:"expression"`
}

func (s *Rules) AddFilter(ctx context.Context, selectorID string, req AddFilterRequest) (*models.FilterDefinition, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("AddFilter", "INVALID_FILTER", err.Error(), ErrOperatorRequired)
	}

	if _, err := s.persistence.Selectors().SelectorByID(ctx, selectorID); err != nil {
		return nil, err
	}

	filter := &models.FilterDefinition{
		SelectorID: selectorID,
		Field:      req.Field,
		Operator:   req.Operator,
		Expression: req.Expression,
	}

	err := s.persistence.Selectors().SaveFilter(ctx, filter)
	if err != nil {
		return nil, err
	}

	return filter, nil
}

func (s *Rules) FiltersBySelector(ctx context.Context, selectorID string) ([]*models.FilterDefinition, error) {
	return s.persistence.Selectors().FiltersBySelector(ctx, selectorID)
}

func (s *Rules) DeleteFilter(ctx context.Context, id string) error {
	return s.persistence.Selectors().DeleteFilter(ctx, id)
}

// RemoveSelectorsByGroupTag bulk-removes every selector tagged with the
// group tag, together with its filters.
func (s *Rules) RemoveSelectorsByGroupTag(ctx context.Context, groupTag string) error {
	if groupTag == "" {
		return NewValidationError("RemoveSelectorsByGroupTag", "GROUP_TAG_REQUIRED",
			"group tag is required", ErrGroupTagRequired)
	}

	err := s.persistence.Selectors().RemoveSelectorsFiltersByGroupTag(ctx, groupTag)
	if err != nil {
		return err
	}

	if s.publisher != nil {
		event := events.SelectorsRemoved{
			BaseEvent: events.BaseEvent{
				Type:      events.SelectorsRemovedEvent,
				Timestamp: time.Now().UTC(),
			},
			GroupTag: groupTag,
		}

		_ = s.publisher.Publish(ctx, groupTag, event)
	}

	return nil
}

// FindRulesByCriteria returns the rules carrying a condition with the exact
// field, operator and expression.
func (s *Rules) FindRulesByCriteria(ctx context.Context, criteria persistence.RuleCriteria) ([]*models.RuleDefinition, error) {
	return s.persistence.Rules().FindRulesByCriteria(ctx, criteria)
}

// FindActivitiesByCriteria resolves the matched rules back to the live
// activities of their items: the reverse lookup from a condition to the
// workflow steps it currently gates.
func (s *Rules) FindActivitiesByCriteria(ctx context.Context, criteria persistence.RuleCriteria) ([]*models.Activity, error) {
	matched, err := s.persistence.Rules().FindRulesByCriteria(ctx, criteria)
	if err != nil {
		return nil, err
	}

	if len(matched) == 0 {
		return []*models.Activity{}, nil
	}

	itemIDs := make([]string, 0, len(matched))
	seen := make(map[string]struct{}, len(matched))

	for _, rule := range matched {
		if _, ok := seen[rule.ItemID]; ok {
			continue
		}

		seen[rule.ItemID] = struct{}{}
		itemIDs = append(itemIDs, rule.ItemID)
	}

	return s.persistence.Instances().ActivitiesByDefinitionIDs(ctx, itemIDs)
}
