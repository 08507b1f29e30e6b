package models

import "time"

// Operator is the comparison applied between a context field and a condition
// or filter expression.
type Operator string

const (
	OperatorEquals      Operator = "eq"
	OperatorNotEquals   Operator = "ne"
	OperatorGreater     Operator = "gt"
	OperatorGreaterOrEq Operator = "gte"
	OperatorLess        Operator = "lt"
	OperatorLessOrEq    Operator = "lte"
	OperatorContains    Operator = "contains"
	OperatorIn          Operator = "in"

	// OperatorExpr evaluates the condition expression as a boolean expr-lang
	// program against the business object; the field is ignored.
	OperatorExpr Operator = "expr"
)

// RuleDefinition is a named rule weakly attached to an item (an activity
// definition id). A rule is satisfied iff all of its conditions hold.
type RuleDefinition struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id" validate:"required"`
	Label     string    `json:"label"   validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

// ConditionDefinition is one predicate of a rule. Conditions of the same rule
// are AND-combined.
type ConditionDefinition struct {
	ID         string   `json:"id"`
	RuleID     string   `json:"rule_id"    validate:"required"`
	Field      string   `json:"field"`
	Operator   Operator `json:"operator"   validate:"required"`
	Expression string   `json:"expression"`
}

// SelectorDefinition binds an item to a target account group, gated by
// filters. GroupTag is an arbitrary label used for bulk removal only; it is
// unrelated to AccountGroupID, the group whose accounts become eligible.
type SelectorDefinition struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"item_id"          validate:"required"`
	AccountGroupID string    `json:"account_group_id" validate:"required"`
	GroupTag       string    `json:"group_tag,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FilterDefinition is one predicate of a selector, AND-combined within it.
// It shares the field/operator/expression model with ConditionDefinition.
type FilterDefinition struct {
	ID         string   `json:"id"`
	SelectorID string   `json:"selector_id" validate:"required"`
	Field      string   `json:"field"`
	Operator   Operator `json:"operator"    validate:"required"`
	Expression string   `json:"expression"`
}

// RuleContext is the evaluation-time bundle passed into every condition and
// filter check: the business object under evaluation plus named constants
// substituted into expressions.
type RuleContext struct {
	Item      map[string]any `json:"item"`
	Constants map[string]any `json:"constants,omitempty"`
}

// Constant returns the named constant and whether it is defined.
func (c RuleContext) Constant(key string) (any, bool) {
	if c.Constants == nil {
		return nil, false
	}

	value, ok := c.Constants[key]

	return value, ok
}
