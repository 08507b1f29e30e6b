package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/testutil"
)

func contextWithItem(item map[string]any) models.RuleContext {
	return models.RuleContext{Item: item}
}

func TestIsRuleValid_NoRules(t *testing.T) {
	engine := NewEngine()

	valid, err := engine.IsRuleValid(nil, nil, contextWithItem(map[string]any{"division": "BTL"}))
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestIsRuleValid_ZeroConditionsNeverSatisfied(t *testing.T) {
	engine := NewEngine()
	rule := testutil.CreateTestRule("item-1")

	valid, err := engine.IsRuleValid(
		[]*models.RuleDefinition{rule},
		map[string][]*models.ConditionDefinition{},
		contextWithItem(map[string]any{"division": "BTL"}),
	)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestIsRuleValid_AllConditionsMustHold(t *testing.T) {
	engine := NewEngine()
	rule := testutil.CreateTestRule("item-1")
	conditions := map[string][]*models.ConditionDefinition{
		rule.ID: {
			testutil.CreateTestCondition(rule.ID, "division", models.OperatorEquals, "BTL"),
			testutil.CreateTestCondition(rule.ID, "entity", models.OperatorEquals, "ENT_1"),
		},
	}

	valid, err := engine.IsRuleValid(
		[]*models.RuleDefinition{rule},
		conditions,
		contextWithItem(map[string]any{"division": "BTL", "entity": "ENT_1"}),
	)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = engine.IsRuleValid(
		[]*models.RuleDefinition{rule},
		conditions,
		contextWithItem(map[string]any{"division": "BTL", "entity": "ENT_2"}),
	)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestIsRuleValid_AnyRuleSuffices(t *testing.T) {
	engine := NewEngine()
	failing := testutil.CreateTestRule("item-1")
	passing := testutil.CreateTestRule("item-1")
	conditions := map[string][]*models.ConditionDefinition{
		failing.ID: {
			testutil.CreateTestCondition(failing.ID, "division", models.OperatorEquals, "ATL"),
		},
		passing.ID: {
			testutil.CreateTestCondition(passing.ID, "amount", models.OperatorGreater, "100"),
		},
	}

	valid, err := engine.IsRuleValid(
		[]*models.RuleDefinition{failing, passing},
		conditions,
		contextWithItem(map[string]any{"division": "BTL", "amount": 250}),
	)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestEvaluatePredicate_Operators(t *testing.T) {
	engine := NewEngine()
	rctx := contextWithItem(map[string]any{
		"division": "BTL",
		"amount":   float64(150),
		"country":  "FR",
		"label":    "north-west",
	})

	tests := []struct {
		name       string
		field      string
		operator   models.Operator
		expression string
		expected   bool
	}{
		{"eq match", "division", models.OperatorEquals, "BTL", true},
		{"eq mismatch", "division", models.OperatorEquals, "ATL", false},
		{"ne", "division", models.OperatorNotEquals, "ATL", true},
		{"gt", "amount", models.OperatorGreater, "100", true},
		{"gte boundary", "amount", models.OperatorGreaterOrEq, "150", true},
		{"lt", "amount", models.OperatorLess, "100", false},
		{"lte boundary", "amount", models.OperatorLessOrEq, "150", true},
		{"contains", "label", models.OperatorContains, "west", true},
		{"in", "country", models.OperatorIn, "DE, FR, IT", true},
		{"in miss", "country", models.OperatorIn, "DE, IT", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.EvaluatePredicate(tt.field, tt.operator, tt.expression, rctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluatePredicate_ConstantSubstitution(t *testing.T) {
	engine := NewEngine()
	rctx := models.RuleContext{
		Item:      map[string]any{"amount": 500},
		Constants: map[string]any{"APPROVAL_THRESHOLD": 400},
	}

	result, err := engine.EvaluatePredicate("amount", models.OperatorGreater, "APPROVAL_THRESHOLD", rctx)
	require.NoError(t, err)
	assert.True(t, result)

	// An expression that names no constant stays literal.
	result, err = engine.EvaluatePredicate("amount", models.OperatorGreater, "600", rctx)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluatePredicate_UnknownField(t *testing.T) {
	engine := NewEngine()

	_, err := engine.EvaluatePredicate("missing", models.OperatorEquals, "x", contextWithItem(map[string]any{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.True(t, IsConfigurationError(err))
}

func TestEvaluatePredicate_UnknownOperator(t *testing.T) {
	engine := NewEngine()

	_, err := engine.EvaluatePredicate("division", models.Operator("between"), "a,b",
		contextWithItem(map[string]any{"division": "BTL"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperator)
	assert.True(t, IsConfigurationError(err))
}

func TestEvaluatePredicate_Expr(t *testing.T) {
	engine := NewEngine()
	rctx := models.RuleContext{
		Item:      map[string]any{"amount": 500, "division": "BTL"},
		Constants: map[string]any{"LIMIT": 400},
	}

	result, err := engine.EvaluatePredicate("", models.OperatorExpr,
		`amount > LIMIT && division == "BTL"`, rctx)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluatePredicate_ExprNotBoolean(t *testing.T) {
	engine := NewEngine()

	_, err := engine.EvaluatePredicate("", models.OperatorExpr, `amount + 1`,
		models.RuleContext{Item: map[string]any{"amount": 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotBoolean)
}

func TestEngine_ProgramCacheReuse(t *testing.T) {
	engine := NewEngine()
	rctx := models.RuleContext{Item: map[string]any{"amount": 10}}

	for range 3 {
		result, err := engine.EvaluatePredicate("", models.OperatorExpr, `amount < 20`, rctx)
		require.NoError(t, err)
		assert.True(t, result)
	}

	assert.Len(t, engine.programs, 1)
}
