package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/testutil"
)

func TestSaveRule_RoundTrip(t *testing.T) {
	store := NewPersistence(t.TempDir())

	rule := testutil.CreateTestRule("item-1")
	rule.ID = ""

	require.NoError(t, store.Rules().SaveRule(t.Context(), rule))
	assert.NotEmpty(t, rule.ID)

	stored, err := store.Rules().RuleByID(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "item-1", stored.ItemID)
	assert.Equal(t, "Test Rule", stored.Label)
}

func TestRuleByID_NotFound(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.Rules().RuleByID(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrRuleNotFound)
}

func TestRulesByItemIDs_GroupsByItem(t *testing.T) {
	store := NewPersistence(t.TempDir())

	for _, itemID := range []string{"item-1", "item-1", "item-2", "item-3"} {
		require.NoError(t, store.Rules().SaveRule(t.Context(), testutil.CreateTestRule(itemID)))
	}

	grouped, err := store.Rules().RulesByItemIDs(t.Context(), []string{"item-1", "item-2"})
	require.NoError(t, err)

	assert.Len(t, grouped["item-1"], 2)
	assert.Len(t, grouped["item-2"], 1)
	assert.Empty(t, grouped["item-3"])
}

func TestConditions_RoundTrip(t *testing.T) {
	store := NewPersistence(t.TempDir())

	rule := testutil.CreateTestRule("item-1")
	require.NoError(t, store.Rules().SaveRule(t.Context(), rule))

	condition := testutil.CreateTestCondition(rule.ID, "division", models.OperatorEquals, "BTL")
	require.NoError(t, store.Rules().SaveCondition(t.Context(), condition))

	conditions, err := store.Rules().ConditionsByRule(t.Context(), rule.ID)
	require.NoError(t, err)
	require.Len(t, conditions, 1)
	assert.Equal(t, models.OperatorEquals, conditions[0].Operator)

	grouped, err := store.Rules().ConditionsByRuleIDs(t.Context(), []string{rule.ID})
	require.NoError(t, err)
	assert.Len(t, grouped[rule.ID], 1)
}

func TestSaveCondition_UnknownRule(t *testing.T) {
	store := NewPersistence(t.TempDir())

	condition := testutil.CreateTestCondition("missing", "division", models.OperatorEquals, "BTL")
	err := store.Rules().SaveCondition(t.Context(), condition)
	assert.ErrorIs(t, err, persistence.ErrRuleNotFound)
}

func TestDeleteCondition(t *testing.T) {
	store := NewPersistence(t.TempDir())

	rule := testutil.CreateTestRule("item-1")
	require.NoError(t, store.Rules().SaveRule(t.Context(), rule))

	condition := testutil.CreateTestCondition(rule.ID, "division", models.OperatorEquals, "BTL")
	require.NoError(t, store.Rules().SaveCondition(t.Context(), condition))
	require.NoError(t, store.Rules().DeleteCondition(t.Context(), condition.ID))

	conditions, err := store.Rules().ConditionsByRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.Empty(t, conditions)
}

func TestDeleteRule_RemovesConditionsToo(t *testing.T) {
	store := NewPersistence(t.TempDir())

	rule := testutil.CreateTestRule("item-1")
	require.NoError(t, store.Rules().SaveRule(t.Context(), rule))
	require.NoError(t, store.Rules().SaveCondition(t.Context(),
		testutil.CreateTestCondition(rule.ID, "division", models.OperatorEquals, "BTL")))

	require.NoError(t, store.Rules().DeleteRule(t.Context(), rule.ID))

	_, err := store.Rules().RuleByID(t.Context(), rule.ID)
	assert.ErrorIs(t, err, persistence.ErrRuleNotFound)

	_, err = store.Rules().ConditionsByRule(t.Context(), rule.ID)
	assert.ErrorIs(t, err, persistence.ErrRuleNotFound)
}

func TestFindRulesByCriteria_ExactMatch(t *testing.T) {
	store := NewPersistence(t.TempDir())

	matching := testutil.CreateTestRule("item-1")
	require.NoError(t, store.Rules().SaveRule(t.Context(), matching))
	require.NoError(t, store.Rules().SaveCondition(t.Context(),
		testutil.CreateTestCondition(matching.ID, "division", models.OperatorEquals, "BTL")))

	other := testutil.CreateTestRule("item-2")
	require.NoError(t, store.Rules().SaveRule(t.Context(), other))
	require.NoError(t, store.Rules().SaveCondition(t.Context(),
		testutil.CreateTestCondition(other.ID, "division", models.OperatorEquals, "ATL")))

	found, err := store.Rules().FindRulesByCriteria(t.Context(), persistence.RuleCriteria{
		Field:      "division",
		Operator:   models.OperatorEquals,
		Expression: "BTL",
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, matching.ID, found[0].ID)

	// Operator must match exactly, not just field and expression.
	found, err = store.Rules().FindRulesByCriteria(t.Context(), persistence.RuleCriteria{
		Field:      "division",
		Operator:   models.OperatorNotEquals,
		Expression: "BTL",
	})
	require.NoError(t, err)
	assert.Empty(t, found)
}
