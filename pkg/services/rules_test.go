package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/persistence/file"
	"github.com/veriflow-io/veriflow/pkg/testutil"
)

func newRulesService(t *testing.T) (*Rules, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	return NewRules(store, nil), store
}

func TestRulesService_CreateRule(t *testing.T) {
	service, _ := newRulesService(t)

	rule, err := service.CreateRule(t.Context(), CreateRuleRequest{
		ItemID: "item-1",
		Label:  "BTL threshold",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)

	byItem, err := service.RulesByItem(t.Context(), "item-1")
	require.NoError(t, err)
	assert.Len(t, byItem, 1)
}

func TestRulesService_CreateRule_Validation(t *testing.T) {
	service, _ := newRulesService(t)

	_, err := service.CreateRule(t.Context(), CreateRuleRequest{ItemID: "item-1"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestRulesService_AddCondition(t *testing.T) {
	service, _ := newRulesService(t)

	rule, err := service.CreateRule(t.Context(), CreateRuleRequest{ItemID: "item-1", Label: "BTL threshold"})
	require.NoError(t, err)

	condition, err := service.AddCondition(t.Context(), rule.ID, AddConditionRequest{
		Field:      "division",
		Operator:   models.OperatorEquals,
		Expression: "BTL",
	})
	require.NoError(t, err)
	assert.Equal(t, rule.ID, condition.RuleID)

	conditions, err := service.ConditionsByRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.Len(t, conditions, 1)
}

func TestRulesService_AddCondition_UnknownRule(t *testing.T) {
	service, _ := newRulesService(t)

	_, err := service.AddCondition(t.Context(), "missing", AddConditionRequest{
		Field:    "division",
		Operator: models.OperatorEquals,
	})
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestRulesService_AddCondition_MissingOperator(t *testing.T) {
	service, _ := newRulesService(t)

	rule, err := service.CreateRule(t.Context(), CreateRuleRequest{ItemID: "item-1", Label: "BTL threshold"})
	require.NoError(t, err)

	_, err = service.AddCondition(t.Context(), rule.ID, AddConditionRequest{Field: "division"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperatorRequired)
}

func TestRulesService_DeleteRuleRemovesConditions(t *testing.T) {
	service, _ := newRulesService(t)

	rule, err := service.CreateRule(t.Context(), CreateRuleRequest{ItemID: "item-1", Label: "BTL threshold"})
	require.NoError(t, err)

	_, err = service.AddCondition(t.Context(), rule.ID, AddConditionRequest{
		Field:    "division",
		Operator: models.OperatorEquals,
	})
	require.NoError(t, err)

	require.NoError(t, service.DeleteRule(t.Context(), rule.ID))

	_, err = service.GetRule(t.Context(), rule.ID)
	assert.True(t, IsNotFoundError(err))
}

func TestRulesService_CreateSelector(t *testing.T) {
	service, _ := newRulesService(t)

	selector, err := service.CreateSelector(t.Context(), CreateSelectorRequest{
		ItemID:         "item-1",
		AccountGroupID: "group-reviewers",
		GroupTag:       "Q3-review",
	})
	require.NoError(t, err)
	assert.Equal(t, "Q3-review", selector.GroupTag)

	byItem, err := service.SelectorsByItem(t.Context(), "item-1")
	require.NoError(t, err)
	assert.Len(t, byItem, 1)
}

func TestRulesService_CreateSelector_Validation(t *testing.T) {
	service, _ := newRulesService(t)

	_, err := service.CreateSelector(t.Context(), CreateSelectorRequest{ItemID: "item-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountGroupRequired)
}

func TestRulesService_AddFilter(t *testing.T) {
	service, _ := newRulesService(t)

	selector, err := service.CreateSelector(t.Context(), CreateSelectorRequest{
		ItemID:         "item-1",
		AccountGroupID: "group-reviewers",
	})
	require.NoError(t, err)

	filter, err := service.AddFilter(t.Context(), selector.ID, AddFilterRequest{
		Field:      "region",
		Operator:   models.OperatorEquals,
		Expression: "EU",
	})
	require.NoError(t, err)
	assert.Equal(t, selector.ID, filter.SelectorID)

	filters, err := service.FiltersBySelector(t.Context(), selector.ID)
	require.NoError(t, err)
	assert.Len(t, filters, 1)
}

func TestRulesService_RemoveSelectorsByGroupTag(t *testing.T) {
	service, _ := newRulesService(t)

	tagged, err := service.CreateSelector(t.Context(), CreateSelectorRequest{
		ItemID:         "item-1",
		AccountGroupID: "group-reviewers",
		GroupTag:       "Q3-review",
	})
	require.NoError(t, err)

	untagged, err := service.CreateSelector(t.Context(), CreateSelectorRequest{
		ItemID:         "item-1",
		AccountGroupID: "group-managers",
	})
	require.NoError(t, err)

	require.NoError(t, service.RemoveSelectorsByGroupTag(t.Context(), "Q3-review"))

	_, err = service.GetSelector(t.Context(), tagged.ID)
	assert.True(t, IsNotFoundError(err))

	_, err = service.GetSelector(t.Context(), untagged.ID)
	assert.NoError(t, err)
}

func TestRulesService_RemoveSelectorsByGroupTag_EmptyTag(t *testing.T) {
	service, _ := newRulesService(t)

	err := service.RemoveSelectorsByGroupTag(t.Context(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGroupTagRequired)
}

func TestRulesService_FindRulesByCriteria(t *testing.T) {
	service, _ := newRulesService(t)

	rule, err := service.CreateRule(t.Context(), CreateRuleRequest{ItemID: "item-1", Label: "BTL threshold"})
	require.NoError(t, err)

	_, err = service.AddCondition(t.Context(), rule.ID, AddConditionRequest{
		Field:      "division",
		Operator:   models.OperatorEquals,
		Expression: "BTL",
	})
	require.NoError(t, err)

	matched, err := service.FindRulesByCriteria(t.Context(), persistence.RuleCriteria{
		Field:      "division",
		Operator:   models.OperatorEquals,
		Expression: "BTL",
	})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, rule.ID, matched[0].ID)
}

// FindActivitiesByCriteria resolves matched rules to the live activities of
// the steps the rules are attached to.
func TestRulesService_FindActivitiesByCriteria(t *testing.T) {
	service, store := newRulesService(t)

	workflowDefinition, activities, transitions := testutil.CreateTestChain("A", "B")
	require.NoError(t, store.Definitions().ReplaceGraph(t.Context(), workflowDefinition, activities, transitions))

	rule, err := service.CreateRule(t.Context(), CreateRuleRequest{ItemID: activities[0].ID, Label: "BTL threshold"})
	require.NoError(t, err)

	_, err = service.AddCondition(t.Context(), rule.ID, AddConditionRequest{
		Field:      "division",
		Operator:   models.OperatorEquals,
		Expression: "BTL",
	})
	require.NoError(t, err)

	inst := testutil.CreateTestInstance(workflowDefinition.ID, "payment-1")
	require.NoError(t, store.Instances().SaveInstance(t.Context(), inst))

	live := testutil.CreateTestActivity(activities[0].ID, inst.ID)
	require.NoError(t, store.Instances().SaveActivity(t.Context(), live))

	other := testutil.CreateTestActivity(activities[1].ID, inst.ID)
	require.NoError(t, store.Instances().SaveActivity(t.Context(), other))

	found, err := service.FindActivitiesByCriteria(t.Context(), persistence.RuleCriteria{
		Field:      "division",
		Operator:   models.OperatorEquals,
		Expression: "BTL",
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, activities[0].ID, found[0].ActivityDefinitionID)
}

func TestRulesService_FindActivitiesByCriteria_NoMatch(t *testing.T) {
	service, _ := newRulesService(t)

	found, err := service.FindActivitiesByCriteria(t.Context(), persistence.RuleCriteria{
		Field:      "division",
		Operator:   models.OperatorEquals,
		Expression: "nope",
	})
	require.NoError(t, err)
	assert.Empty(t, found)
}
