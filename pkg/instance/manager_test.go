package instance

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/items"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/persistence/file"
	"github.com/veriflow-io/veriflow/pkg/rules"
	"github.com/veriflow-io/veriflow/pkg/selectors"
	"github.com/veriflow-io/veriflow/pkg/testutil"
)

type managerFixture struct {
	store    persistence.Persistence
	manager  *Manager
	chain    []*models.ActivityDefinition
	workflow *models.WorkflowDefinition
}

// newManagerFixture persists a three-step chain and wires a manager over a
// file store. The item under test matches its division rule, and the reviewer
// group has one member, so every step demands a decision by default.
func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	workflowDefinition, activities, transitions := testutil.CreateTestChain("A", "B", "C")
	require.NoError(t, store.Definitions().ReplaceGraph(t.Context(), workflowDefinition, activities, transitions))

	for _, activity := range activities {
		rule := testutil.CreateTestRule(activity.ID)
		require.NoError(t, store.Rules().SaveRule(t.Context(), rule))
		require.NoError(t, store.Rules().SaveCondition(t.Context(),
			testutil.CreateTestCondition(rule.ID, "division", models.OperatorEquals, "BTL")))

		selector := testutil.CreateTestSelector(activity.ID, "group-reviewers")
		require.NoError(t, store.Selectors().SaveSelector(t.Context(), selector))
	}

	ruleEngine := rules.NewEngine()
	manager := NewManager(
		store,
		ruleEngine,
		selectors.NewEngine(ruleEngine),
		selectors.StaticGroupResolver{"group-reviewers": {"alice"}},
		items.StaticResolver{"item-1": {"division": "BTL", "amount": 500}},
		nil,
		slog.New(slog.DiscardHandler),
	)

	return &managerFixture{
		store:    store,
		manager:  manager,
		chain:    activities,
		workflow: workflowDefinition,
	}
}

func (f *managerFixture) createStarted(t *testing.T) *models.WorkflowInstance {
	t.Helper()

	inst, err := f.manager.CreateInstance(t.Context(), f.workflow.ID, "item-1")
	require.NoError(t, err)
	require.NoError(t, f.manager.StartInstance(t.Context(), inst))

	return inst
}

func TestCreateInstance(t *testing.T) {
	f := newManagerFixture(t)

	inst, err := f.manager.CreateInstance(t.Context(), f.workflow.ID, "item-1")
	require.NoError(t, err)

	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, models.InstanceStatusCreated, inst.Status)
	assert.Empty(t, inst.CurrentActivityID)

	stored, err := f.store.Instances().InstanceByID(t.Context(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "item-1", stored.ItemID)
}

func TestCreateInstance_UnknownDefinition(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.manager.CreateInstance(t.Context(), "missing", "item-1")
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestLifecycleTransitions(t *testing.T) {
	f := newManagerFixture(t)
	ctx := t.Context()

	inst, err := f.manager.CreateInstance(ctx, f.workflow.ID, "item-1")
	require.NoError(t, err)

	// Created permits only Start.
	require.ErrorIs(t, f.manager.PauseInstance(ctx, inst), ErrInvalidStatusTransition)
	require.ErrorIs(t, f.manager.EndInstance(ctx, inst), ErrInvalidStatusTransition)

	require.NoError(t, f.manager.StartInstance(ctx, inst))
	assert.Equal(t, models.InstanceStatusStarted, inst.Status)

	require.ErrorIs(t, f.manager.StartInstance(ctx, inst), ErrInvalidStatusTransition)
	require.ErrorIs(t, f.manager.ResumeInstance(ctx, inst), ErrInvalidStatusTransition)

	require.NoError(t, f.manager.PauseInstance(ctx, inst))
	require.NoError(t, f.manager.ResumeInstance(ctx, inst))
	require.NoError(t, f.manager.PauseInstance(ctx, inst))

	// Ended is reachable from Paused and is terminal.
	require.NoError(t, f.manager.EndInstance(ctx, inst))
	require.ErrorIs(t, f.manager.StartInstance(ctx, inst), ErrInstanceEnded)
	require.ErrorIs(t, f.manager.ResumeInstance(ctx, inst), ErrInstanceEnded)
}

func TestAutoValidateNextActivities_StopsAtHumanStep(t *testing.T) {
	f := newManagerFixture(t)
	inst := f.createStarted(t)

	// Every step demands a decision, so the walk freezes immediately on A.
	validated, err := f.manager.AutoValidateNextActivities(t.Context(), inst, f.chain[0].ID)
	require.NoError(t, err)
	assert.Empty(t, validated)

	require.NotEmpty(t, inst.CurrentActivityID)

	current, err := f.store.Instances().ActivityByID(t.Context(), inst.CurrentActivityID)
	require.NoError(t, err)
	assert.Equal(t, f.chain[0].ID, current.ActivityDefinitionID)
	assert.False(t, current.IsValid)
}

func TestAutoValidateNextActivities_WalksUnguardedSteps(t *testing.T) {
	f := newManagerFixture(t)
	inst := f.createStarted(t)

	// Drop the rules of A and B so both auto-validate; C keeps its guard.
	for _, activity := range f.chain[:2] {
		ruleDefs, err := f.store.Rules().RulesByItem(t.Context(), activity.ID)
		require.NoError(t, err)

		for _, rule := range ruleDefs {
			require.NoError(t, f.store.Rules().DeleteRule(t.Context(), rule.ID))
		}
	}

	validated, err := f.manager.AutoValidateNextActivities(t.Context(), inst, f.chain[0].ID)
	require.NoError(t, err)
	require.Len(t, validated, 2)

	for _, activity := range validated {
		assert.True(t, activity.IsAuto)
		assert.True(t, activity.IsValid)
	}

	current, err := f.store.Instances().ActivityByID(t.Context(), inst.CurrentActivityID)
	require.NoError(t, err)
	assert.Equal(t, f.chain[2].ID, current.ActivityDefinitionID)
	assert.False(t, current.IsValid)
}

func TestCanAutoValidateActivity(t *testing.T) {
	f := newManagerFixture(t)
	rctx, err := items.NewRuleContext(t.Context(), items.StaticResolver{
		"item-1": {"division": "BTL"},
	}, "item-1", nil)
	require.NoError(t, err)

	// Rule satisfied and a reviewer exists: a decision is required.
	auto, err := f.manager.CanAutoValidateActivity(t.Context(), f.chain[0].ID, rctx)
	require.NoError(t, err)
	assert.False(t, auto)

	// Item outside the rule: the step auto-validates.
	rctx.Item["division"] = "ATL"
	auto, err = f.manager.CanAutoValidateActivity(t.Context(), f.chain[0].ID, rctx)
	require.NoError(t, err)
	assert.True(t, auto)
}

func TestCanAutoValidateActivity_NoEligibleAccounts(t *testing.T) {
	f := newManagerFixture(t)

	// Same store, but the reviewer group resolves to nobody.
	ruleEngine := rules.NewEngine()
	manager := NewManager(
		f.store,
		ruleEngine,
		selectors.NewEngine(ruleEngine),
		selectors.StaticGroupResolver{},
		items.StaticResolver{"item-1": {"division": "BTL"}},
		nil,
		slog.New(slog.DiscardHandler),
	)

	rctx := models.RuleContext{Item: map[string]any{"division": "BTL"}}

	auto, err := manager.CanAutoValidateActivity(t.Context(), f.chain[0].ID, rctx)
	require.NoError(t, err)
	assert.True(t, auto)
}

func TestSaveDecision(t *testing.T) {
	f := newManagerFixture(t)
	inst := f.createStarted(t)

	_, err := f.manager.AutoValidateNextActivities(t.Context(), inst, f.chain[0].ID)
	require.NoError(t, err)

	decision := &models.Decision{Username: "alice", Choice: "approve", Comments: "looks good"}
	require.NoError(t, f.manager.SaveDecision(t.Context(), inst, decision))

	activity, err := f.store.Instances().ActivityByID(t.Context(), inst.CurrentActivityID)
	require.NoError(t, err)
	assert.True(t, activity.IsValid)
	assert.False(t, activity.IsAuto)

	decisions, err := f.store.Instances().DecisionsByActivity(t.Context(), activity.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "alice", decisions[0].Username)
	assert.Equal(t, "approve", decisions[0].Choice)
}

func TestSaveDecision_Guards(t *testing.T) {
	f := newManagerFixture(t)
	ctx := t.Context()

	inst, err := f.manager.CreateInstance(ctx, f.workflow.ID, "item-1")
	require.NoError(t, err)

	decision := &models.Decision{Username: "alice", Choice: "approve"}

	// Not started yet.
	require.ErrorIs(t, f.manager.SaveDecision(ctx, inst, decision), ErrNotStarted)

	require.NoError(t, f.manager.StartInstance(ctx, inst))

	// Started but no materialized activity.
	require.ErrorIs(t, f.manager.SaveDecision(ctx, inst, decision), ErrNoCurrentActivity)
}

func TestSaveDecisionAndGoToNextActivity(t *testing.T) {
	f := newManagerFixture(t)
	inst := f.createStarted(t)

	_, err := f.manager.AutoValidateNextActivities(t.Context(), inst, f.chain[0].ID)
	require.NoError(t, err)

	next, err := f.manager.SaveDecisionAndGoToNextActivity(t.Context(), inst, "",
		&models.Decision{Username: "alice", Choice: "approve"})
	require.NoError(t, err)
	require.NotNil(t, next)

	assert.Equal(t, f.chain[1].ID, next.ActivityDefinitionID)
	assert.Equal(t, next.ID, inst.CurrentActivityID)

	stored, err := f.store.Instances().InstanceByID(t.Context(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, stored.CurrentActivityID)
}

func TestSaveDecisionAndGoToNextActivity_ChainEnds(t *testing.T) {
	f := newManagerFixture(t)
	inst := f.createStarted(t)

	_, err := f.manager.AutoValidateNextActivities(t.Context(), inst, f.chain[0].ID)
	require.NoError(t, err)

	decision := func() *models.Decision {
		return &models.Decision{Username: "alice", Choice: "approve"}
	}

	for range 2 {
		next, err := f.manager.SaveDecisionAndGoToNextActivity(t.Context(), inst, "", decision())
		require.NoError(t, err)
		require.NotNil(t, next)
	}

	// The decision on C has no default successor: the chain ends.
	next, err := f.manager.SaveDecisionAndGoToNextActivity(t.Context(), inst, "", decision())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestActivateActivity_SingleMultiplicityReuses(t *testing.T) {
	f := newManagerFixture(t)
	inst := f.createStarted(t)

	first, err := f.manager.activateActivity(t.Context(), inst, f.chain[0])
	require.NoError(t, err)

	second, err := f.manager.activateActivity(t.Context(), inst, f.chain[0])
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestActivateActivity_MultipleCreatesAfterClose(t *testing.T) {
	f := newManagerFixture(t)
	inst := f.createStarted(t)

	multi := f.chain[0]
	multi.Multiplicity = models.MultiplicityMultiple

	first, err := f.manager.activateActivity(t.Context(), inst, multi)
	require.NoError(t, err)

	// Still open: re-activation reuses it.
	second, err := f.manager.activateActivity(t.Context(), inst, multi)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Once closed by a decision, activation opens a sibling.
	first.IsValid = true
	require.NoError(t, f.store.Instances().SaveActivity(t.Context(), first))

	third, err := f.manager.activateActivity(t.Context(), inst, multi)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestGetActivities(t *testing.T) {
	f := newManagerFixture(t)
	inst := f.createStarted(t)

	chain, err := f.manager.GetActivities(t.Context(), inst)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "A", chain[0].Name)
	assert.Equal(t, "C", chain[2].Name)
}
