package services

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/items"
	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/persistence/file"
	"github.com/veriflow-io/veriflow/pkg/recalc"
	"github.com/veriflow-io/veriflow/pkg/rules"
	"github.com/veriflow-io/veriflow/pkg/selectors"
	"github.com/veriflow-io/veriflow/pkg/testutil"
)

type recalcFixture struct {
	store    persistence.Persistence
	service  *Recalculation
	chain    []*models.ActivityDefinition
	workflow *models.WorkflowDefinition
}

// newRecalcFixture persists a three-step chain where step B carries a
// satisfied rule with one eligible reviewer, so reconciliation freezes there.
func newRecalcFixture(t *testing.T) *recalcFixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	workflowDefinition, activities, transitions := testutil.CreateTestChain("A", "B", "C")
	require.NoError(t, store.Definitions().ReplaceGraph(t.Context(), workflowDefinition, activities, transitions))

	rule := testutil.CreateTestRule(activities[1].ID)
	require.NoError(t, store.Rules().SaveRule(t.Context(), rule))
	require.NoError(t, store.Rules().SaveCondition(t.Context(),
		testutil.CreateTestCondition(rule.ID, "division", models.OperatorEquals, "BTL")))
	require.NoError(t, store.Selectors().SaveSelector(t.Context(),
		testutil.CreateTestSelector(activities[1].ID, "group-reviewers")))

	logger := slog.New(slog.DiscardHandler)
	ruleEngine := rules.NewEngine()
	engine := recalc.NewEngine(ruleEngine, selectors.NewEngine(ruleEngine))
	runner := recalc.NewRunner(engine, logger, recalc.RunnerOptions{Workers: 2})

	service := NewRecalculation(
		store,
		engine,
		runner,
		items.StaticResolver{
			"item-1": {"division": "BTL"},
			"item-2": {"division": "ATL"},
		},
		selectors.StaticGroupResolver{"group-reviewers": {"alice"}},
		nil,
		nil,
		logger,
	)

	return &recalcFixture{
		store:    store,
		service:  service,
		chain:    activities,
		workflow: workflowDefinition,
	}
}

func (f *recalcFixture) startedInstance(t *testing.T, itemID string) *models.WorkflowInstance {
	t.Helper()

	inst := testutil.CreateTestInstance(f.workflow.ID, itemID)
	require.NoError(t, f.store.Instances().SaveInstance(t.Context(), inst))

	return inst
}

func TestRecalculateDefinition_FreezesGuardedStep(t *testing.T) {
	f := newRecalcFixture(t)
	inst := f.startedInstance(t, "item-1")

	out, err := f.service.RecalculateDefinition(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	require.False(t, out.Empty())

	// Step A auto-validated, step B materialized as the frozen pointer.
	activities, err := f.store.Instances().ActivitiesByInstance(t.Context(), inst.ID)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	stored, err := f.store.Instances().InstanceByID(t.Context(), inst.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.CurrentActivityID)

	current, err := f.store.Instances().ActivityByID(t.Context(), stored.CurrentActivityID)
	require.NoError(t, err)
	assert.Equal(t, f.chain[1].ID, current.ActivityDefinitionID)
	assert.False(t, current.IsValid)
}

func TestRecalculateDefinition_ItemOutsideRuleWalksThrough(t *testing.T) {
	f := newRecalcFixture(t)
	inst := f.startedInstance(t, "item-2")

	out, err := f.service.RecalculateDefinition(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	require.False(t, out.Empty())

	// The ATL item never matches the rule: all three steps auto-validate.
	activities, err := f.store.Instances().ActivitiesByInstance(t.Context(), inst.ID)
	require.NoError(t, err)
	require.Len(t, activities, 3)

	for _, activity := range activities {
		assert.True(t, activity.IsAuto)
		assert.True(t, activity.IsValid)
	}

	stored, err := f.store.Instances().InstanceByID(t.Context(), inst.ID)
	require.NoError(t, err)

	current, err := f.store.Instances().ActivityByID(t.Context(), stored.CurrentActivityID)
	require.NoError(t, err)
	assert.Equal(t, f.chain[2].ID, current.ActivityDefinitionID)
}

func TestRecalculateDefinition_Idempotent(t *testing.T) {
	f := newRecalcFixture(t)
	f.startedInstance(t, "item-1")
	f.startedInstance(t, "item-2")

	first, err := f.service.RecalculateDefinition(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	require.False(t, first.Empty())

	second, err := f.service.RecalculateDefinition(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	assert.True(t, second.Empty())
}

func TestRecalculateDefinition_SkipsNonStartedInstances(t *testing.T) {
	f := newRecalcFixture(t)

	paused := testutil.CreateTestInstance(f.workflow.ID, "item-1", testutil.WithStatus(models.InstanceStatusPaused))
	require.NoError(t, f.store.Instances().SaveInstance(t.Context(), paused))

	out, err := f.service.RecalculateDefinition(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	assert.True(t, out.Empty())

	activities, err := f.store.Instances().ActivitiesByInstance(t.Context(), paused.ID)
	require.NoError(t, err)
	assert.Empty(t, activities)
}

func TestRecalculateDefinition_PicksUpRuleChanges(t *testing.T) {
	f := newRecalcFixture(t)
	inst := f.startedInstance(t, "item-1")

	_, err := f.service.RecalculateDefinition(t.Context(), f.workflow.ID)
	require.NoError(t, err)

	// Drop the guard on B: the next pass flips the frozen activity to
	// auto-valid and walks on to C.
	storedRules, err := f.store.Rules().RulesByItem(t.Context(), f.chain[1].ID)
	require.NoError(t, err)

	for _, rule := range storedRules {
		require.NoError(t, f.store.Rules().DeleteRule(t.Context(), rule.ID))
	}

	out, err := f.service.RecalculateDefinition(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	require.False(t, out.Empty())

	activities, err := f.store.Instances().ActivitiesByInstance(t.Context(), inst.ID)
	require.NoError(t, err)
	assert.Len(t, activities, 3)

	stored, err := f.store.Instances().InstanceByID(t.Context(), inst.ID)
	require.NoError(t, err)

	current, err := f.store.Instances().ActivityByID(t.Context(), stored.CurrentActivityID)
	require.NoError(t, err)
	assert.Equal(t, f.chain[2].ID, current.ActivityDefinitionID)
}

func TestRecalculateInstance(t *testing.T) {
	f := newRecalcFixture(t)
	inst := f.startedInstance(t, "item-1")
	f.startedInstance(t, "item-2")

	out, err := f.service.RecalculateInstance(t.Context(), inst.ID)
	require.NoError(t, err)
	require.False(t, out.Empty())

	// Only the targeted instance is touched.
	activities, err := f.store.Instances().ActivitiesByInstance(t.Context(), inst.ID)
	require.NoError(t, err)
	assert.Len(t, activities, 2)

	instances, err := f.store.Instances().InstancesByDefinition(t.Context(), f.workflow.ID)
	require.NoError(t, err)

	for _, other := range instances {
		if other.ID == inst.ID {
			continue
		}

		others, err := f.store.Instances().ActivitiesByInstance(t.Context(), other.ID)
		require.NoError(t, err)
		assert.Empty(t, others)
	}
}

func TestRecalculateInstance_NotFound(t *testing.T) {
	f := newRecalcFixture(t)

	_, err := f.service.RecalculateInstance(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestBuildInputs_OnlyStartedInstances(t *testing.T) {
	f := newRecalcFixture(t)
	f.startedInstance(t, "item-1")

	created := testutil.CreateTestInstance(f.workflow.ID, "item-2", testutil.WithStatus(models.InstanceStatusCreated))
	require.NoError(t, f.store.Instances().SaveInstance(t.Context(), created))

	inputs, err := f.service.BuildInputs(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "item-1", inputs[0].Instance.ItemID)
	assert.Len(t, inputs[0].Chain, 3)
}
