package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/testutil"
)

func TestSaveInstance_RoundTrip(t *testing.T) {
	store := NewPersistence(t.TempDir())
	inst := testutil.CreateTestInstance("wf-1", "item-1")
	inst.ID = ""

	require.NoError(t, store.Instances().SaveInstance(t.Context(), inst))
	assert.NotEmpty(t, inst.ID)

	stored, err := store.Instances().InstanceByID(t.Context(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "item-1", stored.ItemID)
	assert.Equal(t, models.InstanceStatusStarted, stored.Status)
}

func TestInstanceByID_NotFound(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.Instances().InstanceByID(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}

func TestInstancesByDefinition(t *testing.T) {
	store := NewPersistence(t.TempDir())

	for range 2 {
		inst := testutil.CreateTestInstance("wf-1", "item-1")
		require.NoError(t, store.Instances().SaveInstance(t.Context(), inst))
	}

	other := testutil.CreateTestInstance("wf-2", "item-2")
	require.NoError(t, store.Instances().SaveInstance(t.Context(), other))

	instances, err := store.Instances().InstancesByDefinition(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestSaveActivity_UpsertsWithinDocument(t *testing.T) {
	store := NewPersistence(t.TempDir())
	inst := testutil.CreateTestInstance("wf-1", "item-1")
	require.NoError(t, store.Instances().SaveInstance(t.Context(), inst))

	activity := testutil.CreateTestActivity("ad-1", inst.ID)
	require.NoError(t, store.Instances().SaveActivity(t.Context(), activity))

	activity.IsValid = true
	require.NoError(t, store.Instances().SaveActivity(t.Context(), activity))

	activities, err := store.Instances().ActivitiesByInstance(t.Context(), inst.ID)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.True(t, activities[0].IsValid)
}

func TestSaveActivity_UnknownInstance(t *testing.T) {
	store := NewPersistence(t.TempDir())
	activity := testutil.CreateTestActivity("ad-1", "missing")

	err := store.Instances().SaveActivity(t.Context(), activity)
	assert.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}

func TestActivitiesByDefinitionIDs_SpansInstances(t *testing.T) {
	store := NewPersistence(t.TempDir())

	first := testutil.CreateTestInstance("wf-1", "item-1")
	second := testutil.CreateTestInstance("wf-1", "item-2")
	require.NoError(t, store.Instances().SaveInstance(t.Context(), first))
	require.NoError(t, store.Instances().SaveInstance(t.Context(), second))

	require.NoError(t, store.Instances().SaveActivity(t.Context(), testutil.CreateTestActivity("ad-1", first.ID)))
	require.NoError(t, store.Instances().SaveActivity(t.Context(), testutil.CreateTestActivity("ad-1", second.ID)))
	require.NoError(t, store.Instances().SaveActivity(t.Context(), testutil.CreateTestActivity("ad-2", second.ID)))

	activities, err := store.Instances().ActivitiesByDefinitionIDs(t.Context(), []string{"ad-1"})
	require.NoError(t, err)
	assert.Len(t, activities, 2)

	activities, err = store.Instances().ActivitiesByDefinitionIDs(t.Context(), []string{"ad-1", "ad-2"})
	require.NoError(t, err)
	assert.Len(t, activities, 3)
}

func TestSaveDecision_AttachesToActivity(t *testing.T) {
	store := NewPersistence(t.TempDir())
	inst := testutil.CreateTestInstance("wf-1", "item-1")
	require.NoError(t, store.Instances().SaveInstance(t.Context(), inst))

	activity := testutil.CreateTestActivity("ad-1", inst.ID)
	require.NoError(t, store.Instances().SaveActivity(t.Context(), activity))

	decision := testutil.CreateTestDecision(activity.ID)
	require.NoError(t, store.Instances().SaveDecision(t.Context(), decision))

	byActivity, err := store.Instances().DecisionsByActivity(t.Context(), activity.ID)
	require.NoError(t, err)
	require.Len(t, byActivity, 1)
	assert.Equal(t, "test-user", byActivity[0].Username)

	byInstance, err := store.Instances().DecisionsByInstance(t.Context(), inst.ID)
	require.NoError(t, err)
	assert.Len(t, byInstance, 1)
}

func TestSaveDecision_UnknownActivity(t *testing.T) {
	store := NewPersistence(t.TempDir())

	err := store.Instances().SaveDecision(t.Context(), testutil.CreateTestDecision("missing"))
	assert.ErrorIs(t, err, persistence.ErrActivityNotFound)
}

func TestApplyRecalculation(t *testing.T) {
	store := NewPersistence(t.TempDir())

	inst := testutil.CreateTestInstance("wf-1", "item-1")
	require.NoError(t, store.Instances().SaveInstance(t.Context(), inst))

	stale := testutil.CreateTestActivity("ad-1", inst.ID)
	require.NoError(t, store.Instances().SaveActivity(t.Context(), stale))

	flipped := *stale
	flipped.IsAuto = true
	flipped.IsValid = true

	created := testutil.CreateTestActivity("ad-2", inst.ID, testutil.WithFlags(true, true))
	frozen := testutil.CreateTestActivity("ad-3", inst.ID)

	batch := &persistence.RecalculationBatch{
		ActivitiesUpdateIsAuto:                []*models.Activity{&flipped},
		ActivitiesCreate:                      []*models.Activity{created},
		ActivitiesCreateUpdateCurrentActivity: []*models.Activity{frozen},
	}

	require.NoError(t, store.Instances().ApplyRecalculation(t.Context(), batch))

	activities, err := store.Instances().ActivitiesByInstance(t.Context(), inst.ID)
	require.NoError(t, err)
	assert.Len(t, activities, 3)

	updated, err := store.Instances().ActivityByID(t.Context(), stale.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsAuto)
	assert.True(t, updated.IsValid)

	stored, err := store.Instances().InstanceByID(t.Context(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, frozen.ID, stored.CurrentActivityID)
}

func TestApplyRecalculation_PointerMoveOnly(t *testing.T) {
	store := NewPersistence(t.TempDir())

	inst := testutil.CreateTestInstance("wf-1", "item-1")
	require.NoError(t, store.Instances().SaveInstance(t.Context(), inst))

	activity := testutil.CreateTestActivity("ad-1", inst.ID)
	require.NoError(t, store.Instances().SaveActivity(t.Context(), activity))

	moved := *inst
	moved.CurrentActivityID = activity.ID

	batch := &persistence.RecalculationBatch{
		WorkflowsUpdateCurrentActivity: []*models.WorkflowInstance{&moved},
	}

	require.NoError(t, store.Instances().ApplyRecalculation(t.Context(), batch))

	stored, err := store.Instances().InstanceByID(t.Context(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, activity.ID, stored.CurrentActivityID)
}
