package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/testutil"
)

func TestSaveWorkflowDefinition_AssignsIDAndTimestamps(t *testing.T) {
	store := NewPersistence(t.TempDir())

	definition := testutil.CreateTestDefinition()
	definition.ID = ""

	require.NoError(t, store.Definitions().SaveWorkflowDefinition(t.Context(), definition))
	assert.NotEmpty(t, definition.ID)
	assert.False(t, definition.CreatedAt.IsZero())
	assert.False(t, definition.UpdatedAt.IsZero())

	stored, err := store.Definitions().WorkflowDefinitionByID(t.Context(), definition.ID)
	require.NoError(t, err)
	assert.Equal(t, definition.Name, stored.Name)
}

func TestWorkflowDefinitionByID_NotFound(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.Definitions().WorkflowDefinitionByID(t.Context(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
	assert.True(t, persistence.IsNotFound(err))
}

func TestListWorkflowDefinitions(t *testing.T) {
	store := NewPersistence(t.TempDir())

	first := testutil.CreateTestDefinition(func(d *models.WorkflowDefinition) { d.Name = "First" })
	second := testutil.CreateTestDefinition(func(d *models.WorkflowDefinition) { d.Name = "Second" })

	require.NoError(t, store.Definitions().SaveWorkflowDefinition(t.Context(), first))
	require.NoError(t, store.Definitions().SaveWorkflowDefinition(t.Context(), second))

	listed, err := store.Definitions().ListWorkflowDefinitions(t.Context())
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestReplaceGraph_RoundTrip(t *testing.T) {
	store := NewPersistence(t.TempDir())
	workflowDefinition, activities, transitions := testutil.CreateTestChain("A", "B", "C")

	require.NoError(t, store.Definitions().ReplaceGraph(t.Context(), workflowDefinition, activities, transitions))

	storedActivities, err := store.Definitions().ActivityDefinitionsByWorkflow(t.Context(), workflowDefinition.ID)
	require.NoError(t, err)
	assert.Len(t, storedActivities, 3)

	storedTransitions, err := store.Definitions().TransitionsByWorkflow(t.Context(), workflowDefinition.ID)
	require.NoError(t, err)
	assert.Len(t, storedTransitions, 2)
}

func TestReplaceGraph_OverwritesPreviousGraph(t *testing.T) {
	store := NewPersistence(t.TempDir())
	workflowDefinition, activities, transitions := testutil.CreateTestChain("A", "B", "C")

	require.NoError(t, store.Definitions().ReplaceGraph(t.Context(), workflowDefinition, activities, transitions))

	// Shrink the graph to a single activity.
	require.NoError(t, store.Definitions().ReplaceGraph(t.Context(), workflowDefinition, activities[:1], nil))

	storedActivities, err := store.Definitions().ActivityDefinitionsByWorkflow(t.Context(), workflowDefinition.ID)
	require.NoError(t, err)
	assert.Len(t, storedActivities, 1)

	storedTransitions, err := store.Definitions().TransitionsByWorkflow(t.Context(), workflowDefinition.ID)
	require.NoError(t, err)
	assert.Empty(t, storedTransitions)
}

func TestDeleteWorkflowDefinition(t *testing.T) {
	store := NewPersistence(t.TempDir())
	definition := testutil.CreateTestDefinition()

	require.NoError(t, store.Definitions().SaveWorkflowDefinition(t.Context(), definition))
	require.NoError(t, store.Definitions().DeleteWorkflowDefinition(t.Context(), definition.ID))

	_, err := store.Definitions().WorkflowDefinitionByID(t.Context(), definition.ID)
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)

	err = store.Definitions().DeleteWorkflowDefinition(t.Context(), definition.ID)
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestActivityDefinitionByID(t *testing.T) {
	store := NewPersistence(t.TempDir())
	workflowDefinition, activities, transitions := testutil.CreateTestChain("A", "B")

	require.NoError(t, store.Definitions().ReplaceGraph(t.Context(), workflowDefinition, activities, transitions))

	stored, err := store.Definitions().ActivityDefinitionByID(t.Context(), activities[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "B", stored.Name)

	_, err = store.Definitions().ActivityDefinitionByID(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrActivityDefinitionNotFound)
}
