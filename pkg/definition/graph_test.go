package definition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/testutil"
)

func chainNames(t *testing.T, graph *Graph) []string {
	t.Helper()

	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	names := make([]string, 0, len(chain))
	for _, activity := range chain {
		names = append(names, activity.Name)
	}

	return names
}

func loadChainGraph(t *testing.T, names ...string) *Graph {
	t.Helper()

	workflowDefinition, activities, transitions := testutil.CreateTestChain(names...)

	graph, err := Load(workflowDefinition, activities, transitions)
	require.NoError(t, err)

	return graph
}

func TestLoad_WalksDefaultChain(t *testing.T) {
	graph := loadChainGraph(t, "A", "B", "C")

	assert.Equal(t, []string{"A", "B", "C"}, chainNames(t, graph))
}

func TestLoad_RejectsCycle(t *testing.T) {
	workflowDefinition, activities, transitions := testutil.CreateTestChain("A", "B")
	transitions = append(transitions, testutil.CreateTestTransition(
		workflowDefinition.ID, activities[1].ID, activities[0].ID,
	))

	_, err := Load(workflowDefinition, activities, transitions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransitionCycle)
}

func TestAddActivity_AtHead(t *testing.T) {
	graph := loadChainGraph(t, "B", "C")
	activity := testutil.CreateTestActivityDefinition(graph.Definition().ID, 1, testutil.WithActivityName("A"))

	require.NoError(t, graph.AddActivity(activity, 1))

	assert.Equal(t, []string{"A", "B", "C"}, chainNames(t, graph))
	assert.Equal(t, activity.ID, graph.Definition().FirstActivityID)
}

func TestAddActivity_InMiddleRewiresTransitions(t *testing.T) {
	graph := loadChainGraph(t, "A", "C")
	activity := testutil.CreateTestActivityDefinition(graph.Definition().ID, 2, testutil.WithActivityName("B"))

	require.NoError(t, graph.AddActivity(activity, 2))

	assert.Equal(t, []string{"A", "B", "C"}, chainNames(t, graph))
}

func TestAddActivity_AppendsAtTail(t *testing.T) {
	graph := loadChainGraph(t, "A", "B")
	activity := testutil.CreateTestActivityDefinition(graph.Definition().ID, 3, testutil.WithActivityName("C"))

	require.NoError(t, graph.AddActivity(activity, 3))

	assert.Equal(t, []string{"A", "B", "C"}, chainNames(t, graph))
}

func TestAddActivity_PositionOutOfRange(t *testing.T) {
	graph := loadChainGraph(t, "A", "B")
	activity := testutil.CreateTestActivityDefinition(graph.Definition().ID, 5, testutil.WithActivityName("X"))

	err := graph.AddActivity(activity, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)

	err = graph.AddActivity(activity, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
}

func TestAddActivity_RenumbersPositions(t *testing.T) {
	graph := loadChainGraph(t, "A", "C")
	activity := testutil.CreateTestActivityDefinition(graph.Definition().ID, 2, testutil.WithActivityName("B"))

	require.NoError(t, graph.AddActivity(activity, 2))

	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	for index, chained := range chain {
		require.NotNil(t, chained.Position)
		assert.Equal(t, index+1, *chained.Position)
	}
}

func TestRemoveActivity_SplicesChain(t *testing.T) {
	graph := loadChainGraph(t, "A", "B", "C")
	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	require.NoError(t, graph.RemoveActivity(chain[1].ID))

	assert.Equal(t, []string{"A", "C"}, chainNames(t, graph))
}

func TestRemoveActivity_Head(t *testing.T) {
	graph := loadChainGraph(t, "A", "B", "C")
	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	require.NoError(t, graph.RemoveActivity(chain[0].ID))

	assert.Equal(t, []string{"B", "C"}, chainNames(t, graph))
	assert.Equal(t, chain[1].ID, graph.Definition().FirstActivityID)
}

func TestRemoveActivity_NotInGraph(t *testing.T) {
	graph := loadChainGraph(t, "A")

	err := graph.RemoveActivity("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActivityNotInGraph)
}

func TestMoveActivity_ToHead(t *testing.T) {
	graph := loadChainGraph(t, "A", "B", "C")
	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	require.NoError(t, graph.MoveActivity(chain[2].ID, 1))

	assert.Equal(t, []string{"C", "A", "B"}, chainNames(t, graph))
}

func TestMoveActivity_ToTail(t *testing.T) {
	graph := loadChainGraph(t, "A", "B", "C")
	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	require.NoError(t, graph.MoveActivity(chain[0].ID, 3))

	assert.Equal(t, []string{"B", "C", "A"}, chainNames(t, graph))
}

func TestAddTransition_RejectsSecondDefault(t *testing.T) {
	graph := loadChainGraph(t, "A", "B", "C")
	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	err = graph.AddTransition(testutil.CreateTestTransition(
		graph.Definition().ID, chain[0].ID, chain[2].ID,
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateDefaultTransition)
}

func TestAddTransition_NamedEdge(t *testing.T) {
	graph := loadChainGraph(t, "A", "B", "C")
	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	require.NoError(t, graph.AddTransition(testutil.CreateTestTransition(
		graph.Definition().ID, chain[0].ID, chain[2].ID,
		testutil.WithTransitionName("Escalate"),
	)))

	next, err := graph.FindNextActivity(chain[0].ID, "Escalate")
	require.NoError(t, err)
	assert.Equal(t, "C", next.Name)

	// The default chain is unchanged.
	assert.Equal(t, []string{"A", "B", "C"}, chainNames(t, graph))
}

func TestFindNextActivity_EmptyNameMeansDefault(t *testing.T) {
	graph := loadChainGraph(t, "A", "B")
	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	next, err := graph.FindNextActivity(chain[0].ID, "")
	require.NoError(t, err)
	assert.Equal(t, "B", next.Name)

	_, err = graph.FindNextActivity(chain[1].ID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransitionNotInGraph)
}

func TestFindActivityDefinitionByPosition(t *testing.T) {
	graph := loadChainGraph(t, "A", "B", "C")

	activity, err := graph.FindActivityDefinitionByPosition(2)
	require.NoError(t, err)
	assert.Equal(t, "B", activity.Name)

	_, err = graph.FindActivityDefinitionByPosition(4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
}

func TestHasNextActivity(t *testing.T) {
	graph := loadChainGraph(t, "A", "B")
	chain, err := graph.FindAllDefaultActivityDefinitions()
	require.NoError(t, err)

	assert.True(t, graph.HasNextActivity(chain[0].ID))
	assert.False(t, graph.HasNextActivity(chain[1].ID))
}

func TestActivities_DetachedComeLast(t *testing.T) {
	workflowDefinition, activities, transitions := testutil.CreateTestChain("A", "B")
	detached := testutil.CreateTestActivityDefinition(workflowDefinition.ID, 0, testutil.WithActivityName("D"))
	detached.Position = nil

	graph, err := Load(workflowDefinition, append(activities, detached), transitions)
	require.NoError(t, err)

	all := graph.Activities()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"A", "B"}, chainNames(t, graph))
	assert.Equal(t, "D", all[2].Name)
	assert.Nil(t, all[2].Position)
}

func TestParseGraphDocument_RoundTrip(t *testing.T) {
	graph := loadChainGraph(t, "A", "B", "C")

	data, err := ExportGraphDocument(graph)
	require.NoError(t, err)

	parsed, err := ParseGraphDocument(data)
	require.NoError(t, err)

	assert.Equal(t, graph.Definition().ID, parsed.Definition().ID)
	assert.Equal(t, []string{"A", "B", "C"}, chainNames(t, parsed))
}

func TestParseGraphDocument_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing definition", `{"activities": []}`},
		{"short name", `{"definition": {"name": "ab"}, "activities": []}`},
		{"bad multiplicity", `{
			"definition": {"name": "Sample"},
			"activities": [{"name": "A", "multiplicity": "triple"}]
		}`},
		{"transition missing target", `{
			"definition": {"name": "Sample"},
			"activities": [{"name": "A"}],
			"transitions": [{"from_id": "x"}]
		}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGraphDocument([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseGraphDocument_AppliesDefaults(t *testing.T) {
	data := `{
		"definition": {"id": "wf-1", "name": "Sample", "first_activity_id": "a-1"},
		"activities": [
			{"id": "a-1", "name": "A"},
			{"id": "a-2", "name": "B"}
		],
		"transitions": [
			{"id": "t-1", "from_id": "a-1", "to_id": "a-2"}
		]
	}`

	graph, err := ParseGraphDocument([]byte(data))
	require.NoError(t, err)

	activities := graph.Activities()
	require.Len(t, activities, 2)
	assert.Equal(t, models.MultiplicitySingle, activities[0].Multiplicity)
	assert.Equal(t, "wf-1", activities[0].WorkflowDefinitionID)

	transitions := graph.Transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, models.DefaultTransitionName, transitions[0].Name)
}
