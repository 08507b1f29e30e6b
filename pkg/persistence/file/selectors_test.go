package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/testutil"
)

func TestSaveSelector_RoundTrip(t *testing.T) {
	store := NewPersistence(t.TempDir())

	selector := testutil.CreateTestSelector("item-1", "group-reviewers", testutil.WithGroupTag("Q3-review"))
	selector.ID = ""

	require.NoError(t, store.Selectors().SaveSelector(t.Context(), selector))
	assert.NotEmpty(t, selector.ID)

	stored, err := store.Selectors().SelectorByID(t.Context(), selector.ID)
	require.NoError(t, err)
	assert.Equal(t, "group-reviewers", stored.AccountGroupID)
	assert.Equal(t, "Q3-review", stored.GroupTag)
}

func TestSelectorsByItemIDs_GroupsByItem(t *testing.T) {
	store := NewPersistence(t.TempDir())

	for _, itemID := range []string{"item-1", "item-1", "item-2"} {
		require.NoError(t, store.Selectors().SaveSelector(t.Context(),
			testutil.CreateTestSelector(itemID, "group-a")))
	}

	grouped, err := store.Selectors().SelectorsByItemIDs(t.Context(), []string{"item-1", "item-2"})
	require.NoError(t, err)
	assert.Len(t, grouped["item-1"], 2)
	assert.Len(t, grouped["item-2"], 1)
}

func TestFilters_RoundTrip(t *testing.T) {
	store := NewPersistence(t.TempDir())

	selector := testutil.CreateTestSelector("item-1", "group-a")
	require.NoError(t, store.Selectors().SaveSelector(t.Context(), selector))

	filter := testutil.CreateTestFilter(selector.ID, "division", models.OperatorEquals, "BTL")
	require.NoError(t, store.Selectors().SaveFilter(t.Context(), filter))

	filters, err := store.Selectors().FiltersBySelector(t.Context(), selector.ID)
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, "division", filters[0].Field)

	require.NoError(t, store.Selectors().DeleteFilter(t.Context(), filter.ID))

	filters, err = store.Selectors().FiltersBySelector(t.Context(), selector.ID)
	require.NoError(t, err)
	assert.Empty(t, filters)
}

func TestSaveFilter_UnknownSelector(t *testing.T) {
	store := NewPersistence(t.TempDir())

	filter := testutil.CreateTestFilter("missing", "division", models.OperatorEquals, "BTL")
	err := store.Selectors().SaveFilter(t.Context(), filter)
	assert.ErrorIs(t, err, persistence.ErrSelectorNotFound)
}

func TestRemoveSelectorsFiltersByGroupTag(t *testing.T) {
	store := NewPersistence(t.TempDir())

	tagged := testutil.CreateTestSelector("item-1", "group-a", testutil.WithGroupTag("G1"))
	alsoTagged := testutil.CreateTestSelector("item-2", "group-b", testutil.WithGroupTag("G1"))
	otherTag := testutil.CreateTestSelector("item-1", "group-c", testutil.WithGroupTag("G2"))
	untagged := testutil.CreateTestSelector("item-1", "group-d")

	for _, selector := range []*models.SelectorDefinition{tagged, alsoTagged, otherTag, untagged} {
		require.NoError(t, store.Selectors().SaveSelector(t.Context(), selector))
	}

	require.NoError(t, store.Selectors().SaveFilter(t.Context(),
		testutil.CreateTestFilter(tagged.ID, "division", models.OperatorEquals, "BTL")))

	require.NoError(t, store.Selectors().RemoveSelectorsFiltersByGroupTag(t.Context(), "G1"))

	_, err := store.Selectors().SelectorByID(t.Context(), tagged.ID)
	assert.ErrorIs(t, err, persistence.ErrSelectorNotFound)
	_, err = store.Selectors().SelectorByID(t.Context(), alsoTagged.ID)
	assert.ErrorIs(t, err, persistence.ErrSelectorNotFound)

	// Other tags and untagged selectors survive.
	_, err = store.Selectors().SelectorByID(t.Context(), otherTag.ID)
	assert.NoError(t, err)
	_, err = store.Selectors().SelectorByID(t.Context(), untagged.ID)
	assert.NoError(t, err)

	// The removed selector's filters are gone with it.
	_, err = store.Selectors().FiltersBySelector(t.Context(), tagged.ID)
	assert.ErrorIs(t, err, persistence.ErrSelectorNotFound)
}
