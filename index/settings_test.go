package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingApplyUnsetKeepsCurrent(t *testing.T) {
	var s Setting[string]
	require.Equal(t, "current", s.Apply("current", "default"))
}

func TestSettingApplyResetUsesDefault(t *testing.T) {
	s := NewReset[string]()
	require.Equal(t, "default", s.Apply("current", "default"))
}

func TestSettingApplySetUsesValue(t *testing.T) {
	s := NewSet("explicit")
	require.Equal(t, "explicit", s.Apply("current", "default"))
}

func TestSettingsPatchResolveOnlyTouchesProvidedFields(t *testing.T) {
	current := DefaultSettings()
	current.SearchableAttributes = []string{"title"}

	var patch SettingsPatch
	patch.FilterableAttributes = NewSet(map[string]struct{}{"brand": {}})

	next, searchableChanged := patch.Resolve(current)
	require.False(t, searchableChanged)
	require.Equal(t, []string{"title"}, next.SearchableAttributes)
	_, ok := next.FilterableAttributes["brand"]
	require.True(t, ok)
}

func TestSettingsPatchResolveSearchableAttributesChangeIsReported(t *testing.T) {
	current := DefaultSettings()
	var patch SettingsPatch
	patch.SearchableAttributes = NewSet([]string{"title", "body"})

	_, searchableChanged := patch.Resolve(current)
	require.True(t, searchableChanged)
}

func TestSettingsWireToPatchFoldsProvidedFieldsToSet(t *testing.T) {
	filterable := []string{"brand", "color"}
	wire := SettingsWire{FilterableAttributes: &filterable}
	patch := wire.ToPatch()

	require.False(t, patch.FilterableAttributes.IsUnset())
	require.True(t, patch.SortableAttributes.IsUnset())

	next, _ := patch.Resolve(DefaultSettings())
	_, ok := next.FilterableAttributes["brand"]
	require.True(t, ok)
}
