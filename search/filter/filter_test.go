package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/storage/docstore"
	"github.com/velasearch/vela/storage/facet"
	"github.com/velasearch/vela/storage/mdbxkv"
)

func openTestEnv(t *testing.T) *mdbxkv.Env {
	t.Helper()
	env, err := mdbxkv.Open(t.TempDir(), mdbxkv.IndexTables, mdbxkv.IndexTablesCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func settingsWithFilterable(names ...string) index.Settings {
	s := index.DefaultSettings()
	for _, n := range names {
		s.FilterableAttributes[n] = struct{}{}
	}
	return s
}

func TestParseSimpleCondition(t *testing.T) {
	expr, err := Parse(`color = blue`)
	require.NoError(t, err)
	cond, ok := expr.(Condition)
	require.True(t, ok)
	require.Equal(t, "color", cond.Field)
	require.Equal(t, Equal, cond.Op)
	require.Equal(t, "blue", cond.Value)
}

func TestParseRange(t *testing.T) {
	expr, err := Parse(`age 10 TO 20`)
	require.NoError(t, err)
	r, ok := expr.(Range)
	require.True(t, ok)
	require.Equal(t, "age", r.Field)
	require.Equal(t, 10.0, r.LowerN)
	require.Equal(t, 20.0, r.UpperN)
}

func TestNegationOfRangeBecomesOrOfBounds(t *testing.T) {
	expr, err := Parse(`NOT age 10 TO 20`)
	require.NoError(t, err)
	or, ok := expr.(Or)
	require.True(t, ok)
	left := or.Left.(Condition)
	right := or.Right.(Condition)
	require.Equal(t, LowerThan, left.Op)
	require.Equal(t, GreaterThan, right.Op)
}

func TestNegationOfAndDistributesToOrOfNots(t *testing.T) {
	expr, err := Parse(`NOT (a = 1 AND b = 2)`)
	require.NoError(t, err)
	or, ok := expr.(Or)
	require.True(t, ok)
	left := or.Left.(Condition)
	right := or.Right.(Condition)
	require.Equal(t, NotEqual, left.Op)
	require.Equal(t, NotEqual, right.Op)
}

func TestNegationOfGeoRadiusSetsNegate(t *testing.T) {
	expr, err := Parse(`NOT _geoRadius(45, 9, 2000)`)
	require.NoError(t, err)
	g, ok := expr.(GeoRadius)
	require.True(t, ok)
	require.True(t, g.Negate)
}

func TestDoubleNegationCancels(t *testing.T) {
	expr, err := Parse(`NOT NOT color = blue`)
	require.NoError(t, err)
	cond, ok := expr.(Condition)
	require.True(t, ok)
	require.Equal(t, Equal, cond.Op)
}

func TestParseInvalidGeoRadiusArity(t *testing.T) {
	_, err := Parse(`_geoRadius(1, 2)`)
	require.Error(t, err)
}

func TestEvalNegationExcludesExactlyTheNegatedValue(t *testing.T) {
	env := openTestEnv(t)
	fieldsMap := index.NewFieldsIDsMap()
	colorID, err := fieldsMap.InsertOrGet("color")
	require.NoError(t, err)
	settings := settingsWithFilterable("color")

	colors := []string{"blue", "yellow", "red", "green"}
	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		for i, c := range colors {
			if err := facet.PutString(tx, colorID, c, uint32(i)); err != nil {
				return err
			}
			if err := docstore.PutExternalID(tx, c, uint32(i)); err != nil {
				return err
			}
		}
		return nil
	}))

	expr, err := Parse(`NOT (color = blue)`)
	require.NoError(t, err)

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		bm, err := Eval(tx, fieldsMap, settings, 4, expr)
		require.NoError(t, err)
		require.Equal(t, uint64(3), bm.GetCardinality())
		require.False(t, bm.Contains(0)) // blue excluded
		return nil
	}))
}

func TestEvalUnfilterableFieldErrors(t *testing.T) {
	env := openTestEnv(t)
	fieldsMap := index.NewFieldsIDsMap()
	_, err := fieldsMap.InsertOrGet("color")
	require.NoError(t, err)
	settings := index.DefaultSettings() // color not marked filterable

	expr, err := Parse(`color = blue`)
	require.NoError(t, err)

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		_, err := Eval(tx, fieldsMap, settings, 0, expr)
		require.Error(t, err)
		return nil
	}))
}

func TestEvalNumericRange(t *testing.T) {
	env := openTestEnv(t)
	fieldsMap := index.NewFieldsIDsMap()
	ageID, err := fieldsMap.InsertOrGet("age")
	require.NoError(t, err)
	settings := settingsWithFilterable("age")

	ages := []float64{10, 5500, 5999, 8000}
	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		for i, a := range ages {
			if err := facet.PutNumber(tx, ageID, a, uint32(i)); err != nil {
				return err
			}
		}
		return nil
	}))

	expr, err := Parse(`age > 5000 AND age < 6000`)
	require.NoError(t, err)

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		bm, err := Eval(tx, fieldsMap, settings, 4, expr)
		require.NoError(t, err)
		require.Equal(t, uint64(2), bm.GetCardinality())
		require.True(t, bm.Contains(1))
		require.True(t, bm.Contains(2))
		return nil
	}))
}
