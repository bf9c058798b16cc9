package facet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/storage/mdbxkv"
)

func openTestEnv(t *testing.T) *mdbxkv.Env {
	t.Helper()
	env, err := mdbxkv.Open(t.TempDir(), mdbxkv.IndexTables, mdbxkv.IndexTablesCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestNumberEqualityAndRange(t *testing.T) {
	env := openTestEnv(t)
	const field = uint16(3)

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		for doc, v := range map[uint32]float64{1: 1.5, 2: 2.5, 3: 2.5, 4: 10, 5: -4} {
			if err := PutNumber(tx, field, v, doc); err != nil {
				return err
			}
		}
		return RebuildLevels(tx, field)
	}))

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		bm, err := EqualityNumber(tx, field, 2.5)
		require.NoError(t, err)
		require.ElementsMatch(t, []uint32{2, 3}, bm.ToArray())

		rangeBm, err := RangeNumber(tx, field, 0, 5)
		require.NoError(t, err)
		require.ElementsMatch(t, []uint32{1, 2, 3}, rangeBm.ToArray())

		full, err := RangeNumber(tx, field, -100, 100)
		require.NoError(t, err)
		require.ElementsMatch(t, []uint32{1, 2, 3, 4, 5}, full.ToArray())
		return nil
	}))
}

func TestNumberRangeWithManyGroups(t *testing.T) {
	env := openTestEnv(t)
	const field = uint16(1)

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		for i := uint32(0); i < 40; i++ {
			if err := PutNumber(tx, field, float64(i), i); err != nil {
				return err
			}
		}
		return RebuildLevels(tx, field)
	}))

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		bm, err := RangeNumber(tx, field, 10, 19)
		require.NoError(t, err)
		expected := make([]uint32, 0, 10)
		for i := uint32(10); i <= 19; i++ {
			expected = append(expected, i)
		}
		require.ElementsMatch(t, expected, bm.ToArray())
		return nil
	}))
}

func TestStringEqualityAndDistribution(t *testing.T) {
	env := openTestEnv(t)
	const field = uint16(7)

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		values := map[uint32]string{1: "red", 2: "red", 3: "blue", 4: "green"}
		for doc, v := range values {
			if err := PutString(tx, field, NormalizeString(v), doc); err != nil {
				return err
			}
		}
		return RebuildStringLevels(tx, field)
	}))

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		bm, err := EqualityString(tx, field, "RED ")
		require.NoError(t, err)
		require.ElementsMatch(t, []uint32{1, 2}, bm.ToArray())

		dist, err := Distribution(tx, field, 2)
		require.NoError(t, err)
		require.Len(t, dist, 2)
		require.Equal(t, "red", dist[0].Value)
		require.Equal(t, uint64(2), dist[0].Count)
		return nil
	}))
}

func TestNumberRemove(t *testing.T) {
	env := openTestEnv(t)
	const field = uint16(2)

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		require.NoError(t, PutNumber(tx, field, 1, 100))
		require.NoError(t, PutNumber(tx, field, 1, 200))
		return RebuildLevels(tx, field)
	}))
	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		require.NoError(t, RemoveNumber(tx, field, 1, 100))
		return RebuildLevels(tx, field)
	}))

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		bm, err := EqualityNumber(tx, field, 1)
		require.NoError(t, err)
		require.ElementsMatch(t, []uint32{200}, bm.ToArray())
		return nil
	}))
}

func TestEncodeF64Ordering(t *testing.T) {
	values := []float64{-100, -1.5, -0.001, 0, 0.001, 1.5, 100}
	for i := 1; i < len(values); i++ {
		require.Lessf(t, EncodeF64(values[i-1]), EncodeF64(values[i]),
			"%v should sort before %v", values[i-1], values[i])
	}
}
