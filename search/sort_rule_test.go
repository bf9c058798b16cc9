package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/storage/facet"
	"github.com/velasearch/vela/storage/mdbxkv"
)

func TestSortRuleAscendingNumeric(t *testing.T) {
	env := openTestEnv(t)
	const fieldID = uint16(5)

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		for id, val := range map[uint32]float64{1: 30, 2: 10, 3: 20} {
			if err := facet.PutDocNumber(tx, fieldID, id, val); err != nil {
				return err
			}
		}
		return nil
	}))

	universe := bitmapOf(1, 2, 3)
	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		rule := NewSortRule(fieldID, false)
		require.NoError(t, rule.StartIteration(tx, universe))

		b, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, b.Docids.Contains(2)) // value 10, smallest, first ascending

		b, err = rule.NextBucket()
		require.NoError(t, err)
		require.True(t, b.Docids.Contains(3))

		b, err = rule.NextBucket()
		require.NoError(t, err)
		require.True(t, b.Docids.Contains(1))
		return nil
	}))
}

func TestSortRuleMissingFieldAlwaysLast(t *testing.T) {
	env := openTestEnv(t)
	const fieldID = uint16(7)

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		return facet.PutDocNumber(tx, fieldID, 1, 100)
	}))

	universe := bitmapOf(1, 2) // doc 2 never got a value
	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		rule := NewSortRule(fieldID, true) // descending
		require.NoError(t, rule.StartIteration(tx, universe))

		first, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, first.Docids.Contains(1))

		last, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, last.Docids.Contains(2)) // missing always sorts last, even descending
		return nil
	}))
}
