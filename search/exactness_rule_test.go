package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/storage/docstore"
	"github.com/velasearch/vela/storage/mdbxkv"
)

func TestExactnessRuleClassifiesFullStartAndNoMatch(t *testing.T) {
	env := openTestEnv(t)
	fieldsMap := index.NewFieldsIDsMap()
	titleID, err := fieldsMap.InsertOrGet("title")
	require.NoError(t, err)

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		docs := map[uint32]string{
			1: `"The Matrix"`,
			2: `"The Matrix Reloaded"`,
			3: `"Unrelated"`,
		}
		for id, raw := range docs {
			if err := docstore.Put(tx, id, map[docstore.FieldID][]byte{titleID: []byte(raw)}); err != nil {
				return err
			}
		}
		return nil
	}))

	universe := bitmapOf(1, 2, 3)

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		rule := NewExactnessRule(fieldsMap, []string{"title"}, "the matrix")
		require.NoError(t, rule.StartIteration(tx, universe))

		full, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, full.Docids.Contains(1))
		require.Equal(t, uint32(3), full.Score.Rank)

		start, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, start.Docids.Contains(2))
		require.Equal(t, uint32(2), start.Score.Rank)

		none, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, none.Docids.Contains(3))
		require.Equal(t, uint32(1), none.Score.Rank) // worst case still rank 1, never 0

		done, err := rule.NextBucket()
		require.NoError(t, err)
		require.Nil(t, done)
		return nil
	}))
}

func TestExactnessRuleEmptyQueryNeverMatches(t *testing.T) {
	env := openTestEnv(t)
	fieldsMap := index.NewFieldsIDsMap()
	universe := bitmapOf(1)

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		rule := NewExactnessRule(fieldsMap, nil, "")
		require.NoError(t, rule.StartIteration(tx, universe))
		b, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, b.Docids.Contains(1))
		require.Equal(t, uint32(1), b.Score.Rank)
		return nil
	}))
}
