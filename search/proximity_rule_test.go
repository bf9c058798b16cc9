package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/storage/mdbxkv"
)

func TestProximityRuleRanksTighterAdjacencyFirst(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		// doc 1: "the" and "matrix" are adjacent (proximity 1).
		if err := index.PutWordPairProximity(tx, "the", "matrix", 1, 1); err != nil {
			return err
		}
		// doc 2: the words occur five positions apart.
		return index.PutWordPairProximity(tx, "the", "matrix", 5, 2)
	}))

	terms := []termDocids{
		{term: QueryTerm{Candidates: []Candidate{{Word: "the"}}}, docids: bitmapOf(1, 2)},
		{term: QueryTerm{Candidates: []Candidate{{Word: "matrix"}}}, docids: bitmapOf(1, 2)},
	}
	universe := bitmapOf(1, 2)

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		rule := NewProximityRule(terms)
		require.NoError(t, rule.StartIteration(tx, universe))

		best, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, best.Docids.Contains(1))

		second, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, second.Docids.Contains(2))
		require.Greater(t, best.Score.Rank, second.Score.Rank)
		return nil
	}))
}

func TestProximityRuleSingleTermIsUnambiguouslyBest(t *testing.T) {
	env := openTestEnv(t)
	terms := []termDocids{
		{term: QueryTerm{Candidates: []Candidate{{Word: "solo"}}}, docids: bitmapOf(1)},
	}
	universe := bitmapOf(1)

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		rule := NewProximityRule(terms)
		require.NoError(t, rule.StartIteration(tx, universe))
		b, err := rule.NextBucket()
		require.NoError(t, err)
		require.Equal(t, uint32(1), b.Score.Rank)
		require.Equal(t, uint32(1), b.Score.MaxRank)
		return nil
	}))
}
