package search

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"
)

func TestTypoRuleRanksFewerTyposFirst(t *testing.T) {
	// doc 1 matched "matrix" exactly; doc 2 matched only the typo variant
	// "matrox" at distance 1; doc 3 matched a distance-2 variant.
	term := termDocids{
		term: QueryTerm{
			Original: "matrix",
			Candidates: []Candidate{
				{Word: "matrix", TypoDistance: 0},
				{Word: "matrox", TypoDistance: 1},
				{Word: "matryx", TypoDistance: 2},
			},
		},
		docids: bitmapOf(1, 2, 3),
		perCandidate: map[string]*roaring.Bitmap{
			"matrix": bitmapOf(1),
			"matrox": bitmapOf(2),
			"matryx": bitmapOf(3),
		},
	}
	universe := bitmapOf(1, 2, 3)

	rule := NewTypoRule([]termDocids{term})
	require.NoError(t, rule.StartIteration(nil, universe))

	best, err := rule.NextBucket()
	require.NoError(t, err)
	require.True(t, best.Docids.Contains(1))
	require.Greater(t, best.Score.Rank, uint32(0))

	second, err := rule.NextBucket()
	require.NoError(t, err)
	require.True(t, second.Docids.Contains(2))
	require.Greater(t, best.Score.Rank, second.Score.Rank)

	third, err := rule.NextBucket()
	require.NoError(t, err)
	require.True(t, third.Docids.Contains(3))
	require.Greater(t, second.Score.Rank, third.Score.Rank)
	require.Equal(t, uint32(1), third.Score.Rank) // worst possible is still rank 1, never 0
}

func TestTypoRuleNoTermsAllDocsTieAtRankOne(t *testing.T) {
	universe := bitmapOf(1, 2)
	rule := NewTypoRule(nil)
	require.NoError(t, rule.StartIteration(nil, universe))

	b, err := rule.NextBucket()
	require.NoError(t, err)
	require.Equal(t, uint64(2), b.Docids.GetCardinality())
	require.Equal(t, uint32(1), b.Score.Rank)
	require.Equal(t, uint32(1), b.Score.MaxRank)
}
