package search

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"
)

func bitmapOf(ids ...uint32) *roaring.Bitmap {
	bm := roaring.New()
	bm.AddMany(ids)
	return bm
}

func TestWordsRuleRanksByDistinctTermsMatched(t *testing.T) {
	terms := []termDocids{
		{term: QueryTerm{Original: "matrix"}, docids: bitmapOf(1, 2, 3)},
		{term: QueryTerm{Original: "reloaded"}, docids: bitmapOf(1, 2)},
	}
	universe := bitmapOf(1, 2, 3)

	rule := NewWordsRule(terms)
	require.NoError(t, rule.StartIteration(nil, universe))

	first, err := rule.NextBucket()
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, uint64(2), first.Docids.GetCardinality())
	require.True(t, first.Docids.Contains(1))
	require.True(t, first.Docids.Contains(2))
	require.Equal(t, uint32(2), first.Score.Rank)
	require.Equal(t, uint32(2), first.Score.MaxRank)

	second, err := rule.NextBucket()
	require.NoError(t, err)
	require.NotNil(t, second)
	require.True(t, second.Docids.Contains(3))
	require.Equal(t, uint32(1), second.Score.Rank)

	done, err := rule.NextBucket()
	require.NoError(t, err)
	require.Nil(t, done)
}

func TestWordsRuleNoTermsIsOneFullRankBucket(t *testing.T) {
	universe := bitmapOf(1, 2)
	rule := NewWordsRule(nil)
	require.NoError(t, rule.StartIteration(nil, universe))

	b, err := rule.NextBucket()
	require.NoError(t, err)
	require.Equal(t, uint64(2), b.Docids.GetCardinality())
	require.Equal(t, uint32(1), b.Score.Rank)
	require.Equal(t, uint32(1), b.Score.MaxRank)
}
