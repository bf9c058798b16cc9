package search

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// fakeRule partitions whatever universe it's given into buckets pre-baked
// by id, in the order given, ignoring any ids from universe that it wasn't
// told about (mirroring a real rule handing leftovers to the next stage).
type fakeRule struct {
	order  [][]uint32
	scores []*Rank
	next   int
}

func (r *fakeRule) StartIteration(_ *mdbxkv.Tx, _ *roaring.Bitmap) error {
	r.next = 0
	return nil
}

func (r *fakeRule) NextBucket() (*Bucket, error) {
	if r.next >= len(r.order) {
		return nil, nil
	}
	bm := roaring.New()
	bm.AddMany(r.order[r.next])
	var score *Rank
	if r.next < len(r.scores) {
		score = r.scores[r.next]
	}
	b := &Bucket{Docids: bm, Score: score}
	r.next++
	return b, nil
}

func (r *fakeRule) EndIteration() error { return nil }

func TestPaginateOrdersByBucketThenFallsBackToAscending(t *testing.T) {
	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3, 4, 5})

	rule := &fakeRule{
		order: [][]uint32{{3, 1}, {5}},
		scores: []*Rank{
			{Rank: 2, MaxRank: 2},
			{Rank: 1, MaxRank: 2},
		},
	}

	ordered, scores, err := Paginate(nil, []Rule{rule}, universe, 0, 10)
	require.NoError(t, err)
	// bucket {3,1} enumerates ascending internally once no further rule
	// refines it (fallback tie-break), then bucket {5}, then the leftover
	// {2,4} in ascending order since no rule placed them in a bucket.
	require.Equal(t, []uint32{1, 3, 5, 2, 4}, ordered)
	require.Equal(t, Rank{Rank: 2, MaxRank: 2}, scores[1][0])
	require.Equal(t, Rank{Rank: 2, MaxRank: 2}, scores[3][0])
	require.Equal(t, Rank{Rank: 1, MaxRank: 2}, scores[5][0])
	require.Nil(t, scores[2])
}

func TestPaginateSkipsWholeBucketsByCardinality(t *testing.T) {
	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3, 4, 5, 6})

	rule := &fakeRule{
		order: [][]uint32{{1, 2, 3}, {4, 5, 6}},
	}

	// offset 3 should skip the whole first bucket without ever expanding
	// it into per-document ranking.
	ordered, _, err := Paginate(nil, []Rule{rule}, universe, 3, 10)
	require.NoError(t, err)
	require.Equal(t, []uint32{4, 5, 6}, ordered)
}

func TestPaginateRespectsLimit(t *testing.T) {
	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3, 4})

	rule := &fakeRule{order: [][]uint32{{1, 2, 3, 4}}}
	ordered, _, err := Paginate(nil, []Rule{rule}, universe, 0, 2)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
}

func TestPaginateNoRulesEnumeratesAscending(t *testing.T) {
	universe := roaring.New()
	universe.AddMany([]uint32{9, 2, 5})

	ordered, _, err := Paginate(nil, nil, universe, 0, 10)
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 5, 9}, ordered)
}
