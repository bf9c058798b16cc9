package search

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// maxProximity mirrors the indexing pipeline's own bound (pipeline.go's
// maxProximity, applied in extractDocument): word pairs farther apart than this never get a
// word-pair-proximity entry at all, so there is nothing finer to rank by
// beyond it.
const maxProximity = 7

// ProximityRule ranks documents by the minimal cumulative adjacency cost
// between consecutive query terms, tightest first (§4.4 "Proximity"). A
// term pair with no recorded word-pair-proximity entry for any of their
// candidates (too far apart anywhere it appears, or never co-occurring)
// costs the worst possible proximity for that pair.
type ProximityRule struct {
	terms []termDocids

	buckets []Bucket
	next    int
}

func NewProximityRule(terms []termDocids) *ProximityRule {
	return &ProximityRule{terms: terms}
}

func (r *ProximityRule) StartIteration(tx *mdbxkv.Tx, universe *roaring.Bitmap) error {
	r.next = 0
	numPairs := 0
	if len(r.terms) > 1 {
		numPairs = len(r.terms) - 1
	}
	maxCost := maxProximity * numPairs

	cost := map[uint32]int{}
	it := universe.Iterator()
	for it.HasNext() {
		cost[it.Next()] = 0
	}

	for i := 0; i+1 < len(r.terms); i++ {
		pairCost, err := pairProximityCost(tx, r.terms[i], r.terms[i+1], universe)
		if err != nil {
			return err
		}
		for id := range cost {
			if c, ok := pairCost[id]; ok {
				cost[id] += c
			} else {
				cost[id] += maxProximity
			}
		}
	}

	byCost := map[int]*roaring.Bitmap{}
	for id, c := range cost {
		bm, ok := byCost[c]
		if !ok {
			bm = roaring.New()
			byCost[c] = bm
		}
		bm.Add(id)
	}
	var costs []int
	for c := range byCost {
		costs = append(costs, c)
	}
	sort.Ints(costs)

	r.buckets = make([]Bucket, 0, len(costs))
	for _, c := range costs {
		// rank is 1-indexed; see typo_rule.go for why 0 is never used here.
		rank := maxCost - c + 1
		r.buckets = append(r.buckets, Bucket{
			Docids: byCost[c],
			Score:  &Rank{Rank: uint32(rank), MaxRank: uint32(maxCost + 1)},
		})
	}
	return nil
}

// pairProximityCost returns, for every document in universe, the smallest
// recorded proximity between any candidate pair of term1 and term2.
func pairProximityCost(tx *mdbxkv.Tx, term1, term2 termDocids, universe *roaring.Bitmap) (map[uint32]int, error) {
	out := map[uint32]int{}
	for p := uint8(1); p <= maxProximity; p++ {
		for _, c1 := range term1.term.Candidates {
			for _, c2 := range term2.term.Candidates {
				bm, err := index.WordPairProximityAt(tx, c1.Word, c2.Word, p)
				if err != nil {
					return nil, err
				}
				bm = roaring.And(bm, universe)
				it := bm.Iterator()
				for it.HasNext() {
					id := it.Next()
					if _, seen := out[id]; !seen {
						out[id] = int(p)
					}
				}
			}
		}
	}
	return out, nil
}

func (r *ProximityRule) NextBucket() (*Bucket, error) {
	if r.next >= len(r.buckets) {
		return nil, nil
	}
	b := r.buckets[r.next]
	r.next++
	return &b, nil
}

func (r *ProximityRule) EndIteration() error {
	r.buckets = nil
	return nil
}
