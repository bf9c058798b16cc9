package search

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// TypoRule ranks documents by total typo distance across every query term
// they matched, fewest typos first (§4.4 "Typo"). A document matching a
// term only through an exact or prefix candidate contributes 0 for that
// term; matching only through a typo-tolerant variant contributes that
// variant's Levenshtein distance, taking the cheapest candidate available
// if more than one matched.
type TypoRule struct {
	terms []termDocids

	buckets []Bucket
	next    int
}

func NewTypoRule(terms []termDocids) *TypoRule {
	return &TypoRule{terms: terms}
}

func (r *TypoRule) StartIteration(_ *mdbxkv.Tx, universe *roaring.Bitmap) error {
	r.next = 0
	maxCost := 2 * len(r.terms)

	byCost := map[int]*roaring.Bitmap{}
	it := universe.Iterator()
	for it.HasNext() {
		id := it.Next()
		cost := r.docTypoCost(id)
		bm, ok := byCost[cost]
		if !ok {
			bm = roaring.New()
			byCost[cost] = bm
		}
		bm.Add(id)
	}

	var costs []int
	for c := range byCost {
		costs = append(costs, c)
	}
	sort.Ints(costs) // ascending cost = best first

	r.buckets = make([]Bucket, 0, len(costs))
	for _, cost := range costs {
		// rank is 1-indexed (rank 0 is reserved for "doesn't match at all",
		// never true of a document already in the universe): a document with
		// the worst possible typo cost still gets rank 1, not 0.
		rank := maxCost - cost + 1
		r.buckets = append(r.buckets, Bucket{
			Docids: byCost[cost],
			Score:  &Rank{Rank: uint32(rank), MaxRank: uint32(maxCost + 1)},
		})
	}
	return nil
}

func (r *TypoRule) docTypoCost(id uint32) int {
	total := 0
	for _, t := range r.terms {
		best := -1
		for _, cand := range t.term.Candidates {
			bm, ok := t.perCandidate[cand.Word]
			if !ok || !bm.Contains(id) {
				continue
			}
			if best == -1 || cand.TypoDistance < best {
				best = cand.TypoDistance
			}
		}
		if best > 0 {
			total += best
		}
	}
	return total
}

func (r *TypoRule) NextBucket() (*Bucket, error) {
	if r.next >= len(r.buckets) {
		return nil, nil
	}
	b := r.buckets[r.next]
	r.next++
	return &b, nil
}

func (r *TypoRule) EndIteration() error {
	r.buckets = nil
	return nil
}
