package search

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// WordsRule ranks documents by how many distinct query terms they match
// at all, most matched first (§4.4 "Words": matching_words/max_matching_words).
// Documents matching every term form the best bucket, down to documents
// matching just one term; documents matching zero terms never entered the
// universe in the first place.
type WordsRule struct {
	terms []termDocids

	buckets []Bucket
	next    int
}

func NewWordsRule(terms []termDocids) *WordsRule {
	return &WordsRule{terms: terms}
}

func (r *WordsRule) StartIteration(_ *mdbxkv.Tx, universe *roaring.Bitmap) error {
	r.next = 0
	if len(r.terms) == 0 {
		r.buckets = []Bucket{{Docids: universe.Clone(), Score: &Rank{Rank: 1, MaxRank: 1}}}
		return nil
	}

	maxWords := len(r.terms)
	counts := map[uint32]int{}
	it := universe.Iterator()
	for it.HasNext() {
		id := it.Next()
		n := 0
		for _, t := range r.terms {
			if t.docids.Contains(id) {
				n++
			}
		}
		counts[id] = n
	}

	byCount := map[int]*roaring.Bitmap{}
	for id, n := range counts {
		if n == 0 {
			continue
		}
		bm, ok := byCount[n]
		if !ok {
			bm = roaring.New()
			byCount[n] = bm
		}
		bm.Add(id)
	}

	var levels []int
	for n := range byCount {
		levels = append(levels, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(levels)))

	r.buckets = make([]Bucket, 0, len(levels))
	for _, n := range levels {
		r.buckets = append(r.buckets, Bucket{
			Docids: byCount[n],
			Score:  &Rank{Rank: uint32(n), MaxRank: uint32(maxWords)},
		})
	}
	return nil
}

func (r *WordsRule) NextBucket() (*Bucket, error) {
	if r.next >= len(r.buckets) {
		return nil, nil
	}
	b := r.buckets[r.next]
	r.next++
	return &b, nil
}

func (r *WordsRule) EndIteration() error {
	r.buckets = nil
	return nil
}
