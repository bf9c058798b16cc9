package search

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// AttributeRule ranks documents by the best (searchable-attribute rank,
// in-attribute position) pair any matched query term achieved, earliest
// attribute and earliest position first (§4.4 "Attribute"). Attribute
// rank is the term's index in settings.SearchableAttributes (declaration
// order); when that list is empty every attribute is searchable and
// ranked by field id instead, since no declared order exists to rank by.
type AttributeRule struct {
	terms       []termDocids
	fieldsMap   *index.FieldsIDsMap
	attrRank    map[uint32]int
	maxAttrRank int

	buckets []Bucket
	next    int
}

func NewAttributeRule(terms []termDocids, fieldsMap *index.FieldsIDsMap, searchableAttributes []string) *AttributeRule {
	rank := map[uint32]int{}
	if len(searchableAttributes) > 0 {
		for i, name := range searchableAttributes {
			if id, ok := fieldsMap.ID(name); ok {
				rank[uint32(id)] = i
			}
		}
	}
	return &AttributeRule{terms: terms, fieldsMap: fieldsMap, attrRank: rank, maxAttrRank: len(searchableAttributes)}
}

func (r *AttributeRule) rankOf(attr uint32) int {
	if rnk, ok := r.attrRank[attr]; ok {
		return rnk
	}
	if r.maxAttrRank > 0 {
		return r.maxAttrRank // unranked attribute: worse than every declared one
	}
	return int(attr) // no declared order: fall back to field-id order
}

func (r *AttributeRule) StartIteration(tx *mdbxkv.Tx, universe *roaring.Bitmap) error {
	r.next = 0
	const worstCost = 1<<31 - 1

	cost := map[uint32]int{}
	it := universe.Iterator()
	for it.HasNext() {
		cost[it.Next()] = worstCost
	}

	for _, t := range r.terms {
		for _, cand := range t.term.Candidates {
			matched, ok := t.perCandidate[cand.Word]
			if !ok {
				continue
			}
			matched = roaring.And(matched, universe)
			mit := matched.Iterator()
			for mit.HasNext() {
				id := mit.Next()
				positions, err := index.WordPositions(tx, id, cand.Word)
				if err != nil {
					return err
				}
				pit := positions.Iterator()
				for pit.HasNext() {
					pos := pit.Next()
					attr := index.SplitAttribute(pos)
					offset := index.SplitOffset(pos)
					combined := r.rankOf(attr)*index.MaxPosition + offset
					if combined < cost[id] {
						cost[id] = combined
					}
				}
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

	maxCost := (r.maxAttrRank+1)*index.MaxPosition + index.MaxPosition
	r.buckets = make([]Bucket, 0, len(costs))
	for _, c := range costs {
		cc := c
		if cc > maxCost {
			cc = maxCost
		}
		// rank is 1-indexed; see typo_rule.go for why 0 is never used here.
		rank := maxCost - cc + 1
		r.buckets = append(r.buckets, Bucket{
			Docids: byCost[c],
			Score:  &Rank{Rank: uint32(rank), MaxRank: uint32(maxCost + 1)},
		})
	}
	return nil
}

func (r *AttributeRule) NextBucket() (*Bucket, error) {
	if r.next >= len(r.buckets) {
		return nil, nil
	}
	b := r.buckets[r.next]
	r.next++
	return &b, nil
}

func (r *AttributeRule) EndIteration() error {
	r.buckets = nil
	return nil
}
