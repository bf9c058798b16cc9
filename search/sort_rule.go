package search

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/facet"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// SortRule ranks documents by one sortable attribute's value, ascending or
// descending; documents missing the attribute entirely always sort last
// regardless of direction (§4.4 "Sort"). It always resolves each
// document's own value through the reverse (fieldID, docID) index
// (storage/facet's DocValue) rather than choosing between an eager
// per-document lookup and a lazy descent of the forward facet-value tree
// above a configurable universe-size threshold — see DESIGN.md for why
// that distinction was folded into a single code path here.
type SortRule struct {
	fieldID    uint16
	descending bool

	buckets []Bucket
	next    int
}

func NewSortRule(fieldID uint16, descending bool) *SortRule {
	return &SortRule{fieldID: fieldID, descending: descending}
}

func (r *SortRule) StartIteration(tx *mdbxkv.Tx, universe *roaring.Bitmap) error {
	r.next = 0

	type keyed struct {
		numeric bool
		num     float64
		str     string
		docs    *roaring.Bitmap
	}
	byValue := map[string]*keyed{}
	missing := roaring.New()

	it := universe.Iterator()
	for it.HasNext() {
		id := it.Next()
		dv, ok, err := facet.GetDocValue(tx, r.fieldID, id)
		if err != nil {
			return err
		}
		if !ok {
			missing.Add(id)
			continue
		}
		var sig string
		if dv.IsNumeric {
			sig = fmt.Sprintf("n:%v", dv.Number)
		} else {
			sig = "s:" + dv.String
		}
		k, ok := byValue[sig]
		if !ok {
			k = &keyed{numeric: dv.IsNumeric, num: dv.Number, str: dv.String, docs: roaring.New()}
			byValue[sig] = k
		}
		k.docs.Add(id)
	}

	values := make([]*keyed, 0, len(byValue))
	for _, k := range byValue {
		values = append(values, k)
	}
	sort.Slice(values, func(i, j int) bool {
		a, b := values[i], values[j]
		var less bool
		switch {
		case a.numeric && b.numeric:
			less = a.num < b.num
		case !a.numeric && !b.numeric:
			less = a.str < b.str
		default:
			less = !a.numeric // strings sort before numbers when the field mixes types
		}
		if r.descending {
			return !less
		}
		return less
	})

	r.buckets = make([]Bucket, 0, len(values)+1)
	for _, v := range values {
		r.buckets = append(r.buckets, Bucket{Docids: v.docs, Score: nil})
	}
	if !missing.IsEmpty() {
		r.buckets = append(r.buckets, Bucket{Docids: missing, Score: nil})
	}
	return nil
}

func (r *SortRule) NextBucket() (*Bucket, error) {
	if r.next >= len(r.buckets) {
		return nil, nil
	}
	b := r.buckets[r.next]
	r.next++
	return &b, nil
}

func (r *SortRule) EndIteration() error {
	r.buckets = nil
	return nil
}
