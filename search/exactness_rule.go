package search

import (
	"encoding/json"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/storage/docstore"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// ExactnessRule ranks documents by how fully a searchable field matched
// the query verbatim (§4.4 "Exactness"): a field equal to the whole query
// beats one merely starting with it, which beats no verbatim match at
// all. Within NoExactMatch, documents keep the relative order the
// previous rule gave them (this rule reports no further distinction
// there: NoExactMatch has no secondary sub-rank).
type ExactnessRule struct {
	fieldsMap            *index.FieldsIDsMap
	searchableAttributes []string
	normalizedQuery      string

	buckets []Bucket
	next    int
}

func NewExactnessRule(fieldsMap *index.FieldsIDsMap, searchableAttributes []string, query string) *ExactnessRule {
	return &ExactnessRule{
		fieldsMap:            fieldsMap,
		searchableAttributes: searchableAttributes,
		normalizedQuery:      strings.ToLower(strings.TrimSpace(query)),
	}
}

func (r *ExactnessRule) searchableFieldIDs() map[docstore.FieldID]struct{} {
	if len(r.searchableAttributes) == 0 {
		return nil // nil means "project every field" (see docstore.Project)
	}
	out := map[docstore.FieldID]struct{}{}
	for _, name := range r.searchableAttributes {
		if id, ok := r.fieldsMap.ID(name); ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (r *ExactnessRule) StartIteration(tx *mdbxkv.Tx, universe *roaring.Bitmap) error {
	r.next = 0
	wanted := r.searchableFieldIDs()

	full := roaring.New()
	start := roaring.New()
	none := roaring.New()

	it := universe.Iterator()
	for it.HasNext() {
		id := it.Next()
		match, err := r.classify(tx, id, wanted)
		if err != nil {
			return err
		}
		switch match {
		case MatchesFull:
			full.Add(id)
		case MatchesStart:
			start.Add(id)
		default:
			none.Add(id)
		}
	}

	r.buckets = nil
	if !full.IsEmpty() {
		r.buckets = append(r.buckets, Bucket{Docids: full, Score: &Rank{Rank: 3, MaxRank: 3}})
	}
	if !start.IsEmpty() {
		r.buckets = append(r.buckets, Bucket{Docids: start, Score: &Rank{Rank: 2, MaxRank: 3}})
	}
	if !none.IsEmpty() {
		r.buckets = append(r.buckets, Bucket{Docids: none, Score: &Rank{Rank: 1, MaxRank: 3}})
	}
	return nil
}

func (r *ExactnessRule) classify(tx *mdbxkv.Tx, docID uint32, wanted map[docstore.FieldID]struct{}) (ExactnessMatchType, error) {
	if r.normalizedQuery == "" {
		return NoExactMatch, nil
	}
	fields, ok, err := docstore.GetProjected(tx, docID, wanted)
	if err != nil || !ok {
		return NoExactMatch, err
	}
	best := NoExactMatch
	for _, raw := range fields {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		norm := strings.ToLower(s)
		switch {
		case norm == r.normalizedQuery:
			return MatchesFull, nil
		case strings.HasPrefix(norm, r.normalizedQuery) && best < MatchesStart:
			best = MatchesStart
		}
	}
	return best, nil
}

func (r *ExactnessRule) NextBucket() (*Bucket, error) {
	if r.next >= len(r.buckets) {
		return nil, nil
	}
	b := r.buckets[r.next]
	r.next++
	return &b, nil
}

func (r *ExactnessRule) EndIteration() error {
	r.buckets = nil
	return nil
}
