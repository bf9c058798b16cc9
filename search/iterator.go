package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// Bucket is one ordered partition a ranking rule hands back from
// NextBucket: every document in Docids is considered equally ranked by
// this rule and gets handed to the next rule as its own universe. Score
// is this bucket's contribution to every document inside it; it is nil
// for rules that don't participate in the global-score fold (Sort,
// GeoSort — §4.4).
type Bucket struct {
	Docids *roaring.Bitmap
	Score  *Rank
}

// Rule is one ranking rule in the composed chain (§4.4 "Ranking rule
// contract"). StartIteration is called once per invocation of this rule
// at this position in the tree, with the universe it must partition;
// NextBucket is called repeatedly, best bucket first, until it returns
// nil, at which point any documents in the universe it never emitted are
// handed unranked to the next rule (or, if this was the last rule,
// enumerated in ascending internal document id, per the tie-break rule).
// EndIteration releases any per-query resources (e.g. the buckets a rule
// precomputed in StartIteration).
type Rule interface {
	StartIteration(tx *mdbxkv.Tx, universe *roaring.Bitmap) error
	NextBucket() (*Bucket, error)
	EndIteration() error
}

// Paginate runs the rule chain over universe and returns up to limit
// ordered docids starting at offset, along with each returned document's
// per-rule score breakdown (outermost/most-significant rule first). It
// never materializes a full ranking of the universe: a bucket whose
// cardinality is less than or equal to the still-remaining skip count is
// dropped without recursing into the rules that would otherwise rank its
// contents (§4.4 "recursively skips entire subtrees ... without
// enumerating their leaves").
func Paginate(tx *mdbxkv.Tx, rules []Rule, universe *roaring.Bitmap, offset, limit int) ([]uint32, map[uint32][]Rank, error) {
	out := make([]uint32, 0, limit)
	scores := map[uint32][]Rank{}
	skip := offset
	if err := collect(tx, rules, 0, universe, &skip, &limit, &out, scores); err != nil {
		return nil, nil, err
	}
	return out, scores, nil
}

func collect(tx *mdbxkv.Tx, rules []Rule, idx int, docids *roaring.Bitmap, skip, limit *int, out *[]uint32, scores map[uint32][]Rank) error {
	if *limit <= 0 {
		return nil
	}
	if idx == len(rules) || docids.GetCardinality() <= 1 {
		emitAscending(docids, skip, limit, out)
		return nil
	}

	rule := rules[idx]
	if err := rule.StartIteration(tx, docids); err != nil {
		return err
	}
	defer rule.EndIteration()

	consumed := roaring.New()
	for *limit > 0 {
		bucket, err := rule.NextBucket()
		if err != nil {
			return err
		}
		if bucket == nil {
			break
		}
		consumed.Or(bucket.Docids)

		card := bucket.Docids.GetCardinality()
		if uint64(*skip) >= card {
			*skip -= int(card)
			continue
		}

		before := len(*out)
		if err := collect(tx, rules, idx+1, bucket.Docids, skip, limit, out, scores); err != nil {
			return err
		}
		if bucket.Score != nil {
			for _, id := range (*out)[before:] {
				scores[id] = append([]Rank{*bucket.Score}, scores[id]...)
			}
		}
	}

	if *limit > 0 {
		remaining := roaring.AndNot(docids, consumed)
		if !remaining.IsEmpty() {
			return collect(tx, rules, idx+1, remaining, skip, limit, out, scores)
		}
	}
	return nil
}

// emitAscending enumerates docids in internal-id order, the fallback
// ordering once every rule has been exhausted or a bucket has shrunk to
// at most one document (§4.4 "ties ... break by internal document id
// ascending").
func emitAscending(docids *roaring.Bitmap, skip, limit *int, out *[]uint32) {
	it := docids.Iterator()
	for it.HasNext() {
		id := it.Next()
		if *skip > 0 {
			*skip--
			continue
		}
		if *limit <= 0 {
			return
		}
		*out = append(*out, id)
		*limit--
	}
}
