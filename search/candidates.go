package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// termDocids is every document matching any candidate of one query term
// (§4.4 "Candidate universe"), precomputed once per term since almost
// every ranking rule needs to know which documents a term touches at all.
type termDocids struct {
	term   QueryTerm
	docids *roaring.Bitmap
	// perCandidate holds each candidate's own posting list, needed by the
	// Typo rule (which candidate matched) and the Attribute/Proximity
	// rules (where it matched), not just whether the term matched at all.
	perCandidate map[string]*roaring.Bitmap
}

// resolveTermDocids reads the posting list of every candidate of g's
// terms. Exact and typo-variant candidates read WordDocids; prefix
// candidates read WordPrefixDocids when the completion is short enough to
// have one (see index.WordPrefixDocids), falling back to the union of
// each matched vocabulary word's own posting list otherwise.
func resolveTermDocids(tx *mdbxkv.Tx, g QueryGraph) ([]termDocids, error) {
	out := make([]termDocids, len(g.Terms))
	for i, term := range g.Terms {
		td := termDocids{term: term, docids: roaring.New(), perCandidate: map[string]*roaring.Bitmap{}}
		for _, cand := range term.Candidates {
			var bm *roaring.Bitmap
			var err error
			if cand.IsPrefix {
				bm, err = index.WordPrefixDocids(tx, cand.Word)
				if err == nil && bm.IsEmpty() {
					bm, err = index.WordDocids(tx, cand.Word)
				}
			} else {
				bm, err = index.WordDocids(tx, cand.Word)
			}
			if err != nil {
				return nil, err
			}
			td.perCandidate[cand.Word] = bm
			td.docids.Or(bm)
		}
		out[i] = td
	}
	return out, nil
}

func allDocIDs(bound uint32) *roaring.Bitmap {
	bm := roaring.New()
	for i := uint32(0); i < bound; i++ {
		bm.Add(i)
	}
	return bm
}
