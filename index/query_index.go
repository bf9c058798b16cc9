package index

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// WordDocids returns the posting list for an exact word.
func WordDocids(tx *mdbxkv.Tx, word string) (*roaring.Bitmap, error) {
	return tx.GetBitmap(mdbxkv.WordDocids, []byte(word))
}

// WordPrefixDocids returns the posting list for every word carrying
// prefix, up to maxPrefixLength characters (see pipeline.go's
// addWordPrefixPostings). A prefix longer than that bound was never
// written and always returns an empty bitmap; callers doing prefix
// completion should fall back to a WordSet.PrefixSearch scan in that case.
func WordPrefixDocids(tx *mdbxkv.Tx, prefix string) (*roaring.Bitmap, error) {
	return tx.GetBitmap(mdbxkv.WordPrefixDocids, []byte(prefix))
}

// WordPositions returns the packed Position bitmap recorded for word
// inside docID (§4.3 step 4 "docid-word-positions").
func WordPositions(tx *mdbxkv.Tx, docID uint32, word string) (*roaring.Bitmap, error) {
	return tx.GetBitmap(mdbxkv.DocidWordPositions, docidWordKey(docID, word))
}

// PutWordPosition records one occurrence of word at pos (see Position)
// inside docID, unioning into whatever was already recorded there. The
// indexing pipeline writes the same keys (see pipeline.go's
// addWordPosting); exported for symmetry with WordPositions above.
func PutWordPosition(tx *mdbxkv.RwTx, docID uint32, word string, pos uint32) error {
	bm := roaring.New()
	bm.Add(pos)
	return tx.UnionBitmap(mdbxkv.DocidWordPositions, docidWordKey(docID, word), bm)
}

// WordPairProximity returns the union of w1/w2's posting lists at every
// proximity from 1 up to and including maxProximity, the bound the
// Proximity ranking rule reads (§4.4 "word-pair-proximity ... proximity
// <= 7").
func WordPairProximity(tx *mdbxkv.Tx, w1, w2 string, maxProximity uint8) (*roaring.Bitmap, error) {
	out := roaring.New()
	for p := uint8(1); p <= maxProximity; p++ {
		bm, err := WordPairProximityAt(tx, w1, w2, p)
		if err != nil {
			return nil, err
		}
		out.Or(bm)
		if p == 255 {
			break // defend against maxProximity == 255 wrapping the loop counter
		}
	}
	return out, nil
}

// WordPairProximityAt returns the posting list for the (w1, w2) pair at
// exactly proximity, the smallest observed in-document distance the
// indexing pipeline recorded for that ordered pair.
func WordPairProximityAt(tx *mdbxkv.Tx, w1, w2 string, proximity uint8) (*roaring.Bitmap, error) {
	return tx.GetBitmap(mdbxkv.WordPairProximity, wordPairKey(w1, w2, proximity))
}

// PutWordPairProximity records that docID carries the (w1, w2) pair at
// proximity, unioning into whatever posting list already exists there. The
// indexing pipeline writes the same keys (see pipeline.go's
// applyExtraction); exported for symmetry with the getters above.
func PutWordPairProximity(tx *mdbxkv.RwTx, w1, w2 string, proximity uint8, docID uint32) error {
	bm := roaring.New()
	bm.Add(docID)
	return tx.UnionBitmap(mdbxkv.WordPairProximity, wordPairKey(w1, w2, proximity), bm)
}
