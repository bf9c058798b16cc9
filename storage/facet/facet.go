package facet

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// ValueCount is one entry of a facet distribution: a distinct value and
// the number of documents carrying it.
type ValueCount struct {
	Value string
	Count uint64
}

// PutNumber adds docID to the level-0 posting list of (fieldID, value) in
// the numeric facet table. It does not touch the level>0 summaries;
// RebuildLevels regenerates those from level 0. The indexing pipeline does
// not call RebuildLevels, so an index it builds holds level-0 entries only
// and RangeNumber walks level 0 directly.
func PutNumber(tx *mdbxkv.RwTx, fieldID uint16, value float64, docID uint32) error {
	key := f64Key(fieldID, 0, EncodeF64(value))
	extra := roaring.New()
	extra.Add(docID)
	return tx.UnionBitmap(mdbxkv.FacetIDF64Docids, key, extra)
}

// RemoveNumber removes docID from the level-0 posting list for value.
func RemoveNumber(tx *mdbxkv.RwTx, fieldID uint16, value float64, docID uint32) error {
	key := f64Key(fieldID, 0, EncodeF64(value))
	extra := roaring.New()
	extra.Add(docID)
	return tx.SubtractBitmap(mdbxkv.FacetIDF64Docids, key, extra)
}

// PutString is PutNumber's string-facet counterpart. value must already be
// normalized (see NormalizeString).
func PutString(tx *mdbxkv.RwTx, fieldID uint16, value string, docID uint32) error {
	key := stringKey(fieldID, 0, value)
	extra := roaring.New()
	extra.Add(docID)
	return tx.UnionBitmap(mdbxkv.FacetIDStringDocids, key, extra)
}

// RemoveString is RemoveNumber's string-facet counterpart.
func RemoveString(tx *mdbxkv.RwTx, fieldID uint16, value string, docID uint32) error {
	key := stringKey(fieldID, 0, value)
	extra := roaring.New()
	extra.Add(docID)
	return tx.SubtractBitmap(mdbxkv.FacetIDStringDocids, key, extra)
}

// EqualityNumber returns the posting list for one exact numeric value.
func EqualityNumber(tx *mdbxkv.Tx, fieldID uint16, value float64) (*roaring.Bitmap, error) {
	return tx.GetBitmap(mdbxkv.FacetIDF64Docids, f64Key(fieldID, 0, EncodeF64(value)))
}

// EqualityString returns the posting list for one exact (normalized)
// string value.
func EqualityString(tx *mdbxkv.Tx, fieldID uint16, value string) (*roaring.Bitmap, error) {
	return tx.GetBitmap(mdbxkv.FacetIDStringDocids, stringKey(fieldID, 0, NormalizeString(value)))
}

// RangeNumber returns the union of every posting list whose value falls in
// [lower, upper]. It walks the top summary level down, skipping whole
// groups that fall entirely outside the bound, and only decodes level-0
// bitmaps for values that survive (the point of paging the index at all).
func RangeNumber(tx *mdbxkv.Tx, fieldID uint16, lower, upper float64) (*roaring.Bitmap, error) {
	lo, hi := EncodeF64(lower), EncodeF64(upper)
	if lo > hi {
		lo, hi = hi, lo
	}
	top, err := topLevel(tx, mdbxkv.FacetIDF64Docids, fieldID, true)
	if err != nil {
		return nil, err
	}
	result := roaring.New()
	err = walkF64Level(tx, fieldID, top, f64Prefix(fieldID, top), nil, lo, hi, result)
	return result, err
}

// walkF64Level scans level for fieldID starting at from, accumulating every
// docid whose value key lies in [lo, hi] into result. until, when non-nil,
// bounds the scan to one group's own children: descending into a
// partially-overlapping level-L group only ever rescans that group's own
// [left, rightBound] run of level-(L-1) keys, not the whole level below it.
func walkF64Level(tx *mdbxkv.Tx, fieldID uint16, level uint8, from []byte, until *uint64, lo, hi uint64, result *roaring.Bitmap) error {
	prefix := f64Prefix(fieldID, level)
	return tx.SeekRange(mdbxkv.FacetIDF64Docids, from, func(k, v []byte) (bool, error) {
		if !hasPrefix(k, prefix) {
			return false, nil
		}
		_, _, left := parseF64Key(k)
		if until != nil && left > *until {
			return false, nil
		}

		if level == 0 {
			if left < lo || left > hi {
				return true, nil
			}
			bm, err := roaringFromBitmapBytes(v)
			if err != nil {
				return false, err
			}
			result.Or(bm)
			return true, nil
		}

		right, child, err := decodeGroupValue(v)
		if err != nil {
			return false, err
		}
		rightBound := uint64FromBytes(right)
		if rightBound < lo || left > hi {
			return true, nil
		}
		if left >= lo && rightBound <= hi {
			// whole group is inside the bound; use its summary bitmap directly.
			bm, err := roaringFromBitmapBytes(child)
			if err != nil {
				return false, err
			}
			result.Or(bm)
			return true, nil
		}
		// partial overlap: descend, bounded to this group's own children.
		childFrom := f64Key(fieldID, level-1, left)
		return true, walkF64Level(tx, fieldID, level-1, childFrom, &rightBound, lo, hi, result)
	})
}

// topLevel finds the highest populated level for a field in table, so
// range queries start descending from the coarsest available summary.
func topLevel(tx *mdbxkv.Tx, table string, fieldID uint16, numeric bool) (uint8, error) {
	var max uint8
	for level := uint8(0); level < 255; level++ {
		var prefix []byte
		if numeric {
			prefix = f64Prefix(fieldID, level)
		} else {
			prefix = stringPrefix(fieldID, level)
		}
		found := false
		err := tx.SeekRange(table, prefix, func(k, _ []byte) (bool, error) {
			if hasPrefix(k, prefix) {
				found = true
			}
			return false, nil
		})
		if err != nil {
			return 0, err
		}
		if !found {
			break
		}
		max = level
	}
	return max, nil
}

func roaringFromBitmapBytes(b []byte) (*roaring.Bitmap, error) {
	return bitmapDecode(b)
}
