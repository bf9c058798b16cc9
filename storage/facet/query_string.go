package facet

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/bitmap"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// RangeString returns the union of every posting list whose normalized
// string value falls in [lower, upper] under ordinary byte ordering. The
// filter evaluator calls it over the whole string range to collect every
// document with a string value for a field (the "!=" complement); the
// filter grammar's TO ranges take numeric or * bounds and use RangeNumber.
func RangeString(tx *mdbxkv.Tx, fieldID uint16, lower, upper string) (*roaring.Bitmap, error) {
	lo, hi := NormalizeString(lower), NormalizeString(upper)
	if lo > hi {
		lo, hi = hi, lo
	}
	top, err := topLevel(tx, mdbxkv.FacetIDStringDocids, fieldID, false)
	if err != nil {
		return nil, err
	}
	result := roaring.New()
	err = walkStringLevel(tx, fieldID, top, stringPrefix(fieldID, top), nil, lo, hi, result)
	return result, err
}

// walkStringLevel is walkF64Level's string-facet counterpart: until, when
// non-nil, bounds a recursive descent to the calling group's own
// [left, rightBound] run of child keys instead of the whole level below.
func walkStringLevel(tx *mdbxkv.Tx, fieldID uint16, level uint8, from []byte, until *string, lo, hi string, result *roaring.Bitmap) error {
	prefix := stringPrefix(fieldID, level)
	return tx.SeekRange(mdbxkv.FacetIDStringDocids, from, func(k, v []byte) (bool, error) {
		if !hasPrefix(k, prefix) {
			return false, nil
		}
		_, _, left := parseStringKey(k)
		if until != nil && left > *until {
			return false, nil
		}

		if level == 0 {
			if left < lo || left > hi {
				return true, nil
			}
			bm, err := bitmapDecode(v)
			if err != nil {
				return false, err
			}
			result.Or(bm)
			return true, nil
		}

		right, child, err := decodeStringGroupValue(v)
		if err != nil {
			return false, err
		}
		if right < lo || left > hi {
			return true, nil
		}
		if left >= lo && right <= hi {
			bm, err := bitmapDecode(child)
			if err != nil {
				return false, err
			}
			result.Or(bm)
			return true, nil
		}
		childFrom := stringKey(fieldID, level-1, left)
		return true, walkStringLevel(tx, fieldID, level-1, childFrom, &right, lo, hi, result)
	})
}

// Distribution returns up to limit (value, count) pairs for fieldID's
// string facet values, sorted by descending count then ascending value,
// the shape an autocomplete or facet-sidebar widget wants (§4.1, §3.3).
// It reads level-0 directly: counting has no cheaper path through the
// summary tree than decoding each value's own bitmap cardinality.
func Distribution(tx *mdbxkv.Tx, fieldID uint16, limit int) ([]ValueCount, error) {
	prefix := stringPrefix(fieldID, 0)
	var out []ValueCount
	err := tx.SeekRange(mdbxkv.FacetIDStringDocids, prefix, func(k, v []byte) (bool, error) {
		if !hasPrefix(k, prefix) {
			return false, nil
		}
		_, _, value := parseStringKey(k)
		n, err := bitmap.DecodedLength(v)
		if err != nil {
			return false, err
		}
		out = append(out, ValueCount{Value: value, Count: uint64(n)})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
