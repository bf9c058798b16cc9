package facet

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/bitmap"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// bitmapDecode is the package-local alias used by facet.go; kept as its
// own function so the group-value helpers below can share it without an
// import cycle concern creeping back in if this package grows its own
// bitmap-shaped value type later.
func bitmapDecode(b []byte) (*roaring.Bitmap, error) {
	return bitmap.Decode(b)
}

// groupValue is the value stored at a level>0 key: the group's right
// bound (the summarized run's last left-bound, 8 bytes) followed by the
// union bitmap of every level-(L-1) entry in the group.
func encodeGroupValue(rightBound uint64, bm *roaring.Bitmap) []byte {
	out := make([]byte, 8, 8+64)
	binary.BigEndian.PutUint64(out, rightBound)
	return append(out, bitmap.EncodeBitmap(bm)...)
}

func decodeGroupValue(v []byte) (rightBound []byte, bitmapBytes []byte, err error) {
	if len(v) < 8 {
		return nil, nil, fmt.Errorf("facet: truncated group value (%d bytes)", len(v))
	}
	return v[:8], v[8:], nil
}

func uint64FromBytes(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// RebuildLevels regenerates every level>0 summary for fieldID in the
// numeric facet table from the current level-0 entries (§4.1 "level L>0
// entries... summarizing a fixed-size run of level-(L-1) entries"). The
// indexing pipeline does not call it; Put/Remove calls made after a
// rebuild leave the summaries stale until the next rebuild.
func RebuildLevels(tx *mdbxkv.RwTx, fieldID uint16) error {
	return rebuildLevels(tx, mdbxkv.FacetIDF64Docids, fieldID, true)
}

// RebuildStringLevels is RebuildLevels' string-facet counterpart.
func RebuildStringLevels(tx *mdbxkv.RwTx, fieldID uint16) error {
	return rebuildLevels(tx, mdbxkv.FacetIDStringDocids, fieldID, false)
}

type levelEntry struct {
	leftKey []byte // the raw key bytes' left-bound portion, for building the next key
	left    uint64 // numeric left bound (numeric facets only)
	leftStr string // string left bound (string facets only)
	bm      *roaring.Bitmap
}

func rebuildLevels(tx *mdbxkv.RwTx, table string, fieldID uint16, numeric bool) error {
	// Clear every existing level>0 entry for this field before regenerating;
	// the level-0 entries (the source of truth) are left untouched.
	if err := clearLevelsAbove(tx, table, fieldID, numeric); err != nil {
		return err
	}

	entries, err := readLevel0(tx, table, fieldID, numeric)
	if err != nil {
		return err
	}
	if len(entries) <= 1 {
		return nil
	}

	level := uint8(1)
	current := entries
	for len(current) > 1 {
		next := make([]levelEntry, 0, (len(current)+GroupSize-1)/GroupSize)
		for i := 0; i < len(current); i += GroupSize {
			end := i + GroupSize
			if end > len(current) {
				end = len(current)
			}
			group := current[i:end]
			union := roaring.New()
			for _, e := range group {
				union.Or(e.bm)
			}
			first, last := group[0], group[len(group)-1]

			var key, val []byte
			if numeric {
				key = f64Key(fieldID, level, first.left)
				val = encodeGroupValue(last.left, union)
			} else {
				key = stringKey(fieldID, level, first.leftStr)
				var right [8]byte
				_ = right // string groups keep the right bound as a length-prefixed string instead
				val = encodeStringGroupValue(last.leftStr, union)
			}
			if err := tx.Put(table, key, val); err != nil {
				return err
			}
			next = append(next, levelEntry{left: first.left, leftStr: first.leftStr, bm: union})
		}
		current = next
		level++
		if level == 0 { // uint8 wrapped; astronomically large fan-in, bail out defensively
			break
		}
	}
	return nil
}

func encodeStringGroupValue(rightBound string, bm *roaring.Bitmap) []byte {
	rb := []byte(rightBound)
	out := make([]byte, 2, 2+len(rb)+64)
	binary.BigEndian.PutUint16(out, uint16(len(rb)))
	out = append(out, rb...)
	return append(out, bitmap.EncodeBitmap(bm)...)
}

func decodeStringGroupValue(v []byte) (rightBound string, bitmapBytes []byte, err error) {
	if len(v) < 2 {
		return "", nil, fmt.Errorf("facet: truncated string group value")
	}
	n := int(binary.BigEndian.Uint16(v))
	if len(v) < 2+n {
		return "", nil, fmt.Errorf("facet: truncated string group value (bound length %d)", n)
	}
	return string(v[2 : 2+n]), v[2+n:], nil
}

func readLevel0(tx *mdbxkv.RwTx, table string, fieldID uint16, numeric bool) ([]levelEntry, error) {
	var entries []levelEntry
	var prefix []byte
	if numeric {
		prefix = f64Prefix(fieldID, 0)
	} else {
		prefix = stringPrefix(fieldID, 0)
	}
	err := tx.SeekRange(table, prefix, func(k, v []byte) (bool, error) {
		if !hasPrefix(k, prefix) {
			return false, nil
		}
		bm, err := bitmap.Decode(v)
		if err != nil {
			return false, err
		}
		if numeric {
			_, _, value := parseF64Key(k)
			entries = append(entries, levelEntry{left: value, bm: bm})
		} else {
			_, _, value := parseStringKey(k)
			entries = append(entries, levelEntry{leftStr: value, bm: bm})
		}
		return true, nil
	})
	return entries, err
}

func clearLevelsAbove(tx *mdbxkv.RwTx, table string, fieldID uint16, numeric bool) error {
	for level := uint8(1); level < 255; level++ {
		var prefix []byte
		if numeric {
			prefix = f64Prefix(fieldID, level)
		} else {
			prefix = stringPrefix(fieldID, level)
		}
		var keys [][]byte
		err := tx.SeekRange(table, prefix, func(k, _ []byte) (bool, error) {
			if !hasPrefix(k, prefix) {
				return false, nil
			}
			keys = append(keys, append([]byte(nil), k...))
			return true, nil
		})
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			break
		}
		for _, k := range keys {
			if err := tx.Delete(table, k); err != nil {
				return err
			}
		}
	}
	return nil
}
