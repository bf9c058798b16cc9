package facet

import (
	"encoding/binary"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// DocValue is one document's recorded value for a facet field, read back
// through the reverse (fieldID, docID) -> value index — the shape the
// Sort ranking rule needs (§4.4 "Sort": bucket by each document's own
// value rather than by scanning every distinct value looking for one
// document) and that a missing-field check needs (no entry at all means
// the document never carried this attribute).
type DocValue struct {
	IsNumeric bool
	Number    float64
	String    string
}

// docValueKey builds the (field_id, doc_id) key for the reverse index.
func docValueKey(fieldID uint16, docID uint32) []byte {
	b := make([]byte, 2+4)
	binary.BigEndian.PutUint16(b[0:2], fieldID)
	binary.BigEndian.PutUint32(b[2:6], docID)
	return b
}

// PutDocNumber records docID's numeric value for fieldID in the reverse
// index, alongside the forward level-0 entry PutNumber already wrote.
func PutDocNumber(tx *mdbxkv.RwTx, fieldID uint16, docID uint32, value float64) error {
	b := make([]byte, 1+8)
	b[0] = 0
	binary.BigEndian.PutUint64(b[1:], EncodeF64(value))
	return tx.Put(mdbxkv.FieldIDDocidFacetVals, docValueKey(fieldID, docID), b)
}

// PutDocString is PutDocNumber's string counterpart. value must already
// be normalized (see NormalizeString).
func PutDocString(tx *mdbxkv.RwTx, fieldID uint16, docID uint32, value string) error {
	b := make([]byte, 0, 1+len(value))
	b = append(b, 1)
	b = append(b, value...)
	return tx.Put(mdbxkv.FieldIDDocidFacetVals, docValueKey(fieldID, docID), b)
}

// GetDocValue reads docID's recorded value for fieldID, if any.
func GetDocValue(tx *mdbxkv.Tx, fieldID uint16, docID uint32) (DocValue, bool, error) {
	raw, ok, err := tx.Get(mdbxkv.FieldIDDocidFacetVals, docValueKey(fieldID, docID))
	if err != nil || !ok {
		return DocValue{}, false, err
	}
	if len(raw) == 0 {
		return DocValue{}, false, nil
	}
	if raw[0] == 0 {
		return DocValue{IsNumeric: true, Number: DecodeF64(binary.BigEndian.Uint64(raw[1:]))}, true, nil
	}
	return DocValue{String: string(raw[1:])}, true, nil
}

// DeleteDocValue removes docID's recorded value for fieldID, the reverse
// side of RemoveNumber/RemoveString.
func DeleteDocValue(tx *mdbxkv.RwTx, fieldID uint16, docID uint32) error {
	return tx.Delete(mdbxkv.FieldIDDocidFacetVals, docValueKey(fieldID, docID))
}
