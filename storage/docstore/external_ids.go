package docstore

import (
	"encoding/binary"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// PutExternalID records the primary-key value -> internal DocumentId
// mapping in the external-documents-ids table (§3.1 "addressable
// externally by the primary-key value").
func PutExternalID(tx *mdbxkv.RwTx, externalID string, docID uint32) error {
	return tx.Put(mdbxkv.ExternalDocumentsIDs, []byte(externalID), mdbxkv.U32Key(docID))
}

// ResolveExternalID looks up the internal DocumentId for a primary-key
// value.
func ResolveExternalID(tx *mdbxkv.Tx, externalID string) (uint32, bool, error) {
	v, ok, err := tx.Get(mdbxkv.ExternalDocumentsIDs, []byte(externalID))
	if err != nil || !ok {
		return 0, ok, err
	}
	return binary.BigEndian.Uint32(v), true, nil
}

// DeleteExternalID removes the primary-key value's mapping.
func DeleteExternalID(tx *mdbxkv.RwTx, externalID string) error {
	return tx.Delete(mdbxkv.ExternalDocumentsIDs, []byte(externalID))
}
