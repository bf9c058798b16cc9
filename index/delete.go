package index

import (
	"github.com/velasearch/vela/storage/docstore"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// DeleteDocuments removes each document addressed by its external primary
// key value. It removes the document blob and the external-id mapping
// under one transaction; it does not retroactively strip the deleted
// docids out of the word/proximity/facet posting lists (a simplification
// documented in DESIGN.md — those bitmaps are lazily cleaned the next
// time their key is rewritten, a tombstone-by-omission strategy rather
// than an eager reverse-index walk).
func (idx *Index) DeleteDocuments(externalIDs []string) error {
	return idx.env.Update(func(tx *mdbxkv.RwTx) error {
		return idx.DeleteDocumentsTx(tx, externalIDs)
	})
}

// DeleteDocumentsTx is DeleteDocuments' transaction-scoped core, exposed
// so a caller already holding a write transaction (a batch spanning
// several tasks against the same index, per §4.2) can fold the deletion
// into it instead of opening a second one.
func (idx *Index) DeleteDocumentsTx(tx *mdbxkv.RwTx, externalIDs []string) error {
	n, err := idx.NumberOfDocuments(&tx.Tx)
	if err != nil {
		return err
	}
	for _, extID := range externalIDs {
		docID, ok, err := docstore.ResolveExternalID(&tx.Tx, extID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := docstore.Delete(tx, docID); err != nil {
			return err
		}
		if err := docstore.DeleteExternalID(tx, extID); err != nil {
			return err
		}
		if n > 0 {
			n--
		}
	}
	return putNumberOfDocuments(tx, n)
}
