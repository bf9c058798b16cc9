// Package docstore encodes and stores documents as a compact ordered map
// from field id to length-prefixed JSON bytes (§4.1 "Document store"),
// fields ordered by ascending id so attribute projection can stop scanning
// once it has passed the highest requested field id, never parsing the
// whole blob.
package docstore

import (
	"encoding/binary"
	"sort"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// FieldID is a small integer identifying a document field, assigned by the
// index's FieldsIdsMap.
type FieldID = uint16

// Encode serializes fields (keyed by field id, JSON-encoded bytes already)
// as an ascending-by-id sequence of (field id uint16, length uint32,
// bytes) records.
func Encode(fields map[FieldID][]byte) []byte {
	ids := make([]FieldID, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	size := 0
	for _, id := range ids {
		size += 2 + 4 + len(fields[id])
	}
	out := make([]byte, 0, size)
	var hdr [6]byte
	for _, id := range ids {
		v := fields[id]
		binary.BigEndian.PutUint16(hdr[0:2], id)
		binary.BigEndian.PutUint32(hdr[2:6], uint32(len(v)))
		out = append(out, hdr[:]...)
		out = append(out, v...)
	}
	return out
}

// Decode parses an Encode-produced blob back into a field id -> bytes map.
func Decode(blob []byte) (map[FieldID][]byte, error) {
	out := map[FieldID][]byte{}
	for len(blob) > 0 {
		if len(blob) < 6 {
			return nil, errkind.New(errkind.InvalidStoreFile, "docstore: truncated record header")
		}
		id := binary.BigEndian.Uint16(blob[0:2])
		n := binary.BigEndian.Uint32(blob[2:6])
		blob = blob[6:]
		if uint32(len(blob)) < n {
			return nil, errkind.New(errkind.InvalidStoreFile, "docstore: truncated record body for field %d", id)
		}
		out[id] = blob[:n]
		blob = blob[n:]
	}
	return out, nil
}

// Project decodes only the fields in wanted (ascending), stopping the scan
// as soon as it has passed the highest id in wanted — the point of keeping
// the blob sorted by field id instead of in insertion order. A nil wanted
// set returns every field by calling Decode.
func Project(blob []byte, wanted map[FieldID]struct{}) (map[FieldID][]byte, error) {
	if wanted == nil {
		return Decode(blob)
	}
	maxWanted := FieldID(0)
	found := false
	for id := range wanted {
		if !found || id > maxWanted {
			maxWanted = id
			found = true
		}
	}
	if !found {
		return map[FieldID][]byte{}, nil
	}

	out := map[FieldID][]byte{}
	for len(blob) > 0 {
		if len(blob) < 6 {
			return nil, errkind.New(errkind.InvalidStoreFile, "docstore: truncated record header")
		}
		id := binary.BigEndian.Uint16(blob[0:2])
		n := binary.BigEndian.Uint32(blob[2:6])
		blob = blob[6:]
		if uint32(len(blob)) < n {
			return nil, errkind.New(errkind.InvalidStoreFile, "docstore: truncated record body for field %d", id)
		}
		if id > maxWanted {
			break
		}
		if _, want := wanted[id]; want {
			out[id] = blob[:n]
		}
		blob = blob[n:]
	}
	return out, nil
}

// docKey is a 4-byte big-endian DocumentId, the key documents are stored
// under in the per-index "documents" table.
func docKey(id uint32) []byte { return mdbxkv.U32Key(id) }

// Put writes the encoded document for docID.
func Put(tx *mdbxkv.RwTx, docID uint32, fields map[FieldID][]byte) error {
	return tx.Put(mdbxkv.Documents, docKey(docID), Encode(fields))
}

// Get reads and fully decodes the document stored under docID.
func Get(tx *mdbxkv.Tx, docID uint32) (map[FieldID][]byte, bool, error) {
	raw, ok, err := tx.Get(mdbxkv.Documents, docKey(docID))
	if err != nil || !ok {
		return nil, ok, err
	}
	fields, err := Decode(raw)
	return fields, true, err
}

// GetProjected reads docID and decodes only the requested fields.
func GetProjected(tx *mdbxkv.Tx, docID uint32, wanted map[FieldID]struct{}) (map[FieldID][]byte, bool, error) {
	raw, ok, err := tx.Get(mdbxkv.Documents, docKey(docID))
	if err != nil || !ok {
		return nil, ok, err
	}
	fields, err := Project(raw, wanted)
	return fields, true, err
}

// Delete removes the document stored under docID.
func Delete(tx *mdbxkv.RwTx, docID uint32) error {
	return tx.Delete(mdbxkv.Documents, docKey(docID))
}
