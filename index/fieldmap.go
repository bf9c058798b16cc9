// Package index implements the per-index data model (§4.3): the
// fields-ids map, primary-key derivation, tri-state settings, and the
// document indexing pipeline that populates the word, proximity, facet,
// and document-store databases of one index's storage environment.
package index

import (
	"encoding/json"

	"github.com/velasearch/vela/errkind"
)

// FieldsIDsMap is the append-only bijection between field names and small
// integer field ids (§4.3 "Field-ids map"). Insertion is idempotent;
// removal is forbidden — ids are never reused even across settings
// changes that drop a field from searchable/filterable/sortable rules,
// matching spec.md's non-goal "no online schema migration beyond
// forward-only field-id map extension".
type FieldsIDsMap struct {
	nameToID map[string]uint16
	idToName map[uint16]string
	nextID   uint16
}

// NewFieldsIDsMap returns an empty map.
func NewFieldsIDsMap() *FieldsIDsMap {
	return &FieldsIDsMap{nameToID: map[string]uint16{}, idToName: map[uint16]string{}}
}

// InsertOrGet returns name's field id, assigning a new one if name hasn't
// been seen before. Returns *errkind.Error{MaxFieldsLimitExceeded} once
// every id in 0..65535 has been used.
func (m *FieldsIDsMap) InsertOrGet(name string) (uint16, error) {
	if id, ok := m.nameToID[name]; ok {
		return id, nil
	}
	if len(m.idToName) >= 1<<16 {
		return 0, errkind.New(errkind.MaxFieldsLimitExceeded, "field map already has %d entries", len(m.idToName))
	}
	id := m.nextID
	m.nameToID[name] = id
	m.idToName[id] = name
	m.nextID++
	return id, nil
}

// ID returns the id assigned to name, if any.
func (m *FieldsIDsMap) ID(name string) (uint16, bool) {
	id, ok := m.nameToID[name]
	return id, ok
}

// Name returns the name assigned to id, if any.
func (m *FieldsIDsMap) Name(id uint16) (string, bool) {
	name, ok := m.idToName[id]
	return name, ok
}

// Len returns the number of distinct fields known.
func (m *FieldsIDsMap) Len() int { return len(m.idToName) }

// Clone returns a deep copy, used for the copy-on-write discipline
// described in §5 "Shared resources" — the writer mutates a clone during
// an indexing batch and installs it at commit, so concurrent readers never
// observe a half-extended map.
func (m *FieldsIDsMap) Clone() *FieldsIDsMap {
	cp := &FieldsIDsMap{
		nameToID: make(map[string]uint16, len(m.nameToID)),
		idToName: make(map[uint16]string, len(m.idToName)),
		nextID:   m.nextID,
	}
	for k, v := range m.nameToID {
		cp.nameToID[k] = v
	}
	for k, v := range m.idToName {
		cp.idToName[k] = v
	}
	return cp
}

type fieldsIDsMapRecord struct {
	NameToID map[string]uint16 `json:"nameToId"`
	NextID   uint16            `json:"nextId"`
}

// MarshalBinary serializes the map for storage in the per-index main
// table under MainFieldsIDsMap.
func (m *FieldsIDsMap) MarshalBinary() ([]byte, error) {
	return json.Marshal(fieldsIDsMapRecord{NameToID: m.nameToID, NextID: m.nextID})
}

// UnmarshalFieldsIDsMap is the inverse of MarshalBinary.
func UnmarshalFieldsIDsMap(raw []byte) (*FieldsIDsMap, error) {
	var r fieldsIDsMapRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errkind.Wrap(errkind.InvalidStoreFile, err, "decoding fields-ids map")
	}
	m := &FieldsIDsMap{nameToID: r.NameToID, idToName: make(map[uint16]string, len(r.NameToID)), nextID: r.NextID}
	for name, id := range r.NameToID {
		m.idToName[id] = name
	}
	return m, nil
}
