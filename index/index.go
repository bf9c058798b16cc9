package index

import (
	"encoding/binary"
	"regexp"
	"sync"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// UIDPattern matches a valid index uid (§3.1).
var UIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,512}$`)

// Index is one logical corpus: its own storage environment plus the
// in-memory copies of its small, frequently-read metadata (§3.1, §5
// "the fields-ids map is shared across readers and the writer; the
// writer copies-on-write during an indexing batch and installs the new
// map at commit").
type Index struct {
	UID string
	env *mdbxkv.Env

	// Workers bounds the concurrency of AddDocuments' per-document
	// extraction phase. Zero/negative is treated as 1 (sequential).
	Workers int

	mu         sync.RWMutex
	fieldsMap  *FieldsIDsMap
	primaryKey string
	settings   Settings
}

// Open opens (or creates) the per-index environment at path and loads its
// metadata from the main table.
func Open(uid, path string) (*Index, error) {
	if !UIDPattern.MatchString(uid) {
		return nil, errkind.New(errkind.InvalidIndexUid, "index uid %q does not match the allowed pattern", uid)
	}
	env, err := mdbxkv.Open(path, mdbxkv.IndexTables, mdbxkv.IndexTablesCfg, nil)
	if err != nil {
		return nil, err
	}
	idx := &Index{UID: uid, env: env, fieldsMap: NewFieldsIDsMap(), settings: DefaultSettings()}
	if err := idx.loadMetadata(); err != nil {
		_ = env.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) Close() error { return idx.env.Close() }

// Env exposes the underlying storage environment for the facet/docstore/
// word-index helpers and the search pipeline.
func (idx *Index) Env() *mdbxkv.Env { return idx.env }

func (idx *Index) loadMetadata() error {
	return idx.env.View(func(tx *mdbxkv.Tx) error {
		if raw, ok, err := tx.Get(mdbxkv.Main, []byte(mdbxkv.MainFieldsIDsMap)); err != nil {
			return err
		} else if ok {
			m, err := UnmarshalFieldsIDsMap(raw)
			if err != nil {
				return err
			}
			idx.fieldsMap = m
		}
		if raw, ok, err := tx.Get(mdbxkv.Main, []byte(mdbxkv.MainPrimaryKey)); err != nil {
			return err
		} else if ok {
			idx.primaryKey = string(raw)
		}
		if raw, ok, err := tx.Get(mdbxkv.Main, []byte(mdbxkv.MainSettings)); err != nil {
			return err
		} else if ok {
			s, err := unmarshalSettings(raw)
			if err != nil {
				return err
			}
			idx.settings = s
		}
		return nil
	})
}

// FieldsIDsMap returns the current field map. Callers must not mutate the
// returned value; an indexing batch mutates a Clone and installs it with
// CommitMetadata instead.
func (idx *Index) FieldsIDsMap() *FieldsIDsMap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.fieldsMap
}

// PrimaryKey returns the index's primary key field name, or "" if none
// has been derived yet (no document has been inserted).
func (idx *Index) PrimaryKey() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.primaryKey
}

// Settings returns the current effective settings.
func (idx *Index) Settings() Settings {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.settings
}

// CommitMetadata installs a new field map, primary key, and/or settings,
// persisting them to the main table under tx, and swaps the in-memory
// copies in after tx commits successfully. Called once at the end of an
// indexing or settings-update batch.
func (idx *Index) CommitMetadata(tx *mdbxkv.RwTx, fieldsMap *FieldsIDsMap, primaryKey *string, settings *Settings) error {
	if fieldsMap != nil {
		raw, err := fieldsMap.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Put(mdbxkv.Main, []byte(mdbxkv.MainFieldsIDsMap), raw); err != nil {
			return err
		}
	}
	if primaryKey != nil {
		if err := tx.Put(mdbxkv.Main, []byte(mdbxkv.MainPrimaryKey), []byte(*primaryKey)); err != nil {
			return err
		}
	}
	if settings != nil {
		raw, err := marshalSettings(*settings)
		if err != nil {
			return err
		}
		if err := tx.Put(mdbxkv.Main, []byte(mdbxkv.MainSettings), raw); err != nil {
			return err
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if fieldsMap != nil {
		idx.fieldsMap = fieldsMap
	}
	if primaryKey != nil {
		idx.primaryKey = *primaryKey
	}
	if settings != nil {
		idx.settings = *settings
	}
	return nil
}

// NumberOfDocuments reads the persisted document count.
func (idx *Index) NumberOfDocuments(tx *mdbxkv.Tx) (uint64, error) {
	raw, ok, err := tx.Get(mdbxkv.Main, []byte(mdbxkv.MainNumberOfDocuments))
	if err != nil || !ok {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

func putNumberOfDocuments(tx *mdbxkv.RwTx, n uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return tx.Put(mdbxkv.Main, []byte(mdbxkv.MainNumberOfDocuments), b[:])
}

// NextDocID returns the monotonic docid allocator's current value: the
// smallest docid guaranteed never to have been assigned. It only ever
// grows, even across deletes, so a deleted document's id is never handed
// to a later insert while other structures (posting lists, facet
// bitmaps) might still reference it by omission (§4.3 "tombstone by
// omission"). Callers that need to enumerate "every docid that could
// possibly be live" (e.g. a geo filter's brute-force scan) should use
// this, not NumberOfDocuments, as their upper bound.
func (idx *Index) NextDocID(tx *mdbxkv.Tx) (uint32, error) {
	raw, ok, err := tx.Get(mdbxkv.Main, []byte(mdbxkv.MainNextDocID))
	if err != nil || !ok {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw), nil
}

func putNextDocID(tx *mdbxkv.RwTx, n uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return tx.Put(mdbxkv.Main, []byte(mdbxkv.MainNextDocID), b[:])
}
