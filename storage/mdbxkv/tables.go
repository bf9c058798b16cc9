// Package mdbxkv is the transactional key-value layer (§4.1). It wraps one
// MDBX environment per role — one shared "queue" environment for the task
// log, and one per-index environment for each index's inverted data — with
// a named-table, append-only-schema discipline: every table name used
// anywhere in the program must be declared here. A transaction that names
// an undeclared table panics on access, and init rejects duplicate names
// and TableCfg entries for undeclared tables, so a typo'd table name fails
// loudly instead of silently opening an ad hoc DBI.
package mdbxkv

import (
	"fmt"
	"sort"
)

// Table names for the queue environment (§4.1 database set).
const (
	AllTasks    = "all-tasks"
	AllBatches  = "all-batches"
	Status      = "status"
	Kind        = "kind"
	IndexTasks  = "index-tasks"
	CanceledBy  = "canceled-by"
	EnqueuedAt  = "enqueued-at"
	StartedAt   = "started-at"
	FinishedAt  = "finished-at"
	ContentRefs = "content-refs" // payload file uid -> referring task uids bitmap, for GC (§5)
)

// QueueTables lists every DBI the queue environment opens.
var QueueTables = []string{
	AllTasks, AllBatches, Status, Kind, IndexTasks, CanceledBy,
	EnqueuedAt, StartedAt, FinishedAt, ContentRefs,
}

// Table names for a per-index environment (§4.1 database set).
const (
	Main                  = "main"
	WordDocids            = "word-docids"
	WordPrefixDocids      = "word-prefix-docids"
	WordPairProximity     = "word-pair-proximity"
	FacetIDF64Docids      = "facet-id-f64-docids"
	FacetIDStringDocids   = "facet-id-string-docids"
	DocidWordPositions    = "docid-word-positions"
	Documents             = "documents"
	ExternalDocumentsIDs  = "external-documents-ids" // primary-key value -> internal docid
	FieldIDDocidFacetVals = "fieldid-docid-facet-vals"
)

// IndexTables lists every DBI a per-index environment opens.
var IndexTables = []string{
	Main, WordDocids, WordPrefixDocids, WordPairProximity,
	FacetIDF64Docids, FacetIDStringDocids, DocidWordPositions, Documents,
	ExternalDocumentsIDs, FieldIDDocidFacetVals,
}

// Main-table labels (ASCII keys into the Main DBI), one per piece of
// per-index metadata that isn't itself worth a dedicated table.
const (
	MainFieldsIDsMap     = "fields-ids-map"
	MainPrimaryKey       = "primary-key"
	MainSettings         = "settings"
	MainWordsFST         = "words-fst"
	MainCreatedAt        = "created-at"
	MainUpdatedAt        = "updated-at"
	MainNumberOfDocuments = "number-of-documents"
	MainNextDocID         = "next-docid" // monotonic docid allocator, distinct from the live document count so a delete never lets a later insert reuse a still-referenced id
)

// Flags mirror MDBX's own table flags, kept as a small bitset so TableCfg
// entries stay self-describing at the declaration site.
type Flags uint

const (
	Default    Flags = 0x00
	DupSort    Flags = 0x04
	IntegerKey Flags = 0x08
)

// TableCfgItem configures one DBI's flags.
type TableCfgItem struct {
	Flags Flags
}

// TableCfg maps table name to its configuration.
type TableCfg map[string]TableCfgItem

// QueueTablesCfg configures the queue environment's tables. The uid-keyed
// all-tasks and all-batches tables are IntegerKey (4-byte keys). The
// timestamp tables keep default flags: their 16-byte TimeKey keys are not
// an MDBX integer-key size, and their bitmap values are rewritten in place
// by UnionBitmap/SubtractBitmap rather than stored as duplicates.
var QueueTablesCfg = TableCfg{
	AllTasks:    {Flags: IntegerKey},
	AllBatches:  {Flags: IntegerKey},
	EnqueuedAt:  {Flags: Default},
	StartedAt:   {Flags: Default},
	FinishedAt:  {Flags: Default},
	ContentRefs: {},
}

// IndexTablesCfg configures a per-index environment's tables. Every
// docid-bearing table, word-pair-proximity included (its key carries the
// proximity), keys on enough of the tuple to be unique, and bitmap values
// are rewritten in place by UnionBitmap/SubtractBitmap, so no table is
// DupSort.
var IndexTablesCfg = TableCfg{
	WordPairProximity: {Flags: Default},
}

func init() {
	validate(QueueTables, QueueTablesCfg)
	validate(IndexTables, IndexTablesCfg)
}

func validate(tables []string, cfg TableCfg) {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)
	seen := make(map[string]struct{}, len(sorted))
	for _, name := range sorted {
		if _, dup := seen[name]; dup {
			panic(fmt.Sprintf("mdbxkv: duplicate table name %q", name))
		}
		seen[name] = struct{}{}
	}
	for name := range cfg {
		if _, ok := seen[name]; !ok {
			panic(fmt.Sprintf("mdbxkv: TableCfg references undeclared table %q", name))
		}
	}
}
