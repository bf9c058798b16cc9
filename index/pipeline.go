package index

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/storage/docstore"
	"github.com/velasearch/vela/storage/facet"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// DuplicatePolicy controls how AddDocuments resolves two input documents
// sharing one primary-key value (§4.3 step 2 "reject duplicate ids within
// the batch per policy").
type DuplicatePolicy int

const (
	// Replace: the later document in the batch wins entirely.
	Replace DuplicatePolicy = iota
	// Merge: fields from the later document overlay the earlier one's.
	Merge
)

// AddDocumentsResult summarizes one AddDocuments call, the shape a
// DocumentAdditionOrUpdate task's Details carries on success.
type AddDocumentsResult struct {
	Received int
	Indexed  int
}

// AddDocuments runs the indexing pipeline (§4.3 steps 2-7) over an
// already-parsed batch of documents, inside tx. Step 1 (payload parsing)
// happens before this call via ParsePayload; this function begins at
// primary-key resolution.
func (idx *Index) AddDocuments(tx *mdbxkv.RwTx, docs []Document, primaryKeySetting string, autoGenerate bool, policy DuplicatePolicy) (AddDocumentsResult, error) {
	if len(docs) == 0 {
		return AddDocumentsResult{}, nil
	}

	pk := idx.PrimaryKey()
	if pk == "" {
		var err error
		pk, err = DerivePrimaryKey(primaryKeySetting, docs[0].Order, autoGenerate)
		if err != nil {
			return AddDocumentsResult{}, err
		}
	}

	// Step 2: resolve/generate each document's external id, deduplicating
	// within the batch (later wins per policy).
	byExternalID := map[string]Document{}
	order := make([]string, 0, len(docs))
	for _, d := range docs {
		extID, err := resolveExternalID(d, pk, autoGenerate)
		if err != nil {
			return AddDocumentsResult{}, err
		}
		if existing, dup := byExternalID[extID]; dup && policy == Merge {
			merged := newDocument()
			for _, name := range existing.Order {
				merged.set(name, existing.Fields[name])
			}
			for _, name := range d.Order {
				merged.set(name, d.Fields[name])
			}
			byExternalID[extID] = merged
			continue
		}
		if _, dup := byExternalID[extID]; !dup {
			order = append(order, extID)
		}
		byExternalID[extID] = d
	}

	fieldsMap := idx.FieldsIDsMap().Clone()
	settings := idx.Settings()

	// Step 3: extend the field-ids map with every field name encountered.
	for _, extID := range order {
		d := byExternalID[extID]
		for _, name := range d.Order {
			if _, err := fieldsMap.InsertOrGet(name); err != nil {
				return AddDocumentsResult{}, err
			}
		}
	}
	if _, err := fieldsMap.InsertOrGet(pk); err != nil {
		return AddDocumentsResult{}, err
	}

	words, err := LoadWordSet(&tx.Tx)
	if err != nil {
		return AddDocumentsResult{}, err
	}
	newWords := NewWordSet()

	nDocs, err := idx.NumberOfDocuments(&tx.Tx)
	if err != nil {
		return AddDocumentsResult{}, err
	}
	nextID, err := idx.NextDocID(&tx.Tx)
	if err != nil {
		return AddDocumentsResult{}, err
	}

	// Step 5: extract every document's tokens, facet values, and word-pair
	// proximities concurrently, bounded by idx.Workers. This half of the
	// pipeline touches no transaction and no shared mutable state, so it
	// is safe to fan out; only the write-transaction application below
	// must stay sequential (one MDBX writer).
	for _, extID := range order {
		d := byExternalID[extID]
		d.set(pk, extID) // ensures a generated primary key is itself stored/indexed
		byExternalID[extID] = d
	}
	extractions, err := extractBatch(order, byExternalID, fieldsMap, settings, idx.Workers)
	if err != nil {
		return AddDocumentsResult{}, err
	}

	indexed := 0
	for i, extID := range order {
		docID, isNew, err := resolveDocID(tx, extID, nextID)
		if err != nil {
			return AddDocumentsResult{}, err
		}
		if isNew {
			nDocs++
			nextID++
			if err := docstore.PutExternalID(tx, extID, docID); err != nil {
				return AddDocumentsResult{}, err
			}
		}

		var previous map[docstore.FieldID][]byte
		if !isNew && policy == Merge {
			previous, _, err = docstore.Get(&tx.Tx, docID)
			if err != nil {
				return AddDocumentsResult{}, err
			}
		}
		if err := idx.applyExtraction(tx, docID, extractions[i], previous, words, newWords); err != nil {
			return AddDocumentsResult{}, err
		}
		indexed++
	}

	words.Union(newWords)
	if err := PutWordSet(tx, words); err != nil {
		return AddDocumentsResult{}, err
	}
	if err := putNumberOfDocuments(tx, nDocs); err != nil {
		return AddDocumentsResult{}, err
	}
	if err := putNextDocID(tx, nextID); err != nil {
		return AddDocumentsResult{}, err
	}

	var pkCopy *string
	if idx.PrimaryKey() == "" {
		pkCopy = &pk
	}
	if err := idx.CommitMetadata(tx, fieldsMap, pkCopy, nil); err != nil {
		return AddDocumentsResult{}, err
	}

	return AddDocumentsResult{Received: len(docs), Indexed: indexed}, nil
}

func resolveExternalID(d Document, pk string, autoGenerate bool) (string, error) {
	raw, ok := d.Fields[pk]
	if !ok {
		if !autoGenerate {
			return "", errkind.New(errkind.MissingDocumentId, "document missing primary key field %q", pk)
		}
		return GenerateDocumentID(), nil
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "", errkind.New(errkind.InvalidDocumentId, "primary key field %q has a non-scalar value", pk)
	}
	if !ValidDocumentID(s) {
		return "", errkind.New(errkind.InvalidDocumentId, "document id %q is invalid", s).WithDoc(s)
	}
	return s, nil
}

// resolveDocID finds the internal DocumentId already mapped to extID, or
// allocates nextCandidate as a new one.
func resolveDocID(tx *mdbxkv.RwTx, extID string, nextCandidate uint32) (docID uint32, isNew bool, err error) {
	existing, ok, err := docstore.ResolveExternalID(&tx.Tx, extID)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return existing, false, nil
	}
	return nextCandidate, true, nil
}

// tokenPosting is one (word, position) pair found while extracting a
// document's searchable fields.
type tokenPosting struct {
	word string
	pos  uint32
}

// facetEntry is one (field, value) pair found while extracting a
// document's filterable/sortable fields.
type facetEntry struct {
	fieldID uint16
	value   any
}

// docExtraction is the CPU-bound, transaction-free result of processing
// one document: its JSON-encoded fields, its searchable tokens, its
// facet-eligible values, and its word-pair proximities.
type docExtraction struct {
	fields    map[uint16][]byte
	tokens    []tokenPosting
	facets    []facetEntry
	proximity map[[2]string]uint32
}

// extractDocument implements the pure half of §4.3 steps 4-5: it
// JSON-encodes every field, tokenizes searchable text, collects facet
// values, and computes the minimal observed proximity between every
// pair of distinct words within maxProximity positions of each other.
// It performs no I/O and touches no shared state, making it safe to run
// concurrently across an entire batch.
func extractDocument(d Document, fieldsMap *FieldsIDsMap, settings Settings) (docExtraction, error) {
	ext := docExtraction{fields: map[uint16][]byte{}, proximity: map[[2]string]uint32{}}

	type positioned struct {
		word string
		pos  uint32
	}
	var seq []positioned

	for _, name := range d.Order {
		fieldID, _ := fieldsMap.ID(name)
		value := d.Fields[name]
		raw, err := json.Marshal(value)
		if err != nil {
			return ext, errkind.Wrap(errkind.IoError, err, "encoding field %q", name)
		}
		ext.fields[fieldID] = raw

		if isSearchable(settings, name) {
			if s, ok := value.(string); ok {
				for _, tok := range Tokenize(s) {
					pos := Position(uint32(fieldID), tok.Offset)
					ext.tokens = append(ext.tokens, tokenPosting{word: tok.Word, pos: pos})
					seq = append(seq, positioned{word: tok.Word, pos: pos})
				}
			}
		}

		if _, filterable := settings.FilterableAttributes[name]; filterable {
			ext.facets = append(ext.facets, facetEntry{fieldID: fieldID, value: value})
		}
		if _, sortable := settings.SortableAttributes[name]; sortable {
			ext.facets = append(ext.facets, facetEntry{fieldID: fieldID, value: value})
		}
	}

	sort.Slice(seq, func(i, j int) bool { return seq[i].pos < seq[j].pos })
	for i := 0; i < len(seq); i++ {
		for j := i + 1; j < len(seq) && seq[j].pos-seq[i].pos <= maxProximity; j++ {
			if seq[i].word == seq[j].word {
				continue
			}
			prox := seq[j].pos - seq[i].pos
			key := [2]string{seq[i].word, seq[j].word}
			if cur, ok := ext.proximity[key]; !ok || prox < cur {
				ext.proximity[key] = prox
			}
		}
	}
	return ext, nil
}

// extractBatch runs extractDocument over every document named by order,
// bounded to workers concurrent goroutines, and returns the results in
// the same order. The first extraction error cancels the rest and is
// returned.
func extractBatch(order []string, byExternalID map[string]Document, fieldsMap *FieldsIDsMap, settings Settings, workers int) ([]docExtraction, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]docExtraction, len(order))
	g, ctx := errgroup.WithContext(context.Background())
	sem := semaphore.NewWeighted(int64(workers))
	for i, extID := range order {
		i, d := i, byExternalID[extID]
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			ext, err := extractDocument(d, fieldsMap, settings)
			if err != nil {
				return err
			}
			out[i] = ext
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// applyExtraction writes one document's already-computed extraction into
// the write transaction: merging it over previous (for DuplicatePolicy
// Merge), writing word and word-prefix postings, facet values, the
// document blob, and word-pair proximities. Must be called sequentially
// per batch, in document order, since it is the only part of the
// pipeline that touches the single MDBX writer transaction.
func (idx *Index) applyExtraction(tx *mdbxkv.RwTx, docID uint32, ext docExtraction, previous map[docstore.FieldID][]byte, words, newWords *WordSet) error {
	blob := map[uint16][]byte{}
	for id, v := range previous {
		blob[id] = v
	}
	for id, v := range ext.fields {
		blob[id] = v
	}

	one := roaring.New()
	one.Add(docID)

	for _, tok := range ext.tokens {
		words.Insert(tok.word)
		newWords.Insert(tok.word)
		if err := addWordPosting(tx, tok.word, docID, one, tok.pos); err != nil {
			return err
		}
		if err := addWordPrefixPostings(tx, tok.word, one); err != nil {
			return err
		}
	}

	for _, f := range ext.facets {
		if err := extractFacet(tx, f.fieldID, f.value, docID); err != nil {
			return err
		}
	}

	if err := docstore.Put(tx, docID, blob); err != nil {
		return err
	}

	for pair, prox := range ext.proximity {
		key := wordPairKey(pair[0], pair[1], uint8(prox))
		if err := tx.UnionBitmap(mdbxkv.WordPairProximity, key, one); err != nil {
			return err
		}
	}
	return nil
}

func isSearchable(s Settings, name string) bool {
	if len(s.SearchableAttributes) == 0 {
		return true
	}
	for _, a := range s.SearchableAttributes {
		if a == name {
			return true
		}
	}
	return false
}

func addWordPosting(tx *mdbxkv.RwTx, word string, docID uint32, docIDs *roaring.Bitmap, pos uint32) error {
	if err := tx.UnionBitmap(mdbxkv.WordDocids, []byte(word), docIDs); err != nil {
		return err
	}
	posKey := docidWordKey(docID, word)
	posBM := roaring.New()
	posBM.Add(pos)
	return tx.UnionBitmap(mdbxkv.DocidWordPositions, posKey, posBM)
}

// maxPrefixLength bounds how many leading prefixes of a word get their own
// word-prefix-docids entry: most prefix-search UIs only ever complete the
// last 2-4 typed characters, so indexing every prefix of every word
// (rather than just up to this bound) would bloat the table for no
// queryable benefit.
const maxPrefixLength = 4

func addWordPrefixPostings(tx *mdbxkv.RwTx, word string, docIDs *roaring.Bitmap) error {
	limit := maxPrefixLength
	if limit > len(word)-1 {
		limit = len(word) - 1
	}
	for n := 1; n <= limit; n++ {
		if err := tx.UnionBitmap(mdbxkv.WordPrefixDocids, []byte(word[:n]), docIDs); err != nil {
			return err
		}
	}
	return nil
}

func docidWordKey(docID uint32, word string) []byte {
	key := make([]byte, 4+len(word))
	copy(key, mdbxkv.U32Key(docID))
	copy(key[4:], word)
	return key
}

// maxProximity bounds how far apart two words in a document can be and
// still get a word-pair-proximity entry (§4.4 "Proximity" rule reads
// this table back at query time).
const maxProximity = 7

func wordPairKey(w1, w2 string, proximity uint8) []byte {
	key := make([]byte, 0, len(w1)+1+len(w2)+1+1)
	key = append(key, byte(len(w1)))
	key = append(key, w1...)
	key = append(key, byte(len(w2)))
	key = append(key, w2...)
	key = append(key, proximity)
	return key
}

func extractFacet(tx *mdbxkv.RwTx, fieldID uint16, value any, docID uint32) error {
	switch v := value.(type) {
	case float64:
		if err := facet.PutNumber(tx, fieldID, v, docID); err != nil {
			return err
		}
		return facet.PutDocNumber(tx, fieldID, docID, v)
	case string:
		norm := facet.NormalizeString(v)
		if err := facet.PutString(tx, fieldID, norm, docID); err != nil {
			return err
		}
		return facet.PutDocString(tx, fieldID, docID, norm)
	case bool:
		s := "false"
		if v {
			s = "true"
		}
		if err := facet.PutString(tx, fieldID, s, docID); err != nil {
			return err
		}
		return facet.PutDocString(tx, fieldID, docID, s)
	default:
		return nil // arrays/objects/null are not facetable scalars.
	}
}

