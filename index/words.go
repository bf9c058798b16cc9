package index

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/btree"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// WordSet is the finite-state set of all known words (§4.3 step 6). No
// available library vendors a ready-made FST here, so this keeps the
// sorted word set in a google/btree.BTreeG for ordered membership/prefix
// queries and persists it as a sorted JSON array — functionally
// equivalent to an FST for exact and prefix lookups, at the cost of a
// larger in-memory/on-disk footprint per word than a true compressed
// automaton.
type WordSet struct {
	tree *btree.BTreeG[string]
}

func NewWordSet() *WordSet {
	return &WordSet{tree: btree.NewG[string](32, func(a, b string) bool { return a < b })}
}

// Contains reports whether word is known.
func (w *WordSet) Contains(word string) bool {
	_, ok := w.tree.Get(word)
	return ok
}

// Insert adds word if absent.
func (w *WordSet) Insert(word string) { w.tree.ReplaceOrInsert(word) }

// Union merges other's words into w, the step-6 "unioning the new words
// into the previous FST".
func (w *WordSet) Union(other *WordSet) {
	other.tree.Ascend(func(word string) bool {
		w.Insert(word)
		return true
	})
}

// PrefixSearch returns every known word starting with prefix, ascending.
func (w *WordSet) PrefixSearch(prefix string) []string {
	var out []string
	w.tree.AscendGreaterOrEqual(prefix, func(word string) bool {
		if !strings.HasPrefix(word, prefix) {
			return false
		}
		out = append(out, word)
		return true
	})
	return out
}

// Len returns the number of known words.
func (w *WordSet) Len() int { return w.tree.Len() }

// All returns every known word, ascending. Used by typo-tolerant term
// expansion, which has no Levenshtein automaton to intersect with the set
// (see search/graph.go) and so scans the whole vocabulary instead.
func (w *WordSet) All() []string {
	out := make([]string, 0, w.tree.Len())
	w.tree.Ascend(func(word string) bool {
		out = append(out, word)
		return true
	})
	return out
}

// MarshalBinary serializes the set as a sorted JSON string array.
func (w *WordSet) MarshalBinary() ([]byte, error) {
	words := make([]string, 0, w.tree.Len())
	w.tree.Ascend(func(word string) bool {
		words = append(words, word)
		return true
	})
	sort.Strings(words) // already sorted by the tree; defensive no-op.
	return json.Marshal(words)
}

// UnmarshalWordSet is the inverse of MarshalBinary.
func UnmarshalWordSet(raw []byte) (*WordSet, error) {
	var words []string
	if err := json.Unmarshal(raw, &words); err != nil {
		return nil, errkind.Wrap(errkind.InvalidStoreFile, err, "decoding words fst")
	}
	w := NewWordSet()
	for _, word := range words {
		w.Insert(word)
	}
	return w, nil
}

// LoadWordSet reads the persisted word set from the main table, returning
// an empty set if none has been written yet.
func LoadWordSet(tx *mdbxkv.Tx) (*WordSet, error) {
	raw, ok, err := tx.Get(mdbxkv.Main, []byte(mdbxkv.MainWordsFST))
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewWordSet(), nil
	}
	return UnmarshalWordSet(raw)
}

// PutWordSet persists w under the main table's words-fst label.
func PutWordSet(tx *mdbxkv.RwTx, w *WordSet) error {
	raw, err := w.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Put(mdbxkv.Main, []byte(mdbxkv.MainWordsFST), raw)
}
