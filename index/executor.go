package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/storage/mdbxkv"
	"github.com/velasearch/vela/tasks"
)

// Registry owns every open Index, keyed by uid, and implements
// tasks.Executor by dispatching each batch's tasks into the index data
// model. It is the single place that knows the on-disk layout of the data
// directory (one subdirectory per index uid).
type Registry struct {
	dataDir string
	queue   *tasks.Queue
	workers int
	lock    *flock.Flock

	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewRegistry opens dataDir, taking an advisory lock on it so a second
// engine process cannot open the same environments concurrently (every
// per-index MDBX environment is single-writer). workers bounds the
// concurrency of the indexing pipeline's per-document extraction phase;
// values below 1 are treated as 1.
func NewRegistry(dataDir string, queue *tasks.Queue, workers int) (*Registry, error) {
	if workers < 1 {
		workers = 1
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.IoError, err, "creating data directory %q", dataDir)
	}
	lock := flock.New(filepath.Join(dataDir, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errkind.Wrap(errkind.IoError, err, "locking data directory %q", dataDir)
	}
	if !locked {
		return nil, errkind.New(errkind.IoError, "data directory %q is already locked by another process", dataDir)
	}
	return &Registry{dataDir: dataDir, queue: queue, workers: workers, lock: lock, indexes: map[string]*Index{}}, nil
}

func (r *Registry) indexPath(uid string) string { return filepath.Join(r.dataDir, "indexes", uid) }

// open opens (or re-opens) the index at uid/path and installs this
// registry's worker-pool size on it.
func (r *Registry) open(uid, path string) (*Index, error) {
	idx, err := Open(uid, path)
	if err != nil {
		return nil, err
	}
	idx.Workers = r.workers
	return idx, nil
}

// Get returns the already-open index for uid, if any.
func (r *Registry) Get(uid string) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.indexes[uid]
	return idx, ok
}

// CloseAll closes every open index and releases the data directory lock,
// for a clean server shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for uid, idx := range r.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.indexes, uid)
	}
	if r.lock != nil {
		if err := r.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Execute implements tasks.Executor. Tasks within a batch are already
// grouped by the scheduler's compatible-prefix rule, so they share a kind
// and (almost always) an index uid. When the batch targets one index's
// data (everything except IndexSwap and the cluster-scoped/administrative
// kinds), the whole batch runs under exactly one write transaction on
// that index's environment (§4.2 "Each batch executes under exactly one
// write transaction on the affected index"): a crash partway through
// would otherwise let recovery.go's Processing->Enqueued reset replay an
// already-committed earlier task in the same batch. IndexDeletion is
// excluded too since it absorbs every other task in its batch by
// removing the index outright, with nothing left needing a transaction.
func (r *Registry) Execute(ctx context.Context, batchUID uint32, batch []*tasks.Task) error {
	if len(batch) == 0 {
		return nil
	}
	first := batch[0]
	if !first.Kind.IsSingleIndex() || first.Kind == tasks.IndexDeletion {
		for _, t := range batch {
			if err := r.executeOne(ctx, t); err != nil {
				return errkind.Wrap(errkind.IoError, err, "task %d (%s) failed", t.UID, t.Kind)
			}
		}
		return nil
	}
	return r.executeIndexBatch(first, batch)
}

// executeIndexBatch opens (or, for a leading IndexCreation, creates) the
// affected index's environment once, then runs every task in batch inside
// a single write transaction on it.
func (r *Registry) executeIndexBatch(first *tasks.Task, batch []*tasks.Task) error {
	idx, err := r.indexForBatch(first)
	if err != nil {
		return err
	}
	return idx.env.Update(func(tx *mdbxkv.RwTx) error {
		for _, t := range batch {
			if err := r.executeOneTx(tx, idx, t); err != nil {
				return errkind.Wrap(errkind.IoError, err, "task %d (%s) failed", t.UID, t.Kind)
			}
		}
		return nil
	})
}

// indexForBatch resolves the Index an executeIndexBatch run should open
// its shared transaction against, creating it first if the batch leads
// with IndexCreation.
func (r *Registry) indexForBatch(first *tasks.Task) (*Index, error) {
	if first.Kind != tasks.IndexCreation {
		idx, ok := r.Get(first.IndexUID)
		if !ok {
			return nil, errkind.New(errkind.IndexNotFound, "index %q not found", first.IndexUID)
		}
		return idx, nil
	}
	if _, exists := r.Get(first.IndexUID); exists {
		return nil, errkind.New(errkind.IndexAlreadyExists, "index %q already exists", first.IndexUID)
	}
	idx, err := r.open(first.IndexUID, r.indexPath(first.IndexUID))
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.indexes[first.IndexUID] = idx
	r.mu.Unlock()
	return idx, nil
}

// executeOneTx dispatches one task of an index-affecting batch against
// the batch's already-open write transaction.
func (r *Registry) executeOneTx(tx *mdbxkv.RwTx, idx *Index, t *tasks.Task) error {
	switch t.Kind {
	case tasks.IndexCreation:
		return r.createIndexTx(tx, idx, t)
	case tasks.IndexUpdate:
		return r.updateIndexTx(tx, idx, t)
	case tasks.DocumentAdditionOrUpdate:
		return r.addDocumentsTx(tx, idx, t)
	case tasks.DocumentEdition:
		return r.editDocumentsTx(tx, idx, t)
	case tasks.DocumentDeletion:
		return r.deleteDocumentsTx(tx, idx, t)
	case tasks.SettingsUpdate:
		return r.updateSettingsTx(tx, idx, t)
	case tasks.IndexCompaction:
		// Compaction tooling is out of core scope; succeeds as a no-op so
		// the queue does not stall behind it.
		return nil
	default:
		return errkind.New(errkind.IoError, "no transactional handler registered for task kind %s", t.Kind)
	}
}

func (r *Registry) executeOne(ctx context.Context, t *tasks.Task) error {
	switch t.Kind {
	case tasks.IndexDeletion:
		return r.deleteIndex(t)
	case tasks.IndexSwap:
		return r.swapIndexes(t)
	case tasks.SnapshotCreation:
		return r.writeManifest(t, "snapshots")
	case tasks.DumpCreation:
		return r.writeManifest(t, "dumps")
	case tasks.IndexCompaction, tasks.UpgradeDatabase, tasks.Export:
		// Compaction/migration/export tooling is out of core scope; these
		// succeed as no-ops so the queue does not stall behind them.
		return nil
	default:
		return errkind.New(errkind.IoError, "no handler registered for task kind %s", t.Kind)
	}
}

func decodeDetail(d tasks.Details, key string, out any) error {
	v, ok := d[key]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errkind.Wrap(errkind.IoError, err, "re-encoding task detail %q", key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errkind.Wrap(errkind.IoError, err, "decoding task detail %q", key)
	}
	return nil
}

// createIndexTx applies an IndexCreation task's primaryKey, if any, inside
// the batch's shared write transaction. Opening the environment itself
// happens in indexForBatch, before this transaction starts.
func (r *Registry) createIndexTx(tx *mdbxkv.RwTx, idx *Index, t *tasks.Task) error {
	var primaryKey string
	if err := decodeDetail(t.Details, "primaryKey", &primaryKey); err != nil {
		return err
	}
	if primaryKey == "" {
		return nil
	}
	return idx.CommitMetadata(tx, nil, &primaryKey, nil)
}

func (r *Registry) deleteIndex(t *tasks.Task) error {
	idx, ok := r.Get(t.IndexUID)
	if !ok {
		return errkind.New(errkind.IndexNotFound, "index %q not found", t.IndexUID)
	}
	if err := idx.Close(); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.indexes, t.IndexUID)
	r.mu.Unlock()
	return os.RemoveAll(r.indexPath(t.IndexUID))
}

func (r *Registry) updateIndexTx(tx *mdbxkv.RwTx, idx *Index, t *tasks.Task) error {
	var primaryKey string
	if err := decodeDetail(t.Details, "primaryKey", &primaryKey); err != nil {
		return err
	}
	if primaryKey == "" {
		return nil
	}
	if idx.PrimaryKey() != "" {
		return errkind.New(errkind.IndexPrimaryKeyAlreadyExists, "index %q already has a primary key", t.IndexUID)
	}
	return idx.CommitMetadata(tx, nil, &primaryKey, nil)
}

func (r *Registry) addDocumentsTx(tx *mdbxkv.RwTx, idx *Index, t *tasks.Task) error {
	var docs []map[string]any
	if err := decodeDetail(t.Details, "documents", &docs); err != nil {
		return err
	}
	var primaryKey string
	_ = decodeDetail(t.Details, "primaryKey", &primaryKey)
	policy := Replace
	var policyName string
	_ = decodeDetail(t.Details, "policy", &policyName)
	if policyName == "merge" {
		policy = Merge
	}

	parsed := make([]Document, 0, len(docs))
	for _, m := range docs {
		d := newDocument()
		for k, v := range m {
			d.set(k, v)
		}
		parsed = append(parsed, d)
	}

	result, err := idx.AddDocuments(tx, parsed, primaryKey, true, policy)
	if err != nil {
		return err
	}
	t.Details["received"] = result.Received
	t.Details["indexedDocuments"] = result.Indexed
	return nil
}

// editDocumentsTx applies a field-level patch to a fixed set of documents,
// a simplified stand-in for full function-based document editing (§4.3
// Non-goals excludes an embedded scripting engine).
func (r *Registry) editDocumentsTx(tx *mdbxkv.RwTx, idx *Index, t *tasks.Task) error {
	var docIDs []string
	if err := decodeDetail(t.Details, "documentIds", &docIDs); err != nil {
		return err
	}
	var patch map[string]any
	if err := decodeDetail(t.Details, "patch", &patch); err != nil {
		return err
	}
	if len(docIDs) == 0 || len(patch) == 0 {
		return nil
	}

	patchDoc := newDocument()
	for k, v := range patch {
		patchDoc.set(k, v)
	}

	for _, id := range docIDs {
		merged := newDocument()
		merged.set(idx.PrimaryKey(), id)
		for _, name := range patchDoc.Order {
			merged.set(name, patchDoc.Fields[name])
		}
		merged.set(idx.PrimaryKey(), id)
		if _, err := idx.AddDocuments(tx, []Document{merged}, idx.PrimaryKey(), false, Merge); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) deleteDocumentsTx(tx *mdbxkv.RwTx, idx *Index, t *tasks.Task) error {
	var docIDs []string
	if err := decodeDetail(t.Details, "documentIds", &docIDs); err != nil {
		return err
	}
	return idx.DeleteDocumentsTx(tx, docIDs)
}

func (r *Registry) updateSettingsTx(tx *mdbxkv.RwTx, idx *Index, t *tasks.Task) error {
	var wire SettingsWire
	if err := decodeDetail(t.Details, "settings", &wire); err != nil {
		return err
	}
	patch := wire.ToPatch()
	next, _ := patch.Resolve(idx.Settings())
	return idx.CommitMetadata(tx, nil, nil, &next)
}

func (r *Registry) swapIndexes(t *tasks.Task) error {
	var pairs []tasks.SwapPair
	if err := decodeDetail(t.Details, "pairs", &pairs); err != nil {
		return err
	}
	var rename bool
	_ = decodeDetail(t.Details, "rename", &rename)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pairs {
		idxA, aOK := r.indexes[p.A]
		idxB, bOK := r.indexes[p.B]
		if aOK {
			_ = idxA.Close()
		}
		if bOK {
			_ = idxB.Close()
		}
		pathA, pathB := r.indexPath(p.A), r.indexPath(p.B)
		tmp := pathA + ".swap-tmp"
		if rename {
			if bOK {
				if err := os.Rename(pathB, pathA); err != nil {
					return errkind.Wrap(errkind.IoError, err, "renaming index %q onto %q", p.B, p.A)
				}
			}
		} else {
			if aOK {
				if err := os.Rename(pathA, tmp); err != nil {
					return errkind.Wrap(errkind.IoError, err, "swapping index %q", p.A)
				}
			}
			if bOK {
				if err := os.Rename(pathB, pathA); err != nil {
					return errkind.Wrap(errkind.IoError, err, "swapping index %q", p.B)
				}
			}
			if aOK {
				if err := os.Rename(tmp, pathB); err != nil {
					return errkind.Wrap(errkind.IoError, err, "swapping index %q", p.A)
				}
			}
		}

		delete(r.indexes, p.A)
		delete(r.indexes, p.B)
		if newA, err := r.open(p.A, pathA); err == nil {
			r.indexes[p.A] = newA
		}
		if !rename {
			if newB, err := r.open(p.B, pathB); err == nil {
				r.indexes[p.B] = newB
			}
		}
	}

	return r.queue.RemapTaskHistory(pairs, rename)
}

// snapshotManifest is the on-disk record written alongside a snapshot or
// dump, giving a reader enough to identify what was captured without
// opening any MDBX environment.
type snapshotManifest struct {
	TaskUID    uint32    `yaml:"taskUid"`
	EnqueuedAt time.Time `yaml:"enqueuedAt"`
	Indexes    []string  `yaml:"indexes"`
}

// writeManifest records a YAML manifest under <dataDir>/<kindDir>/<taskUID>/
// metadata.yaml, listing every currently open index. It does not itself
// copy any index data; the file layout and copy/restore mechanics are out
// of core scope, but the task kind's bookkeeping is not.
func (r *Registry) writeManifest(t *tasks.Task, kindDir string) error {
	r.mu.RLock()
	indexes := make([]string, 0, len(r.indexes))
	for uid := range r.indexes {
		indexes = append(indexes, uid)
	}
	r.mu.RUnlock()
	sort.Strings(indexes)

	manifest := snapshotManifest{
		TaskUID:    t.UID,
		EnqueuedAt: t.EnqueuedAt,
		Indexes:    indexes,
	}

	dir := filepath.Join(r.dataDir, kindDir, strconv.FormatUint(uint64(t.UID), 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errkind.Wrap(errkind.IoError, err, "creating %s directory", kindDir)
	}

	raw, err := yaml.Marshal(manifest)
	if err != nil {
		return errkind.Wrap(errkind.IoError, err, "encoding %s manifest", kindDir)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.yaml"), raw, 0o644); err != nil {
		return errkind.Wrap(errkind.IoError, err, "writing %s manifest", kindDir)
	}
	return nil
}
