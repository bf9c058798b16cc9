package tasks

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// BatchDecision is one entry of the autobatcher debug log: which tasks got
// grouped and why, kept so tests and operators can see the reasoning
// behind an otherwise-opaque batching pass.
type BatchDecision struct {
	Reason string
	UIDs   []uint32
}

func loadTasks(tx *mdbxkv.Tx, bm *roaring.Bitmap) ([]*Task, error) {
	out := make([]*Task, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		uid := it.Next()
		raw, ok, err := tx.Get(mdbxkv.AllTasks, mdbxkv.U32Key(uid))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		t, err := decodeTask(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// selectBatch implements the precedence rules of §4.2 "Batching rules".
// It returns the chosen tasks (already sorted ascending by uid where that
// matters) and a short human-readable reason for the debug log.
func selectBatch(tx *mdbxkv.Tx) ([]*Task, string, error) {
	enqueued, err := tx.GetBitmap(mdbxkv.Status, statusKey(Enqueued))
	if err != nil {
		return nil, "", err
	}
	if enqueued.IsEmpty() {
		return nil, "", nil
	}

	if batch, reason, err := firstKindMatch(tx, enqueued, TaskCancelation, false); batch != nil || err != nil {
		return batch, reason, err
	}
	if batch, reason, err := firstKindMatch(tx, enqueued, TaskDeletion, true); batch != nil || err != nil {
		return batch, reason, err
	}
	if batch, reason, err := firstKindMatch(tx, enqueued, SnapshotCreation, true); batch != nil || err != nil {
		return batch, reason, err
	}
	if batch, reason, err := firstKindMatch(tx, enqueued, DumpCreation, false); batch != nil || err != nil {
		return batch, reason, err
	}

	return selectIndexBatch(tx, enqueued)
}

// firstKindMatch handles the first four priority rules: a single task
// (all=false) or every enqueued task of that kind (all=true).
func firstKindMatch(tx *mdbxkv.Tx, enqueued *roaring.Bitmap, kind Kind, all bool) ([]*Task, string, error) {
	kindBM, err := tx.GetBitmap(mdbxkv.Kind, kindKey(kind))
	if err != nil {
		return nil, "", err
	}
	matching := roaring.And(enqueued, kindBM)
	if matching.IsEmpty() {
		return nil, "", nil
	}
	if !all {
		uid := matching.Minimum()
		single := roaring.New()
		single.Add(uid)
		tasks, err := loadTasks(tx, single)
		return tasks, kind.String() + " (one task)", err
	}
	tasks, err := loadTasks(tx, matching)
	return tasks, kind.String() + " (all enqueued)", err
}

// selectIndexBatch implements rule 5: pick the index owning the smallest
// enqueued uid, then take the largest compatible prefix of its enqueued
// tasks.
func selectIndexBatch(tx *mdbxkv.Tx, enqueued *roaring.Bitmap) ([]*Task, string, error) {
	swapBM, err := tx.GetBitmap(mdbxkv.Kind, kindKey(IndexSwap))
	if err != nil {
		return nil, "", err
	}
	if swapMatches := roaring.And(enqueued, swapBM); !swapMatches.IsEmpty() {
		uid := swapMatches.Minimum()
		one := roaring.New()
		one.Add(uid)
		tasks, err := loadTasks(tx, one)
		return tasks, "indexSwap (one task)", err
	}

	// Find the index owning the globally earliest enqueued, index-scoped task.
	var targetIndex string
	found := false
	it := enqueued.Iterator()
	var firstUID uint32
	for it.HasNext() {
		uid := it.Next()
		raw, ok, err := tx.Get(mdbxkv.AllTasks, mdbxkv.U32Key(uid))
		if err != nil {
			return nil, "", err
		}
		if !ok {
			continue
		}
		t, err := decodeTask(raw)
		if err != nil {
			return nil, "", err
		}
		if t.Kind.IsSingleIndex() {
			targetIndex = t.IndexUID
			firstUID = uid
			found = true
			break
		}
	}
	if !found {
		return nil, "", nil
	}

	indexBM, err := tx.GetBitmap(mdbxkv.IndexTasks, []byte(targetIndex))
	if err != nil {
		return nil, "", err
	}
	candidates := roaring.And(enqueued, indexBM)
	tasks, err := loadTasks(tx, candidates)
	if err != nil {
		return nil, "", err
	}
	sortTasksByUID(tasks)

	// firstUID is not used to trim candidates; the batch starts at the
	// index's smallest enqueued uid.
	_ = firstUID

	batch := compatiblePrefix(tasks)
	return batch, "index " + targetIndex + " compatible prefix", nil
}

func sortTasksByUID(tasks []*Task) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j-1].UID > tasks[j].UID; j-- {
			tasks[j-1], tasks[j] = tasks[j], tasks[j-1]
		}
	}
}

// compatiblePrefix implements the per-kind merge rules of §4.2 rule 5.
func compatiblePrefix(tasks []*Task) []*Task {
	if len(tasks) == 0 {
		return nil
	}
	first := tasks[0]
	switch first.Kind {
	case IndexDeletion:
		// absorbs every other enqueued task for the index.
		return tasks
	case IndexSwap:
		return tasks[:1]
	case IndexCreation:
		batch := tasks[:1]
		for i := 1; i < len(tasks); i++ {
			if tasks[i].Kind == SettingsUpdate || tasks[i].Kind == DocumentAdditionOrUpdate {
				batch = tasks[:i+1]
				continue
			}
			break
		}
		return batch
	case DocumentAdditionOrUpdate:
		batch := tasks[:1]
		for i := 1; i < len(tasks); i++ {
			if tasks[i].Kind != DocumentAdditionOrUpdate || !samePrimaryKeyConstraint(first, tasks[i]) {
				break
			}
			batch = tasks[:i+1]
		}
		return batch
	case DocumentDeletion:
		batch := tasks[:1]
		for i := 1; i < len(tasks); i++ {
			if tasks[i].Kind != DocumentDeletion {
				break
			}
			batch = tasks[:i+1]
		}
		return batch
	case SettingsUpdate:
		batch := tasks[:1]
		for i := 1; i < len(tasks); i++ {
			if tasks[i].Kind != SettingsUpdate {
				break
			}
			batch = tasks[:i+1]
		}
		return batch
	default:
		return tasks[:1]
	}
}

func samePrimaryKeyConstraint(a, b *Task) bool {
	var ap, bp any
	if a.Details != nil {
		ap = a.Details["primaryKey"]
	}
	if b.Details != nil {
		bp = b.Details["primaryKey"]
	}
	return ap == bp
}
