package tasks

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// Queue is the durable task log plus the in-memory state the scheduler and
// query filter need that isn't worth round-tripping through MDBX on every
// access (§4.2, §5).
type Queue struct {
	env *mdbxkv.Env

	mu          sync.Mutex
	lastTaskUID uint32
	lastBatchUID uint32

	overlay *processingOverlay

	wake chan struct{}

	debugMu  sync.Mutex
	debugLog []BatchDecision
}

// Open opens (or creates) the queue environment at path and replays crash
// recovery (§4.2 "Crash recovery") before returning.
func Open(path string) (*Queue, error) {
	env, err := mdbxkv.Open(path, mdbxkv.QueueTables, mdbxkv.QueueTablesCfg, nil)
	if err != nil {
		return nil, err
	}
	q := &Queue{
		env:     env,
		overlay: newProcessingOverlay(),
		wake:    make(chan struct{}, 1),
	}
	if err := q.loadCounters(); err != nil {
		_ = env.Close()
		return nil, err
	}
	if err := q.recoverFromCrash(); err != nil {
		_ = env.Close()
		return nil, err
	}
	return q, nil
}

// Close releases the underlying environment.
func (q *Queue) Close() error { return q.env.Close() }

func (q *Queue) loadCounters() error {
	return q.env.View(func(tx *mdbxkv.Tx) error {
		var lastTask, lastBatch uint32
		if err := tx.ForEach(mdbxkv.AllTasks, func(k, _ []byte) error {
			uid := mdbxkv.ParseU32Key(k)
			if uid >= lastTask {
				lastTask = uid + 1
			}
			return nil
		}); err != nil {
			return err
		}
		if err := tx.ForEach(mdbxkv.AllBatches, func(k, _ []byte) error {
			uid := mdbxkv.ParseU32Key(k)
			if uid >= lastBatch {
				lastBatch = uid + 1
			}
			return nil
		}); err != nil {
			return err
		}
		q.lastTaskUID = lastTask
		q.lastBatchUID = lastBatch
		return nil
	})
}

// nextTaskUID and nextBatchUID assume the caller already holds q.mu.
func (q *Queue) nextTaskUID() uint32 {
	uid := q.lastTaskUID
	q.lastTaskUID++
	return uid
}

func (q *Queue) nextBatchUID() uint32 {
	uid := q.lastBatchUID
	q.lastBatchUID++
	return uid
}

// Register performs the atomic registration described in §4.2: assigns a
// uid, appends the task record, and indexes it into every secondary
// bitmap table, then signals the scheduler.
func (q *Queue) Register(kind Kind, indexUID string, details Details, contentFile string) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	uid := q.nextTaskUID()
	now := time.Now().UTC()
	t := &Task{
		UID:         uid,
		IndexUID:    indexUID,
		EnqueuedAt:  now,
		Status:      Enqueued,
		Kind:        kind,
		Details:     details,
		ContentFile: contentFile,
	}

	err := q.env.Update(func(tx *mdbxkv.RwTx) error {
		return q.writeTaskRecord(tx, t, nil)
	})
	if err != nil {
		q.lastTaskUID-- // roll back the counter reservation on failed commit
		return nil, errkind.Wrap(errkind.IoError, err, "registering task")
	}

	q.signal()
	return t, nil
}

// writeTaskRecord appends/updates a task's record and its secondary index
// entries. When prev is non-nil, the old status membership, and any
// started/finished-at membership that t no longer carries, are removed
// first (used when transitioning status); kind, index and enqueued-at
// never change and are left as they are.
func (q *Queue) writeTaskRecord(tx *mdbxkv.RwTx, t *Task, prev *Task) error {
	if err := t.validate(); err != nil {
		return err
	}

	if prev != nil {
		if err := removeFromBitmap(tx, mdbxkv.Status, statusKey(prev.Status), t.UID); err != nil {
			return err
		}
		if prev.StartedAt != nil && t.StartedAt == nil {
			if err := removeFromBitmap(tx, mdbxkv.StartedAt, mdbxkv.TimeKey(*prev.StartedAt), t.UID); err != nil {
				return err
			}
		}
		if prev.FinishedAt != nil && t.FinishedAt == nil {
			if err := removeFromBitmap(tx, mdbxkv.FinishedAt, mdbxkv.TimeKey(*prev.FinishedAt), t.UID); err != nil {
				return err
			}
		}
	}

	raw, err := encodeTask(t)
	if err != nil {
		return err
	}
	key := mdbxkv.U32Key(t.UID)
	if err := tx.Put(mdbxkv.AllTasks, key, raw); err != nil {
		return err
	}

	one := roaring.New()
	one.Add(t.UID)

	if err := tx.UnionBitmap(mdbxkv.Status, statusKey(t.Status), one); err != nil {
		return err
	}

	if prev == nil {
		if err := tx.UnionBitmap(mdbxkv.Kind, kindKey(t.Kind), one); err != nil {
			return err
		}
		if t.IndexUID != "" {
			if err := tx.UnionBitmap(mdbxkv.IndexTasks, []byte(t.IndexUID), one); err != nil {
				return err
			}
		}
		if err := tx.UnionBitmap(mdbxkv.EnqueuedAt, mdbxkv.TimeKey(t.EnqueuedAt), one); err != nil {
			return err
		}
	}

	if t.StartedAt != nil && (prev == nil || prev.StartedAt == nil) {
		if err := tx.UnionBitmap(mdbxkv.StartedAt, mdbxkv.TimeKey(*t.StartedAt), one); err != nil {
			return err
		}
	}
	if t.FinishedAt != nil && (prev == nil || prev.FinishedAt == nil) {
		if err := tx.UnionBitmap(mdbxkv.FinishedAt, mdbxkv.TimeKey(*t.FinishedAt), one); err != nil {
			return err
		}
	}
	if t.CanceledBy != nil {
		if err := tx.UnionBitmap(mdbxkv.CanceledBy, mdbxkv.U32Key(*t.CanceledBy), one); err != nil {
			return err
		}
	}
	return nil
}

func removeFromBitmap(tx *mdbxkv.RwTx, table string, key []byte, uid uint32) error {
	one := roaring.New()
	one.Add(uid)
	return tx.SubtractBitmap(table, key, one)
}

func statusKey(s Status) []byte { return []byte{byte(s)} }
func kindKey(k Kind) []byte     { return []byte{byte(k)} }

// GetTask reads one task by uid, overlaying any in-memory Processing state.
func (q *Queue) GetTask(uid uint32) (*Task, bool, error) {
	var t *Task
	var ok bool
	err := q.env.View(func(tx *mdbxkv.Tx) error {
		raw, found, err := tx.Get(mdbxkv.AllTasks, mdbxkv.U32Key(uid))
		if err != nil || !found {
			ok = found
			return err
		}
		t, err = decodeTask(raw)
		ok = true
		return err
	})
	if err != nil || !ok {
		return nil, ok, err
	}
	q.overlay.apply(t)
	return t, true, nil
}

// signal performs a non-blocking send on the wake channel; a full channel
// means a wake-up is already pending, so the send is simply dropped.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
