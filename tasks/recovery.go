package tasks

import (
	"github.com/velasearch/vela/storage/mdbxkv"
)

// recoverFromCrash implements §4.2 "Crash recovery": any task whose
// persisted status is Processing could not have survived a clean shutdown
// (the overlay that tracks in-flight work lives only in memory), so it is
// reset to Enqueued. A task whose record fails to decode is left alone
// here; decodeTask already tags that failure as CorruptedTaskQueue for the
// caller that hit it, and GetTask/ListTasks surface it when next read.
func (q *Queue) recoverFromCrash() error {
	var stale []*Task
	if err := q.env.View(func(tx *mdbxkv.Tx) error {
		return tx.ForEach(mdbxkv.AllTasks, func(k, v []byte) error {
			t, err := decodeTask(v)
			if err != nil {
				return nil // surfaced lazily on next direct read of this uid
			}
			if t.Status == Processing {
				stale = append(stale, t)
			}
			return nil
		})
	}); err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	return q.env.Update(func(tx *mdbxkv.RwTx) error {
		for _, t := range stale {
			prev := *t
			t.Status = Enqueued
			t.StartedAt = nil
			t.FinishedAt = nil
			t.BatchUID = nil
			if err := q.writeTaskRecord(tx, t, &prev); err != nil {
				return err
			}
		}
		return nil
	})
}
