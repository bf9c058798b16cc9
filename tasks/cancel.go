package tasks

import (
	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// CancelTasks resolves query to a set of target uids and registers a
// TaskCancelation task targeting them (§6 "cancel_tasks").
func (q *Queue) CancelTasks(query Query, auth *AuthFilter) (*Task, error) {
	matched, _, err := q.ListTasks(query, auth)
	if err != nil {
		return nil, err
	}
	uids := make([]uint32, len(matched))
	for i, t := range matched {
		uids[i] = t.UID
	}
	return q.Register(TaskCancelation, "", Details{"taskUids": uids}, "")
}

// DeleteTasks resolves query to a set of target uids and registers a
// TaskDeletion task targeting them (§6 "delete_tasks").
func (q *Queue) DeleteTasks(query Query, auth *AuthFilter) (*Task, error) {
	matched, _, err := q.ListTasks(query, auth)
	if err != nil {
		return nil, err
	}
	uids := make([]uint32, len(matched))
	for i, t := range matched {
		uids[i] = t.UID
	}
	return q.Register(TaskDeletion, "", Details{"taskUids": uids}, "")
}

func detailUIDs(d Details) []uint32 {
	raw, ok := d["taskUids"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []uint32:
		return v
	case []any:
		out := make([]uint32, 0, len(v))
		for _, x := range v {
			switch n := x.(type) {
			case float64:
				out = append(out, uint32(n))
			case uint32:
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

// applyCancelation moves every still-Enqueued target task to Canceled
// (§4.2 "Cancellation"); Processing tasks are recorded without effect,
// Succeeded/Failed tasks are untouched.
func (q *Queue) applyCancelation(cancelTask *Task) error {
	targets := detailUIDs(cancelTask.Details)

	return q.env.Update(func(tx *mdbxkv.RwTx) error {
		for _, uid := range targets {
			raw, ok, err := tx.Get(mdbxkv.AllTasks, mdbxkv.U32Key(uid))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			t, err := decodeTask(raw)
			if err != nil {
				return err
			}
			if t.Status != Enqueued {
				continue
			}
			prev := *t
			t.Status = Canceled
			started := *cancelTask.StartedAt
			t.StartedAt = &started
			finished := *cancelTask.StartedAt
			t.FinishedAt = &finished
			batchUID := *cancelTask.BatchUID
			t.BatchUID = &batchUID
			canceledBy := cancelTask.UID
			t.CanceledBy = &canceledBy
			if err := q.writeTaskRecord(tx, t, &prev); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyDeletion removes the record and secondary-index membership of every
// task targeted by any deletion task in batch.
func (q *Queue) applyDeletion(batch []*Task) error {
	var targets []uint32
	for _, deletionTask := range batch {
		targets = append(targets, detailUIDs(deletionTask.Details)...)
	}

	return q.env.Update(func(tx *mdbxkv.RwTx) error {
		for _, uid := range targets {
			raw, ok, err := tx.Get(mdbxkv.AllTasks, mdbxkv.U32Key(uid))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			t, err := decodeTask(raw)
			if err != nil {
				return err
			}
			if t.Status == Enqueued || t.Status == Processing {
				return errkind.New(errkind.IoError, "cannot delete non-terminal task %d", uid)
			}
			if err := removeFromBitmap(tx, mdbxkv.Status, statusKey(t.Status), uid); err != nil {
				return err
			}
			if err := removeFromBitmap(tx, mdbxkv.Kind, kindKey(t.Kind), uid); err != nil {
				return err
			}
			if t.IndexUID != "" {
				if err := removeFromBitmap(tx, mdbxkv.IndexTasks, []byte(t.IndexUID), uid); err != nil {
					return err
				}
			}
			if err := removeFromBitmap(tx, mdbxkv.EnqueuedAt, mdbxkv.TimeKey(t.EnqueuedAt), uid); err != nil {
				return err
			}
			if t.StartedAt != nil {
				if err := removeFromBitmap(tx, mdbxkv.StartedAt, mdbxkv.TimeKey(*t.StartedAt), uid); err != nil {
					return err
				}
			}
			if t.FinishedAt != nil {
				if err := removeFromBitmap(tx, mdbxkv.FinishedAt, mdbxkv.TimeKey(*t.FinishedAt), uid); err != nil {
					return err
				}
			}
			if err := tx.Delete(mdbxkv.AllTasks, mdbxkv.U32Key(uid)); err != nil {
				return err
			}
		}
		return nil
	})
}
