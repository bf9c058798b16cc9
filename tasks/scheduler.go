package tasks

import (
	"context"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/rs/zerolog"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/storage/mdbxkv"
)

// Executor runs the non-administrative tasks of a batch (everything
// except TaskCancelation/TaskDeletion, which the scheduler handles
// itself) against the index data model, returning the per-task failure if
// any one task in the batch could not be applied. The scheduler commits
// the whole batch as Failed with err's message when non-nil, matching
// §4.2's "each batch executes under exactly one write transaction" — a
// partial per-task failure model belongs to the index module, which owns
// the actual mutation transaction.
type Executor interface {
	Execute(ctx context.Context, batchUID uint32, batch []*Task) error
}

const debugLogCapacity = 256

// maxSafetyNetInterval bounds how long the scheduler can go without
// checking for work even if a wake-up signal is lost to a race, matching
// cuemby-warren's ticker-driven control loop augmented with a select over
// an explicit wake channel.
const maxSafetyNetInterval = 2 * time.Second

// Run drives the scheduler loop until ctx is canceled: wait for a wake-up
// or the safety-net ticker, then drain batches until none remain ready.
func (q *Queue) Run(ctx context.Context, exec Executor, log zerolog.Logger) {
	ticker := time.NewTicker(maxSafetyNetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}

		for {
			ran, err := q.RunOnce(ctx, exec)
			if err != nil {
				log.Error().Err(err).Msg("batch execution failed")
			}
			if !ran {
				break
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

// RunOnce selects and executes at most one batch, returning whether a
// batch was found.
func (q *Queue) RunOnce(ctx context.Context, exec Executor) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var selected []*Task
	var reason string
	err := q.env.View(func(tx *mdbxkv.Tx) error {
		tasks, r, err := selectBatch(tx)
		selected, reason = tasks, r
		return err
	})
	if err != nil {
		return false, err
	}
	if len(selected) == 0 {
		return false, nil
	}

	batchUID := q.nextBatchUID()
	q.recordDecision(BatchDecision{Reason: reason, UIDs: taskUIDs(selected)})

	if err := q.beginBatch(batchUID, selected); err != nil {
		return false, err
	}

	execErr := q.runBatch(ctx, exec, batchUID, selected)

	if err := q.finishBatch(batchUID, selected, execErr); err != nil {
		return false, err
	}
	return true, nil
}

// runBatch dispatches administrative kinds internally and everything else
// to exec.
func (q *Queue) runBatch(ctx context.Context, exec Executor, batchUID uint32, batch []*Task) error {
	if len(batch) == 1 && batch[0].Kind == TaskCancelation {
		return q.applyCancelation(batch[0])
	}
	if len(batch) > 0 && batch[0].Kind == TaskDeletion {
		return q.applyDeletion(batch)
	}
	if exec == nil {
		return errkind.New(errkind.IoError, "no executor registered for batch kind %s", batch[0].Kind)
	}
	return exec.Execute(ctx, batchUID, batch)
}

func (q *Queue) beginBatch(batchUID uint32, batch []*Task) error {
	now := time.Now().UTC()
	uids := roaring.New()
	uids.AddMany(taskUIDs(batch))
	q.overlay.begin(batchUID, uids)

	return q.env.Update(func(tx *mdbxkv.RwTx) error {
		b := &Batch{
			UID:       batchUID,
			StartedAt: now,
			Progress:  Progress{Step: "starting", Fraction: 0},
			Stats:     statsOf(batch),
		}
		raw, err := encodeBatch(b)
		if err != nil {
			return err
		}
		if err := tx.Put(mdbxkv.AllBatches, mdbxkv.U32Key(batchUID), raw); err != nil {
			return err
		}
		for _, t := range batch {
			prev := *t
			t.Status = Processing
			started := now
			t.StartedAt = &started
			bu := batchUID
			t.BatchUID = &bu
			if err := q.writeTaskRecord(tx, t, &prev); err != nil {
				return err
			}
		}
		return nil
	})
}

func (q *Queue) finishBatch(batchUID uint32, batch []*Task, execErr error) error {
	now := time.Now().UTC()
	err := q.env.Update(func(tx *mdbxkv.RwTx) error {
		for _, t := range batch {
			if t.Status != Processing {
				continue // Cancelation/Deletion may have already moved these to a terminal state.
			}
			prev := *t
			t.FinishedAt = &now
			if execErr != nil {
				t.Status = Failed
				t.Error = toTaskError(execErr)
			} else {
				t.Status = Succeeded
			}
			if err := q.writeTaskRecord(tx, t, &prev); err != nil {
				return err
			}
		}

		raw, ok, err := tx.Get(mdbxkv.AllBatches, mdbxkv.U32Key(batchUID))
		if err != nil {
			return err
		}
		if ok {
			b, err := decodeBatch(raw)
			if err != nil {
				return err
			}
			b.FinishedAt = &now
			b.Progress = Progress{Step: "done", Fraction: 1}
			raw, err := encodeBatch(b)
			if err != nil {
				return err
			}
			if err := tx.Put(mdbxkv.AllBatches, mdbxkv.U32Key(batchUID), raw); err != nil {
				return err
			}
		}
		return nil
	})
	q.overlay.end()
	return err
}

func toTaskError(err error) *errkind.Error {
	if e, ok := err.(*errkind.Error); ok {
		return e
	}
	return errkind.Wrap(errkind.IoError, err, "batch execution failed")
}

func statsOf(batch []*Task) BatchStats {
	stats := BatchStats{
		TotalTasks:   len(batch),
		StatusCounts: map[string]int{},
		KindCounts:   map[string]int{},
		IndexCounts:  map[string]int{},
	}
	for _, t := range batch {
		stats.StatusCounts[t.Status.String()]++
		stats.KindCounts[t.Kind.String()]++
		if t.IndexUID != "" {
			stats.IndexCounts[t.IndexUID]++
		}
	}
	return stats
}

func taskUIDs(tasks []*Task) []uint32 {
	out := make([]uint32, len(tasks))
	for i, t := range tasks {
		out[i] = t.UID
	}
	return out
}

func (q *Queue) recordDecision(d BatchDecision) {
	q.debugMu.Lock()
	defer q.debugMu.Unlock()
	q.debugLog = append(q.debugLog, d)
	if len(q.debugLog) > debugLogCapacity {
		q.debugLog = q.debugLog[len(q.debugLog)-debugLogCapacity:]
	}
}

// DebugBatchingLog returns a copy of the most recent batching decisions,
// newest last.
func (q *Queue) DebugBatchingLog() []BatchDecision {
	q.debugMu.Lock()
	defer q.debugMu.Unlock()
	out := make([]BatchDecision, len(q.debugLog))
	copy(out, q.debugLog)
	return out
}
