package tasks

import (
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/bitmap"
	"github.com/velasearch/vela/storage/mdbxkv"
)

func bitmapFromBytes(b []byte) (*roaring.Bitmap, error) { return bitmap.Decode(b) }

// Query is the task/batch filter described in §4.2 "Query filter".
type Query struct {
	Limit      uint32
	From       *uint32 // inclusive uid bound: upper bound, or lower bound with Reverse
	Reverse    bool
	UIDs       []uint32
	BatchUIDs  []uint32
	Statuses   []Status
	Kinds      []Kind
	IndexUIDs  []string
	CanceledBy []uint32

	BeforeEnqueuedAt *time.Time
	AfterEnqueuedAt  *time.Time
	BeforeStartedAt  *time.Time
	AfterStartedAt   *time.Time
	BeforeFinishedAt *time.Time
	AfterFinishedAt  *time.Time
}

// AuthFilter restricts results to a set of allowed index-uid patterns. A
// nil AllowedIndexes means unrestricted (no auth boundary applied).
type AuthFilter struct {
	AllowedIndexes []string // exact uids or "*" for unrestricted
}

func (a *AuthFilter) allows(indexUID string) bool {
	if a == nil || len(a.AllowedIndexes) == 0 {
		return true
	}
	for _, pat := range a.AllowedIndexes {
		if pat == "*" || pat == indexUID {
			return true
		}
	}
	return false
}

func (a *AuthFilter) restricted() bool {
	if a == nil {
		return false
	}
	for _, pat := range a.AllowedIndexes {
		if pat == "*" {
			return false
		}
	}
	return len(a.AllowedIndexes) > 0
}

// ListTasks resolves q against the persisted indexes and the in-memory
// processing overlay, honoring auth, and returns matching tasks plus the
// total match count before limit (§4.2, §6 "list_tasks").
func (q *Queue) ListTasks(query Query, auth *AuthFilter) ([]*Task, int, error) {
	var matched *roaring.Bitmap
	var tasks []*Task

	err := q.env.View(func(tx *mdbxkv.Tx) error {
		bm, err := q.matchBitmap(tx, query, auth)
		if err != nil {
			return err
		}
		matched = bm

		uids := matched.ToArray()
		if query.Reverse {
			sortAsc(uids)
		} else {
			sortDesc(uids)
		}

		limit := int(query.Limit)
		if limit <= 0 || limit > len(uids) {
			limit = len(uids)
		}
		for _, uid := range uids[:limit] {
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
			q.overlay.apply(t)
			tasks = append(tasks, t)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return tasks, int(matched.GetCardinality()), nil
}

// matchBitmap computes the bitmap of task uids matching query and auth,
// applying the Processing-overlay union/subtraction described in §4.2.
func (q *Queue) matchBitmap(tx *mdbxkv.Tx, query Query, auth *AuthFilter) (*roaring.Bitmap, error) {
	universe, err := allTaskUIDs(tx)
	if err != nil {
		return nil, err
	}
	result := universe

	if len(query.UIDs) > 0 {
		result = roaring.And(result, bitmapOf(query.UIDs))
	}
	if query.From != nil {
		result = roaring.And(result, rangeBitmap(universe, *query.From, query.Reverse))
	}
	if len(query.Statuses) > 0 {
		sbm := roaring.New()
		for _, s := range query.Statuses {
			bm, err := statusBitmapWithOverlay(tx, q.overlay, s)
			if err != nil {
				return nil, err
			}
			sbm.Or(bm)
		}
		result = roaring.And(result, sbm)
	}
	if len(query.Kinds) > 0 {
		kbm := roaring.New()
		for _, k := range query.Kinds {
			bm, err := tx.GetBitmap(mdbxkv.Kind, kindKey(k))
			if err != nil {
				return nil, err
			}
			kbm.Or(bm)
		}
		result = roaring.And(result, kbm)
	}
	if len(query.BatchUIDs) > 0 {
		bbm, err := batchTaskBitmap(tx, query.BatchUIDs)
		if err != nil {
			return nil, err
		}
		result = roaring.And(result, bbm)
	}
	if len(query.IndexUIDs) > 0 {
		ibm := roaring.New()
		for _, uid := range query.IndexUIDs {
			bm, err := tx.GetBitmap(mdbxkv.IndexTasks, []byte(uid))
			if err != nil {
				return nil, err
			}
			ibm.Or(bm)
		}
		result = roaring.And(result, ibm)
	}
	if len(query.CanceledBy) > 0 {
		cbm := roaring.New()
		for _, uid := range query.CanceledBy {
			bm, err := tx.GetBitmap(mdbxkv.CanceledBy, mdbxkv.U32Key(uid))
			if err != nil {
				return nil, err
			}
			cbm.Or(bm)
		}
		result = roaring.And(result, cbm)
	}
	if query.BeforeEnqueuedAt != nil || query.AfterEnqueuedAt != nil {
		bm, err := timeRangeBitmap(tx, mdbxkv.EnqueuedAt, query.AfterEnqueuedAt, query.BeforeEnqueuedAt)
		if err != nil {
			return nil, err
		}
		result = roaring.And(result, bm)
	}
	if query.BeforeStartedAt != nil || query.AfterStartedAt != nil {
		bm, err := timeRangeBitmap(tx, mdbxkv.StartedAt, query.AfterStartedAt, query.BeforeStartedAt)
		if err != nil {
			return nil, err
		}
		// Processing tasks are judged by the batch's live started_at.
		if processing, startedAt, active := q.overlay.snapshot(); active {
			bm = roaring.AndNot(bm, processing)
			if (query.AfterStartedAt == nil || startedAt.After(*query.AfterStartedAt)) &&
				(query.BeforeStartedAt == nil || startedAt.Before(*query.BeforeStartedAt)) {
				bm.Or(processing)
			}
		}
		result = roaring.And(result, bm)
	}
	if query.BeforeFinishedAt != nil || query.AfterFinishedAt != nil {
		bm, err := timeRangeBitmap(tx, mdbxkv.FinishedAt, query.AfterFinishedAt, query.BeforeFinishedAt)
		if err != nil {
			return nil, err
		}
		result = roaring.And(result, bm)
	}

	if auth.restricted() {
		result = roaring.And(result, authAllowedBitmap(tx, auth))
	}
	if len(query.IndexUIDs) > 0 || auth.restricted() {
		result = roaring.AndNot(result, nonIndexScopedBitmap(tx))
	}
	return result, nil
}

func allTaskUIDs(tx *mdbxkv.Tx) (*roaring.Bitmap, error) {
	all := roaring.New()
	err := tx.ForEach(mdbxkv.AllTasks, func(k, _ []byte) error {
		all.Add(mdbxkv.ParseU32Key(k))
		return nil
	})
	return all, err
}

func bitmapOf(uids []uint32) *roaring.Bitmap {
	bm := roaring.New()
	bm.AddMany(uids)
	return bm
}

func rangeBitmap(universe *roaring.Bitmap, from uint32, reverse bool) *roaring.Bitmap {
	out := roaring.New()
	it := universe.Iterator()
	for it.HasNext() {
		uid := it.Next()
		if reverse && uid >= from {
			out.Add(uid)
		}
		if !reverse && uid <= from {
			out.Add(uid)
		}
	}
	return out
}

// statusBitmapWithOverlay returns the persisted bitmap for status, unioned
// with currently-Processing uids when status==Processing, and with those
// same uids subtracted when status==Enqueued (their persisted record may
// still say Enqueued if the begin-batch write hasn't landed, but the
// overlay is authoritative for liveness).
func statusBitmapWithOverlay(tx *mdbxkv.Tx, overlay *processingOverlay, status Status) (*roaring.Bitmap, error) {
	bm, err := tx.GetBitmap(mdbxkv.Status, statusKey(status))
	if err != nil {
		return nil, err
	}
	processing, _, active := overlay.snapshot()
	if !active {
		return bm, nil
	}
	switch status {
	case Processing:
		return roaring.Or(bm, processing), nil
	case Enqueued:
		return roaring.AndNot(bm, processing), nil
	default:
		return bm, nil
	}
}

func batchTaskBitmap(tx *mdbxkv.Tx, batchUIDs []uint32) (*roaring.Bitmap, error) {
	out := roaring.New()
	set := map[uint32]bool{}
	for _, b := range batchUIDs {
		set[b] = true
	}
	err := tx.ForEach(mdbxkv.AllTasks, func(k, v []byte) error {
		t, err := decodeTask(v)
		if err != nil {
			return err
		}
		if t.BatchUID != nil && set[*t.BatchUID] {
			out.Add(t.UID)
		}
		return nil
	})
	return out, err
}

func timeRangeBitmap(tx *mdbxkv.Tx, table string, after, before *time.Time) (*roaring.Bitmap, error) {
	out := roaring.New()
	err := tx.ForEach(table, func(k, v []byte) error {
		ts := mdbxkv.ParseTimeKey(k)
		if after != nil && !ts.After(*after) {
			return nil
		}
		if before != nil && !ts.Before(*before) {
			return nil
		}
		bm, err := bitmapFromBytes(v)
		if err != nil {
			return err
		}
		out.Or(bm)
		return nil
	})
	return out, err
}

func authAllowedBitmap(tx *mdbxkv.Tx, auth *AuthFilter) *roaring.Bitmap {
	out := roaring.New()
	_ = tx.ForEach(mdbxkv.IndexTasks, func(k, v []byte) error {
		if auth.allows(string(k)) {
			bm, err := bitmapFromBytes(v)
			if err == nil {
				out.Or(bm)
			}
		}
		return nil
	})
	return out
}

// nonIndexScopedBitmap returns every task uid whose kind is not associated
// with exactly one index (swap, cancelation, deletion-of-tasks, dump,
// snapshot, upgrade, export) — these are hidden whenever an index restriction is
// active (§4.2).
func nonIndexScopedBitmap(tx *mdbxkv.Tx) *roaring.Bitmap {
	out := roaring.New()
	for k := IndexCreation; k <= Export; k++ {
		if k.IsSingleIndex() {
			continue
		}
		bm, err := tx.GetBitmap(mdbxkv.Kind, kindKey(k))
		if err == nil {
			out.Or(bm)
		}
	}
	return out
}

func sortAsc(s []uint32)  { sort.Slice(s, func(i, j int) bool { return s[i] < s[j] }) }
func sortDesc(s []uint32) { sort.Slice(s, func(i, j int) bool { return s[i] > s[j] }) }
