package tasks

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velasearch/vela/storage/mdbxkv"
)

// BatchQuery filters the batch listing (§6 "list_batches"). It reuses the
// task Query's uid-range/limit/reverse shape since batch uids are
// allocated from the same monotonic family as task uids (see
// Queue.nextBatchUID), but batches have no Status/Kind of their own to
// filter on — those live on the tasks that make up the batch.
type BatchQuery struct {
	Limit     uint32
	From      *uint32
	Reverse   bool
	UIDs      []uint32
	IndexUIDs []string
}

// ListBatches resolves query against the persisted batch log, honoring
// auth by hiding any batch none of whose tasks belong to an index the
// caller is allowed to see (§6 "list_batches", mirroring ListTasks's own
// auth-restriction policy).
func (q *Queue) ListBatches(query BatchQuery, auth *AuthFilter) ([]*Batch, int, error) {
	var batches []*Batch
	var matched *roaring.Bitmap

	err := q.env.View(func(tx *mdbxkv.Tx) error {
		universe := roaring.New()
		if err := tx.ForEach(mdbxkv.AllBatches, func(k, _ []byte) error {
			universe.Add(mdbxkv.ParseU32Key(k))
			return nil
		}); err != nil {
			return err
		}
		result := universe

		if len(query.UIDs) > 0 {
			result = roaring.And(result, bitmapOf(query.UIDs))
		}
		if query.From != nil {
			result = roaring.And(result, rangeBitmap(universe, *query.From, query.Reverse))
		}
		if len(query.IndexUIDs) > 0 || auth.restricted() {
			allowed := map[uint32]bool{}
			indexUIDs := query.IndexUIDs
			if err := tx.ForEach(mdbxkv.IndexTasks, func(k, v []byte) error {
				indexUID := string(k)
				if len(indexUIDs) > 0 && !containsString(indexUIDs, indexUID) {
					return nil
				}
				if !auth.allows(indexUID) {
					return nil
				}
				bm, err := bitmapFromBytes(v)
				if err != nil {
					return err
				}
				return tx.ForEach(mdbxkv.AllTasks, func(tk, tv []byte) error {
					t, err := decodeTask(tv)
					if err != nil {
						return err
					}
					if t.BatchUID != nil && bm.Contains(t.UID) {
						allowed[*t.BatchUID] = true
					}
					return nil
				})
			}); err != nil {
				return err
			}
			abm := roaring.New()
			for uid := range allowed {
				abm.Add(uid)
			}
			result = roaring.And(result, abm)
		}
		matched = result

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
			raw, ok, err := tx.Get(mdbxkv.AllBatches, mdbxkv.U32Key(uid))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			b, err := decodeBatch(raw)
			if err != nil {
				return err
			}
			batches = append(batches, b)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return batches, int(matched.GetCardinality()), nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
