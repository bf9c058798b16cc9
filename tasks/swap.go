package tasks

import (
	"github.com/velasearch/vela/storage/mdbxkv"
)

// SwapPair is one (a, b) index-uid pair of an IndexSwap task.
type SwapPair struct {
	A, B string
}

// RemapTaskHistory applies the index-tasks side of an IndexSwap (§4.2
// "IndexSwap semantics"): with rename=false the two uids in each pair
// exchange their task-history bitmaps; with rename=true, b's history is
// moved onto a (b is expected not to exist afterward). Multiple pairs are
// applied as a simultaneous permutation, so every pair's "before" bitmaps
// are read before any are written.
//
// The accompanying storage swap (renaming/exchanging the actual per-index
// MDBX environments) is the index module's responsibility; this method
// only updates the queue environment's bookkeeping of which tasks are
// associated with which uid.
func (q *Queue) RemapTaskHistory(pairs []SwapPair, rename bool) error {
	return q.env.Update(func(tx *mdbxkv.RwTx) error {
		before := make(map[string][]byte, len(pairs)*2)
		for _, p := range pairs {
			for _, uid := range []string{p.A, p.B} {
				if _, seen := before[uid]; seen {
					continue
				}
				raw, ok, err := tx.Get(mdbxkv.IndexTasks, []byte(uid))
				if err != nil {
					return err
				}
				if ok {
					before[uid] = raw
				}
			}
		}

		for _, p := range pairs {
			aRaw, aHad := before[p.A]
			bRaw, bHad := before[p.B]

			if rename {
				if bHad {
					if err := tx.Put(mdbxkv.IndexTasks, []byte(p.A), bRaw); err != nil {
						return err
					}
				} else {
					if err := tx.Delete(mdbxkv.IndexTasks, []byte(p.A)); err != nil {
						return err
					}
				}
				if err := tx.Delete(mdbxkv.IndexTasks, []byte(p.B)); err != nil {
					return err
				}
				continue
			}

			if bHad {
				if err := tx.Put(mdbxkv.IndexTasks, []byte(p.A), bRaw); err != nil {
					return err
				}
			} else if err := tx.Delete(mdbxkv.IndexTasks, []byte(p.A)); err != nil {
				return err
			}
			if aHad {
				if err := tx.Put(mdbxkv.IndexTasks, []byte(p.B), aRaw); err != nil {
					return err
				}
			} else if err := tx.Delete(mdbxkv.IndexTasks, []byte(p.B)); err != nil {
				return err
			}
		}
		return nil
	})
}
