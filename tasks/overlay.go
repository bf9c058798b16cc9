package tasks

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// processingOverlay is the in-memory "processing_tasks" view described in
// §5 "Shared resources": a reader-writer lock guarding the set of uids
// currently Processing plus the batch's live started_at, so query-filter
// reads never have to wait on the writer and the writer only takes the
// write side at batch start/end.
type processingOverlay struct {
	mu        sync.RWMutex
	uids      *roaring.Bitmap
	startedAt time.Time
	batchUID  uint32
	active    bool
}

func newProcessingOverlay() *processingOverlay {
	return &processingOverlay{uids: roaring.New()}
}

// begin marks uids as Processing under batchUID, started now.
func (o *processingOverlay) begin(batchUID uint32, uids *roaring.Bitmap) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uids = uids.Clone()
	o.startedAt = time.Now().UTC()
	o.batchUID = batchUID
	o.active = true
}

// end clears the overlay once the batch's transaction has committed and
// every task's terminal record has been persisted.
func (o *processingOverlay) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uids = roaring.New()
	o.active = false
}

// contains reports whether uid is currently shown as Processing.
func (o *processingOverlay) contains(uid uint32) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active && o.uids.Contains(uid)
}

// snapshot returns a copy of the currently-processing uid set and the
// batch's live started_at, for the query filter to union/subtract and to
// evaluate started_at bounds against (§4.2 "the started_at bound for
// Processing tasks is evaluated against the batch's live started_at").
func (o *processingOverlay) snapshot() (uids *roaring.Bitmap, startedAt time.Time, active bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.uids.Clone(), o.startedAt, o.active
}

// apply overlays Processing status and started_at onto t if t is one of
// the uids currently being processed — the persisted record still says
// Enqueued/Processing-as-of-batch-start, but readers should see live
// status during a long-running batch.
func (o *processingOverlay) apply(t *Task) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.active && o.uids.Contains(t.UID) {
		t.Status = Processing
		started := o.startedAt
		t.StartedAt = &started
		batch := o.batchUID
		t.BatchUID = &batch
	}
}
