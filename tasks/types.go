// Package tasks implements the durable task queue and scheduler (§4.2,
// §5): registration, batch construction, the execution state machine,
// crash recovery, IndexSwap, cancellation, and the task/batch query
// filter.
package tasks

import (
	"encoding/json"
	"time"

	"github.com/velasearch/vela/errkind"
)

// Status is a task's lifecycle state.
type Status int

const (
	Enqueued Status = iota
	Processing
	Succeeded
	Failed
	Canceled
)

func (s Status) String() string {
	switch s {
	case Enqueued:
		return "enqueued"
	case Processing:
		return "processing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		panic("tasks: unhandled Status")
	}
}

// Kind is a task's tagged variant (§3.1).
type Kind int

const (
	IndexCreation Kind = iota
	IndexDeletion
	IndexSwap
	IndexUpdate
	DocumentAdditionOrUpdate
	DocumentEdition
	DocumentDeletion
	SettingsUpdate
	TaskCancelation
	TaskDeletion
	DumpCreation
	SnapshotCreation
	IndexCompaction
	UpgradeDatabase
	Export
)

func (k Kind) String() string {
	switch k {
	case IndexCreation:
		return "indexCreation"
	case IndexDeletion:
		return "indexDeletion"
	case IndexSwap:
		return "indexSwap"
	case IndexUpdate:
		return "indexUpdate"
	case DocumentAdditionOrUpdate:
		return "documentAdditionOrUpdate"
	case DocumentEdition:
		return "documentEdition"
	case DocumentDeletion:
		return "documentDeletion"
	case SettingsUpdate:
		return "settingsUpdate"
	case TaskCancelation:
		return "taskCancelation"
	case TaskDeletion:
		return "taskDeletion"
	case DumpCreation:
		return "dumpCreation"
	case SnapshotCreation:
		return "snapshotCreation"
	case IndexCompaction:
		return "indexCompaction"
	case UpgradeDatabase:
		return "upgradeDatabase"
	case Export:
		return "export"
	default:
		panic("tasks: unhandled Kind")
	}
}

// singleIndexKinds holds the kinds associated with exactly one index uid, per
// §4.2 query-filter semantics ("tasks not associated with exactly one
// index ... are hidden when any index restriction is active").
var singleIndexKinds = map[Kind]bool{
	IndexCreation:            true,
	IndexDeletion:            true,
	IndexUpdate:              true,
	DocumentAdditionOrUpdate: true,
	DocumentEdition:          true,
	DocumentDeletion:         true,
	SettingsUpdate:           true,
	IndexCompaction:          true,
}

// IsSingleIndex reports whether tasks of this kind carry exactly one
// index uid (as opposed to Swap/Cancelation/Deletion-of-tasks/Dump/
// Snapshot/Upgrade/Export, which are not index-scoped).
func (k Kind) IsSingleIndex() bool { return singleIndexKinds[k] }

// Details carries per-kind parameters (primary key, received/indexed
// document counts, swap pairs, ...). Kept as a loosely typed map, the way
// the queue's own persisted record is kind-polymorphic; callers that need
// a specific shape type-assert the fields they expect.
type Details map[string]any

// Task is one unit of work in the queue (§3.1).
type Task struct {
	UID         uint32
	IndexUID    string // empty when the kind is not single-index
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Status      Status
	Kind        Kind
	BatchUID    *uint32
	Details     Details
	Error       *errkind.Error
	CanceledBy  *uint32
	ContentFile string // content-addressed payload file uid, if any
}

// validate checks the invariants in §3.1: "status=Enqueued ⇒
// started_at=finished_at=None ∧ batch_uid=None" and the terminal-state
// converse.
func (t *Task) validate() error {
	switch t.Status {
	case Enqueued:
		if t.StartedAt != nil || t.FinishedAt != nil || t.BatchUID != nil {
			return errkind.New(errkind.CorruptedTaskQueue, "enqueued task %d carries processing/terminal fields", t.UID)
		}
	case Succeeded, Failed, Canceled:
		if t.StartedAt == nil || t.FinishedAt == nil || t.BatchUID == nil {
			return errkind.New(errkind.CorruptedTaskQueue, "terminal task %d missing processing fields", t.UID)
		}
	}
	return nil
}

type taskRecord struct {
	UID         uint32          `json:"uid"`
	IndexUID    string          `json:"indexUid"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	Status      Status          `json:"status"`
	Kind        Kind            `json:"kind"`
	BatchUID    *uint32         `json:"batchUid,omitempty"`
	Details     Details         `json:"details,omitempty"`
	Error       *errkind.Error  `json:"error,omitempty"`
	CanceledBy  *uint32         `json:"canceledBy,omitempty"`
	ContentFile string          `json:"contentFile,omitempty"`
}

func encodeTask(t *Task) ([]byte, error) {
	return json.Marshal(taskRecord{
		UID: t.UID, IndexUID: t.IndexUID, EnqueuedAt: t.EnqueuedAt,
		StartedAt: t.StartedAt, FinishedAt: t.FinishedAt, Status: t.Status,
		Kind: t.Kind, BatchUID: t.BatchUID, Details: t.Details, Error: t.Error,
		CanceledBy: t.CanceledBy, ContentFile: t.ContentFile,
	})
}

func decodeTask(raw []byte) (*Task, error) {
	var r taskRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errkind.Wrap(errkind.CorruptedTaskQueue, err, "decoding task record")
	}
	return &Task{
		UID: r.UID, IndexUID: r.IndexUID, EnqueuedAt: r.EnqueuedAt,
		StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, Status: r.Status,
		Kind: r.Kind, BatchUID: r.BatchUID, Details: r.Details, Error: r.Error,
		CanceledBy: r.CanceledBy, ContentFile: r.ContentFile,
	}, nil
}

// Progress is a batch's live step name and completion fraction.
type Progress struct {
	Step     string  `json:"step"`
	Fraction float64 `json:"fraction"`
}

// BatchStats aggregates the tasks a batch executed.
type BatchStats struct {
	TotalTasks   int           `json:"totalTasks"`
	StatusCounts map[string]int `json:"statusCounts"`
	KindCounts   map[string]int `json:"kindCounts"`
	IndexCounts  map[string]int `json:"indexCounts"`
}

// Batch is a group of tasks executed together under one write transaction
// (§3.1, §4.2).
type Batch struct {
	UID        uint32     `json:"uid"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Progress   Progress   `json:"progress"`
	Stats      BatchStats `json:"stats"`
}

func encodeBatch(b *Batch) ([]byte, error) { return json.Marshal(b) }

func decodeBatch(raw []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errkind.Wrap(errkind.CorruptedTaskQueue, err, "decoding batch record")
	}
	return &b, nil
}
