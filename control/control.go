// Package control adapts the task queue, index registry, and search
// packages to the operations table in §6. It is explicitly out of core
// scope: the HTTP/RPC surface, authentication, and multi-tenancy tokens
// are external collaborators, so this package exposes plain Go methods
// a thin service layer calls directly rather than a framework-bound
// handler set.
package control

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/velasearch/vela/errkind"
	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/search"
	"github.com/velasearch/vela/storage/mdbxkv"
	"github.com/velasearch/vela/tasks"
)

// Service is the single entry point a collaborator's thin service layer
// calls into: it owns the task queue and the index registry, and every
// method here corresponds to one row of §6's operations table.
type Service struct {
	Queue    *tasks.Queue
	Registry *index.Registry
}

// New builds a Service over an already-open queue and registry. The
// caller owns their lifecycle (Close/CloseAll) independently of Service.
func New(queue *tasks.Queue, registry *index.Registry) *Service {
	return &Service{Queue: queue, Registry: registry}
}

// RegisterTask enqueues a new task of kind for indexUID (empty for
// cluster-scoped kinds such as IndexSwap, TaskCancelation, TaskDeletion)
// carrying details and an optional content file reference, returning the
// assigned task (§6 "register_task").
func (s *Service) RegisterTask(kind tasks.Kind, indexUID string, details tasks.Details, contentFile string) (*tasks.Task, error) {
	return s.Queue.Register(kind, indexUID, details, contentFile)
}

// CancelTasks enqueues a TaskCancelation targeting every Enqueued task
// query currently matches (§6 "cancel_tasks").
func (s *Service) CancelTasks(query tasks.Query, auth *tasks.AuthFilter) (*tasks.Task, error) {
	return s.Queue.CancelTasks(query, auth)
}

// DeleteTasks enqueues a TaskDeletion over every task query matches,
// regardless of status (§6 "delete_tasks"). When the deletion runs, a
// target that is still Enqueued or Processing fails the deletion batch
// and no target is deleted.
func (s *Service) DeleteTasks(query tasks.Query, auth *tasks.AuthFilter) (*tasks.Task, error) {
	return s.Queue.DeleteTasks(query, auth)
}

// ListTasks returns the tasks matching query, honoring auth, plus the
// total match count before limit (§6 "list_tasks").
func (s *Service) ListTasks(query tasks.Query, auth *tasks.AuthFilter) ([]*tasks.Task, int, error) {
	return s.Queue.ListTasks(query, auth)
}

// ListBatches returns the batches matching query, honoring auth (§6
// "list_batches").
func (s *Service) ListBatches(query tasks.BatchQuery, auth *tasks.AuthFilter) ([]*tasks.Batch, int, error) {
	return s.Queue.ListBatches(query, auth)
}

// Search runs req against indexUID's already-open index (§6 "search").
func (s *Service) Search(indexUID string, req search.Request) (*search.Response, error) {
	idx, ok := s.Registry.Get(indexUID)
	if !ok {
		return nil, errkind.New(errkind.IndexNotFound, "index %q not found", indexUID)
	}
	return search.Search(idx, req)
}

// IndexStats is the §6 "get_index_stats" response: document counts and
// on-disk byte sizes.
type IndexStats struct {
	NumberOfDocuments uint64            `json:"numberOfDocuments"`
	IsIndexing        bool              `json:"isIndexing"`
	DatabaseSize      int64             `json:"databaseSize"`
	HumanDatabaseSize string            `json:"humanDatabaseSize"`
	FieldDistribution map[string]uint64 `json:"fieldDistribution,omitempty"`
}

// GetIndexStats reports document counts and on-disk size for indexUID
// (§6 "get_index_stats").
func (s *Service) GetIndexStats(indexUID string) (IndexStats, error) {
	idx, ok := s.Registry.Get(indexUID)
	if !ok {
		return IndexStats{}, errkind.New(errkind.IndexNotFound, "index %q not found", indexUID)
	}

	var numDocs uint64
	err := idx.Env().View(func(tx *mdbxkv.Tx) error {
		n, err := idx.NumberOfDocuments(tx)
		if err != nil {
			return err
		}
		numDocs = n
		return nil
	})
	if err != nil {
		return IndexStats{}, err
	}

	size, err := dirSize(idx.Env().Path())
	if err != nil {
		return IndexStats{}, errkind.Wrap(errkind.IoError, err, "measuring index %q on-disk size", indexUID)
	}

	return IndexStats{
		NumberOfDocuments: numDocs,
		DatabaseSize:      size,
		HumanDatabaseSize: humanize.Bytes(uint64(size)),
	}, nil
}

// dirSize sums the apparent size of every regular file under root.
func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
