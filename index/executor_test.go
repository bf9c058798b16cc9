package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/velasearch/vela/storage/mdbxkv"
	"github.com/velasearch/vela/tasks"
)

func newTestRegistry(t *testing.T) (*Registry, *tasks.Queue) {
	t.Helper()
	q, err := tasks.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	reg, err := NewRegistry(t.TempDir(), q, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.CloseAll() })
	return reg, q
}

func TestRegistryExecuteIndexCreationAndDeletion(t *testing.T) {
	reg, _ := newTestRegistry(t)

	create := &tasks.Task{IndexUID: "movies", Kind: tasks.IndexCreation, Details: tasks.Details{}}
	require.NoError(t, reg.Execute(context.Background(), 1, []*tasks.Task{create}))

	_, ok := reg.Get("movies")
	require.True(t, ok)

	del := &tasks.Task{IndexUID: "movies", Kind: tasks.IndexDeletion, Details: tasks.Details{}}
	require.NoError(t, reg.Execute(context.Background(), 2, []*tasks.Task{del}))
	_, ok = reg.Get("movies")
	require.False(t, ok)
}

func TestRegistryExecuteAddAndDeleteDocuments(t *testing.T) {
	reg, _ := newTestRegistry(t)

	create := &tasks.Task{IndexUID: "movies", Kind: tasks.IndexCreation, Details: tasks.Details{}}
	require.NoError(t, reg.Execute(context.Background(), 1, []*tasks.Task{create}))

	add := &tasks.Task{
		IndexUID: "movies",
		Kind:     tasks.DocumentAdditionOrUpdate,
		Details: tasks.Details{
			"primaryKey": "id",
			"documents": []map[string]any{
				{"id": "1", "title": "the matrix"},
				{"id": "2", "title": "inception"},
			},
		},
	}
	require.NoError(t, reg.Execute(context.Background(), 2, []*tasks.Task{add}))
	require.Equal(t, 2, add.Details["indexedDocuments"])

	idx, ok := reg.Get("movies")
	require.True(t, ok)
	require.Equal(t, "id", idx.PrimaryKey())

	del := &tasks.Task{
		IndexUID: "movies",
		Kind:     tasks.DocumentDeletion,
		Details:  tasks.Details{"documentIds": []string{"1"}},
	}
	require.NoError(t, reg.Execute(context.Background(), 3, []*tasks.Task{del}))
	_ = idx
}

func TestRegistryExecuteSettingsUpdate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	create := &tasks.Task{IndexUID: "movies", Kind: tasks.IndexCreation, Details: tasks.Details{}}
	require.NoError(t, reg.Execute(context.Background(), 1, []*tasks.Task{create}))

	filterable := []string{"genre"}
	update := &tasks.Task{
		IndexUID: "movies",
		Kind:     tasks.SettingsUpdate,
		Details: tasks.Details{
			"settings": map[string]any{"filterableAttributes": filterable},
		},
	}
	require.NoError(t, reg.Execute(context.Background(), 2, []*tasks.Task{update}))

	idx, ok := reg.Get("movies")
	require.True(t, ok)
	_, ok = idx.Settings().FilterableAttributes["genre"]
	require.True(t, ok)
}

func TestRegistryExecuteSnapshotAndDumpCreationWriteManifests(t *testing.T) {
	dataDir := t.TempDir()
	q, err := tasks.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	reg, err := NewRegistry(dataDir, q, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.CloseAll() })

	create := &tasks.Task{IndexUID: "movies", Kind: tasks.IndexCreation, Details: tasks.Details{}}
	require.NoError(t, reg.Execute(context.Background(), 1, []*tasks.Task{create}))

	snap := &tasks.Task{UID: 7, Kind: tasks.SnapshotCreation, Details: tasks.Details{}}
	require.NoError(t, reg.Execute(context.Background(), 2, []*tasks.Task{snap}))

	raw, err := os.ReadFile(filepath.Join(dataDir, "snapshots", "7", "metadata.yaml"))
	require.NoError(t, err)
	var manifest snapshotManifest
	require.NoError(t, yaml.Unmarshal(raw, &manifest))
	require.Equal(t, uint32(7), manifest.TaskUID)
	require.Equal(t, []string{"movies"}, manifest.Indexes)

	dump := &tasks.Task{UID: 8, Kind: tasks.DumpCreation, Details: tasks.Details{}}
	require.NoError(t, reg.Execute(context.Background(), 3, []*tasks.Task{dump}))
	_, err = os.Stat(filepath.Join(dataDir, "dumps", "8", "metadata.yaml"))
	require.NoError(t, err)
}

// TestRegistryExecuteBatchCommitsAtomically pins down the §4.2 guarantee
// a crash-recovery bug depended on: every task of one batch runs inside a
// single write transaction on the affected index, so a later task's
// failure rolls back an earlier task's already-applied mutation in the
// same Execute call rather than leaving it committed.
func TestRegistryExecuteBatchCommitsAtomically(t *testing.T) {
	reg, _ := newTestRegistry(t)

	create := &tasks.Task{IndexUID: "movies", Kind: tasks.IndexCreation, Details: tasks.Details{"primaryKey": "id"}}
	require.NoError(t, reg.Execute(context.Background(), 1, []*tasks.Task{create}))

	good := &tasks.Task{
		IndexUID: "movies",
		Kind:     tasks.DocumentAdditionOrUpdate,
		Details: tasks.Details{
			"documents": []map[string]any{{"id": "1", "title": "the matrix"}},
		},
	}
	bad := &tasks.Task{
		IndexUID: "movies",
		Kind:     tasks.DocumentAdditionOrUpdate,
		Details: tasks.Details{
			"documents": []map[string]any{{"id": "not a valid id", "title": "inception"}},
		},
	}

	err := reg.Execute(context.Background(), 2, []*tasks.Task{good, bad})
	require.Error(t, err)

	idx, ok := reg.Get("movies")
	require.True(t, ok)
	require.NoError(t, idx.env.View(func(tx *mdbxkv.Tx) error {
		n, err := idx.NumberOfDocuments(tx)
		require.NoError(t, err)
		require.Equal(t, uint64(0), n, "good task's document must not survive the failed batch")
		return nil
	}))
}

func TestRegistryExecuteUnknownIndexErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)
	add := &tasks.Task{IndexUID: "missing", Kind: tasks.DocumentDeletion, Details: tasks.Details{"documentIds": []string{"1"}}}
	err := reg.Execute(context.Background(), 1, []*tasks.Task{add})
	require.Error(t, err)
}
