package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestRegisterAssignsSequentialUIDs(t *testing.T) {
	q := openTestQueue(t)

	t1, err := q.Register(IndexCreation, "books", Details{"primaryKey": "id"}, "")
	require.NoError(t, err)
	t2, err := q.Register(DocumentAdditionOrUpdate, "books", nil, "file-1")
	require.NoError(t, err)

	require.Equal(t, uint32(0), t1.UID)
	require.Equal(t, uint32(1), t2.UID)
	require.Equal(t, Enqueued, t1.Status)
}

func TestRegisterInvariantsHold(t *testing.T) {
	q := openTestQueue(t)
	task, err := q.Register(IndexCreation, "books", nil, "")
	require.NoError(t, err)
	require.Nil(t, task.StartedAt)
	require.Nil(t, task.FinishedAt)
	require.Nil(t, task.BatchUID)
}

type recordingExecutor struct {
	calls [][]uint32
	err   error
}

func (r *recordingExecutor) Execute(_ context.Context, _ uint32, batch []*Task) error {
	r.calls = append(r.calls, taskUIDs(batch))
	return r.err
}

func TestRunOnceExecutesIndexCreationBatch(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Register(IndexCreation, "books", nil, "")
	require.NoError(t, err)

	exec := &recordingExecutor{}
	ran, err := q.RunOnce(context.Background(), exec)
	require.NoError(t, err)
	require.True(t, ran)
	require.Len(t, exec.calls, 1)

	task, ok, err := q.GetTask(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Succeeded, task.Status)
	require.NotNil(t, task.BatchUID)
}

func TestRunOnceMarksBatchFailedOnExecutorError(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Register(IndexCreation, "books", nil, "")
	require.NoError(t, err)

	exec := &recordingExecutor{err: errTest("boom")}
	ran, err := q.RunOnce(context.Background(), exec)
	require.NoError(t, err)
	require.True(t, ran)

	task, ok, err := q.GetTask(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Failed, task.Status)
	require.NotNil(t, task.Error)
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestCancelationCancelsOnlyEnqueuedTasks(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Register(IndexCreation, "books", nil, "")
	require.NoError(t, err)
	_, err = q.Register(IndexCreation, "movies", nil, "")
	require.NoError(t, err)

	_, err = q.CancelTasks(Query{UIDs: []uint32{0, 1}}, nil)
	require.NoError(t, err)

	ran, err := q.RunOnce(context.Background(), &recordingExecutor{})
	require.NoError(t, err)
	require.True(t, ran)

	t0, _, err := q.GetTask(0)
	require.NoError(t, err)
	require.Equal(t, Canceled, t0.Status)
	require.NotNil(t, t0.CanceledBy)

	t1, _, err := q.GetTask(1)
	require.NoError(t, err)
	require.Equal(t, Canceled, t1.Status)
}

func TestDeletionRemovesTerminalTasks(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Register(IndexCreation, "books", nil, "")
	require.NoError(t, err)

	ran, err := q.RunOnce(context.Background(), &recordingExecutor{})
	require.NoError(t, err)
	require.True(t, ran)

	_, err = q.DeleteTasks(Query{UIDs: []uint32{0}}, nil)
	require.NoError(t, err)
	ran, err = q.RunOnce(context.Background(), &recordingExecutor{})
	require.NoError(t, err)
	require.True(t, ran)

	_, ok, err := q.GetTask(0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListTasksFiltersByStatusAndIndex(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Register(IndexCreation, "books", nil, "")
	require.NoError(t, err)
	_, err = q.Register(IndexCreation, "movies", nil, "")
	require.NoError(t, err)

	found, total, err := q.ListTasks(Query{IndexUIDs: []string{"books"}}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "books", found[0].IndexUID)

	found, total, err = q.ListTasks(Query{Statuses: []Status{Enqueued}}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, found, 2)
}

func TestAuthFilterHidesDisallowedIndexes(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Register(IndexCreation, "books", nil, "")
	require.NoError(t, err)
	_, err = q.Register(IndexCreation, "secret", nil, "")
	require.NoError(t, err)

	auth := &AuthFilter{AllowedIndexes: []string{"books"}}
	_, total, err := q.ListTasks(Query{}, auth)
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestCrashRecoveryResetsProcessingToEnqueued(t *testing.T) {
	dir := t.TempDir()
	q := openTestQueue2(t, dir)
	_, err := q.Register(IndexCreation, "books", nil, "")
	require.NoError(t, err)
	require.NoError(t, q.beginBatch(q.nextBatchUID(), mustGetPendingTasks(t, q)))
	require.NoError(t, q.Close())

	q2, err := Open(dir)
	require.NoError(t, err)
	defer q2.Close()

	task, ok, err := q2.GetTask(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Enqueued, task.Status)
}

func openTestQueue2(t *testing.T, dir string) *Queue {
	t.Helper()
	q, err := Open(dir)
	require.NoError(t, err)
	return q
}

func mustGetPendingTasks(t *testing.T, q *Queue) []*Task {
	t.Helper()
	task, ok, err := q.GetTask(0)
	require.NoError(t, err)
	require.True(t, ok)
	return []*Task{task}
}
