package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupQueue 基于miniredis创建队列
func setupQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	q, err := NewRedisQueue(&Config{
		RedisAddr:  mr.Addr(),
		RetryLimit: 2,
		RetryDelay: time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func samplePayload(docID string) ProcessDocumentPayload {
	return ProcessDocumentPayload{
		DocumentID: docID,
		FilePath:   "2024/05/01/" + docID + ".pdf",
		FileName:   "report.pdf",
	}
}

func TestNewRedisQueue(t *testing.T) {
	q, _ := setupQueue(t)
	assert.Equal(t, "default", q.cfg.Queue)
	assert.Equal(t, 2, q.cfg.RetryLimit)

	_, err := NewRedisQueue(&Config{RedisAddr: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}

func TestRedisQueue_Enqueue(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, TaskProcessDocument, "doc-1", samplePayload("doc-1"))
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	task, err := q.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskProcessDocument, task.Type)
	assert.Equal(t, "doc-1", task.DocumentID)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 2, task.MaxRetries)

	var payload ProcessDocumentPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &payload))
	assert.Equal(t, samplePayload("doc-1"), payload)

	_, err = q.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRedisQueue_EnqueueIn(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	taskID, err := q.EnqueueIn(ctx, TaskProcessDocument, "doc-1", samplePayload("doc-1"), time.Minute)
	require.NoError(t, err)

	task, err := q.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
}

func TestRedisQueue_GetTasksByDocument(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, TaskProcessDocument, "doc-1", samplePayload("doc-1"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := q.Enqueue(ctx, TaskProcessDocument, "doc-1", samplePayload("doc-1"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, TaskProcessDocument, "doc-2", samplePayload("doc-2"))
	require.NoError(t, err)

	tasks, err := q.GetTasksByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, first, tasks[0].ID)
	assert.Equal(t, second, tasks[1].ID)

	tasks, err = q.GetTasksByDocument(ctx, "doc-unknown")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, TaskProcessDocument, "doc-1", samplePayload("doc-1"))
	require.NoError(t, err)

	require.NoError(t, q.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""))
	task, err := q.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.Equal(t, 1, task.Attempts)
	require.NotNil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)

	require.NoError(t, q.UpdateTaskStatus(ctx, taskID, StatusRetrying, nil, "embedding timeout"))
	task, err = q.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "embedding timeout", task.Error)
	assert.False(t, task.Status.Finished())

	result := &ProcessDocumentResult{PageCount: 3, ChunkCount: 9}
	require.NoError(t, q.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""))
	task, err = q.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Empty(t, task.Error, "completion clears the previous error")
	assert.NotNil(t, task.CompletedAt)
	assert.JSONEq(t, `{"page_count":3,"chunk_count":9}`, string(task.Result))

	assert.ErrorIs(t, q.UpdateTaskStatus(ctx, "missing", StatusFailed, nil, "x"), ErrTaskNotFound)
}

func TestRedisQueue_DeleteTask(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, TaskProcessDocument, "doc-1", samplePayload("doc-1"))
	require.NoError(t, err)

	require.NoError(t, q.DeleteTask(ctx, taskID))
	_, err = q.GetTask(ctx, taskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	tasks, err := q.GetTasksByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.ErrorIs(t, q.DeleteTask(ctx, taskID), ErrTaskNotFound)
}

func TestRedisQueue_WaitForTask(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, TaskProcessDocument, "doc-1", samplePayload("doc-1"))
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = q.UpdateTaskStatus(context.Background(), taskID, StatusFailed, nil, "boom")
	}()

	task, err := q.WaitForTask(ctx, taskID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "boom", task.Error)

	pending, err := q.Enqueue(ctx, TaskProcessDocument, "doc-2", samplePayload("doc-2"))
	require.NoError(t, err)
	_, err = q.WaitForTask(ctx, pending, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrTaskTimeout)
}

func TestRedisWorker_Wrap(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()
	w := NewRedisWorker(q)

	t.Run("success stores result", func(t *testing.T) {
		taskID, err := q.Enqueue(ctx, TaskProcessDocument, "doc-1", samplePayload("doc-1"))
		require.NoError(t, err)

		handler := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			assert.Equal(t, StatusProcessing, mustTask(t, q, task.ID).Status)
			return &ProcessDocumentResult{PageCount: 1, ChunkCount: 2}, nil
		})
		require.NoError(t, w.wrap(handler)(ctx, asynq.NewTask(string(TaskProcessDocument), []byte(taskID))))

		task := mustTask(t, q, taskID)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.Equal(t, 1, task.Attempts)
		assert.JSONEq(t, `{"page_count":1,"chunk_count":2}`, string(task.Result))
	})

	t.Run("failure without retry info is final", func(t *testing.T) {
		taskID, err := q.Enqueue(ctx, TaskProcessDocument, "doc-1", samplePayload("doc-1"))
		require.NoError(t, err)

		handler := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			return nil, errors.New("extract failed")
		})
		err = w.wrap(handler)(ctx, asynq.NewTask(string(TaskProcessDocument), []byte(taskID)))
		assert.EqualError(t, err, "extract failed")

		task := mustTask(t, q, taskID)
		assert.Equal(t, StatusFailed, task.Status)
		assert.Equal(t, "extract failed", task.Error)
	})

	t.Run("missing task record skips retry", func(t *testing.T) {
		handler := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			t.Fatal("handler must not run")
			return nil, nil
		})
		err := w.wrap(handler)(ctx, asynq.NewTask(string(TaskProcessDocument), []byte("gone")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestRedisWorker_StartWithoutHandlers(t *testing.T) {
	q, _ := setupQueue(t)
	assert.ErrorIs(t, NewRedisWorker(q).Start(), ErrNoHandler)
}

func TestNewQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	q, err := NewQueue("redis", &Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, q.Close())

	_, err = NewQueue("kafka", nil)
	assert.Error(t, err)
}

func mustTask(t *testing.T, q *RedisQueue, id string) *Task {
	t.Helper()
	task, err := q.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}
