package taskqueue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/medway/exam-backend/internal/model"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, time.Hour)
}

func testPayload() SubmissionPayload {
	return SubmissionPayload{
		StudentID: 1,
		ExamID:    2,
		Answers: []model.AnswerSubmission{
			{QuestionID: 10, SelectedOption: 3},
		},
	}
}

func TestEnqueueDequeue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, testPayload())
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	// The record exists before the task is consumed.
	rec, err := q.Get(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, StateQueued, rec.State)

	task, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, taskID, task.ID)
	require.Equal(t, 0, task.Retries)
	require.Equal(t, 1, task.Payload.StudentID)
	require.Equal(t, 2, task.Payload.ExamID)
	require.Len(t, task.Payload.Answers, 1)
}

func TestDequeueEmpty(t *testing.T) {
	q := newTestQueue(t)

	task, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestRequeueIncrementsRetries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, testPayload())
	require.NoError(t, err)

	task, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, q.Requeue(ctx, task))

	redelivered, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, taskID, redelivered.ID)
	require.Equal(t, 1, redelivered.Retries)

	rec, err := q.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, StateQueued, rec.State)
}

func TestStateTransitions(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, testPayload())
	require.NoError(t, err)

	require.NoError(t, q.MarkRunning(ctx, taskID))
	rec, err := q.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, StateRunning, rec.State)

	result := &model.SubmissionResult{
		Created:    true,
		Submission: model.SubmissionInfo{ID: 7, StudentID: 1, ExamID: 2, Score: 100, TotalAnswers: 1},
	}
	require.NoError(t, q.MarkSucceeded(ctx, taskID, result))

	rec, err = q.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, StateSucceeded, rec.State)
	require.NotNil(t, rec.Result)
	require.Equal(t, 7, rec.Result.Submission.ID)
	require.True(t, rec.Result.Created)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, testPayload())
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(ctx, taskID, "boom"))

	// Later transitions are silently ignored.
	require.NoError(t, q.MarkRunning(ctx, taskID))
	require.NoError(t, q.MarkSucceeded(ctx, taskID, &model.SubmissionResult{}))

	rec, err := q.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, StateFailed, rec.State)
	require.Equal(t, "boom", rec.Error)
}

func TestGetUnknownTask(t *testing.T) {
	q := newTestQueue(t)

	rec, err := q.Get(context.Background(), "no-such-task")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	n, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = q.Enqueue(ctx, testPayload())
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, testPayload())
	require.NoError(t, err)

	n, err = q.Pending(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
