package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/medway/exam-backend/internal/config"
	"github.com/medway/exam-backend/internal/model"
	"github.com/medway/exam-backend/internal/taskqueue"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeSubmissionStore fails the first failures calls to CreateWithAnswers,
// then succeeds. A non-positive delay means instant completion.
type fakeSubmissionStore struct {
	mu       sync.Mutex
	failures int
	delay    time.Duration
	calls    int
	created  bool
}

func (f *fakeSubmissionStore) CreateWithAnswers(ctx context.Context, studentID, examID int, answers []model.AnswerSubmission) (*model.ExamSubmission, bool, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	if call <= f.failures {
		return nil, false, errors.New("connection reset")
	}
	return &model.ExamSubmission{ID: 42, StudentID: studentID, ExamID: examID}, f.created, nil
}

func (f *fakeSubmissionStore) ScoreInfo(ctx context.Context, submissionID int) (float64, int, error) {
	return 66.67, 3, nil
}

func (f *fakeSubmissionStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestQueue(t *testing.T) *taskqueue.Queue {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return taskqueue.New(rdb, time.Hour)
}

func testConfig() *config.Config {
	return &config.Config{
		SubmissionMaxRetries: 3,
		SubmissionRetryDelay: 10 * time.Millisecond,
		TaskSoftTimeLimit:    time.Second,
		TaskHardTimeLimit:    2 * time.Second,
	}
}

func enqueue(t *testing.T, q *taskqueue.Queue) string {
	t.Helper()
	taskID, err := q.Enqueue(context.Background(), taskqueue.SubmissionPayload{
		StudentID: 1,
		ExamID:    2,
		Answers:   []model.AnswerSubmission{{QuestionID: 10, SelectedOption: 3}},
	})
	require.NoError(t, err)
	return taskID
}

// drain runs the worker loop until the task reaches a terminal state or
// the deadline passes.
func drain(t *testing.T, w *SubmissionWorker, q *taskqueue.Queue, taskID string) *taskqueue.Record {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("task did not reach a terminal state")
		case <-time.After(10 * time.Millisecond):
		}

		rec, err := q.Get(context.Background(), taskID)
		require.NoError(t, err)
		if rec != nil && rec.State.Terminal() {
			return rec
		}
	}
}

func TestWorkerSuccess(t *testing.T) {
	q := newTestQueue(t)
	store := &fakeSubmissionStore{created: true}
	w := NewSubmissionWorker(store, q, testConfig(), testLogger())

	taskID := enqueue(t, q)
	rec := drain(t, w, q, taskID)

	require.Equal(t, taskqueue.StateSucceeded, rec.State)
	require.NotNil(t, rec.Result)
	require.True(t, rec.Result.Created)
	require.Equal(t, 42, rec.Result.Submission.ID)
	require.Equal(t, 66.67, rec.Result.Submission.Score)
	require.Equal(t, 3, rec.Result.Submission.TotalAnswers)
	require.Equal(t, 1, store.callCount())
}

func TestWorkerConvergesOnExistingSubmission(t *testing.T) {
	q := newTestQueue(t)

	// Redelivered task: the row already exists, the store converges.
	store := &fakeSubmissionStore{created: false}
	w := NewSubmissionWorker(store, q, testConfig(), testLogger())

	taskID := enqueue(t, q)
	rec := drain(t, w, q, taskID)

	require.Equal(t, taskqueue.StateSucceeded, rec.State)
	require.False(t, rec.Result.Created)
	require.Equal(t, 42, rec.Result.Submission.ID)
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	q := newTestQueue(t)
	store := &fakeSubmissionStore{failures: 2, created: true}
	w := NewSubmissionWorker(store, q, testConfig(), testLogger())

	taskID := enqueue(t, q)
	rec := drain(t, w, q, taskID)

	require.Equal(t, taskqueue.StateSucceeded, rec.State)
	require.Equal(t, 3, store.callCount())
}

func TestWorkerExhaustsRetries(t *testing.T) {
	q := newTestQueue(t)
	store := &fakeSubmissionStore{failures: 10}
	w := NewSubmissionWorker(store, q, testConfig(), testLogger())

	taskID := enqueue(t, q)
	rec := drain(t, w, q, taskID)

	require.Equal(t, taskqueue.StateFailed, rec.State)
	require.Contains(t, rec.Error, "connection reset")
	// Initial attempt plus maxRetries redeliveries.
	require.Equal(t, 4, store.callCount())
}

func TestWorkerHardTimeLimitIsTerminal(t *testing.T) {
	q := newTestQueue(t)
	store := &fakeSubmissionStore{delay: time.Minute}

	cfg := testConfig()
	cfg.TaskSoftTimeLimit = 20 * time.Second
	cfg.TaskHardTimeLimit = 50 * time.Millisecond
	w := NewSubmissionWorker(store, q, cfg, testLogger())

	taskID := enqueue(t, q)
	rec := drain(t, w, q, taskID)

	require.Equal(t, taskqueue.StateFailed, rec.State)
	require.Contains(t, rec.Error, "hard time limit")
	// No retry after a hard-limit cut.
	require.Equal(t, 1, store.callCount())

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	require.Zero(t, pending)
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	q := newTestQueue(t)
	w := NewSubmissionWorker(&fakeSubmissionStore{}, q, testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
