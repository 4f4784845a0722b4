package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medway/exam-backend/internal/config"
	"github.com/medway/exam-backend/internal/model"
	"github.com/medway/exam-backend/internal/taskqueue"
)

const taskPollTimeout = 1 * time.Second

// errHardLimit marks attempts cut off by the hard time limit. Unlike
// transient store failures it is terminal: the attempt's goroutine may
// still be holding a transaction, so redelivery is not safe until the
// result record expires anyway.
var errHardLimit = errors.New("task exceeded hard time limit")

// SubmissionStore is the persistence surface the worker needs: the
// atomic create-or-converge write and the derived score for the result
// payload.
type SubmissionStore interface {
	CreateWithAnswers(ctx context.Context, studentID, examID int, answers []model.AnswerSubmission) (*model.ExamSubmission, bool, error)
	ScoreInfo(ctx context.Context, submissionID int) (float64, int, error)
}

// SubmissionWorker consumes submission tasks and creates submission
// rows with their answers. Duplicate submissions — redelivered tasks
// or races between concurrent workers — converge on the existing row
// via the store's uniqueness constraint; only transient store failures
// are retried.
type SubmissionWorker struct {
	store      SubmissionStore
	queue      *taskqueue.Queue
	log        zerolog.Logger
	maxRetries int
	retryDelay time.Duration
	softLimit  time.Duration
	hardLimit  time.Duration
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(store SubmissionStore, queue *taskqueue.Queue, cfg *config.Config, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		store:      store,
		queue:      queue,
		log:        log.With().Str("component", "submission_worker").Logger(),
		maxRetries: cfg.SubmissionMaxRetries,
		retryDelay: cfg.SubmissionRetryDelay,
		softLimit:  cfg.TaskSoftTimeLimit,
		hardLimit:  cfg.TaskHardTimeLimit,
	}
}

// Start begins the worker loop. Call in a goroutine. Tasks left in the
// queue at shutdown stay there — the list is durable and the next
// start resumes consumption.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("SubmissionWorker stopped")
			return
		default:
			task, err := w.queue.Dequeue(ctx, taskPollTimeout)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error().Err(err).Msg("Dequeue error")
				}
				continue
			}
			if task == nil {
				continue
			}
			w.process(ctx, task)
		}
	}
}

// process runs one delivery of a task: mark running, attempt the
// write, then either record the terminal result or requeue for a
// bounded retry.
func (w *SubmissionWorker) process(ctx context.Context, task *taskqueue.Task) {
	log := w.log.With().
		Str("task_id", task.ID).
		Int("student_id", task.Payload.StudentID).
		Int("exam_id", task.Payload.ExamID).
		Logger()

	if err := w.queue.MarkRunning(ctx, task.ID); err != nil {
		log.Error().Err(err).Msg("MarkRunning failed")
	}

	result, err := w.runAttempt(ctx, task)
	if err == nil {
		if err := w.queue.MarkSucceeded(ctx, task.ID, result); err != nil {
			log.Error().Err(err).Msg("MarkSucceeded failed")
		}
		log.Info().
			Bool("created", result.Created).
			Int("submission_id", result.Submission.ID).
			Float64("score", result.Submission.Score).
			Msg("Submission task finished")
		return
	}

	if errors.Is(err, errHardLimit) || task.Retries >= w.maxRetries {
		if markErr := w.queue.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("MarkFailed failed")
		}
		log.Error().Err(err).Int("retries", task.Retries).Msg("Submission task failed")
		return
	}

	log.Warn().Err(err).Int("retries", task.Retries).Msg("Attempt failed, requeueing")

	// Fixed backoff before redelivery. On shutdown the task is pushed
	// back immediately so it is not lost.
	select {
	case <-ctx.Done():
		ctx = context.Background()
	case <-time.After(w.retryDelay):
	}
	if err := w.queue.Requeue(ctx, task); err != nil {
		log.Error().Err(err).Msg("Requeue failed — marking task failed")
		_ = w.queue.MarkFailed(context.Background(), task.ID, err.Error())
	}
}

// runAttempt executes one creation attempt under the soft time limit,
// enforcing the hard limit from outside the attempt's goroutine.
func (w *SubmissionWorker) runAttempt(ctx context.Context, task *taskqueue.Task) (*model.SubmissionResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, w.softLimit)
	defer cancel()

	type outcome struct {
		result *model.SubmissionResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := w.execute(attemptCtx, task.Payload)
		done <- outcome{result, err}
	}()

	hardTimer := time.NewTimer(w.hardLimit)
	defer hardTimer.Stop()

	select {
	case o := <-done:
		return o.result, o.err
	case <-hardTimer.C:
		cancel()
		return nil, fmt.Errorf("%w (%s)", errHardLimit, w.hardLimit)
	}
}

// execute performs the atomic create-or-converge write and builds the
// result payload.
func (w *SubmissionWorker) execute(ctx context.Context, payload taskqueue.SubmissionPayload) (*model.SubmissionResult, error) {
	sub, created, err := w.store.CreateWithAnswers(ctx, payload.StudentID, payload.ExamID, payload.Answers)
	if err != nil {
		return nil, err
	}

	score, totalAnswers, err := w.store.ScoreInfo(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("score submission %d: %w", sub.ID, err)
	}

	return &model.SubmissionResult{
		Created: created,
		Submission: model.SubmissionInfo{
			ID:           sub.ID,
			StudentID:    sub.StudentID,
			ExamID:       sub.ExamID,
			Score:        score,
			TotalAnswers: totalAnswers,
		},
	}, nil
}
