// Package taskqueue implements the durable submission task queue on
// Redis: a list carries pending task envelopes, and a per-task state
// record makes progress queryable by pollers. Delivery is at-least-once;
// the worker's create-if-absent transaction makes redelivery harmless.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/medway/exam-backend/internal/config"
	"github.com/medway/exam-backend/internal/model"
)

// State is the lifecycle state of a task:
// QUEUED → RUNNING → (SUCCEEDED | FAILED).
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// SubmissionPayload is the fully validated submission handed to the
// worker. It is a plain payload, not a DB row — the worker performs
// the only write.
type SubmissionPayload struct {
	StudentID int                      `json:"student_id"`
	ExamID    int                      `json:"exam_id"`
	Answers   []model.AnswerSubmission `json:"answers"`
}

// Task is the envelope travelling through the Redis list. Retries
// counts delivery attempts already consumed by transient failures.
type Task struct {
	ID      string            `json:"task_id"`
	Retries int               `json:"retries"`
	Payload SubmissionPayload `json:"payload"`
}

// Record is the queryable state of a task. Result is set only on
// SUCCEEDED, Error only on FAILED.
type Record struct {
	State     State                   `json:"state"`
	Result    *model.SubmissionResult `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Queue is the Redis-backed submission task queue.
type Queue struct {
	rdb       *redis.Client
	listKey   string
	resultTTL time.Duration
}

// New creates a Queue. resultTTL bounds how long task state records
// (terminal ones included) remain queryable.
func New(rdb *redis.Client, resultTTL time.Duration) *Queue {
	return &Queue{
		rdb:       rdb,
		listKey:   config.WorkerKey.SubmissionTasksQueue,
		resultTTL: resultTTL,
	}
}

// Enqueue registers a new task for the payload and pushes it onto the
// queue. The state record is written before the push so a poller never
// observes a dequeued task without a record.
func (q *Queue) Enqueue(ctx context.Context, payload SubmissionPayload) (string, error) {
	task := Task{
		ID:      uuid.New().String(),
		Payload: payload,
	}

	if err := q.writeRecord(ctx, task.ID, &Record{State: StateQueued}); err != nil {
		return "", fmt.Errorf("write task record: %w", err)
	}

	raw, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	if err := q.rdb.RPush(ctx, q.listKey, raw).Err(); err != nil {
		return "", fmt.Errorf("push task: %w", err)
	}

	return task.ID, nil
}

// Requeue pushes a task back for another delivery after a transient
// failure, with its retry counter incremented.
func (q *Queue) Requeue(ctx context.Context, task *Task) error {
	task.Retries++

	if err := q.writeRecord(ctx, task.ID, &Record{State: StateQueued}); err != nil {
		return fmt.Errorf("write task record: %w", err)
	}

	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	if err := q.rdb.RPush(ctx, q.listKey, raw).Err(); err != nil {
		return fmt.Errorf("push task: %w", err)
	}

	return nil
}

// Dequeue blocks up to timeout for the next task. Returns (nil, nil)
// when the queue stayed empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	item, err := q.rdb.BLPop(ctx, timeout, q.listKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	if len(item) < 2 {
		return nil, nil
	}

	var task Task
	if err := json.Unmarshal([]byte(item[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// MarkRunning transitions a task to RUNNING.
func (q *Queue) MarkRunning(ctx context.Context, taskID string) error {
	return q.transition(ctx, taskID, &Record{State: StateRunning})
}

// MarkSucceeded transitions a task to its terminal SUCCEEDED state
// with the worker's result payload.
func (q *Queue) MarkSucceeded(ctx context.Context, taskID string, result *model.SubmissionResult) error {
	return q.transition(ctx, taskID, &Record{State: StateSucceeded, Result: result})
}

// MarkFailed transitions a task to its terminal FAILED state carrying
// the error description.
func (q *Queue) MarkFailed(ctx context.Context, taskID string, errMsg string) error {
	return q.transition(ctx, taskID, &Record{State: StateFailed, Error: errMsg})
}

// Get returns the task's state record, or (nil, nil) when the id is
// unknown (never seen, or record expired).
func (q *Queue) Get(ctx context.Context, taskID string) (*Record, error) {
	raw, err := q.rdb.Get(ctx, config.WorkerKey.SubmissionTaskKey(taskID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal task record: %w", err)
	}
	return &rec, nil
}

// Pending returns the number of tasks waiting in the queue.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.listKey).Result()
}

// transition writes a new record unless the task already reached a
// terminal state. Terminal states are immutable.
func (q *Queue) transition(ctx context.Context, taskID string, rec *Record) error {
	current, err := q.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if current != nil && current.State.Terminal() {
		return nil
	}
	return q.writeRecord(ctx, taskID, rec)
}

func (q *Queue) writeRecord(ctx context.Context, taskID string, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal task record: %w", err)
	}

	return q.rdb.Set(ctx, config.WorkerKey.SubmissionTaskKey(taskID), raw, q.resultTTL).Err()
}
