package config

import "fmt"

type WorkerKeyStruct struct {
	SubmissionTasksQueue string
}

var WorkerKey = &WorkerKeyStruct{
	SubmissionTasksQueue: "submission_tasks_queue",
}

// SubmissionTaskKey returns the Redis key holding a task's state record.
func (k *WorkerKeyStruct) SubmissionTaskKey(taskID string) string {
	return fmt.Sprintf("submission_task:%s", taskID)
}
