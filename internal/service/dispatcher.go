package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/jobctl/internal/model"
)

const (
	TaskTypePromote = "job:promote"
	QueuePromote    = "promote"
)

// PromotePayload is the body of a promotion task
type PromotePayload struct {
	JobID string `json:"jobId"`
}

// AsynqDispatcher schedules delayed-job promotion through asynq
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(asynqClient *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: asynqClient}
}

// SchedulePromotion enqueues a promotion task that becomes ready once the
// job's delay has elapsed. Scheduling the same job twice is a no-op.
func (d *AsynqDispatcher) SchedulePromotion(ctx context.Context, job *model.Job) error {
	task, err := NewPromoteTask(job.ID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(QueuePromote),
		asynq.ProcessIn(job.DelayDuration()),
		asynq.TaskID(PromoteTaskID(job.ID)),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// PromoteTaskID is the unique asynq task id for a job's promotion
func PromoteTaskID(jobID string) string {
	return "promote:" + jobID
}

func NewPromoteTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(PromotePayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePromote, data), nil
}
