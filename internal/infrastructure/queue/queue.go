// Package queue holds the asynq task types, queue names and client wiring
// shared by the API and the worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"bloom-api/internal/config"
)

// Task types
const (
	TypeRunAction    = "action:run"
	TypeDeletePrefix = "book:delete_prefix"
)

// Queues
const (
	QueueUploads = "uploads"
	QueueCleanup = "cleanup"
)

// Queues returns the worker's queue priorities.
func Queues() map[string]int {
	return map[string]int{
		QueueUploads: 10,
		QueueCleanup: 3,
	}
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Host,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Enqueuer is the part of *asynq.Client producers use.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Inspector is the part of *asynq.Inspector the status endpoint uses.
type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// DeletePrefixPayload removes a superseded revision's objects.
type DeletePrefixPayload struct {
	Env           config.Environment `json:"env"`
	Prefix        string             `json:"prefix"`
	ExcludePrefix string             `json:"excludePrefix,omitempty"`
}

// EnqueueDeletePrefix schedules prefix cleanup on the cleanup queue with
// its own retries.
func EnqueueDeletePrefix(ctx context.Context, client Enqueuer, p DeletePrefixPayload) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal delete prefix payload: %w", err)
	}
	task := asynq.NewTask(TypeDeletePrefix, payload)
	return client.EnqueueContext(ctx, task,
		asynq.Queue(QueueCleanup),
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Minute),
	)
}
