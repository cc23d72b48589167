package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/action/model"
	"bloom-api/internal/infrastructure/queue"
	"bloom-api/internal/shared"
)

// ServiceInterface starts actions and reports their state.
type ServiceInterface interface {
	Start(ctx context.Context, name model.Name, env config.Environment, user shared.UserInfo, params interface{}) (string, error)
	Status(ctx context.Context, id string) (*model.State, error)
}

// ActionService runs actions as asynq tasks on the uploads queue. Task
// retention keeps completed results readable for polling.
type ActionService struct {
	client    queue.Enqueuer
	inspector queue.Inspector
	timeout   time.Duration
	retention time.Duration
	newID     func() string
}

func NewActionService(client queue.Enqueuer, inspector queue.Inspector, cfg config.WorkerConfig) *ActionService {
	return &ActionService{
		client:    client,
		inspector: inspector,
		timeout:   cfg.ActionTimeout,
		retention: cfg.ResultRetention,
		newID:     uuid.NewString,
	}
}

// Start enqueues the action and returns its id without waiting for it.
func (s *ActionService) Start(ctx context.Context, name model.Name, env config.Environment, user shared.UserInfo, params interface{}) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal %s params: %w", name, err)
	}
	payload, err := json.Marshal(model.Payload{Action: name, Env: env, User: user, Params: raw})
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", name, err)
	}

	id := s.newID()
	task := asynq.NewTask(queue.TypeRunAction, payload)

	// Không retry: step không idempotent, client sẽ gọi lại upload-start
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.TaskID(id),
		asynq.Queue(queue.QueueUploads),
		asynq.MaxRetry(0),
		asynq.Timeout(s.timeout),
		asynq.Retention(s.retention),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}

	log.Info().
		Str("action_id", info.ID).
		Str("action", string(name)).
		Str("env", env.String()).
		Str("user_id", user.ObjectID).
		Msg("Action started")

	return info.ID, nil
}

// Status maps the asynq task state onto the public status vocabulary.
func (s *ActionService) Status(ctx context.Context, id string) (*model.State, error) {
	info, err := s.inspector.GetTaskInfo(queue.QueueUploads, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, model.ErrActionNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	return StateFromTask(info), nil
}

// StateFromTask converts one asynq task snapshot.
func StateFromTask(info *asynq.TaskInfo) *model.State {
	state := &model.State{ID: info.ID}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		state.Status = model.StatusNotStarted

	case asynq.TaskStateActive, asynq.TaskStateRetry:
		state.Status = model.StatusRunning

	case asynq.TaskStateCompleted:
		var outcome model.Outcome
		if err := json.Unmarshal(info.Result, &outcome); err != nil {
			log.Error().Err(err).Str("action_id", info.ID).Msg("Unreadable action result")
			state.Status = model.StatusFailed
			state.Error = model.InternalError()
			return state
		}
		if outcome.Failed {
			state.Status = model.StatusFailed
			state.Error = outcome.Error
			if state.Error == nil {
				state.Error = model.InternalError()
			}
			return state
		}
		state.Status = model.StatusSucceeded
		state.Result = outcome.Result

	case asynq.TaskStateArchived:
		// lỗi không mong đợi: chi tiết chỉ nằm trong log của worker
		state.Status = model.StatusFailed
		state.Error = model.InternalError()

	default:
		state.Status = model.StatusRunning
	}

	return state
}

var _ ServiceInterface = (*ActionService)(nil)
