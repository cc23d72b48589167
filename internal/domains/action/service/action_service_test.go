package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/action/model"
	"bloom-api/internal/infrastructure/queue"
	"bloom-api/internal/shared"
)

type fakeEnqueuer struct {
	task *asynq.Task
	opts []asynq.Option
	err  error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.task = task
	f.opts = opts
	info := &asynq.TaskInfo{Type: task.Type(), Payload: task.Payload()}
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			info.ID = o.Value().(string)
		}
		if o.Type() == asynq.QueueOpt {
			info.Queue = o.Value().(string)
		}
	}
	return info, nil
}

type fakeInspector struct {
	tasks map[string]*asynq.TaskInfo
	err   error
	queue string
}

func (f *fakeInspector) GetTaskInfo(queueName, id string) (*asynq.TaskInfo, error) {
	f.queue = queueName
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.tasks[id]
	if !ok {
		return nil, asynq.ErrTaskNotFound
	}
	return info, nil
}

func newTestService(enq *fakeEnqueuer, insp *fakeInspector) *ActionService {
	s := NewActionService(enq, insp, config.WorkerConfig{
		ActionTimeout:   30 * time.Minute,
		ResultRetention: 24 * time.Hour,
	})
	s.newID = func() string { return "op-1" }
	return s
}

func TestActionService_Start(t *testing.T) {
	enq := &fakeEnqueuer{}
	s := newTestService(enq, &fakeInspector{})
	user := shared.UserInfo{ObjectID: "u1", SessionToken: "r:u1"}

	id, err := s.Start(t.Context(), model.UploadStart, config.EnvDevelopment, user, map[string]string{"bookId": "new"})
	require.NoError(t, err)
	assert.Equal(t, "op-1", id)

	require.NotNil(t, enq.task)
	assert.Equal(t, queue.TypeRunAction, enq.task.Type())

	var payload model.Payload
	require.NoError(t, json.Unmarshal(enq.task.Payload(), &payload))
	assert.Equal(t, model.UploadStart, payload.Action)
	assert.Equal(t, config.EnvDevelopment, payload.Env)
	assert.Equal(t, user, payload.User)
	assert.JSONEq(t, `{"bookId":"new"}`, string(payload.Params))

	opts := map[asynq.OptionType]interface{}{}
	for _, o := range enq.opts {
		opts[o.Type()] = o.Value()
	}
	assert.Equal(t, queue.QueueUploads, opts[asynq.QueueOpt])
	assert.Equal(t, 0, opts[asynq.MaxRetryOpt])
	assert.Equal(t, 30*time.Minute, opts[asynq.TimeoutOpt])
	assert.Equal(t, 24*time.Hour, opts[asynq.RetentionOpt])
}

func TestActionService_Start_EnqueueError(t *testing.T) {
	s := newTestService(&fakeEnqueuer{err: errors.New("redis down")}, &fakeInspector{})

	_, err := s.Start(t.Context(), model.UploadFinish, config.EnvDevelopment, shared.UserInfo{}, struct{}{})
	assert.Error(t, err)
}

func TestActionService_Status(t *testing.T) {
	succeeded, _ := json.Marshal(model.Outcome{Result: json.RawMessage(`{"transactionId":"abc1234567"}`)})
	failed, _ := json.Marshal(model.Outcome{Failed: true, Error: &model.ErrorInfo{Code: "ClientOutOfDate", Message: "upgrade"}})

	tests := []struct {
		name       string
		info       *asynq.TaskInfo
		wantStatus model.Status
		wantResult string
		wantError  *model.ErrorInfo
	}{
		{"pending", &asynq.TaskInfo{State: asynq.TaskStatePending}, model.StatusNotStarted, "", nil},
		{"scheduled", &asynq.TaskInfo{State: asynq.TaskStateScheduled}, model.StatusNotStarted, "", nil},
		{"active", &asynq.TaskInfo{State: asynq.TaskStateActive}, model.StatusRunning, "", nil},
		{"retry", &asynq.TaskInfo{State: asynq.TaskStateRetry}, model.StatusRunning, "", nil},
		{"succeeded", &asynq.TaskInfo{State: asynq.TaskStateCompleted, Result: succeeded}, model.StatusSucceeded, `{"transactionId":"abc1234567"}`, nil},
		{"typed failure", &asynq.TaskInfo{State: asynq.TaskStateCompleted, Result: failed}, model.StatusFailed, "", &model.ErrorInfo{Code: "ClientOutOfDate", Message: "upgrade"}},
		{"garbled result", &asynq.TaskInfo{State: asynq.TaskStateCompleted, Result: []byte("nope")}, model.StatusFailed, "", model.InternalError()},
		{"archived", &asynq.TaskInfo{State: asynq.TaskStateArchived, LastErr: "boom"}, model.StatusFailed, "", model.InternalError()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.info.ID = "op-1"
			insp := &fakeInspector{tasks: map[string]*asynq.TaskInfo{"op-1": tt.info}}
			s := newTestService(&fakeEnqueuer{}, insp)

			state, err := s.Status(t.Context(), "op-1")
			require.NoError(t, err)
			assert.Equal(t, queue.QueueUploads, insp.queue)
			assert.Equal(t, "op-1", state.ID)
			assert.Equal(t, tt.wantStatus, state.Status)
			if tt.wantResult != "" {
				assert.JSONEq(t, tt.wantResult, string(state.Result))
			} else {
				assert.Empty(t, state.Result)
			}
			assert.Equal(t, tt.wantError, state.Error)
		})
	}
}

func TestActionService_Status_NotFound(t *testing.T) {
	s := newTestService(&fakeEnqueuer{}, &fakeInspector{tasks: map[string]*asynq.TaskInfo{}})
	_, err := s.Status(t.Context(), "missing")
	assert.ErrorIs(t, err, model.ErrActionNotFound)

	s = newTestService(&fakeEnqueuer{}, &fakeInspector{err: asynq.ErrQueueNotFound})
	_, err = s.Status(t.Context(), "missing")
	assert.ErrorIs(t, err, model.ErrActionNotFound)

	s = newTestService(&fakeEnqueuer{}, &fakeInspector{err: errors.New("redis down")})
	_, err = s.Status(t.Context(), "x")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrActionNotFound)
}
