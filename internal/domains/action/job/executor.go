package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/action/model"
	"bloom-api/internal/infrastructure/metrics"
	"bloom-api/internal/shared"
)

// Step is one unit of work an action runs. A CodedError return becomes a
// Failed outcome; any other error fails the task.
type Step interface {
	Run(ctx context.Context, env config.Environment, user shared.UserInfo, params json.RawMessage) (interface{}, error)
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, env config.Environment, user shared.UserInfo, params json.RawMessage) (interface{}, error)

func (f StepFunc) Run(ctx context.Context, env config.Environment, user shared.UserInfo, params json.RawMessage) (interface{}, error) {
	return f(ctx, env, user, params)
}

// Executor handles action:run tasks by dispatching to registered steps.
type Executor struct {
	steps map[model.Name]Step
}

func NewExecutor() *Executor {
	return &Executor{steps: make(map[model.Name]Step)}
}

// Register binds a step to an action name. Registering a name twice panics.
func (e *Executor) Register(name model.Name, step Step) {
	if _, dup := e.steps[name]; dup {
		panic(fmt.Sprintf("action %q registered twice", name))
	}
	e.steps[name] = step
}

// ProcessTask - asynq handler
func (e *Executor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)

	out, err := e.Execute(ctx, t.Payload())
	if err != nil {
		log.Error().
			Err(err).
			Str("action_id", taskID).
			Msg("Action failed unexpectedly")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if _, err := t.ResultWriter().Write(out); err != nil {
		return fmt.Errorf("write action result: %w", err)
	}
	return nil
}

// Execute runs the payload's step and returns the encoded Outcome. Only
// unexpected failures return an error.
func (e *Executor) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	var p model.Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal action payload: %w", err)
	}

	step, ok := e.steps[p.Action]
	if !ok {
		metrics.ActionsTotal.WithLabelValues(string(p.Action), "error").Inc()
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownAction, p.Action)
	}

	start := time.Now()
	result, err := step.Run(ctx, p.Env, p.User, p.Params)
	metrics.ActionDuration.WithLabelValues(string(p.Action)).Observe(time.Since(start).Seconds())

	outcome, err := toOutcome(result, err)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(string(p.Action), "error").Inc()
		return nil, err
	}

	label := "succeeded"
	if outcome.Failed {
		label = "failed"
	}
	metrics.ActionsTotal.WithLabelValues(string(p.Action), label).Inc()

	log.Info().
		Str("action", string(p.Action)).
		Str("env", p.Env.String()).
		Str("outcome", label).
		Dur("elapsed", time.Since(start)).
		Msg("Action finished")

	return json.Marshal(outcome)
}

func toOutcome(result interface{}, err error) (model.Outcome, error) {
	if err != nil {
		var coded model.CodedError
		if errors.As(err, &coded) {
			return model.Outcome{
				Failed: true,
				Error:  &model.ErrorInfo{Code: coded.ErrorCode(), Message: coded.PublicMessage()},
			}, nil
		}
		return model.Outcome{}, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("marshal action result: %w", err)
	}
	return model.Outcome{Result: raw}, nil
}
