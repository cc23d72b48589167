// Package handlers holds asynq middleware shared by every worker task.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// Logging ghi log mỗi task: type, id, thời gian chạy, lỗi
func Logging(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		taskID, _ := asynq.GetTaskID(ctx)
		retry, _ := asynq.GetRetryCount(ctx)

		err := next.ProcessTask(ctx, t)

		event := log.Info()
		if err != nil {
			event = log.Error().Err(err)
		}
		event.
			Str("task_type", t.Type()).
			Str("task_id", taskID).
			Int("retry", retry).
			Dur("elapsed", time.Since(start)).
			Msg("Task processed")
		return err
	})
}

// Recover turns a panicking task into a failed one without retry.
func Recover(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("task_type", t.Type()).
					Interface("panic", r).
					Msg("Task panicked")
				err = fmt.Errorf("%w: panic: %v", asynq.SkipRetry, r)
			}
		}()
		return next.ProcessTask(ctx, t)
	})
}

// IsSkipRetry reports whether err stops asynq retrying.
func IsSkipRetry(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}
