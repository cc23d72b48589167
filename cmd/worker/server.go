package main

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/infrastructure/queue"
	"bloom-api/internal/infrastructure/queue/handlers"
	"bloom-api/pkg/container"
)

// asynqServer wraps asynq.Server with additional functionality
type asynqServer struct {
	*asynq.Server
}

// setupAsynqServer creates and configures the Asynq server
func setupAsynqServer(c *container.Container, registry *HandlerRegistry) *asynqServer {
	mux := asynq.NewServeMux()
	registry.RegisterHandlers(mux)

	srv := asynq.NewServer(
		queue.RedisOpt(c.Config.Redis),
		asynq.Config{
			Queues:      queue.Queues(),
			Concurrency: c.Config.Worker.Concurrency,
			// actions tồn tại lâu hơn timeout của chúng khi worker tắt
			ShutdownTimeout: c.Config.Worker.ActionTimeout,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				event := log.Warn()
				if handlers.IsSkipRetry(err) || retried >= maxRetry {
					event = log.Error()
				}
				event.
					Err(err).
					Str("task_type", task.Type()).
					Int("retried", retried).
					Int("max_retry", maxRetry).
					Msg("[Asynq] Task failed")
			}),
		},
	)

	go func() {
		log.Info().
			Int("concurrency", c.Config.Worker.Concurrency).
			Msg("[Worker] Starting...")
		if err := srv.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("[Worker] Failed")
		}
	}()

	return &asynqServer{Server: srv}
}

// Shutdown waits for in-flight tasks up to ShutdownTimeout.
func (s *asynqServer) Shutdown() {
	log.Info().Msg("[Worker] Shutting down...")
	s.Server.Shutdown()
	log.Info().Msg("[Worker] Gracefully stopped")
}
