package main

import (
	"github.com/hibiken/asynq"

	actionJob "bloom-api/internal/domains/action/job"
	bookJob "bloom-api/internal/domains/book/job"
	"bloom-api/internal/infrastructure/queue"
	"bloom-api/internal/infrastructure/queue/handlers"
	"bloom-api/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	// Upload workflow steps (action:run)
	executor *actionJob.Executor

	// Deferred cleanup of superseded revisions
	deletePrefix *bookJob.DeletePrefixHandler
}

// initializeHandlers lấy handlers đã wire sẵn trong container
func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		executor:     c.Executor,
		deletePrefix: c.DeletePrefixHandler,
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.Use(handlers.Recover, handlers.Logging)

	mux.HandleFunc(queue.TypeRunAction, h.executor.ProcessTask)
	mux.HandleFunc(queue.TypeDeletePrefix, h.deletePrefix.ProcessTask)
}
