package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestLogging_PassesResult(t *testing.T) {
	boom := errors.New("boom")
	h := Logging(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return boom }))
	assert.ErrorIs(t, h.ProcessTask(t.Context(), asynq.NewTask("x", nil)), boom)

	h = Logging(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))
	assert.NoError(t, h.ProcessTask(t.Context(), asynq.NewTask("x", nil)))
}

func TestRecover(t *testing.T) {
	h := Recover(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { panic("bad") }))
	err := h.ProcessTask(t.Context(), asynq.NewTask("x", nil))
	assert.True(t, IsSkipRetry(err))
	assert.Contains(t, err.Error(), "bad")
}
