package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/infrastructure/queue"
	"bloom-api/internal/infrastructure/storage"
)

// DeletePrefixHandler xóa revision cũ của book sau khi upload-finish thành công
type DeletePrefixHandler struct {
	gateways storage.Resolver
}

func NewDeletePrefixHandler(gateways storage.Resolver) *DeletePrefixHandler {
	return &DeletePrefixHandler{gateways: gateways}
}

// ProcessTask deletes every object under the payload prefix. Errors are
// returned so asynq retries; a bad payload is not retried.
func (h *DeletePrefixHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p queue.DeletePrefixPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal DeletePrefix payload")
		return fmt.Errorf("unmarshal payload: %w: %v", asynq.SkipRetry, err)
	}
	if p.Prefix == "" {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, storage.ErrEmptyPrefix)
	}

	gateway, err := h.gateways.Gateway(p.Env)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log.Info().
		Str("env", p.Env.String()).
		Str("prefix", p.Prefix).
		Str("exclude", p.ExcludePrefix).
		Msg("Deleting superseded revision")

	if err := gateway.DeletePrefix(ctx, p.Prefix, p.ExcludePrefix); err != nil {
		log.Error().
			Err(err).
			Str("prefix", p.Prefix).
			Msg("Failed to delete superseded revision")
		return fmt.Errorf("delete prefix: %w", err)
	}

	log.Info().
		Str("prefix", p.Prefix).
		Msg("Superseded revision deleted")

	return nil
}
