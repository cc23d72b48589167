package job

import (
	"context"
	"encoding/json"
	"fmt"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/domains/book/service"
	"bloom-api/internal/shared"
)

// UploadStartStep runs upload-start inside the action executor.
type UploadStartStep struct {
	service service.ServiceInterface
}

func NewUploadStartStep(s service.ServiceInterface) *UploadStartStep {
	return &UploadStartStep{service: s}
}

func (s *UploadStartStep) Run(ctx context.Context, env config.Environment, user shared.UserInfo, params json.RawMessage) (interface{}, error) {
	var p model.UploadStartParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("unmarshal upload-start params: %w", err)
	}
	return s.service.UploadStart(ctx, env, user, p)
}

// UploadFinishStep runs upload-finish inside the action executor.
type UploadFinishStep struct {
	service service.ServiceInterface
}

func NewUploadFinishStep(s service.ServiceInterface) *UploadFinishStep {
	return &UploadFinishStep{service: s}
}

func (s *UploadFinishStep) Run(ctx context.Context, env config.Environment, user shared.UserInfo, params json.RawMessage) (interface{}, error) {
	var p model.UploadFinishParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("unmarshal upload-finish params: %w", err)
	}
	return s.service.UploadFinish(ctx, env, user, p)
}
