package service

import (
	"context"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/shared"
)

// ServiceInterface - the two upload steps. Typed failures are returned as
// *model.UploadError; any other error is unexpected.
type ServiceInterface interface {
	UploadStart(ctx context.Context, env config.Environment, user shared.UserInfo, p model.UploadStartParams) (*model.UploadStartResult, error)
	UploadFinish(ctx context.Context, env config.Environment, user shared.UserInfo, p model.UploadFinishParams) (*model.UploadFinishResult, error)
}

// PermissionChecker decides whether user may modify a book.
type PermissionChecker interface {
	CanModifyBook(ctx context.Context, env config.Environment, user shared.UserInfo, bookID, uploaderID string) (bool, error)
}

// CleanupScheduler removes a superseded revision later, outside the step.
// Keys under keepPrefix (the live revision) are never deleted.
type CleanupScheduler interface {
	ScheduleDeletePrefix(ctx context.Context, env config.Environment, prefix, keepPrefix string) error
}
