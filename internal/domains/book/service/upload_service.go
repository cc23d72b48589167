package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/domains/book/repository"
	"bloom-api/internal/infrastructure/queue"
	"bloom-api/internal/infrastructure/storage"
	"bloom-api/internal/shared"
)

// CredentialsDuration is how long upload credentials stay valid.
const CredentialsDuration = 24 * time.Hour

// UploadService runs the upload-start and upload-finish steps. It keeps no
// per-book state; two concurrent starts on one book are not serialized.
type UploadService struct {
	repo     repository.Repository
	perms    PermissionChecker
	gateways storage.Resolver
	cleanup  CleanupScheduler
	now      func() time.Time
}

func NewUploadService(
	repo repository.Repository,
	perms PermissionChecker,
	gateways storage.Resolver,
	cleanup CleanupScheduler,
) *UploadService {
	return &UploadService{
		repo:     repo,
		perms:    perms,
		gateways: gateways,
		cleanup:  cleanup,
		now:      time.Now,
	}
}

// authorize loads the book and checks edit rights. Every failure, including
// a missing book, is reported as UnableToValidatePermission.
func (s *UploadService) authorize(ctx context.Context, env config.Environment, user shared.UserInfo, bookID string) (*model.BookRecord, error) {
	book, err := s.repo.GetBook(ctx, env, bookID)
	if err != nil {
		return nil, model.NewUploadError(model.CodeUnableToValidatePermission, err)
	}

	ok, err := s.perms.CanModifyBook(ctx, env, user, bookID, book.UploaderID())
	if err != nil {
		return nil, model.NewUploadError(model.CodeUnableToValidatePermission, err)
	}
	if !ok {
		return nil, model.NewUploadError(model.CodeUnableToValidatePermission,
			fmt.Errorf("user %s may not modify book %s", user.ObjectID, bookID))
	}
	return book, nil
}

// sessionFor returns a session allowed to write the book: the caller's own
// when they are the uploader, otherwise one impersonating the uploader.
func (s *UploadService) sessionFor(ctx context.Context, env config.Environment, user shared.UserInfo, book *model.BookRecord) (string, error) {
	uploaderID := book.UploaderID()
	if uploaderID == "" || uploaderID == user.ObjectID {
		return user.SessionToken, nil
	}

	token, err := s.repo.LoginAs(ctx, env, uploaderID)
	if err != nil {
		return "", fmt.Errorf("impersonate uploader: %w", err)
	}
	return token, nil
}

// logStepError logs the cause of a typed error; the client only sees the code.
func logStepError(step string, env config.Environment, bookID string, err error) {
	var uerr *model.UploadError
	if errors.As(err, &uerr) {
		log.Error().
			Err(uerr.Err).
			Str("step", step).
			Str("env", env.String()).
			Str("book_id", bookID).
			Str("code", string(uerr.Code)).
			Msg("Upload step failed")
		return
	}
	log.Error().
		Err(err).
		Str("step", step).
		Str("env", env.String()).
		Str("book_id", bookID).
		Msg("Upload step failed unexpectedly")
}

// ========================================
// CLEANUP SCHEDULER
// ========================================

type queueCleanupScheduler struct {
	client queue.Enqueuer
}

// NewQueueCleanupScheduler enqueues prefix deletion as an asynq task.
func NewQueueCleanupScheduler(client queue.Enqueuer) CleanupScheduler {
	return &queueCleanupScheduler{client: client}
}

func (q *queueCleanupScheduler) ScheduleDeletePrefix(ctx context.Context, env config.Environment, prefix, keepPrefix string) error {
	info, err := queue.EnqueueDeletePrefix(ctx, q.client, queue.DeletePrefixPayload{
		Env:           env,
		Prefix:        prefix,
		ExcludePrefix: keepPrefix,
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("task_id", info.ID).
		Str("env", env.String()).
		Str("prefix", prefix).
		Str("keep", keepPrefix).
		Msg("Scheduled deletion of superseded revision")
	return nil
}

var _ ServiceInterface = (*UploadService)(nil)
