package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/infrastructure/parse"
	"bloom-api/internal/infrastructure/storage"
	"bloom-api/internal/shared"
)

const placeholder = "placeholder"

// UploadStart prepares a new revision prefix for the client:
//  1. check the client version
//  2. create the record (new book) or check rights and mark it pending
//  3. copy unchanged files from the current revision
//  4. issue credentials limited to the new prefix
//
// Steps run in this order and stop at the first failure. Copies made before
// a failure are not undone; the next start for the book deletes them.
func (s *UploadService) UploadStart(ctx context.Context, env config.Environment, user shared.UserInfo, p model.UploadStartParams) (*model.UploadStartResult, error) {
	result, err := s.uploadStart(ctx, env, user, p)
	if err != nil {
		logStepError("upload-start", env, p.BookID, err)
		return nil, err
	}
	return result, nil
}

func (s *UploadService) uploadStart(ctx context.Context, env config.Environment, user shared.UserInfo, p model.UploadStartParams) (*model.UploadStartResult, error) {
	if err := s.checkClientVersion(ctx, env, p.ClientVersion); err != nil {
		return nil, err
	}

	gateway, err := s.gateways.Gateway(env)
	if err != nil {
		return nil, fmt.Errorf("resolve object store: %w", err)
	}

	timestamp := s.now().UnixMilli()
	bookID := p.BookID
	oldPrefix := ""

	if p.IsNewBook() {
		bookID, err = s.createPendingBook(ctx, env, user, timestamp)
		if err != nil {
			return nil, err
		}
	} else {
		oldPrefix, err = s.markExistingBookPending(ctx, env, user, gateway, bookID, timestamp)
		if err != nil {
			return nil, err
		}
	}

	newPrefix := model.RevisionPrefix(bookID, timestamp)
	filesToUpload := manifestPaths(p.Files)

	if oldPrefix != "" {
		stored, err := gateway.ListPrefixKeys(ctx, oldPrefix)
		if err != nil {
			return nil, model.NewUploadError(model.CodeErrorProcessingFileHashes, err)
		}

		diff := DiffFiles(p.Files, oldPrefix, stored)
		if len(diff.FilesToCopy) > 0 {
			keys := make([]string, 0, len(diff.FilesToCopy))
			for _, path := range diff.FilesToCopy {
				keys = append(keys, oldPrefix+strings.TrimPrefix(path, "/"))
			}
			if err := gateway.CopyPrefix(ctx, oldPrefix, newPrefix, keys); err != nil {
				return nil, model.NewUploadError(model.CodeErrorCopyingBookFiles, err)
			}
		}
		filesToUpload = diff.FilesToUpload

		log.Info().
			Str("book_id", bookID).
			Str("old_prefix", oldPrefix).
			Str("new_prefix", newPrefix).
			Int("copied", len(diff.FilesToCopy)).
			Int("to_upload", len(diff.FilesToUpload)).
			Msg("Copied unchanged book files")
	}

	creds, err := gateway.IssueScopedCredentials(ctx, newPrefix, CredentialsDuration)
	if err != nil {
		return nil, model.NewUploadError(model.CodeErrorGeneratingTemporaryCredentials, err)
	}

	log.Info().
		Str("env", env.String()).
		Str("book_id", bookID).
		Str("user_id", user.ObjectID).
		Str("prefix", newPrefix).
		Msg("Upload started")

	return &model.UploadStartResult{
		TransactionID: bookID,
		Credentials:   creds,
		URL:           model.RevisionURL(gateway.StoreURL(), newPrefix, p.Title),
		FilesToUpload: filesToUpload,
	}, nil
}

func (s *UploadService) createPendingBook(ctx context.Context, env config.Environment, user shared.UserInfo, timestamp int64) (string, error) {
	fields := map[string]interface{}{
		"title":                  placeholder,
		"bookInstanceId":         placeholder,
		"inCirculation":          false,
		"uploadPendingTimestamp": timestamp,
		"uploader":               parse.Pointer(model.ClassUser, user.ObjectID),
	}

	id, err := s.repo.CreateBook(ctx, env, fields, user.SessionToken)
	if err != nil {
		return "", model.NewUploadError(model.CodeErrorCreatingBookRecord, err)
	}
	return id, nil
}

// markExistingBookPending checks rights, removes files of an unfinished
// earlier attempt and stamps the new pending timestamp. It returns the
// prefix of the current finished revision, or "" when there is none.
func (s *UploadService) markExistingBookPending(
	ctx context.Context,
	env config.Environment,
	user shared.UserInfo,
	gateway storage.Gateway,
	bookID string,
	timestamp int64,
) (string, error) {
	book, err := s.authorize(ctx, env, user, bookID)
	if err != nil {
		return "", err
	}

	currentPrefix, ok := model.PrefixFromBaseURL(gateway.StoreURL(), book.BaseURL)
	if book.BaseURL != "" && !ok {
		// không xác định được revision đang live: không xóa, không diff
		cause := fmt.Errorf("cannot derive prefix from baseUrl %q", book.BaseURL)
		if book.HasPendingUpload() {
			return "", model.NewUploadError(model.CodeErrorDeletingPreviousFiles, cause)
		}
		return "", model.NewUploadError(model.CodeErrorProcessingFileHashes, cause)
	}

	if book.HasPendingUpload() {
		// everything under the book except the live revision is abandoned
		if err := gateway.DeletePrefix(ctx, model.BookPrefix(bookID), currentPrefix); err != nil {
			return "", model.NewUploadError(model.CodeErrorDeletingPreviousFiles, err)
		}
		log.Info().
			Str("book_id", bookID).
			Str("kept_prefix", currentPrefix).
			Msg("Deleted files of unfinished upload")
	}

	session, err := s.sessionFor(ctx, env, user, book)
	if err != nil {
		return "", model.NewUploadError(model.CodeErrorUpdatingBookRecord, err)
	}

	fields := map[string]interface{}{"uploadPendingTimestamp": timestamp}
	if err := s.repo.UpdateBook(ctx, env, bookID, fields, session); err != nil {
		return "", model.NewUploadError(model.CodeErrorUpdatingBookRecord, err)
	}
	return currentPrefix, nil
}

func manifestPaths(files []model.FileManifestEntry) []string {
	paths := make([]string, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if !seen[f.Path] {
			seen[f.Path] = true
			paths = append(paths, f.Path)
		}
	}
	return paths
}
