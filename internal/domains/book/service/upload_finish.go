package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/infrastructure/parse"
	"bloom-api/internal/shared"
)

// fields a client may not set through metadata
var strippedMetadataFields = []string{"uploader", "objectId", "createdAt", "updatedAt"}

// UploadFinish validates the uploaded revision against the prefix issued at
// start, writes the final record and schedules deletion of the previous
// revision. Deletion failures are logged only.
func (s *UploadService) UploadFinish(ctx context.Context, env config.Environment, user shared.UserInfo, p model.UploadFinishParams) (*model.UploadFinishResult, error) {
	result, err := s.uploadFinish(ctx, env, user, p)
	if err != nil {
		logStepError("upload-finish", env, p.BookID, err)
		return nil, err
	}
	return result, nil
}

func (s *UploadService) uploadFinish(ctx context.Context, env config.Environment, user shared.UserInfo, p model.UploadFinishParams) (*model.UploadFinishResult, error) {
	book, err := s.authorize(ctx, env, user, p.BookID)
	if err != nil {
		return nil, err
	}

	if p.TransactionID != p.BookID {
		return nil, model.NewUploadError(model.CodeInvalidTransactionID,
			fmt.Errorf("transaction %q for book %q", p.TransactionID, p.BookID))
	}

	gateway, err := s.gateways.Gateway(env)
	if err != nil {
		return nil, fmt.Errorf("resolve object store: %w", err)
	}

	baseURL, _ := p.Metadata["baseUrl"].(string)
	if baseURL == "" {
		return nil, model.NewUploadError(model.CodeMissingBaseURL, nil)
	}
	expected := model.ExpectedBaseURLPrefix(gateway.StoreURL(), p.BookID)
	if !model.BaseURLUnderBook(gateway.StoreURL(), p.BookID, baseURL) {
		return nil, model.NewUploadError(model.CodeInvalidBaseURL,
			fmt.Errorf("baseUrl %q does not start with %q", baseURL, expected))
	}

	update := make(map[string]interface{}, len(p.Metadata)+4)
	for k, v := range p.Metadata {
		update[k] = v
	}
	for _, f := range strippedMetadataFields {
		delete(update, f)
	}

	if book.BaseURL == "" {
		update["updateSource"] = model.UpdateSourceNewBook
		update["inCirculation"] = true
	} else {
		update["updateSource"] = model.UpdateSourceOldBook
	}

	if raw, ok := update["languageDescriptors"]; ok {
		pointers, err := s.resolveLanguages(ctx, env, raw)
		if err != nil {
			return nil, model.NewUploadError(model.CodeErrorUpdatingBookRecord, err)
		}
		update["langPointers"] = pointers
		delete(update, "languageDescriptors")
	}

	update["uploadPendingTimestamp"] = parse.DeleteOp()
	update["lastUploaded"] = parse.Date(s.now())

	if p.BecomeUploader && book.UploaderID() != user.ObjectID {
		update["uploader"] = parse.Pointer(model.ClassUser, user.ObjectID)
		update["ACL"] = TransferACL(book.ACL, book.UploaderID(), user.ObjectID)
	}

	// session of the uploader before any transfer
	session, err := s.sessionFor(ctx, env, user, book)
	if err != nil {
		return nil, model.NewUploadError(model.CodeErrorUpdatingBookRecord, err)
	}
	if err := s.repo.UpdateBook(ctx, env, p.BookID, update, session); err != nil {
		return nil, model.NewUploadError(model.CodeErrorUpdatingBookRecord, err)
	}

	log.Info().
		Str("env", env.String()).
		Str("book_id", p.BookID).
		Str("user_id", user.ObjectID).
		Bool("become_uploader", p.BecomeUploader).
		Msg("Upload finished")

	oldPrefix, hadOld := model.PrefixFromBaseURL(gateway.StoreURL(), book.BaseURL)
	newPrefix, hasNew := model.PrefixFromBaseURL(gateway.StoreURL(), baseURL)
	if hadOld && hasNew && oldPrefix != newPrefix {
		if err := s.cleanup.ScheduleDeletePrefix(ctx, env, oldPrefix, newPrefix); err != nil {
			log.Warn().
				Err(err).
				Str("book_id", p.BookID).
				Str("prefix", oldPrefix).
				Msg("Failed to schedule deletion of previous revision; files left orphaned")
		}
	}

	return &model.UploadFinishResult{}, nil
}

// resolveLanguages turns the client's languageDescriptors into pointers,
// creating language rows that do not exist yet.
func (s *UploadService) resolveLanguages(ctx context.Context, env config.Environment, raw interface{}) ([]parse.PointerValue, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode languageDescriptors: %w", err)
	}
	var descriptors []model.LanguageDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("decode languageDescriptors: %w", err)
	}

	pointers := make([]parse.PointerValue, 0, len(descriptors))
	for _, d := range descriptors {
		id, err := s.repo.GetOrCreateLanguage(ctx, env, d)
		if err != nil {
			return nil, err
		}
		pointers = append(pointers, parse.Pointer(model.ClassLanguage, id))
	}
	return pointers, nil
}

// TransferACL moves the old uploader's entry to the new uploader. When the
// old uploader had no entry the new one gets read and write.
func TransferACL(acl map[string]model.ACLEntry, oldUploaderID, newUploaderID string) map[string]model.ACLEntry {
	out := make(map[string]model.ACLEntry, len(acl)+1)
	for k, v := range acl {
		out[k] = v
	}

	entry, ok := out[oldUploaderID]
	if oldUploaderID != "" {
		delete(out, oldUploaderID)
	}
	if !ok || oldUploaderID == "" {
		entry = model.ACLEntry{Read: true, Write: true}
	}

	if existing, ok := out[newUploaderID]; ok {
		entry.Read = entry.Read || existing.Read
		entry.Write = entry.Write || existing.Write
	}
	out[newUploaderID] = entry
	return out
}
