package model

import (
	"encoding/json"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"bloom-api/internal/infrastructure/storage"
	"bloom-api/internal/shared/utils"
)

// Parse objectIds are 10 alphanumeric characters.
var bookIDRules = []validation.Rule{
	validation.Required,
	is.Alphanumeric.ErrorObject(validation.NewError("validation_book_id", ErrInvalidBookID.Error())),
	validation.Length(10, 10).ErrorObject(validation.NewError("validation_book_id", ErrInvalidBookID.Error())),
}

func (e FileManifestEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Path, validation.Required.Error("path is required")),
		validation.Field(&e.Hash, validation.Required.Error("hash is required")),
	)
}

// ========================================
// UPLOAD START
// ========================================

// UploadStartRequest - POST /v1/books/{id|new}:upload-start body.
// Bloom Desktop sends files as a JSON-encoded string; an array is accepted too.
type UploadStartRequest struct {
	Name          string          `json:"name"`
	Title         string          `json:"title"`
	Files         json.RawMessage `json:"files"`
	ClientVersion string          `json:"clientVersion"`
}

func (r UploadStartRequest) BookTitle() string {
	return utils.FirstNonEmpty(r.Name, r.Title)
}

// Manifest decodes Files.
func (r UploadStartRequest) Manifest() ([]FileManifestEntry, error) {
	raw := r.Files
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: files is required", ErrInvalidFiles)
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}

	var files []FileManifestEntry
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFiles, err)
	}
	return files, nil
}

// ToParams validates the body and builds the step input.
func (r UploadStartRequest) ToParams(bookID string) (UploadStartParams, error) {
	files, err := r.Manifest()
	if err != nil {
		return UploadStartParams{}, err
	}
	p := UploadStartParams{
		BookID:        bookID,
		Title:         r.BookTitle(),
		Files:         files,
		ClientVersion: strings.TrimSpace(r.ClientVersion),
	}
	if err := p.Validate(); err != nil {
		return UploadStartParams{}, err
	}
	return p, nil
}

// UploadStartParams - input of the upload-start step
type UploadStartParams struct {
	BookID        string              `json:"bookId"`
	Title         string              `json:"title"`
	Files         []FileManifestEntry `json:"files"`
	ClientVersion string              `json:"clientVersion"`
}

func (p UploadStartParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.BookID,
			validation.Required,
			validation.When(p.BookID != NewBookID, bookIDRules...),
		),
		validation.Field(&p.Title, validation.Required.Error("name or title is required")),
		validation.Field(&p.Files, validation.Required.Error("at least one file is required")),
		validation.Field(&p.ClientVersion, validation.Required.Error("clientVersion is required")),
	)
}

func (p UploadStartParams) IsNewBook() bool {
	return p.BookID == NewBookID
}

// UploadStartResult - output of the upload-start step
type UploadStartResult struct {
	TransactionID string               `json:"transactionId"`
	Credentials   *storage.Credentials `json:"credentials"`
	URL           string               `json:"url"`
	FilesToUpload []string             `json:"filesToUpload"`
}

// ========================================
// UPLOAD FINISH
// ========================================

// UploadFinishRequest - POST /v1/books/{id}:upload-finish body
type UploadFinishRequest struct {
	Metadata       map[string]interface{} `json:"metadata"`
	TransactionID  string                 `json:"transactionId"`
	BecomeUploader bool                   `json:"becomeUploader"`
}

func (r UploadFinishRequest) ToParams(bookID string) (UploadFinishParams, error) {
	p := UploadFinishParams{
		BookID:         bookID,
		Metadata:       r.Metadata,
		TransactionID:  r.TransactionID,
		BecomeUploader: r.BecomeUploader,
	}
	if err := p.Validate(); err != nil {
		return UploadFinishParams{}, err
	}
	return p, nil
}

// UploadFinishParams - input of the upload-finish step
type UploadFinishParams struct {
	BookID         string                 `json:"bookId"`
	Metadata       map[string]interface{} `json:"metadata"`
	TransactionID  string                 `json:"transactionId"`
	BecomeUploader bool                   `json:"becomeUploader"`
}

func (p UploadFinishParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.BookID, bookIDRules...),
		validation.Field(&p.Metadata, validation.Required.Error("metadata is required")),
		validation.Field(&p.TransactionID, validation.Required.Error("transactionId is required")),
	)
}

// UploadFinishResult is empty on success.
type UploadFinishResult struct{}
