package model

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/shared/response"
)

// ========================================
// STEP ERRORS (returned as {code, message})
// ========================================

type ErrorCode string

const (
	CodeClientOutOfDate                     ErrorCode = "ClientOutOfDate"
	CodeUnableToValidatePermission          ErrorCode = "UnableToValidatePermission"
	CodeErrorCreatingBookRecord             ErrorCode = "ErrorCreatingBookRecord"
	CodeErrorUpdatingBookRecord             ErrorCode = "ErrorUpdatingBookRecord"
	CodeErrorDeletingPreviousFiles          ErrorCode = "ErrorDeletingPreviousFiles"
	CodeErrorCopyingBookFiles               ErrorCode = "ErrorCopyingBookFiles"
	CodeErrorProcessingFileHashes           ErrorCode = "ErrorProcessingFileHashes"
	CodeErrorGeneratingTemporaryCredentials ErrorCode = "ErrorGeneratingTemporaryCredentials"
	CodeMissingBaseURL                      ErrorCode = "MissingBaseUrl"
	CodeInvalidBaseURL                      ErrorCode = "InvalidBaseUrl"
	CodeInvalidTransactionID                ErrorCode = "InvalidTransactionId"
)

var defaultMessages = map[ErrorCode]string{
	CodeClientOutOfDate:                     "Your version of Bloom is out of date. Please upgrade to the latest version to upload books.",
	CodeUnableToValidatePermission:          "Unable to validate permission to modify this book.",
	CodeErrorCreatingBookRecord:             "Unable to create the book record.",
	CodeErrorUpdatingBookRecord:             "Unable to update the book record.",
	CodeErrorDeletingPreviousFiles:          "Unable to delete files left by a previous upload.",
	CodeErrorCopyingBookFiles:               "Unable to copy the book's existing files.",
	CodeErrorProcessingFileHashes:           "Unable to compare the book's files with the previous upload.",
	CodeErrorGeneratingTemporaryCredentials: "Unable to generate temporary upload credentials.",
	CodeMissingBaseURL:                      "metadata.baseUrl is required.",
	CodeInvalidBaseURL:                      "metadata.baseUrl does not match the upload location for this book.",
	CodeInvalidTransactionID:                "transactionId does not match the book id.",
}

// UploadError is a typed step failure. Err is the cause; it is logged and
// never sent to the client.
type UploadError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func NewUploadError(code ErrorCode, cause error) *UploadError {
	return &UploadError{Code: code, Message: defaultMessages[code], Err: cause}
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) ErrorCode() string     { return string(e.Code) }
func (e *UploadError) PublicMessage() string { return e.Message }

// ========================================
// REQUEST ERRORS (synchronous HTTP entry)
// ========================================

var (
	ErrInvalidBookAction  = errors.New("unknown book action")
	ErrInvalidBookID      = errors.New("invalid book id")
	ErrInvalidFiles       = errors.New("files must be a JSON array of {path, hash}")
	ErrInvalidRequestBody = errors.New("request body is not valid JSON")
	ErrUnauthenticated    = errors.New("missing or invalid session token")
)

var bookErrorMap = map[error]struct {
	Status  int
	Code    string
	Message string
}{
	ErrInvalidBookAction:  {Status: http.StatusNotFound, Code: "BOOK_001", Message: "Unknown book action"},
	ErrInvalidBookID:      {Status: http.StatusBadRequest, Code: "BOOK_002", Message: "Invalid book id"},
	ErrInvalidFiles:       {Status: http.StatusBadRequest, Code: "BOOK_003", Message: "files must be a JSON array of {path, hash}"},
	ErrInvalidRequestBody: {Status: http.StatusBadRequest, Code: "BOOK_004", Message: "Request body is not valid JSON"},
	ErrUnauthenticated:    {Status: http.StatusUnauthorized, Code: "AUTH_001", Message: "Missing or invalid session token"},
}

// HandleBookError writes the response for a synchronous entry error.
func HandleBookError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	for target, cfg := range bookErrorMap {
		if errors.Is(err, target) {
			response.ErrorResponse(c, cfg.Status, cfg.Code, cfg.Message)
			return true
		}
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", verrs)
		return true
	}

	// Lỗi không xác định
	log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled book request error")
	response.InternalServerError(c, "Internal server error")
	return true
}
