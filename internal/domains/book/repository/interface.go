package repository

import (
	"context"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/book/model"
)

// Repository - book data access against the environment's Parse server.
// Writes run under the given session token so Parse ACLs apply.
type Repository interface {
	// GetBook reads with the master key; returns parse.ErrObjectNotFound
	// (wrapped) when the id does not exist.
	GetBook(ctx context.Context, env config.Environment, bookID string) (*model.BookRecord, error)
	CreateBook(ctx context.Context, env config.Environment, fields map[string]interface{}, sessionToken string) (string, error)
	UpdateBook(ctx context.Context, env config.Environment, bookID string, fields map[string]interface{}, sessionToken string) error

	// GetOrCreateLanguage returns the objectId of the matching language row,
	// creating it when absent.
	GetOrCreateLanguage(ctx context.Context, env config.Environment, lang model.LanguageDescriptor) (string, error)

	// LoginAs opens a session for userID (master key impersonation).
	LoginAs(ctx context.Context, env config.Environment, userID string) (string, error)

	// GetMinimumDesktopVersion returns the oldest Bloom Desktop version
	// allowed to upload, e.g. "5.4".
	GetMinimumDesktopVersion(ctx context.Context, env config.Environment) (string, error)
}
