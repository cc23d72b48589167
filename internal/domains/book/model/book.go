package model

import (
	"bloom-api/internal/infrastructure/parse"
)

// ============ CONSTANTS ============

// NewBookID is the id a client sends when the book has no record yet.
const NewBookID = "new"

// Parse classes
const (
	ClassBooks    = "books"
	ClassLanguage = "language"
	ClassUser     = "_User"
	ClassVersion  = "version"
)

// updateSource values stamped at finish
const (
	UpdateSourceNewBook = "BloomDesktop new book"
	UpdateSourceOldBook = "BloomDesktop old book"
)

// ============ ENTITIES ============

// BookRecord - the fields of a Parse books row the upload workflow reads
type BookRecord struct {
	ObjectID               string              `json:"objectId"`
	Title                  string              `json:"title"`
	BaseURL                string              `json:"baseUrl"`
	UploadPendingTimestamp *int64              `json:"uploadPendingTimestamp,omitempty"`
	Uploader               *parse.PointerValue `json:"uploader,omitempty"`
	InCirculation          *bool               `json:"inCirculation,omitempty"`
	ACL                    map[string]ACLEntry `json:"ACL,omitempty"`
}

func (b *BookRecord) UploaderID() string {
	if b.Uploader == nil {
		return ""
	}
	return b.Uploader.ObjectID
}

// HasPendingUpload reports an upload-start that never reached finish.
func (b *BookRecord) HasPendingUpload() bool {
	return b.UploadPendingTimestamp != nil
}

// ACLEntry - Parse per-user/role permission
type ACLEntry struct {
	Read  bool `json:"read,omitempty"`
	Write bool `json:"write,omitempty"`
}

// FileManifestEntry - one file the client intends the revision to contain.
// Path is relative to the revision prefix.
type FileManifestEntry struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// LanguageDescriptor - a language as Bloom Desktop describes it
type LanguageDescriptor struct {
	IsoCode        string `json:"isoCode"`
	Name           string `json:"name"`
	EthnologueCode string `json:"ethnologueCode,omitempty"`
	EnglishName    string `json:"englishName,omitempty"`
}

// FileDiff - result of comparing a manifest with the previous revision
type FileDiff struct {
	FilesToUpload []string
	FilesToCopy   []string
}
