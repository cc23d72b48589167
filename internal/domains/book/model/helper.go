package model

import (
	"fmt"
	"net/url"
	"strings"
)

// BookPrefix is the key namespace holding every revision of a book.
func BookPrefix(bookID string) string {
	return bookID + "/"
}

// RevisionPrefix is the key namespace of one upload: {bookId}/{timestamp}/.
func RevisionPrefix(bookID string, timestampMillis int64) string {
	return fmt.Sprintf("%s/%d/", bookID, timestampMillis)
}

// ExpectedBaseURLPrefix is what a finished baseUrl must start with.
func ExpectedBaseURLPrefix(storeURL, bookID string) string {
	return strings.TrimRight(storeURL, "/") + "/" + BookPrefix(bookID)
}

// BaseURLUnderBook reports whether baseUrl points inside the book's key
// namespace. Separators may be encoded (%2f).
func BaseURLUnderBook(storeURL, bookID, baseURL string) bool {
	raw, ok := storePath(storeURL, baseURL)
	if !ok {
		return false
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return false
	}
	return strings.HasPrefix(decoded, BookPrefix(bookID))
}

// RevisionURL is the baseUrl the client should record for a revision:
// store URL, prefix, then the URL-encoded title folder.
func RevisionURL(storeURL, prefix, title string) string {
	return strings.TrimRight(storeURL, "/") + "/" + prefix + url.PathEscape(title) + "/"
}

// PrefixFromBaseURL recovers the revision prefix from a stored baseUrl by
// dropping the store URL and the trailing title folder. Legacy baseUrls
// ({email}/{guid}/{title}/) and baseUrls with encoded separators
// ({id}%2f{ts}%2f{title}%2f) work the same way. ok is false when baseUrl is
// empty or not under storeURL.
func PrefixFromBaseURL(storeURL, baseURL string) (prefix string, ok bool) {
	raw, ok := storePath(storeURL, baseURL)
	if !ok {
		return "", false
	}

	segments := strings.Split(strings.Trim(raw, "/"), "/")
	if len(segments) < 2 {
		// separators are encoded: the whole path is one segment
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			return "", false
		}
		segments = strings.Split(strings.Trim(decoded, "/"), "/")
		if len(segments) < 2 {
			return "", false
		}
		return strings.Join(segments[:len(segments)-1], "/") + "/", true
	}

	// keys are stored unescaped
	decoded, err := url.PathUnescape(strings.Join(segments[:len(segments)-1], "/"))
	if err != nil {
		return "", false
	}
	return decoded + "/", true
}

// storePath is the part of baseUrl after the store root, still escaped.
func storePath(storeURL, baseURL string) (string, bool) {
	if baseURL == "" {
		return "", false
	}
	root := strings.TrimRight(storeURL, "/") + "/"
	if !strings.HasPrefix(baseURL, root) {
		return "", false
	}
	return strings.TrimPrefix(baseURL, root), true
}
