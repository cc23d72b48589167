package service

import (
	"strings"

	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/infrastructure/storage"
)

// DiffFiles splits the manifest into files the client must upload and files
// that can be copied from oldPrefix because the stored ETag equals the
// declared hash. Each path lands in exactly one list, in manifest order;
// repeated paths keep their first entry. Stored keys missing from the
// manifest are ignored.
func DiffFiles(manifest []model.FileManifestEntry, oldPrefix string, stored []storage.ObjectInfo) model.FileDiff {
	etags := make(map[string]string, len(stored))
	for _, obj := range stored {
		etags[obj.Key] = obj.ETag
	}

	diff := model.FileDiff{
		FilesToUpload: []string{},
		FilesToCopy:   []string{},
	}
	seen := make(map[string]bool, len(manifest))
	for _, entry := range manifest {
		if seen[entry.Path] {
			continue
		}
		seen[entry.Path] = true

		etag, ok := etags[oldPrefix+strings.TrimPrefix(entry.Path, "/")]
		if ok && oldPrefix != "" && hashMatches(etag, entry.Hash) {
			diff.FilesToCopy = append(diff.FilesToCopy, entry.Path)
			continue
		}
		diff.FilesToUpload = append(diff.FilesToUpload, entry.Path)
	}
	return diff
}

func hashMatches(etag, hash string) bool {
	hash = strings.Trim(strings.TrimSpace(hash), `"`)
	return hash != "" && strings.EqualFold(strings.Trim(etag, `"`), hash)
}
