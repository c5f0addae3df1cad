package blob

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// CollectionDir is the directory every upload of a collection lives under.
func CollectionDir(prefix, collectionKey string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return collectionKey
	}
	return prefix + "/" + collectionKey
}

// ObjectPath builds a fresh, unique object name for an upload. The original
// file name only contributes its extension, so two items never share a blob.
func ObjectPath(prefix, collectionKey, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}
	return CollectionDir(prefix, collectionKey) + "/" + uuid.NewString() + ext
}
