package pipeline

import (
	"fmt"
	"mime"
	"time"

	"github.com/google/uuid"

	"github.com/reviewhub/media-service/internal/types"
)

// objectKey builds a unique storage key for one variant of one upload
// attempt. The namespace is partitioned by upload date and field name, and
// every attempt gets a fresh UUID, so concurrent uploads never collide on a
// key and no locking is needed around storage writes.
func objectKey(fieldName string, contentType string, role types.VariantRole, now time.Time) string {
	ext := extensionForType(contentType)
	if fieldName == "" {
		fieldName = "file"
	}
	return fmt.Sprintf("media/%s/%s/%s-%s%s",
		now.UTC().Format("20060102"), fieldName, uuid.New().String(), role, ext)
}

// extensionForType picks a file extension for a content type, with a manual
// fallback for the types mime.ExtensionsByType resolves inconsistently
// across platforms.
func extensionForType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/mpeg":
		return ".mpeg"
	case "video/quicktime":
		return ".mov"
	}

	extensions, err := mime.ExtensionsByType(contentType)
	if err == nil && len(extensions) > 0 {
		return extensions[0]
	}
	return ""
}
