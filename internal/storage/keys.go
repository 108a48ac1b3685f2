package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"genstudio/internal/domain"
)

var allowedUploadTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// ImageKey returns the deterministic key of the index-th (zero based) image of a job.
func ImageKey(jobID string, index int, ext string) string {
	if index < 0 {
		index = 0
	}
	if ext == "" {
		ext = ".png"
	}
	return fmt.Sprintf("generated/images/%s/image-%02d%s", jobID, index+1, ext)
}

// ExtensionFor picks a file extension from a content type, falling back to the
// extension of the source URL path.
func ExtensionFor(contentType, sourceURL string) string {
	if ext := extensionForMIME(contentType); ext != "" {
		return ext
	}
	if i := strings.IndexAny(sourceURL, "?#"); i >= 0 {
		sourceURL = sourceURL[:i]
	}
	switch ext := strings.ToLower(path.Ext(sourceURL)); ext {
	case ".png", ".webp", ".gif":
		return ext
	case ".jpg", ".jpeg":
		return ".jpg"
	}
	return ""
}

func extensionForMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}

// UploadKey allocates a key for a client upload after checking its content type.
func UploadKey(now time.Time, req UploadRequest) (string, error) {
	ext, err := uploadExtension(req.ContentType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("uploads/%04d/%02d/%s%s", now.Year(), int(now.Month()), uuid.NewString(), ext), nil
}

func uploadExtension(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := allowedUploadTypes[ct]
	if !ok {
		return "", domain.NewValidationError(fmt.Sprintf("content_type %q is not allowed; use image/png, image/jpeg or image/webp", contentType))
	}
	return ext, nil
}

// IsUploadKey reports whether key lives in the client upload namespace.
func IsUploadKey(key string) bool {
	return strings.HasPrefix(key, "uploads/") && !strings.Contains(key, "..")
}
