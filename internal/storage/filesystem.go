package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"genstudio/internal/domain"
)

// FileStore persists objects onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available. Objects are served by the API under baseURL.
type FileStore struct {
	basePath string
	baseURL  string
	client   *http.Client
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, baseURL string, client *http.Client) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// UploadFromURL streams sourceURL into key. The file is renamed into place so
// readers never observe a partial object.
func (s *FileStore) UploadFromURL(ctx context.Context, sourceURL, key string, meta Metadata) (*Object, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	body, contentType, _, err := fetchSource(ctx, s.client, sourceURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	fullPath := s.path(cleanKey)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("storage: create temp file: %w", err)
	}
	size, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("storage: write file: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("storage: move file: %w", err)
	}
	if len(meta) > 0 || contentType != "" {
		if err := s.writeMeta(fullPath, contentType, meta); err != nil {
			return nil, err
		}
	}
	return &Object{Key: cleanKey, URL: s.URL(cleanKey), ContentType: contentType, Size: size}, nil
}

// PresignUpload is not available on the local filesystem.
func (s *FileStore) PresignUpload(context.Context, UploadRequest) (*PresignedUpload, error) {
	return nil, ErrPresignUnsupported
}

// ConfirmUpload reports the object stored under fileKey.
func (s *FileStore) ConfirmUpload(ctx context.Context, fileKey string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(fileKey)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(s.path(cleanKey))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: object %q: %w", cleanKey, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: stat object: %w", err)
	}
	return &Object{Key: cleanKey, URL: s.URL(cleanKey), ContentType: s.readContentType(cleanKey), Size: info.Size()}, nil
}

// Open returns a reader for the object stored under key.
func (s *FileStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(cleanKey))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: object %q: %w", cleanKey, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: open object: %w", err)
	}
	return f, nil
}

// URL resolves the public URL of key.
func (s *FileStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (s *FileStore) path(cleanKey string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
}

type fileMeta struct {
	ContentType string   `json:"content_type,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

func (s *FileStore) writeMeta(fullPath, contentType string, meta Metadata) error {
	data, err := json.Marshal(fileMeta{ContentType: contentType, Metadata: meta})
	if err != nil {
		return fmt.Errorf("storage: encode metadata: %w", err)
	}
	if err := os.WriteFile(fullPath+".meta.json", data, 0o644); err != nil {
		return fmt.Errorf("storage: write metadata: %w", err)
	}
	return nil
}

func (s *FileStore) readContentType(cleanKey string) string {
	data, err := os.ReadFile(s.path(cleanKey) + ".meta.json")
	if err != nil {
		return ""
	}
	var meta fileMeta
	if json.Unmarshal(data, &meta) != nil {
		return ""
	}
	return meta.ContentType
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ ObjectStore = (*FileStore)(nil)
