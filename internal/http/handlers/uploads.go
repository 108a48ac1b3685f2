package handlers

import (
	"net/http"
	"strings"
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/storage"
)

type presignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type presignResponse struct {
	UploadURL string    `json:"upload_url"`
	FileKey   string    `json:"file_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

type confirmRequest struct {
	FileKey string `json:"file_key"`
}

type confirmResponse struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// PresignUpload issues a direct upload URL for a reference image.
func (a *App) PresignUpload(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if err := decode(r, &req, false); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	grant, err := a.Objects.PresignUpload(r.Context(), storage.UploadRequest{
		Filename:    strings.TrimSpace(req.Filename),
		ContentType: req.ContentType,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, presignResponse{UploadURL: grant.UploadURL, FileKey: grant.FileKey, ExpiresAt: grant.ExpiresAt})
}

// ConfirmUpload checks that a presigned upload arrived and returns its public URL.
func (a *App) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decode(r, &req, false); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	key := strings.TrimSpace(req.FileKey)
	if !storage.IsUploadKey(key) {
		a.writeError(w, r, domain.NewValidationError("file_key must be a key returned by /v1/uploads"))
		return
	}
	obj, err := a.Objects.ConfirmUpload(r.Context(), key)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, confirmResponse{Key: obj.Key, URL: obj.URL, ContentType: obj.ContentType, Size: obj.Size})
}
