package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
	"genstudio/internal/middleware"
	"genstudio/pkg/zip"
)

func (a *App) SubmitGeneration(w http.ResponseWriter, r *http.Request) {
	var req generation.SubmitRequest
	if err := decode(r, &req, false); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	res, err := a.Jobs.Submit(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.log(r).Info().
		Str("job_id", res.JobID).
		Str("model", req.Model).
		Str("country", middleware.CountryFromContext(r.Context())).
		Msg("generation submitted")
	a.json(w, http.StatusAccepted, res)
}

func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	view, err := a.Jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) CompleteGeneration(w http.ResponseWriter, r *http.Request) {
	images, err := a.Jobs.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"images": images})
}

// GenerationArchive streams the images of a completed job as a zip file.
func (a *App) GenerationArchive(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	view, err := a.Jobs.Status(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	done, ok := view.(generation.Completed)
	if !ok {
		a.writeError(w, r, fmt.Errorf("job %s is %s, not completed: %w", jobID, view.Status(), domain.ErrConflict))
		return
	}
	if len(done.Images) == 0 {
		a.writeError(w, r, fmt.Errorf("job %s has no images: %w", jobID, domain.ErrNotFound))
		return
	}

	entries := make([]zip.Entry, 0, len(done.Images))
	for _, img := range done.Images {
		key := img.StorageKey
		entries = append(entries, zip.Entry{
			Name:     path.Base(key),
			Modified: img.CreatedAt,
			Open: func() (io.ReadCloser, error) {
				return a.Objects.Open(r.Context(), key)
			},
		})
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="job-%s.zip"`, jobID))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, entries); err != nil {
		// Headers are gone; the client sees a truncated archive.
		a.log(r).Error().Err(err).Str("job_id", jobID).Msg("archive: stream failed")
	}
}
