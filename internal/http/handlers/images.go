package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/catalog"
	"genstudio/internal/domain"
	"genstudio/internal/generation"
)

type imagePage struct {
	Items      []generation.ImageResult `json:"items"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

func (a *App) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.Filter{
		Type:   q.Get("type"),
		Model:  q.Get("model"),
		JobID:  q.Get("job_id"),
		Before: q.Get("before"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			a.writeError(w, r, domain.NewValidationError("limit must be an integer"))
			return
		}
		filter.Limit = limit
	}

	page, err := a.Gallery.List(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := imagePage{Items: make([]generation.ImageResult, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, img := range page.Items {
		out.Items = append(out.Items, generation.ToImageResult(img, a.Objects.URL))
	}
	a.json(w, http.StatusOK, out)
}

func (a *App) GetImage(w http.ResponseWriter, r *http.Request) {
	img, err := a.Gallery.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, generation.ToImageResult(*img, a.Objects.URL))
}

func (a *App) VaryImage(w http.ResponseWriter, r *http.Request) {
	var req generation.VaryRequest
	if err := decode(r, &req, true); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	res, err := a.Jobs.Vary(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, res)
}

func (a *App) UpscaleImage(w http.ResponseWriter, r *http.Request) {
	res, err := a.Jobs.Upscale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, res)
}

func (a *App) RemoveImageBackground(w http.ResponseWriter, r *http.Request) {
	res, err := a.Jobs.RemoveBackground(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, res)
}
