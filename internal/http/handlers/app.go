// Package handlers exposes the generation, gallery and upload operations over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"genstudio/internal/catalog"
	"genstudio/internal/domain"
	"genstudio/internal/generation"
	"genstudio/internal/middleware"
	"genstudio/internal/storage"
)

const maxBodyBytes = 1 << 20

// Generations is the job lifecycle surface served by these handlers.
type Generations interface {
	Submit(ctx context.Context, req generation.SubmitRequest) (*generation.SubmitResult, error)
	Status(ctx context.Context, jobID string) (generation.StatusView, error)
	Complete(ctx context.Context, jobID string) ([]generation.ImageResult, error)
	Vary(ctx context.Context, imageID string, req generation.VaryRequest) (*generation.SubmitResult, error)
	Upscale(ctx context.Context, imageID string) (*generation.SubmitResult, error)
	RemoveBackground(ctx context.Context, imageID string) (*generation.SubmitResult, error)
}

// Gallery answers image listing queries.
type Gallery interface {
	List(ctx context.Context, f catalog.Filter) (*catalog.Page, error)
	Get(ctx context.Context, id string) (*domain.Image, error)
}

type App struct {
	Logger  zerolog.Logger
	Jobs    Generations
	Gallery Gallery
	Objects storage.ObjectStore
	// Ping checks the database for the health endpoint. Optional.
	Ping func(ctx context.Context) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: kind, Message: message}})
}

// writeError maps domain errors onto HTTP responses.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		a.json(w, http.StatusUnprocessableEntity, map[string]errorBody{"error": {
			Code:    "validation_failed",
			Message: "request validation failed",
			Details: verr.Problems,
		}})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrRetryable):
		w.Header().Set("Retry-After", "2")
		a.error(w, http.StatusServiceUnavailable, "retry_later", err.Error())
	case errors.Is(err, domain.ErrProvider):
		a.error(w, http.StatusBadGateway, "provider_error", err.Error())
	case errors.Is(err, storage.ErrPresignUnsupported):
		a.error(w, http.StatusNotImplemented, "not_implemented", "direct uploads are not available with this storage driver")
	case errors.Is(err, domain.ErrInvariant):
		a.log(r).Error().Err(err).Msg("invariant violated")
		a.error(w, http.StatusInternalServerError, "invariant_violation", err.Error())
	default:
		a.log(r).Error().Err(err).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	l := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Logger()
	return &l
}

// decode reads a JSON body into dst. An empty body leaves dst untouched
// when allowEmpty is set.
func decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
