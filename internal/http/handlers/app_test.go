package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/storage"
)

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", domain.NewValidationError("num_images must be at most 4"), http.StatusUnprocessableEntity, "validation_failed"},
		{"not found", fmt.Errorf("job x: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", fmt.Errorf("busy: %w", domain.ErrConflict), http.StatusConflict, "conflict"},
		{"retryable", fmt.Errorf("stale: %w", domain.ErrRetryable), http.StatusServiceUnavailable, "retry_later"},
		{"provider", &domain.ProviderError{StatusCode: 500, Message: "upstream down"}, http.StatusBadGateway, "provider_error"},
		{"presign", storage.ErrPresignUnsupported, http.StatusNotImplemented, "not_implemented"},
		{"invariant", fmt.Errorf("odd: %w", domain.ErrInvariant), http.StatusInternalServerError, "invariant_violation"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	app := &App{Logger: zerolog.Nop()}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			app.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body struct {
				Error errorBody `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", body.Error.Code, tc.wantCode)
			}
			if tc.wantCode == "retry_later" && rec.Header().Get("Retry-After") != "2" {
				t.Fatal("Retry-After missing")
			}
			if tc.wantCode == "validation_failed" && len(body.Error.Details) != 1 {
				t.Fatalf("details = %v", body.Error.Details)
			}
			if tc.wantCode == "internal" && strings.Contains(rec.Body.String(), "disk on fire") {
				t.Fatal("internal error text leaked")
			}
		})
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Prompt string `json:"prompt"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"x","promtp":"y"}`))
	if err := decode(r, &dst, false); err == nil {
		t.Fatal("unknown field accepted")
	}
	empty := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := decode(empty, &dst, true); err != nil {
		t.Fatalf("empty body with allowEmpty: %v", err)
	}
	if err := decode(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &dst, false); err == nil {
		t.Fatal("empty body accepted")
	}
}

func TestHealth(t *testing.T) {
	app := &App{Logger: zerolog.Nop()}
	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	app.Ping = func(context.Context) error { return errors.New("connection refused") }
	rec = httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status with failing ping = %d", rec.Code)
	}
}
