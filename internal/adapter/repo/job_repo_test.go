package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"genstudio/internal/domain"
	"genstudio/internal/sqlinline"
)

type execCall struct {
	query string
	args  []any
}

type fakeExecutor struct {
	calls []execCall
	tag   string
	row   func(dest ...any) error
}

func (f *fakeExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	return pgconn.NewCommandTag(f.tag), nil
}

func (f *fakeExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	f.calls = append(f.calls, execCall{query: query, args: args})
	return stubRow{scan: f.row}
}

func (f *fakeExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

func TestJobRepositoryTransitionsReportRowsAffected(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		tag   string
		want  bool
		query string
		call  func(r *JobRepositoryPG) (bool, error)
	}{
		{"claim won", "UPDATE 1", true, sqlinline.QJobClaimCompletion, func(r *JobRepositoryPG) (bool, error) {
			return r.ClaimCompletion(context.Background(), "job-1", now)
		}},
		{"claim lost", "UPDATE 0", false, sqlinline.QJobClaimCompletion, func(r *JobRepositoryPG) (bool, error) {
			return r.ClaimCompletion(context.Background(), "job-1", now)
		}},
		{"stale release", "UPDATE 1", true, sqlinline.QJobReleaseStaleClaim, func(r *JobRepositoryPG) (bool, error) {
			return r.ReleaseStaleClaim(context.Background(), "job-1", now)
		}},
		{"processing no-op", "UPDATE 0", false, sqlinline.QJobMarkProcessing, func(r *JobRepositoryPG) (bool, error) {
			return r.MarkProcessing(context.Background(), "job-1", now)
		}},
		{"failed", "UPDATE 1", true, sqlinline.QJobMarkFailed, func(r *JobRepositoryPG) (bool, error) {
			return r.MarkFailed(context.Background(), "job-1", now, "boom", now)
		}},
		{"completed under other claim", "UPDATE 0", false, sqlinline.QJobMarkCompleted, func(r *JobRepositoryPG) (bool, error) {
			return r.MarkCompleted(context.Background(), "job-1", now, now.Add(time.Second))
		}},
		{"result under claim", "UPDATE 1", true, sqlinline.QJobSaveResult, func(r *JobRepositoryPG) (bool, error) {
			return r.SaveResult(context.Background(), "job-1", now, []byte(`{"images":[]}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{tag: tc.tag}
			got, err := tc.call(NewJobRepository(exec))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("changed = %v, want %v", got, tc.want)
			}
			if len(exec.calls) != 1 || exec.calls[0].query != tc.query {
				t.Fatalf("unexpected statements: %#v", exec.calls)
			}
			if exec.calls[0].args[0] != "job-1" {
				t.Fatalf("first arg = %v, want job id", exec.calls[0].args[0])
			}
		})
	}
}

func TestJobRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewJobRepository(&fakeExecutor{})
	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID error = %v, want ErrNotFound", err)
	}
}

func TestJobRepositoryCreateOmitsEmptyInput(t *testing.T) {
	exec := &fakeExecutor{tag: "INSERT 0 1"}
	repo := NewJobRepository(exec)
	job := &domain.Job{
		ID:                "job-1",
		Type:              domain.JobTypeGenerate,
		Status:            domain.JobStatusQueued,
		ProviderRequestID: "req-1",
		Endpoint:          "fal-ai/flux-2-pro",
		NumImages:         1,
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	args := exec.calls[0].args
	if args[1] != "generate" || args[2] != "queued" {
		t.Fatalf("type/status args = %v %v", args[1], args[2])
	}
	if args[11] != nil {
		t.Fatalf("input arg = %#v, want nil", args[11])
	}
	if !strings.HasPrefix(exec.calls[0].query, "--sql ") {
		t.Fatalf("statement is not marker tagged")
	}
}

func TestImageRepositoryUpsertLoadsStoredRow(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{row: func(dest ...any) error {
		*(dest[0].(*string)) = "existing-id"
		jobID := "job-1"
		*(dest[1].(**string)) = &jobID
		*(dest[2].(*string)) = "generated/images/job-1/image-01.png"
		*(dest[9].(*string)) = "generated"
		*(dest[12].(*time.Time)) = created
		return nil
	}}
	repo := NewImageRepository(exec)
	img := &domain.Image{ID: "fresh-id", StorageKey: "generated/images/job-1/image-01.png", Type: domain.ImageTypeGenerated}
	if err := repo.Upsert(context.Background(), img); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if img.ID != "existing-id" || !img.CreatedAt.Equal(created) || img.Type != domain.ImageTypeGenerated {
		t.Fatalf("image not replaced by stored row: %#v", img)
	}
}
