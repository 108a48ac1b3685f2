package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"genstudio/internal/domain"
)

func openTestDB(t *testing.T) (*JobRepository, *ImageRepository) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return NewJobRepository(db), NewImageRepository(db)
}

func newQueuedJob(id string, created time.Time) *domain.Job {
	return &domain.Job{
		ID:                id,
		Type:              domain.JobTypeGenerate,
		Status:            domain.JobStatusQueued,
		ProviderRequestID: "req-" + id,
		Endpoint:          "fal-ai/flux-2-pro",
		Prompt:            "a lighthouse at dusk",
		Model:             "flux-2-pro",
		AspectRatio:       "1:1",
		Resolution:        "1K",
		NumImages:         2,
		Input:             []byte(`{"prompt":"a lighthouse at dusk"}`),
		EstimatedCost:     0.06,
		CreatedAt:         created,
	}
}

func TestJobLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	jobs, _ := openTestDB(t)
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := jobs.Create(ctx, newQueuedJob("job-1", created)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	moved, err := jobs.MarkProcessing(ctx, "job-1", created.Add(time.Second))
	if err != nil || !moved {
		t.Fatalf("MarkProcessing = %v, %v", moved, err)
	}
	moved, err = jobs.MarkProcessing(ctx, "job-1", created.Add(2*time.Second))
	if err != nil || moved {
		t.Fatalf("second MarkProcessing = %v, %v; want no-op", moved, err)
	}

	claimedAt := created.Add(3 * time.Second)
	claimed, err := jobs.ClaimCompletion(ctx, "job-1", claimedAt)
	if err != nil || !claimed {
		t.Fatalf("ClaimCompletion = %v, %v", claimed, err)
	}
	claimed, err = jobs.ClaimCompletion(ctx, "job-1", created.Add(4*time.Second))
	if err != nil || claimed {
		t.Fatalf("second ClaimCompletion = %v, %v; want lost", claimed, err)
	}

	if ok, err := jobs.RecordError(ctx, "job-1", claimedAt, "upload failed"); err != nil || !ok {
		t.Fatalf("RecordError = %v, %v", ok, err)
	}
	if ok, err := jobs.SaveResult(ctx, "job-1", claimedAt, []byte(`{"images":[]}`)); err != nil || !ok {
		t.Fatalf("SaveResult = %v, %v", ok, err)
	}
	done, err := jobs.MarkCompleted(ctx, "job-1", claimedAt, created.Add(5*time.Second))
	if err != nil || !done {
		t.Fatalf("MarkCompleted = %v, %v", done, err)
	}

	job, err := jobs.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	if job.Error != "" {
		t.Fatalf("completed job kept error %q", job.Error)
	}
	if string(job.Result) != `{"images":[]}` {
		t.Fatalf("result = %s", job.Result)
	}
	if job.StartedAt == nil || !job.StartedAt.Equal(created.Add(time.Second)) {
		t.Fatalf("started_at = %v", job.StartedAt)
	}
	if job.ClaimedAt == nil || !job.ClaimedAt.Equal(created.Add(3*time.Second)) {
		t.Fatalf("claimed_at = %v", job.ClaimedAt)
	}
	if job.CompletedAt == nil || !job.CreatedAt.Equal(created) {
		t.Fatalf("timestamps not round-tripped: %#v", job)
	}
}

func TestReleaseStaleClaimHonorsCutoff(t *testing.T) {
	ctx := context.Background()
	jobs, _ := openTestDB(t)
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := jobs.Create(ctx, newQueuedJob("job-1", created)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	claimedAt := created.Add(10 * time.Second)
	if ok, err := jobs.ClaimCompletion(ctx, "job-1", claimedAt); err != nil || !ok {
		t.Fatalf("ClaimCompletion = %v, %v", ok, err)
	}

	released, err := jobs.ReleaseStaleClaim(ctx, "job-1", claimedAt.Add(-time.Nanosecond))
	if err != nil || released {
		t.Fatalf("fresh claim released: %v, %v", released, err)
	}
	released, err = jobs.ReleaseStaleClaim(ctx, "job-1", claimedAt.Add(time.Millisecond))
	if err != nil || !released {
		t.Fatalf("stale claim not released: %v, %v", released, err)
	}
	job, err := jobs.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != domain.JobStatusProcessing || job.ClaimedAt != nil {
		t.Fatalf("after release status=%s claimed_at=%v", job.Status, job.ClaimedAt)
	}
}

func TestMarkFailedOnlyFromCompleting(t *testing.T) {
	ctx := context.Background()
	jobs, _ := openTestDB(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := jobs.Create(ctx, newQueuedJob("job-1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, _ := jobs.MarkFailed(ctx, "job-1", now, "boom", now); ok {
		t.Fatal("queued job moved straight to failed")
	}
	if ok, _ := jobs.ClaimCompletion(ctx, "job-1", now); !ok {
		t.Fatal("claim failed")
	}
	if ok, err := jobs.MarkFailed(ctx, "job-1", now, "content policy", now); err != nil || !ok {
		t.Fatalf("MarkFailed = %v, %v", ok, err)
	}
	job, _ := jobs.GetByID(ctx, "job-1")
	if job.Status != domain.JobStatusFailed || job.Error != "content policy" || job.Result != nil {
		t.Fatalf("failed job = %#v", job)
	}
}

func TestSupersededClaimCannotWrite(t *testing.T) {
	ctx := context.Background()
	jobs, _ := openTestDB(t)
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := jobs.Create(ctx, newQueuedJob("job-1", created)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	first := created.Add(time.Second)
	if ok, _ := jobs.ClaimCompletion(ctx, "job-1", first); !ok {
		t.Fatal("first claim failed")
	}
	if ok, _ := jobs.ReleaseStaleClaim(ctx, "job-1", first.Add(time.Minute)); !ok {
		t.Fatal("stale claim not released")
	}
	second := first.Add(2 * time.Minute)
	if ok, _ := jobs.ClaimCompletion(ctx, "job-1", second); !ok {
		t.Fatal("second claim failed")
	}

	if ok, err := jobs.SaveResult(ctx, "job-1", first, []byte(`{"images":["old"]}`)); err != nil || ok {
		t.Fatalf("SaveResult with old claim = %v, %v", ok, err)
	}
	if ok, err := jobs.RecordError(ctx, "job-1", first, "old claimant"); err != nil || ok {
		t.Fatalf("RecordError with old claim = %v, %v", ok, err)
	}
	if ok, err := jobs.MarkCompleted(ctx, "job-1", first, second); err != nil || ok {
		t.Fatalf("MarkCompleted with old claim = %v, %v", ok, err)
	}
	if ok, err := jobs.MarkFailed(ctx, "job-1", first, "old claimant", second); err != nil || ok {
		t.Fatalf("MarkFailed with old claim = %v, %v", ok, err)
	}
	job, _ := jobs.GetByID(ctx, "job-1")
	if job.Status != domain.JobStatusCompleting || job.Error != "" || job.Result != nil {
		t.Fatalf("job touched by old claim: %#v", job)
	}

	if ok, err := jobs.MarkCompleted(ctx, "job-1", second, second.Add(time.Second)); err != nil || !ok {
		t.Fatalf("MarkCompleted with current claim = %v, %v", ok, err)
	}
}

func TestGetMissingJobAndImage(t *testing.T) {
	jobs, images := openTestDB(t)
	if _, err := jobs.GetByID(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("job error = %v", err)
	}
	if _, err := images.GetByID(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("image error = %v", err)
	}
}

func TestImageUpsertIsIdempotentOnStorageKey(t *testing.T) {
	ctx := context.Background()
	jobs, images := openTestDB(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := jobs.Create(ctx, newQueuedJob("job-1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	jobID := "job-1"
	width := 1024
	first := &domain.Image{
		ID: "img-a", JobID: &jobID, StorageKey: "generated/images/job-1/image-01.png",
		Width: &width, Prompt: "p", Model: "flux-2-pro", Type: domain.ImageTypeGenerated, Cost: 0.03, CreatedAt: now,
	}
	if err := images.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	retry := &domain.Image{
		ID: "img-b", JobID: &jobID, StorageKey: "generated/images/job-1/image-01.png",
		Type: domain.ImageTypeGenerated, CreatedAt: now.Add(time.Minute),
	}
	if err := images.Upsert(ctx, retry); err != nil {
		t.Fatalf("retry Upsert: %v", err)
	}
	if retry.ID != "img-a" || retry.Width == nil || *retry.Width != 1024 || retry.Height != nil {
		t.Fatalf("retry did not load existing row: %#v", retry)
	}

	second := &domain.Image{ID: "img-c", JobID: &jobID, StorageKey: "generated/images/job-1/image-02.png", Type: domain.ImageTypeGenerated, CreatedAt: now}
	if err := images.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert second: %v", err)
	}
	list, err := images.ListByJobID(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListByJobID: %v", err)
	}
	if len(list) != 2 || list[0].ID != "img-a" || list[1].ID != "img-c" {
		t.Fatalf("list = %#v", list)
	}
}

func TestConcurrentClaimsHaveSingleWinner(t *testing.T) {
	ctx := context.Background()
	jobs, _ := openTestDB(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := jobs.Create(ctx, newQueuedJob("job-1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := jobs.ClaimCompletion(ctx, "job-1", now)
			if err != nil {
				t.Errorf("ClaimCompletion: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want 1", wins.Load())
	}
}
