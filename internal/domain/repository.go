package domain

import (
	"context"
	"encoding/json"
	"time"
)

// JobRepository defines persistence for job entities. Every transition method
// is a single conditional write and reports whether a row changed, so the
// lifecycle stays correct across process instances.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// MarkProcessing moves queued -> processing and records startedAt.
	MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) (bool, error)
	// ClaimCompletion moves queued|processing -> completing and records claimedAt.
	ClaimCompletion(ctx context.Context, jobID string, claimedAt time.Time) (bool, error)
	// ReleaseStaleClaim moves completing -> processing when the lock is older than staleBefore.
	ReleaseStaleClaim(ctx context.Context, jobID string, staleBefore time.Time) (bool, error)
	// The remaining writes are made by the claim holder and only apply while
	// the job is completing under the claim taken at claimedAt.
	SaveResult(ctx context.Context, jobID string, claimedAt time.Time, result json.RawMessage) (bool, error)
	// RecordError stores failure text without changing status.
	RecordError(ctx context.Context, jobID string, claimedAt time.Time, errMsg string) (bool, error)
	// MarkCompleted moves completing -> completed and clears any recorded error.
	MarkCompleted(ctx context.Context, jobID string, claimedAt, completedAt time.Time) (bool, error)
	// MarkFailed moves completing -> failed.
	MarkFailed(ctx context.Context, jobID string, claimedAt time.Time, errMsg string, completedAt time.Time) (bool, error)
}

// ImageRepository handles persistence for generated images.
type ImageRepository interface {
	// Upsert inserts the image or, when its storage key already exists,
	// loads the existing row into img.
	Upsert(ctx context.Context, img *Image) error
	ListByJobID(ctx context.Context, jobID string) ([]Image, error)
	GetByID(ctx context.Context, imageID string) (*Image, error)
}
