package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.Exec(ctx, sqlinline.QJobInsert,
		job.ID,
		string(job.Type),
		string(job.Status),
		job.ProviderRequestID,
		job.Endpoint,
		job.Prompt,
		job.Model,
		job.AspectRatio,
		job.Resolution,
		job.NumImages,
		job.ParentImageID,
		nullableJSON(job.Input),
		job.EstimatedCost,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QJobGetByID, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	return r.transition(ctx, sqlinline.QJobMarkProcessing, jobID, startedAt)
}

func (r *JobRepositoryPG) ClaimCompletion(ctx context.Context, jobID string, claimedAt time.Time) (bool, error) {
	return r.transition(ctx, sqlinline.QJobClaimCompletion, jobID, claimedAt)
}

func (r *JobRepositoryPG) ReleaseStaleClaim(ctx context.Context, jobID string, staleBefore time.Time) (bool, error) {
	return r.transition(ctx, sqlinline.QJobReleaseStaleClaim, jobID, staleBefore)
}

func (r *JobRepositoryPG) SaveResult(ctx context.Context, jobID string, claimedAt time.Time, result json.RawMessage) (bool, error) {
	return r.transition(ctx, sqlinline.QJobSaveResult, jobID, claimedAt, nullableJSON(result))
}

func (r *JobRepositoryPG) RecordError(ctx context.Context, jobID string, claimedAt time.Time, errMsg string) (bool, error) {
	return r.transition(ctx, sqlinline.QJobRecordError, jobID, claimedAt, errMsg)
}

func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID string, claimedAt, completedAt time.Time) (bool, error) {
	return r.transition(ctx, sqlinline.QJobMarkCompleted, jobID, claimedAt, completedAt)
}

func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID string, claimedAt time.Time, errMsg string, completedAt time.Time) (bool, error) {
	return r.transition(ctx, sqlinline.QJobMarkFailed, jobID, claimedAt, errMsg, completedAt)
}

// transition runs a conditional update and reports whether the row moved.
func (r *JobRepositoryPG) transition(ctx context.Context, query string, args ...any) (bool, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job           domain.Job
		jobType       string
		status        string
		input, result []byte
	)
	if err := row.Scan(
		&job.ID,
		&jobType,
		&status,
		&job.ProviderRequestID,
		&job.Endpoint,
		&job.Prompt,
		&job.Model,
		&job.AspectRatio,
		&job.Resolution,
		&job.NumImages,
		&job.ParentImageID,
		&input,
		&result,
		&job.Error,
		&job.EstimatedCost,
		&job.CreatedAt,
		&job.StartedAt,
		&job.ClaimedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	if len(input) > 0 {
		job.Input = json.RawMessage(input)
	}
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	return &job, nil
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
