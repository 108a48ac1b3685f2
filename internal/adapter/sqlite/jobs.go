package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"genstudio/internal/domain"
)

// JobRepository implements domain.JobRepository on SQLite.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx, qJobInsert,
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
		nullableString(job.ParentImageID),
		nullableJSON(job.Input),
		job.EstimatedCost,
		formatTime(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, qJobGetByID, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	return r.transition(ctx, qJobMarkProcessing, formatTime(startedAt), jobID)
}

func (r *JobRepository) ClaimCompletion(ctx context.Context, jobID string, claimedAt time.Time) (bool, error) {
	return r.transition(ctx, qJobClaimCompletion, formatTime(claimedAt), jobID)
}

func (r *JobRepository) ReleaseStaleClaim(ctx context.Context, jobID string, staleBefore time.Time) (bool, error) {
	return r.transition(ctx, qJobReleaseStaleClaim, jobID, formatTime(staleBefore))
}

func (r *JobRepository) SaveResult(ctx context.Context, jobID string, claimedAt time.Time, result json.RawMessage) (bool, error) {
	return r.transition(ctx, qJobSaveResult, nullableJSON(result), jobID, formatTime(claimedAt))
}

func (r *JobRepository) RecordError(ctx context.Context, jobID string, claimedAt time.Time, errMsg string) (bool, error) {
	return r.transition(ctx, qJobRecordError, errMsg, jobID, formatTime(claimedAt))
}

func (r *JobRepository) MarkCompleted(ctx context.Context, jobID string, claimedAt, completedAt time.Time) (bool, error) {
	return r.transition(ctx, qJobMarkCompleted, formatTime(completedAt), jobID, formatTime(claimedAt))
}

func (r *JobRepository) MarkFailed(ctx context.Context, jobID string, claimedAt time.Time, errMsg string, completedAt time.Time) (bool, error) {
	return r.transition(ctx, qJobMarkFailed, errMsg, formatTime(completedAt), jobID, formatTime(claimedAt))
}

func (r *JobRepository) transition(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                               domain.Job
		jobType, status, createdAt        string
		parentID, input, result           sql.NullString
		startedAt, claimedAt, completedAt sql.NullString
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
		&parentID,
		&input,
		&result,
		&job.Error,
		&job.EstimatedCost,
		&createdAt,
		&startedAt,
		&claimedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	if parentID.Valid {
		job.ParentImageID = &parentID.String
	}
	if input.Valid && input.String != "" {
		job.Input = json.RawMessage(input.String)
	}
	if result.Valid && result.String != "" {
		job.Result = json.RawMessage(result.String)
	}

	var err error
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if job.ClaimedAt, err = parseNullableTime(claimedAt); err != nil {
		return nil, fmt.Errorf("parse claimed_at: %w", err)
	}
	if job.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &job, nil
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

var _ domain.JobRepository = (*JobRepository)(nil)
