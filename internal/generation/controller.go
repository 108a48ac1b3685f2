// Package generation drives image generation jobs from submission through
// provider polling to persisted results.
//
// Completion uses a claim held in the job row: a single conditional update
// moves the job into the completing state, and only the caller whose update
// changed the row fetches, uploads and persists results. Claims older than
// the lock TTL are released by the next caller, which gets ErrRetryable.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/events"
	"genstudio/internal/providers/falqueue"
	"genstudio/internal/storage"
)

// DefaultLockTTL is how long a completion claim is honoured before it is
// considered abandoned.
const DefaultLockTTL = 60 * time.Second

// ProviderQueue is the hosted inference queue.
type ProviderQueue interface {
	Submit(ctx context.Context, endpoint string, body any) (string, error)
	Status(ctx context.Context, endpoint, requestID string) (*falqueue.QueueStatus, error)
	Result(ctx context.Context, endpoint, requestID string) (*falqueue.QueueResult, error)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Jobs    domain.JobRepository
	Images  domain.ImageRepository
	Queue   ProviderQueue
	Objects storage.ObjectStore
	Events  events.Publisher
	Logger  zerolog.Logger
	Clock   func() time.Time
	NewID   func() string
}

// Options tune controller behaviour.
type Options struct {
	LockTTL time.Duration
}

// Controller implements submit, status and complete for generation jobs.
type Controller struct {
	jobs     domain.JobRepository
	images   domain.ImageRepository
	queue    ProviderQueue
	objects  storage.ObjectStore
	events   events.Publisher
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
	lockTTL  time.Duration
	validate *validator.Validate
}

// NewController wires a controller. Jobs, Images, Queue and Objects are required.
func NewController(deps Deps, opts Options) (*Controller, error) {
	if deps.Jobs == nil || deps.Images == nil || deps.Queue == nil || deps.Objects == nil {
		return nil, errors.New("generation: jobs, images, queue and objects are required")
	}
	c := &Controller{
		jobs:     deps.Jobs,
		images:   deps.Images,
		queue:    deps.Queue,
		objects:  deps.Objects,
		events:   deps.Events,
		logger:   deps.Logger,
		now:      deps.Clock,
		newID:    deps.NewID,
		lockTTL:  opts.LockTTL,
		validate: newValidator(),
	}
	if c.events == nil {
		c.events = events.Nop{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = newUUID
	}
	if c.lockTTL <= 0 {
		c.lockTTL = DefaultLockTTL
	}
	return c, nil
}

// Status reports the job state, refreshing it from the provider while the job
// is queued or processing. It never persists results.
func (c *Controller) Status(ctx context.Context, jobID string) (StatusView, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case domain.JobStatusCompleted:
		images, err := c.jobImages(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		return Completed{Images: images}, nil
	case domain.JobStatusFailed:
		return Failed{Error: job.Error}, nil
	case domain.JobStatusCompleting:
		return Completing{}, nil
	case domain.JobStatusQueued, domain.JobStatusProcessing:
	default:
		c.logger.Error().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("generation: unexpected stored status")
		return nil, fmt.Errorf("job %s has status %q: %w", job.ID, job.Status, domain.ErrInvariant)
	}

	live, err := c.queue.Status(ctx, job.Endpoint, job.ProviderRequestID)
	if err != nil {
		return nil, fmt.Errorf("poll provider: %w", err)
	}

	switch live.State {
	case falqueue.StateDone:
		return ReadyToComplete{}, nil
	case falqueue.StateRunning:
		startedAt := job.StartedAt
		if job.Status == domain.JobStatusQueued {
			startedAt, err = c.markProcessing(ctx, job)
			if err != nil {
				return nil, err
			}
		}
		return Processing{QueuePosition: live.QueuePosition, Logs: live.Logs, StartedAt: startedAt}, nil
	default:
		return Queued{QueuePosition: live.QueuePosition}, nil
	}
}

// markProcessing moves a queued job to processing. When a concurrent poller
// already did so, the stored start time is returned instead.
func (c *Controller) markProcessing(ctx context.Context, job *domain.Job) (*time.Time, error) {
	now := c.now()
	moved, err := c.jobs.MarkProcessing(ctx, job.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	if moved {
		c.events.Publish(ctx, events.JobEvent{Type: events.TypeProcessing, JobID: job.ID, Status: string(domain.JobStatusProcessing), At: now})
		return &now, nil
	}
	current, err := c.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	return current.StartedAt, nil
}

// Complete persists the provider result of a finished job exactly once.
// Concurrent callers receive the persisted images, domain.ErrConflict while a
// live claim is held elsewhere, or domain.ErrRetryable after releasing a
// stale claim.
func (c *Controller) Complete(ctx context.Context, jobID string) ([]ImageResult, error) {
	// The claim time identifies this claim in later writes, so it must survive
	// a round trip through either store unchanged.
	claimedAt := c.now().UTC().Truncate(time.Microsecond)
	claimed, err := c.jobs.ClaimCompletion(ctx, jobID, claimedAt)
	if err != nil {
		return nil, fmt.Errorf("claim completion: %w", err)
	}
	if !claimed {
		return c.resolveLostClaim(ctx, jobID)
	}
	return c.finish(ctx, jobID, claimedAt)
}

func (c *Controller) resolveLostClaim(ctx context.Context, jobID string) ([]ImageResult, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	log := c.logger.With().Str("job_id", job.ID).Logger()

	switch job.Status {
	case domain.JobStatusCompleted:
		return c.jobImages(ctx, job.ID)
	case domain.JobStatusCompleting:
		now := c.now()
		age := now.Sub(job.LockSince())
		if age <= c.lockTTL {
			return nil, fmt.Errorf("job %s is being completed by another request: %w", job.ID, domain.ErrConflict)
		}
		released, err := c.jobs.ReleaseStaleClaim(ctx, job.ID, now.Add(-c.lockTTL))
		if err != nil {
			return nil, fmt.Errorf("release stale claim: %w", err)
		}
		log.Warn().Dur("lock_age", age).Bool("released", released).Str("last_error", job.Error).Msg("generation: stale completion lock")
		return nil, fmt.Errorf("job %s completion lock expired after %s: %w", job.ID, age.Round(time.Second), domain.ErrRetryable)
	default:
		log.Error().Str("status", string(job.Status)).Msg("generation: complete called in unexpected state")
		return nil, fmt.Errorf("job %s has status %q: %w", job.ID, job.Status, domain.ErrInvariant)
	}
}

// finish runs with the claim taken at claimedAt held.
func (c *Controller) finish(ctx context.Context, jobID string, claimedAt time.Time) ([]ImageResult, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	log := c.logger.With().Str("job_id", job.ID).Str("endpoint", job.Endpoint).Logger()

	result, err := c.queue.Result(ctx, job.Endpoint, job.ProviderRequestID)
	if err != nil {
		return nil, c.abandon(ctx, job, claimedAt, fmt.Errorf("fetch result: %w", err))
	}
	saved, err := c.jobs.SaveResult(ctx, job.ID, claimedAt, result.Raw)
	if err != nil {
		return nil, c.abandon(ctx, job, claimedAt, err)
	}
	if !saved {
		return nil, c.lostClaim(log, job.ID)
	}

	share := 0.0
	if n := len(result.Artifacts); n > 0 {
		share = job.EstimatedCost / float64(n)
	}
	createdAt := c.now()
	images := make([]ImageResult, 0, len(result.Artifacts))
	for i, art := range result.Artifacts {
		key := storage.ImageKey(job.ID, i, storage.ExtensionFor(art.ContentType, art.URL))
		obj, err := c.objects.UploadFromURL(ctx, art.URL, key, imageMetadata(job, share, createdAt))
		if err != nil {
			return nil, c.abandon(ctx, job, claimedAt, fmt.Errorf("upload image %d: %w", i+1, err))
		}
		img := &domain.Image{
			ID:            c.newID(),
			JobID:         &job.ID,
			StorageKey:    obj.Key,
			Width:         positive(art.Width),
			Height:        positive(art.Height),
			Prompt:        job.Prompt,
			Model:         job.Model,
			AspectRatio:   job.AspectRatio,
			Resolution:    job.Resolution,
			Type:          job.Type.ImageType(),
			ParentImageID: job.ParentImageID,
			Cost:          share,
			CreatedAt:     createdAt,
		}
		if err := c.images.Upsert(ctx, img); err != nil {
			return nil, c.abandon(ctx, job, claimedAt, fmt.Errorf("persist image %d: %w", i+1, err))
		}
		images = append(images, ToImageResult(*img, c.objects.URL))
	}

	completedAt := c.now()
	moved, err := c.jobs.MarkCompleted(ctx, job.ID, claimedAt, completedAt)
	if err != nil {
		return nil, c.abandon(ctx, job, claimedAt, err)
	}
	if !moved {
		return nil, c.lostClaim(log, job.ID)
	}

	log.Info().Int("images", len(images)).Msg("generation: job completed")
	c.events.Publish(ctx, events.JobEvent{
		Type:       events.TypeCompleted,
		JobID:      job.ID,
		Status:     string(domain.JobStatusCompleted),
		ImageCount: len(images),
		At:         completedAt,
	})
	return images, nil
}

// lostClaim reports a claim that was released and possibly retaken by another
// caller while this one was still working.
func (c *Controller) lostClaim(log zerolog.Logger, jobID string) error {
	log.Warn().Msg("generation: completion lock lost before commit")
	return fmt.Errorf("job %s lost its completion lock: %w", jobID, domain.ErrRetryable)
}

// abandon handles a failure while the claim is held. Only a final provider
// answer (input rejected or no output) fails the job; anything else leaves it
// completing with the reason recorded, to be reclaimed once the lock goes stale.
func (c *Controller) abandon(ctx context.Context, job *domain.Job, claimedAt time.Time, cause error) error {
	ctx = context.WithoutCancel(ctx)
	log := c.logger.With().Str("job_id", job.ID).Logger()

	if domain.IsPermanentProviderError(cause) {
		now := c.now()
		moved, err := c.jobs.MarkFailed(ctx, job.ID, claimedAt, cause.Error(), now)
		if err != nil {
			log.Error().Err(err).Msg("generation: mark failed")
			return cause
		}
		if moved {
			log.Warn().Err(cause).Msg("generation: job failed")
			c.events.Publish(ctx, events.JobEvent{Type: events.TypeFailed, JobID: job.ID, Status: string(domain.JobStatusFailed), Error: cause.Error(), At: now})
		}
		return cause
	}

	if _, err := c.jobs.RecordError(ctx, job.ID, claimedAt, cause.Error()); err != nil {
		log.Error().Err(err).Msg("generation: record error")
	}
	log.Error().Err(cause).Msg("generation: completion interrupted")
	return cause
}

func (c *Controller) jobImages(ctx context.Context, jobID string) ([]ImageResult, error) {
	rows, err := c.images.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	out := make([]ImageResult, 0, len(rows))
	for _, img := range rows {
		out = append(out, ToImageResult(img, c.objects.URL))
	}
	return out, nil
}

func imageMetadata(job *domain.Job, share float64, at time.Time) storage.Metadata {
	return storage.Metadata{
		"job-id":       job.ID,
		"prompt":       job.Prompt,
		"model":        job.Model,
		"aspect-ratio": job.AspectRatio,
		"resolution":   job.Resolution,
		"cost":         fmt.Sprintf("%.4f", share),
		"source":       "fal-queue/" + string(job.Type),
		"generated-at": at.UTC().Format(time.RFC3339),
	}
}

func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
