package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"genstudio/internal/domain"
	"genstudio/internal/events"
)

// SubmitResult identifies the job created for an accepted request.
type SubmitResult struct {
	JobID         string  `json:"job_id"`
	Status        string  `json:"status"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// jobSpec is everything needed to enqueue a job and record it.
type jobSpec struct {
	Type          domain.JobType
	Endpoint      string
	Body          map[string]any
	Prompt        string
	Model         string
	AspectRatio   string
	Resolution    string
	NumImages     int
	ParentImageID *string
	Request       any
	EstimatedCost float64
}

// Submit validates req, enqueues it with the provider and records a queued
// job. Nothing is written when validation or the provider call fails.
func (c *Controller) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	req.normalize()
	var extra []string
	model, known := LookupModel(req.Model)
	if known && req.Transparent && !model.Transparent {
		extra = append(extra, fmt.Sprintf("transparent is not supported by %s", model.ID))
	}
	if err := check(c.validate, req, extra...); err != nil {
		return nil, err
	}
	count := *req.NumImages

	endpoint, body := model.route(bodyParams{
		Prompt:        req.Prompt,
		AspectRatio:   req.AspectRatio,
		Resolution:    req.Resolution,
		NumImages:     count,
		References:    req.ReferenceImageURLs,
		Transparent:   req.Transparent,
		InputFidelity: req.InputFidelity,
	})
	return c.enqueue(ctx, jobSpec{
		Type:          domain.JobTypeGenerate,
		Endpoint:      endpoint,
		Body:          body,
		Prompt:        req.Prompt,
		Model:         model.ID,
		AspectRatio:   req.AspectRatio,
		Resolution:    req.Resolution,
		NumImages:     count,
		Request:       req,
		EstimatedCost: model.EstimateCost(req.Resolution, count),
	})
}

func (c *Controller) enqueue(ctx context.Context, spec jobSpec) (*SubmitResult, error) {
	requestID, err := c.queue.Submit(ctx, spec.Endpoint, spec.Body)
	if err != nil {
		return nil, fmt.Errorf("submit to provider: %w", err)
	}

	input, err := json.Marshal(struct {
		Request any            `json:"request"`
		Body    map[string]any `json:"body"`
	}{spec.Request, spec.Body})
	if err != nil {
		return nil, fmt.Errorf("encode job input: %w", err)
	}

	now := c.now()
	job := &domain.Job{
		ID:                c.newID(),
		Type:              spec.Type,
		Status:            domain.JobStatusQueued,
		ProviderRequestID: requestID,
		Endpoint:          spec.Endpoint,
		Prompt:            spec.Prompt,
		Model:             spec.Model,
		AspectRatio:       spec.AspectRatio,
		Resolution:        spec.Resolution,
		NumImages:         spec.NumImages,
		ParentImageID:     spec.ParentImageID,
		Input:             input,
		EstimatedCost:     spec.EstimatedCost,
		CreatedAt:         now,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		c.logger.Error().Err(err).Str("request_id", requestID).Str("endpoint", spec.Endpoint).Msg("generation: provider request orphaned")
		return nil, err
	}

	c.logger.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Str("endpoint", job.Endpoint).
		Str("request_id", requestID).
		Msg("generation: job queued")
	c.events.Publish(ctx, events.JobEvent{Type: events.TypeSubmitted, JobID: job.ID, Status: string(job.Status), At: now})
	return &SubmitResult{JobID: job.ID, Status: string(job.Status), EstimatedCost: job.EstimatedCost}, nil
}

func newUUID() string {
	return uuid.NewString()
}
