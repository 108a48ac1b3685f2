package domain

import (
	"encoding/json"
	"time"
)

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeGenerate JobType = "generate"
	JobTypeVary     JobType = "vary"
	JobTypeUpscale  JobType = "upscale"
	JobTypeRMBG     JobType = "rmbg"
)

// ImageType returns the image type produced by jobs of this type.
func (t JobType) ImageType() ImageType {
	switch t {
	case JobTypeVary:
		return ImageTypeVariation
	case JobTypeUpscale:
		return ImageTypeUpscale
	case JobTypeRMBG:
		return ImageTypeRMBG
	default:
		return ImageTypeGenerated
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleting JobStatus = "completing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Claimable reports whether a completion claim may be taken from this state.
func (s JobStatus) Claimable() bool {
	return s == JobStatusQueued || s == JobStatusProcessing
}

// Job encapsulates the lifecycle of a provider-side generation request.
type Job struct {
	ID                string
	Type              JobType
	Status            JobStatus
	ProviderRequestID string
	Endpoint          string
	Prompt            string
	Model             string
	AspectRatio       string
	Resolution        string
	NumImages         int
	ParentImageID     *string
	Input             json.RawMessage
	Result            json.RawMessage
	Error             string
	EstimatedCost     float64
	CreatedAt         time.Time
	StartedAt         *time.Time
	ClaimedAt         *time.Time
	CompletedAt       *time.Time
}

// LockSince returns the reference time used to age a completion lock: the
// claim time when recorded, otherwise the processing start, otherwise creation.
func (j *Job) LockSince() time.Time {
	switch {
	case j.ClaimedAt != nil:
		return *j.ClaimedAt
	case j.StartedAt != nil:
		return *j.StartedAt
	default:
		return j.CreatedAt
	}
}
