package generation

import (
	"encoding/json"
	"time"

	"genstudio/internal/domain"
)

// StatusView is the result of a status query. The concrete type tells the
// caller what to do next; JSON encoding carries a "status" discriminator.
type StatusView interface {
	Status() string
	isStatusView()
}

// Queued means the provider has not started the request.
type Queued struct {
	QueuePosition *int
}

// Processing means the provider is running the request.
type Processing struct {
	QueuePosition *int
	Logs          []string
	StartedAt     *time.Time
}

// ReadyToComplete means the provider finished and Complete should be called.
type ReadyToComplete struct{}

// Completing means another request holds the completion lock.
type Completing struct{}

// Completed carries the persisted images.
type Completed struct {
	Images []ImageResult
}

// Failed carries the stored failure text.
type Failed struct {
	Error string
}

func (Queued) Status() string          { return "queued" }
func (Processing) Status() string      { return "processing" }
func (ReadyToComplete) Status() string { return "ready_to_complete" }
func (Completing) Status() string      { return "completing" }
func (Completed) Status() string       { return "completed" }
func (Failed) Status() string          { return "failed" }

func (Queued) isStatusView()          {}
func (Processing) isStatusView()      {}
func (ReadyToComplete) isStatusView() {}
func (Completing) isStatusView()      {}
func (Completed) isStatusView()       {}
func (Failed) isStatusView()          {}

func (v Queued) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status        string `json:"status"`
		QueuePosition *int   `json:"queue_position,omitempty"`
	}{v.Status(), v.QueuePosition})
}

func (v Processing) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status        string     `json:"status"`
		QueuePosition *int       `json:"queue_position,omitempty"`
		Logs          []string   `json:"logs,omitempty"`
		StartedAt     *time.Time `json:"started_at,omitempty"`
	}{v.Status(), v.QueuePosition, v.Logs, v.StartedAt})
}

func (v ReadyToComplete) MarshalJSON() ([]byte, error) { return statusOnly(v) }

func (v Completing) MarshalJSON() ([]byte, error) { return statusOnly(v) }

func (v Completed) MarshalJSON() ([]byte, error) {
	images := v.Images
	if images == nil {
		images = []ImageResult{}
	}
	return json.Marshal(struct {
		Status string        `json:"status"`
		Images []ImageResult `json:"images"`
	}{v.Status(), images})
}

func (v Failed) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}{v.Status(), v.Error})
}

func statusOnly(v StatusView) ([]byte, error) {
	return json.Marshal(struct {
		Status string `json:"status"`
	}{v.Status()})
}

// ImageResult is an image as returned to API callers.
type ImageResult struct {
	ID            string    `json:"id"`
	JobID         *string   `json:"job_id,omitempty"`
	StorageKey    string    `json:"storage_key"`
	URL           string    `json:"url"`
	Width         *int      `json:"width,omitempty"`
	Height        *int      `json:"height,omitempty"`
	Prompt        string    `json:"prompt"`
	Model         string    `json:"model"`
	AspectRatio   string    `json:"aspect_ratio"`
	Resolution    string    `json:"resolution"`
	Type          string    `json:"type"`
	ParentImageID *string   `json:"parent_image_id,omitempty"`
	Cost          float64   `json:"cost"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToImageResult resolves the display URL of img through urlFor.
func ToImageResult(img domain.Image, urlFor func(string) string) ImageResult {
	return ImageResult{
		ID:            img.ID,
		JobID:         img.JobID,
		StorageKey:    img.StorageKey,
		URL:           urlFor(img.StorageKey),
		Width:         img.Width,
		Height:        img.Height,
		Prompt:        img.Prompt,
		Model:         img.Model,
		AspectRatio:   img.AspectRatio,
		Resolution:    img.Resolution,
		Type:          string(img.Type),
		ParentImageID: img.ParentImageID,
		Cost:          img.Cost,
		CreatedAt:     img.CreatedAt,
	}
}
