package domain

import "time"

// ImageType enumerates how an image was produced.
type ImageType string

const (
	ImageTypeGenerated ImageType = "generated"
	ImageTypeVariation ImageType = "variation"
	ImageTypeUpscale   ImageType = "upscale"
	ImageTypeRMBG      ImageType = "rmbg"
)

// Image is a persisted output artifact. Prompt, model, aspect ratio and
// resolution are copied from the job so gallery queries need no join.
type Image struct {
	ID            string
	JobID         *string
	StorageKey    string
	Width         *int
	Height        *int
	Prompt        string
	Model         string
	AspectRatio   string
	Resolution    string
	Type          ImageType
	ParentImageID *string
	Cost          float64
	CreatedAt     time.Time
}
