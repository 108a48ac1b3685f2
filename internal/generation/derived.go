package generation

import (
	"context"
	"fmt"

	"genstudio/internal/domain"
)

// Vary generates new images using a stored image as the reference.
func (c *Controller) Vary(ctx context.Context, imageID string, req VaryRequest) (*SubmitResult, error) {
	req.normalize()
	if err := check(c.validate, req); err != nil {
		return nil, err
	}
	parent, err := c.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}

	count := *req.NumImages

	modelID := req.Model
	if modelID == "" {
		modelID = parent.Model
	}
	model, ok := LookupModel(modelID)
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("model is required: source image was made by %q, which cannot create variations", parent.Model))
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = parent.Prompt
	}
	if prompt == "" {
		return nil, domain.NewValidationError("prompt is required when the source image has none")
	}
	aspect := orDefault(parent.AspectRatio, "1:1")
	resolution := orDefault(parent.Resolution, "1K")
	if _, ok := longEdge[resolution]; !ok {
		resolution = "1K"
	}

	endpoint, body := model.route(bodyParams{
		Prompt:      prompt,
		AspectRatio: aspect,
		Resolution:  resolution,
		NumImages:   count,
		References:  []string{c.objects.URL(parent.StorageKey)},
	})
	return c.enqueue(ctx, jobSpec{
		Type:          domain.JobTypeVary,
		Endpoint:      endpoint,
		Body:          body,
		Prompt:        prompt,
		Model:         model.ID,
		AspectRatio:   aspect,
		Resolution:    resolution,
		NumImages:     count,
		ParentImageID: &parent.ID,
		Request:       req,
		EstimatedCost: model.EstimateCost(resolution, count),
	})
}

// Upscale doubles the resolution of a stored image.
func (c *Controller) Upscale(ctx context.Context, imageID string) (*SubmitResult, error) {
	parent, err := c.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"image_url":      c.objects.URL(parent.StorageKey),
		"upscale_factor": 2,
	}
	if parent.Prompt != "" {
		body["prompt"] = parent.Prompt
	}
	return c.enqueue(ctx, jobSpec{
		Type:          domain.JobTypeUpscale,
		Endpoint:      upscaleEndpoint,
		Body:          body,
		Prompt:        parent.Prompt,
		Model:         upscaleModel,
		AspectRatio:   parent.AspectRatio,
		Resolution:    nextResolution(parent.Resolution),
		NumImages:     1,
		ParentImageID: &parent.ID,
		Request:       map[string]string{"image_id": parent.ID},
		EstimatedCost: upscalePrice,
	})
}

// RemoveBackground cuts the subject of a stored image out onto transparency.
func (c *Controller) RemoveBackground(ctx context.Context, imageID string) (*SubmitResult, error) {
	parent, err := c.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	return c.enqueue(ctx, jobSpec{
		Type:          domain.JobTypeRMBG,
		Endpoint:      rmbgEndpoint,
		Body:          map[string]any{"image_url": c.objects.URL(parent.StorageKey)},
		Prompt:        parent.Prompt,
		Model:         rmbgModel,
		AspectRatio:   parent.AspectRatio,
		Resolution:    parent.Resolution,
		NumImages:     1,
		ParentImageID: &parent.ID,
		Request:       map[string]string{"image_id": parent.ID},
		EstimatedCost: rmbgPrice,
	})
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
