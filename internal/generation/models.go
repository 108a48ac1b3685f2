package generation

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Model describes a text-to-image model reachable through the queue.
type Model struct {
	ID           string             `json:"id"`
	DisplayName  string             `json:"display_name"`
	Endpoint     string             `json:"endpoint"`
	EditEndpoint string             `json:"edit_endpoint"`
	Transparent  bool               `json:"supports_transparency"`
	PricePerImg  map[string]float64 `json:"price_per_image"`
	buildBody    func(p bodyParams) map[string]any
}

const (
	upscaleEndpoint = "fal-ai/clarity-upscaler"
	rmbgEndpoint    = "fal-ai/bria/background/remove"
	upscaleModel    = "clarity-upscaler"
	rmbgModel       = "bria-rmbg"
	upscalePrice    = 0.05
	rmbgPrice       = 0.018
)

type bodyParams struct {
	Prompt        string
	AspectRatio   string
	Resolution    string
	NumImages     int
	References    []string
	Transparent   bool
	InputFidelity string
}

var titleCaser = cases.Title(language.English)

func displayName(id string) string {
	return titleCaser.String(strings.ReplaceAll(id, "-", " "))
}

func newModel(id, endpoint, edit string, transparent bool, prices map[string]float64, build func(bodyParams) map[string]any) Model {
	return Model{
		ID:           id,
		DisplayName:  displayName(id),
		Endpoint:     endpoint,
		EditEndpoint: edit,
		Transparent:  transparent,
		PricePerImg:  prices,
		buildBody:    build,
	}
}

var modelCatalog = map[string]Model{
	"nano-banana-pro": newModel("nano-banana-pro", "fal-ai/nano-banana-pro", "fal-ai/nano-banana-pro/edit", false,
		map[string]float64{"1K": 0.15, "2K": 0.15, "4K": 0.30},
		func(p bodyParams) map[string]any {
			body := map[string]any{
				"prompt":        p.Prompt,
				"num_images":    p.NumImages,
				"aspect_ratio":  p.AspectRatio,
				"resolution":    p.Resolution,
				"output_format": "png",
			}
			if len(p.References) > 0 {
				body["image_urls"] = p.References
			}
			return body
		}),
	"seedream-v4": newModel("seedream-v4", "fal-ai/bytedance/seedream/v4/text-to-image", "fal-ai/bytedance/seedream/v4/edit", false,
		map[string]float64{"1K": 0.03, "2K": 0.03, "4K": 0.03},
		func(p bodyParams) map[string]any {
			w, h := Dimensions(p.AspectRatio, p.Resolution)
			body := map[string]any{
				"prompt":     p.Prompt,
				"num_images": p.NumImages,
				"image_size": map[string]int{"width": w, "height": h},
			}
			if len(p.References) > 0 {
				body["image_urls"] = p.References
			}
			return body
		}),
	"gpt-image-1": newModel("gpt-image-1", "fal-ai/gpt-image-1/text-to-image", "fal-ai/gpt-image-1/edit-image", true,
		map[string]float64{"1K": 0.04, "2K": 0.06, "4K": 0.08},
		func(p bodyParams) map[string]any {
			body := map[string]any{
				"prompt":     p.Prompt,
				"num_images": p.NumImages,
				"image_size": gptImageSize(p.AspectRatio),
				"quality":    "high",
			}
			if p.Transparent {
				body["background"] = "transparent"
				body["output_format"] = "png"
			}
			if len(p.References) > 0 {
				body["image_urls"] = p.References
				if p.InputFidelity != "" {
					body["input_fidelity"] = p.InputFidelity
				}
			}
			return body
		}),
	"flux-2-pro": newModel("flux-2-pro", "fal-ai/flux-2-pro", "fal-ai/flux-2-pro/edit", false,
		map[string]float64{"1K": 0.03, "2K": 0.06, "4K": 0.12},
		func(p bodyParams) map[string]any {
			w, h := Dimensions(p.AspectRatio, p.Resolution)
			body := map[string]any{
				"prompt":        p.Prompt,
				"num_images":    p.NumImages,
				"image_size":    map[string]int{"width": w, "height": h},
				"output_format": "png",
			}
			if len(p.References) > 0 {
				body["image_urls"] = p.References
			}
			return body
		}),
}

// Models lists the supported generation models ordered by id.
func Models() []Model {
	out := make([]Model, 0, len(modelCatalog))
	for _, m := range modelCatalog {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LookupModel returns the catalog entry for id.
func LookupModel(id string) (Model, bool) {
	m, ok := modelCatalog[id]
	return m, ok
}

// route returns the endpoint and provider body for a request.
func (m Model) route(p bodyParams) (string, map[string]any) {
	endpoint := m.Endpoint
	if len(p.References) > 0 {
		endpoint = m.EditEndpoint
	}
	return endpoint, m.buildBody(p)
}

// EstimateCost returns the expected charge for count images.
func (m Model) EstimateCost(resolution string, count int) float64 {
	return m.PricePerImg[resolution] * float64(count)
}

var longEdge = map[string]int{"1K": 1024, "2K": 2048, "4K": 4096}

// Dimensions converts an aspect ratio and resolution tier into pixel sizes.
// The long edge matches the tier and both sides are multiples of 16.
func Dimensions(aspect, resolution string) (int, int) {
	edge, ok := longEdge[resolution]
	if !ok {
		edge = 1024
	}
	w, h := parseAspect(aspect)
	if w >= h {
		return edge, roundTo16(edge * h / w)
	}
	return roundTo16(edge * w / h), edge
}

func parseAspect(aspect string) (int, int) {
	left, right, ok := strings.Cut(aspect, ":")
	if !ok {
		return 1, 1
	}
	w, errW := strconv.Atoi(left)
	h, errH := strconv.Atoi(right)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 1, 1
	}
	return w, h
}

func roundTo16(v int) int {
	r := (v + 8) / 16 * 16
	if r < 16 {
		return 16
	}
	return r
}

func gptImageSize(aspect string) string {
	w, h := parseAspect(aspect)
	switch {
	case w == h:
		return "1024x1024"
	case w > h:
		return "1536x1024"
	default:
		return "1024x1536"
	}
}

func nextResolution(res string) string {
	switch res {
	case "1K":
		return "2K"
	default:
		return "4K"
	}
}
