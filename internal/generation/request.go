package generation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"genstudio/internal/domain"
)

// SubmitRequest is a text-to-image request. Empty AspectRatio and Resolution
// take the defaults 1:1 and 1K; an absent NumImages means 1.
type SubmitRequest struct {
	Prompt             string   `json:"prompt" validate:"required,max=5000"`
	Model              string   `json:"model" validate:"required,oneof=nano-banana-pro seedream-v4 gpt-image-1 flux-2-pro"`
	AspectRatio        string   `json:"aspect_ratio" validate:"oneof=21:9 16:9 3:2 4:3 5:4 1:1 4:5 3:4 2:3 9:16"`
	Resolution         string   `json:"resolution" validate:"oneof=1K 2K 4K"`
	NumImages          *int     `json:"num_images,omitempty" validate:"omitempty,min=1,max=4"`
	ReferenceImageURLs []string `json:"reference_image_urls,omitempty" validate:"max=14,dive,http_url"`
	Transparent        bool     `json:"transparent,omitempty"`
	InputFidelity      string   `json:"input_fidelity,omitempty" validate:"omitempty,oneof=low high"`
}

// VaryRequest asks for variations of a stored image. Prompt and Model default
// to the parent image's values.
type VaryRequest struct {
	Prompt    string `json:"prompt,omitempty" validate:"max=5000"`
	Model     string `json:"model,omitempty" validate:"omitempty,oneof=nano-banana-pro seedream-v4 gpt-image-1 flux-2-pro"`
	NumImages *int   `json:"num_images,omitempty" validate:"omitempty,min=1,max=4"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func normalizePrompt(prompt string) string {
	return norm.NFC.String(strings.TrimSpace(prompt))
}

func (r *SubmitRequest) normalize() {
	r.Prompt = normalizePrompt(r.Prompt)
	r.Model = strings.TrimSpace(r.Model)
	if r.AspectRatio == "" {
		r.AspectRatio = "1:1"
	}
	if r.Resolution == "" {
		r.Resolution = "1K"
	}
	r.Resolution = strings.ToUpper(r.Resolution)
	if r.NumImages == nil {
		r.NumImages = intPtr(1)
	}
	for i, u := range r.ReferenceImageURLs {
		r.ReferenceImageURLs[i] = strings.TrimSpace(u)
	}
	r.InputFidelity = strings.ToLower(strings.TrimSpace(r.InputFidelity))
}

func (r *VaryRequest) normalize() {
	r.Prompt = normalizePrompt(r.Prompt)
	r.Model = strings.TrimSpace(r.Model)
	if r.NumImages == nil {
		r.NumImages = intPtr(1)
	}
}

func intPtr(v int) *int { return &v }

// check runs struct validation and converts failures into a domain.ValidationError.
func check(v *validator.Validate, req any, extra ...string) error {
	problems := append([]string(nil), extra...)
	if err := v.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate request: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return domain.NewValidationError(problems...)
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s entries", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "http_url":
		return field + " must be an absolute http(s) URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// fieldPath drops the struct name prefix: "SubmitRequest.reference_image_urls[0]"
// becomes "reference_image_urls[0]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}
