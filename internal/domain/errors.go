package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrProvider   = errors.New("provider failure")
	ErrConflict   = errors.New("conflict")
	ErrRetryable  = errors.New("retry later")
	ErrInvariant  = errors.New("invariant violated")
)

// ValidationError lists every rejected input field. Nothing is mutated when it
// is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError from formatted problems.
func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// ProviderError carries the upstream queue failure verbatim.
type ProviderError struct {
	Endpoint   string
	StatusCode int
	Message    string
	// Permanent marks final answers about the request itself: input rejected
	// upstream, or a finished request without output.
	Permanent bool
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("provider")
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " %s", e.Endpoint)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// IsPermanentProviderError reports whether err wraps a permanent ProviderError.
func IsPermanentProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}
