package tools

import (
	"errors"
	"fmt"

	"github.com/stitts-dev/pick-research/internal/models"
)

// ErrorKind classifies a failed tool call
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindBadResponse ErrorKind = "bad_response"
	// KindCanceled means the caller gave up (run cancelled or research
	// ceiling reached); it says nothing about the tool's health.
	KindCanceled ErrorKind = "canceled"
)

// ToolError is the only error type returned by the gateway. Callers treat it
// as a partial, per-query failure.
type ToolError struct {
	Kind   ErrorKind
	Tool   models.ToolKind
	Status int
	Err    error
}

func (e *ToolError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s tool %s (status %d): %v", e.Tool, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s tool %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Retryable reports whether one more attempt may succeed.
func (e *ToolError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindUnavailable
}

// KindOf extracts the ErrorKind from err, or "" when err is not a ToolError.
func KindOf(err error) ErrorKind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
