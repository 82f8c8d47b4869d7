package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/citypulse/backend/internal/images"
	"github.com/citypulse/backend/internal/models"
)

// Analyzer runs one report through the assistant and returns its structured
// verdict. Any error means the report must not be persisted.
type Analyzer interface {
	Analyze(ctx context.Context, description string, files []images.Upload) (models.AnalysisResult, error)
}

var (
	ErrNotConfigured    = errors.New("assistant api key is not set")
	ErrNoResult         = errors.New("assistant produced no result")
	ErrMalformed        = errors.New("assistant returned malformed content")
	ErrIncomplete       = errors.New("assistant result is incomplete")
	ErrMissingThread    = errors.New("thread response is missing thread_id or created_at")
	ErrMissingAssistant = errors.New("assistant response is missing an id")
)

// VendorError describes a failed call to the assistant vendor. Body has the
// API key redacted.
type VendorError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *VendorError) Error() string {
	switch {
	case e.Err != nil && e.Status > 0:
		return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Status)
	}
}

func (e *VendorError) Unwrap() error { return e.Err }
