package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/citypulse/backend/internal/images"
	"github.com/citypulse/backend/internal/models"
)

// Stage is a step of the per-report vendor round trip:
// ThreadPending -> ThreadCreated -> ContentUploaded -> ResultReady. A failure
// at any step surfaces as a WorkflowError carrying the last stage reached.
type Stage int

const (
	StageThreadPending Stage = iota
	StageThreadCreated
	StageContentUploaded
	StageResultReady
)

func (s Stage) String() string {
	switch s {
	case StageThreadPending:
		return "thread_pending"
	case StageThreadCreated:
		return "thread_created"
	case StageContentUploaded:
		return "content_uploaded"
	case StageResultReady:
		return "result_ready"
	default:
		return "unknown"
	}
}

// WorkflowError records the stage the round trip was in when it failed.
type WorkflowError struct {
	Stage    Stage
	ThreadID string
	Err      error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("assistant workflow failed in %s: %v", e.Stage, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// Workflow is the Backboard-backed Analyzer.
type Workflow struct {
	Client      *Client
	Provisioner *Provisioner
	Poller      *Poller
}

func NewWorkflow(client *Client, provisioner *Provisioner) *Workflow {
	return &Workflow{
		Client:      client,
		Provisioner: provisioner,
		Poller:      NewPoller(client),
	}
}

func (w *Workflow) Analyze(ctx context.Context, description string, files []images.Upload) (models.AnalysisResult, error) {
	stage := StageThreadPending
	fail := func(threadID string, err error) (models.AnalysisResult, error) {
		w.Client.logger.Error().Err(err).Str("stage", stage.String()).Str("thread_id", threadID).Msg("report analysis failed")
		return models.AnalysisResult{}, &WorkflowError{Stage: stage, ThreadID: threadID, Err: err}
	}

	assistantID, err := w.Provisioner.Ensure(ctx)
	if err != nil {
		return fail("", err)
	}

	thread, err := w.Client.CreateThread(ctx, assistantID)
	if err != nil {
		var vErr *VendorError
		if errors.As(err, &vErr) && vErr.Status == http.StatusNotFound {
			w.Provisioner.Forget()
		}
		return fail("", err)
	}
	stage = StageThreadCreated

	if err := w.Client.UploadMessage(ctx, thread.ID, description, files); err != nil {
		return fail(thread.ID, err)
	}
	stage = StageContentUploaded

	res, err := w.Poller.Poll(ctx, thread.ID)
	if err != nil {
		return fail(thread.ID, err)
	}
	if res.Payload == nil {
		return fail(thread.ID, fmt.Errorf("%w: %s after %d attempts", ErrNoResult, res.Decision, res.Attempts))
	}

	analysis, err := DecodeAnalysis(res.Payload)
	if err != nil {
		return fail(thread.ID, err)
	}

	w.Client.logger.Info().
		Str("thread_id", thread.ID).
		Str("stage", StageResultReady.String()).
		Int("attempts", res.Attempts).
		Str("classification", analysis.Classification).
		Bool("needs_clarification", analysis.NeedsClarification).
		Msg("report analyzed")

	return models.AnalysisResult{
		ThreadID:     thread.ID,
		CreationTime: thread.CreatedAt,
		Analysis:     analysis,
	}, nil
}

// DecodeAnalysis converts the tool payload into an Analysis and enforces that
// it is either fully classified or asks for clarification.
func DecodeAnalysis(payload map[string]any) (models.Analysis, error) {
	var a models.Analysis
	a.Classification, _ = payload["classification"].(string)
	a.Severity, _ = payload["severity"].(string)
	a.Priority, _ = payload["priority"].(string)
	if score, ok := payload["priority_score"].(float64); ok {
		a.PriorityScore = &score
	}
	a.NeedsClarification, _ = payload["needs_clarification"].(bool)
	if s, ok := payload["clarification"].(string); ok {
		a.Clarification = strings.TrimSpace(s)
	}

	if a.Classification != "" && !models.OneOf(a.Classification, models.Classifications) {
		return models.Analysis{}, fmt.Errorf("%w: unknown classification %q", ErrIncomplete, a.Classification)
	}
	if a.Severity != "" && !models.OneOf(a.Severity, models.Severities) {
		return models.Analysis{}, fmt.Errorf("%w: unknown severity %q", ErrIncomplete, a.Severity)
	}
	if a.Priority != "" && !models.OneOf(a.Priority, models.Priorities) {
		return models.Analysis{}, fmt.Errorf("%w: unknown priority %q", ErrIncomplete, a.Priority)
	}

	classified := a.Classification != "" && a.Severity != "" && a.Priority != "" && a.PriorityScore != nil
	clarifying := a.NeedsClarification && a.Clarification != ""
	if !classified && !clarifying {
		return models.Analysis{}, fmt.Errorf("%w: missing classification fields", ErrIncomplete)
	}
	if a.NeedsClarification && a.Clarification == "" {
		return models.Analysis{}, fmt.Errorf("%w: clarification requested without a question", ErrIncomplete)
	}
	return a, nil
}
