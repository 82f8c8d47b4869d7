package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/citypulse/backend/internal/images"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13}

func newTestWorkflow(t *testing.T, assistantID string) (*Workflow, *httpmock.MockTransport) {
	t.Helper()
	client, mt := newMockClient(t)
	w := NewWorkflow(client, NewProvisioner(client, assistantID))
	w.Poller.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return w, mt
}

func registerThread(mt *httpmock.MockTransport, assistantID string) {
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/assistants/"+assistantID+"/threads",
		httpmock.NewStringResponder(http.StatusOK, `{"thread_id":"t1","created_at":"2026-05-01T10:00:00.123456"}`))
}

func TestWorkflowAnalyze(t *testing.T) {
	w, mt := newTestWorkflow(t, "a1")
	registerThread(mt, "a1")

	var uploaded struct {
		content, model string
		files          int
	}
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/threads/t1/messages", func(req *http.Request) (*http.Response, error) {
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		uploaded.content = req.FormValue("content")
		uploaded.model = req.FormValue("model_name")
		uploaded.files = len(req.MultipartForm.File["files"])
		return httpmock.NewStringResponse(http.StatusOK, `{"status":"ok"}`), nil
	})
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/threads/t1", sequence(
		threadJSON(t, message("assistant", "IN_PROGRESS", nil)),
		threadJSON(t, message("assistant", "COMPLETED", completedJSON)),
	))

	files := []images.Upload{
		{Filename: "a.png", ContentType: "image/png", Content: strings.NewReader(string(pngBytes))},
		{Content: strings.NewReader(string(pngBytes))},
	}
	res, err := w.Analyze(context.Background(), "Huge pothole on Main St", files)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.ThreadID != "t1" {
		t.Fatalf("unexpected thread %q", res.ThreadID)
	}
	if want := time.Date(2026, 5, 1, 10, 0, 0, 123456000, time.UTC); !res.CreationTime.Equal(want) {
		t.Fatalf("unexpected creation time %v", res.CreationTime)
	}
	if res.Analysis.Classification != "pothole" || res.Analysis.PriorityScore == nil || *res.Analysis.PriorityScore != 82 {
		t.Fatalf("unexpected analysis %+v", res.Analysis)
	}
	if uploaded.content != "Huge pothole on Main St" || uploaded.model != "gpt-5" || uploaded.files != 2 {
		t.Fatalf("unexpected upload %+v", uploaded)
	}
}

func TestWorkflowThreadCreateFailure(t *testing.T) {
	w, mt := newTestWorkflow(t, "a1")
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/assistants/a1/threads",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"detail":"down"}`))

	_, err := w.Analyze(context.Background(), "desc", nil)
	var wErr *WorkflowError
	if !errors.As(err, &wErr) || wErr.Stage != StageThreadPending {
		t.Fatalf("expected thread-pending workflow error, got %v", err)
	}
	var vErr *VendorError
	if !errors.As(err, &vErr) || vErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected vendor 500 in chain, got %v", err)
	}
	if n := mt.GetTotalCallCount(); n != 1 {
		t.Fatalf("thread creation must not be retried, got %d calls", n)
	}
}

func TestWorkflowForgetsUnknownAssistant(t *testing.T) {
	w, mt := newTestWorkflow(t, "")
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/assistants",
		httpmock.NewStringResponder(http.StatusOK, `[{"name":"CPAssistant","assistant_id":"stale"}]`))
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/assistants/stale/threads",
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"assistant not found"}`))

	for i := 0; i < 2; i++ {
		if _, err := w.Analyze(context.Background(), "desc", nil); err == nil {
			t.Fatalf("expected failure")
		}
	}
	info := mt.GetCallCountInfo()
	if n := info["GET "+testBaseURL+"/assistants"]; n != 2 {
		t.Fatalf("expected assistant lookup on every attempt after a 404, got %d", n)
	}
}

func TestWorkflowUploadFailureAborts(t *testing.T) {
	w, mt := newTestWorkflow(t, "a1")
	registerThread(mt, "a1")
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/threads/t1/messages",
		httpmock.NewStringResponder(http.StatusBadGateway, `bad gateway`))

	_, err := w.Analyze(context.Background(), "desc", nil)
	var wErr *WorkflowError
	if !errors.As(err, &wErr) || wErr.Stage != StageThreadCreated || wErr.ThreadID != "t1" {
		t.Fatalf("expected upload-stage workflow error, got %v", err)
	}
	if n := mt.GetCallCountInfo()["GET "+testBaseURL+"/threads/t1"]; n != 0 {
		t.Fatalf("must not poll after a failed upload, got %d polls", n)
	}
}

func TestWorkflowNoResult(t *testing.T) {
	w, mt := newTestWorkflow(t, "a1")
	registerThread(mt, "a1")
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/threads/t1/messages", httpmock.NewStringResponder(http.StatusOK, `{}`))
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/threads/t1", threadJSON(t, message("assistant", "FAILED", nil)))

	_, err := w.Analyze(context.Background(), "desc", nil)
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
	var wErr *WorkflowError
	if !errors.As(err, &wErr) || wErr.Stage != StageContentUploaded {
		t.Fatalf("expected content-uploaded stage, got %v", err)
	}
}

func TestWorkflowMissingThreadID(t *testing.T) {
	w, mt := newTestWorkflow(t, "a1")
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/assistants/a1/threads",
		httpmock.NewStringResponder(http.StatusOK, `{"created_at":"2026-05-01T10:00:00Z"}`))

	if _, err := w.Analyze(context.Background(), "desc", nil); !errors.Is(err, ErrMissingThread) {
		t.Fatalf("expected ErrMissingThread, got %v", err)
	}
}

func TestDecodeAnalysis(t *testing.T) {
	score := 10.0
	cases := []struct {
		name    string
		payload map[string]any
		wantErr bool
	}{
		{"classified", map[string]any{"classification": "icy_street", "severity": "low", "priority": "urgent", "priority_score": score}, false},
		{"clarification", map[string]any{"needs_clarification": true, "clarification": "Where exactly?"}, false},
		{"unknown classification", map[string]any{"classification": "ufo", "severity": "low", "priority": "urgent", "priority_score": score}, true},
		{"missing score", map[string]any{"classification": "icy_street", "severity": "low", "priority": "urgent"}, true},
		{"clarification without question", map[string]any{"classification": "icy_street", "severity": "low", "priority": "urgent", "priority_score": score, "needs_clarification": true}, true},
		{"empty", map[string]any{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeAnalysis(tc.payload)
			if tc.wantErr && !errors.Is(err, ErrIncomplete) {
				t.Fatalf("expected ErrIncomplete, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseVendorTime(t *testing.T) {
	cases := []struct {
		in   any
		want time.Time
		ok   bool
	}{
		{"2026-05-01T10:00:00Z", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"2026-05-01T12:00:00+02:00", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"2026-05-01 10:00:00", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{float64(1777629600), time.Unix(1777629600, 0).UTC(), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
		{nil, time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := parseVendorTime(tc.in)
		if ok != tc.ok || !got.Equal(tc.want) {
			t.Fatalf("parseVendorTime(%v) = %v, %v", tc.in, got, ok)
		}
	}
}

func TestMockAnalyzerIsDeterministic(t *testing.T) {
	a, err := MockAnalyzer{}.Analyze(context.Background(), "Overflowing bins behind the library", nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	b, _ := MockAnalyzer{}.Analyze(context.Background(), "Overflowing bins behind the library", nil)
	if a.Analysis.Classification != b.Analysis.Classification || *a.Analysis.PriorityScore != *b.Analysis.PriorityScore {
		t.Fatalf("mock verdict is not stable: %+v vs %+v", a.Analysis, b.Analysis)
	}
	if a.ThreadID == "" || a.CreationTime.IsZero() {
		t.Fatalf("mock result must carry thread metadata: %+v", a)
	}
	if _, err := DecodeAnalysis(map[string]any{
		"classification": a.Analysis.Classification,
		"severity":       a.Analysis.Severity,
		"priority":       a.Analysis.Priority,
		"priority_score": *a.Analysis.PriorityScore,
	}); err != nil {
		t.Fatalf("mock verdict fails validation: %v", err)
	}

	short, _ := MockAnalyzer{}.Analyze(context.Background(), "hole", nil)
	if !short.Analysis.NeedsClarification || short.Analysis.Clarification == "" {
		t.Fatalf("expected a clarification request for a terse report")
	}
}
