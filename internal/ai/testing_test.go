package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
)

const (
	testBaseURL = "https://vendor.test/api"
	testAPIKey  = "bb-test-key-123"
)

func newMockClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	client := NewClient(ClientConfig{
		APIKey:     testAPIKey,
		BaseURL:    testBaseURL,
		Timeout:    2 * time.Second,
		HTTPClient: &http.Client{Transport: mt},
		Logger:     zerolog.Nop(),
	})
	return client, mt
}

// sequence answers with each responder in turn and repeats the last one.
func sequence(responders ...httpmock.Responder) httpmock.Responder {
	i := 0
	return func(req *http.Request) (*http.Response, error) {
		r := responders[i]
		if i < len(responders)-1 {
			i++
		}
		return r(req)
	}
}

func threadJSON(t *testing.T, messages ...map[string]any) httpmock.Responder {
	t.Helper()
	if messages == nil {
		messages = []map[string]any{}
	}
	body, err := json.Marshal(map[string]any{"thread_id": "t1", "messages": messages})
	if err != nil {
		t.Fatalf("marshal thread: %v", err)
	}
	return httpmock.NewBytesResponder(http.StatusOK, body)
}

func message(role, status string, content any) map[string]any {
	return map[string]any{"role": role, "status": status, "content": content}
}

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *recordingSleep) total() time.Duration {
	var sum time.Duration
	for _, d := range r.delays {
		sum += d
	}
	return sum
}
