package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
)

func TestEnsureUsesConfiguredID(t *testing.T) {
	client, mt := newMockClient(t)
	p := NewProvisioner(client, " asst_configured ")

	id, err := p.Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if id != "asst_configured" {
		t.Fatalf("unexpected id %q", id)
	}
	if n := mt.GetTotalCallCount(); n != 0 {
		t.Fatalf("expected no vendor calls, got %d", n)
	}
}

func TestEnsureWithoutKey(t *testing.T) {
	client := NewClient(ClientConfig{Logger: zerolog.Nop()})
	if _, err := NewProvisioner(client, "asst_1").Ensure(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestEnsureFindsExistingAndCaches(t *testing.T) {
	client, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/assistants", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("X-API-Key") != testAPIKey {
			return httpmock.NewStringResponse(http.StatusUnauthorized, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK,
			`{"assistants":[{"name":"Other","assistant_id":"x"},{"name":"CPAssistant","assistant_id":"asst_found"}]}`), nil
	})
	p := NewProvisioner(client, "")

	for i := 0; i < 2; i++ {
		id, err := p.Ensure(context.Background())
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}
		if id != "asst_found" {
			t.Fatalf("unexpected id %q", id)
		}
	}
	if n := mt.GetTotalCallCount(); n != 1 {
		t.Fatalf("expected one list call, got %d", n)
	}

	p.Forget()
	if _, err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure after forget: %v", err)
	}
	if n := mt.GetTotalCallCount(); n != 2 {
		t.Fatalf("expected a fresh lookup after Forget, got %d calls", n)
	}
}

func TestEnsureCreatesWhenMissing(t *testing.T) {
	client, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/assistants",
		httpmock.NewStringResponder(http.StatusOK, `[{"name":"Other","id":"x"}]`))

	var created map[string]any
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/assistants", func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &created); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"assistant_id":"asst_new"}`), nil
	})

	id, err := NewProvisioner(client, "").Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if id != "asst_new" {
		t.Fatalf("unexpected id %q", id)
	}
	if created["name"] != AssistantName || created["embedding_dims"] != float64(3072) {
		t.Fatalf("unexpected assistant definition: %v", created)
	}
	tools, _ := created["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected one tool, got %v", created["tools"])
	}
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != ToolName {
		t.Fatalf("unexpected tool name %v", fn["name"])
	}
}

func TestEnsureCreateWithoutID(t *testing.T) {
	client, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/assistants", httpmock.NewStringResponder(http.StatusOK, `{"data":[]}`))
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/assistants", httpmock.NewStringResponder(http.StatusOK, `{}`))

	if _, err := NewProvisioner(client, "").Ensure(context.Background()); !errors.Is(err, ErrMissingAssistant) {
		t.Fatalf("expected ErrMissingAssistant, got %v", err)
	}
}

func TestVendorErrorBodyIsRedacted(t *testing.T) {
	client, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/assistants",
		httpmock.NewStringResponder(http.StatusForbidden, `{"detail":"key `+testAPIKey+` is revoked"}`))

	_, err := NewProvisioner(client, "").Ensure(context.Background())
	var vErr *VendorError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected VendorError, got %v", err)
	}
	if vErr.Status != http.StatusForbidden || vErr.Endpoint != "list_assistants" {
		t.Fatalf("unexpected vendor error: %+v", vErr)
	}
	if strings.Contains(vErr.Body, testAPIKey) || !strings.Contains(vErr.Body, "[REDACTED]") {
		t.Fatalf("body not redacted: %q", vErr.Body)
	}
	if strings.Contains(err.Error(), testAPIKey) {
		t.Fatalf("error string leaks key: %v", err)
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("a secret b secret", "secret"); got != "a [REDACTED] b [REDACTED]" {
		t.Fatalf("unexpected redaction %q", got)
	}
	if got := Redact("nothing to hide", " "); got != "nothing to hide" {
		t.Fatalf("blank secret must not redact: %q", got)
	}
}
