package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/citypulse/backend/internal/models"
)

const (
	AssistantName = "CPAssistant"
	ToolName      = "analyze_report"

	resolvedIDTTL = time.Hour
)

// Provisioner makes sure the CPAssistant configuration exists at the vendor.
// A configured id always wins; otherwise the id found by listing (or minted by
// creating) is cached for resolvedIDTTL.
type Provisioner struct {
	client     *Client
	configured string
	name       string

	mu    sync.Mutex
	cache *gocache.Cache
}

func NewProvisioner(client *Client, assistantID string) *Provisioner {
	return &Provisioner{
		client:     client,
		configured: strings.TrimSpace(assistantID),
		name:       AssistantName,
		cache:      gocache.New(resolvedIDTTL, 10*time.Minute),
	}
}

func (p *Provisioner) Ensure(ctx context.Context) (string, error) {
	if !p.client.Available() {
		p.client.logger.Error().Msg("BACKBOARD_API_KEY is not set")
		return "", ErrNotConfigured
	}
	if p.configured != "" {
		return p.configured, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.cache.Get(p.name); ok {
		return id.(string), nil
	}

	id, err := p.findExisting(ctx)
	if err != nil {
		return "", err
	}
	if id != "" {
		p.client.logger.Info().Str("assistant_id", id).Msg("reusing existing assistant")
		p.cache.SetDefault(p.name, id)
		return id, nil
	}

	id, err = p.create(ctx)
	if err != nil {
		return "", err
	}
	p.client.logger.Info().Str("assistant_id", id).Msg("assistant created")
	p.cache.SetDefault(p.name, id)
	return id, nil
}

// Forget drops the cached id so the next Ensure looks it up again.
func (p *Provisioner) Forget() {
	p.cache.Delete(p.name)
}

func (p *Provisioner) findExisting(ctx context.Context) (string, error) {
	var payload any
	if err := p.client.do(ctx, "list_assistants", http.MethodGet, "/assistants", nil, "", &payload); err != nil {
		return "", err
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, key := range []string{"assistants", "data", "items"} {
			if list, ok := v[key].([]any); ok && len(list) > 0 {
				items = list
				break
			}
		}
	}

	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := m["name"].(string); name != p.name {
			continue
		}
		if id := idField(m, "assistant_id", "id"); id != "" {
			return id, nil
		}
	}
	return "", nil
}

func (p *Provisioner) create(ctx context.Context) (string, error) {
	body, err := json.Marshal(assistantDefinition(p.name))
	if err != nil {
		return "", fmt.Errorf("marshal assistant definition: %w", err)
	}

	var resp map[string]any
	if err := p.client.do(ctx, "create_assistant", http.MethodPost, "/assistants", bytes.NewReader(body), "application/json", &resp); err != nil {
		return "", err
	}
	id := idField(resp, "assistant_id", "id")
	if id == "" {
		p.client.logger.Error().Msg("assistant creation response has no id")
		return "", ErrMissingAssistant
	}
	return id, nil
}

func idField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func assistantDefinition(name string) map[string]any {
	return map[string]any{
		"name": name,
		"description": "Analyzes civic issues reported by citizens and defines report " +
			"field for usage by city staff",
		"tools": []any{
			map[string]any{
				"type": "function",
				"function": map[string]any{
					"name": ToolName,
					"description": "Construct the finalized report object with all the necessary fields " +
						"before it gets added to the database",
					"parameters": analysisSchema(),
				},
			},
		},
		"embedding_provider":   "openai",
		"embedding_model_name": "text-embedding-3-large",
		"embedding_dims":       3072,
	}
}

func analysisSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"classification": map[string]any{
				"type":        "string",
				"description": "Category of the issue reported by the user",
				"enum":        models.Classifications,
			},
			"severity": map[string]any{
				"type":        "string",
				"description": "Level of severity of the issue reported by the user",
				"enum":        models.Severities,
			},
			"priority": map[string]any{
				"type":        "string",
				"description": "Level of urgency of the issue reported by the user (i.e how quickly the report should be addressed)",
				"enum":        models.Priorities,
			},
			"priority_score": map[string]any{
				"type": "number",
				"description": "A number between 0 and 100 representing the level of priority of the report " +
					"(greater score means that it is more urgent and has greater priority)",
			},
			"needs_clarification": map[string]any{
				"type":        "boolean",
				"description": "True if the information given by the user is not clear or not enough (ex: image blurred, scarce description)",
			},
			"clarification": map[string]any{
				"type":        "string",
				"description": "If needs_clarification is True, ask a simple question or multiple simple questions to clarify",
			},
		},
		"required": []string{"classification", "severity", "priority", "priority_score", "needs_clarification"},
		"if": map[string]any{
			"properties": map[string]any{
				"needs_clarification": map[string]any{"const": true},
			},
			"required": []string{"needs_clarification"},
		},
		"then": map[string]any{
			"required": []string{"clarification"},
		},
	}
}
