package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/citypulse/backend/internal/metrics"
)

const (
	DefaultBaseURL = "https://app.backboard.io/api"
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 4 << 20
)

type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Client talks to the Backboard assistant API. Every call carries its own
// timeout independent of the caller's context deadline.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewClient(config ClientConfig) *Client {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &Client{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
		logger:     config.Logger.With().Str("component", "backboard").Logger(),
		metrics:    config.Metrics,
	}
}

func (c *Client) Available() bool {
	return c.apiKey != ""
}

// do sends one request and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) do(ctx context.Context, endpoint, method, path string, body io.Reader, contentType string, out any) error {
	if !c.Available() {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &VendorError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveVendor(endpoint, 0, time.Since(start))
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("vendor request failed")
		return &VendorError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.ObserveVendor(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("vendor response read failed")
		return &VendorError{Endpoint: endpoint, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		redacted := Redact(string(raw), c.apiKey)
		c.logger.Error().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("response", redacted).
			Msg("vendor returned error status")
		return &VendorError{Endpoint: endpoint, Status: resp.StatusCode, Body: redacted}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		redacted := Redact(string(raw), c.apiKey)
		c.logger.Error().
			Err(err).
			Str("endpoint", endpoint).
			Str("response", redacted).
			Msg("vendor returned non-JSON body")
		return &VendorError{Endpoint: endpoint, Status: resp.StatusCode, Body: redacted, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Redact removes every occurrence of secret from s.
func Redact(s, secret string) string {
	if strings.TrimSpace(secret) == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[REDACTED]")
}
