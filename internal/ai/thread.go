package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/citypulse/backend/internal/images"
)

// Fixed message parameters sent with every report upload.
var uploadParams = [][2]string{
	{"llm_provider", "openai"},
	{"model_name", "gpt-5"},
	{"stream", "false"},
	{"memory", "Auto"},
	{"web_search", "off"},
	{"send_to_llm", "true"},
	{"metadata", ""},
}

type Thread struct {
	ID        string
	CreatedAt time.Time
}

type threadMessage struct {
	Role    string          `json:"role"`
	Status  string          `json:"status"`
	Content json.RawMessage `json:"content"`
}

type threadState struct {
	ThreadID string          `json:"thread_id"`
	Messages []threadMessage `json:"messages"`
}

func (c *Client) CreateThread(ctx context.Context, assistantID string) (Thread, error) {
	var resp struct {
		ThreadID  string `json:"thread_id"`
		CreatedAt any    `json:"created_at"`
	}
	path := "/assistants/" + url.PathEscape(assistantID) + "/threads"
	if err := c.do(ctx, "create_thread", http.MethodPost, path, strings.NewReader("{}"), "application/json", &resp); err != nil {
		return Thread{}, err
	}
	if strings.TrimSpace(resp.ThreadID) == "" {
		c.logger.Error().Msg("thread response has no thread_id")
		return Thread{}, ErrMissingThread
	}
	created, ok := parseVendorTime(resp.CreatedAt)
	if !ok {
		c.logger.Error().Str("thread_id", resp.ThreadID).Msg("thread response has no usable created_at")
		return Thread{}, ErrMissingThread
	}
	return Thread{ID: resp.ThreadID, CreatedAt: created}, nil
}

// UploadMessage posts the report text and its images to the thread as one
// multipart request. Readers are consumed and then rewound.
func (c *Client) UploadMessage(ctx context.Context, threadID, content string, files []images.Upload) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("content", content); err != nil {
		return fmt.Errorf("write content field: %w", err)
	}
	for _, p := range uploadParams {
		if err := w.WriteField(p[0], p[1]); err != nil {
			return fmt.Errorf("write %s field: %w", p[0], err)
		}
	}
	for i, f := range files {
		name := f.Filename
		if name == "" {
			name = "image-" + strconv.Itoa(i+1) + ".jpg"
		}
		ct := f.ContentType
		if ct == "" {
			ct = "image/jpeg"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("create file part: %w", err)
		}
		if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind %q: %w", name, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return fmt.Errorf("copy %q: %w", name, err)
		}
		_, _ = f.Content.Seek(0, io.SeekStart)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	return c.do(ctx, "upload_message", http.MethodPost, path, &buf, w.FormDataContentType(), nil)
}

func (c *Client) GetThread(ctx context.Context, threadID string) (threadState, error) {
	var state threadState
	path := "/threads/" + url.PathEscape(threadID)
	err := c.do(ctx, "get_thread", http.MethodGet, path, nil, "", &state)
	return state, err
}

var vendorTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseVendorTime accepts ISO-8601 strings (with or without zone, zone-less
// values are UTC) and unix seconds.
func parseVendorTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range vendorTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		sec := int64(t)
		nsec := int64((t - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), true
	default:
		return time.Time{}, false
	}
}
