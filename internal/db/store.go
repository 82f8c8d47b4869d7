package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/citypulse/backend/internal/models"
)

var ErrNotFound = errors.New("report not found")

// ReportStore persists reports and their audit events.
//
// Report ids are taken in their string form, exactly as they arrive in a URL
// path; callers holding a uuid.UUID pass id.String(). Surrounding whitespace
// and letter case are ignored, and anything that does not parse as a UUID
// resolves to ErrNotFound (DeleteReport returns false, nil).
type ReportStore interface {
	Ping(ctx context.Context) error
	Close()
	Migrate(ctx context.Context) error

	CreateReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id string) (models.Report, error)
	ListReports(ctx context.Context, filter models.ListFilter) ([]models.Report, error)
	UpdateReport(ctx context.Context, id string, patch models.ReportPatch) (models.Report, error)
	DeleteReport(ctx context.Context, id string) (bool, error)

	AppendEvent(ctx context.Context, reportID string, eventType string, payload any) (models.ReportEvent, error)
	ListEvents(ctx context.Context, reportID string) ([]models.ReportEvent, error)
}

// Open picks the backend from the URL scheme: postgres:// and postgresql://
// use pgx, sqlite:// (or a bare :memory:) uses GORM on SQLite.
func Open(ctx context.Context, databaseURL string, logger zerolog.Logger) (ReportStore, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("driver", "postgres").Msg("database opened")
		return store, nil
	case strings.HasPrefix(databaseURL, "sqlite://"), databaseURL == ":memory:":
		store, err := NewGorm(strings.TrimPrefix(databaseURL, "sqlite://"), logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", schemeOf(databaseURL))
	}
}

func schemeOf(u string) string {
	if i := strings.Index(u, "://"); i > 0 {
		return u[:i]
	}
	return u
}

// ParseID resolves a raw report id. Malformed ids are reported as not found.
func ParseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return parsed, nil
}

type eventDraft struct {
	eventType string
	payload   any
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return b, nil
}

func createdEvent(r *models.Report) eventDraft {
	return eventDraft{
		eventType: models.EventCreated,
		payload: map[string]any{
			"thread_id":           r.ThreadID,
			"category":            r.Category,
			"severity":            r.Severity,
			"priority":            r.Priority,
			"needs_clarification": r.NeedsClarification,
		},
	}
}

// updateEvents describes what a patch changed; nothing is emitted for a patch
// that leaves the record as it was.
func updateEvents(before, after models.Report) []eventDraft {
	changed := map[string]any{}
	if before.Title != after.Title {
		changed["title"] = after.Title
	}
	if before.Description != after.Description {
		changed["description"] = after.Description
	}
	if before.Address != after.Address {
		changed["address"] = after.Address
	}
	if before.City != after.City {
		changed["city"] = after.City
	}
	if !sameFloat(before.Latitude, after.Latitude) {
		changed["latitude"] = after.Latitude
	}
	if !sameFloat(before.Longitude, after.Longitude) {
		changed["longitude"] = after.Longitude
	}

	var out []eventDraft
	if len(changed) > 0 {
		out = append(out, eventDraft{eventType: models.EventUpdated, payload: changed})
	}
	if before.Status != after.Status {
		out = append(out, eventDraft{
			eventType: models.EventStatusChanged,
			payload:   map[string]any{"from": before.Status, "to": after.Status},
		})
	}
	return out
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
