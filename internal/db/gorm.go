package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/citypulse/backend/internal/models"
)

type reportRow struct {
	ID                 string    `gorm:"primaryKey;type:text"`
	Title              string    `gorm:"not null"`
	Description        string    `gorm:"not null"`
	Address            string    `gorm:"not null"`
	City               string    `gorm:"not null"`
	Latitude           *float64
	Longitude          *float64
	Status             string    `gorm:"not null;index;default:New"`
	ThreadID           *string   `gorm:"uniqueIndex"`
	Category           *string   `gorm:"index"`
	Severity           *string
	Priority           *string
	PriorityScore      *float64
	NeedsClarification bool      `gorm:"not null;default:false"`
	Clarification      *string
	NbOfMatches        int       `gorm:"not null;default:0"`
	CreationTime       time.Time `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null;index"`
	UpdatedAt          time.Time `gorm:"not null"`

	Events []eventRow `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE"`
}

func (reportRow) TableName() string { return "reports" }

type eventRow struct {
	ID        string    `gorm:"primaryKey;type:text"`
	ReportID  string    `gorm:"not null;index"`
	EventType string    `gorm:"not null"`
	Payload   string    `gorm:"not null;default:'{}'"`
	CreatedAt time.Time `gorm:"not null"`
}

func (eventRow) TableName() string { return "report_events" }

func toRow(r *models.Report) reportRow {
	return reportRow{
		ID:                 r.ID.String(),
		Title:              r.Title,
		Description:        r.Description,
		Address:            r.Address,
		City:               r.City,
		Latitude:           r.Latitude,
		Longitude:          r.Longitude,
		Status:             string(r.Status),
		ThreadID:           r.ThreadID,
		Category:           r.Category,
		Severity:           r.Severity,
		Priority:           r.Priority,
		PriorityScore:      r.PriorityScore,
		NeedsClarification: r.NeedsClarification,
		Clarification:      r.Clarification,
		NbOfMatches:        r.NbOfMatches,
		CreationTime:       r.CreationTime,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (row reportRow) toModel() models.Report {
	return models.Report{
		ID:                 uuid.MustParse(row.ID),
		Title:              row.Title,
		Description:        row.Description,
		Address:            row.Address,
		City:               row.City,
		Latitude:           row.Latitude,
		Longitude:          row.Longitude,
		Status:             models.ReportStatus(row.Status),
		ThreadID:           row.ThreadID,
		Category:           row.Category,
		Severity:           row.Severity,
		Priority:           row.Priority,
		PriorityScore:      row.PriorityScore,
		NeedsClarification: row.NeedsClarification,
		Clarification:      row.Clarification,
		NbOfMatches:        row.NbOfMatches,
		CreationTime:       row.CreationTime.UTC(),
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}
}

func (row eventRow) toModel() models.ReportEvent {
	return models.ReportEvent{
		ID:        uuid.MustParse(row.ID),
		ReportID:  uuid.MustParse(row.ReportID),
		EventType: row.EventType,
		Payload:   []byte(row.Payload),
		CreatedAt: row.CreatedAt.UTC(),
	}
}

// GormStore is the ReportStore used with SQLite for local runs and tests.
type GormStore struct {
	DB *gorm.DB
}

// NewGorm opens a SQLite database at path (":memory:" for a private
// in-memory database) and creates its directory if needed.
func NewGorm(path string, logger zerolog.Logger) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
			}
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)"
	}
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	logger.Info().Str("driver", "sqlite").Str("path", path).Msg("database opened")
	return &GormStore{DB: db}, nil
}

func (s *GormStore) Close() {
	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Migrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(&reportRow{}, &eventRow{})
}

func (s *GormStore) CreateReport(ctx context.Context, r *models.Report) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	if r.Status == "" {
		r.Status = models.StatusNew
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toRow(r)
		if err := tx.Omit("Events").Create(&row).Error; err != nil {
			return err
		}
		_, err := insertEventRow(tx, r.ID.String(), createdEvent(r))
		return err
	})
}

func (s *GormStore) GetReport(ctx context.Context, id string) (models.Report, error) {
	rid, err := ParseID(id)
	if err != nil {
		return models.Report{}, err
	}
	var row reportRow
	err = s.DB.WithContext(ctx).First(&row, "id = ?", rid.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Report{}, ErrNotFound
	}
	if err != nil {
		return models.Report{}, err
	}
	return row.toModel(), nil
}

func (s *GormStore) ListReports(ctx context.Context, filter models.ListFilter) ([]models.Report, error) {
	q := s.DB.WithContext(ctx).Model(&reportRow{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	var rows []reportRow
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Report, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (s *GormStore) UpdateReport(ctx context.Context, id string, patch models.ReportPatch) (models.Report, error) {
	rid, err := ParseID(id)
	if err != nil {
		return models.Report{}, err
	}

	var updated models.Report
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row reportRow
		if err := tx.First(&row, "id = ?", rid.String()).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		before := row.toModel()
		updated = before
		patch.Apply(&updated)
		events := updateEvents(before, updated)
		if len(events) == 0 {
			return nil
		}
		updated.UpdatedAt = time.Now().UTC()

		err := tx.Model(&reportRow{}).Where("id = ?", rid.String()).Updates(map[string]any{
			"title":       updated.Title,
			"description": updated.Description,
			"status":      string(updated.Status),
			"address":     updated.Address,
			"city":        updated.City,
			"latitude":    updated.Latitude,
			"longitude":   updated.Longitude,
			"updated_at":  updated.UpdatedAt,
		}).Error
		if err != nil {
			return err
		}
		for _, ev := range events {
			if _, err := insertEventRow(tx, rid.String(), ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Report{}, err
	}
	return updated, nil
}

func (s *GormStore) DeleteReport(ctx context.Context, id string) (bool, error) {
	rid, err := ParseID(id)
	if err != nil {
		return false, nil
	}
	var deleted bool
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_id = ?", rid.String()).Delete(&eventRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", rid.String()).Delete(&reportRow{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

func (s *GormStore) AppendEvent(ctx context.Context, reportID string, eventType string, payload any) (models.ReportEvent, error) {
	rid, err := ParseID(reportID)
	if err != nil {
		return models.ReportEvent{}, err
	}
	var ev models.ReportEvent
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&reportRow{}).Where("id = ?", rid.String()).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		ev, err = insertEventRow(tx, rid.String(), eventDraft{eventType: eventType, payload: payload})
		return err
	})
	return ev, err
}

func (s *GormStore) ListEvents(ctx context.Context, reportID string) ([]models.ReportEvent, error) {
	rid, err := ParseID(reportID)
	if err != nil {
		return nil, err
	}
	var rows []eventRow
	if err := s.DB.WithContext(ctx).Where("report_id = ?", rid.String()).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.ReportEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func insertEventRow(tx *gorm.DB, reportID string, draft eventDraft) (models.ReportEvent, error) {
	payload, err := encodePayload(draft.payload)
	if err != nil {
		return models.ReportEvent{}, err
	}
	row := eventRow{
		ID:        uuid.NewString(),
		ReportID:  reportID,
		EventType: draft.eventType,
		Payload:   string(payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return models.ReportEvent{}, err
	}
	return row.toModel(), nil
}
