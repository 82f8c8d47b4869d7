package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citypulse/backend/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the Postgres ReportStore.
type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, name := range names {
			sql, err := migrations.ReadFile("migrations/" + name)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
		}
		return nil
	})
}

const reportColumns = `id, title, description, address, city, latitude, longitude, status,
	thread_id, category, severity, priority, priority_score, needs_clarification, clarification,
	nb_of_matches, creation_time, created_at, updated_at`

func scanReport(row pgx.Row) (models.Report, error) {
	var r models.Report
	var status string
	err := row.Scan(
		&r.ID, &r.Title, &r.Description, &r.Address, &r.City, &r.Latitude, &r.Longitude, &status,
		&r.ThreadID, &r.Category, &r.Severity, &r.Priority, &r.PriorityScore, &r.NeedsClarification, &r.Clarification,
		&r.NbOfMatches, &r.CreationTime, &r.CreatedAt, &r.UpdatedAt,
	)
	r.Status = models.ReportStatus(status)
	return r, err
}

func (s *Store) CreateReport(ctx context.Context, r *models.Report) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	if r.Status == "" {
		r.Status = models.StatusNew
	}

	return s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO reports (`+reportColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		`, r.ID, r.Title, r.Description, r.Address, r.City, r.Latitude, r.Longitude, string(r.Status),
			r.ThreadID, r.Category, r.Severity, r.Priority, r.PriorityScore, r.NeedsClarification, r.Clarification,
			r.NbOfMatches, r.CreationTime, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = s.insertEvent(ctx, tx, r.ID, createdEvent(r))
		return err
	})
}

func (s *Store) GetReport(ctx context.Context, id string) (models.Report, error) {
	rid, err := ParseID(id)
	if err != nil {
		return models.Report{}, err
	}
	r, err := scanReport(s.Pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, rid))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Report{}, ErrNotFound
	}
	return r, err
}

func (s *Store) ListReports(ctx context.Context, filter models.ListFilter) ([]models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	var args []any
	var wheres []string
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		wheres = append(wheres, fmt.Sprintf("category = $%d", len(args)))
	}
	for i, w := range wheres {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateReport(ctx context.Context, id string, patch models.ReportPatch) (models.Report, error) {
	rid, err := ParseID(id)
	if err != nil {
		return models.Report{}, err
	}

	var updated models.Report
	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		before, err := scanReport(tx.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1 FOR UPDATE`, rid))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		updated = before
		patch.Apply(&updated)
		events := updateEvents(before, updated)
		if len(events) == 0 {
			return nil
		}
		updated.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx, `
			UPDATE reports
			SET title = $1, description = $2, status = $3, address = $4, city = $5,
				latitude = $6, longitude = $7, updated_at = $8
			WHERE id = $9
		`, updated.Title, updated.Description, string(updated.Status), updated.Address, updated.City,
			updated.Latitude, updated.Longitude, updated.UpdatedAt, rid)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if _, err := s.insertEvent(ctx, tx, rid, ev); err != nil {
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

func (s *Store) DeleteReport(ctx context.Context, id string) (bool, error) {
	rid, err := ParseID(id)
	if err != nil {
		return false, nil
	}
	tag, err := s.Pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, rid)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) AppendEvent(ctx context.Context, reportID string, eventType string, payload any) (models.ReportEvent, error) {
	rid, err := ParseID(reportID)
	if err != nil {
		return models.ReportEvent{}, err
	}
	var ev models.ReportEvent
	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, rid).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		ev, err = s.insertEvent(ctx, tx, rid, eventDraft{eventType: eventType, payload: payload})
		return err
	})
	return ev, err
}

func (s *Store) ListEvents(ctx context.Context, reportID string) ([]models.ReportEvent, error) {
	rid, err := ParseID(reportID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, report_id, event_type, payload, created_at
		FROM report_events WHERE report_id = $1
		ORDER BY created_at ASC
	`, rid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ReportEvent{}
	for rows.Next() {
		var ev models.ReportEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.ReportID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) insertEvent(ctx context.Context, tx pgx.Tx, reportID uuid.UUID, draft eventDraft) (models.ReportEvent, error) {
	payload, err := encodePayload(draft.payload)
	if err != nil {
		return models.ReportEvent{}, err
	}
	ev := models.ReportEvent{
		ID:        uuid.New(),
		ReportID:  reportID,
		EventType: draft.eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO report_events (id, report_id, event_type, payload, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, ev.ID, ev.ReportID, ev.EventType, payload, ev.CreatedAt)
	return ev, err
}
