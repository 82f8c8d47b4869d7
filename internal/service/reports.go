package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/citypulse/backend/internal/ai"
	"github.com/citypulse/backend/internal/db"
	"github.com/citypulse/backend/internal/geocode"
	"github.com/citypulse/backend/internal/images"
	"github.com/citypulse/backend/internal/metrics"
	"github.com/citypulse/backend/internal/models"
	"github.com/citypulse/backend/internal/utils"
)

const (
	OutcomeCreated      = "created"
	OutcomeInvalid      = "invalid"
	OutcomeAIFailed     = "ai_failed"
	OutcomeStoreFailed  = "store_failed"
	defaultMatchRadiusM = 100.0
	geocodeTimeout      = 5 * time.Second
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrAnalysisFailed = errors.New("report analysis failed")
)

type ReportService struct {
	Store        db.ReportStore
	AI           ai.Analyzer
	Geocoder     geocode.Geocoder
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	MatchRadiusM float64
}

type NewReport struct {
	Title       string
	Description string
	Address     string
	City        string
	Latitude    *float64
	Longitude   *float64
	Images      []images.Upload
}

// Create validates the submission, runs the assistant round trip and only
// then persists the report. Nothing is written if any step before the
// insert fails.
func (s *ReportService) Create(ctx context.Context, in NewReport) (models.Report, error) {
	if err := validateNew(in); err != nil {
		s.Metrics.ReportSubmitted(OutcomeInvalid)
		return models.Report{}, err
	}
	if err := images.Validate(in.Images); err != nil {
		s.Metrics.ReportSubmitted(OutcomeInvalid)
		return models.Report{}, errors.Join(ErrInvalidInput, err)
	}

	result, err := s.AI.Analyze(ctx, in.Description, in.Images)
	if err == nil && (strings.TrimSpace(result.ThreadID) == "" || result.CreationTime.IsZero()) {
		err = ai.ErrMissingThread
	}
	if err != nil {
		s.Metrics.ReportSubmitted(OutcomeAIFailed)
		return models.Report{}, errors.Join(ErrAnalysisFailed, err)
	}

	r := models.Report{
		Title:              strings.TrimSpace(in.Title),
		Description:        strings.TrimSpace(in.Description),
		Address:            strings.TrimSpace(in.Address),
		City:               strings.TrimSpace(in.City),
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		Status:             models.StatusNew,
		ThreadID:           &result.ThreadID,
		NeedsClarification: result.Analysis.NeedsClarification,
		CreationTime:       result.CreationTime.UTC(),
	}
	a := result.Analysis
	r.Category = optional(a.Classification)
	r.Severity = optional(a.Severity)
	r.Priority = optional(a.Priority)
	r.PriorityScore = a.PriorityScore
	r.Clarification = optional(a.Clarification)

	s.fillCoordinates(ctx, &r)
	r.NbOfMatches = s.countMatches(ctx, r)

	if err := s.Store.CreateReport(ctx, &r); err != nil {
		s.Metrics.ReportSubmitted(OutcomeStoreFailed)
		s.Logger.Error().Err(err).Str("thread_id", result.ThreadID).Msg("failed to persist analyzed report")
		return models.Report{}, err
	}
	s.Metrics.ReportSubmitted(OutcomeCreated)
	s.Logger.Info().
		Str("report_id", r.ID.String()).
		Str("thread_id", result.ThreadID).
		Int("nb_of_matches", r.NbOfMatches).
		Msg("report created")
	return r, nil
}

func (s *ReportService) Get(ctx context.Context, id string) (models.Report, error) {
	return s.Store.GetReport(ctx, id)
}

func (s *ReportService) List(ctx context.Context, filter models.ListFilter) ([]models.Report, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	if filter.Category != "" && !models.OneOf(filter.Category, models.Classifications) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, filter.Category)
	}
	return s.Store.ListReports(ctx, filter)
}

// Update applies the set fields of patch; unset fields keep their values.
// An empty patch returns the stored report without writing.
func (s *ReportService) Update(ctx context.Context, id string, patch models.ReportPatch) (models.Report, error) {
	if patch.Empty() {
		return s.Store.GetReport(ctx, id)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return models.Report{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *patch.Status)
	}
	for name, v := range map[string]*string{"title": patch.Title, "description": patch.Description, "address": patch.Address, "city": patch.City} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return models.Report{}, fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, name)
		}
	}
	if err := validateCoordinates(patch.Latitude, patch.Longitude); err != nil {
		return models.Report{}, err
	}
	return s.Store.UpdateReport(ctx, id, patch)
}

func (s *ReportService) Delete(ctx context.Context, id string) (bool, error) {
	return s.Store.DeleteReport(ctx, id)
}

func (s *ReportService) Events(ctx context.Context, id string) (models.Report, []models.ReportEvent, error) {
	r, err := s.Store.GetReport(ctx, id)
	if err != nil {
		return models.Report{}, nil, err
	}
	events, err := s.Store.ListEvents(ctx, id)
	if err != nil {
		return models.Report{}, nil, err
	}
	return r, events, nil
}

func (s *ReportService) fillCoordinates(ctx context.Context, r *models.Report) {
	if s.Geocoder == nil || !geocode.ShouldGeocode(*r) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	query := geocode.BuildGeocodeQuery(r.Address, r.City)
	res, err := s.Geocoder.Geocode(ctx, query)
	if err != nil {
		s.Logger.Warn().Err(err).Str("query", query).Msg("geocode failed, keeping report without coordinates")
		return
	}
	r.Latitude = &res.Lat
	r.Longitude = &res.Lon
}

// countMatches counts unresolved reports of the same category within the
// match radius.
func (s *ReportService) countMatches(ctx context.Context, r models.Report) int {
	if r.Category == nil || r.Latitude == nil || r.Longitude == nil {
		return 0
	}
	radius := s.MatchRadiusM
	if radius <= 0 {
		radius = defaultMatchRadiusM
	}
	existing, err := s.Store.ListReports(ctx, models.ListFilter{Category: *r.Category})
	if err != nil {
		s.Logger.Warn().Err(err).Msg("match lookup failed")
		return 0
	}
	n := 0
	for _, other := range existing {
		if other.Status == models.StatusResolved {
			continue
		}
		if utils.Within(r.Latitude, r.Longitude, other.Latitude, other.Longitude, radius) {
			n++
		}
	}
	return n
}

func validateNew(in NewReport) error {
	for name, v := range map[string]string{"title": in.Title, "description": in.Description, "address": in.Address, "city": in.City} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
		}
	}
	if len(in.Images) == 0 {
		return fmt.Errorf("%w: at least one image is required", ErrInvalidInput)
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be provided together", ErrInvalidInput)
	}
	return validateCoordinates(in.Latitude, in.Longitude)
}

func validateCoordinates(lat, lon *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return fmt.Errorf("%w: latitude out of range", ErrInvalidInput)
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		return fmt.Errorf("%w: longitude out of range", ErrInvalidInput)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
