package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/citypulse/backend/internal/db"
	"github.com/citypulse/backend/internal/images"
	"github.com/citypulse/backend/internal/models"
	"github.com/citypulse/backend/internal/service"
)

const ServiceName = "citypulse-backend"

type Handler struct {
	Store          db.ReportStore
	Reports        *service.ReportService
	Validator      *validator.Validate
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

// CreateReportForm holds the text fields of a multipart report submission.
// Coordinates stay raw so that a blank input means "not provided".
type CreateReportForm struct {
	Title       string `form:"title" validate:"required,max=200"`
	Description string `form:"description" validate:"required,max=5000"`
	Address     string `form:"address" validate:"required,max=300"`
	City        string `form:"city" validate:"required,max=120"`
	Latitude    string `form:"latitude"`
	Longitude   string `form:"longitude"`
}

// ReportUpdate replaces the mutable fields of a report. ReportID must match
// the id in the path.
type ReportUpdate struct {
	ReportID    string               `json:"report_id" validate:"required,uuid"`
	Title       *string              `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string              `json:"description,omitempty" validate:"omitempty,min=1,max=5000"`
	Status      *models.ReportStatus `json:"status,omitempty"`
	Address     *string              `json:"address,omitempty" validate:"omitempty,min=1,max=300"`
	City        *string              `json:"city,omitempty" validate:"omitempty,min=1,max=120"`
	Latitude    *float64             `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64             `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

type ReportStatusUpdate struct {
	Status models.ReportStatus `json:"status" validate:"required"`
}

type ReportWithEvents struct {
	models.Report
	Events []models.ReportEvent `json:"events"`
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]any
// @Router /health [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "CityPulse API", "docs": "/swagger/index.html"})
}

// @Summary Submit a report
// @Description Analyzes the description and images with the assistant, then stores the enriched report
// @Tags reports
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string true "Description"
// @Param address formData string true "Street address"
// @Param city formData string true "City"
// @Param latitude formData number false "Latitude"
// @Param longitude formData number false "Longitude"
// @Param images formData file true "1 to 3 images (jpeg, png, gif, webp)"
// @Success 201 {object} models.Report
// @Failure 400 {object} map[string]any
// @Failure 502 {object} map[string]any
// @Router /reports [post]
func (h *Handler) CreateReport(c *gin.Context) {
	var form CreateReportForm
	if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart form", err.Error())
		return
	}
	if err := h.Validator.Struct(form); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	lat, err := parseCoordinate("latitude", form.Latitude)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	lon, err := parseCoordinate("longitude", form.Longitude)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	mf, err := c.MultipartForm()
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart form", err.Error())
		return
	}
	headers := mf.File["images"]
	if len(headers) > images.MaxImages {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Too many images", gin.H{"max": images.MaxImages})
		return
	}
	uploads, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Could not read uploaded image", err.Error())
		return
	}

	ctx := c.Request.Context()
	if h.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RequestTimeout)
		defer cancel()
	}

	report, err := h.Reports.Create(ctx, service.NewReport{
		Title:       form.Title,
		Description: form.Description,
		Address:     form.Address,
		City:        form.City,
		Latitude:    lat,
		Longitude:   lon,
		Images:      uploads,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// @Summary List reports
// @Tags reports
// @Produce json
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Success 200 {array} models.Report
// @Router /reports [get]
func (h *Handler) ListReports(c *gin.Context) {
	filter := models.ListFilter{
		Status:   models.ReportStatus(strings.TrimSpace(c.Query("status"))),
		Category: strings.TrimSpace(c.Query("category")),
	}
	items, err := h.Reports.List(c.Request.Context(), filter)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if items == nil {
		items = []models.Report{}
	}
	c.JSON(http.StatusOK, items)
}

// @Summary Get a report
// @Tags reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} models.Report
// @Failure 404 {object} map[string]any
// @Router /reports/{id} [get]
func (h *Handler) GetReport(c *gin.Context) {
	report, err := h.Reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary Report with its events
// @Tags reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} ReportWithEvents
// @Failure 404 {object} map[string]any
// @Router /reports/{id}/events [get]
func (h *Handler) ReportEvents(c *gin.Context) {
	report, events, err := h.Reports.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if events == nil {
		events = []models.ReportEvent{}
	}
	c.JSON(http.StatusOK, ReportWithEvents{Report: report, Events: events})
}

// @Summary Update a report
// @Tags reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body ReportUpdate true "Fields to replace"
// @Success 200 {object} models.Report
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /reports/{id} [put]
func (h *Handler) UpdateReport(c *gin.Context) {
	id := c.Param("id")
	var req ReportUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if !strings.EqualFold(strings.TrimSpace(req.ReportID), strings.TrimSpace(id)) {
		writeError(c, http.StatusBadRequest, "ID_MISMATCH", "report_id does not match the report in the path", nil)
		return
	}

	report, err := h.Reports.Update(c.Request.Context(), id, models.ReportPatch{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Address:     req.Address,
		City:        req.City,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary Change report status
// @Tags reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body ReportStatusUpdate true "New status"
// @Success 200 {object} models.Report
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /reports/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req ReportStatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	report, err := h.Reports.Update(c.Request.Context(), c.Param("id"), models.ReportPatch{Status: &req.Status})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary Delete a report
// @Tags reports
// @Param id path string true "Report ID"
// @Success 204
// @Failure 404 {object} map[string]any
// @Router /reports/{id} [delete]
func (h *Handler) DeleteReport(c *gin.Context) {
	ok, err := h.Reports.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", flatten(err))
	case errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
	case errors.Is(err, service.ErrAnalysisFailed):
		_ = c.Error(err)
		h.Logger.Warn().Err(err).Msg("report analysis failed")
		writeError(c, http.StatusBadGateway, "AI_UNAVAILABLE", "Report analysis failed, please retry later", nil)
	default:
		_ = c.Error(err)
		h.Logger.Error().Err(err).Msg("storage error")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Internal storage error", nil)
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// openUploads opens every file header; the returned close func is always
// safe to call.
func openUploads(headers []*multipart.FileHeader) ([]images.Upload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	uploads := make([]images.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		opened = append(opened, f)
		uploads = append(uploads, images.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     f,
		})
	}
	return uploads, closeAll, nil
}

// parseCoordinate reads an optional form coordinate; blank is nil. Range
// checks happen in the service.
func parseCoordinate(name, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%s must be a number, got %q", name, raw)
	}
	return &v, nil
}

// flatten turns a joined error chain into a single line for API clients.
func flatten(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", ": ")
}
