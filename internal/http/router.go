package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/citypulse/backend/internal/config"
	"github.com/citypulse/backend/internal/db"
	"github.com/citypulse/backend/internal/http/handlers"
	"github.com/citypulse/backend/internal/http/middleware"
	"github.com/citypulse/backend/internal/metrics"
	"github.com/citypulse/backend/internal/service"

	_ "github.com/citypulse/backend/docs"
)

func Router(cfg config.Config, store db.ReportStore, reports *service.ReportService, m *metrics.Metrics, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger, m))
	r.Use(gin.Recovery())
	if cfg.SentryDSN != "" {
		r.Use(middleware.Sentry())
	}
	r.MaxMultipartMemory = cfg.MaxUploadMB << 20

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		ExposeHeaders: []string{"X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if origins := splitOrigins(cfg.CORSAllowed); len(origins) == 0 || origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:          store,
		Reports:        reports,
		Validator:      validator.New(),
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	}

	r.GET("/", h.Root)
	r.GET("/health", h.Healthz)
	r.GET("/healthz", h.Healthz)

	r.POST("/reports", middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst), h.CreateReport)
	r.GET("/reports", h.ListReports)
	r.GET("/reports/:id", h.GetReport)
	r.GET("/reports/:id/events", h.ReportEvents)

	admin := r.Group("/reports")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.PUT("/:id", h.UpdateReport)
		admin.PATCH("/:id/status", h.UpdateStatus)
		admin.DELETE("/:id", h.DeleteReport)
	}

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
