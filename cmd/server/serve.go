package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/citypulse/backend/internal/ai"
	"github.com/citypulse/backend/internal/config"
	"github.com/citypulse/backend/internal/db"
	"github.com/citypulse/backend/internal/geocode"
	httpapi "github.com/citypulse/backend/internal/http"
	"github.com/citypulse/backend/internal/metrics"
	"github.com/citypulse/backend/internal/service"
)

func runServer(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			ServerName:  serviceName,
		}); err != nil {
			logger.Warn().Err(err).Msg("sentry init failed, continuing without error reporting")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	reports := &service.ReportService{
		Store:        store,
		AI:           newAnalyzer(cfg, logger, m),
		Metrics:      m,
		Logger:       logger,
		MatchRadiusM: cfg.MatchRadiusM,
	}
	if cfg.GeocoderEnabled {
		reports.Geocoder = &geocode.NominatimGeocoder{BaseURL: cfg.NominatimURL, UserAgent: serviceName}
		logger.Info().Msg("geocoding enabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.Router(cfg, store, reports, m, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runMigrate(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	store.Close()
	logger.Info().Msg("schema is up to date")
	return nil
}

func runAssistant(ctx context.Context, cfg config.Config, logger zerolog.Logger, out io.Writer) error {
	client := newBackboardClient(cfg, logger, nil)
	id, err := ai.NewProvisioner(client, cfg.AssistantID).Ensure(ctx)
	if err != nil {
		return fmt.Errorf("provision assistant: %w", err)
	}
	_, err = fmt.Fprintln(out, id)
	return err
}

// openStore connects and migrates the configured database.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (db.ReportStore, error) {
	store, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

func newBackboardClient(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics) *ai.Client {
	return ai.NewClient(ai.ClientConfig{
		APIKey:  cfg.BackboardAPIKey,
		BaseURL: cfg.BackboardURL,
		Timeout: cfg.VendorTimeout,
		Logger:  logger,
		Metrics: m,
	})
}

func newAnalyzer(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics) ai.Analyzer {
	if cfg.BackboardMock {
		logger.Info().Msg("using mock report analyzer")
		return ai.MockAnalyzer{}
	}
	client := newBackboardClient(cfg, logger, m)
	if !client.Available() {
		logger.Warn().Msg("BACKBOARD_API_KEY is not set, report submissions will fail")
	}
	return ai.NewWorkflow(client, ai.NewProvisioner(client, cfg.AssistantID))
}
