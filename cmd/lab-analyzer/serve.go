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

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/labanalyzer/labanalyzer/internal/config"
	"github.com/labanalyzer/labanalyzer/internal/domain/labs"
	"github.com/labanalyzer/labanalyzer/internal/platform/middleware"
	"github.com/labanalyzer/labanalyzer/internal/platform/openapi"
	"github.com/labanalyzer/labanalyzer/internal/platform/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
	specMaxAge      = 5 * time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the lab analyzer HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger, err := newLogger(cfg, os.Stdout)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg, logger)
		},
	}
}

// newLogger writes JSON lines, or human-readable output in development.
func newLogger(cfg *config.Config, w io.Writer) (zerolog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
	}

	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return logger.Level(level), nil
}

func newServer(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.NewMetrics()
		e.Use(metrics.Middleware())
	}

	e.Use(middleware.SecurityHeaders())
	if cfg.TLSEnabled {
		e.Use(middleware.StrictTransportSecurity())
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	if metrics != nil {
		e.GET("/metrics", metrics.PrometheusHandler())
	}

	// API description
	fields := labs.Fields()
	inputs := make([]openapi.InputField, 0, len(fields))
	for _, f := range fields {
		inputs = append(inputs, openapi.InputField{Name: f.Name, Type: f.Kind, Aliases: f.Aliases})
	}
	baseURL := fmt.Sprintf("http://localhost:%s", cfg.Port)
	openapi.NewGenerator(version, baseURL, inputs).RegisterRoutes(e.Group(""), middleware.ETag(specMaxAge))

	// The analyzer is served at the root and under /api/v1.
	labsHandler := labs.NewHandler(labs.NewService())
	if metrics != nil {
		labsHandler.WithObserver(metrics)
	}
	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	// Route-level, so unmatched paths neither spend tokens nor get a
	// group catch-all route.
	labsHandler.RegisterRoutes(e.Group(""), rateLimit)
	labsHandler.RegisterRoutes(e.Group("/api/v1"), rateLimit)

	return e
}

// runServer serves until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	e := newServer(cfg, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")

		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
