package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/carevault/carevault/internal/config"
	"github.com/carevault/carevault/internal/domain/appointment"
	"github.com/carevault/carevault/internal/domain/prescription"
	"github.com/carevault/carevault/internal/domain/share"
	"github.com/carevault/carevault/internal/platform/auth"
	"github.com/carevault/carevault/internal/platform/db"
	"github.com/carevault/carevault/internal/platform/middleware"
	"github.com/carevault/carevault/internal/platform/telemetry"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
	maxBodySize     = "64K"
)

// backend is what the HTTP layer needs from storage.
type backend struct {
	tokens        share.TokenStore
	prescriptions share.PrescriptionAccessor
	parties       share.PartyAccessor
	dbHealth      echo.HandlerFunc
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := newServer(cfg, logger, backend{
		tokens:        share.NewTokenStorePG(pool),
		prescriptions: prescription.NewRepoPG(pool),
		parties:       appointment.NewRepoPG(pool),
		dbHealth:      db.HealthHandler(pool, logger),
	})

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		<-grpCtx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := grp.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with middleware and routes.
func newServer(cfg *config.Config, logger zerolog.Logger, b backend) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(cfg, logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger, share.RedactPath))
	e.Use(middleware.Recovery(logger))
	metrics := telemetry.NewMetrics()
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders(middleware.SecurityConfig{HSTS: !cfg.IsDev()}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	e.Use(middleware.BodyLimit(maxBodySize))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if b.dbHealth != nil {
		e.GET("/health/db", b.dbHealth)
	}
	if cfg.MetricsEnabled {
		e.GET("/metrics", metrics.Handler())
	}

	svc := share.NewService(b.tokens, b.prescriptions, b.parties, cfg.ShareTokenTTL, logger).
		WithObserver(metrics)
	h := share.NewHandler(svc, cfg.ShareBaseURL, logger)

	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.ShareRateLimitRPS,
		BurstSize:         cfg.ShareRateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	})
	h.RegisterRoutes(e.Group("/share"), authMiddleware(cfg, logger), limiter)

	return e
}

// ipExtractor decides what RealIP returns, and with it the rate-limit key.
// Forwarding headers are only honoured from configured proxies; otherwise the
// socket peer is the client.
func ipExtractor(cfg *config.Config, logger zerolog.Logger) echo.IPExtractor {
	nets, err := cfg.TrustedProxyNets()
	if err != nil {
		logger.Error().Err(err).Msg("ignoring TRUSTED_PROXIES")
		nets = nil
	}
	if len(nets) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func authMiddleware(cfg *config.Config, logger zerolog.Logger) echo.MiddlewareFunc {
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: identity is read from " + auth.HeaderUserID + " without verification")
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
}
