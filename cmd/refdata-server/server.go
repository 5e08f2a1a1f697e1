package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/refdata/refdata/internal/config"
	"github.com/refdata/refdata/internal/domain/geography"
	"github.com/refdata/refdata/internal/domain/network"
	"github.com/refdata/refdata/internal/domain/parameter"
	"github.com/refdata/refdata/internal/domain/pricing"
	"github.com/refdata/refdata/internal/platform/auth"
	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/metrics"
	"github.com/refdata/refdata/internal/platform/middleware"
	"github.com/refdata/refdata/internal/platform/openapi"
	"github.com/refdata/refdata/internal/platform/validate"
)

const version = "0.1.0"

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg.Env)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	in, err := newInfra(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up cache and events")
	}
	defer in.Close(logger)

	authMW, err := authMiddleware(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up authentication")
	}

	m := metrics.New()
	mods := newModules(pool, crud.WithNotifier(in.bus), crud.WithCache(in.cache, cfg.CacheTTL))
	quotes := pricing.NewQuoteService(pricing.NewPGSnapshotLoader(pool),
		pricing.WithSnapshotCache(in.cache, cfg.CacheTTL),
		pricing.WithObserver(m),
		pricing.WithLogger(logger),
	)
	in.bus.Subscribe(m.ChangeListener())
	in.bus.Subscribe(quotes.ChangeListener())

	e := newServer(serverDeps{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		auth:    authMW,
		metrics: m,
		mods:    mods,
		quotes:  quotes,
		checks:  []db.Check{{Name: "cache", Ping: in.cache.Ping}},
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

type serverDeps struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	auth    echo.MiddlewareFunc
	metrics *metrics.Metrics
	mods    *modules
	quotes  *pricing.QuoteService
	checks  []db.Check
}

func newServer(d serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.Echo{}

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(d.metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", "If-Match"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(d.cfg.BodyLimit))
	if d.cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(d.cfg.RequestTimeout))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(d.pool, d.checks...))
	e.GET("/metrics", d.metrics.Handler())
	openapi.NewGenerator(e, "Referential API", version, "/api/v1").RegisterRoutes(e.Group("/api"))

	apiV1 := e.Group("/api/v1",
		d.auth,
		middleware.RateLimit(rateLimitConfig(d.cfg)),
		db.TenantMiddleware(d.pool, d.cfg.DefaultTenant),
		middleware.Audit(d.logger, middleware.NewPGAuditRecorder(d.pool)),
	)

	parameter.NewHandler(d.mods.parameters).RegisterRoutes(apiV1)
	geography.NewHandler(d.mods.geography).RegisterRoutes(apiV1)
	network.NewHandler(d.mods.network).RegisterRoutes(apiV1)
	pricing.NewHandler(d.mods.pricing, d.quotes).RegisterRoutes(apiV1)

	return e
}

// authMiddleware enforces bearer tokens outside development. In
// development anonymous requests get an admin identity, and tokens are
// still verified when a JWKS is configured.
func authMiddleware(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (echo.MiddlewareFunc, error) {
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.IsDev() && cfg.AuthJWKSURL == "" {
		return auth.DevAuthMiddleware(nil), nil
	}

	kf, err := auth.NewKeyfunc(ctx, jwtCfg, logger)
	if err != nil {
		return nil, err
	}
	verify := auth.JWTMiddleware(jwtCfg, kf)
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(verify), nil
	}
	return verify, nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}
