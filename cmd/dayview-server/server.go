package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinic/dayview/internal/domain/scheduling"
	"github.com/clinic/dayview/internal/platform/db"
	"github.com/clinic/dayview/internal/platform/middleware"
	"github.com/clinic/dayview/internal/platform/notify"
	"github.com/clinic/dayview/internal/platform/telemetry"
	"github.com/clinic/dayview/internal/platform/websocket"
)

const requestTimeout = 30 * time.Second

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Config
	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSamplingRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Data source
	loc, _ := cfg.Location()
	repo, pool, err := openRepository(ctx, cfg, scheduling.StartOfDay(time.Now().In(loc)), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open data source")
	}
	if pool != nil {
		defer pool.Close()
	}
	svc := scheduling.NewService(repo, cfg.SlotConfig(), loc, logger)

	// Response cache
	var (
		store middleware.CacheStore
		rdb   *redis.Client
	)
	if cfg.RedisURL != "" {
		rdb, err = middleware.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		store = middleware.NewRedisCacheStore(rdb, "dayview:cache")
		logger.Info().Msg("using redis response cache")
	} else {
		mem := middleware.NewInMemoryCacheStore()
		mem.StartCleanup(ctx, time.Minute)
		store = mem
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	// outside production, error responses carry the wrapped cause
	e.Debug = !cfg.IsProduction()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "If-None-Match", middleware.RequestIDHeader},
		ExposeHeaders: []string{"ETag", "X-Cache", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(requestTimeout))

	// Live day views
	hub := websocket.NewHub(svc, logger)
	websocket.NewHandler(hub, cfg.CORSOrigins, logger).RegisterRoutes(e)

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"source":     cfg.DataSource,
			"ws_clients": hub.ClientCount(),
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// API
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})))
	cacheCfg := middleware.DefaultCacheConfig()
	cacheCfg.MaxAge = cfg.CacheTTLSeconds
	apiV1.Use(middleware.ETagMiddleware(cacheCfg))
	apiV1.Use(middleware.ResponseCacheMiddleware(store, cfg.CacheTTL(), logger))
	scheduling.NewHandler(svc).RegisterRoutes(apiV1)

	// Schedule changes published by other processes
	if rdb != nil {
		notifier := notify.NewRedisNotifier(rdb, notify.DefaultChannel, logger)
		go func() {
			if err := notifier.Listen(ctx, scheduleChanged(hub, store, logger)); err != nil {
				logger.Error().Err(err).Msg("schedule change listener stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(e, "dayview-server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
			}),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("source", cfg.DataSource).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// scheduleChanged drops cached responses and refreshes the affected live views.
func scheduleChanged(hub *websocket.Hub, store middleware.CacheStore, logger zerolog.Logger) func(notify.ScheduleChanged) {
	return func(ev notify.ScheduleChanged) {
		if err := store.Clear(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("failed to clear response cache")
		}
		refreshed := 0
		if ev.All() {
			refreshed = hub.RefreshAll()
		} else {
			for _, id := range ev.DoctorIDs {
				refreshed += hub.Refresh(id)
			}
		}
		logger.Info().Strs("doctor_ids", ev.DoctorIDs).Int("views", refreshed).Msg("schedule changed")
	}
}
