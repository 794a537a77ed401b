package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"retail-analytics/internal/config"
	"retail-analytics/internal/loader"
	"retail-analytics/internal/middleware"
	"retail-analytics/internal/observability"
	"retail-analytics/internal/server"
	"retail-analytics/internal/services"
	"retail-analytics/internal/ui/templates"
)

const (
	renderTimeout  = 10 * time.Second
	loadTimeout    = 5 * time.Minute
	sweepInterval  = time.Minute
	cacheControl   = "no-cache"
	dashboardTitle = "Retail Sales Analytics"
)

func dashboardHandler(analytics *services.Analytics, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		props := templates.DashboardProps{
			Title:   dashboardTitle,
			Country: cfg.Data.TargetCountry,
			TopN:    cfg.Data.TopN,
		}
		if dr, err := analytics.DateRange(); err == nil {
			props.First, props.Last = dr.First, dr.Last
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheControl)
		if err := templates.Dashboard(props).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

type app struct {
	analytics *services.Analytics
	cache     *services.TableCache
	metrics   *observability.Metrics
	limiter   *middleware.RateLimiter
	handler   http.Handler
}

func newApp(cfg *config.Config, logger *slog.Logger, tracing *observability.Tracing) (*app, error) {
	src, err := cfg.Data.LoaderSource()
	if err != nil {
		return nil, err
	}

	a := &app{
		cache:   services.NewTableCache(),
		metrics: observability.NewMetrics(),
		limiter: middleware.NewRateLimiter(cfg.Security),
	}
	a.analytics = services.NewAnalytics(services.Options{
		Source:   src,
		Cleaning: cfg.Data.Cleaning(),
		Fetcher:  loader.NewFetcher(cfg.Data.FetchTimeout),
		Cache:    a.cache,
		Recorder: a.metrics,
		Logger:   logger,
	})

	mws := []middleware.Middleware{
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Tracing(tracing.Tracer()),
		middleware.Logger(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(a.limiter, logger),
	}
	opts := server.Options{TopN: cfg.Data.TopN, Middleware: mws}
	if cfg.Telemetry.MetricsEnabled {
		opts.Middleware = append([]middleware.Middleware{middleware.Metrics(a.metrics)}, mws...)
		opts.Metrics = a.metrics.Handler()
	}

	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(a.analytics, cfg),
	}
	a.handler = server.NewServer(a.analytics, logger, templateHandlers, opts)
	return a, nil
}

// load populates the analytics session. The server is already accepting
// requests, which answer 503 until this completes.
func (a *app) load(ctx context.Context, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	start := time.Now()
	if err := a.analytics.Load(ctx); err != nil {
		logger.Error("failed to load transactions", "error", err)
		return
	}
	logger.Info("transactions loaded", "duration", time.Since(start))
}

func (a *app) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.limiter.Sweep(2 * sweepInterval)
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"source", cfg.Data.Source,
		"cleaning", cfg.Data.Cleaning().String(),
	)

	tracing, err := observability.SetupTracing(cfg.Telemetry, nil, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	a, err := newApp(cfg, logger, tracing)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.Go(func(ctx context.Context) { a.load(ctx, logger) })
	gracefulServer.Go(a.sweep)

	gracefulServer.RegisterShutdownHook("table-cache", func(ctx context.Context) error {
		logger.Info("dropping cached tables", "count", a.cache.Len())
		a.cache.Purge()
		return nil
	})
	// Spans from in-flight requests are flushed only after the server drains.
	gracefulServer.RegisterPostShutdownHook("tracing", tracing.Shutdown)

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
