package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"retail-analytics/internal/handlers"
	"retail-analytics/internal/middleware"
	"retail-analytics/internal/services"
)

type Server struct {
	analytics   *services.Analytics
	router      chi.Router
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

type Options struct {
	TopN int
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Middleware runs inside the router so route patterns are resolved by
	// the time it records them.
	Middleware []middleware.Middleware
}

func NewServer(analytics *services.Analytics, logger *slog.Logger, templateHandlers *TemplateHandlers, opts Options) *Server {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	s := &Server{
		analytics:   analytics,
		router:      chi.NewRouter(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(analytics, opts.TopN, logger),
		sseHandlers: handlers.NewSSEHandlers(analytics, opts.TopN, logger),
	}
	if len(opts.Middleware) > 0 {
		s.router.Use(middleware.Chain(opts.Middleware...))
	}
	s.setupRoutes(templateHandlers, opts.Metrics)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers, metrics http.Handler) {
	r := s.router

	r.Get("/", templateHandlers.Dashboard)
	r.Get("/health", s.apiHandlers.HandleHealth)
	r.Get("/admin/stats", s.apiHandlers.HandleStats)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/monthly-revenue", s.apiHandlers.HandleMonthlyRevenue)
		r.Get("/top-products", s.apiHandlers.HandleTopProducts)
		r.Get("/order-stats", s.apiHandlers.HandleOrderStats)
		r.Get("/top-countries", s.apiHandlers.HandleTopCountries)
		r.Get("/revenue-summary", s.apiHandlers.HandleRevenueSummary)
		r.Get("/cleaning-stats", s.apiHandlers.HandleCleaningStats)
		r.Get("/records", s.apiHandlers.HandleRecords)
	})

	r.Route("/sse", func(r chi.Router) {
		r.Get("/monthly-revenue", s.sseHandlers.HandleMonthlyRevenue)
		r.Get("/top-products", s.sseHandlers.HandleTopProducts)
		r.Get("/order-stats", s.sseHandlers.HandleOrderStats)
		r.Get("/records", s.sseHandlers.HandleRecords)
		r.Get("/refresh-all", s.sseHandlers.HandleRefreshAll)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
