package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/observability"
	"retail-analytics/internal/services"
)

var cacheHeaders = map[string]string{
	"Cache-Control": "public, max-age=300",
}

type APIHandlers struct {
	analytics *services.Analytics
	validate  *validator.Validate
	topN      int
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, topN int, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		validate:  newValidator(),
		topN:      topN,
		logger:    logger,
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.WriteError(w, observability.LoggerFrom(r.Context(), h.logger), err, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) query(w http.ResponseWriter, r *http.Request) (analyticsQuery, bool) {
	q, err := parseQuery(h.validate, r.URL.Query(), h.topN)
	if err != nil {
		h.fail(w, r, err)
		return q, false
	}
	return q, true
}

func (h *APIHandlers) HandleMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}

	data, err := h.analytics.MonthlyRevenue(q.Filter())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	apperrors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandleTopProducts(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}

	data, err := h.analytics.TopProducts(q.Filter(), q.N)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	apperrors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandleTopCountries(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}

	data, err := h.analytics.TopCountries(q.Filter(), q.N)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	apperrors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

// HandleOrderStats answers 404 when no order matches, since a mean over
// zero orders does not exist.
func (h *APIHandlers) HandleOrderStats(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}

	stats, err := h.analytics.OrderStats(q.Filter())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !stats.HasData() {
		h.fail(w, r, apperrors.NoData("no orders match the filter"))
		return
	}

	apperrors.WriteSuccessWithHeaders(w, stats, cacheHeaders)
}

func (h *APIHandlers) HandleRevenueSummary(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}

	summary, err := h.analytics.RevenueSummary(q.Filter())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if summary.Count == 0 {
		h.fail(w, r, apperrors.NoData("no records match the filter"))
		return
	}

	apperrors.WriteSuccessWithHeaders(w, summary, cacheHeaders)
}

func (h *APIHandlers) HandleCleaningStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.CleaningStats()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	apperrors.WriteSuccessWithHeaders(w, stats, cacheHeaders)
}

// HandleRecords returns the first limit cleaned rows that match the filter.
func (h *APIHandlers) HandleRecords(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}

	rows, err := h.analytics.Head(q.Filter(), q.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	apperrors.WriteSuccess(w, rows)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := h.analytics.CleanedTable()

	healthData := map[string]any{
		"status":      "healthy",
		"data_loaded": err == nil,
		"timestamp":   time.Now().Format(time.RFC3339),
		"version":     "1.0.0",
	}

	apperrors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, h.analytics.Stats())
}
