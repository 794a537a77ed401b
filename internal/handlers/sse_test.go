package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-analytics/internal/loader"
	"retail-analytics/internal/models"
	"retail-analytics/internal/services"
)

func serveSSE(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func withSignals(path, signals string) string {
	return path + "?datastar=" + url.QueryEscape(signals)
}

func TestNewSSEHandlers(t *testing.T) {
	analytics := createTestAnalytics()
	logger := testLogger()

	h := NewSSEHandlers(analytics, 10, logger)
	require.NotNil(t, h)
	assert.Same(t, analytics, h.analytics)
	assert.Same(t, logger, h.logger)
	assert.Equal(t, 10, h.topN)
}

func TestRender_Monthly(t *testing.T) {
	html, err := render("monthly", []models.MonthlyRevenue{
		{Label: "2010-12", Revenue: decimal.RequireFromString("15.3")},
	})
	require.NoError(t, err)

	assert.Contains(t, html, `<div id="monthly-content">`)
	assert.Contains(t, html, "<td>2010-12</td>")
	assert.Contains(t, html, "15.30")
}

func TestRender_EmptyAndEscaped(t *testing.T) {
	html, err := render("monthly", []models.MonthlyRevenue{})
	require.NoError(t, err)
	assert.Contains(t, html, "No data for the selected period.")

	html, err = render("products", []models.ProductRevenue{
		{Description: "<script>alert(1)</script>", Revenue: decimal.NewFromInt(1)},
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "<td>1</td>")
}

func TestSSEHandlers_MonthlyRevenue(t *testing.T) {
	h := NewSSEHandlers(createTestAnalytics(), 10, testLogger())

	rec := serveSSE(h.HandleMonthlyRevenue, "/sse/monthly-revenue")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, `id="monthly-content"`)
	assert.Contains(t, body, "35.64")
	assert.Contains(t, body, "datastar-patch-signals")
	assert.Contains(t, body, "monthlyData")
}

func TestSSEHandlers_TopProductsUsesSignals(t *testing.T) {
	h := NewSSEHandlers(createTestAnalytics(), 10, testLogger())

	rec := serveSSE(h.HandleTopProducts, withSignals("/sse/top-products", `{"n":1}`))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "HAND WARMER UNION JACK")
	assert.NotContains(t, body, "WHITE METAL LANTERN")
	assert.Contains(t, body, "productsData")
}

func TestSSEHandlers_ThroughSignal(t *testing.T) {
	h := NewSSEHandlers(createTestAnalytics(), 10, testLogger())

	rec := serveSSE(h.HandleOrderStats, withSignals("/sse/order-stats", `{"through":"2010-12-31"}`))
	body := rec.Body.String()
	assert.Contains(t, body, `id="orders-content"`)
	assert.Contains(t, body, "35.64")

	rec = serveSSE(h.HandleOrderStats, withSignals("/sse/order-stats", `{"through":"2000-01-01"}`))
	assert.Contains(t, rec.Body.String(), "No orders for the selected period.")
}

func TestSSEHandlers_InvalidSignals(t *testing.T) {
	h := NewSSEHandlers(createTestAnalytics(), 10, testLogger())

	rec := serveSSE(h.HandleTopProducts, withSignals("/sse/top-products", `{"n":-1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_PARAMETER")

	rec = serveSSE(h.HandleTopProducts, withSignals("/sse/top-products", `{"through":"yesterday"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serveSSE(h.HandleTopProducts, "/sse/top-products?datastar=%7Bbroken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSEHandlers_RefreshAll(t *testing.T) {
	h := NewSSEHandlers(createTestAnalytics(), 10, testLogger())

	rec := serveSSE(h.HandleRefreshAll, "/sse/refresh-all")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, id := range []string{"monthly-content", "products-content", "orders-content", "cleaning-content", "records-content"} {
		assert.Contains(t, body, `id="`+id+`"`)
	}
	assert.Contains(t, body, "exclude_cancellations")
	assert.Equal(t, 1, strings.Count(body, "event: datastar-patch-signals"))
	assert.Equal(t, 5, strings.Count(body, "event: datastar-patch-elements"))
}

func TestSSEHandlers_Records(t *testing.T) {
	h := NewSSEHandlers(createTestAnalytics(), 10, testLogger())

	rec := serveSSE(h.HandleRecords, "/sse/records")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `id="records-content"`)
	assert.Contains(t, body, "2010-12-01 08:26")
	assert.Contains(t, body, "WHITE METAL LANTERN")
	assert.Contains(t, body, "HAND WARMER UNION JACK")
	assert.NotContains(t, body, "datastar-patch-signals")

	rec = serveSSE(h.HandleRecords, withSignals("/sse/records", `{"limit":1}`))
	body = rec.Body.String()
	assert.Contains(t, body, "WHITE HANGING HEART T-LIGHT HOLDER")
	assert.NotContains(t, body, "WHITE METAL LANTERN")

	rec = serveSSE(h.HandleRecords, withSignals("/sse/records", `{"through":"2000-01-01"}`))
	assert.Contains(t, rec.Body.String(), "No rows for the selected period.")

	rec = serveSSE(h.HandleRecords, withSignals("/sse/records", `{"limit":501}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSEHandlers_NotLoaded(t *testing.T) {
	a := services.NewAnalytics(services.Options{Source: loader.Source{Locator: "memory"}, Logger: testLogger()})
	h := NewSSEHandlers(a, 10, testLogger())

	rec := serveSSE(h.HandleRefreshAll, "/sse/refresh-all")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Data is still loading.")
	assert.NotContains(t, body, "datastar-patch-signals")
}
