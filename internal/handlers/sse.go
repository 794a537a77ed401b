package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/starfederation/datastar-go/datastar"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/observability"
	"retail-analytics/internal/services"
)

const maxTableRows = 50

var sseTemplates = template.Must(template.New("sse").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`
{{define "monthly"}}<div id="monthly-content">
{{if .}}<table>
<thead><tr><th>Month</th><th>Revenue</th></tr></thead>
<tbody>
{{range .}}<tr><td>{{.Label}}</td><td class="num">{{.Revenue.StringFixed 2}}</td></tr>
{{end}}</tbody>
</table>{{else}}<p class="muted">No data for the selected period.</p>{{end}}
</div>{{end}}

{{define "products"}}<div id="products-content">
{{if .}}<table>
<thead><tr><th>#</th><th>Product</th><th>Revenue</th></tr></thead>
<tbody>
{{range $i, $p := .}}<tr><td>{{inc $i}}</td><td>{{$p.Description}}</td><td class="num">{{$p.Revenue.StringFixed 2}}</td></tr>
{{end}}</tbody>
</table>{{else}}<p class="muted">No products match.</p>{{end}}
</div>{{end}}

{{define "orders"}}<div id="orders-content">
{{if .HasData}}<dl>
<dt>Orders</dt><dd>{{.Orders}}</dd>
<dt>Total revenue</dt><dd>{{.TotalRevenue.StringFixed 2}}</dd>
<dt>Mean order value</dt><dd>{{.MeanOrderValue.Decimal.StringFixed 2}}</dd>
</dl>{{else}}<p class="muted">No orders for the selected period.</p>{{end}}
</div>{{end}}

{{define "cleaning"}}<div id="cleaning-content">
<p>{{.Input}} rows in, {{.Output}} rows out.</p>
<table>
<thead><tr><th>Step</th><th>Removed</th></tr></thead>
<tbody>
{{range .Steps}}<tr><td>{{.Name}}{{if not .Enabled}} (off){{end}}</td><td class="num">{{.Removed}}</td></tr>
{{end}}</tbody>
</table>
{{if .Missing.Rows}}<p class="muted">{{.Missing.Rows}} rows lacked a quantity or unit price.</p>{{end}}
</div>{{end}}

{{define "records"}}<div id="records-content">
{{if .}}<table>
<thead><tr><th>Invoice</th><th>Date</th><th>Product</th><th>Qty</th><th>Unit price</th><th>Customer</th><th>Revenue</th></tr></thead>
<tbody>
{{range .}}<tr><td>{{.InvoiceNo}}</td><td>{{.InvoiceDate.Format "2006-01-02 15:04"}}</td><td>{{.Description}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.UnitPrice.StringFixed 2}}</td><td>{{.CustomerID}}</td><td class="num">{{.Revenue.StringFixed 2}}</td></tr>
{{end}}</tbody>
</table>{{else}}<p class="muted">No rows for the selected period.</p>{{end}}
</div>{{end}}

{{define "error"}}<div id="{{.ID}}" class="muted">{{.Message}}</div>{{end}}
`))

// sseSignals are the dashboard controls Datastar sends with each request.
type sseSignals struct {
	Through string `json:"through"`
	N       int    `json:"n"`
	Limit   int    `json:"limit"`
	Country string `json:"country"`
}

type SSEHandlers struct {
	analytics *services.Analytics
	validate  *validator.Validate
	topN      int
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, topN int, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		validate:  newValidator(),
		topN:      topN,
		logger:    logger,
	}
}

func render(name string, data any) (string, error) {
	var buf strings.Builder
	err := sseTemplates.ExecuteTemplate(&buf, name, data)
	return buf.String(), err
}

// query merges Datastar signals over the query string. Invalid input is
// answered with a plain error response before any event is streamed.
func (h *SSEHandlers) query(w http.ResponseWriter, r *http.Request) (analyticsQuery, bool) {
	fail := func(err error) (analyticsQuery, bool) {
		apperrors.WriteError(w, observability.LoggerFrom(r.Context(), h.logger), err, observability.GetRequestID(r.Context()))
		return analyticsQuery{}, false
	}

	q, err := parseQuery(h.validate, r.URL.Query(), h.topN)
	if err != nil {
		return fail(err)
	}

	var signals sseSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		return fail(apperrors.InvalidParameter("malformed signals: %v", err))
	}
	if signals.Through != "" {
		q.Through = signals.Through
	}
	if signals.N != 0 {
		q.N = signals.N
	}
	if signals.Limit != 0 {
		q.Limit = signals.Limit
	}
	if signals.Country != "" {
		q.Country = signals.Country
	}
	if err := validateQuery(h.validate, q); err != nil {
		return fail(err)
	}
	return q, true
}

type section struct {
	id       string
	template string
	signal   string
	data     func(q analyticsQuery) (any, error)
}

func (h *SSEHandlers) monthly() section {
	return section{"monthly-content", "monthly", "monthlyData", func(q analyticsQuery) (any, error) {
		return h.analytics.MonthlyRevenue(q.Filter())
	}}
}

func (h *SSEHandlers) products() section {
	return section{"products-content", "products", "productsData", func(q analyticsQuery) (any, error) {
		return h.analytics.TopProducts(q.Filter(), min(q.N, maxTableRows))
	}}
}

func (h *SSEHandlers) orders() section {
	return section{"orders-content", "orders", "", func(q analyticsQuery) (any, error) {
		return h.analytics.OrderStats(q.Filter())
	}}
}

func (h *SSEHandlers) cleaning() section {
	return section{"cleaning-content", "cleaning", "", func(analyticsQuery) (any, error) {
		return h.analytics.CleaningStats()
	}}
}

// records is the raw data panel: the first rows of the filtered table.
func (h *SSEHandlers) records() section {
	return section{"records-content", "records", "", func(q analyticsQuery) (any, error) {
		return h.analytics.Head(q.Filter(), min(q.Limit, maxTableRows))
	}}
}

// stream sends one element patch per section and a single signal patch
// carrying the chart data.
func (h *SSEHandlers) stream(w http.ResponseWriter, r *http.Request, sections ...section) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}
	logger := observability.LoggerFrom(r.Context(), h.logger)

	sse := datastar.NewSSE(w, r)
	signals := make(map[string]any)

	for _, s := range sections {
		data, err := s.data(q)
		var html string
		if err != nil {
			logger.Warn("section unavailable", "section", s.id, "error", err)
			html, err = render("error", map[string]string{"ID": s.id, "Message": userMessage(err)})
		} else {
			if s.signal != "" {
				signals[s.signal] = data
			}
			html, err = render(s.template, data)
		}
		if err != nil {
			logger.Error("render section", "section", s.id, "error", err)
			return
		}
		if err := sse.PatchElements(html); err != nil {
			logger.Debug("client went away", "error", err)
			return
		}
	}

	if len(signals) > 0 {
		payload, err := json.Marshal(signals)
		if err != nil {
			logger.Error("marshal signals", "error", err)
			return
		}
		if err := sse.PatchSignals(payload); err != nil {
			logger.Debug("client went away", "error", err)
		}
	}
}

func userMessage(err error) string {
	switch {
	case apperrors.HasCode(err, apperrors.CodeServiceUnavail):
		return "Data is still loading."
	case apperrors.HasCode(err, apperrors.CodeInvalidParameter):
		return "Invalid selection."
	case apperrors.HasCode(err, apperrors.CodeNoData):
		return "No data."
	default:
		return "Something went wrong."
	}
}

func (h *SSEHandlers) HandleMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, h.monthly())
}

func (h *SSEHandlers) HandleTopProducts(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, h.products())
}

func (h *SSEHandlers) HandleOrderStats(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, h.orders())
}

func (h *SSEHandlers) HandleRecords(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, h.records())
}

func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, h.monthly(), h.products(), h.orders(), h.cleaning(), h.records())
}
