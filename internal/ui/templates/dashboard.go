// Package templates renders the dashboard shell. Data arrives later over
// SSE, so the page itself only carries layout, controls and signal defaults.
//
//go:generate templ generate
package templates

import (
	"cmp"
	"time"
)

const defaultRows = 5

type DashboardProps struct {
	Title   string
	Country string
	TopN    int
	// Rows is the initial size of the raw data panel. Zero means 5.
	Rows int
	// First and Last bound the date picker. Zero values leave it open.
	First time.Time
	Last  time.Time
}

type dashboardSignals struct {
	Through      string `json:"through"`
	N            int    `json:"n"`
	Limit        int    `json:"limit"`
	MonthlyData  []any  `json:"monthlyData"`
	ProductsData []any  `json:"productsData"`
}

func (p DashboardProps) signals() dashboardSignals {
	s := dashboardSignals{
		N:            p.TopN,
		Limit:        cmp.Or(p.Rows, defaultRows),
		MonthlyData:  []any{},
		ProductsData: []any{},
	}
	if !p.Last.IsZero() {
		s.Through = p.Last.Format(time.DateOnly)
	}
	return s
}
