package models

import (
	"time"
)

// Filter restricts an aggregation request. Zero values mean "no restriction"
// except Products, where a nil slice means no restriction and an empty
// non-nil slice admits nothing.
type Filter struct {
	MaxDate  time.Time `json:"max_date,omitzero"`
	Products []string  `json:"products,omitempty"`
	Country  string    `json:"country,omitempty"`
}

// Matcher is a compiled Filter.
type Matcher struct {
	cutoff   time.Time
	products map[string]struct{}
	country  string
}

// Compile prepares the filter for repeated matching. MaxDate is inclusive
// through the end of its calendar day.
func (f Filter) Compile() Matcher {
	m := Matcher{country: f.Country}
	if !f.MaxDate.IsZero() {
		y, mo, d := f.MaxDate.Date()
		m.cutoff = time.Date(y, mo, d, 0, 0, 0, 0, f.MaxDate.Location()).AddDate(0, 0, 1)
	}
	if f.Products != nil {
		m.products = make(map[string]struct{}, len(f.Products))
		for _, p := range f.Products {
			m.products[p] = struct{}{}
		}
	}
	return m
}

func (m Matcher) Match(r *CleanedRecord) bool {
	if !m.cutoff.IsZero() && !r.InvoiceDate.Before(m.cutoff) {
		return false
	}
	if m.products != nil {
		if _, ok := m.products[r.Description]; !ok {
			return false
		}
	}
	if m.country != "" && r.Country != m.country {
		return false
	}
	return true
}
