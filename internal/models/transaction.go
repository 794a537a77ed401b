package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one row of the source feed. Quantity and UnitPrice are null
// when the source cell was empty.
type Transaction struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    sql.NullInt64
	UnitPrice   decimal.NullDecimal
	InvoiceDate time.Time
	CustomerID  sql.NullString
	Country     string
}

// CleanedRecord is a Transaction that survived cleaning, with Revenue derived.
type CleanedRecord struct {
	InvoiceNo   string          `json:"invoice_no"`
	StockCode   string          `json:"stock_code"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	InvoiceDate time.Time       `json:"invoice_date"`
	CustomerID  string          `json:"customer_id,omitempty"`
	Country     string          `json:"country"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type MonthlyRevenue struct {
	Month   time.Time       `json:"-"`
	Label   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
}

type ProductRevenue struct {
	Description string          `json:"description"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type CountryRevenue struct {
	Country string          `json:"country"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

// OrderStats summarises revenue per invoice. MeanOrderValue is invalid when
// there were no orders.
type OrderStats struct {
	Orders         int                 `json:"orders"`
	TotalRevenue   decimal.Decimal     `json:"total_revenue"`
	MeanOrderValue decimal.NullDecimal `json:"mean_order_value"`
}

func (s OrderStats) HasData() bool {
	return s.MeanOrderValue.Valid
}

// RevenueSummary describes the distribution of line revenue.
type RevenueSummary struct {
	Count int                 `json:"count"`
	Mean  decimal.NullDecimal `json:"mean"`
	Std   decimal.NullDecimal `json:"std"`
	Min   decimal.NullDecimal `json:"min"`
	P25   decimal.NullDecimal `json:"p25"`
	P50   decimal.NullDecimal `json:"p50"`
	P75   decimal.NullDecimal `json:"p75"`
	Max   decimal.NullDecimal `json:"max"`
}

type DateRange struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}
