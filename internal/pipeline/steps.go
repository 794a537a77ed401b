package pipeline

import (
	"strings"

	"github.com/shopspring/decimal"

	"retail-analytics/internal/models"
)

// Step names, in the order the pipeline runs them.
const (
	StepExcludeCancellations = "exclude_cancellations"
	StepFilterCountry        = "filter_country"
	StepRequireCustomer      = "require_customer"
	StepRequirePositive      = "require_positive"
	StepDeriveRevenue        = "derive_revenue"
)

// Predicate reports whether a record survives a filter step.
type Predicate func(tx *models.Transaction) bool

// ExcludeCancellations drops invoices that start with marker.
func ExcludeCancellations(marker string) Predicate {
	return func(tx *models.Transaction) bool {
		return !strings.HasPrefix(tx.InvoiceNo, marker)
	}
}

// FilterCountry keeps records whose country equals country exactly.
func FilterCountry(country string) Predicate {
	return func(tx *models.Transaction) bool {
		return tx.Country == country
	}
}

// RequireCustomer keeps records that carry a customer id.
func RequireCustomer() Predicate {
	return func(tx *models.Transaction) bool {
		return tx.CustomerID.Valid && tx.CustomerID.String != ""
	}
}

// RequirePositive keeps records with quantity > 0 and unit price > 0.
// A missing value never passes.
func RequirePositive() Predicate {
	return func(tx *models.Transaction) bool {
		return tx.Quantity.Valid && tx.Quantity.Int64 > 0 &&
			tx.UnitPrice.Valid && tx.UnitPrice.Decimal.IsPositive()
	}
}

func hasNumerics(tx *models.Transaction) bool {
	return tx.Quantity.Valid && tx.UnitPrice.Valid
}

// DeriveRevenue converts a record with both numeric fields present into a
// CleanedRecord with Revenue = Quantity * UnitPrice.
func DeriveRevenue(tx *models.Transaction) models.CleanedRecord {
	price := tx.UnitPrice.Decimal
	return models.CleanedRecord{
		InvoiceNo:   tx.InvoiceNo,
		StockCode:   tx.StockCode,
		Description: tx.Description,
		Quantity:    tx.Quantity.Int64,
		UnitPrice:   price,
		InvoiceDate: tx.InvoiceDate,
		CustomerID:  tx.CustomerID.String,
		Country:     tx.Country,
		Revenue:     price.Mul(decimal.NewFromInt(tx.Quantity.Int64)),
	}
}
