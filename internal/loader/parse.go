package loader

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/models"
)

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"1/2/2006",
}

// parseDate accepts the common text layouts and, when serials is set,
// Excel serial numbers. Results are in UTC.
func parseDate(s string, serials bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if !serials {
			return time.Time{}, fmt.Errorf("numeric date %q in a text source", s)
		}
		if serial <= 0 || math.IsInf(serial, 0) || math.IsNaN(serial) {
			return time.Time{}, fmt.Errorf("date serial %q out of range", s)
		}
		return excelize.ExcelDateToTime(serial, false)
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// parseQuantity returns a null value for an empty cell. Integral floats such
// as "6.0" are accepted.
func parseQuantity(s string) (sql.NullInt64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullInt64{}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return sql.NullInt64{Int64: n, Valid: true}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return sql.NullInt64{}, fmt.Errorf("quantity %q is not an integer", s)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return sql.NullInt64{}, fmt.Errorf("quantity %q out of range", s)
	}
	return sql.NullInt64{Int64: int64(f), Valid: true}, nil
}

// parsePrice goes through float64 so that spreadsheet artefacts such as
// 2.5499999999999998 come back as 2.55.
func parsePrice(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.NullDecimal{}, fmt.Errorf("unit price %q is not a number", s)
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(f)), nil
}

// parseCustomer normalises numeric ids stored as floats ("17850.0").
func parseCustomer(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	if whole, ok := strings.CutSuffix(s, ".0"); ok && isDigits(whole) {
		s = whole
	}
	return sql.NullString{String: s, Valid: true}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseRow converts one raw row. line is the 1-based source line used in
// error messages.
func parseRow(row []string, b binding, schema Schema, line int) (models.Transaction, error) {
	date, err := parseDate(cell(row, b.invoiceDate), b.dateSerials)
	if err != nil {
		return models.Transaction{}, apperrors.SchemaMismatchWrap(err, "invalid invoice date at %s", describeRow(line, schema.InvoiceDate))
	}

	quantity, err := parseQuantity(cell(row, b.quantity))
	if err != nil {
		return models.Transaction{}, apperrors.SchemaMismatchWrap(err, "invalid quantity at %s", describeRow(line, schema.Quantity))
	}

	price, err := parsePrice(cell(row, b.unitPrice))
	if err != nil {
		return models.Transaction{}, apperrors.SchemaMismatchWrap(err, "invalid unit price at %s", describeRow(line, schema.UnitPrice))
	}

	return models.Transaction{
		InvoiceNo:   strings.TrimSpace(cell(row, b.invoiceNo)),
		StockCode:   strings.TrimSpace(cell(row, b.stockCode)),
		Description: strings.TrimSpace(cell(row, b.description)),
		Quantity:    quantity,
		UnitPrice:   price,
		InvoiceDate: date,
		CustomerID:  parseCustomer(cell(row, b.customerID)),
		Country:     strings.TrimSpace(cell(row, b.country)),
	}, nil
}
