package loader

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	apperrors "retail-analytics/internal/errors"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "", "auto", "csv" and "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx", "xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unknown source format %q", s)
	}
}

// Source locates the transaction feed. Sheet is only used for workbooks;
// when empty the first sheet is read.
type Source struct {
	Locator string
	Format  Format
	Sheet   string
}

func (s Source) String() string {
	return fmt.Sprintf("%s|%s|%s", s.Locator, s.formatOrAuto(), s.Sheet)
}

func (s Source) formatOrAuto() Format {
	if s.Format == "" {
		return FormatAuto
	}
	return s.Format
}

// formatFromLocator guesses the format from the locator's extension.
// It returns FormatAuto when the extension says nothing.
func formatFromLocator(locator string) Format {
	p := locator
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv", ".txt":
		return FormatCSV
	default:
		return FormatAuto
	}
}

// Schema names the source column carrying each field. Matching against the
// header row ignores case and surrounding whitespace.
type Schema struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    string
	UnitPrice   string
	InvoiceDate string
	CustomerID  string
	Country     string
}

// DefaultSchema matches the Online Retail dataset headers.
func DefaultSchema() Schema {
	return Schema{
		InvoiceNo:   "InvoiceNo",
		StockCode:   "StockCode",
		Description: "Description",
		Quantity:    "Quantity",
		UnitPrice:   "UnitPrice",
		InvoiceDate: "InvoiceDate",
		CustomerID:  "CustomerID",
		Country:     "Country",
	}
}

func (s Schema) String() string {
	return strings.Join([]string{
		s.InvoiceNo, s.StockCode, s.Description, s.Quantity,
		s.UnitPrice, s.InvoiceDate, s.CustomerID, s.Country,
	}, ",")
}

type binding struct {
	invoiceNo   int
	stockCode   int
	description int
	quantity    int
	unitPrice   int
	invoiceDate int
	customerID  int
	country     int

	// dateSerials allows numeric invoice dates, which only workbooks store.
	dateSerials bool
}

func (s Schema) bind(header []string) (binding, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	lookup := func(name string) (int, error) {
		if i, ok := index[normalizeHeader(name)]; ok {
			return i, nil
		}
		return -1, apperrors.SchemaMismatch("required column %q not found in header", name)
	}

	var b binding
	var err error
	fields := []struct {
		name string
		dst  *int
	}{
		{s.InvoiceNo, &b.invoiceNo},
		{s.StockCode, &b.stockCode},
		{s.Description, &b.description},
		{s.Quantity, &b.quantity},
		{s.UnitPrice, &b.unitPrice},
		{s.InvoiceDate, &b.invoiceDate},
		{s.CustomerID, &b.customerID},
		{s.Country, &b.country},
	}
	for _, f := range fields {
		if *f.dst, err = lookup(f.name); err != nil {
			return binding{}, err
		}
	}
	return b, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}
