package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/loader/mocks"
)

const retailHeader = "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country"

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_CSV(t *testing.T) {
	path := writeTemp(t, "retail.csv", retailHeader+`
536365,85123A,WHITE HANGING HEART T-LIGHT HOLDER,6,2010-12-01 08:26:00,2.55,17850,United Kingdom
C536366,22633,HAND WARMER UNION JACK,-1,2010-12-01 08:28:00,3.0,17850,United Kingdom
536367,84879,ASSORTED COLOUR BIRD ORNAMENT,32,2010-12-01 08:34:00,1.69,,France
`)

	txs, err := New(FileFetcher{}, nil).Load(context.Background(), Source{Locator: path}, DefaultSchema())
	require.NoError(t, err)
	require.Len(t, txs, 3)

	first := txs[0]
	assert.Equal(t, "536365", first.InvoiceNo)
	assert.Equal(t, "85123A", first.StockCode)
	assert.Equal(t, int64(6), first.Quantity.Int64)
	assert.True(t, first.Quantity.Valid)
	assert.True(t, first.UnitPrice.Decimal.Equal(decimal.RequireFromString("2.55")))
	assert.Equal(t, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), first.InvoiceDate)
	assert.Equal(t, "17850", first.CustomerID.String)

	assert.Equal(t, "C536366", txs[1].InvoiceNo)
	assert.Equal(t, int64(-1), txs[1].Quantity.Int64)

	assert.False(t, txs[2].CustomerID.Valid)
	assert.Equal(t, "France", txs[2].Country)
}

func TestLoad_CSV_HeaderCaseAndOrderInsensitive(t *testing.T) {
	path := writeTemp(t, "shuffled.csv", ` country , customerid,unitprice,invoicedate,quantity,description,stockcode,invoiceno
United Kingdom,17850,2.55,2010-12-01,6,MUG,1,536365
`)

	txs, err := New(FileFetcher{}, nil).Load(context.Background(), Source{Locator: path}, DefaultSchema())
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "MUG", txs[0].Description)
	assert.Equal(t, "United Kingdom", txs[0].Country)
}

func TestLoad_CSV_MissingValues(t *testing.T) {
	path := writeTemp(t, "missing.csv", retailHeader+`
536365,85123A,MUG,,2010-12-01,2.55,17850,United Kingdom
536366,85123A,MUG,4,2010-12-01,,17850.0,United Kingdom
`)

	txs, err := New(FileFetcher{}, nil).Load(context.Background(), Source{Locator: path}, DefaultSchema())
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.False(t, txs[0].Quantity.Valid)
	assert.True(t, txs[0].UnitPrice.Valid)
	assert.False(t, txs[1].UnitPrice.Valid)
	assert.Equal(t, "17850", txs[1].CustomerID.String)
}

func TestLoad_CSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		code apperrors.ErrorCode
	}{
		{
			name: "empty file",
			csv:  "",
			code: apperrors.CodeSchemaMismatch,
		},
		{
			name: "missing country column",
			csv:  "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID\n1,a,b,1,2010-12-01,1.0,1",
			code: apperrors.CodeSchemaMismatch,
		},
		{
			name: "invalid date",
			csv:  retailHeader + "\n536365,85123A,MUG,6,not-a-date,2.55,17850,United Kingdom",
			code: apperrors.CodeSchemaMismatch,
		},
		{
			name: "empty date",
			csv:  retailHeader + "\n536365,85123A,MUG,6,,2.55,17850,United Kingdom",
			code: apperrors.CodeSchemaMismatch,
		},
		{
			name: "invalid quantity",
			csv:  retailHeader + "\n536365,85123A,MUG,six,2010-12-01,2.55,17850,United Kingdom",
			code: apperrors.CodeSchemaMismatch,
		},
		{
			name: "fractional quantity",
			csv:  retailHeader + "\n536365,85123A,MUG,1.5,2010-12-01,2.55,17850,United Kingdom",
			code: apperrors.CodeSchemaMismatch,
		},
		{
			name: "quantity beyond int64",
			csv:  retailHeader + "\n536365,85123A,MUG,1e19,2010-12-01,2.55,17850,United Kingdom",
			code: apperrors.CodeSchemaMismatch,
		},
		{
			name: "numeric date in csv",
			csv:  retailHeader + "\n536365,85123A,MUG,6,20101201,2.55,17850,United Kingdom",
			code: apperrors.CodeSchemaMismatch,
		},
		{
			name: "invalid price",
			csv:  retailHeader + "\n536365,85123A,MUG,6,2010-12-01,abc,17850,United Kingdom",
			code: apperrors.CodeSchemaMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "bad.csv", tt.csv)

			txs, err := New(FileFetcher{}, nil).Load(context.Background(), Source{Locator: path}, DefaultSchema())
			require.Error(t, err)
			assert.Nil(t, txs)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestLoad_MissingFileIsSourceUnavailable(t *testing.T) {
	_, err := New(FileFetcher{}, nil).Load(context.Background(),
		Source{Locator: filepath.Join(t.TempDir(), "nope.csv")}, DefaultSchema())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
}

func TestLoad_FetcherFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Open(gomock.Any(), "https://example.invalid/OnlineRetail.xlsx").
		Return(nil, errors.New("dial tcp: no such host")).
		Times(1)

	_, err := New(fetcher, nil).Load(context.Background(),
		Source{Locator: "https://example.invalid/OnlineRetail.xlsx"}, DefaultSchema())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "no such host")
}

func buildWorkbook(t *testing.T) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"InvoiceNo", "StockCode", "Description", "Quantity", "InvoiceDate", "UnitPrice", "CustomerID", "Country"},
		{"536365", "85123A", "WHITE HANGING HEART T-LIGHT HOLDER", 6, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), 2.55, "17850.0", "United Kingdom"},
		{"C536379", "D", "Discount", -1, time.Date(2010, 12, 1, 9, 41, 0, 0, time.UTC), 27.5, 14527, "United Kingdom"},
		{"536370", "22728", "ALARM CLOCK BAKELIKE PINK", 24, time.Date(2011, 1, 5, 8, 45, 0, 0, time.UTC), 3.75, nil, "France"},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestLoad_XLSX(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	buf := buildWorkbook(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().
		Open(gomock.Any(), "OnlineRetail.xlsx").
		Return(io.NopCloser(bytes.NewReader(buf.Bytes())), nil)

	txs, err := New(fetcher, nil).Load(context.Background(), Source{Locator: "OnlineRetail.xlsx"}, DefaultSchema())
	require.NoError(t, err)
	require.Len(t, txs, 3)

	first := txs[0]
	assert.Equal(t, "536365", first.InvoiceNo)
	assert.Equal(t, int64(6), first.Quantity.Int64)
	assert.True(t, first.UnitPrice.Decimal.Equal(decimal.RequireFromString("2.55")))
	assert.Equal(t, "17850", first.CustomerID.String)

	y, m, d := first.InvoiceDate.Date()
	assert.Equal(t, 2010, y)
	assert.Equal(t, time.December, m)
	assert.Equal(t, 1, d)
	assert.Equal(t, 8, first.InvoiceDate.Hour())

	assert.Equal(t, "14527", txs[1].CustomerID.String)
	assert.False(t, txs[2].CustomerID.Valid)
	assert.Equal(t, time.January, txs[2].InvoiceDate.Month())
}

func TestLoad_XLSXDetectedWithoutExtension(t *testing.T) {
	buf := buildWorkbook(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	txs, err := New(NewFetcher(5*time.Second), nil).Load(context.Background(),
		Source{Locator: srv.URL + "/download"}, DefaultSchema())
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestLoad_HTTPStatusIsSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(NewFetcher(5*time.Second), nil).Load(context.Background(),
		Source{Locator: srv.URL + "/OnlineRetail.xlsx"}, DefaultSchema())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
}

func TestLoad_PreservesOrderAcrossBatches(t *testing.T) {
	const n = batchSize*2 + 17

	var sb strings.Builder
	sb.WriteString(retailHeader + "\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d,SKU,ITEM,1,2011-01-01,1.00,1,United Kingdom\n", i)
	}
	path := writeTemp(t, "large.csv", sb.String())

	txs, err := New(FileFetcher{}, nil).Load(context.Background(), Source{Locator: path}, DefaultSchema())
	require.NoError(t, err)
	require.Len(t, txs, n)
	for i, tx := range txs {
		if tx.InvoiceNo != fmt.Sprint(i) {
			t.Fatalf("row %d has invoice %s", i, tx.InvoiceNo)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2010-12-01", time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)},
		{"2010-12-01 08:26:00", time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{"2010-12-01T08:26:00Z", time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{"12/1/2010 8:26", time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{"12/1/10 8:26", time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{"40513", time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in, true)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := parseDate("yesterday", true)
	assert.Error(t, err)

	_, err = parseDate("40513", false)
	assert.ErrorContains(t, err, "numeric date")
}

func TestParseQuantity(t *testing.T) {
	q, err := parseQuantity("6.0")
	require.NoError(t, err)
	assert.Equal(t, int64(6), q.Int64)

	q, err = parseQuantity("-9223372036854775808")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), q.Int64)

	for _, in := range []string{"1e19", "-1e19", "9.3e18"} {
		_, err := parseQuantity(in)
		assert.ErrorContains(t, err, "out of range", in)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatAuto, f)

	_, err = ParseFormat("parquet")
	assert.Error(t, err)
}

func TestFormatFromLocator(t *testing.T) {
	assert.Equal(t, FormatXLSX, formatFromLocator("https://raw.githubusercontent.com/x/y/main/OnlineRetail.xlsx"))
	assert.Equal(t, FormatCSV, formatFromLocator("/data/retail.CSV"))
	assert.Equal(t, FormatAuto, formatFromLocator("https://example.com/download?id=1"))
}
