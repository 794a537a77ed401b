package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"retail-analytics/internal/config"
	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/report"
)

const feed = `InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country
536365,85123A,WHITE HANGING HEART T-LIGHT HOLDER,6,2010-12-01 08:26:00,2.55,17850,United Kingdom
536365,71053,WHITE METAL LANTERN,6,2010-12-01 08:26:00,3.39,17850,United Kingdom
C536379,D,Discount,-1,2010-12-01 09:41:00,27.50,14527,United Kingdom
536367,84879,ASSORTED COLOUR BIRD ORNAMENT,32,2011-01-04 10:00:00,1.69,13047,United Kingdom
536370,22728,ALARM CLOCK BAKELIKE PINK,24,2011-01-06 08:45:00,3.75,12583,France
`

func testConfig() *config.Config {
	return &config.Config{
		Data: config.DataConfig{
			Format:               "auto",
			FetchTimeout:         time.Second,
			TargetCountry:        "United Kingdom",
			RequireCustomer:      true,
			RequirePositive:      true,
			ExcludeCancellations: true,
			CancellationMarker:   "C",
			TopN:                 10,
		},
		Logger: config.LoggerConfig{Level: "error", Format: "text"},
	}
}

func writeFeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retail.csv")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := executeStreams(t, args...)
	return stdout, err
}

func executeStreams(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd(testConfig())
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestAnalyze_WritesConsoleAndWorkbook(t *testing.T) {
	src := writeFeed(t)
	out := filepath.Join(t.TempDir(), "report.xlsx")

	stdout, err := execute(t, "--source", src, "--out", out, "--top", "2")
	require.NoError(t, err)

	assert.Contains(t, stdout, "5 in, 3 out")
	assert.Contains(t, stdout, "2010-12")
	assert.Contains(t, stdout, "35.64")
	assert.Contains(t, stdout, "Top 2 products by revenue:")
	assert.Contains(t, stdout, "ASSORTED COLOUR BIRD ORNAMENT")
	assert.Contains(t, stdout, "Workbook saved as "+out)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(report.SheetTopProducts)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ASSORTED COLOUR BIRD ORNAMENT", rows[1][0])
	assert.Equal(t, "WHITE METAL LANTERN", rows[2][0])
}

func TestAnalyze_WorkbookToStdout(t *testing.T) {
	src := writeFeed(t)

	stdout, stderr, err := executeStreams(t, "--source", src, "--out", "-")
	require.NoError(t, err)

	assert.Contains(t, stderr, "5 in, 3 out")
	assert.NotContains(t, stderr, "Workbook saved")

	f, err := excelize.OpenReader(strings.NewReader(stdout))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{report.SheetMonthly, report.SheetTopProducts}, f.GetSheetList())
}

func TestAnalyze_ThroughAndCountry(t *testing.T) {
	src := writeFeed(t)

	stdout, err := execute(t, "--source", src, "--out", "", "--through", "2010-12-31")
	require.NoError(t, err)
	assert.Contains(t, stdout, "35.64")
	assert.NotContains(t, stdout, "2011-01")
	assert.NotContains(t, stdout, "Workbook saved")

	stdout, err = execute(t, "--source", src, "--out", "", "--country", "France")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ALARM CLOCK BAKELIKE PINK")
	assert.NotContains(t, stdout, "WHITE METAL LANTERN")
}

func TestAnalyze_Errors(t *testing.T) {
	src := writeFeed(t)

	_, err := execute(t, "--source", src, "--out", "", "--through", "31/12/2010")
	assert.ErrorContains(t, err, "--through")

	_, err = execute(t, "--source", src, "--out", "", "--format", "parquet")
	assert.Error(t, err)

	_, err = execute(t, "--source", src, "--out", "", "--top", "0")
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)

	_, err = execute(t, "--source", filepath.Join(t.TempDir(), "missing.csv"), "--out", "")
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)

	_, err = execute(t, "--source", src, "extra")
	assert.Error(t, err)
}

func TestParseThrough(t *testing.T) {
	got, err := parseThrough("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseThrough("2011-03-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2011, 3, 31, 0, 0, 0, 0, time.UTC), got)

	_, err = parseThrough("March")
	assert.Error(t, err)
}
