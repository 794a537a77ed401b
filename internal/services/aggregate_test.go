package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/models"
	"retail-analytics/internal/pipeline"
)

func rec(invoice, desc, country string, date time.Time, qty int64, price string) models.CleanedRecord {
	p := decimal.RequireFromString(price)
	return models.CleanedRecord{
		InvoiceNo:   invoice,
		StockCode:   "SKU",
		Description: desc,
		Quantity:    qty,
		UnitPrice:   p,
		InvoiceDate: date,
		CustomerID:  "17850",
		Country:     country,
		Revenue:     p.Mul(decimal.NewFromInt(qty)),
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func sampleTable() *pipeline.CleanedTable {
	return pipeline.NewCleanedTable([]models.CleanedRecord{
		rec("536365", "WHITE HANGING HEART T-LIGHT HOLDER", "United Kingdom", day(2010, 12, 1), 6, "2.55"),  // 15.30
		rec("536365", "WHITE METAL LANTERN", "United Kingdom", day(2010, 12, 1), 6, "3.39"),                 // 20.34
		rec("536366", "HAND WARMER UNION JACK", "United Kingdom", day(2010, 12, 15), 6, "1.85"),             // 11.10
		rec("540001", "WHITE METAL LANTERN", "France", day(2011, 1, 4), 2, "3.39"),                          // 6.78
		rec("540002", "PAPER CHAIN KIT", "United Kingdom", day(2011, 3, 31), 10, "2.55"),                    // 25.50
		rec("540003", "HAND WARMER UNION JACK", "United Kingdom", day(2011, 3, 31), 1, "4.44"),              // 4.44
		rec("540004", "WHITE HANGING HEART T-LIGHT HOLDER", "United Kingdom", day(2011, 4, 1), 1, "4.44"),   // 4.44
	})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMonthlyRevenue_WorkedExample(t *testing.T) {
	table := pipeline.NewCleanedTable([]models.CleanedRecord{
		rec("536365", "WHITE HANGING HEART T-LIGHT HOLDER", "United Kingdom", time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC), 6, "2.55"),
	})

	series := MonthlyRevenue(table, models.Filter{})
	require.Len(t, series, 1)
	assert.Equal(t, "2010-12", series[0].Label)
	assert.True(t, series[0].Revenue.Equal(dec("15.30")))
}

func TestMonthlyRevenue_OrderedNoGaps(t *testing.T) {
	series := MonthlyRevenue(sampleTable(), models.Filter{})

	labels := make([]string, len(series))
	for i, m := range series {
		labels[i] = m.Label
	}
	assert.Equal(t, []string{"2010-12", "2011-01", "2011-03", "2011-04"}, labels)
	assert.True(t, series[0].Revenue.Equal(dec("46.74")))
	assert.True(t, series[2].Revenue.Equal(dec("29.94")))

	for i := 1; i < len(series); i++ {
		assert.True(t, series[i-1].Month.Before(series[i].Month), "months must strictly increase")
	}
}

func TestMonthlyRevenue_Empty(t *testing.T) {
	series := MonthlyRevenue(pipeline.NewCleanedTable(nil), models.Filter{})
	assert.NotNil(t, series)
	assert.Empty(t, series)

	series = MonthlyRevenue(nil, models.Filter{})
	assert.Empty(t, series)
}

func TestMonthlyRevenue_DateCutoffIsInclusive(t *testing.T) {
	f := models.Filter{MaxDate: time.Date(2011, 3, 31, 0, 0, 0, 0, time.UTC)}

	series := MonthlyRevenue(sampleTable(), f)
	require.Len(t, series, 3)
	assert.Equal(t, "2011-03", series[2].Label)
	assert.True(t, series[2].Revenue.Equal(dec("29.94")))
}

func TestTopProducts(t *testing.T) {
	ranking, err := TopProducts(sampleTable(), models.Filter{}, 10)
	require.NoError(t, err)

	want := []models.ProductRevenue{
		{Description: "WHITE METAL LANTERN", Revenue: dec("27.12")},
		{Description: "PAPER CHAIN KIT", Revenue: dec("25.50")},
		{Description: "WHITE HANGING HEART T-LIGHT HOLDER", Revenue: dec("19.74")},
		{Description: "HAND WARMER UNION JACK", Revenue: dec("15.54")},
	}
	require.Len(t, ranking, len(want))
	for i := range want {
		assert.Equal(t, want[i].Description, ranking[i].Description)
		assert.True(t, want[i].Revenue.Equal(ranking[i].Revenue), "%s: %s", want[i].Description, ranking[i].Revenue)
	}
}

func TestTopProducts_TruncatesAndSorts(t *testing.T) {
	for n := 1; n <= 5; n++ {
		ranking, err := TopProducts(sampleTable(), models.Filter{}, n)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(ranking), n)
		for i := 1; i < len(ranking); i++ {
			assert.True(t, ranking[i-1].Revenue.GreaterThanOrEqual(ranking[i].Revenue))
		}
	}
}

func TestTopProducts_TiesKeepFirstSeenOrder(t *testing.T) {
	table := pipeline.NewCleanedTable([]models.CleanedRecord{
		rec("1", "B", "United Kingdom", day(2011, 1, 1), 1, "5"),
		rec("2", "A", "United Kingdom", day(2011, 1, 1), 1, "5"),
		rec("3", "C", "United Kingdom", day(2011, 1, 1), 1, "9"),
		rec("4", "D", "United Kingdom", day(2011, 1, 1), 5, "1"),
	})

	ranking, err := TopProducts(table, models.Filter{}, 4)
	require.NoError(t, err)
	got := []string{ranking[0].Description, ranking[1].Description, ranking[2].Description, ranking[3].Description}
	assert.Equal(t, []string{"C", "B", "A", "D"}, got)
}

func TestTopProducts_SkipsEmptyDescriptions(t *testing.T) {
	table := pipeline.NewCleanedTable([]models.CleanedRecord{
		rec("1", "", "United Kingdom", day(2011, 1, 1), 100, "9"),
		rec("2", "PAPER CHAIN KIT", "United Kingdom", day(2011, 1, 1), 1, "2.55"),
	})

	ranking, err := TopProducts(table, models.Filter{}, 5)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, "PAPER CHAIN KIT", ranking[0].Description)

	// The row still counts towards everything else.
	assert.Equal(t, 2, OrderStats(table, models.Filter{}).Orders)
}

func TestTopProducts_InvalidN(t *testing.T) {
	for _, n := range []int{0, -1} {
		ranking, err := TopProducts(sampleTable(), models.Filter{}, n)
		assert.Nil(t, ranking)
		assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
	}
}

func TestTopProducts_ProductSubset(t *testing.T) {
	f := models.Filter{Products: []string{"PAPER CHAIN KIT", "HAND WARMER UNION JACK"}}

	ranking, err := TopProducts(sampleTable(), f, 10)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, "PAPER CHAIN KIT", ranking[0].Description)

	ranking, err = TopProducts(sampleTable(), models.Filter{Products: []string{}}, 10)
	require.NoError(t, err)
	assert.Empty(t, ranking)
}

func TestTopCountries(t *testing.T) {
	ranking, err := TopCountries(sampleTable(), models.Filter{}, 5)
	require.NoError(t, err)
	require.Len(t, ranking, 2)

	assert.Equal(t, "United Kingdom", ranking[0].Country)
	assert.True(t, ranking[0].Revenue.Equal(dec("81.12")))
	assert.Equal(t, 5, ranking[0].Orders)
	assert.Equal(t, "France", ranking[1].Country)
	assert.Equal(t, 1, ranking[1].Orders)

	_, err = TopCountries(sampleTable(), models.Filter{}, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
}

func TestOrderStats(t *testing.T) {
	stats := OrderStats(sampleTable(), models.Filter{})

	assert.Equal(t, 6, stats.Orders)
	assert.True(t, stats.TotalRevenue.Equal(dec("87.90")))
	require.True(t, stats.HasData())
	assert.True(t, stats.MeanOrderValue.Decimal.Equal(dec("14.65")))
}

func TestOrderStats_CountryFilter(t *testing.T) {
	stats := OrderStats(sampleTable(), models.Filter{Country: "France"})

	assert.Equal(t, 1, stats.Orders)
	assert.True(t, stats.TotalRevenue.Equal(dec("6.78")))
	assert.True(t, stats.MeanOrderValue.Decimal.Equal(dec("6.78")))
}

func TestOrderStats_NoData(t *testing.T) {
	stats := OrderStats(pipeline.NewCleanedTable(nil), models.Filter{})

	assert.Zero(t, stats.Orders)
	assert.False(t, stats.HasData())
	assert.True(t, stats.TotalRevenue.IsZero())

	f := models.Filter{MaxDate: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.False(t, OrderStats(sampleTable(), f).HasData())
}

func TestRevenueSummary(t *testing.T) {
	table := pipeline.NewCleanedTable([]models.CleanedRecord{
		rec("1", "A", "United Kingdom", day(2011, 1, 1), 1, "1"),
		rec("2", "A", "United Kingdom", day(2011, 1, 1), 1, "2"),
		rec("3", "A", "United Kingdom", day(2011, 1, 1), 1, "3"),
		rec("4", "A", "United Kingdom", day(2011, 1, 1), 1, "4"),
	})

	s := RevenueSummary(table, models.Filter{})
	assert.Equal(t, 4, s.Count)
	assert.True(t, s.Mean.Decimal.Equal(dec("2.5")))
	assert.True(t, s.Min.Decimal.Equal(dec("1")))
	assert.True(t, s.P25.Decimal.Equal(dec("1.75")))
	assert.True(t, s.P50.Decimal.Equal(dec("2.5")))
	assert.True(t, s.P75.Decimal.Equal(dec("3.25")))
	assert.True(t, s.Max.Decimal.Equal(dec("4")))
	assert.InDelta(t, 1.2909944, s.Std.Decimal.InexactFloat64(), 1e-6)
}

func TestRevenueSummary_Edges(t *testing.T) {
	empty := RevenueSummary(pipeline.NewCleanedTable(nil), models.Filter{})
	assert.Zero(t, empty.Count)
	assert.False(t, empty.Mean.Valid)
	assert.False(t, empty.Max.Valid)

	single := RevenueSummary(pipeline.NewCleanedTable([]models.CleanedRecord{
		rec("1", "A", "United Kingdom", day(2011, 1, 1), 3, "2.50"),
	}), models.Filter{})
	assert.Equal(t, 1, single.Count)
	assert.False(t, single.Std.Valid)
	assert.True(t, single.P75.Decimal.Equal(dec("7.5")))
}

func TestDateRange(t *testing.T) {
	first, last, ok := DateRange(sampleTable())
	require.True(t, ok)
	assert.Equal(t, day(2010, 12, 1), first)
	assert.Equal(t, day(2011, 4, 1), last)

	_, _, ok = DateRange(pipeline.NewCleanedTable(nil))
	assert.False(t, ok)
}

func TestHead(t *testing.T) {
	rows, err := Head(sampleTable(), models.Filter{Country: "United Kingdom"}, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "WHITE HANGING HEART T-LIGHT HOLDER", rows[0].Description)
	assert.Equal(t, "WHITE METAL LANTERN", rows[1].Description)

	_, err = Head(sampleTable(), models.Filter{}, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
}

func TestAggregations_Deterministic(t *testing.T) {
	table := sampleTable()
	f := models.Filter{MaxDate: day(2011, 3, 1)}

	a, _ := TopProducts(table, f, 3)
	b, _ := TopProducts(table, f, 3)
	assert.Equal(t, a, b)
	assert.Equal(t, MonthlyRevenue(table, f), MonthlyRevenue(table, f))
	assert.Equal(t, OrderStats(table, f), OrderStats(table, f))
}
