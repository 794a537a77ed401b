package services

import (
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/models"
	"retail-analytics/internal/pipeline"
)

// The functions in this file are pure: they only read the table and never
// keep state between calls.

type groupSum struct {
	key    string
	sum    decimal.Decimal
	orders map[string]struct{}
}

// sumBy groups matching rows by key, keeping groups in first-seen order.
func sumBy(t *pipeline.CleanedTable, f models.Filter, key func(*models.CleanedRecord) string, countOrders bool) []groupSum {
	m := f.Compile()
	index := make(map[string]int)
	var groups []groupSum

	for r := range t.All() {
		if !m.Match(&r) {
			continue
		}
		k := key(&r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, groupSum{key: k})
			if countOrders {
				groups[i].orders = make(map[string]struct{})
			}
		}
		groups[i].sum = groups[i].sum.Add(r.Revenue)
		if countOrders {
			groups[i].orders[r.InvoiceNo] = struct{}{}
		}
	}
	return groups
}

// rankDesc sorts by revenue descending; equal sums keep first-seen order.
func rankDesc(groups []groupSum, n int) []groupSum {
	slices.SortStableFunc(groups, func(a, b groupSum) int {
		return b.sum.Cmp(a.sum)
	})
	if len(groups) > n {
		groups = groups[:n]
	}
	return groups
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthlyRevenue sums revenue per calendar month, oldest first. Months
// without activity are absent.
func MonthlyRevenue(t *pipeline.CleanedTable, f models.Filter) []models.MonthlyRevenue {
	m := f.Compile()
	sums := make(map[time.Time]decimal.Decimal)
	for r := range t.All() {
		if !m.Match(&r) {
			continue
		}
		month := monthStart(r.InvoiceDate)
		sums[month] = sums[month].Add(r.Revenue)
	}

	result := make([]models.MonthlyRevenue, 0, len(sums))
	for month, revenue := range sums {
		result = append(result, models.MonthlyRevenue{
			Month:   month,
			Label:   month.Format("2006-01"),
			Revenue: revenue,
		})
	}
	slices.SortFunc(result, func(a, b models.MonthlyRevenue) int {
		return a.Month.Compare(b.Month)
	})
	return result
}

// TopProducts ranks product descriptions by revenue and keeps the first n.
// Rows without a description belong to no product and are left out.
func TopProducts(t *pipeline.CleanedTable, f models.Filter, n int) ([]models.ProductRevenue, error) {
	if n <= 0 {
		return nil, apperrors.InvalidParameter("n must be positive, got %d", n)
	}

	groups := sumBy(t, f, func(r *models.CleanedRecord) string { return r.Description }, false)
	groups = slices.DeleteFunc(groups, func(g groupSum) bool { return g.key == "" })
	groups = rankDesc(groups, n)

	result := make([]models.ProductRevenue, len(groups))
	for i, g := range groups {
		result[i] = models.ProductRevenue{Description: g.key, Revenue: g.sum}
	}
	return result, nil
}

// TopCountries ranks countries by revenue and keeps the first n.
func TopCountries(t *pipeline.CleanedTable, f models.Filter, n int) ([]models.CountryRevenue, error) {
	if n <= 0 {
		return nil, apperrors.InvalidParameter("n must be positive, got %d", n)
	}

	groups := rankDesc(sumBy(t, f, func(r *models.CleanedRecord) string { return r.Country }, true), n)

	result := make([]models.CountryRevenue, len(groups))
	for i, g := range groups {
		result[i] = models.CountryRevenue{Country: g.key, Revenue: g.sum, Orders: len(g.orders)}
	}
	return result, nil
}

// OrderStats sums revenue per invoice and reports the total and the mean
// order value. With no orders the mean is left invalid.
func OrderStats(t *pipeline.CleanedTable, f models.Filter) models.OrderStats {
	orders := sumBy(t, f, func(r *models.CleanedRecord) string { return r.InvoiceNo }, false)

	stats := models.OrderStats{Orders: len(orders), TotalRevenue: decimal.Zero}
	for _, o := range orders {
		stats.TotalRevenue = stats.TotalRevenue.Add(o.sum)
	}
	if len(orders) > 0 {
		stats.MeanOrderValue = decimal.NewNullDecimal(stats.TotalRevenue.Div(decimal.NewFromInt(int64(len(orders)))))
	}
	return stats
}

// RevenueSummary describes line revenue: count, mean, sample standard
// deviation, min, quartiles (linear interpolation) and max.
func RevenueSummary(t *pipeline.CleanedTable, f models.Filter) models.RevenueSummary {
	m := f.Compile()
	var values []decimal.Decimal
	for r := range t.All() {
		if m.Match(&r) {
			values = append(values, r.Revenue)
		}
	}

	summary := models.RevenueSummary{Count: len(values)}
	if len(values) == 0 {
		return summary
	}

	slices.SortFunc(values, func(a, b decimal.Decimal) int { return a.Cmp(b) })

	n := decimal.NewFromInt(int64(len(values)))
	mean := decimal.Sum(values[0], values[1:]...).Div(n)
	summary.Mean = decimal.NewNullDecimal(mean)

	if len(values) > 1 {
		var ss decimal.Decimal
		for _, v := range values {
			d := v.Sub(mean)
			ss = ss.Add(d.Mul(d))
		}
		variance := ss.Div(n.Sub(decimal.NewFromInt(1))).InexactFloat64()
		summary.Std = decimal.NewNullDecimal(decimal.NewFromFloat(math.Sqrt(variance)))
	}

	summary.Min = decimal.NewNullDecimal(values[0])
	summary.P25 = decimal.NewNullDecimal(quantile(values, decimal.NewFromFloat(0.25)))
	summary.P50 = decimal.NewNullDecimal(quantile(values, decimal.NewFromFloat(0.5)))
	summary.P75 = decimal.NewNullDecimal(quantile(values, decimal.NewFromFloat(0.75)))
	summary.Max = decimal.NewNullDecimal(values[len(values)-1])
	return summary
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []decimal.Decimal, p decimal.Decimal) decimal.Decimal {
	pos := p.Mul(decimal.NewFromInt(int64(len(sorted) - 1)))
	lo := pos.Floor()
	i := int(lo.IntPart())
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos.Sub(lo)
	return sorted[i].Add(sorted[i+1].Sub(sorted[i]).Mul(frac))
}

// DateRange returns the earliest and latest invoice dates in the table.
func DateRange(t *pipeline.CleanedTable) (first, last time.Time, ok bool) {
	for r := range t.All() {
		if !ok || r.InvoiceDate.Before(first) {
			first = r.InvoiceDate
		}
		if !ok || r.InvoiceDate.After(last) {
			last = r.InvoiceDate
		}
		ok = true
	}
	return first, last, ok
}

// Head returns up to k matching rows in table order.
func Head(t *pipeline.CleanedTable, f models.Filter, k int) ([]models.CleanedRecord, error) {
	if k <= 0 {
		return nil, apperrors.InvalidParameter("k must be positive, got %d", k)
	}
	m := f.Compile()
	result := make([]models.CleanedRecord, 0, min(k, t.Len()))
	for r := range t.All() {
		if len(result) == k {
			break
		}
		if m.Match(&r) {
			result = append(result, r)
		}
	}
	return result, nil
}
