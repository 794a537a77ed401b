// Package report renders a batch analysis of a cleaned table as a console
// summary and as an xlsx workbook with native charts.
package report

import (
	"fmt"

	"retail-analytics/internal/models"
	"retail-analytics/internal/pipeline"
	"retail-analytics/internal/services"
)

const (
	HeadRows      = 5
	ConsoleMonths = 6
)

// Summary is everything the console and workbook outputs need.
type Summary struct {
	Source   string
	Cleaning pipeline.Config
	Steps    []string
	Stats    pipeline.Stats
	Head     []models.CleanedRecord
	Revenue  models.RevenueSummary
	Monthly  []models.MonthlyRevenue
	Top      []models.ProductRevenue
	TopN     int
}

// Build runs the report queries against a loaded session.
func Build(a *services.Analytics, source string, cleaning pipeline.Config, f models.Filter, topN int) (*Summary, error) {
	stats, err := a.CleaningStats()
	if err != nil {
		return nil, err
	}

	head, err := a.Head(f, HeadRows)
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	revenue, err := a.RevenueSummary(f)
	if err != nil {
		return nil, fmt.Errorf("revenue summary: %w", err)
	}
	monthly, err := a.MonthlyRevenue(f)
	if err != nil {
		return nil, fmt.Errorf("monthly revenue: %w", err)
	}
	top, err := a.TopProducts(f, topN)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}

	return &Summary{
		Source:   source,
		Cleaning: cleaning,
		Steps:    pipeline.New(cleaning, nil).StepNames(),
		Stats:    stats,
		Head:     head,
		Revenue:  revenue,
		Monthly:  monthly,
		Top:      top,
		TopN:     topN,
	}, nil
}
