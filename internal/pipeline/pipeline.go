// Package pipeline turns loaded transactions into the cleaned, revenue
// bearing table every aggregation reads from.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/models"
)

const DefaultCancellationMarker = "C"

// Config switches the individual cleaning steps. An empty TargetCountry
// disables country filtering.
type Config struct {
	TargetCountry        string
	RequireCustomer      bool
	RequirePositive      bool
	ExcludeCancellations bool
	CancellationMarker   string
	// ReportMissing counts rows dropped for an absent quantity or price
	// under Stats.Missing instead of the require_positive step.
	ReportMissing bool
}

func DefaultConfig() Config {
	return Config{
		TargetCountry:        "United Kingdom",
		RequireCustomer:      true,
		RequirePositive:      true,
		ExcludeCancellations: true,
		CancellationMarker:   DefaultCancellationMarker,
	}
}

func (c Config) String() string {
	return fmt.Sprintf("country=%q customer=%t positive=%t cancel=%t marker=%q missing=%t",
		c.TargetCountry, c.RequireCustomer, c.RequirePositive,
		c.ExcludeCancellations, c.CancellationMarker, c.ReportMissing)
}

type step struct {
	name    string
	enabled bool
	keep    Predicate
}

type StepStat struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Removed int    `json:"removed"`
}

type MissingStats struct {
	Quantity  int `json:"quantity"`
	UnitPrice int `json:"unit_price"`
	Rows      int `json:"rows"`
}

// Stats records how many rows each step removed.
type Stats struct {
	Input   int          `json:"input"`
	Output  int          `json:"output"`
	Steps   []StepStat   `json:"steps"`
	Missing MissingStats `json:"missing"`
}

func (s Stats) Removed(name string) int {
	for _, st := range s.Steps {
		if st.Name == name {
			return st.Removed
		}
	}
	return 0
}

type Pipeline struct {
	cfg    Config
	steps  []step
	logger *slog.Logger
	tracer trace.Tracer
}

func New(cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.CancellationMarker == "" {
		cfg.CancellationMarker = DefaultCancellationMarker
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg: cfg,
		steps: []step{
			{StepExcludeCancellations, cfg.ExcludeCancellations, ExcludeCancellations(cfg.CancellationMarker)},
			{StepFilterCountry, cfg.TargetCountry != "", FilterCountry(cfg.TargetCountry)},
			{StepRequireCustomer, cfg.RequireCustomer, RequireCustomer()},
			{StepRequirePositive, cfg.RequirePositive, RequirePositive()},
		},
		logger: logger,
		tracer: otel.Tracer("retail-analytics/pipeline"),
	}
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// StepNames lists every step in execution order, derive_revenue last.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps)+1)
	for _, s := range p.steps {
		names = append(names, s.name)
	}
	return append(names, StepDeriveRevenue)
}

// Run applies the steps in order and derives revenue. txs is not modified.
// The only error is context cancellation.
func (p *Pipeline) Run(ctx context.Context, txs []models.Transaction) (*CleanedTable, Stats, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.Int("pipeline.input", len(txs)),
	))
	defer span.End()

	stats := Stats{Input: len(txs), Steps: make([]StepStat, 0, len(p.steps)+1)}

	surviving := make([]*models.Transaction, len(txs))
	for i := range txs {
		surviving[i] = &txs[i]
	}

	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, err
		}

		st := StepStat{Name: s.name, Enabled: s.enabled}
		if s.enabled {
			n := 0
			for _, tx := range surviving {
				if s.keep(tx) {
					surviving[n] = tx
					n++
					continue
				}
				if s.name == StepRequirePositive && p.cfg.ReportMissing && !hasNumerics(tx) {
					stats.Missing.add(tx)
					continue
				}
				st.Removed++
			}
			clear(surviving[n:])
			surviving = surviving[:n]
		}

		stats.Steps = append(stats.Steps, st)
		p.logger.Debug("cleaning step applied",
			"step", st.Name,
			"enabled", st.Enabled,
			"removed", st.Removed,
			"remaining", len(surviving),
		)
	}

	records := make([]models.CleanedRecord, 0, len(surviving))
	for _, tx := range surviving {
		if !hasNumerics(tx) {
			stats.Missing.add(tx)
			continue
		}
		records = append(records, DeriveRevenue(tx))
	}
	stats.Steps = append(stats.Steps, StepStat{Name: StepDeriveRevenue, Enabled: true})
	stats.Output = len(records)

	if err := stats.Missing.Err(); err != nil {
		p.logger.Warn("rows with missing values excluded", "error", err)
	}

	span.SetAttributes(
		attribute.Int("pipeline.output", stats.Output),
		attribute.Int("pipeline.missing", stats.Missing.Rows),
	)
	p.logger.Info("cleaning complete",
		"input", stats.Input,
		"output", stats.Output,
		"missing", stats.Missing.Rows,
	)

	return &CleanedTable{records: records}, stats, nil
}

// Err describes the counted rows as a MissingField error. It is nil when
// nothing was missing.
func (m MissingStats) Err() error {
	if m.Rows == 0 {
		return nil
	}
	var fields []string
	if m.Quantity > 0 {
		fields = append(fields, "quantity")
	}
	if m.UnitPrice > 0 {
		fields = append(fields, "unit_price")
	}
	err := apperrors.MissingField(strings.Join(fields, ", "))
	err.Details = fmt.Sprintf("%d rows excluded", m.Rows)
	return err
}

func (m *MissingStats) add(tx *models.Transaction) {
	if !tx.Quantity.Valid {
		m.Quantity++
	}
	if !tx.UnitPrice.Valid {
		m.UnitPrice++
	}
	m.Rows++
}
