// Package loader reads transaction records from a CSV file or an Excel
// workbook, locally or over HTTP, and parses them into typed records.
package loader

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

type Loader struct {
	fetcher Fetcher
	logger  *slog.Logger
	tracer  trace.Tracer
}

func New(fetcher Fetcher, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		fetcher: fetcher,
		logger:  logger,
		tracer:  otel.Tracer("retail-analytics/loader"),
	}
}

// Load fetches src once and returns every row in source order. Open
// failures are SourceUnavailable; missing columns and unparsable dates or
// numbers are SchemaMismatch. Empty quantity, price and customer cells are
// returned as nulls for the cleaning pipeline to handle.
func (l *Loader) Load(ctx context.Context, src Source, schema Schema) (txs []models.Transaction, err error) {
	ctx, span := l.tracer.Start(ctx, "loader.Load", trace.WithAttributes(
		attribute.String("source.locator", src.Locator),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()

	rc, err := l.fetcher.Open(ctx, src.Locator)
	if err != nil {
		return nil, apperrors.SourceUnavailable(err, src.Locator)
	}
	defer rc.Close()

	format := src.formatOrAuto()
	if format == FormatAuto {
		format = formatFromLocator(src.Locator)
	}

	t, detected, err := decode(rc, format, src.Sheet)
	if err != nil {
		return nil, err
	}

	b, err := schema.bind(t.header)
	if err != nil {
		return nil, err
	}
	b.dateSerials = detected == string(FormatXLSX)

	txs, err = parseRows(ctx, t.rows, b, schema)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("source.format", detected),
		attribute.Int("source.rows", len(txs)),
	)
	l.logger.Info("source loaded",
		"locator", src.Locator,
		"format", detected,
		"rows", len(txs),
		"duration", time.Since(start),
	)
	return txs, nil
}

// parseRows parses in batches on a bounded worker pool. Each result is
// written at its own index so order is preserved; the first error aborts.
func parseRows(ctx context.Context, rows [][]string, b binding, schema Schema) ([]models.Transaction, error) {
	txs := make([]models.Transaction, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				tx, err := parseRow(rows[i], b, schema, i+2)
				if err != nil {
					return err
				}
				txs[i] = tx
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return txs, nil
}
