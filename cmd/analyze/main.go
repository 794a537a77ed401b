package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"retail-analytics/internal/config"
	"retail-analytics/internal/loader"
	"retail-analytics/internal/models"
	"retail-analytics/internal/observability"
	"retail-analytics/internal/report"
	"retail-analytics/internal/services"
)

type options struct {
	through string
	out     string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Clean a retail transaction feed and summarise its revenue",
		Long: `analyze loads an Online Retail style feed (CSV or XLSX, local path or URL),
runs the cleaning pipeline, prints a console summary and writes a workbook
with the monthly revenue trend and the top products by revenue.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, cfg, opts)
		},
	}

	d := &cfg.Data
	flags := cmd.Flags()
	flags.StringVar(&d.Source, "source", d.Source, "path or http(s) URL of the transaction feed")
	flags.StringVar(&d.Format, "format", d.Format, "source format: auto, csv or xlsx")
	flags.StringVar(&d.Sheet, "sheet", d.Sheet, "worksheet to read (first sheet when empty)")
	flags.DurationVar(&d.FetchTimeout, "timeout", d.FetchTimeout, "timeout for fetching remote sources")
	flags.StringVar(&d.TargetCountry, "country", d.TargetCountry, "keep only this country (empty keeps all)")
	flags.BoolVar(&d.RequireCustomer, "require-customer", d.RequireCustomer, "drop rows without a customer id")
	flags.BoolVar(&d.RequirePositive, "require-positive", d.RequirePositive, "drop rows with non-positive quantity or price")
	flags.BoolVar(&d.ExcludeCancellations, "exclude-cancellations", d.ExcludeCancellations, "drop cancelled invoices")
	flags.StringVar(&d.CancellationMarker, "cancellation-marker", d.CancellationMarker, "invoice prefix marking a cancellation")
	flags.BoolVar(&d.ReportMissing, "report-missing", d.ReportMissing, "count rows with missing quantity or price separately")
	flags.IntVar(&d.TopN, "top", d.TopN, "number of top products to report")
	flags.StringVar(&opts.through, "through", "", "only include transactions up to this date (YYYY-MM-DD)")
	flags.StringVar(&opts.out, "out", "report.xlsx", "workbook output path, - for stdout (empty to skip)")
	flags.StringVar(&cfg.Logger.Level, "log-level", cfg.Logger.Level, "debug, info, warn or error")
	flags.BoolVar(&cfg.Telemetry.TracingEnabled, "trace", cfg.Telemetry.TracingEnabled, "print load and cleaning spans to stderr")

	return cmd
}

func parseThrough(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --through %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func run(cmd *cobra.Command, cfg *config.Config, opts options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logger)

	through, err := parseThrough(opts.through)
	if err != nil {
		return err
	}
	src, err := cfg.Data.LoaderSource()
	if err != nil {
		return err
	}

	tracing, err := observability.SetupTracing(cfg.Telemetry, cmd.ErrOrStderr(), logger)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	cleaning := cfg.Data.Cleaning()
	analytics := services.NewAnalytics(services.Options{
		Source:   src,
		Cleaning: cleaning,
		Fetcher:  loader.NewFetcher(cfg.Data.FetchTimeout),
		Logger:   logger,
	})
	if err := analytics.Load(ctx); err != nil {
		return err
	}

	summary, err := report.Build(analytics, cfg.Data.Source, cleaning, models.Filter{MaxDate: through}, cfg.Data.TopN)
	if err != nil {
		return err
	}
	// With --out - the workbook owns stdout and the summary moves to stderr.
	if opts.out == "-" {
		if err := report.WriteConsole(cmd.ErrOrStderr(), summary); err != nil {
			return err
		}
		return report.WriteWorkbook(cmd.OutOrStdout(), summary)
	}

	if err := report.WriteConsole(cmd.OutOrStdout(), summary); err != nil {
		return err
	}
	if opts.out == "" {
		return nil
	}
	if err := report.SaveWorkbook(opts.out, summary); err != nil {
		return err
	}
	logger.Info("workbook written", slog.String("path", opts.out))
	fmt.Fprintf(cmd.OutOrStdout(), "\nWorkbook saved as %s\n", opts.out)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.Logger.Format = "text"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = newRootCmd(cfg).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
