package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"retail-analytics/internal/loader"
	"retail-analytics/internal/pipeline"
)

// EnvPrefix is prepended to every variable, e.g. RETAIL_SERVER_PORT.
const EnvPrefix = "RETAIL"

type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Data      DataConfig      `envconfig:"DATA"`
	Logger    LoggerConfig    `envconfig:"LOG"`
	Security  SecurityConfig  `envconfig:"SECURITY"`
	Telemetry TelemetryConfig `envconfig:"TELEMETRY"`
}

type ServerConfig struct {
	Host            string        `envconfig:"HOST" default:"localhost"`
	Port            int           `envconfig:"PORT" default:"8084"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DataConfig locates the transaction feed and switches the cleaning steps.
type DataConfig struct {
	Source               string        `envconfig:"SOURCE" default:"data/online_retail.xlsx"`
	Format               string        `envconfig:"FORMAT" default:"auto"`
	Sheet                string        `envconfig:"SHEET"`
	FetchTimeout         time.Duration `envconfig:"FETCH_TIMEOUT" default:"60s"`
	TargetCountry        string        `envconfig:"TARGET_COUNTRY" default:"United Kingdom"`
	RequireCustomer      bool          `envconfig:"REQUIRE_CUSTOMER" default:"true"`
	RequirePositive      bool          `envconfig:"REQUIRE_POSITIVE" default:"true"`
	ExcludeCancellations bool          `envconfig:"EXCLUDE_CANCELLATIONS" default:"true"`
	CancellationMarker   string        `envconfig:"CANCELLATION_MARKER" default:"C"`
	ReportMissing        bool          `envconfig:"REPORT_MISSING" default:"false"`
	TopN                 int           `envconfig:"TOP_N" default:"10"`
}

type LoggerConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

type SecurityConfig struct {
	EnableRateLimit bool     `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRPS    int      `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst  int      `envconfig:"RATE_LIMIT_BURST" default:"10"`
	AllowedOrigins  []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8084"`
	TrustedProxies  []string `envconfig:"TRUSTED_PROXIES" default:"127.0.0.1"`
}

type TelemetryConfig struct {
	ServiceName    string `envconfig:"SERVICE_NAME" default:"retail-analytics"`
	TracingEnabled bool   `envconfig:"TRACING_ENABLED" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if strings.TrimSpace(c.Data.Source) == "" {
		return fmt.Errorf("data source cannot be empty")
	}

	if _, err := loader.ParseFormat(c.Data.Format); err != nil {
		return err
	}

	if c.Data.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}

	if c.Data.TopN <= 0 {
		return fmt.Errorf("top N must be positive, got %d", c.Data.TopN)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoaderSource converts the data section into a loader.Source.
func (d DataConfig) LoaderSource() (loader.Source, error) {
	format, err := loader.ParseFormat(d.Format)
	if err != nil {
		return loader.Source{}, err
	}
	return loader.Source{Locator: d.Source, Format: format, Sheet: d.Sheet}, nil
}

func (d DataConfig) Cleaning() pipeline.Config {
	return pipeline.Config{
		TargetCountry:        d.TargetCountry,
		RequireCustomer:      d.RequireCustomer,
		RequirePositive:      d.RequirePositive,
		ExcludeCancellations: d.ExcludeCancellations,
		CancellationMarker:   d.CancellationMarker,
		ReportMissing:        d.ReportMissing,
	}
}
