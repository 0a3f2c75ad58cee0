package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"PortfolioLedger/internal/core"
	"PortfolioLedger/internal/date"
	fin "PortfolioLedger/internal/math"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the run configuration, read from the environment. A .env file
// in the working directory is loaded first and never overrides variables that
// are already set.
type Config struct {
	// Reference data
	DataFile string

	// Ledger
	LocalCurrency       string
	IncomeTaxRate       string
	DividendWithholding string
	CouponWithholding   string
	TaxFreePortfolios   string // Comma separated
	ReplayEnd           string // YYYY-MM-DD, empty for the default

	// Export
	PostgresURL   string // Empty disables the export
	NATSURL       string // Empty disables publishing
	MigrationsDir string

	// gRPC/HTTP/Metrics
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string

	LogLevel string
}

// Load reads .env (when present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return DefaultConfig(), nil
}

func DefaultConfig() Config {
	return Config{
		DataFile:            envOrDefault("PLEDGER_DATA_FILE", "portfolio.json"),
		LocalCurrency:       envOrDefault("PLEDGER_LOCAL_CURRENCY", "EUR"),
		IncomeTaxRate:       envOrDefault("PLEDGER_TAX_RATE", "0.25"),
		DividendWithholding: envOrDefault("PLEDGER_DIVIDEND_WHT", "0.15"),
		CouponWithholding:   envOrDefault("PLEDGER_COUPON_WHT", "0"),
		TaxFreePortfolios:   envOrDefault("PLEDGER_TAX_FREE_PORTFOLIOS", ""),
		ReplayEnd:           envOrDefault("PLEDGER_REPLAY_END", ""),
		PostgresURL:         envOrDefault("PLEDGER_POSTGRES_DSN", ""),
		NATSURL:             envOrDefault("PLEDGER_NATS_URL", ""),
		MigrationsDir:       envOrDefault("PLEDGER_MIGRATIONS_DIR", "migrations"),
		GRPCAddr:            envOrDefault("PLEDGER_GRPC_ADDR", ":9090"),
		HTTPAddr:            envOrDefault("PLEDGER_HTTP_ADDR", ":8080"),
		MetricsAddr:         envOrDefault("PLEDGER_METRICS_ADDR", ":9091"),
		LogLevel:            envOrDefault("PLEDGER_LOG_LEVEL", "info"),
	}
}

// Settings parses the ledger part of the configuration.
func (c Config) Settings() (core.Settings, error) {
	s := core.Settings{LocalCurrency: strings.ToUpper(c.LocalCurrency)}
	if err := fin.ValidateCurrency(s.LocalCurrency); err != nil {
		return s, fmt.Errorf("PLEDGER_LOCAL_CURRENCY: %w", err)
	}

	rates := []struct {
		key string
		raw string
		dst *decimal.Decimal
	}{
		{"PLEDGER_TAX_RATE", c.IncomeTaxRate, &s.IncomeTaxRate},
		{"PLEDGER_DIVIDEND_WHT", c.DividendWithholding, &s.DividendWithholding},
		{"PLEDGER_COUPON_WHT", c.CouponWithholding, &s.CouponWithholding},
	}
	for _, r := range rates {
		v, err := parseRate(r.raw)
		if err != nil {
			return s, fmt.Errorf("%s: %w", r.key, err)
		}
		*r.dst = v
	}

	for _, p := range strings.Split(c.TaxFreePortfolios, ",") {
		if p = strings.TrimSpace(p); p != "" {
			s.TaxFreePortfolios = append(s.TaxFreePortfolios, p)
		}
	}

	if c.ReplayEnd != "" {
		end, err := date.Parse(c.ReplayEnd)
		if err != nil {
			return s, fmt.Errorf("PLEDGER_REPLAY_END: %w", err)
		}
		s.ReplayEnd = end
	}
	return s, nil
}

// parseRate reads a fraction between 0 and 1.
func parseRate(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rate %s outside [0, 1]", v)
	}
	return v, nil
}

// --- Helpers ---

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
