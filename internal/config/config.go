// Package config loads the stockdesk YAML configuration file and applies
// environment variable overrides.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stockdesk server.
type Config struct {
	Storage Storage      `yaml:"storage"`
	Server  Server       `yaml:"server"`
	Alpaca  Alpaca       `yaml:"alpaca"`
	Logging Logging      `yaml:"logging"`
	Quotes  QuotesConfig `yaml:"quotes"`
	Seed    SeedConfig   `yaml:"seed"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// QuotesConfig controls quote fetching behaviour.
type QuotesConfig struct {
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	TopTickers      []string `yaml:"top_tickers"`
}

// SeedConfig describes the demo account and login created on first run.
type SeedConfig struct {
	AccountID string `yaml:"account_id"`
	Balance   string `yaml:"balance"` // decimal string, e.g. "10000"
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// Timeout returns the quote fetch timeout as a duration.
func (q QuotesConfig) Timeout() time.Duration {
	if q.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(q.TimeoutSeconds) * time.Second
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration used when no config file is
// present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/stockdesk.db",
		},
		Server: Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Quotes: QuotesConfig{
			TimeoutSeconds:  5,
			RateLimitPerMin: 200,
			TopTickers:      []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META"},
		},
		Seed: SeedConfig{
			AccountID: "demo",
			Balance:   "10000",
			Username:  "demo",
			Password:  "demo",
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and applies environment variable overrides. A missing file
// is not an error: defaults plus environment are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fall through to env overrides.
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
