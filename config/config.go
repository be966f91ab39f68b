package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config carries every runtime knob. Values resolve in three layers: built-in
// defaults, then an optional YAML file named by FUNDSCOPE_CONFIG, then
// environment variables (highest precedence). Durations are plain numbers
// (seconds/minutes/hours/days as named) so they read the same in YAML and env.
type Config struct {
	AppPort       string `yaml:"app_port"`
	MetricsPort   string `yaml:"metrics_port"`
	DatabaseURL   string `yaml:"database_url"`
	RedisURL      string `yaml:"redis_url"`
	MigrationsDir string `yaml:"migrations_dir"`

	LighterBaseURL    string `yaml:"lighter_base_url"`
	HyperliquidAPIURL string `yaml:"hyperliquid_api_url"`

	HTTPTimeoutSecs             float64 `yaml:"http_timeout_seconds"`
	HyenaMinRequestIntervalSecs float64 `yaml:"hyena_min_request_interval"`
	HyenaLookbackHours          int     `yaml:"hyena_funding_lookback_hours"`
	HyenaQuickLimit             int     `yaml:"hyena_quick_limit"`

	LighterWindowHours int `yaml:"lighter_window_hours"`
	HyenaWindowHours   int `yaml:"hyena_window_hours"`
	HistoryWindowDays  int `yaml:"history_window_days"`

	LockTTLMinutes int     `yaml:"lock_ttl_minutes"`
	CacheTTLSecs   float64 `yaml:"cache_ttl_seconds"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

func defaults() *Config {
	return &Config{
		AppPort:                     "5000",
		MetricsPort:                 "9100",
		MigrationsDir:               "migrations",
		HTTPTimeoutSecs:             30,
		HyenaMinRequestIntervalSecs: 0.5,
		HyenaLookbackHours:          72,
		HyenaQuickLimit:             50,
		LighterWindowHours:          48,
		HyenaWindowHours:            72,
		HistoryWindowDays:           7,
		LockTTLMinutes:              30,
		CacheTTLSecs:                30,
		LogLevel:                    "info",
		LogFormat:                   "console",
	}
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, reading from environment directly")
	}

	cfg := defaults()

	if path := os.Getenv("FUNDSCOPE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("cannot read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("cannot parse config file")
		}
	}

	cfg.AppPort = getEnv("APP_PORT", cfg.AppPort)
	cfg.MetricsPort = getEnv("METRICS_PORT", cfg.MetricsPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.MigrationsDir = getEnv("MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.LighterBaseURL = getEnv("LIGHTER_BASE_URL", cfg.LighterBaseURL)
	cfg.HyperliquidAPIURL = getEnv("HYPERLIQUID_API_URL", cfg.HyperliquidAPIURL)
	cfg.HTTPTimeoutSecs = getEnvFloat("HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeoutSecs)
	cfg.HyenaMinRequestIntervalSecs = getEnvFloat("HYENA_MIN_REQUEST_INTERVAL", cfg.HyenaMinRequestIntervalSecs)
	cfg.HyenaLookbackHours = getEnvInt("HYENA_FUNDING_LOOKBACK_HOURS", cfg.HyenaLookbackHours)
	cfg.HyenaQuickLimit = getEnvInt("HYENA_QUICK_LIMIT", cfg.HyenaQuickLimit)
	cfg.LighterWindowHours = getEnvInt("LIGHTER_WINDOW_HOURS", cfg.LighterWindowHours)
	cfg.HyenaWindowHours = getEnvInt("HYENA_WINDOW_HOURS", cfg.HyenaWindowHours)
	cfg.HistoryWindowDays = getEnvInt("HISTORY_WINDOW_DAYS", cfg.HistoryWindowDays)
	cfg.LockTTLMinutes = getEnvInt("LOCK_TTL_MINUTES", cfg.LockTTLMinutes)
	cfg.CacheTTLSecs = getEnvFloat("CACHE_TTL_SECONDS", cfg.CacheTTLSecs)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	return cfg
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs * float64(time.Second))
}

func (c *Config) HyenaMinRequestInterval() time.Duration {
	return time.Duration(c.HyenaMinRequestIntervalSecs * float64(time.Second))
}

func (c *Config) HyenaLookback() time.Duration {
	return time.Duration(c.HyenaLookbackHours) * time.Hour
}

func (c *Config) LighterWindow() time.Duration {
	return time.Duration(c.LighterWindowHours) * time.Hour
}

func (c *Config) HyenaWindow() time.Duration {
	return time.Duration(c.HyenaWindowHours) * time.Hour
}

func (c *Config) HistoryWindow() time.Duration {
	return time.Duration(c.HistoryWindowDays) * 24 * time.Hour
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs * float64(time.Second))
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-integer env value")
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-numeric env value")
		return fallback
	}
	return f
}
