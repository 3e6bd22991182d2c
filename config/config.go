package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trendbot/internal/strategy"
)

// Config holds process settings loaded from environment variables.
type Config struct {
	// Market
	Symbol   string
	Interval string

	// Exchange endpoints
	StreamURL string
	RESTURL   string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	LogLevel      string

	// Notification
	TelegramToken  string
	TelegramChatID string
	WebhookURL     string

	// Trading
	PaperQty     float64
	StrategyPath string
	WarmupLimit  int
	TickExits    bool

	// Scheduling
	ReportAt string // daily report time, "HH:MM"
	Timezone string
}

// Load reads an optional .env file and then the environment, with defaults.
// An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var errs error
	paperQty, err := getFloat("PAPER_QTY", 0.001)
	errs = errors.Join(errs, err)
	warmup, err := getInt("WARMUP_LIMIT", 500)
	errs = errors.Join(errs, err)
	tickExits, err := getBool("TICK_EXITS", true)
	errs = errors.Join(errs, err)
	if errs != nil {
		return nil, errs
	}

	cfg := &Config{
		Symbol:   strings.ToUpper(getEnv("SYMBOL", "BTCUSDT")),
		Interval: getEnv("INTERVAL", "1h"),

		StreamURL: getEnv("STREAM_URL", "wss://stream.binance.com:9443"),
		RESTURL:   getEnv("REST_URL", "https://api.binance.com"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trendbot.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),

		PaperQty:     paperQty,
		StrategyPath: getEnv("STRATEGY_PATH", ""),
		WarmupLimit:  warmup,
		TickExits:    tickExits,

		ReportAt: getEnv("REPORT_AT", "00:00"),
		Timezone: getEnv("TIMEZONE", "UTC"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate asserts the config holds sane inputs.
func (c *Config) Validate() error {
	var errs error

	if c.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if _, err := IntervalDuration(c.Interval); err != nil {
		errs = errors.Join(errs, err)
	}
	if c.PaperQty <= 0 {
		errs = errors.Join(errs, fmt.Errorf("paper quantity must be positive, got %v", c.PaperQty))
	}
	if c.WarmupLimit <= 0 || c.WarmupLimit > 1000 {
		errs = errors.Join(errs, fmt.Errorf("warm-up limit must be within [1,1000], got %d", c.WarmupLimit))
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		errs = errors.Join(errs, fmt.Errorf("telegram token and chat id must be set together"))
	}
	if _, err := time.Parse("15:04", c.ReportAt); err != nil {
		errs = errors.Join(errs, fmt.Errorf("report time %q is not HH:MM", c.ReportAt))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = errors.Join(errs, fmt.Errorf("unknown timezone %q", c.Timezone))
	}

	return errs
}

// Location returns the configured timezone, UTC on error.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// IntervalDuration maps an exchange kline interval to its duration.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return d, nil
}

// LoadStrategy reads strategy parameters from a YAML file. Keys missing from
// the file keep their default values; an empty path returns the defaults.
func LoadStrategy(path string) (strategy.Config, error) {
	cfg := strategy.DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, v)
	}
	return f, nil
}

func getInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	return b, nil
}
