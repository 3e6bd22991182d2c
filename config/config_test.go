package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"trendbot/internal/strategy"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYMBOL", "ethusdt")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
	assert.Equal(t, cfg.Symbol, "ETHUSDT")
	assert.Equal(t, cfg.Interval, "1h")
	assert.Equal(t, cfg.PaperQty, 0.001)
	assert.Equal(t, cfg.WarmupLimit, 500)
	assert.True(t, cfg.TickExits)
	assert.True(t, cfg.Location() == time.UTC)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "INTERVAL=4h\nPAPER_QTY=0.5\nTICK_EXITS=false\n"
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// godotenv does not override variables that are already set
	t.Setenv("INTERVAL", "")
	t.Setenv("PAPER_QTY", "")
	t.Setenv("TICK_EXITS", "")
	os.Unsetenv("INTERVAL")
	os.Unsetenv("PAPER_QTY")
	os.Unsetenv("TICK_EXITS")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, cfg.Interval, "4h")
	assert.Equal(t, cfg.PaperQty, 0.5)
	assert.False(t, cfg.TickExits)
}

func TestLoadParseErrors(t *testing.T) {
	t.Setenv("PAPER_QTY", "lots")
	t.Setenv("WARMUP_LIMIT", "many")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "PAPER_QTY"))
	assert.True(t, strings.Contains(err.Error(), "WARMUP_LIMIT"))
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Symbol:      "BTCUSDT",
			Interval:    "1h",
			PaperQty:    1,
			WarmupLimit: 100,
			ReportAt:    "08:30",
			Timezone:    "UTC",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no symbol", func(c *Config) { c.Symbol = "" }, "symbol cannot be an empty string"},
		{"bad interval", func(c *Config) { c.Interval = "7m" }, `unsupported interval "7m"`},
		{"zero qty", func(c *Config) { c.PaperQty = 0 }, "paper quantity must be positive"},
		{"warm-up too large", func(c *Config) { c.WarmupLimit = 5000 }, "warm-up limit"},
		{"telegram half configured", func(c *Config) { c.TelegramToken = "t" }, "telegram token and chat id"},
		{"bad report time", func(c *Config) { c.ReportAt = "8am" }, "not HH:MM"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "unknown timezone"},
	}

	for _, test := range tests {
		cfg := valid()
		test.mutate(cfg)
		err := cfg.Validate()
		if test.wantErr == "" {
			assert.NoError(t, err)
			continue
		}
		assert.Error(t, err)
		if !strings.Contains(err.Error(), test.wantErr) {
			t.Errorf("%s: expected error containing %q, got %q", test.name, test.wantErr, err.Error())
		}
	}
}

func TestIntervalDuration(t *testing.T) {
	d, err := IntervalDuration("15m")
	assert.NoError(t, err)
	assert.Equal(t, d, 15*time.Minute)

	_, err = IntervalDuration("1w")
	assert.Error(t, err)
}

func TestLoadStrategy(t *testing.T) {
	cfg, err := LoadStrategy("")
	assert.NoError(t, err)
	assert.Equal(t, cfg, strategy.DefaultConfig())

	path := filepath.Join(t.TempDir(), "strategy.yaml")
	yml := "adx_period: 10\nadx_level: 25\nstop_loss_pct: 0.02\n"
	assert.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err = LoadStrategy(path)
	assert.NoError(t, err)
	assert.Equal(t, cfg.ADXPeriod, 10)
	assert.Equal(t, cfg.ADXLevel, 25.0)
	assert.Equal(t, cfg.StopLossPct, 0.02)
	// Untouched keys keep defaults
	assert.Equal(t, cfg.TakeProfitPct, 0.16)
	assert.Equal(t, cfg.WindowSize, 250)
}

func TestLoadStrategyInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("ema_long: -5\n"), 0o600))

	_, err := LoadStrategy(path)
	var cfgErr *strategy.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
