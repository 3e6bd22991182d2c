package strategy

import (
	"errors"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	// max(2*14, 14+14+3+3-2, 20, 10)
	assert.Equal(t, cfg.WarmupBars(), 32)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr []string
	}{
		{
			name:    "non-positive adx period",
			mutate:  func(c *Config) { c.ADXPeriod = 0 },
			wantErr: []string{"adx_period must be positive"},
		},
		{
			name:    "negative smoothing",
			mutate:  func(c *Config) { c.SmoothK = -1 },
			wantErr: []string{"smooth_k must be positive"},
		},
		{
			name:    "adx level above 100",
			mutate:  func(c *Config) { c.ADXLevel = 120 },
			wantErr: []string{"adx_level must be within [0,100]"},
		},
		{
			name: "oversold above overbought",
			mutate: func(c *Config) {
				c.Oversold = 90
				c.Overbought = 80
			},
			wantErr: []string{"oversold (90) must be below overbought (80)"},
		},
		{
			name:    "stop loss of 100 percent",
			mutate:  func(c *Config) { c.StopLossPct = 1 },
			wantErr: []string{"stop_loss_pct must be within (0,1)"},
		},
		{
			name:    "zero trailing execution",
			mutate:  func(c *Config) { c.TrailingExecPct = 0 },
			wantErr: []string{"trailing_exec_pct must be within (0,1)"},
		},
		{
			name:    "window smaller than warm-up",
			mutate:  func(c *Config) { c.WindowSize = 10 },
			wantErr: []string{"window_size 10 is smaller than the 32 bars"},
		},
		{
			name: "every violation is reported",
			mutate: func(c *Config) {
				c.EMALong = 0
				c.TakeProfitPct = -0.1
				c.ADXDiff = -1
			},
			wantErr: []string{"ema_long must be positive", "take_profit_pct", "adx_diff"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(&cfg)

			err := cfg.Validate()
			assert.Error(t, err)

			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
			for _, want := range test.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error containing %q, got %q", want, err.Error())
				}
			}
		})
	}
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RSILength = 0

	e, err := NewEngine(cfg, Options{Symbol: "BTCUSDT"})
	assert.Nil(t, e)

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
