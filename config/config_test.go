package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsibot/internal/indicator"
	"rsibot/internal/strategy"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, 14, cfg.RSIPeriod)
	assert.Equal(t, 30.0, cfg.RSIBuyThreshold)
	assert.Equal(t, 70.0, cfg.RSISellThreshold)
	assert.Equal(t, 20, cfg.BBPeriod)
	assert.Equal(t, 2.0, cfg.BBStdDev)
	assert.Equal(t, 5, cfg.CandleMinutes)
	assert.Equal(t, 0.01, cfg.PositionSize)
	assert.Equal(t, 30*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)

	sc, err := cfg.Strategy()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, sc.CandleInterval)
	assert.Equal(t, indicator.ModeCustom, sc.Mode)
	assert.False(t, sc.Features.ExternalSignalFilter)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RSI_PERIOD", "7")
	t.Setenv("CANDLE_MINUTES", "1")
	t.Setenv("INDICATOR_MODE", "library")
	t.Setenv("DUAL_RSI", "true")
	t.Setenv("SIGNAL_FILTER", "threshold")
	t.Setenv("FILTER_MIN_CONFIDENCE", "0.25")

	cfg, err := Load()
	require.NoError(t, err)
	sc, err := cfg.Strategy()
	require.NoError(t, err)

	assert.Equal(t, 7, sc.RSIPeriod)
	assert.Equal(t, time.Minute, sc.CandleInterval)
	assert.Equal(t, indicator.ModeLibrary, sc.Mode)
	assert.True(t, sc.Features.DualRSI)
	assert.True(t, sc.Features.ExternalSignalFilter)
	assert.Equal(t, strategy.ThresholdFilter{MinConfidence: 0.25}, sc.Filter)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SYMBOL=ETHUSDT\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SYMBOL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
}

func TestApplyStrategyFile(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rsi_period: 21\nrsi_buy_threshold: 25\natr_tracking: true\n"), 0o600))
	t.Setenv("STRATEGY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 21, cfg.RSIPeriod)
	assert.Equal(t, 25.0, cfg.RSIBuyThreshold)
	assert.Equal(t, 70.0, cfg.RSISellThreshold, "untouched keys keep their value")
	assert.True(t, cfg.ATRTracking)

	t.Setenv("STRATEGY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestStrategy_Invalid(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	bad := *cfg
	bad.RSIBuyThreshold = 80
	_, err = bad.Strategy()
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)

	bad = *cfg
	bad.IndicatorMode = "wilder"
	_, err = bad.Strategy()
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)

	bad = *cfg
	bad.SignalFilter = "ml"
	_, err = bad.Strategy()
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)
}
