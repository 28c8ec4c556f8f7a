// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML strategy file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rsibot/internal/indicator"
	"rsibot/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Symbol string `env:"SYMBOL" envDefault:"BTCUSDT"`

	// Strategy
	RSIPeriod           int     `env:"RSI_PERIOD" envDefault:"14" yaml:"rsi_period"`
	RSIBuyThreshold     float64 `env:"RSI_BUY_THRESHOLD" envDefault:"30" yaml:"rsi_buy_threshold"`
	RSISellThreshold    float64 `env:"RSI_SELL_THRESHOLD" envDefault:"70" yaml:"rsi_sell_threshold"`
	BBPeriod            int     `env:"BB_PERIOD" envDefault:"20" yaml:"bb_period"`
	BBStdDev            float64 `env:"BB_STD_DEV" envDefault:"2.0" yaml:"bb_std_dev"`
	CandleMinutes       int     `env:"CANDLE_MINUTES" envDefault:"5" yaml:"candle_minutes"`
	IndicatorMode       string  `env:"INDICATOR_MODE" envDefault:"custom" yaml:"indicator_mode"`
	DualRSI             bool    `env:"DUAL_RSI" yaml:"dual_rsi"`
	ATRTracking         bool    `env:"ATR_TRACKING" yaml:"atr_tracking"`
	ATRPeriod           int     `env:"ATR_PERIOD" envDefault:"14" yaml:"atr_period"`
	SignalFilter        string  `env:"SIGNAL_FILTER" envDefault:"none" yaml:"signal_filter"`
	FilterMinConfidence float64 `env:"FILTER_MIN_CONFIDENCE" envDefault:"0" yaml:"filter_min_confidence"`
	StrategyFile        string  `env:"STRATEGY_FILE"`

	// Trading
	PositionSize   float64 `env:"POSITION_SIZE" envDefault:"0.01"`
	LimitOffset    float64 `env:"LIMIT_OFFSET" envDefault:"0.001"`
	PreloadCandles int     `env:"PRELOAD_CANDLES" envDefault:"50"`
	SlippageBps    float64 `env:"SLIPPAGE_BPS" envDefault:"0"`

	// Venue credentials, only checked by the status command
	APIKey           string `env:"API_KEY"`
	APISecret        string `env:"API_SECRET"`
	Testnet          string `env:"TESTNET"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`

	// Feed
	FeedURL              string        `env:"FEED_URL" envDefault:"ws://localhost:8765/ticks"`
	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY" envDefault:"30s"`
	MaxReconnectDelay    time.Duration `env:"MAX_RECONNECT_DELAY" envDefault:"5m"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"10"`
	StaleAfter           time.Duration `env:"FEED_STALE_AFTER" envDefault:"2m"`

	// Infrastructure
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	StateInterval time.Duration `env:"STATE_INTERVAL" envDefault:"5s"`
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"data/ticks.db"`
	JournalPath   string        `env:"JOURNAL_PATH" envDefault:"data/journal.db"`
	MetricsAddr   string        `env:"METRICS_ADDR" envDefault:":9090"`
	WebhookURL    string        `env:"WEBHOOK_URL"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads configuration from .env (if present) and the environment, then
// applies STRATEGY_FILE when set.
func Load() (*Config, error) {
	// Ignore error if .env is missing
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.StrategyFile != "" {
		if err := cfg.ApplyStrategyFile(cfg.StrategyFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ApplyStrategyFile overrides the strategy fields with the ones present in
// the YAML file at path. Keys missing from the file keep their value.
func (c *Config) ApplyStrategyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read strategy file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse strategy file %s: %w", path, err)
	}
	return nil
}

// Strategy converts the strategy fields into a validated engine config.
func (c *Config) Strategy() (strategy.Config, error) {
	mode, err := indicator.ParseMode(c.IndicatorMode)
	if err != nil {
		return strategy.Config{}, fmt.Errorf("%w: %v", strategy.ErrInvalidConfig, err)
	}
	filter, err := strategy.ParseFilter(c.SignalFilter, c.FilterMinConfidence)
	if err != nil {
		return strategy.Config{}, err
	}
	_, noop := filter.(strategy.NoOpFilter)

	sc := strategy.Config{
		RSIPeriod:      c.RSIPeriod,
		BuyThreshold:   c.RSIBuyThreshold,
		SellThreshold:  c.RSISellThreshold,
		BBPeriod:       c.BBPeriod,
		BBStdDev:       c.BBStdDev,
		CandleInterval: time.Duration(c.CandleMinutes) * time.Minute,
		ATRPeriod:      c.ATRPeriod,
		Mode:           mode,
		Features: strategy.Features{
			DualRSI:              c.DualRSI,
			ATRTracking:          c.ATRTracking,
			ExternalSignalFilter: !noop,
		},
		Filter: filter,
	}
	if err := sc.Validate(); err != nil {
		return strategy.Config{}, err
	}
	return sc, nil
}
