package strategy

import (
	"fmt"
	"math"
	"time"

	"rsibot/internal/indicator"
)

// Features toggles optional engine behaviour. The flags are orthogonal.
type Features struct {
	// DualRSI requires the RSI of both indicator implementations to cross a
	// threshold before the signal fires.
	DualRSI bool `json:"dual_rsi" yaml:"dual_rsi"`
	// ATRTracking adds the ATR to every snapshot.
	ATRTracking bool `json:"atr_tracking" yaml:"atr_tracking"`
	// ExternalSignalFilter routes position-opening signals through Config.Filter.
	ExternalSignalFilter bool `json:"external_signal_filter" yaml:"external_signal_filter"`
}

// Config is the engine construction configuration.
type Config struct {
	RSIPeriod      int
	BuyThreshold   float64
	SellThreshold  float64
	BBPeriod       int
	BBStdDev       float64
	CandleInterval time.Duration
	ATRPeriod      int
	Mode           indicator.Mode
	Features       Features

	// Filter is consulted only when Features.ExternalSignalFilter is set.
	// Nil means NoOpFilter.
	Filter Filter
}

// DefaultConfig returns the stock RSI 14 / 30 / 70, BB 20 / 2.0, 5 minute setup.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:      14,
		BuyThreshold:   30,
		SellThreshold:  70,
		BBPeriod:       20,
		BBStdDev:       2.0,
		CandleInterval: 5 * time.Minute,
		ATRPeriod:      14,
		Mode:           indicator.ModeCustom,
	}
}

// Validate checks every field. Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.RSIPeriod <= 0:
		return fmt.Errorf("%w: rsi period %d must be > 0", ErrInvalidConfig, c.RSIPeriod)
	case !inRange(c.BuyThreshold) || !inRange(c.SellThreshold):
		return fmt.Errorf("%w: rsi thresholds %v/%v must be within [0,100]", ErrInvalidConfig, c.BuyThreshold, c.SellThreshold)
	case c.BuyThreshold >= c.SellThreshold:
		return fmt.Errorf("%w: buy threshold %v must be below sell threshold %v", ErrInvalidConfig, c.BuyThreshold, c.SellThreshold)
	case c.BBPeriod <= 0:
		return fmt.Errorf("%w: bb period %d must be > 0", ErrInvalidConfig, c.BBPeriod)
	case !(c.BBStdDev > 0) || math.IsInf(c.BBStdDev, 0):
		return fmt.Errorf("%w: bb std multiplier %v must be > 0", ErrInvalidConfig, c.BBStdDev)
	case c.CandleInterval <= 0:
		return fmt.Errorf("%w: candle interval %v must be > 0", ErrInvalidConfig, c.CandleInterval)
	case c.Features.ATRTracking && c.ATRPeriod <= 0:
		return fmt.Errorf("%w: atr period %d must be > 0", ErrInvalidConfig, c.ATRPeriod)
	case c.Mode != indicator.ModeCustom && c.Mode != indicator.ModeLibrary:
		return fmt.Errorf("%w: unknown indicator mode %v", ErrInvalidConfig, c.Mode)
	}
	return nil
}

func inRange(v float64) bool {
	return v >= 0 && v <= 100
}
