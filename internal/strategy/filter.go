package strategy

import (
	"fmt"

	"rsibot/internal/model"
)

// SignalFeatures is what a Filter sees for a proposed position change.
type SignalFeatures struct {
	Proposed    model.Position
	Current     model.Position
	RSI         float64
	RSIAlt      float64
	Bands       *model.Bands
	ATR         float64
	TickPrice   float64
	CandleClose float64
	Buy         float64 // buy threshold
	Sell        float64 // sell threshold
}

// Filter approves or rejects a proposed position-opening signal and reports
// a confidence in [0,1].
type Filter interface {
	Approve(f SignalFeatures) (bool, float64)
}

// NoOpFilter approves everything.
type NoOpFilter struct{}

func (NoOpFilter) Approve(SignalFeatures) (bool, float64) { return true, 1.0 }

// ThresholdFilter requires the RSI to sit far enough beyond its threshold.
// Confidence is the excess normalised by the threshold's distance to the
// scale edge: (buy-rsi)/buy for longs, (rsi-sell)/(100-sell) for shorts.
type ThresholdFilter struct {
	MinConfidence float64
}

func (f ThresholdFilter) Approve(s SignalFeatures) (bool, float64) {
	var conf float64
	switch s.Proposed {
	case model.Long:
		if s.Buy > 0 {
			conf = (s.Buy - s.RSI) / s.Buy
		}
	case model.Short:
		if s.Sell < 100 {
			conf = (s.RSI - s.Sell) / (100 - s.Sell)
		}
	default:
		return true, 1.0
	}
	conf = clamp01(conf)
	return conf >= f.MinConfidence, conf
}

// BandFilter confirms entries with Bollinger Bands: longs need the tick at or
// below the lower band, shorts at or above the upper band. Entries are
// rejected while the bands are unavailable.
type BandFilter struct{}

func (BandFilter) Approve(s SignalFeatures) (bool, float64) {
	if s.Proposed == model.Flat {
		return true, 1.0
	}
	if s.Bands == nil {
		return false, 0
	}
	b := s.Bands
	width := b.Upper - b.Lower
	switch s.Proposed {
	case model.Long:
		if s.TickPrice > b.Lower {
			return false, 0
		}
		if width == 0 {
			return true, 1.0
		}
		return true, clamp01(0.5 + (b.Lower-s.TickPrice)/width)
	case model.Short:
		if s.TickPrice < b.Upper {
			return false, 0
		}
		if width == 0 {
			return true, 1.0
		}
		return true, clamp01(0.5 + (s.TickPrice-b.Upper)/width)
	}
	return false, 0
}

// ParseFilter builds a Filter from its configuration name.
func ParseFilter(name string, minConfidence float64) (Filter, error) {
	switch name {
	case "", "none", "noop":
		return NoOpFilter{}, nil
	case "threshold":
		return ThresholdFilter{MinConfidence: minConfidence}, nil
	case "bands":
		return BandFilter{}, nil
	}
	return nil, fmt.Errorf("%w: unknown signal filter %q", ErrInvalidConfig, name)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
