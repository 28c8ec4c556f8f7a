package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsibot/internal/model"
)

func TestNoOpFilter(t *testing.T) {
	ok, conf := NoOpFilter{}.Approve(SignalFeatures{Proposed: model.Long})
	assert.True(t, ok)
	assert.Equal(t, 1.0, conf)
}

func TestThresholdFilter(t *testing.T) {
	tests := []struct {
		name     string
		min      float64
		features SignalFeatures
		wantOK   bool
		wantConf float64
	}{
		{"long half way", 0.4, SignalFeatures{Proposed: model.Long, RSI: 15, Buy: 30, Sell: 70}, true, 0.5},
		{"long not deep enough", 0.6, SignalFeatures{Proposed: model.Long, RSI: 15, Buy: 30, Sell: 70}, false, 0.5},
		{"short half way", 0.5, SignalFeatures{Proposed: model.Short, RSI: 85, Buy: 30, Sell: 70}, true, 0.5},
		{"short at extreme", 0.9, SignalFeatures{Proposed: model.Short, RSI: 100, Buy: 30, Sell: 70}, true, 1.0},
		{"exit always passes", 0.9, SignalFeatures{Proposed: model.Flat, RSI: 50, Buy: 30, Sell: 70}, true, 1.0},
		{"buy threshold zero", 0.1, SignalFeatures{Proposed: model.Long, RSI: 0, Buy: 0, Sell: 70}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, conf := ThresholdFilter{MinConfidence: tt.min}.Approve(tt.features)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantConf, conf, 1e-12)
		})
	}
}

func TestBandFilter(t *testing.T) {
	bands := &model.Bands{Mean: 100, Upper: 110, Lower: 90}

	ok, _ := BandFilter{}.Approve(SignalFeatures{Proposed: model.Long, TickPrice: 89, Bands: bands})
	assert.True(t, ok)
	ok, _ = BandFilter{}.Approve(SignalFeatures{Proposed: model.Long, TickPrice: 95, Bands: bands})
	assert.False(t, ok)
	ok, _ = BandFilter{}.Approve(SignalFeatures{Proposed: model.Short, TickPrice: 111, Bands: bands})
	assert.True(t, ok)
	ok, _ = BandFilter{}.Approve(SignalFeatures{Proposed: model.Short, TickPrice: 100, Bands: bands})
	assert.False(t, ok)
	ok, _ = BandFilter{}.Approve(SignalFeatures{Proposed: model.Long, TickPrice: 1})
	assert.False(t, ok, "bands unavailable")
	ok, _ = BandFilter{}.Approve(SignalFeatures{Proposed: model.Flat})
	assert.True(t, ok)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("threshold", 0.3)
	require.NoError(t, err)
	assert.Equal(t, ThresholdFilter{MinConfidence: 0.3}, f)

	f, err = ParseFilter("", 0)
	require.NoError(t, err)
	assert.Equal(t, NoOpFilter{}, f)

	f, err = ParseFilter("bands", 0)
	require.NoError(t, err)
	assert.Equal(t, BandFilter{}, f)

	_, err = ParseFilter("ml", 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
