package model

// Bands is a Bollinger Bands triple.
type Bands struct {
	Mean  float64 `json:"mean"`
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// IndicatorSnapshot holds the indicator values computed for one candle.
// Bands is nil until enough candles exist. RSIAlt and ATR are only
// populated when the matching engine feature is enabled.
type IndicatorSnapshot struct {
	RSI    float64 `json:"rsi"`
	RSIAlt float64 `json:"rsi_alt"`
	Bands  *Bands  `json:"bb"`
	ATR    float64 `json:"atr"`
}
