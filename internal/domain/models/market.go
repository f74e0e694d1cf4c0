package models

import "time"

// Candle is an OHLCV bar used by the volatility and insight sources.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Tick is a single trade print from the quote stream.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// EdgeScore is the prior-model insight for a symbol.
type EdgeScore struct {
	Symbol     string
	Timestamp  time.Time
	Horizon    string
	ProbaUp    float64 // probability of price going up
	Regime     string
	Sigma      float64
	Confidence float64
}
