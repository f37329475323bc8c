package models

import "time"

// Candle represents an OHLCV bar.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// MarketSnapshot is a window of closed bars, oldest first.
type MarketSnapshot struct {
	Symbol    string
	Timeframe string
	Candles   []Candle
}

// Closes returns the close series.
func (s *MarketSnapshot) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high series.
func (s *MarketSnapshot) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

// Lows returns the low series.
func (s *MarketSnapshot) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

// Previous returns the snapshot without its last bar, used for crossing lookback.
func (s *MarketSnapshot) Previous() *MarketSnapshot {
	if len(s.Candles) == 0 {
		return s
	}
	return &MarketSnapshot{Symbol: s.Symbol, Timeframe: s.Timeframe, Candles: s.Candles[:len(s.Candles)-1]}
}
