package repository

import (
	"strings"
	"time"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1h }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
// TradingView style values ("60", "240", "D") are accepted as well.
func NormalizeTimeframe(s string) Timeframe {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTimeframe()
	}
	if alias, ok := timeframeAliases[strings.ToUpper(s)]; ok {
		return alias
	}
	tf := Timeframe(strings.ToLower(s))
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bar length.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

var timeframeDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

var timeframeAliases = map[string]Timeframe{
	"1":   TF1m,
	"5":   TF5m,
	"15":  TF15m,
	"60":  TF1h,
	"240": TF4h,
	"D":   TF1d,
	"1D":  TF1d,
	"1H":  TF1h,
	"4H":  TF4h,
}
