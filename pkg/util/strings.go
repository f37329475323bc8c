package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var symbolSeparators = strings.NewReplacer("/", "", "-", "", "_", "", " ", "")

// NormalizeSymbol makes "BINANCE:btc/usdt", "BTC-USDT" and "btcusdt" compare equal.
func NormalizeSymbol(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.ToUpper(symbolSeparators.Replace(s))
}
