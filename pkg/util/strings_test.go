package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":          "BTCUSDT",
		"btcusdt":          "BTCUSDT",
		"BINANCE:BTCUSDT":  "BTCUSDT",
		"binance:btc/usdt": "BTCUSDT",
		" ETH-USD ":        "ETHUSD",
		"SOL_USDT":         "SOLUSDT",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeSymbol(in), in)
	}
}

func TestParseIntDefaultAndClamp(t *testing.T) {
	assert.Equal(t, 50, ParseIntDefault("", 50))
	assert.Equal(t, 50, ParseIntDefault("abc", 50))
	assert.Equal(t, 7, ParseIntDefault("7", 50))
	assert.Equal(t, 500, ClampInt(9000, 1, 500))
	assert.Equal(t, 1, ClampInt(-3, 1, 500))
}
