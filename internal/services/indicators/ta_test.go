package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA(t *testing.T) {
	assertion := assert.New(t)

	assertion.InDelta(4.0, SMA([]float64{1, 2, 3, 4, 5}, 3), 1e-9)
	assertion.True(math.IsNaN(SMA([]float64{1, 2}, 3)))
}

func TestEMAConstantSeries(t *testing.T) {
	vals := []float64{5, 5, 5, 5, 5, 5, 5, 5}
	assert.InDelta(t, 5.0, EMA(vals, 3), 1e-9)
	assert.Len(t, EMASeries(vals, 3), 6)
	assert.True(t, math.IsNaN(EMA(vals[:2], 3)))
}

func TestRSIExtremes(t *testing.T) {
	assertion := assert.New(t)

	rising := []float64{1, 2, 3, 4, 5, 6}
	falling := []float64{6, 5, 4, 3, 2, 1}
	flat := []float64{1, 1, 1, 1, 1, 1}

	assertion.Equal(100.0, RSI(rising, 5))
	assertion.Equal(0.0, RSI(falling, 5))
	assertion.Equal(50.0, RSI(flat, 5))
	assertion.True(math.IsNaN(RSI(rising, 6)))
}

func TestRSIMixed(t *testing.T) {
	// gains 2, losses 1 over 3 deltas: rs = 2, rsi = 66.67
	closes := []float64{10, 12, 11, 11}
	assert.InDelta(t, 66.6667, RSI(closes, 3), 1e-3)
}

func TestMACDConstantSeriesIsZero(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	line, sig, hist := MACD(closes, 12, 26, 9)
	assert.InDelta(t, 0.0, line, 1e-9)
	assert.InDelta(t, 0.0, sig, 1e-9)
	assert.InDelta(t, 0.0, hist, 1e-9)

	_, _, hist = MACD(closes[:30], 12, 26, 9)
	assert.True(t, math.IsNaN(hist))
}

func TestMACDUptrendPositive(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	line, _, _ := MACD(closes, 12, 26, 9)
	assert.Greater(t, line, 0.0)
}

func TestBollingerAndStdDev(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, StdDev(closes, 8), 1e-9)

	mid, up, low := Bollinger(closes, 8, 2)
	assert.InDelta(t, 5.0, mid, 1e-9)
	assert.InDelta(t, 9.0, up, 1e-9)
	assert.InDelta(t, 1.0, low, 1e-9)
}

func TestATR(t *testing.T) {
	highs := []float64{11, 12, 13}
	lows := []float64{9, 10, 11}
	closes := []float64{10, 11, 12}
	// true ranges of the last two bars are both 2
	assert.InDelta(t, 2.0, ATR(highs, lows, closes, 2), 1e-9)
	assert.True(t, math.IsNaN(ATR(highs, lows, closes, 3)))
}

func TestStochastic(t *testing.T) {
	highs := []float64{10, 10, 10, 10}
	lows := []float64{0, 0, 0, 0}
	closes := []float64{5, 10, 0, 10}

	k, d := Stochastic(highs, lows, closes, 2, 2)
	assert.InDelta(t, 100.0, k, 1e-9)
	assert.InDelta(t, 50.0, d, 1e-9)
}
