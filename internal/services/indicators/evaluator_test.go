package indicators

import (
	"testing"
	"time"

	"SignalHook/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(closes ...float64) *models.MarketSnapshot {
	s := &models.MarketSnapshot{Symbol: "BTCUSDT", Timeframe: "1h"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Candles = append(s.Candles, models.Candle{
			Bucket: start.Add(time.Duration(i) * time.Hour),
			Symbol: "BTCUSDT",
			Open:   c, High: c + 1, Low: c - 1, Close: c,
		})
	}
	return s
}

func falling(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 200 - float64(i)
	}
	return out
}

func TestEvaluateRSIBuy(t *testing.T) {
	assertion := assert.New(t)
	e := NewEvaluator()

	cfg := models.IndicatorConfig{
		ID: "rsi", Type: models.IndicatorRSI, Weight: 1, Enabled: true,
		Params:     map[string]interface{}{"period": 14},
		BuySignal:  &models.SignalSpec{Operator: models.OpLT, Value: 30},
		SellSignal: &models.SignalSpec{Operator: models.OpGT, Value: 70},
	}
	res := e.Evaluate(cfg, snapshotOf(falling(20)...))

	assertion.Equal(models.ClassBuy, res.Classification)
	assertion.Equal(0.0, res.Value)
	assertion.Equal(1.0, res.Weight)
	assertion.Empty(res.Note)
}

func TestEvaluateMissingSpecIsNeutral(t *testing.T) {
	e := NewEvaluator()
	cfg := models.IndicatorConfig{ID: "rsi", Type: models.IndicatorRSI, Enabled: true, Weight: 1}

	res := e.Evaluate(cfg, snapshotOf(falling(20)...))
	assert.Equal(t, models.ClassNeutral, res.Classification)
	assert.Equal(t, 0.0, res.Value)
}

func TestEvaluateUnknownTypeIsNeutralZero(t *testing.T) {
	e := NewEvaluator()
	cfg := models.IndicatorConfig{
		ID: "x", Type: "ICHIMOKU", Enabled: true, Weight: 2,
		BuySignal: &models.SignalSpec{Operator: models.OpGT, Value: -1},
	}

	res := e.Evaluate(cfg, snapshotOf(falling(50)...))
	assert.Equal(t, models.ClassNeutral, res.Classification)
	assert.Equal(t, 0.0, res.Value)
	assert.Equal(t, NoteUnknownType, res.Note)
	assert.Equal(t, 2.0, res.Weight)
}

func TestEvaluateInsufficientData(t *testing.T) {
	e := NewEvaluator()
	cfg := models.IndicatorConfig{
		ID: "rsi", Type: models.IndicatorRSI, Enabled: true, Weight: 1,
		BuySignal: &models.SignalSpec{Operator: models.OpLT, Value: 30},
	}

	res := e.Evaluate(cfg, snapshotOf(1, 2, 3))
	assert.Equal(t, models.ClassNeutral, res.Classification)
	assert.Equal(t, NoteInsufficientData, res.Note)
}

func TestEvaluateAllSkipsDisabled(t *testing.T) {
	e := NewEvaluator()
	cfgs := []models.IndicatorConfig{
		{ID: "a", Type: models.IndicatorRSI, Enabled: true, Weight: 1},
		{ID: "b", Type: models.IndicatorSMA, Enabled: false, Weight: 1},
		{ID: "c", Type: models.IndicatorATR, Enabled: true, Weight: 1},
	}

	res := e.EvaluateAll(cfgs, snapshotOf(falling(30)...))
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].IndicatorID)
	assert.Equal(t, "c", res[1].IndicatorID)
}

func TestEvaluateCrossesAbove(t *testing.T) {
	e := NewEvaluator()
	cfg := models.IndicatorConfig{
		ID: "sma", Type: models.IndicatorSMA, Enabled: true, Weight: 1,
		Params:     map[string]interface{}{"period": 3},
		BuySignal:  &models.SignalSpec{Operator: models.OpCrossesAbove, Value: 0},
		SellSignal: &models.SignalSpec{Operator: models.OpCrossesBelow, Value: 0},
	}

	// previous bar sits on the average, last bar jumps above it
	res := e.Evaluate(cfg, snapshotOf(10, 10, 10, 10, 12))
	assert.Equal(t, models.ClassBuy, res.Classification)
	assert.InDelta(t, 12.5, res.Value, 1e-6)

	// already above on both bars: no crossing
	res = e.Evaluate(cfg, snapshotOf(10, 10, 10, 12, 13))
	assert.Equal(t, models.ClassNeutral, res.Classification)
}

func TestEvaluateComponentField(t *testing.T) {
	e := NewEvaluator()
	cfg := models.IndicatorConfig{
		ID: "bb", Type: models.IndicatorBollinger, Enabled: true, Weight: 1,
		Params:    map[string]interface{}{"period": 5, "stddev": 2},
		BuySignal: &models.SignalSpec{Operator: models.OpGT, Value: 0, Field: "lower"},
	}

	res := e.Evaluate(cfg, snapshotOf(10, 11, 12, 11, 10))
	assert.Equal(t, models.ClassBuy, res.Classification)
	assert.Contains(t, res.Components, "upper")
	assert.Contains(t, res.Components, "percent_b")
}

func TestEvaluateConflictingSidesIsNeutral(t *testing.T) {
	e := NewEvaluator()
	cfg := models.IndicatorConfig{
		ID: "rsi", Type: models.IndicatorRSI, Enabled: true, Weight: 1,
		BuySignal:  &models.SignalSpec{Operator: models.OpLT, Value: 50},
		SellSignal: &models.SignalSpec{Operator: models.OpLT, Value: 60},
	}

	res := e.Evaluate(cfg, snapshotOf(falling(20)...))
	assert.Equal(t, models.ClassNeutral, res.Classification)
	assert.Equal(t, NoteConflict, res.Note)
}

func TestBetweenAndOutside(t *testing.T) {
	lo := 30.0
	between := &models.SignalSpec{Operator: models.OpBetween, Value: 70, Value2: &lo}
	outside := &models.SignalSpec{Operator: models.OpOutside, Value: 70, Value2: &lo}

	assert.True(t, holds(between, 50, 0))
	assert.True(t, holds(between, 30, 0))
	assert.False(t, holds(between, 71, 0))
	assert.True(t, holds(outside, 71, 0))
	assert.False(t, holds(outside, 50, 0))

	missing := &models.SignalSpec{Operator: models.OpBetween, Value: 70}
	assert.False(t, holds(missing, 50, 0))
}

func TestRequiredBars(t *testing.T) {
	e := NewEvaluator()
	cfgs := []models.IndicatorConfig{
		{Type: models.IndicatorRSI, Enabled: true},
		{Type: models.IndicatorMACD, Enabled: true},
		{Type: models.IndicatorSMA, Enabled: false, Params: map[string]interface{}{"period": 200}},
	}
	// MACD 26 + 9 - 1 = 34, plus one lookback bar
	assert.Equal(t, 35, e.RequiredBars(cfgs))
}
