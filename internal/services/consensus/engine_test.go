package consensus

import (
	"context"
	"errors"
	"testing"

	"SignalHook/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func result(id string, class models.Classification, w float64) models.EvaluationResult {
	return models.EvaluationResult{IndicatorID: id, Classification: class, Weight: w}
}

func bot(mode models.SignalMode) *models.Bot {
	return &models.Bot{ID: "bot-1", Symbol: "BTCUSDT", SignalMode: mode}
}

func TestAllRejectsWhenOneNeutral(t *testing.T) {
	e := NewEngine()
	res := []models.EvaluationResult{result("rsi", models.ClassBuy, 1), result("ema", models.ClassNeutral, 1)}

	d := e.Decide(context.Background(), bot(models.SignalModeAll), models.ActionBuy, res)
	assert.False(t, d.ShouldTrade)
	assert.Contains(t, d.Reason, "not all indicators agree")
	assert.Contains(t, d.Reason, "1 of 2")
}

func TestAnyAcceptsWithOneActive(t *testing.T) {
	e := NewEngine()
	res := []models.EvaluationResult{result("rsi", models.ClassBuy, 1), result("ema", models.ClassNeutral, 1)}

	d := e.Decide(context.Background(), bot(models.SignalModeAny), models.ActionBuy, res)
	assert.True(t, d.ShouldTrade)
	assert.Contains(t, d.Reason, "at least one indicator agrees")
}

func TestAnyRejectsWhenNoneActive(t *testing.T) {
	e := NewEngine()
	res := []models.EvaluationResult{result("rsi", models.ClassSell, 1)}

	d := e.Decide(context.Background(), bot(models.SignalModeAny), models.ActionBuy, res)
	assert.False(t, d.ShouldTrade)
}

func TestMajorityTieIsRejected(t *testing.T) {
	assertion := assert.New(t)
	e := NewEngine()
	res := []models.EvaluationResult{
		result("rsi", models.ClassBuy, 2),
		result("macd", models.ClassSell, 1),
		result("ema", models.ClassSell, 1),
	}

	d := e.Decide(context.Background(), bot(models.SignalModeMajority), models.ActionBuy, res)
	assertion.False(d.ShouldTrade)
	assertion.Equal(2.0, d.ActiveWeight)
	assertion.Equal(4.0, d.TotalWeight)
	assertion.Contains(d.Reason, "active weight 2.00 of total 4.00")
	assertion.Contains(d.Reason, "threshold > 2.00")
}

func TestMajorityAccepts(t *testing.T) {
	e := NewEngine()
	res := []models.EvaluationResult{
		result("rsi", models.ClassSell, 2),
		result("macd", models.ClassSell, 1),
		result("ema", models.ClassBuy, 2),
	}

	d := e.Decide(context.Background(), bot(models.SignalModeMajority), models.ActionSell, res)
	assert.True(t, d.ShouldTrade)
	assert.Equal(t, 3.0, d.ActiveWeight)
}

func TestMajorityZeroWeightRejects(t *testing.T) {
	e := NewEngine()
	res := []models.EvaluationResult{result("rsi", models.ClassBuy, 0)}

	d := e.Decide(context.Background(), bot(models.SignalModeMajority), models.ActionBuy, res)
	assert.False(t, d.ShouldTrade)
}

func TestEmptyIndicatorsTradeInEveryMode(t *testing.T) {
	e := NewEngine()
	for _, mode := range []models.SignalMode{models.SignalModeAny, models.SignalModeAll, models.SignalModeMajority, models.SignalModeCustom} {
		d := e.Decide(context.Background(), bot(mode), models.ActionSell, nil)
		assert.True(t, d.ShouldTrade, string(mode))
		assert.Equal(t, ReasonNoIndicators, d.Reason)
	}
}

func TestCloseBypassesConsensus(t *testing.T) {
	e := NewEngine()
	res := []models.EvaluationResult{result("rsi", models.ClassNeutral, 1)}

	d := e.Decide(context.Background(), bot(models.SignalModeAll), models.ActionClose, res)
	assert.True(t, d.ShouldTrade)
	assert.Equal(t, ReasonCloseBypass, d.Reason)
}

func TestCustomFailsClosedWithoutPolicy(t *testing.T) {
	e := NewEngine()
	res := []models.EvaluationResult{result("rsi", models.ClassBuy, 1)}

	d := e.Decide(context.Background(), bot(models.SignalModeCustom), models.ActionBuy, res)
	assert.False(t, d.ShouldTrade)
	assert.True(t, d.Misconfigured)
	assert.Equal(t, ReasonNoPolicy, d.Reason)
}

func TestCustomUsesRegisteredPolicy(t *testing.T) {
	e := NewEngine()
	e.RegisterPolicy("bot-1", PolicyFunc(func(_ context.Context, _ *models.Bot, _ models.SignalAction, rs []models.EvaluationResult) (bool, string, error) {
		return len(rs) == 1, "single indicator rule", nil
	}))
	res := []models.EvaluationResult{result("rsi", models.ClassBuy, 1)}

	d := e.Decide(context.Background(), bot(models.SignalModeCustom), models.ActionBuy, res)
	assert.True(t, d.ShouldTrade)
	assert.Contains(t, d.Reason, "single indicator rule")

	e.RegisterPolicy("bot-1", PolicyFunc(func(context.Context, *models.Bot, models.SignalAction, []models.EvaluationResult) (bool, string, error) {
		return true, "", errors.New("boom")
	}))
	d = e.Decide(context.Background(), bot(models.SignalModeCustom), models.ActionBuy, res)
	assert.False(t, d.ShouldTrade)
	assert.Contains(t, d.Reason, "boom")

	e.RegisterPolicy("bot-1", nil)
	d = e.Decide(context.Background(), bot(models.SignalModeCustom), models.ActionBuy, res)
	assert.Equal(t, ReasonNoPolicy, d.Reason)
}

func TestUnknownModeFailsClosed(t *testing.T) {
	e := NewEngine()
	res := []models.EvaluationResult{result("rsi", models.ClassBuy, 1)}

	d := e.Decide(context.Background(), bot("WEIGHTED"), models.ActionBuy, res)
	assert.False(t, d.ShouldTrade)
	assert.True(t, d.Misconfigured)
}
