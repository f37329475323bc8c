package indicators

import (
	"errors"
	"testing"

	"SignalHook/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKindDefaults(t *testing.T) {
	k, err := parseKind(models.IndicatorMACD, nil)
	require.NoError(t, err)

	p, ok := k.(*MACDParams)
	require.True(t, ok)
	assert.Equal(t, 12, p.Fast)
	assert.Equal(t, 26, p.Slow)
	assert.Equal(t, 9, p.Signal)
}

func TestParseKindOverrides(t *testing.T) {
	k, err := parseKind(models.IndicatorBollinger, map[string]interface{}{"period": 10, "stddev": 1.5})
	require.NoError(t, err)

	p := k.(*BollingerParams)
	assert.Equal(t, 10, p.Period)
	assert.Equal(t, 1.5, p.StdDev)
}

func TestParseKindRejectsBadParams(t *testing.T) {
	_, err := parseKind(models.IndicatorEMACross, map[string]interface{}{"fast": 30, "slow": 10})
	assert.Error(t, err)

	_, err = parseKind(models.IndicatorRSI, map[string]interface{}{"period": "fourteen"})
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	assertion := assert.New(t)

	ok := models.IndicatorConfig{
		ID: "rsi", Type: models.IndicatorRSI, Weight: 1, Enabled: true,
		BuySignal: &models.SignalSpec{Operator: models.OpLT, Value: 30},
	}
	assertion.NoError(ValidateConfig(ok))

	unknown := models.IndicatorConfig{ID: "x", Type: "VWAP", Weight: 1}
	err := ValidateConfig(unknown)
	assertion.Error(err)
	assertion.True(errors.Is(err, ErrUnknownType))

	negative := ok
	negative.Weight = -1
	assertion.Error(ValidateConfig(negative))

	noUpper := ok
	noUpper.BuySignal = &models.SignalSpec{Operator: models.OpBetween, Value: 30}
	assertion.Error(ValidateConfig(noUpper))

	badField := ok
	badField.BuySignal = &models.SignalSpec{Operator: models.OpLT, Value: 30, Field: "histogram"}
	assertion.Error(ValidateConfig(badField))

	badOp := ok
	badOp.SellSignal = &models.SignalSpec{Operator: "approx", Value: 30}
	assertion.Error(ValidateConfig(badOp))
}
