package models

// IndicatorType is the closed set of indicator kinds the evaluator understands.
type IndicatorType string

const (
	IndicatorRSI       IndicatorType = "RSI"
	IndicatorMACD      IndicatorType = "MACD"
	IndicatorEMACross  IndicatorType = "EMA_CROSS"
	IndicatorSMA       IndicatorType = "SMA"
	IndicatorEMA       IndicatorType = "EMA"
	IndicatorBollinger IndicatorType = "BOLLINGER"
	IndicatorATR       IndicatorType = "ATR"
	IndicatorStoch     IndicatorType = "STOCH"
)

// SignalOperator compares an indicator value against thresholds.
type SignalOperator string

const (
	OpLT           SignalOperator = "lt"
	OpLTE          SignalOperator = "lte"
	OpGT           SignalOperator = "gt"
	OpGTE          SignalOperator = "gte"
	OpEQ           SignalOperator = "eq"
	OpBetween      SignalOperator = "between"
	OpOutside      SignalOperator = "outside"
	OpCrossesAbove SignalOperator = "crosses_above"
	OpCrossesBelow SignalOperator = "crosses_below"
)

// SignalSpec is one side (buy or sell) of an indicator rule.
type SignalSpec struct {
	Operator SignalOperator `json:"operator" yaml:"operator" validate:"required,oneof=lt lte gt gte eq between outside crosses_above crosses_below"`
	Value    float64        `json:"value" yaml:"value"`
	Value2   *float64       `json:"value2,omitempty" yaml:"value2,omitempty"`
	// Field picks a component of a composite value; empty means the primary component.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
}

// IndicatorConfig is a single weighted rule attached to a bot.
type IndicatorConfig struct {
	ID         string                 `json:"id"`
	Type       IndicatorType          `json:"type"`
	Name       string                 `json:"name,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Weight     float64                `json:"weight"`
	Enabled    bool                   `json:"enabled"`
	BuySignal  *SignalSpec            `json:"buy_signal,omitempty"`
	SellSignal *SignalSpec            `json:"sell_signal,omitempty"`
}

// Label is a human readable identifier for logs and reasons.
func (c IndicatorConfig) Label() string {
	if c.Name != "" {
		return c.Name
	}
	if c.ID != "" {
		return c.ID
	}
	return string(c.Type)
}

// Classification is the direction an indicator points to.
type Classification string

const (
	ClassBuy     Classification = "buy"
	ClassSell    Classification = "sell"
	ClassNeutral Classification = "neutral"
)

// EvaluationResult is the outcome of evaluating one indicator against a snapshot.
type EvaluationResult struct {
	IndicatorID    string             `json:"indicator_id"`
	Name           string             `json:"name,omitempty"`
	Type           IndicatorType      `json:"type"`
	Value          float64            `json:"value"`
	Components     map[string]float64 `json:"components,omitempty"`
	Classification Classification     `json:"classification"`
	Weight         float64            `json:"weight"`
	Note           string             `json:"note,omitempty"`
}
