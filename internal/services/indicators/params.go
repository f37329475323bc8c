package indicators

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"SignalHook/internal/domain/models"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// ErrUnknownType is returned for indicator kinds outside the supported set.
var ErrUnknownType = errors.New("unknown indicator type")

var validate = validator.New()

// kind is one member of the indicator tagged union.
type kind interface {
	// minBars is the number of closed bars needed for one value.
	minBars() int
	// primary names the component used when a signal spec has no field.
	primary() string
	fields() []string
	compute(s *models.MarketSnapshot) (map[string]float64, bool)
}

type RSIParams struct {
	Period int `json:"period" default:"14" validate:"gte=2,lte=500"`
}

type MACDParams struct {
	Fast   int `json:"fast" default:"12" validate:"gte=1,lte=500"`
	Slow   int `json:"slow" default:"26" validate:"gtfield=Fast,lte=1000"`
	Signal int `json:"signal" default:"9" validate:"gte=1,lte=500"`
}

type EMACrossParams struct {
	Fast int `json:"fast" default:"9" validate:"gte=1,lte=500"`
	Slow int `json:"slow" default:"21" validate:"gtfield=Fast,lte=1000"`
}

// MAParams serves both SMA and EMA; exponential selects the average.
type MAParams struct {
	Period      int `json:"period" default:"20" validate:"gte=1,lte=1000"`
	exponential bool
}

type BollingerParams struct {
	Period int     `json:"period" default:"20" validate:"gte=2,lte=1000"`
	StdDev float64 `json:"stddev" default:"2" validate:"gt=0,lte=10"`
}

type ATRParams struct {
	Period int `json:"period" default:"14" validate:"gte=1,lte=500"`
}

type StochParams struct {
	K int `json:"k" default:"14" validate:"gte=1,lte=500"`
	D int `json:"d" default:"3" validate:"gte=1,lte=100"`
}

// parseKind decodes raw params into the typed struct for t, applies defaults and validates.
func parseKind(t models.IndicatorType, raw map[string]interface{}) (kind, error) {
	var k kind
	switch t {
	case models.IndicatorRSI:
		k = &RSIParams{}
	case models.IndicatorMACD:
		k = &MACDParams{}
	case models.IndicatorEMACross:
		k = &EMACrossParams{}
	case models.IndicatorSMA:
		k = &MAParams{}
	case models.IndicatorEMA:
		k = &MAParams{exponential: true}
	case models.IndicatorBollinger:
		k = &BollingerParams{}
	case models.IndicatorATR:
		k = &ATRParams{}
	case models.IndicatorStoch:
		k = &StochParams{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	if len(raw) > 0 {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		if err := json.Unmarshal(b, k); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if err := defaults.Set(k); err != nil {
		return nil, fmt.Errorf("default params: %w", err)
	}
	if err := validate.Struct(k); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return k, nil
}

// ValidateConfig rejects configs the evaluator could only treat as neutral.
// It is meant for configuration time; evaluation never fails on a bad config.
func ValidateConfig(cfg models.IndicatorConfig) error {
	k, err := parseKind(cfg.Type, cfg.Params)
	if err != nil {
		return fmt.Errorf("indicator %s: %w", cfg.Label(), err)
	}
	if cfg.Weight < 0 || math.IsNaN(cfg.Weight) || math.IsInf(cfg.Weight, 0) {
		return fmt.Errorf("indicator %s: weight must be a finite number >= 0", cfg.Label())
	}
	for side, spec := range map[string]*models.SignalSpec{"buy_signal": cfg.BuySignal, "sell_signal": cfg.SellSignal} {
		if spec == nil {
			continue
		}
		if err := validate.Struct(spec); err != nil {
			return fmt.Errorf("indicator %s %s: %w", cfg.Label(), side, err)
		}
		if (spec.Operator == models.OpBetween || spec.Operator == models.OpOutside) && spec.Value2 == nil {
			return fmt.Errorf("indicator %s %s: operator %s needs value2", cfg.Label(), side, spec.Operator)
		}
		if spec.Field != "" && !hasField(k, spec.Field) {
			return fmt.Errorf("indicator %s %s: unknown field %q, expected one of %v", cfg.Label(), side, spec.Field, k.fields())
		}
	}
	return nil
}

func hasField(k kind, f string) bool {
	for _, x := range k.fields() {
		if x == f {
			return true
		}
	}
	return false
}

func (p *RSIParams) minBars() int     { return p.Period + 1 }
func (p *RSIParams) primary() string  { return "rsi" }
func (p *RSIParams) fields() []string { return []string{"rsi"} }
func (p *RSIParams) compute(s *models.MarketSnapshot) (map[string]float64, bool) {
	v := RSI(s.Closes(), p.Period)
	return map[string]float64{"rsi": v}, !math.IsNaN(v)
}

func (p *MACDParams) minBars() int     { return p.Slow + p.Signal - 1 }
func (p *MACDParams) primary() string  { return "histogram" }
func (p *MACDParams) fields() []string { return []string{"macd", "signal", "histogram"} }
func (p *MACDParams) compute(s *models.MarketSnapshot) (map[string]float64, bool) {
	line, sig, hist := MACD(s.Closes(), p.Fast, p.Slow, p.Signal)
	return map[string]float64{"macd": line, "signal": sig, "histogram": hist}, !math.IsNaN(hist)
}

func (p *EMACrossParams) minBars() int     { return p.Slow }
func (p *EMACrossParams) primary() string  { return "spread" }
func (p *EMACrossParams) fields() []string { return []string{"fast", "slow", "spread"} }
func (p *EMACrossParams) compute(s *models.MarketSnapshot) (map[string]float64, bool) {
	closes := s.Closes()
	f, sl := EMA(closes, p.Fast), EMA(closes, p.Slow)
	return map[string]float64{"fast": f, "slow": sl, "spread": f - sl}, !math.IsNaN(f) && !math.IsNaN(sl)
}

func (p *MAParams) minBars() int     { return p.Period }
func (p *MAParams) primary() string  { return "distance_pct" }
func (p *MAParams) fields() []string { return []string{"ma", "close", "distance_pct"} }
func (p *MAParams) compute(s *models.MarketSnapshot) (map[string]float64, bool) {
	closes := s.Closes()
	ma := SMA(closes, p.Period)
	if p.exponential {
		ma = EMA(closes, p.Period)
	}
	if math.IsNaN(ma) || ma == 0 {
		return nil, false
	}
	last := closes[len(closes)-1]
	return map[string]float64{"ma": ma, "close": last, "distance_pct": (last/ma - 1) * 100}, true
}

func (p *BollingerParams) minBars() int     { return p.Period }
func (p *BollingerParams) primary() string  { return "percent_b" }
func (p *BollingerParams) fields() []string { return []string{"upper", "middle", "lower", "percent_b"} }
func (p *BollingerParams) compute(s *models.MarketSnapshot) (map[string]float64, bool) {
	closes := s.Closes()
	mid, up, low := Bollinger(closes, p.Period, p.StdDev)
	if math.IsNaN(mid) {
		return nil, false
	}
	pb := 0.5
	if up > low {
		pb = (closes[len(closes)-1] - low) / (up - low)
	}
	return map[string]float64{"upper": up, "middle": mid, "lower": low, "percent_b": pb}, true
}

func (p *ATRParams) minBars() int     { return p.Period + 1 }
func (p *ATRParams) primary() string  { return "atr_pct" }
func (p *ATRParams) fields() []string { return []string{"atr", "atr_pct"} }
func (p *ATRParams) compute(s *models.MarketSnapshot) (map[string]float64, bool) {
	closes := s.Closes()
	atr := ATR(s.Highs(), s.Lows(), closes, p.Period)
	if math.IsNaN(atr) {
		return nil, false
	}
	last := closes[len(closes)-1]
	pct := 0.0
	if last != 0 {
		pct = atr / last * 100
	}
	return map[string]float64{"atr": atr, "atr_pct": pct}, true
}

func (p *StochParams) minBars() int     { return p.K + p.D - 1 }
func (p *StochParams) primary() string  { return "k" }
func (p *StochParams) fields() []string { return []string{"k", "d"} }
func (p *StochParams) compute(s *models.MarketSnapshot) (map[string]float64, bool) {
	k, d := Stochastic(s.Highs(), s.Lows(), s.Closes(), p.K, p.D)
	return map[string]float64{"k": k, "d": d}, !math.IsNaN(k)
}
