package indicators

import (
	"errors"
	"math"

	"SignalHook/internal/domain/models"
)

const (
	NoteUnknownType      = "unknown indicator type"
	NoteInvalidParams    = "invalid params"
	NoteInsufficientData = "insufficient data"
	NoteConflict         = "buy and sell signals both satisfied"
	NoteUnknownField     = "signal field not produced by indicator"
)

const eqEpsilon = 1e-9

// Evaluator computes indicator values and classifies them with the bot's signal specs.
// It holds no state and is safe for concurrent use.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// EvaluateAll evaluates enabled configs in order. Disabled configs are skipped entirely.
func (e *Evaluator) EvaluateAll(cfgs []models.IndicatorConfig, snap *models.MarketSnapshot) []models.EvaluationResult {
	out := make([]models.EvaluationResult, 0, len(cfgs))
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		out = append(out, e.Evaluate(cfg, snap))
	}
	return out
}

// Evaluate never fails: a config that cannot be computed yields a neutral result with a note.
func (e *Evaluator) Evaluate(cfg models.IndicatorConfig, snap *models.MarketSnapshot) models.EvaluationResult {
	res := models.EvaluationResult{
		IndicatorID:    cfg.ID,
		Name:           cfg.Name,
		Type:           cfg.Type,
		Classification: models.ClassNeutral,
		Weight:         weightOf(cfg),
	}

	k, err := parseKind(cfg.Type, cfg.Params)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			res.Note = NoteUnknownType
		} else {
			res.Note = NoteInvalidParams + ": " + err.Error()
		}
		return res
	}

	if snap == nil || len(snap.Candles) < k.minBars() {
		res.Note = NoteInsufficientData
		return res
	}
	comps, ok := k.compute(snap)
	if !ok {
		res.Note = NoteInsufficientData
		return res
	}
	comps = finite(comps)
	res.Value = comps[k.primary()]
	res.Components = comps

	// previous bar values, computed once and only for crossing operators
	var prev map[string]float64
	prevLoaded := false
	previous := func() map[string]float64 {
		if !prevLoaded {
			prevLoaded = true
			p := snap.Previous()
			if len(p.Candles) >= k.minBars() {
				if pc, ok := k.compute(p); ok {
					prev = finite(pc)
				}
			}
		}
		return prev
	}

	buy, buyNote := satisfied(cfg.BuySignal, k, comps, previous)
	sell, sellNote := satisfied(cfg.SellSignal, k, comps, previous)
	switch {
	case buy && sell:
		res.Note = NoteConflict
	case buy:
		res.Classification = models.ClassBuy
	case sell:
		res.Classification = models.ClassSell
	default:
		if buyNote != "" {
			res.Note = buyNote
		} else {
			res.Note = sellNote
		}
	}
	return res
}

// RequiredBars is the number of closed bars needed to evaluate every enabled config,
// including one extra bar for crossing lookback.
func (e *Evaluator) RequiredBars(cfgs []models.IndicatorConfig) int {
	need := 0
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		k, err := parseKind(cfg.Type, cfg.Params)
		if err != nil {
			continue
		}
		if n := k.minBars() + 1; n > need {
			need = n
		}
	}
	return need
}

// satisfied checks one side. A missing spec abstains.
func satisfied(spec *models.SignalSpec, k kind, comps map[string]float64, previous func() map[string]float64) (bool, string) {
	if spec == nil {
		return false, ""
	}
	field := spec.Field
	if field == "" {
		field = k.primary()
	}
	cur, ok := comps[field]
	if !ok {
		return false, NoteUnknownField
	}
	switch spec.Operator {
	case models.OpCrossesAbove, models.OpCrossesBelow:
		p, ok := previous()[field]
		if !ok {
			return false, NoteInsufficientData
		}
		return holds(spec, cur, p), ""
	}
	return holds(spec, cur, 0), ""
}

// holds applies the operator. prev is only read by crossing operators.
func holds(spec *models.SignalSpec, cur, prev float64) bool {
	v := spec.Value
	switch spec.Operator {
	case models.OpLT:
		return cur < v
	case models.OpLTE:
		return cur <= v
	case models.OpGT:
		return cur > v
	case models.OpGTE:
		return cur >= v
	case models.OpEQ:
		return math.Abs(cur-v) < eqEpsilon
	case models.OpBetween, models.OpOutside:
		if spec.Value2 == nil {
			return false
		}
		lo, hi := math.Min(v, *spec.Value2), math.Max(v, *spec.Value2)
		inside := cur >= lo && cur <= hi
		if spec.Operator == models.OpBetween {
			return inside
		}
		return !inside
	case models.OpCrossesAbove:
		return prev <= v && cur > v
	case models.OpCrossesBelow:
		return prev >= v && cur < v
	}
	return false
}

func weightOf(cfg models.IndicatorConfig) float64 {
	if cfg.Weight < 0 || math.IsNaN(cfg.Weight) || math.IsInf(cfg.Weight, 0) {
		return 0
	}
	return cfg.Weight
}

func finite(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}
