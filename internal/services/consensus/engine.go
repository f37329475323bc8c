package consensus

import (
	"context"
	"fmt"
	"sync"

	"SignalHook/internal/domain/models"
)

const (
	ReasonNoIndicators = "no indicators configured; signal accepted as-is"
	ReasonCloseBypass  = "close signal bypasses indicator consensus"
	ReasonNoPolicy     = "custom signal mode has no registered policy (fail closed)"
)

// Policy decides CUSTOM mode bots.
type Policy interface {
	Decide(ctx context.Context, bot *models.Bot, action models.SignalAction, results []models.EvaluationResult) (bool, string, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, bot *models.Bot, action models.SignalAction, results []models.EvaluationResult) (bool, string, error)

func (f PolicyFunc) Decide(ctx context.Context, bot *models.Bot, action models.SignalAction, results []models.EvaluationResult) (bool, string, error) {
	return f(ctx, bot, action, results)
}

// Engine combines per-indicator classifications into a Decision.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

func NewEngine() *Engine {
	return &Engine{policies: make(map[string]Policy)}
}

// RegisterPolicy installs the CUSTOM policy for a bot. A nil policy removes it.
func (e *Engine) RegisterPolicy(botID string, p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p == nil {
		delete(e.policies, botID)
		return
	}
	e.policies[botID] = p
}

func (e *Engine) policy(botID string) Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policies[botID]
}

// Decide applies the bot's signal mode. The reason always cites the counted numbers.
func (e *Engine) Decide(ctx context.Context, bot *models.Bot, action models.SignalAction, results []models.EvaluationResult) models.Decision {
	d := models.Decision{Action: action, Mode: bot.SignalMode, Count: len(results)}

	if action == models.ActionClose {
		d.ShouldTrade = true
		d.Reason = ReasonCloseBypass
		return d
	}
	if len(results) == 0 {
		d.ShouldTrade = true
		d.Reason = ReasonNoIndicators
		return d
	}

	want, _ := action.Direction()
	for _, r := range results {
		d.TotalWeight += r.Weight
		if r.Classification == want {
			d.ActiveCount++
			d.ActiveWeight += r.Weight
		}
	}

	switch bot.SignalMode {
	case models.SignalModeAny:
		d.ShouldTrade = d.ActiveCount >= 1
		verdict := "no indicator agrees"
		if d.ShouldTrade {
			verdict = "at least one indicator agrees"
		}
		d.Reason = fmt.Sprintf("any: %d of %d indicators agree with %s (%s)", d.ActiveCount, d.Count, action, verdict)

	case models.SignalModeAll:
		d.ShouldTrade = d.ActiveCount == d.Count
		verdict := "not all indicators agree"
		if d.ShouldTrade {
			verdict = "all indicators agree"
		}
		d.Reason = fmt.Sprintf("all: %d of %d indicators agree with %s (%s)", d.ActiveCount, d.Count, action, verdict)

	case models.SignalModeMajority:
		if d.TotalWeight <= 0 {
			d.Reason = fmt.Sprintf("majority: total weight %.2f, no majority possible", d.TotalWeight)
			return d
		}
		half := d.TotalWeight / 2
		d.ShouldTrade = d.ActiveWeight > half
		verdict := "rejected"
		if d.ShouldTrade {
			verdict = "accepted"
		}
		d.Reason = fmt.Sprintf("majority: active weight %.2f of total %.2f (threshold > %.2f), %s",
			d.ActiveWeight, d.TotalWeight, half, verdict)

	case models.SignalModeCustom:
		p := e.policy(bot.ID)
		if p == nil {
			d.Reason = ReasonNoPolicy
			d.Misconfigured = true
			return d
		}
		ok, why, err := p.Decide(ctx, bot, action, results)
		if err != nil {
			d.Reason = fmt.Sprintf("custom policy error (fail closed): %v", err)
			return d
		}
		d.ShouldTrade = ok
		d.Reason = fmt.Sprintf("custom: %s (active weight %.2f of total %.2f)", why, d.ActiveWeight, d.TotalWeight)

	default:
		d.Reason = fmt.Sprintf("unknown signal mode %q (fail closed)", bot.SignalMode)
		d.Misconfigured = true
	}
	return d
}
