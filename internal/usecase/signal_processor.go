package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
	"SignalHook/internal/services/consensus"
	"SignalHook/internal/services/indicators"
	applogger "SignalHook/pkg/logger"
	"SignalHook/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const (
	eventLockPrefix = "event-lock:"
	botLockPrefix   = "bot-lock:"
)

// Locker claims an event across instances. pkg/cache services satisfy it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// ProcessorConfig tunes retries and collaborator timeouts.
type ProcessorConfig struct {
	RetryMax          int
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	LookupTimeout     time.Duration
	MarketDataTimeout time.Duration
	ExecutionTimeout  time.Duration
	SnapshotBars      int
	ClaimTTL          time.Duration
	RecoveryBatch     int
}

// SignalProcessor drives one event from RECEIVED to a terminal state:
// bot check, market snapshot, indicator evaluation, consensus, intent issue.
type SignalProcessor struct {
	cfg       ProcessorConfig
	events    domrepo.EventStore
	registry  *BotRegistry
	market    domrepo.MarketData
	evaluator *indicators.Evaluator
	engine    *consensus.Engine
	issuer    *TradeIntentIssuer
	notifier  domrepo.EventNotifier
	locker    Locker
	metrics   domrepo.Metrics
	tracer    *tracing.Tracer
	l         *applogger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// ProcessorDeps groups the collaborators of a SignalProcessor. Locker and Market may be nil.
type ProcessorDeps struct {
	Events    domrepo.EventStore
	Registry  *BotRegistry
	Market    domrepo.MarketData
	Evaluator *indicators.Evaluator
	Engine    *consensus.Engine
	Issuer    *TradeIntentIssuer
	Notifier  domrepo.EventNotifier
	Locker    Locker
	Metrics   domrepo.Metrics
	Tracer    *tracing.Tracer
	Logger    *applogger.Logger
}

func NewSignalProcessor(cfg ProcessorConfig, deps ProcessorDeps) *SignalProcessor {
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 200 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = time.Minute
	}
	if cfg.RecoveryBatch <= 0 {
		cfg.RecoveryBatch = 500
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = applogger.NewNop()
	}
	if deps.Evaluator == nil {
		deps.Evaluator = indicators.NewEvaluator()
	}
	if deps.Engine == nil {
		deps.Engine = consensus.NewEngine()
	}
	return &SignalProcessor{
		cfg:       cfg,
		events:    deps.Events,
		registry:  deps.Registry,
		market:    deps.Market,
		evaluator: deps.Evaluator,
		engine:    deps.Engine,
		issuer:    deps.Issuer,
		notifier:  deps.Notifier,
		locker:    deps.Locker,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		l:         deps.Logger,
		sleep:     sleepCtx,
	}
}

// Process runs the state machine for eventID. Terminal events are left alone,
// so redelivery and recovery can call it any number of times.
func (p *SignalProcessor) Process(ctx context.Context, eventID string) (err error) {
	start := time.Now()
	ctx, span := p.tracer.StartSpan(ctx, "signal.process", attribute.String("event.id", eventID))
	defer func() { tracing.EndSpan(span, err) }()

	if p.locker != nil {
		key := eventLockPrefix + eventID
		ok, lerr := p.locker.TryLock(ctx, key, p.cfg.ClaimTTL)
		if lerr != nil {
			p.l.Warn("event claim failed, processing unclaimed", applogger.String("event_id", eventID), applogger.Error(lerr))
		} else if !ok {
			p.l.Debug("event claimed elsewhere", applogger.String("event_id", eventID))
			return nil
		} else {
			defer func() {
				if uerr := p.locker.Unlock(context.WithoutCancel(ctx), key); uerr != nil {
					p.l.Warn("event claim release failed", applogger.String("event_id", eventID), applogger.Error(uerr))
				}
			}()
		}
	}

	rec, err := p.events.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", eventID, err)
	}
	if rec.Status.Terminal() {
		return nil
	}
	span.SetAttributes(attribute.String("bot.id", rec.BotID), attribute.Bool("event.test", rec.IsTest))

	release, err := p.claimBot(ctx, rec.BotID)
	if err != nil {
		return err
	}
	defer release()

	run := &processRun{eventID: eventID}
	for attempt := 0; ; attempt++ {
		res, perr := p.attempt(ctx, run)
		if errors.Is(perr, domrepo.ErrEventFinalized) {
			return nil
		}
		if perr == nil {
			p.metrics.RecordLatency("process", time.Since(start).Seconds())
			return p.finalize(ctx, eventID, res)
		}
		if ctx.Err() != nil {
			// Shutdown: leave the record non-terminal for the recovery sweep.
			return perr
		}

		p.metrics.RecordError(errorKind(perr))
		if attempt >= p.cfg.RetryMax {
			p.l.Error("event failed after retries",
				applogger.String("event_id", eventID),
				applogger.String("bot_id", rec.BotID),
				applogger.Int("attempts", attempt+1),
				applogger.Error(perr),
			)
			if ferr := p.finalize(ctx, eventID, models.Failed(perr.Error(), perr, nil)); ferr != nil {
				return ferr
			}
			return perr
		}

		wait := backoff(p.cfg.BackoffMin, p.cfg.BackoffMax, attempt)
		p.l.Warn("event attempt failed, retrying",
			applogger.String("event_id", eventID),
			applogger.Int("attempt", attempt+1),
			applogger.Duration("backoff", wait),
			applogger.Error(perr),
		)
		if serr := p.sleep(ctx, wait); serr != nil {
			return perr
		}
	}
}

// claimBot serializes events of one bot across instances. It waits while the
// bot is held elsewhere and proceeds unclaimed when the lock store fails.
func (p *SignalProcessor) claimBot(ctx context.Context, botID string) (func(), error) {
	if p.locker == nil {
		return func() {}, nil
	}
	key := botLockPrefix + botID
	for attempt := 0; ; attempt++ {
		ok, err := p.locker.TryLock(ctx, key, p.cfg.ClaimTTL)
		if err != nil {
			p.l.Warn("bot claim failed, processing unclaimed", applogger.String("bot_id", botID), applogger.Error(err))
			return func() {}, nil
		}
		if ok {
			return func() {
				if uerr := p.locker.Unlock(context.WithoutCancel(ctx), key); uerr != nil {
					p.l.Warn("bot claim release failed", applogger.String("bot_id", botID), applogger.Error(uerr))
				}
			}, nil
		}
		p.l.Debug("bot busy elsewhere, waiting", applogger.String("bot_id", botID), applogger.Int("attempt", attempt+1))
		if err := p.sleep(ctx, backoff(p.cfg.BackoffMin, p.cfg.BackoffMax, attempt)); err != nil {
			return nil, fmt.Errorf("wait for bot %s: %w", botID, err)
		}
	}
}

// processRun carries state across the attempts of one Process call.
type processRun struct {
	eventID string
	// bot is resolved once; retries keep evaluating against it.
	bot *models.Bot
}

// attempt performs one pass. A nil error means res is the terminal result;
// any error is transient and retried.
func (p *SignalProcessor) attempt(ctx context.Context, run *processRun) (models.EventResult, error) {
	rec, err := p.events.MarkProcessing(ctx, run.eventID)
	if err != nil {
		return models.EventResult{}, err
	}
	p.notify(rec)

	var sig models.InboundSignal
	if err := json.Unmarshal(rec.Payload, &sig); err != nil {
		return models.Completed("invalid payload: "+err.Error(), nil), nil
	}
	sig.Normalize()
	action := sig.SignalAction()
	outcome := &models.EventOutcome{Hints: sig.Indicators}

	if run.bot == nil {
		lctx, cancel := withTimeout(ctx, p.cfg.LookupTimeout)
		found, err := p.registry.Lookup(lctx, rec.BotID)
		cancel()
		if errors.Is(err, domrepo.ErrBotNotFound) {
			return models.Completed("bot not found", outcome), nil
		}
		if err != nil {
			return models.EventResult{}, err
		}
		run.bot = found
	}
	bot := run.bot
	if bot.Status != models.BotStatusActive {
		outcome.Decision = &models.Decision{Action: action, Mode: bot.SignalMode, Reason: "bot is " + bot.Status.Label()}
		return models.Completed(outcome.Decision.Reason, outcome), nil
	}

	var results []models.EvaluationResult
	enabled := bot.EnabledIndicators()
	if action != models.ActionClose && len(enabled) > 0 {
		snap, err := p.snapshot(ctx, bot, enabled)
		if err != nil {
			return models.EventResult{}, err
		}
		results = p.evaluator.EvaluateAll(enabled, snap)
	}
	outcome.Results = results

	decision := p.engine.Decide(ctx, bot, action, results)
	outcome.Decision = &decision
	verdict := "rejected"
	if decision.ShouldTrade {
		verdict = "accepted"
	}
	p.metrics.RecordDecision(string(bot.SignalMode), verdict)
	if decision.Misconfigured {
		p.metrics.RecordError("misconfiguration")
		p.l.Error("bot misconfigured",
			applogger.String("kind", "misconfiguration"),
			applogger.String("bot_id", bot.ID),
			applogger.String("reason", decision.Reason),
		)
	}
	if !decision.ShouldTrade {
		return models.Completed(decision.Reason, outcome), nil
	}

	ectx, cancel := withTimeout(ctx, p.cfg.ExecutionTimeout)
	intent, err := p.issuer.Issue(ectx, rec, bot, &sig)
	cancel()
	if err != nil {
		return models.EventResult{}, err
	}
	outcome.TradeIntentID = intent.ID
	outcome.OrderRef = intent.OrderRef
	return models.Completed(decision.Reason, outcome), nil
}

func (p *SignalProcessor) snapshot(ctx context.Context, bot *models.Bot, enabled []models.IndicatorConfig) (*models.MarketSnapshot, error) {
	if p.market == nil {
		return nil, &marketDataError{err: errors.New("no market data source configured")}
	}
	bars := p.evaluator.RequiredBars(enabled)
	if p.cfg.SnapshotBars > bars {
		bars = p.cfg.SnapshotBars
	}
	ctx, span := p.tracer.StartSpan(ctx, "market.snapshot", attribute.String("symbol", bot.Symbol))
	mctx, cancel := withTimeout(ctx, p.cfg.MarketDataTimeout)
	defer cancel()

	started := time.Now()
	snap, err := p.market.GetSnapshot(mctx, bot.Symbol, domrepo.NormalizeTimeframe(bot.Timeframe), bars)
	p.metrics.RecordLatency("market_snapshot", time.Since(started).Seconds())
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, &marketDataError{err: err}
	}
	return snap, nil
}

func (p *SignalProcessor) finalize(ctx context.Context, eventID string, res models.EventResult) error {
	ctx = context.WithoutCancel(ctx)
	if err := p.events.FinalizeEvent(ctx, eventID, res); err != nil {
		if errors.Is(err, domrepo.ErrEventFinalized) {
			p.l.Debug("event finalized by another writer", applogger.String("event_id", eventID))
			return nil
		}
		return fmt.Errorf("finalize event %s: %w", eventID, err)
	}
	rec, err := p.events.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("reload event %s: %w", eventID, err)
	}
	p.metrics.RecordEventFinished(string(rec.Status), rec.IsTest)
	p.notify(rec)
	p.l.Info("event finished",
		applogger.String("event_id", eventID),
		applogger.String("bot_id", rec.BotID),
		applogger.String("status", string(rec.Status)),
		applogger.String("reason", rec.Reason),
		applogger.Int("attempts", rec.Attempts),
	)
	return nil
}

// FailBackpressure records an event evicted by the dispatcher's drop policy.
func (p *SignalProcessor) FailBackpressure(ctx context.Context, botID, eventID string) {
	err := p.finalize(ctx, eventID, models.Failed(domrepo.ErrQueueFull.Error(), domrepo.ErrQueueFull, nil))
	if err != nil {
		p.l.Error("recording dropped event failed",
			applogger.String("bot_id", botID), applogger.String("event_id", eventID), applogger.Error(err))
	}
}

// RecoverPending re-dispatches records left RECEIVED or PROCESSING by a previous run.
func (p *SignalProcessor) RecoverPending(ctx context.Context, d domrepo.Dispatcher) (int, error) {
	pending, err := p.events.ListPending(ctx, p.cfg.RecoveryBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	n := 0
	for _, rec := range pending {
		if err := redispatch(ctx, d, rec.BotID, rec.ID); err != nil {
			p.l.Warn("recovery dispatch failed", applogger.String("event_id", rec.ID), applogger.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		p.l.Info("recovered pending events", applogger.Int("count", n))
	}
	return n, nil
}

func (p *SignalProcessor) notify(rec *models.EventRecord) {
	if p.notifier != nil && rec != nil {
		p.notifier.Notify(rec)
	}
}

type marketDataError struct {
	err error
}

func (e *marketDataError) Error() string { return "market data: " + e.err.Error() }
func (e *marketDataError) Unwrap() error { return e.err }

func errorKind(err error) string {
	var md *marketDataError
	switch {
	case errors.As(err, &md):
		return "market_data"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transient"
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// backoff grows exponentially from lo, capped at hi, with up to 20% jitter.
func backoff(lo, hi time.Duration, attempt int) time.Duration {
	d := lo
	for i := 0; i < attempt && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	if j := int64(d) / 5; j > 0 {
		d += time.Duration(rand.Int63n(j))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
