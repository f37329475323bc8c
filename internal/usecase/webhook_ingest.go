package usecase

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
	"SignalHook/internal/service/ratelimit"
	xhttp "SignalHook/pkg/http"
	applogger "SignalHook/pkg/logger"
	"SignalHook/pkg/util"

	"github.com/google/uuid"
)

const (
	MsgAccepted       = "signal accepted"
	MsgDuplicate      = "duplicate signal"
	MsgInvalidWebhook = "invalid webhook"
	MsgRateLimited    = "rate limited"
	MsgUnavailable    = "temporarily unavailable"
	MsgDispatchFailed = "dispatch failed"
	TestMessagePrefix = "[TEST] "
)

// dummySecret keeps unknown-bot rejections as slow as wrong-secret ones.
var dummySecret = []byte("00000000000000000000000000000000")

// WebhookRequest is an inbound alert as seen by the gateway.
type WebhookRequest struct {
	BotID          string
	Secret         string
	Body           []byte
	IdempotencyKey string
}

// IngestResult is always delivered with transport success.
type IngestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	EventID string `json:"eventId,omitempty"`
}

// WebhookIngest authenticates, validates and records inbound signals, then
// hands accepted ones to the dispatcher. It never waits for evaluation.
type WebhookIngest struct {
	registry   *BotRegistry
	events     domrepo.EventStore
	dispatcher domrepo.Dispatcher
	notifier   domrepo.EventNotifier
	limiter    *ratelimit.Limiter
	metrics    domrepo.Metrics
	l          *applogger.Logger
	newID      func() string
	now        func() time.Time

	redispatchAfter time.Duration
}

// DefaultRedispatchAfter is how long a non-terminal record must sit untouched
// before a replay re-dispatches it.
const DefaultRedispatchAfter = 2 * time.Minute

// IngestOption tunes a WebhookIngest.
type IngestOption func(*WebhookIngest)

// WithRedispatchAfter sets the staleness a replayed record needs before it is
// re-dispatched. Non-positive values keep the default.
func WithRedispatchAfter(d time.Duration) IngestOption {
	return func(w *WebhookIngest) {
		if d > 0 {
			w.redispatchAfter = d
		}
	}
}

// NewWebhookIngest builds the gateway. A nil limiter disables rate limiting.
func NewWebhookIngest(
	registry *BotRegistry,
	events domrepo.EventStore,
	dispatcher domrepo.Dispatcher,
	notifier domrepo.EventNotifier,
	limiter *ratelimit.Limiter,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	opts ...IngestOption,
) *WebhookIngest {
	if l == nil {
		l = applogger.NewNop()
	}
	w := &WebhookIngest{
		registry:        registry,
		events:          events,
		dispatcher:      dispatcher,
		notifier:        notifier,
		limiter:         limiter,
		metrics:         metrics,
		l:               l,
		newID:           uuid.NewString,
		now:             time.Now,
		redispatchAfter: DefaultRedispatchAfter,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ingest handles POST /webhook/:botId/:secret. Only authenticated requests
// draw from the bot's rate-limit bucket.
func (w *WebhookIngest) Ingest(ctx context.Context, req WebhookRequest) IngestResult {
	bot, err := w.registry.Lookup(ctx, req.BotID)
	if err != nil && !errors.Is(err, domrepo.ErrBotNotFound) {
		w.metrics.RecordWebhook("error")
		w.metrics.RecordError("bot_lookup")
		w.l.Error("webhook bot lookup failed", applogger.String("bot_id", req.BotID), applogger.Error(err))
		return IngestResult{Message: MsgUnavailable}
	}
	if !secretMatches(bot, req.Secret) {
		w.metrics.RecordWebhook("unauthorized")
		w.l.Warn("webhook authentication failed", applogger.String("bot_id", req.BotID))
		return IngestResult{Message: MsgInvalidWebhook}
	}
	if w.limiter != nil && !w.limiter.Allow(bot.ID) {
		w.metrics.RecordWebhook("rate_limited")
		w.l.Warn("webhook rate limited", applogger.String("bot_id", bot.ID))
		return IngestResult{Message: MsgRateLimited}
	}

	return w.accept(ctx, bot, req.Body, req.IdempotencyKey, false)
}

// SubmitTest runs the same pipeline for an owner-triggered test signal.
func (w *WebhookIngest) SubmitTest(ctx context.Context, bot *models.Bot, body []byte, idempotencyKey string) IngestResult {
	return w.accept(ctx, bot, body, idempotencyKey, true)
}

func secretMatches(bot *models.Bot, secret string) bool {
	if bot == nil {
		subtle.ConstantTimeCompare([]byte(secret), dummySecret)
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(bot.Secret)) == 1
}

func (w *WebhookIngest) accept(ctx context.Context, bot *models.Bot, body []byte, idempotencyKey string, isTest bool) IngestResult {
	sig, diag := decodeSignal(ctx, body)
	if diag != "" {
		reason := "invalid payload: " + diag
		w.metrics.RecordWebhook("invalid")
		return w.recordNoop(ctx, bot, rawPayload(body), isTest, reason)
	}

	payload := json.RawMessage(body)
	if isTest {
		sig.Message = TestMessagePrefix + sig.Message
		b, err := json.Marshal(sig)
		if err != nil {
			return IngestResult{Message: "invalid payload: " + err.Error()}
		}
		payload = b
	} else {
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err == nil {
			payload = buf.Bytes()
		}
	}

	if bot.Status != models.BotStatusActive {
		w.metrics.RecordWebhook("inactive")
		return w.recordNoop(ctx, bot, payload, isTest, "bot is "+bot.Status.Label())
	}
	if util.NormalizeSymbol(sig.Symbol) != util.NormalizeSymbol(bot.Symbol) {
		w.metrics.RecordWebhook("symbol_mismatch")
		return w.recordNoop(ctx, bot, payload, isTest,
			fmt.Sprintf("symbol mismatch: signal %s, bot %s", sig.Symbol, bot.Symbol))
	}

	key := sig.OrderID
	if key == "" {
		key = idempotencyKey
	}
	if key != "" {
		existing, err := w.events.FindEventByDedupKey(ctx, bot.ID, key)
		if err == nil {
			return w.duplicate(ctx, existing)
		}
		if !errors.Is(err, domrepo.ErrEventNotFound) {
			return w.storageFailure(bot.ID, err)
		}
	}

	rec := &models.EventRecord{
		ID:        w.newID(),
		BotID:     bot.ID,
		DedupKey:  key,
		Payload:   payload,
		Status:    models.EventReceived,
		IsTest:    isTest,
		CreatedAt: w.now(),
	}
	if err := w.events.AppendEvent(ctx, rec); err != nil {
		if errors.Is(err, domrepo.ErrDuplicate) && key != "" {
			existing, ferr := w.events.FindEventByDedupKey(ctx, bot.ID, key)
			if ferr == nil {
				return w.duplicate(ctx, existing)
			}
			err = ferr
		}
		return w.storageFailure(bot.ID, err)
	}
	w.notify(rec)

	if err := w.dispatcher.Dispatch(ctx, bot.ID, rec.ID); err != nil {
		if errors.Is(err, domrepo.ErrQueueFull) {
			w.metrics.RecordWebhook("backpressure")
			return IngestResult{Message: domrepo.ErrQueueFull.Error(), EventID: rec.ID}
		}
		w.metrics.RecordWebhook("error")
		w.metrics.RecordError("dispatch")
		w.l.Error("dispatch failed", applogger.String("bot_id", bot.ID), applogger.String("event_id", rec.ID), applogger.Error(err))
		w.finalize(ctx, rec.ID, models.Failed(MsgDispatchFailed, err, nil))
		return IngestResult{Message: MsgDispatchFailed, EventID: rec.ID}
	}

	w.metrics.RecordWebhook("accepted")
	w.l.Info("signal accepted",
		applogger.String("bot_id", bot.ID),
		applogger.String("event_id", rec.ID),
		applogger.String("action", sig.Action),
		applogger.Bool("test", isTest),
	)
	return IngestResult{Success: true, Message: MsgAccepted, EventID: rec.ID}
}

// duplicate answers a replayed signal with the original record. A non-terminal
// original is re-dispatched only once it has gone stale; a fresh one is most
// likely still queued.
func (w *WebhookIngest) duplicate(ctx context.Context, existing *models.EventRecord) IngestResult {
	w.metrics.RecordWebhook("duplicate")
	if w.stale(existing) {
		if err := redispatch(ctx, w.dispatcher, existing.BotID, existing.ID); err != nil {
			w.l.Warn("re-dispatch of duplicate failed", applogger.String("event_id", existing.ID), applogger.Error(err))
		}
	}
	return IngestResult{Success: true, Message: MsgDuplicate, EventID: existing.ID}
}

func (w *WebhookIngest) stale(rec *models.EventRecord) bool {
	if rec.Status.Terminal() {
		return false
	}
	last := rec.UpdatedAt
	if last.IsZero() {
		last = rec.CreatedAt
	}
	return w.now().Sub(last) >= w.redispatchAfter
}

// recordNoop writes a record that is final on arrival.
func (w *WebhookIngest) recordNoop(ctx context.Context, bot *models.Bot, payload json.RawMessage, isTest bool, reason string) IngestResult {
	now := w.now()
	rec := &models.EventRecord{
		ID:         w.newID(),
		BotID:      bot.ID,
		Payload:    payload,
		Status:     models.EventCompleted,
		IsTest:     isTest,
		Reason:     reason,
		Outcome:    &models.EventOutcome{Decision: &models.Decision{Mode: bot.SignalMode, Reason: reason}},
		CreatedAt:  now,
		FinishedAt: &now,
	}
	if err := w.events.AppendEvent(ctx, rec); err != nil {
		w.l.Error("recording no-op event failed", applogger.String("bot_id", bot.ID), applogger.Error(err))
		return IngestResult{Message: reason}
	}
	w.metrics.RecordEventFinished(string(rec.Status), isTest)
	w.notify(rec)
	w.l.Info("signal recorded without processing",
		applogger.String("bot_id", bot.ID),
		applogger.String("event_id", rec.ID),
		applogger.String("reason", reason),
	)
	return IngestResult{Message: reason, EventID: rec.ID}
}

func (w *WebhookIngest) finalize(ctx context.Context, eventID string, res models.EventResult) {
	ctx = context.WithoutCancel(ctx)
	if err := w.events.FinalizeEvent(ctx, eventID, res); err != nil {
		w.l.Error("finalize event failed", applogger.String("event_id", eventID), applogger.Error(err))
		return
	}
	w.metrics.RecordEventFinished(string(res.Status), false)
	if rec, err := w.events.GetEvent(ctx, eventID); err == nil {
		w.notify(rec)
	}
}

func (w *WebhookIngest) storageFailure(botID string, err error) IngestResult {
	w.metrics.RecordWebhook("error")
	w.metrics.RecordError("ledger")
	w.l.Error("ledger write failed", applogger.String("bot_id", botID), applogger.Error(err))
	return IngestResult{Message: MsgUnavailable}
}

func (w *WebhookIngest) notify(rec *models.EventRecord) {
	if w.notifier != nil {
		w.notifier.Notify(rec)
	}
}

// decodeSignal returns the normalized signal or a diagnostic for the caller.
func decodeSignal(ctx context.Context, body []byte) (*models.InboundSignal, string) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, "empty body"
	}
	var sig models.InboundSignal
	if err := json.Unmarshal(body, &sig); err != nil {
		return nil, "malformed JSON: " + err.Error()
	}
	sig.Normalize()
	if errs := xhttp.ValidateRequest(ctx, &sig); len(errs) > 0 {
		return nil, xhttp.JoinMessages(errs)
	}
	return &sig, ""
}

// rawPayload keeps an undecodable body as a JSON string so the record stays valid JSON.
func rawPayload(body []byte) json.RawMessage {
	if json.Valid(body) {
		return append(json.RawMessage(nil), body...)
	}
	b, _ := json.Marshal(string(body))
	return b
}
