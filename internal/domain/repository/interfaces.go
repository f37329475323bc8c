package repository

import (
	"context"
	"time"

	"SignalHook/internal/domain/models"
)

// BotStore reads bot configuration. UpsertBot is used by the seed loader only.
type BotStore interface {
	GetBot(ctx context.Context, id string) (*models.Bot, error)
	UpsertBot(ctx context.Context, bot *models.Bot) error
}

// EventStore is the append-only ledger of inbound signals.
type EventStore interface {
	// AppendEvent inserts a new record. Returns ErrDuplicate when (bot, dedup key) exists.
	AppendEvent(ctx context.Context, rec *models.EventRecord) error
	GetEvent(ctx context.Context, id string) (*models.EventRecord, error)
	FindEventByDedupKey(ctx context.Context, botID, key string) (*models.EventRecord, error)
	// MarkProcessing moves a non-terminal record to PROCESSING and bumps its attempt counter.
	// Returns ErrEventFinalized when the record is already terminal.
	MarkProcessing(ctx context.Context, id string) (*models.EventRecord, error)
	// FinalizeEvent performs the single terminal transition.
	// Returns ErrEventFinalized when another writer got there first.
	FinalizeEvent(ctx context.Context, id string, res models.EventResult) error
	ListEvents(ctx context.Context, botID string, limit int, since time.Time) ([]*models.EventRecord, error)
	ListPending(ctx context.Context, limit int) ([]*models.EventRecord, error)
}

// TradeIntentStore persists trade intents, unique per source event.
type TradeIntentStore interface {
	CreateIntent(ctx context.Context, intent *models.TradeIntent) error
	GetIntentByEventID(ctx context.Context, eventID string) (*models.TradeIntent, error)
	MarkIntentSubmitted(ctx context.Context, id string, status models.IntentStatus, orderRef string) error
	ListIntentsByEventIDs(ctx context.Context, eventIDs []string) (map[string]*models.TradeIntent, error)
}

// MarketData returns closed bars for indicator evaluation.
type MarketData interface {
	GetSnapshot(ctx context.Context, symbol string, tf Timeframe, bars int) (*models.MarketSnapshot, error)
}

// Executor hands an intent to the brokerage side and returns its order reference.
type Executor interface {
	PlaceOrder(ctx context.Context, intent *models.TradeIntent) (string, error)
}

// Dispatcher routes an event id to the per-bot processing queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, botID, eventID string) error
}

// EventNotifier receives ledger records after every state change.
type EventNotifier interface {
	Notify(rec *models.EventRecord)
}

// Metrics records pipeline measurements.
type Metrics interface {
	RecordWebhook(outcome string)
	RecordDecision(mode string, outcome string)
	RecordEventFinished(status string, isTest bool)
	RecordDrop(policy string)
	RecordQueueDepth(depth int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
