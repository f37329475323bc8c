package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
)

const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

// ErrNotOwner is returned when the caller does not own the bot.
// Handlers render it like ErrBotNotFound so bot ids cannot be probed.
var ErrNotOwner = errors.New("bot not owned by caller")

// IntentSummary is the trade intent view attached to a ledger entry.
type IntentSummary struct {
	ID       string              `json:"id"`
	Status   models.IntentStatus `json:"status"`
	Side     models.SignalAction `json:"side"`
	Symbol   string              `json:"symbol"`
	Quantity string              `json:"quantity,omitempty"`
	OrderRef string              `json:"order_ref,omitempty"`
}

// EventView is one ledger entry with its linked intent.
type EventView struct {
	*models.EventRecord
	TradeIntent *IntentSummary `json:"trade_intent,omitempty"`
}

// EventQuery serves the owner-facing ledger endpoints.
type EventQuery struct {
	registry *BotRegistry
	events   domrepo.EventStore
	intents  domrepo.TradeIntentStore
}

func NewEventQuery(registry *BotRegistry, events domrepo.EventStore, intents domrepo.TradeIntentStore) *EventQuery {
	return &EventQuery{registry: registry, events: events, intents: intents}
}

// OwnedBot returns the bot if ownerID owns it.
func (q *EventQuery) OwnedBot(ctx context.Context, ownerID, botID string) (*models.Bot, error) {
	bot, err := q.registry.Lookup(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return bot, nil
}

// ListEvents returns the newest records first. limit is clamped to [1, MaxEventLimit].
func (q *EventQuery) ListEvents(ctx context.Context, ownerID, botID string, limit int, since time.Time) ([]EventView, error) {
	if _, err := q.OwnedBot(ctx, ownerID, botID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}

	recs, err := q.events.ListEvents(ctx, botID, limit, since)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	intents, err := q.intents.ListIntentsByEventIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}

	out := make([]EventView, 0, len(recs))
	for _, r := range recs {
		v := EventView{EventRecord: r}
		if in, ok := intents[r.ID]; ok {
			v.TradeIntent = summarize(in)
		}
		out = append(out, v)
	}
	return out, nil
}

func summarize(in *models.TradeIntent) *IntentSummary {
	s := &IntentSummary{ID: in.ID, Status: in.Status, Side: in.Side, Symbol: in.Symbol, OrderRef: in.OrderRef}
	if in.Quantity != nil {
		s.Quantity = in.Quantity.String()
	}
	return s
}
